package tilbakekreving

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/groblegark/sakd/internal/events"
	"github.com/groblegark/sakd/internal/kravgrunnlag"
	"github.com/groblegark/sakd/internal/model"
	"github.com/groblegark/sakd/internal/sak"
	"github.com/groblegark/sakd/internal/store"
	"github.com/groblegark/sakd/internal/store/storetest"
)

const (
	saksbehandler = "Z990297"
	attestant     = "Z990391"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// testSak seeds a sak with a received kravgrunnlag covering three months with
// a 2643 kroner overpayment each and returns the sak id and current version.
func testSak(t *testing.T, st store.Store) (uuid.UUID, int64) {
	t.Helper()
	ctx := context.Background()
	klokke := func() time.Time { return time.Date(2022, 3, 1, 9, 0, 0, 0, time.UTC) }

	sakSvc := sak.NewService(st, klokke, testLogger())
	sakID, err := sakSvc.OpprettSak(ctx, 2461, "18108619852", model.Metadata{Ident: saksbehandler})
	if err != nil {
		t.Fatalf("OpprettSak: %v", err)
	}

	mottak := kravgrunnlag.NewMottak(st, klokke, testLogger())
	if err := mottak.Motta(ctx, treMaanedersKravgrunnlagXML); err != nil {
		t.Fatalf("Motta: %v", err)
	}

	versjon, err := st.SisteVersjon(ctx, sakID)
	if err != nil {
		t.Fatalf("SisteVersjon: %v", err)
	}
	return sakID, versjon
}

func fullVurdering(b *Behandling) model.Vurderinger {
	var vs model.Vurderinger
	for _, p := range b.Kravgrunnlag.Perioder() {
		vs = append(vs, model.Maanedsvurdering{Periode: p, Vurdering: model.VurderingTilbakekrev})
	}
	return vs
}

func TestWorkflow_OpprettTilIverksatt(t *testing.T) {
	st := storetest.New()
	ctx := context.Background()
	sakID, versjon := testSak(t, st)

	svc := NewService(st, nil, nil, nil, testLogger())
	behandler := model.Metadata{Ident: saksbehandler}

	b, err := svc.Opprett(ctx, sakID, versjon, behandler)
	if err != nil {
		t.Fatalf("Opprett: %v", err)
	}
	if b.Status() != StatusOpprettet {
		t.Fatalf("Status = %s, want %s", b.Status(), StatusOpprettet)
	}
	if len(b.Kravgrunnlag.Grunnlagsperioder) != 3 {
		t.Fatalf("len(Grunnlagsperioder) = %d, want 3", len(b.Kravgrunnlag.Grunnlagsperioder))
	}
	if got := b.Kravgrunnlag.SamletBelopSkalTilbakekreves(); got != 3*2643 {
		t.Errorf("SamletBelopSkalTilbakekreves = %d, want %d", got, 3*2643)
	}
	versjon++

	b, err = svc.Forhaandsvarsle(ctx, sakID, b.ID, versjon, "Vi vurderer å kreve tilbake.", behandler)
	if err != nil {
		t.Fatalf("Forhaandsvarsle: %v", err)
	}
	versjon++

	b, err = svc.Vurder(ctx, sakID, b.ID, versjon, fullVurdering(b), behandler)
	if err != nil {
		t.Fatalf("Vurder: %v", err)
	}
	if b.Status() != StatusVurdert {
		t.Fatalf("Status = %s, want %s", b.Status(), StatusVurdert)
	}
	if b.Brevvalg() != model.BrevvalgFullTilbakekreving {
		t.Errorf("Brevvalg = %s, want %s", b.Brevvalg(), model.BrevvalgFullTilbakekreving)
	}
	versjon++

	b, err = svc.OppdaterVedtaksbrev(ctx, sakID, b.ID, versjon, "Du må betale tilbake 7929 kroner.", behandler)
	if err != nil {
		t.Fatalf("OppdaterVedtaksbrev: %v", err)
	}
	versjon++

	b, err = svc.SendTilAttestering(ctx, sakID, b.ID, versjon, behandler)
	if err != nil {
		t.Fatalf("SendTilAttestering: %v", err)
	}
	if b.Status() != StatusTilAttestering {
		t.Fatalf("Status = %s, want %s", b.Status(), StatusTilAttestering)
	}
	versjon++

	b, err = svc.Iverksett(ctx, sakID, b.ID, versjon, model.Metadata{Ident: attestant})
	if err != nil {
		t.Fatalf("Iverksett: %v", err)
	}
	if b.Status() != StatusIverksatt {
		t.Fatalf("Status = %s, want %s", b.Status(), StatusIverksatt)
	}
	if len(b.Attesteringer) != 1 || !b.Attesteringer[0].Godkjent || b.Attesteringer[0].Attestant != attestant {
		t.Errorf("Attesteringer = %+v", b.Attesteringer)
	}

	// Terminal: nothing more may be written.
	if _, err := svc.Notat(ctx, sakID, b.ID, versjon+1, "etterpåklokskap", behandler); !errors.Is(err, ErrUgyldigTilstand) {
		t.Errorf("Notat after iverksettelse: err = %v, want ErrUgyldigTilstand", err)
	}
}

func TestWorkflow_UnderkjennOgOmarbeid(t *testing.T) {
	st := storetest.New()
	ctx := context.Background()
	sakID, versjon := testSak(t, st)

	svc := NewService(st, nil, nil, nil, testLogger())
	behandler := model.Metadata{Ident: saksbehandler}

	b, err := svc.Opprett(ctx, sakID, versjon, behandler)
	if err != nil {
		t.Fatalf("Opprett: %v", err)
	}
	versjon++
	b, err = svc.Vurder(ctx, sakID, b.ID, versjon, fullVurdering(b), behandler)
	if err != nil {
		t.Fatalf("Vurder: %v", err)
	}
	versjon++
	if _, err = svc.OppdaterVedtaksbrev(ctx, sakID, b.ID, versjon, "Brev v1", behandler); err != nil {
		t.Fatalf("OppdaterVedtaksbrev: %v", err)
	}
	versjon++
	if _, err = svc.SendTilAttestering(ctx, sakID, b.ID, versjon, behandler); err != nil {
		t.Fatalf("SendTilAttestering: %v", err)
	}
	versjon++

	b, err = svc.Underkjenn(ctx, sakID, b.ID, versjon, GrunnVedtaksbrevet, "Brevet mangler hjemmel.", model.Metadata{Ident: attestant})
	if err != nil {
		t.Fatalf("Underkjenn: %v", err)
	}
	if b.Status() != StatusUnderkjent {
		t.Fatalf("Status = %s, want %s", b.Status(), StatusUnderkjent)
	}
	if len(b.Attesteringer) != 1 || b.Attesteringer[0].Godkjent {
		t.Errorf("Attesteringer = %+v", b.Attesteringer)
	}
	versjon++

	// The case worker may rework and resubmit.
	if _, err = svc.OppdaterVedtaksbrev(ctx, sakID, b.ID, versjon, "Brev v2", behandler); err != nil {
		t.Fatalf("OppdaterVedtaksbrev etter underkjennelse: %v", err)
	}
	versjon++
	b, err = svc.SendTilAttestering(ctx, sakID, b.ID, versjon, behandler)
	if err != nil {
		t.Fatalf("SendTilAttestering #2: %v", err)
	}
	versjon++
	b, err = svc.Iverksett(ctx, sakID, b.ID, versjon, model.Metadata{Ident: attestant})
	if err != nil {
		t.Fatalf("Iverksett: %v", err)
	}
	if len(b.Attesteringer) != 2 {
		t.Errorf("len(Attesteringer) = %d, want 2", len(b.Attesteringer))
	}
}

func TestOpprett_Guards(t *testing.T) {
	st := storetest.New()
	ctx := context.Background()
	sakID, versjon := testSak(t, st)
	svc := NewService(st, nil, nil, nil, testLogger())
	behandler := model.Metadata{Ident: saksbehandler}

	if _, err := svc.Opprett(ctx, sakID, versjon-1, behandler); !errors.Is(err, ErrUlikVersjon) {
		t.Errorf("Opprett with stale version: err = %v, want ErrUlikVersjon", err)
	}
	if _, err := svc.Opprett(ctx, uuid.New(), 1, behandler); !errors.Is(err, store.ErrSakNotFound) {
		t.Errorf("Opprett on unknown sak: err = %v, want ErrSakNotFound", err)
	}

	if _, err := svc.Opprett(ctx, sakID, versjon, behandler); err != nil {
		t.Fatalf("Opprett: %v", err)
	}
	if _, err := svc.Opprett(ctx, sakID, versjon+1, behandler); !errors.Is(err, ErrAapenBehandlingFinnes) {
		t.Errorf("second Opprett: err = %v, want ErrAapenBehandlingFinnes", err)
	}
}

func TestOpprett_UtenKravgrunnlag(t *testing.T) {
	st := storetest.New()
	ctx := context.Background()
	sakSvc := sak.NewService(st, nil, testLogger())
	sakID, err := sakSvc.OpprettSak(ctx, 2461, "18108619852", model.Metadata{Ident: saksbehandler})
	if err != nil {
		t.Fatalf("OpprettSak: %v", err)
	}

	svc := NewService(st, nil, nil, nil, testLogger())
	behandler := model.Metadata{Ident: saksbehandler}

	// The behandling may be opened before any kravgrunnlag has arrived.
	b, err := svc.Opprett(ctx, sakID, 1, behandler)
	if err != nil {
		t.Fatalf("Opprett: %v", err)
	}
	if b.Status() != StatusOpprettetUtenKravgrunnlag {
		t.Fatalf("Status = %s, want %s", b.Status(), StatusOpprettetUtenKravgrunnlag)
	}
	if b.Saksnummer != 2461 {
		t.Errorf("Saksnummer = %d, want 2461", b.Saksnummer)
	}
	if !b.ErAapen() {
		t.Error("ErAapen = false, want true")
	}

	// Nothing to assess or warn about yet.
	if _, err := svc.Vurder(ctx, sakID, b.ID, 2, fullVurdering(b), behandler); !errors.Is(err, ErrUgyldigTilstand) {
		t.Errorf("Vurder: err = %v, want ErrUgyldigTilstand", err)
	}
	if _, err := svc.Forhaandsvarsle(ctx, sakID, b.ID, 2, "varsel", behandler); !errors.Is(err, ErrUgyldigTilstand) {
		t.Errorf("Forhaandsvarsle: err = %v, want ErrUgyldigTilstand", err)
	}
	if _, err := svc.OppdaterKravgrunnlag(ctx, sakID, b.ID, 2, behandler); !errors.Is(err, ErrIngenKravgrunnlag) {
		t.Errorf("OppdaterKravgrunnlag without kravgrunnlag: err = %v, want ErrIngenKravgrunnlag", err)
	}

	// The kravgrunnlag arrives and is attached.
	mottak := kravgrunnlag.NewMottak(st, nil, testLogger())
	if err := mottak.Motta(ctx, treMaanedersKravgrunnlagXML); err != nil {
		t.Fatalf("Motta: %v", err)
	}
	b, err = svc.OppdaterKravgrunnlag(ctx, sakID, b.ID, 3, behandler)
	if err != nil {
		t.Fatalf("OppdaterKravgrunnlag: %v", err)
	}
	if b.Status() != StatusOpprettet {
		t.Fatalf("Status = %s, want %s", b.Status(), StatusOpprettet)
	}
	if b.Kravgrunnlag.EksternKravgrunnlagID != "298606" {
		t.Errorf("EksternKravgrunnlagID = %q, want 298606", b.Kravgrunnlag.EksternKravgrunnlagID)
	}

	// The normal workflow continues from here.
	if _, err := svc.Vurder(ctx, sakID, b.ID, 4, fullVurdering(b), behandler); err != nil {
		t.Fatalf("Vurder after attach: %v", err)
	}
}

func TestVurder_ManglendePeriode(t *testing.T) {
	st := storetest.New()
	ctx := context.Background()
	sakID, versjon := testSak(t, st)
	svc := NewService(st, nil, nil, nil, testLogger())
	behandler := model.Metadata{Ident: saksbehandler}

	b, err := svc.Opprett(ctx, sakID, versjon, behandler)
	if err != nil {
		t.Fatalf("Opprett: %v", err)
	}
	versjon++

	ufullstendig := fullVurdering(b)[:2]
	if _, err := svc.Vurder(ctx, sakID, b.ID, versjon, ufullstendig, behandler); err == nil {
		t.Error("Vurder with missing month succeeded, want error")
	}

	// An incomplete behandling cannot go to attestering either.
	if _, err := svc.SendTilAttestering(ctx, sakID, b.ID, versjon, behandler); err == nil {
		t.Error("SendTilAttestering without vurderinger succeeded, want error")
	}
}

func TestIverksett_SammeSaksbehandler(t *testing.T) {
	st := storetest.New()
	ctx := context.Background()
	sakID, versjon := testSak(t, st)
	svc := NewService(st, nil, nil, nil, testLogger())
	behandler := model.Metadata{Ident: saksbehandler}

	b, _ := svc.Opprett(ctx, sakID, versjon, behandler)
	versjon++
	b, _ = svc.Vurder(ctx, sakID, b.ID, versjon, fullVurdering(b), behandler)
	versjon++
	svc.OppdaterVedtaksbrev(ctx, sakID, b.ID, versjon, "Brev", behandler)
	versjon++
	svc.SendTilAttestering(ctx, sakID, b.ID, versjon, behandler)
	versjon++

	if _, err := svc.Iverksett(ctx, sakID, b.ID, versjon, behandler); !errors.Is(err, ErrSammeSaksbehandler) {
		t.Errorf("Iverksett by author: err = %v, want ErrSammeSaksbehandler", err)
	}
	if _, err := svc.Underkjenn(ctx, sakID, b.ID, versjon, GrunnAndreForhold, "", behandler); !errors.Is(err, ErrSammeSaksbehandler) {
		t.Errorf("Underkjenn by author: err = %v, want ErrSammeSaksbehandler", err)
	}
}

type avvisendeSimulator struct{ err error }

func (s avvisendeSimulator) KontrollerMotSimulering(context.Context, int64, model.Kravgrunnlag) error {
	return s.err
}

func TestIverksett_Simuleringskontroll(t *testing.T) {
	st := storetest.New()
	ctx := context.Background()
	sakID, versjon := testSak(t, st)

	simFeil := errors.New("beløpene stemmer ikke med simulering")
	svc := NewService(st, nil, avvisendeSimulator{err: simFeil}, nil, testLogger())
	behandler := model.Metadata{Ident: saksbehandler}

	b, _ := svc.Opprett(ctx, sakID, versjon, behandler)
	versjon++
	b, _ = svc.Vurder(ctx, sakID, b.ID, versjon, fullVurdering(b), behandler)
	versjon++
	svc.OppdaterVedtaksbrev(ctx, sakID, b.ID, versjon, "Brev", behandler)
	versjon++
	svc.SendTilAttestering(ctx, sakID, b.ID, versjon, behandler)
	versjon++

	if _, err := svc.Iverksett(ctx, sakID, b.ID, versjon, model.Metadata{Ident: attestant}); !errors.Is(err, simFeil) {
		t.Errorf("Iverksett: err = %v, want wrapped %v", err, simFeil)
	}

	// Nothing was written; the behandling is still awaiting attestering.
	b, err := svc.Hent(ctx, sakID, b.ID)
	if err != nil {
		t.Fatalf("Hent: %v", err)
	}
	if b.Status() != StatusTilAttestering {
		t.Errorf("Status = %s, want %s", b.Status(), StatusTilAttestering)
	}
}

type fangendePublisher struct {
	publisert []fangetEvent
}

type fangetEvent struct {
	topic string
	event any
}

func (p *fangendePublisher) Publish(_ context.Context, topic string, event any) error {
	p.publisert = append(p.publisert, fangetEvent{topic: topic, event: event})
	return nil
}

func (p *fangendePublisher) Close() error { return nil }

func TestVarsling_VedIverksettelse(t *testing.T) {
	st := storetest.New()
	ctx := context.Background()
	sakID, versjon := testSak(t, st)

	pub := &fangendePublisher{}
	svc := NewService(st, pub, nil, nil, testLogger())
	behandler := model.Metadata{Ident: saksbehandler}

	b, err := svc.Opprett(ctx, sakID, versjon, behandler)
	if err != nil {
		t.Fatalf("Opprett: %v", err)
	}
	versjon++
	b, _ = svc.Vurder(ctx, sakID, b.ID, versjon, fullVurdering(b), behandler)
	versjon++
	svc.OppdaterVedtaksbrev(ctx, sakID, b.ID, versjon, "Brev", behandler)
	versjon++
	svc.SendTilAttestering(ctx, sakID, b.ID, versjon, behandler)
	versjon++
	if _, err := svc.Iverksett(ctx, sakID, b.ID, versjon, model.Metadata{Ident: attestant}); err != nil {
		t.Fatalf("Iverksett: %v", err)
	}

	// One HendelseLagret per mutation, plus the terminal notification.
	var lagret, iverksatt int
	for _, e := range pub.publisert {
		switch e.topic {
		case events.TopicHendelseLagret:
			lagret++
		case events.TopicBehandlingIverksatt:
			iverksatt++
			avgjort, ok := e.event.(events.BehandlingAvgjort)
			if !ok {
				t.Fatalf("event on %s has type %T", e.topic, e.event)
			}
			if avgjort.BehandlingID != b.ID || avgjort.Saksnummer != 2461 {
				t.Errorf("BehandlingAvgjort = %+v", avgjort)
			}
		default:
			t.Errorf("unexpected topic %s", e.topic)
		}
	}
	if lagret != 5 {
		t.Errorf("HendelseLagret count = %d, want 5", lagret)
	}
	if iverksatt != 1 {
		t.Errorf("BehandlingIverksatt count = %d, want 1", iverksatt)
	}
}

func TestOppdaterKravgrunnlag_NullstillerVurderinger(t *testing.T) {
	st := storetest.New()
	ctx := context.Background()
	sakID, versjon := testSak(t, st)
	svc := NewService(st, nil, nil, nil, testLogger())
	behandler := model.Metadata{Ident: saksbehandler}

	b, err := svc.Opprett(ctx, sakID, versjon, behandler)
	if err != nil {
		t.Fatalf("Opprett: %v", err)
	}
	versjon++
	b, err = svc.Vurder(ctx, sakID, b.ID, versjon, fullVurdering(b), behandler)
	if err != nil {
		t.Fatalf("Vurder: %v", err)
	}
	versjon++

	// Rebase is refused while the behandling already sits on the current one.
	if _, err := svc.OppdaterKravgrunnlag(ctx, sakID, b.ID, versjon, behandler); !errors.Is(err, ErrUgyldigTilstand) {
		t.Fatalf("OppdaterKravgrunnlag on current: err = %v, want ErrUgyldigTilstand", err)
	}

	// A corrected kravgrunnlag arrives from the settlement system.
	mottak := kravgrunnlag.NewMottak(st, nil, testLogger())
	if err := mottak.Motta(ctx, korrigertKravgrunnlagXML); err != nil {
		t.Fatalf("Motta korrigert: %v", err)
	}
	versjon++

	b, err = svc.OppdaterKravgrunnlag(ctx, sakID, b.ID, versjon, behandler)
	if err != nil {
		t.Fatalf("OppdaterKravgrunnlag: %v", err)
	}
	if len(b.Vurderinger) != 0 {
		t.Errorf("Vurderinger = %+v, want reset", b.Vurderinger)
	}
	if b.Status() != StatusOpprettet {
		t.Errorf("Status = %s, want %s", b.Status(), StatusOpprettet)
	}
	if b.Kravgrunnlag.EksternKravgrunnlagID != "298609" {
		t.Errorf("EksternKravgrunnlagID = %q, want 298609", b.Kravgrunnlag.EksternKravgrunnlagID)
	}
}

func TestEndre_VersjonskonfliktVedKapploep(t *testing.T) {
	st := storetest.New()
	ctx := context.Background()
	sakID, versjon := testSak(t, st)
	svc := NewService(st, nil, nil, nil, testLogger())

	b, err := svc.Opprett(ctx, sakID, versjon, model.Metadata{Ident: saksbehandler})
	if err != nil {
		t.Fatalf("Opprett: %v", err)
	}
	versjon++

	// Two case workers read the same version; only the first write lands.
	if _, err := svc.Notat(ctx, sakID, b.ID, versjon, "først", model.Metadata{Ident: saksbehandler}); err != nil {
		t.Fatalf("Notat #1: %v", err)
	}
	if _, err := svc.Notat(ctx, sakID, b.ID, versjon, "sist", model.Metadata{Ident: attestant}); !errors.Is(err, ErrUlikVersjon) {
		t.Errorf("Notat #2: err = %v, want ErrUlikVersjon", err)
	}

	b, err = svc.Hent(ctx, sakID, b.ID)
	if err != nil {
		t.Fatalf("Hent: %v", err)
	}
	if b.Notat != "først" {
		t.Errorf("Notat = %q, want %q", b.Notat, "først")
	}
}

func TestHistorikk(t *testing.T) {
	st := storetest.New()
	ctx := context.Background()
	sakID, versjon := testSak(t, st)
	svc := NewService(st, nil, nil, nil, testLogger())
	behandler := model.Metadata{Ident: saksbehandler}

	b, _ := svc.Opprett(ctx, sakID, versjon, behandler)
	versjon++
	b, _ = svc.Vurder(ctx, sakID, b.ID, versjon, fullVurdering(b), behandler)

	hendelser, err := svc.Historikk(ctx, sakID, b.ID)
	if err != nil {
		t.Fatalf("Historikk: %v", err)
	}
	if len(hendelser) != 2 {
		t.Fatalf("len(hendelser) = %d, want 2", len(hendelser))
	}
	if hendelser[0].Type != model.TypeBehandlingOpprettet || hendelser[1].Type != model.TypeBehandlingVurdert {
		t.Errorf("unexpected hendelsestyper: %s, %s", hendelser[0].Type, hendelser[1].Type)
	}
	// The chain is intact: each hendelse points at its predecessor.
	if hendelser[1].TidligereHendelseID != hendelser[0].HendelseID {
		t.Errorf("TidligereHendelseID = %q, want %q", hendelser[1].TidligereHendelseID, hendelser[0].HendelseID)
	}

	if _, err := svc.Historikk(ctx, sakID, uuid.New()); !errors.Is(err, ErrBehandlingNotFound) {
		t.Errorf("Historikk for unknown behandling: err = %v, want ErrBehandlingNotFound", err)
	}
}

// treMaanedersKravgrunnlagXML covers October through December 2021 with a 2643
// kroner overpayment per month: 16181 paid out, 13538 after correction.
var treMaanedersKravgrunnlagXML = byggKravgrunnlagXML("298606", "436208", 3)

// korrigertKravgrunnlagXML is a later kravgrunnlag for the same sak.
var korrigertKravgrunnlagXML = byggKravgrunnlagXML("298609", "436211", 2)

func byggKravgrunnlagXML(kravgrunnlagID, vedtakID string, antallMaaneder int) string {
	var perioder string
	fra := time.Date(2021, 10, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < antallMaaneder; i++ {
		fom := fra.AddDate(0, i, 0)
		tom := fom.AddDate(0, 1, -1)
		perioder += fmt.Sprintf(`
    <urn:tilbakekrevingsPeriode>
      <urn:periode>
        <mmel:fom xmlns:mmel="urn:no:nav:tilbakekreving:typer:v1">%s</mmel:fom>
        <mmel:tom xmlns:mmel="urn:no:nav:tilbakekreving:typer:v1">%s</mmel:tom>
      </urn:periode>
      <urn:belopSkattMnd>1162.00</urn:belopSkattMnd>
      <urn:tilbakekrevingsBelop>
        <urn:kodeKlasse>KL_KODE_FEIL_INNT</urn:kodeKlasse>
        <urn:typeKlasse>FEIL</urn:typeKlasse>
        <urn:belopOpprUtbet>0.00</urn:belopOpprUtbet>
        <urn:belopNy>2643.00</urn:belopNy>
        <urn:belopTilbakekreves>0.00</urn:belopTilbakekreves>
        <urn:belopUinnkrevd>0.00</urn:belopUinnkrevd>
        <urn:skattProsent>0.0000</urn:skattProsent>
      </urn:tilbakekrevingsBelop>
      <urn:tilbakekrevingsBelop>
        <urn:kodeKlasse>SUUFORE</urn:kodeKlasse>
        <urn:typeKlasse>YTEL</urn:typeKlasse>
        <urn:belopOpprUtbet>16181.00</urn:belopOpprUtbet>
        <urn:belopNy>13538.00</urn:belopNy>
        <urn:belopTilbakekreves>2643.00</urn:belopTilbakekreves>
        <urn:belopUinnkrevd>0.00</urn:belopUinnkrevd>
        <urn:skattProsent>43.9983</urn:skattProsent>
      </urn:tilbakekrevingsBelop>
    </urn:tilbakekrevingsPeriode>`,
			fom.Format(time.DateOnly), tom.Format(time.DateOnly))
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<urn:detaljertKravgrunnlagMelding xmlns:urn="urn:no:nav:tilbakekreving:kravgrunnlag:detalj:v1">
  <urn:detaljertKravgrunnlag>
    <urn:kravgrunnlagId>%s</urn:kravgrunnlagId>
    <urn:vedtakId>%s</urn:vedtakId>
    <urn:kodeStatusKrav>NY</urn:kodeStatusKrav>
    <urn:kodeFagomraade>SUUFORE</urn:kodeFagomraade>
    <urn:fagsystemId>2461</urn:fagsystemId>
    <urn:kontrollfelt>2022-02-01-02.03.42.456789</urn:kontrollfelt>
    <urn:saksbehId>K231B433</urn:saksbehId>
    <urn:referanse>d9b27a10-1a7e-45f0-b2bb-e5c4c4</urn:referanse>%s
  </urn:detaljertKravgrunnlag>
</urn:detaljertKravgrunnlagMelding>`, kravgrunnlagID, vedtakID, perioder)
}
