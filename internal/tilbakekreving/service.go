package tilbakekreving

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/groblegark/sakd/internal/events"
	"github.com/groblegark/sakd/internal/kravgrunnlag"
	"github.com/groblegark/sakd/internal/model"
	"github.com/groblegark/sakd/internal/sak"
	"github.com/groblegark/sakd/internal/store"
)

// ErrBehandlingNotFound is returned when no behandling exists for the id.
var ErrBehandlingNotFound = errors.New("tilbakekreving: behandling not found")

// ErrUlikVersjon is returned when the caller's sak version is no longer
// current. The caller must re-read the sak and decide again.
var ErrUlikVersjon = errors.New("tilbakekreving: stale sak version")

// ErrAapenBehandlingFinnes is returned by Opprett when the sak already has an
// open behandling. One at a time.
var ErrAapenBehandlingFinnes = errors.New("tilbakekreving: sak already has an open behandling")

// ErrIngenKravgrunnlag is returned by OppdaterKravgrunnlag when the sak has no
// kravgrunnlag to attach.
var ErrIngenKravgrunnlag = errors.New("tilbakekreving: sak has no kravgrunnlag")

// ErrUgyldigTilstand is returned when the behandling's state does not permit
// the requested action.
var ErrUgyldigTilstand = errors.New("tilbakekreving: action not allowed in current state")

// ErrSammeSaksbehandler is returned when the attestant also wrote the case.
var ErrSammeSaksbehandler = errors.New("tilbakekreving: attestant cannot decide their own behandling")

// ErrKravgrunnlagUtdatert is returned by Iverksett when the behandling's
// kravgrunnlag no longer matches the sak's current one.
var ErrKravgrunnlagUtdatert = errors.New("tilbakekreving: kravgrunnlag is outdated")

// Simulator cross-checks the kravgrunnlag amounts against a fresh payment
// simulation before a decision is carried out.
type Simulator interface {
	KontrollerMotSimulering(ctx context.Context, saksnummer int64, k model.Kravgrunnlag) error
}

// Service exposes the behandling workflow. Every mutation takes the sak
// version the caller acted on; a mismatch aborts with ErrUlikVersjon before
// anything is written.
type Service struct {
	store     store.Store
	publisher events.Publisher
	simulator Simulator
	clock     func() time.Time
	log       *slog.Logger
}

// NewService creates a behandling service. publisher may be nil (no
// notifications), simulator may be nil (the pre-decision simulation check is
// skipped), clock may be nil.
func NewService(st store.Store, publisher events.Publisher, simulator Simulator, clock func() time.Time, log *slog.Logger) *Service {
	if publisher == nil {
		publisher = &events.NoopPublisher{}
	}
	if clock == nil {
		clock = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: st, publisher: publisher, simulator: simulator, clock: clock, log: log}
}

// Opprett opens a behandling against the sak's current kravgrunnlag. A sak
// without a kravgrunnlag still gets its behandling; it starts in
// OpprettetUtenKravgrunnlag and picks the kravgrunnlag up through
// OppdaterKravgrunnlag once one arrives.
func (s *Service) Opprett(ctx context.Context, sakID uuid.UUID, klientVersjon int64, meta model.Metadata) (*Behandling, error) {
	var opprettet *Behandling
	var lagret *model.Hendelse
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		versjon, err := tx.SisteVersjon(ctx, sakID)
		if err != nil {
			return err
		}
		if versjon == model.RootVersjon {
			return store.ErrSakNotFound
		}
		if versjon != klientVersjon {
			return ErrUlikVersjon
		}

		aapne, err := aapneBehandlinger(ctx, tx, sakID)
		if err != nil {
			return err
		}
		if len(aapne) > 0 {
			return ErrAapenBehandlingFinnes
		}

		hendelser, err := tx.HendelserSiden(ctx, sakID, model.RootVersjon)
		if err != nil {
			return err
		}
		eier, err := sak.Fold(sakID, hendelser)
		if err != nil {
			return err
		}

		data := OpprettetData{
			BehandlingID: uuid.New(),
			Saksnummer:   eier.Saksnummer,
			OpprettetAv:  meta.Ident,
		}
		kravgrunnlagHendelseID, gjeldende, utdatert, err := kravgrunnlag.GjeldendeKravgrunnlag(ctx, tx, sakID)
		if err != nil {
			return err
		}
		if gjeldende != nil {
			data.KravgrunnlagHendelseID = kravgrunnlagHendelseID
			data.Kravgrunnlag = *gjeldende
			data.ErKravgrunnlagUtdatert = utdatert
		}
		h, err := sak.NyHendelse(sakID, &sakID, versjon+1, model.TypeBehandlingOpprettet, s.clock(), "", meta, data)
		if err != nil {
			return err
		}
		if err := tx.AppendHendelse(ctx, versjon, h); err != nil {
			return err
		}

		opprettet = &Behandling{}
		if err := opprettet.apply(h); err != nil {
			return err
		}
		lagret = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.varsle(ctx, lagret, opprettet)
	s.log.Info("behandling opprettet",
		"sakId", sakID, "behandlingId", opprettet.ID, "saksnummer", opprettet.Saksnummer)
	return opprettet, nil
}

// Forhaandsvarsle records that the person was warned about the pending
// recovery. The letter itself is produced by the document sweep afterwards.
func (s *Service) Forhaandsvarsle(ctx context.Context, sakID, behandlingID uuid.UUID, klientVersjon int64, fritekst string, meta model.Metadata) (*Behandling, error) {
	return s.endre(ctx, sakID, behandlingID, klientVersjon, meta, func(b *Behandling) (model.Hendelsestype, any, error) {
		if _, ok := b.Tilstand.(KanForhaandsvarsles); !ok {
			return "", nil, fmt.Errorf("%w: forhåndsvarsle in %s", ErrUgyldigTilstand, b.Status())
		}
		return model.TypeForhaandsvarslet, ForhaandsvarsletData{
			BehandlingID: b.ID,
			Saksnummer:   b.Saksnummer,
			Fritekst:     fritekst,
		}, nil
	})
}

// Vurder replaces the month assessments. The set must cover the kravgrunnlag's
// months exactly.
func (s *Service) Vurder(ctx context.Context, sakID, behandlingID uuid.UUID, klientVersjon int64, vurderinger model.Vurderinger, meta model.Metadata) (*Behandling, error) {
	return s.endre(ctx, sakID, behandlingID, klientVersjon, meta, func(b *Behandling) (model.Hendelsestype, any, error) {
		if _, ok := b.Tilstand.(KanVurderes); !ok {
			return "", nil, fmt.Errorf("%w: vurder in %s", ErrUgyldigTilstand, b.Status())
		}
		if err := vurderinger.ValiderMotPerioder(b.Kravgrunnlag.Perioder()); err != nil {
			return "", nil, err
		}
		return model.TypeBehandlingVurdert, VurdertData{
			BehandlingID: b.ID,
			Saksnummer:   b.Saksnummer,
			Vurderinger:  vurderinger,
		}, nil
	})
}

// OppdaterVedtaksbrev stores the free text of the decision letter.
func (s *Service) OppdaterVedtaksbrev(ctx context.Context, sakID, behandlingID uuid.UUID, klientVersjon int64, fritekst string, meta model.Metadata) (*Behandling, error) {
	return s.endre(ctx, sakID, behandlingID, klientVersjon, meta, func(b *Behandling) (model.Hendelsestype, any, error) {
		if _, ok := b.Tilstand.(KanFaaVedtaksbrev); !ok {
			return "", nil, fmt.Errorf("%w: oppdater vedtaksbrev in %s", ErrUgyldigTilstand, b.Status())
		}
		return model.TypeOppdatertVedtaksbrev, VedtaksbrevData{
			BehandlingID: b.ID,
			Saksnummer:   b.Saksnummer,
			Fritekst:     fritekst,
		}, nil
	})
}

// Notat attaches or replaces the internal case note. Allowed in any open state.
func (s *Service) Notat(ctx context.Context, sakID, behandlingID uuid.UUID, klientVersjon int64, notat string, meta model.Metadata) (*Behandling, error) {
	return s.endre(ctx, sakID, behandlingID, klientVersjon, meta, func(b *Behandling) (model.Hendelsestype, any, error) {
		if !b.ErAapen() {
			return "", nil, fmt.Errorf("%w: notat in %s", ErrUgyldigTilstand, b.Status())
		}
		return model.TypeBehandlingNotat, NotatData{
			BehandlingID: b.ID,
			Saksnummer:   b.Saksnummer,
			Notat:        notat,
		}, nil
	})
}

// SendTilAttestering hands the behandling to the attestant. All months must be
// assessed, and a decision letter must exist when the brevvalg requires one.
func (s *Service) SendTilAttestering(ctx context.Context, sakID, behandlingID uuid.UUID, klientVersjon int64, meta model.Metadata) (*Behandling, error) {
	return s.endre(ctx, sakID, behandlingID, klientVersjon, meta, func(b *Behandling) (model.Hendelsestype, any, error) {
		if _, ok := b.Tilstand.(KanSendesTilAttestering); !ok {
			return "", nil, fmt.Errorf("%w: send til attestering in %s", ErrUgyldigTilstand, b.Status())
		}
		if err := b.Vurderinger.ValiderMotPerioder(b.Kravgrunnlag.Perioder()); err != nil {
			return "", nil, err
		}
		if b.Brevvalg() != model.BrevvalgIngenTilbakekreving && b.Vedtaksbrev == "" {
			return "", nil, fmt.Errorf("%w: send til attestering without vedtaksbrev", ErrUgyldigTilstand)
		}
		return model.TypeTilAttestering, TilAttesteringData{
			BehandlingID: b.ID,
			Saksnummer:   b.Saksnummer,
			SendtAv:      meta.Ident,
		}, nil
	})
}

// Underkjenn sends the behandling back to the case worker with a reason.
func (s *Service) Underkjenn(ctx context.Context, sakID, behandlingID uuid.UUID, klientVersjon int64, grunn Underkjennelsesgrunn, kommentar string, meta model.Metadata) (*Behandling, error) {
	return s.endre(ctx, sakID, behandlingID, klientVersjon, meta, func(b *Behandling) (model.Hendelsestype, any, error) {
		if _, ok := b.Tilstand.(KanAttesteres); !ok {
			return "", nil, fmt.Errorf("%w: underkjenn in %s", ErrUgyldigTilstand, b.Status())
		}
		if meta.Ident == b.SendtTilAttesteringAv {
			return "", nil, ErrSammeSaksbehandler
		}
		if !grunn.IsValid() {
			return "", nil, fmt.Errorf("tilbakekreving: unknown underkjennelsesgrunn %q", grunn)
		}
		return model.TypeBehandlingUnderkjent, UnderkjentData{
			BehandlingID: b.ID,
			Saksnummer:   b.Saksnummer,
			Attestant:    meta.Ident,
			Grunn:        grunn,
			Kommentar:    kommentar,
		}, nil
	})
}

// Iverksett carries the decision out. Requires a different attestant, a
// kravgrunnlag that is still the sak's current one, and a clean simulation
// cross-check when a simulator is wired.
func (s *Service) Iverksett(ctx context.Context, sakID, behandlingID uuid.UUID, klientVersjon int64, meta model.Metadata) (*Behandling, error) {
	return s.endre(ctx, sakID, behandlingID, klientVersjon, meta, func(b *Behandling) (model.Hendelsestype, any, error) {
		if _, ok := b.Tilstand.(KanAttesteres); !ok {
			return "", nil, fmt.Errorf("%w: iverksett in %s", ErrUgyldigTilstand, b.Status())
		}
		if meta.Ident == b.SendtTilAttesteringAv {
			return "", nil, ErrSammeSaksbehandler
		}
		if b.ErKravgrunnlagUtdatert {
			return "", nil, ErrKravgrunnlagUtdatert
		}
		if s.simulator != nil {
			if err := s.simulator.KontrollerMotSimulering(ctx, b.Saksnummer, b.Kravgrunnlag); err != nil {
				return "", nil, fmt.Errorf("simuleringskontroll: %w", err)
			}
		}
		return model.TypeBehandlingIverksatt, IverksattData{
			BehandlingID: b.ID,
			Saksnummer:   b.Saksnummer,
			Attestant:    meta.Ident,
		}, nil
	})
}

// Avbryt closes the behandling without a decision.
func (s *Service) Avbryt(ctx context.Context, sakID, behandlingID uuid.UUID, klientVersjon int64, begrunnelse string, meta model.Metadata) (*Behandling, error) {
	return s.endre(ctx, sakID, behandlingID, klientVersjon, meta, func(b *Behandling) (model.Hendelsestype, any, error) {
		if !b.ErAapen() {
			return "", nil, fmt.Errorf("%w: avbryt in %s", ErrUgyldigTilstand, b.Status())
		}
		return model.TypeBehandlingAvbrutt, AvbruttData{
			BehandlingID: b.ID,
			Saksnummer:   b.Saksnummer,
			AvbruttAv:    meta.Ident,
			Begrunnelse:  begrunnelse,
		}, nil
	})
}

// OppdaterKravgrunnlag rebases an open behandling onto the sak's current
// kravgrunnlag. Existing assessments are discarded; they were made against the
// old amounts.
func (s *Service) OppdaterKravgrunnlag(ctx context.Context, sakID, behandlingID uuid.UUID, klientVersjon int64, meta model.Metadata) (*Behandling, error) {
	return s.endre(ctx, sakID, behandlingID, klientVersjon, meta, func(b *Behandling) (model.Hendelsestype, any, error) {
		if _, ok := b.Tilstand.(KanFaaKravgrunnlag); !ok {
			return "", nil, fmt.Errorf("%w: oppdater kravgrunnlag in %s", ErrUgyldigTilstand, b.Status())
		}
		hendelseID, gjeldende, _, err := kravgrunnlag.GjeldendeKravgrunnlag(ctx, s.store, sakID)
		if err != nil {
			return "", nil, err
		}
		if gjeldende == nil {
			return "", nil, ErrIngenKravgrunnlag
		}
		if hendelseID == b.KravgrunnlagHendelseID {
			return "", nil, fmt.Errorf("%w: behandling already on current kravgrunnlag", ErrUgyldigTilstand)
		}
		return model.TypeOppdatertKravgrunnlag, OppdatertKravgrunnlagData{
			BehandlingID:           b.ID,
			Saksnummer:             b.Saksnummer,
			KravgrunnlagHendelseID: hendelseID,
			Kravgrunnlag:           *gjeldende,
		}, nil
	})
}

// Hent folds the behandling from its hendelser.
func (s *Service) Hent(ctx context.Context, sakID, behandlingID uuid.UUID) (*Behandling, error) {
	return hentBehandling(ctx, s.store, sakID, behandlingID)
}

// AapneBehandlinger lists the sak's behandlinger that still accept changes.
func (s *Service) AapneBehandlinger(ctx context.Context, sakID uuid.UUID) ([]*Behandling, error) {
	return aapneBehandlinger(ctx, s.store, sakID)
}

// Historikk returns the behandling's hendelser in version order, the audit
// trail as persisted.
func (s *Service) Historikk(ctx context.Context, sakID, behandlingID uuid.UUID) ([]*model.Hendelse, error) {
	hendelser, err := hendelserForBehandling(ctx, s.store, sakID, behandlingID)
	if err != nil {
		return nil, err
	}
	if len(hendelser) == 0 {
		return nil, ErrBehandlingNotFound
	}
	return hendelser, nil
}

// endre is the shared mutation path: load, guard, append. fn inspects the
// folded behandling and returns the hendelse to append.
func (s *Service) endre(ctx context.Context, sakID, behandlingID uuid.UUID, klientVersjon int64, meta model.Metadata,
	fn func(b *Behandling) (model.Hendelsestype, any, error)) (*Behandling, error) {

	var resultat *Behandling
	var lagret *model.Hendelse
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		versjon, err := tx.SisteVersjon(ctx, sakID)
		if err != nil {
			return err
		}
		if versjon != klientVersjon {
			return ErrUlikVersjon
		}

		b, err := hentBehandling(ctx, tx, sakID, behandlingID)
		if err != nil {
			return err
		}

		typ, data, err := fn(b)
		if err != nil {
			return err
		}
		h, err := sak.NyHendelse(sakID, &sakID, versjon+1, typ, s.clock(), b.SisteHendelseID, meta, data)
		if err != nil {
			return err
		}
		if err := tx.AppendHendelse(ctx, versjon, h); err != nil {
			return err
		}
		if err := b.apply(h); err != nil {
			return err
		}
		resultat = b
		lagret = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.varsle(ctx, lagret, resultat)
	s.log.Info("behandling oppdatert",
		"sakId", sakID, "behandlingId", behandlingID, "status", resultat.Status())
	return resultat, nil
}

// varsle publishes notifications for an appended hendelse. Publish failures
// are logged, not returned; the hendelse is already committed.
func (s *Service) varsle(ctx context.Context, h *model.Hendelse, b *Behandling) {
	melding := events.HendelseLagret{
		HendelseID: h.HendelseID,
		SakID:      h.EntitetID,
		Type:       h.Type,
		Versjon:    h.Versjon,
	}
	if err := s.publisher.Publish(ctx, events.TopicHendelseLagret, melding); err != nil {
		s.log.Error("failed to publish hendelse notification", "hendelseId", h.HendelseID, "err", err)
	}

	var topic string
	switch h.Type {
	case model.TypeBehandlingIverksatt:
		topic = events.TopicBehandlingIverksatt
	case model.TypeBehandlingAvbrutt:
		topic = events.TopicBehandlingAvbrutt
	default:
		return
	}
	avgjort := events.BehandlingAvgjort{
		SakID:        h.EntitetID,
		BehandlingID: b.ID,
		Saksnummer:   b.Saksnummer,
	}
	if err := s.publisher.Publish(ctx, topic, avgjort); err != nil {
		s.log.Error("failed to publish behandling notification", "behandlingId", b.ID, "err", err)
	}
}

func hentBehandling(ctx context.Context, st store.Store, sakID, behandlingID uuid.UUID) (*Behandling, error) {
	hendelser, err := hendelserForBehandling(ctx, st, sakID, behandlingID)
	if err != nil {
		return nil, err
	}
	return Fold(hendelser)
}

func hendelserForBehandling(ctx context.Context, st store.Store, sakID, behandlingID uuid.UUID) ([]*model.Hendelse, error) {
	alle, err := st.HendelserForSakOgType(ctx, sakID, behandlingstyper...)
	if err != nil {
		return nil, err
	}
	var egne []*model.Hendelse
	for _, h := range alle {
		id, err := behandlingIDFor(h)
		if err != nil {
			return nil, err
		}
		if id == behandlingID {
			egne = append(egne, h)
		}
	}
	return egne, nil
}

func aapneBehandlinger(ctx context.Context, st store.Store, sakID uuid.UUID) ([]*Behandling, error) {
	alle, err := st.HendelserForSakOgType(ctx, sakID, behandlingstyper...)
	if err != nil {
		return nil, err
	}
	grupper := make(map[uuid.UUID][]*model.Hendelse)
	var rekkefolge []uuid.UUID
	for _, h := range alle {
		id, err := behandlingIDFor(h)
		if err != nil {
			return nil, err
		}
		if _, ok := grupper[id]; !ok {
			rekkefolge = append(rekkefolge, id)
		}
		grupper[id] = append(grupper[id], h)
	}

	var aapne []*Behandling
	for _, id := range rekkefolge {
		b, err := Fold(grupper[id])
		if err != nil {
			return nil, err
		}
		if b.ErAapen() {
			aapne = append(aapne, b)
		}
	}
	return aapne, nil
}
