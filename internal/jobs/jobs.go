// Package jobs runs the periodic sweeps that turn hendelser into side effects
// against the collaborating services. Each sweep owns a konsument id: it finds
// the hendelser that konsument has not yet processed, performs the side effect
// and only then records the offset. A crash between the two repeats the side
// effect on the next sweep; the collaborators' operations are idempotent per
// hendelse, so the net result is effectively once.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/groblegark/sakd/internal/client"
	"github.com/groblegark/sakd/internal/model"
	"github.com/groblegark/sakd/internal/sak"
	"github.com/groblegark/sakd/internal/store"
	"github.com/groblegark/sakd/internal/tilbakekreving"
)

// Konsument ids. Changing one resets that sweep's bookkeeping; never reuse.
const (
	KonsumentOpprettOppgaver     store.KonsumentID = "OpprettOppgaveForNyttKravgrunnlag"
	KonsumentLukkOppgaver        store.KonsumentID = "LukkOppgaveForAvsluttetBehandling"
	KonsumentSendVedtaksbrev     store.KonsumentID = "SendVedtaksbrevForIverksattBehandling"
	KonsumentSendForhaandsvarsel store.KonsumentID = "SendForhaandsvarselForBehandling"
)

// sweepLimit caps how many hendelser one sweep pass picks up.
const sweepLimit = 100

// Sweeper runs the sweeps against the store and the collaborators.
type Sweeper struct {
	store      store.Store
	oppgaver   client.Oppgaver
	dokumenter client.Dokumenter
	personer   client.Personoppslag
	simulering tilbakekreving.Simulator
	clock      func() time.Time
	log        *slog.Logger
}

// NewSweeper creates a sweeper. simulering and clock may be nil.
func NewSweeper(st store.Store, oppgaver client.Oppgaver, dokumenter client.Dokumenter, personer client.Personoppslag, simulering tilbakekreving.Simulator, clock func() time.Time, log *slog.Logger) *Sweeper {
	if clock == nil {
		clock = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		store:      st,
		oppgaver:   oppgaver,
		dokumenter: dokumenter,
		personer:   personer,
		simulering: simulering,
		clock:      clock,
		log:        log,
	}
}

// OpprettOppgaver creates one follow-up task per sak with newly received
// kravgrunnlag. Several kravgrunnlag on the same sak in one sweep share one
// task; all their offsets are recorded together.
func (s *Sweeper) OpprettOppgaver(ctx context.Context) error {
	if s.oppgaver == nil {
		return nil
	}
	perSak, err := s.store.FindOutstandingPerSak(ctx, KonsumentOpprettOppgaver, model.TypeKravgrunnlag, sweepLimit)
	if err != nil {
		return fmt.Errorf("find outstanding kravgrunnlag: %w", err)
	}

	for sakID, hendelseIDer := range perSak {
		eier, err := s.hentSak(ctx, sakID)
		if err != nil {
			s.log.Error("oppgave sweep: hent sak failed", "sakId", sakID, "error", err)
			continue
		}
		req := &client.OppgaveRequest{
			Saksnummer:  eier.Saksnummer,
			Fnr:         eier.Fnr,
			Beskrivelse: "Nytt kravgrunnlag for tilbakekreving er mottatt",
			Frist:       s.clock().AddDate(0, 0, 14),
		}
		oppgaveID, err := s.oppgaver.OpprettOppgave(ctx, req)
		if err != nil {
			s.log.Error("oppgave sweep: opprett oppgave failed", "sakId", sakID, "error", err)
			continue
		}
		if err := s.store.RecordProcessed(ctx, KonsumentOpprettOppgaver, hendelseIDer...); err != nil {
			return fmt.Errorf("record processed: %w", err)
		}
		s.log.Info("oppgave opprettet for kravgrunnlag",
			"sakId", sakID, "oppgaveId", oppgaveID, "hendelser", len(hendelseIDer))
	}
	return nil
}

// LukkOppgaver closes the sak's follow-up tasks once a behandling reaches a
// terminal state.
func (s *Sweeper) LukkOppgaver(ctx context.Context) error {
	if s.oppgaver == nil {
		return nil
	}
	for _, typ := range []model.Hendelsestype{model.TypeBehandlingIverksatt, model.TypeBehandlingAvbrutt} {
		perSak, err := s.store.FindOutstandingPerSak(ctx, KonsumentLukkOppgaver, typ, sweepLimit)
		if err != nil {
			return fmt.Errorf("find outstanding %s: %w", typ, err)
		}
		for sakID, hendelseIDer := range perSak {
			eier, err := s.hentSak(ctx, sakID)
			if err != nil {
				s.log.Error("lukk sweep: hent sak failed", "sakId", sakID, "error", err)
				continue
			}
			// The oppgave system keys tasks by saksnummer; closing is
			// idempotent there.
			if err := s.oppgaver.LukkOppgave(ctx, fmt.Sprintf("tilbakekreving-%d", eier.Saksnummer)); err != nil {
				s.log.Error("lukk sweep: lukk oppgave failed", "sakId", sakID, "error", err)
				continue
			}
			if err := s.store.RecordProcessed(ctx, KonsumentLukkOppgaver, hendelseIDer...); err != nil {
				return fmt.Errorf("record processed: %w", err)
			}
			s.log.Info("oppgaver lukket", "sakId", sakID, "hendelser", len(hendelseIDer))
		}
	}
	return nil
}

// SendVedtaksbrev distributes the decision letter for iverksatte behandlinger.
// Behandlinger whose brevvalg requires no letter only get their offset
// recorded.
func (s *Sweeper) SendVedtaksbrev(ctx context.Context) error {
	if s.dokumenter == nil {
		return nil
	}
	hendelseIDer, err := s.store.FindOutstanding(ctx, KonsumentSendVedtaksbrev, model.TypeBehandlingIverksatt, sweepLimit)
	if err != nil {
		return fmt.Errorf("find outstanding iverksettelser: %w", err)
	}

	for _, hendelseID := range hendelseIDer {
		h, err := s.store.HentHendelse(ctx, hendelseID)
		if err != nil {
			return fmt.Errorf("hent hendelse %s: %w", hendelseID, err)
		}
		var data tilbakekreving.IverksattData
		if err := json.Unmarshal(h.Data, &data); err != nil {
			return fmt.Errorf("unmarshal hendelse %s: %w", hendelseID, err)
		}
		if h.SakID == nil {
			return fmt.Errorf("hendelse %s without sakId", hendelseID)
		}

		if err := s.sendBrevFor(ctx, *h.SakID, data); err != nil {
			s.log.Error("vedtaksbrev sweep failed", "hendelseId", hendelseID, "error", err)
			continue
		}
		if err := s.store.RecordProcessed(ctx, KonsumentSendVedtaksbrev, hendelseID); err != nil {
			return fmt.Errorf("record processed: %w", err)
		}
	}
	return nil
}

// SendForhaandsvarsler distributes the pre-notification letter for behandlinger
// where the saksbehandler recorded a forhåndsvarsel.
func (s *Sweeper) SendForhaandsvarsler(ctx context.Context) error {
	if s.dokumenter == nil {
		return nil
	}
	hendelseIDer, err := s.store.FindOutstanding(ctx, KonsumentSendForhaandsvarsel, model.TypeForhaandsvarslet, sweepLimit)
	if err != nil {
		return fmt.Errorf("find outstanding forhåndsvarsler: %w", err)
	}

	for _, hendelseID := range hendelseIDer {
		h, err := s.store.HentHendelse(ctx, hendelseID)
		if err != nil {
			return fmt.Errorf("hent hendelse %s: %w", hendelseID, err)
		}
		var data tilbakekreving.ForhaandsvarsletData
		if err := json.Unmarshal(h.Data, &data); err != nil {
			return fmt.Errorf("unmarshal hendelse %s: %w", hendelseID, err)
		}
		if h.SakID == nil {
			return fmt.Errorf("hendelse %s without sakId", hendelseID)
		}

		eier, err := s.hentSak(ctx, *h.SakID)
		if err != nil {
			s.log.Error("forhåndsvarsel sweep: hent sak failed", "sakId", *h.SakID, "error", err)
			continue
		}
		navn := ""
		if s.personer != nil {
			person, err := s.personer.HentPerson(ctx, eier.Fnr)
			if err != nil {
				s.log.Error("forhåndsvarsel sweep: personoppslag failed", "sakId", *h.SakID, "error", err)
				continue
			}
			navn = person.Navn
		}
		fritekst := data.Fritekst
		if navn != "" {
			fritekst = navn + "\n\n" + fritekst
		}
		dokumentID, err := s.dokumenter.SendBrev(ctx, &client.BrevRequest{
			Saksnummer: data.Saksnummer,
			Fnr:        eier.Fnr,
			Tittel:     "Varsel om mulig tilbakekreving",
			Fritekst:   fritekst,
		})
		if err != nil {
			s.log.Error("forhåndsvarsel sweep: send brev failed", "hendelseId", hendelseID, "error", err)
			continue
		}
		if err := s.store.RecordProcessed(ctx, KonsumentSendForhaandsvarsel, hendelseID); err != nil {
			return fmt.Errorf("record processed: %w", err)
		}
		s.log.Info("forhåndsvarsel sendt", "behandlingId", data.BehandlingID, "dokumentId", dokumentID)
	}
	return nil
}

func (s *Sweeper) sendBrevFor(ctx context.Context, sakID uuid.UUID, data tilbakekreving.IverksattData) error {
	b, err := s.behandling(ctx, sakID, data.BehandlingID)
	if err != nil {
		return err
	}
	if b.Brevvalg() == model.BrevvalgIngenTilbakekreving && b.Vedtaksbrev == "" {
		s.log.Info("ingen vedtaksbrev for behandling", "behandlingId", b.ID)
		return nil
	}

	eier, err := s.hentSak(ctx, sakID)
	if err != nil {
		return err
	}
	navn := ""
	if s.personer != nil {
		person, err := s.personer.HentPerson(ctx, eier.Fnr)
		if err != nil {
			return fmt.Errorf("personoppslag: %w", err)
		}
		navn = person.Navn
	}

	dokumentID, err := s.dokumenter.SendBrev(ctx, &client.BrevRequest{
		Saksnummer: b.Saksnummer,
		Fnr:        eier.Fnr,
		Tittel:     "Vedtak om tilbakekreving",
		Fritekst:   brevtekst(navn, b),
	})
	if err != nil {
		return fmt.Errorf("send brev: %w", err)
	}
	s.log.Info("vedtaksbrev sendt", "behandlingId", b.ID, "dokumentId", dokumentID)
	return nil
}

func brevtekst(navn string, b *tilbakekreving.Behandling) string {
	if navn == "" {
		return b.Vedtaksbrev
	}
	return navn + "\n\n" + b.Vedtaksbrev
}

func (s *Sweeper) hentSak(ctx context.Context, sakID uuid.UUID) (*sak.Sak, error) {
	hendelser, err := s.store.HendelserSiden(ctx, sakID, model.RootVersjon)
	if err != nil {
		return nil, err
	}
	if len(hendelser) == 0 {
		return nil, store.ErrSakNotFound
	}
	return sak.Fold(sakID, hendelser)
}

func (s *Sweeper) behandling(ctx context.Context, sakID, behandlingID uuid.UUID) (*tilbakekreving.Behandling, error) {
	svc := tilbakekreving.NewService(s.store, nil, s.simulering, s.clock, s.log)
	return svc.Hent(ctx, sakID, behandlingID)
}

// Scheduler runs the sweeps on an interval.
type Scheduler struct {
	sweeper  *Sweeper
	interval time.Duration
	log      *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that runs all sweeps at the given interval.
func NewScheduler(sweeper *Sweeper, interval time.Duration, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{sweeper: sweeper, interval: interval, log: log}
}

// Start begins periodic sweeping. It runs one pass immediately, then on each
// tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current pass to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.sweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Scheduler) sweepOnce(ctx context.Context) {
	for name, sweep := range map[string]func(context.Context) error{
		"opprett-oppgaver":      s.sweeper.OpprettOppgaver,
		"lukk-oppgaver":         s.sweeper.LukkOppgaver,
		"send-vedtaksbrev":      s.sweeper.SendVedtaksbrev,
		"send-forhaandsvarsler": s.sweeper.SendForhaandsvarsler,
	} {
		if err := sweep(ctx); err != nil {
			s.log.Error("sweep failed", "sweep", name, "error", err)
		}
	}
}
