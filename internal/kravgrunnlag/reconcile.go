package kravgrunnlag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/groblegark/sakd/internal/model"
	"github.com/groblegark/sakd/internal/sak"
	"github.com/groblegark/sakd/internal/store"
)

// MottattKravgrunnlagData is the payload of a MOTTATT_KRAVGRUNNLAG hendelse.
// ErKravgrunnlagUtdatert is set when a utbetaling issued after the
// kravgrunnlag's kontrollfelt time covers one of its months, meaning the
// amounts no longer reflect the live payment state.
type MottattKravgrunnlagData struct {
	Saksnummer             int64              `json:"saksnummer"`
	RaattKravgrunnlagID    int64              `json:"raattKravgrunnlagId"`
	ErKravgrunnlagUtdatert bool               `json:"erKravgrunnlagUtdatert"`
	Kravgrunnlag           model.Kravgrunnlag `json:"kravgrunnlag"`
}

// StatusendringData is the payload of a MOTTATT_KRAVGRUNNLAG_STATUSENDRING
// hendelse. It supersedes the hendelse named by TidligereHendelseID with a new
// status only; the monetary rows are unchanged.
type StatusendringData struct {
	Saksnummer          int64                    `json:"saksnummer"`
	RaattKravgrunnlagID int64                    `json:"raattKravgrunnlagId"`
	EksternVedtakID     string                   `json:"eksternVedtakId"`
	Status              model.KravgrunnlagStatus `json:"status"`
}

// Mottak receives claim-basis payloads from the intake queue and reconciles
// them onto sak streams. Every payload is retained verbatim first; parse and
// matching failures route the payload to manual follow-up instead of failing
// the intake.
type Mottak struct {
	store store.Store
	clock func() time.Time
	log   *slog.Logger
}

// NewMottak creates a Mottak service. clock may be nil, in which case time.Now
// is used.
func NewMottak(st store.Store, clock func() time.Time, log *slog.Logger) *Mottak {
	if clock == nil {
		clock = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Mottak{store: st, clock: clock, log: log}
}

// Motta stores, parses and reconciles one intake payload. Malformed or
// unmatched payloads are flagged for manual follow-up and reported as handled;
// only infrastructure failures (and append races, which the caller retries)
// surface as errors.
func (m *Mottak) Motta(ctx context.Context, melding string) error {
	raatt, err := m.store.LagreRaattKravgrunnlag(ctx, melding, model.Tidspunkt(m.clock()))
	if err != nil {
		return fmt.Errorf("lagre raatt kravgrunnlag: %w", err)
	}

	parsed, err := Parse(melding)
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		m.log.Warn("kravgrunnlagmelding kunne ikke tolkes",
			"raattKravgrunnlagId", raatt.ID, "error", err)
		return m.store.MarkerTilManuellOppfoelging(ctx, raatt.ID, err.Error())
	}
	if err != nil {
		return err
	}

	switch melding := parsed.(type) {
	case Kravgrunnlagmelding:
		return m.mottaKravgrunnlag(ctx, raatt.ID, melding.Kravgrunnlag)
	case Statusendringsmelding:
		return m.mottaStatusendring(ctx, raatt.ID, melding)
	default:
		return fmt.Errorf("unhandled melding type %T", parsed)
	}
}

func (m *Mottak) mottaKravgrunnlag(ctx context.Context, raattID int64, k model.Kravgrunnlag) error {
	sakID, err := m.store.SakIDForSaksnummer(ctx, k.Saksnummer)
	if errors.Is(err, store.ErrSakNotFound) {
		m.log.Warn("kravgrunnlag uten kjent sak",
			"saksnummer", k.Saksnummer, "eksternKravgrunnlagId", k.EksternKravgrunnlagID)
		return m.store.MarkerTilManuellOppfoelging(ctx, raattID,
			fmt.Sprintf("ingen sak for saksnummer %d", k.Saksnummer))
	}
	if err != nil {
		return err
	}

	return m.store.RunInTransaction(ctx, func(tx store.Store) error {
		eksisterende, err := tx.HendelserForSakOgType(ctx, sakID, model.TypeKravgrunnlag)
		if err != nil {
			return err
		}
		for _, h := range eksisterende {
			var data MottattKravgrunnlagData
			if err := json.Unmarshal(h.Data, &data); err != nil {
				return fmt.Errorf("unmarshal kravgrunnlag hendelse %s: %w", h.HendelseID, err)
			}
			if data.Kravgrunnlag.EksternKravgrunnlagID == k.EksternKravgrunnlagID &&
				data.Kravgrunnlag.EksternKontrollfelt == k.EksternKontrollfelt {
				m.log.Info("kravgrunnlag allerede mottatt, hopper over",
					"sakId", sakID, "eksternKravgrunnlagId", k.EksternKravgrunnlagID)
				return nil
			}
		}

		utdatert, err := erUtdatert(ctx, tx, sakID, k)
		if err != nil {
			return err
		}

		versjon, err := tx.SisteVersjon(ctx, sakID)
		if err != nil {
			return err
		}
		h, err := sak.NyHendelse(sakID, &sakID, versjon+1, model.TypeKravgrunnlag, m.clock(), "",
			model.Metadata{Ident: k.Behandler},
			MottattKravgrunnlagData{
				Saksnummer:             k.Saksnummer,
				RaattKravgrunnlagID:    raattID,
				ErKravgrunnlagUtdatert: utdatert,
				Kravgrunnlag:           k,
			})
		if err != nil {
			return err
		}
		if err := tx.AppendHendelse(ctx, versjon, h); err != nil {
			return err
		}
		m.log.Info("kravgrunnlag mottatt",
			"sakId", sakID, "eksternKravgrunnlagId", k.EksternKravgrunnlagID,
			"status", k.Status, "utdatert", utdatert)
		return nil
	})
}

// erUtdatert reports whether a utbetaling recorded after the kravgrunnlag was
// produced in the settlement system touches one of its months. A later payment
// over a disjoint periode leaves the kravgrunnlag current.
func erUtdatert(ctx context.Context, st store.Store, sakID uuid.UUID, k model.Kravgrunnlag) (bool, error) {
	utbetalinger, err := st.HendelserForSakOgType(ctx, sakID, model.TypeNyUtbetaling)
	if err != nil {
		return false, err
	}
	for _, h := range utbetalinger {
		if !h.Hendelsestidspunkt.After(k.EksternTidspunkt) {
			continue
		}
		var data sak.NyUtbetalingData
		if err := json.Unmarshal(h.Data, &data); err != nil {
			return false, fmt.Errorf("unmarshal utbetaling hendelse %s: %w", h.HendelseID, err)
		}
		for _, periode := range k.Perioder() {
			if data.Periode.Overlapper(periode) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *Mottak) mottaStatusendring(ctx context.Context, raattID int64, melding Statusendringsmelding) error {
	sakID, err := m.store.SakIDForSaksnummer(ctx, melding.Saksnummer)
	if errors.Is(err, store.ErrSakNotFound) {
		m.log.Warn("statusendring uten kjent sak",
			"saksnummer", melding.Saksnummer, "eksternVedtakId", melding.EksternVedtakID)
		return m.store.MarkerTilManuellOppfoelging(ctx, raattID,
			fmt.Sprintf("ingen sak for saksnummer %d", melding.Saksnummer))
	}
	if err != nil {
		return err
	}

	return m.store.RunInTransaction(ctx, func(tx store.Store) error {
		forrige, err := sisteHendelseForVedtak(ctx, tx, sakID, melding.EksternVedtakID)
		if err != nil {
			return err
		}
		if forrige == nil {
			m.log.Warn("statusendring uten kjent kravgrunnlag",
				"sakId", sakID, "eksternVedtakId", melding.EksternVedtakID)
			return tx.MarkerTilManuellOppfoelging(ctx, raattID,
				fmt.Sprintf("ingen kravgrunnlag for vedtakId %s", melding.EksternVedtakID))
		}

		// Redelivered status message. The vedtak already carries this status;
		// appending again would fork the supersession chain for nothing.
		gjeldendeStatus, err := statusFor(forrige)
		if err != nil {
			return err
		}
		if gjeldendeStatus == melding.Status {
			m.log.Info("statusendring allerede mottatt, hopper over",
				"sakId", sakID, "eksternVedtakId", melding.EksternVedtakID, "status", melding.Status)
			return nil
		}

		versjon, err := tx.SisteVersjon(ctx, sakID)
		if err != nil {
			return err
		}
		h, err := sak.NyHendelse(sakID, &sakID, versjon+1, model.TypeKravgrunnlagStatus, m.clock(),
			forrige.HendelseID, model.Metadata{},
			StatusendringData{
				Saksnummer:          melding.Saksnummer,
				RaattKravgrunnlagID: raattID,
				EksternVedtakID:     melding.EksternVedtakID,
				Status:              melding.Status,
			})
		if err != nil {
			return err
		}
		if err := tx.AppendHendelse(ctx, versjon, h); err != nil {
			return err
		}
		m.log.Info("kravgrunnlagstatus endret",
			"sakId", sakID, "eksternVedtakId", melding.EksternVedtakID, "status", melding.Status)
		return nil
	})
}

// sisteHendelseForVedtak finds the newest kravgrunnlag- or statusendring-
// hendelse on the sak referencing the given external decision id.
func sisteHendelseForVedtak(ctx context.Context, st store.Store, sakID uuid.UUID, eksternVedtakID string) (*model.Hendelse, error) {
	hendelser, err := st.HendelserForSakOgType(ctx, sakID, model.TypeKravgrunnlag, model.TypeKravgrunnlagStatus)
	if err != nil {
		return nil, err
	}
	var siste *model.Hendelse
	for _, h := range hendelser {
		id, err := eksternVedtakIDFor(h)
		if err != nil {
			return nil, err
		}
		if id == eksternVedtakID {
			siste = h
		}
	}
	return siste, nil
}

// statusFor extracts the kravgrunnlag status a hendelse left the vedtak in.
func statusFor(h *model.Hendelse) (model.KravgrunnlagStatus, error) {
	switch h.Type {
	case model.TypeKravgrunnlag:
		var data MottattKravgrunnlagData
		if err := json.Unmarshal(h.Data, &data); err != nil {
			return "", fmt.Errorf("unmarshal hendelse %s: %w", h.HendelseID, err)
		}
		return data.Kravgrunnlag.Status, nil
	case model.TypeKravgrunnlagStatus:
		var data StatusendringData
		if err := json.Unmarshal(h.Data, &data); err != nil {
			return "", fmt.Errorf("unmarshal hendelse %s: %w", h.HendelseID, err)
		}
		return data.Status, nil
	}
	return "", fmt.Errorf("hendelse %s has no kravgrunnlag status", h.HendelseID)
}

func eksternVedtakIDFor(h *model.Hendelse) (string, error) {
	switch h.Type {
	case model.TypeKravgrunnlag:
		var data MottattKravgrunnlagData
		if err := json.Unmarshal(h.Data, &data); err != nil {
			return "", fmt.Errorf("unmarshal hendelse %s: %w", h.HendelseID, err)
		}
		return data.Kravgrunnlag.EksternVedtakID, nil
	case model.TypeKravgrunnlagStatus:
		var data StatusendringData
		if err := json.Unmarshal(h.Data, &data); err != nil {
			return "", fmt.Errorf("unmarshal hendelse %s: %w", h.HendelseID, err)
		}
		return data.EksternVedtakID, nil
	}
	return "", nil
}

// GjeldendeKravgrunnlag resolves the sak's current kravgrunnlag: the latest
// MOTTATT_KRAVGRUNNLAG hendelse with any later statusendringer folded in.
// Returns the hendelse id the kravgrunnlag was received under, the folded
// kravgrunnlag, and whether it was flagged outdated on receipt.
func GjeldendeKravgrunnlag(ctx context.Context, st store.Store, sakID uuid.UUID) (string, *model.Kravgrunnlag, bool, error) {
	hendelser, err := st.HendelserForSakOgType(ctx, sakID, model.TypeKravgrunnlag, model.TypeKravgrunnlagStatus)
	if err != nil {
		return "", nil, false, err
	}

	var hendelseID string
	var gjeldende *model.Kravgrunnlag
	var utdatert bool
	for _, h := range hendelser {
		switch h.Type {
		case model.TypeKravgrunnlag:
			var data MottattKravgrunnlagData
			if err := json.Unmarshal(h.Data, &data); err != nil {
				return "", nil, false, fmt.Errorf("unmarshal hendelse %s: %w", h.HendelseID, err)
			}
			k := data.Kravgrunnlag
			hendelseID = h.HendelseID
			gjeldende = &k
			utdatert = data.ErKravgrunnlagUtdatert
		case model.TypeKravgrunnlagStatus:
			if gjeldende == nil {
				continue
			}
			var data StatusendringData
			if err := json.Unmarshal(h.Data, &data); err != nil {
				return "", nil, false, fmt.Errorf("unmarshal hendelse %s: %w", h.HendelseID, err)
			}
			if data.EksternVedtakID == gjeldende.EksternVedtakID {
				gjeldende.Status = data.Status
			}
		}
	}
	return hendelseID, gjeldende, utdatert, nil
}
