// Package tilbakekreving implements the recovery-case workflow on top of the
// sak event stream: a behandling is opened against the sak's current
// kravgrunnlag, assessed month by month, sent to a second pair of eyes and
// either decided or sent back. Behandling-hendelser share the owning sak's
// version counter, so two case workers cannot race each other unnoticed.
package tilbakekreving

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/groblegark/sakd/internal/model"
)

// Status names a lifecycle state, derived entirely from the hendelser. The
// state itself is a Tilstand value; Status is the stable string form used in
// listings and logs.
type Status string

const (
	StatusOpprettetUtenKravgrunnlag Status = "OPPRETTET_UTEN_KRAVGRUNNLAG"
	StatusOpprettet                 Status = "OPPRETTET"
	StatusForhaandsvarslet          Status = "FORHÅNDSVARSLET"
	StatusVurdert                   Status = "VURDERT"
	StatusVedtaksbrev               Status = "VEDTAKSBREV"
	StatusTilAttestering            Status = "TIL_ATTESTERING"
	StatusUnderkjent                Status = "UNDERKJENT"
	StatusIverksatt                 Status = "IVERKSATT"
	StatusAvbrutt                   Status = "AVBRUTT"
)

// Underkjennelsesgrunn is the attestant's reason for sending a behandling back.
type Underkjennelsesgrunn string

const (
	GrunnIkkeGrunnlag            Underkjennelsesgrunn = "IKKE_GRUNNLAG_FOR_TILBAKEKREVING"
	GrunnMangelfullDokumentasjon Underkjennelsesgrunn = "MANGELFULL_DOKUMENTASJON"
	GrunnVedtaksbrevet           Underkjennelsesgrunn = "VEDTAKSBREVET_MÅ_ENDRES"
	GrunnAndreForhold            Underkjennelsesgrunn = "ANDRE_FORHOLD"
)

// IsValid reports whether the grunn is one of the known values.
func (g Underkjennelsesgrunn) IsValid() bool {
	switch g {
	case GrunnIkkeGrunnlag, GrunnMangelfullDokumentasjon, GrunnVedtaksbrevet, GrunnAndreForhold:
		return true
	}
	return false
}

// Attestering is one pass through the four-eyes check, approved or not.
type Attestering struct {
	Attestant string               `json:"attestant"`
	Godkjent  bool                 `json:"godkjent"`
	Grunn     Underkjennelsesgrunn `json:"grunn,omitempty"`
	Kommentar string               `json:"kommentar,omitempty"`
	Tidspunkt time.Time            `json:"tidspunkt"`
}

// Behandling is the folded read model of one tilbakekrevingsbehandling.
type Behandling struct {
	ID                     uuid.UUID
	SakID                  uuid.UUID
	Saksnummer             int64
	Tilstand               Tilstand
	OpprettetAv            string
	Opprettet              time.Time
	KravgrunnlagHendelseID string
	Kravgrunnlag           model.Kravgrunnlag
	ErKravgrunnlagUtdatert bool
	Vurderinger            model.Vurderinger
	Forhaandsvarsler       []string
	Vedtaksbrev            string
	Notat                  string
	SendtTilAttesteringAv  string
	Attesteringer          []Attestering
	SisteHendelseID        string
}

// Status is the string form of the current state.
func (b *Behandling) Status() Status {
	return b.Tilstand.Status()
}

// ErAapen reports whether the behandling still accepts changes.
func (b *Behandling) ErAapen() bool {
	return b.Tilstand.ErAapen()
}

// Brevvalg derives the decision-letter variant from the assessments.
func (b *Behandling) Brevvalg() model.Brevvalg {
	return b.Vurderinger.UtledBrevvalg()
}

// Behandling-hendelse payloads. Every payload carries behandlingId and
// saksnummer so cross-case projections can group on them without replay.

type OpprettetData struct {
	BehandlingID           uuid.UUID          `json:"behandlingId"`
	Saksnummer             int64              `json:"saksnummer"`
	OpprettetAv            string             `json:"opprettetAv"`
	KravgrunnlagHendelseID string             `json:"kravgrunnlagHendelseId"`
	Kravgrunnlag           model.Kravgrunnlag `json:"kravgrunnlag"`
	ErKravgrunnlagUtdatert bool               `json:"erKravgrunnlagUtdatert"`
}

type ForhaandsvarsletData struct {
	BehandlingID uuid.UUID `json:"behandlingId"`
	Saksnummer   int64     `json:"saksnummer"`
	Fritekst     string    `json:"fritekst"`
	DokumentID   string    `json:"dokumentId,omitempty"`
}

type VurdertData struct {
	BehandlingID uuid.UUID          `json:"behandlingId"`
	Saksnummer   int64              `json:"saksnummer"`
	Vurderinger  model.Vurderinger  `json:"vurderinger"`
}

type VedtaksbrevData struct {
	BehandlingID uuid.UUID `json:"behandlingId"`
	Saksnummer   int64     `json:"saksnummer"`
	Fritekst     string    `json:"fritekst"`
}

type TilAttesteringData struct {
	BehandlingID uuid.UUID `json:"behandlingId"`
	Saksnummer   int64     `json:"saksnummer"`
	SendtAv      string    `json:"sendtAv"`
}

type UnderkjentData struct {
	BehandlingID uuid.UUID            `json:"behandlingId"`
	Saksnummer   int64                `json:"saksnummer"`
	Attestant    string               `json:"attestant"`
	Grunn        Underkjennelsesgrunn `json:"grunn"`
	Kommentar    string               `json:"kommentar"`
}

type IverksattData struct {
	BehandlingID uuid.UUID `json:"behandlingId"`
	Saksnummer   int64     `json:"saksnummer"`
	Attestant    string    `json:"attestant"`
}

type AvbruttData struct {
	BehandlingID uuid.UUID `json:"behandlingId"`
	Saksnummer   int64     `json:"saksnummer"`
	AvbruttAv    string    `json:"avbruttAv"`
	Begrunnelse  string    `json:"begrunnelse,omitempty"`
}

type OppdatertKravgrunnlagData struct {
	BehandlingID           uuid.UUID          `json:"behandlingId"`
	Saksnummer             int64              `json:"saksnummer"`
	KravgrunnlagHendelseID string             `json:"kravgrunnlagHendelseId"`
	Kravgrunnlag           model.Kravgrunnlag `json:"kravgrunnlag"`
}

type NotatData struct {
	BehandlingID uuid.UUID `json:"behandlingId"`
	Saksnummer   int64     `json:"saksnummer"`
	Notat        string    `json:"notat"`
}

// behandlingstyper is the full set of hendelsestyper folded into a Behandling.
var behandlingstyper = []model.Hendelsestype{
	model.TypeBehandlingOpprettet,
	model.TypeForhaandsvarslet,
	model.TypeBehandlingVurdert,
	model.TypeOppdatertVedtaksbrev,
	model.TypeTilAttestering,
	model.TypeBehandlingUnderkjent,
	model.TypeBehandlingIverksatt,
	model.TypeBehandlingAvbrutt,
	model.TypeOppdatertKravgrunnlag,
	model.TypeBehandlingNotat,
}

// behandlingIDFor extracts the behandlingId a behandling-hendelse belongs to.
func behandlingIDFor(h *model.Hendelse) (uuid.UUID, error) {
	var probe struct {
		BehandlingID uuid.UUID `json:"behandlingId"`
	}
	if err := json.Unmarshal(h.Data, &probe); err != nil {
		return uuid.Nil, fmt.Errorf("hendelse %s: %w", h.HendelseID, err)
	}
	return probe.BehandlingID, nil
}

// Fold replays behandling-hendelser into the read model. The input must be the
// hendelser of one behandling, in version order.
func Fold(hendelser []*model.Hendelse) (*Behandling, error) {
	if len(hendelser) == 0 {
		return nil, ErrBehandlingNotFound
	}
	b := &Behandling{}
	for _, h := range hendelser {
		if err := b.apply(h); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *Behandling) apply(h *model.Hendelse) error {
	unmarshal := func(v any) error {
		if err := json.Unmarshal(h.Data, v); err != nil {
			return fmt.Errorf("fold behandling: hendelse %s: %w", h.HendelseID, err)
		}
		return nil
	}

	switch h.Type {
	case model.TypeBehandlingOpprettet:
		var data OpprettetData
		if err := unmarshal(&data); err != nil {
			return err
		}
		b.ID = data.BehandlingID
		if h.SakID != nil {
			b.SakID = *h.SakID
		}
		b.Saksnummer = data.Saksnummer
		b.OpprettetAv = data.OpprettetAv
		b.Opprettet = h.Hendelsestidspunkt
		b.KravgrunnlagHendelseID = data.KravgrunnlagHendelseID
		b.Kravgrunnlag = data.Kravgrunnlag
		b.ErKravgrunnlagUtdatert = data.ErKravgrunnlagUtdatert
		if data.KravgrunnlagHendelseID == "" {
			b.Tilstand = OpprettetUtenKravgrunnlag{}
		} else {
			b.Tilstand = Opprettet{}
		}

	case model.TypeForhaandsvarslet:
		var data ForhaandsvarsletData
		if err := unmarshal(&data); err != nil {
			return err
		}
		b.Forhaandsvarsler = append(b.Forhaandsvarsler, data.Fritekst)
		b.Tilstand = Forhaandsvarslet{}

	case model.TypeBehandlingVurdert:
		var data VurdertData
		if err := unmarshal(&data); err != nil {
			return err
		}
		b.Vurderinger = data.Vurderinger
		b.Tilstand = Vurdert{}

	case model.TypeOppdatertVedtaksbrev:
		var data VedtaksbrevData
		if err := unmarshal(&data); err != nil {
			return err
		}
		b.Vedtaksbrev = data.Fritekst
		b.Tilstand = VedtaksbrevSkrevet{}

	case model.TypeTilAttestering:
		var data TilAttesteringData
		if err := unmarshal(&data); err != nil {
			return err
		}
		b.SendtTilAttesteringAv = data.SendtAv
		b.Tilstand = TilAttestering{}

	case model.TypeBehandlingUnderkjent:
		var data UnderkjentData
		if err := unmarshal(&data); err != nil {
			return err
		}
		b.Attesteringer = append(b.Attesteringer, Attestering{
			Attestant: data.Attestant,
			Godkjent:  false,
			Grunn:     data.Grunn,
			Kommentar: data.Kommentar,
			Tidspunkt: h.Hendelsestidspunkt,
		})
		b.Tilstand = Underkjent{}

	case model.TypeBehandlingIverksatt:
		var data IverksattData
		if err := unmarshal(&data); err != nil {
			return err
		}
		b.Attesteringer = append(b.Attesteringer, Attestering{
			Attestant: data.Attestant,
			Godkjent:  true,
			Tidspunkt: h.Hendelsestidspunkt,
		})
		b.Tilstand = Iverksatt{}

	case model.TypeBehandlingAvbrutt:
		b.Tilstand = Avbrutt{}

	case model.TypeOppdatertKravgrunnlag:
		var data OppdatertKravgrunnlagData
		if err := unmarshal(&data); err != nil {
			return err
		}
		b.KravgrunnlagHendelseID = data.KravgrunnlagHendelseID
		b.Kravgrunnlag = data.Kravgrunnlag
		b.ErKravgrunnlagUtdatert = false
		// Assessments were made against the old amounts and must be redone.
		b.Vurderinger = nil
		b.Tilstand = Opprettet{}

	case model.TypeBehandlingNotat:
		var data NotatData
		if err := unmarshal(&data); err != nil {
			return err
		}
		b.Notat = data.Notat

	default:
		return fmt.Errorf("fold behandling: unexpected hendelsestype %s", h.Type)
	}

	b.SisteHendelseID = h.HendelseID
	return nil
}
