// Package model holds the persisted domain records: hendelser (immutable,
// versioned facts on a sak's event stream), kravgrunnlag (claim bases received
// from the settlement system) and the vurderinger a case worker attaches to
// them.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Hendelsestype names the kind of fact a hendelse records.
type Hendelsestype string

// Sak-level hendelser.
const (
	TypeSakOpprettet  Hendelsestype = "OPPRETTET_SAK"
	TypeNyUtbetaling  Hendelsestype = "NY_UTBETALING"
	TypeKravgrunnlag  Hendelsestype = "MOTTATT_KRAVGRUNNLAG"
	TypeKravgrunnlagStatus Hendelsestype = "MOTTATT_KRAVGRUNNLAG_STATUSENDRING"
)

// Tilbakekrevingsbehandling-hendelser. These share the owning sak's version
// counter with the sak-level hendelser above.
const (
	TypeBehandlingOpprettet     Hendelsestype = "OPPRETTET_TILBAKEKREVINGSBEHANDLING"
	TypeForhaandsvarslet        Hendelsestype = "FORHÅNDSVARSLET_TILBAKEKREVINGSBEHANDLING"
	TypeBehandlingVurdert       Hendelsestype = "VURDERT_TILBAKEKREVINGSBEHANDLING"
	TypeOppdatertVedtaksbrev    Hendelsestype = "OPPDATERT_VEDTAKSBREV_TILBAKEKREVINGSBEHANDLING"
	TypeTilAttestering          Hendelsestype = "TILBAKEKREVINGSBEHANDLING_TIL_ATTESTERING"
	TypeBehandlingUnderkjent    Hendelsestype = "UNDERKJENT_TILBAKEKREVINGSBEHANDLING"
	TypeBehandlingIverksatt     Hendelsestype = "IVERKSATT_TILBAKEKREVINGSBEHANDLING"
	TypeBehandlingAvbrutt       Hendelsestype = "AVBRUTT_TILBAKEKREVINGSBEHANDLING"
	TypeOppdatertKravgrunnlag   Hendelsestype = "OPPDATERT_KRAVGRUNNLAG"
	TypeBehandlingNotat         Hendelsestype = "NOTAT_TILBAKEKREVINGSBEHANDLING"
)

// String returns the string representation of the hendelsestype.
func (t Hendelsestype) String() string {
	return string(t)
}

// ErTerminal reports whether a behandling-hendelse of this type closes the
// behandling it belongs to.
func (t Hendelsestype) ErTerminal() bool {
	return t == TypeBehandlingIverksatt || t == TypeBehandlingAvbrutt
}

// Metadata carries the ambient request context a hendelse was recorded under.
// It is threaded explicitly through every call; there is no thread-local state.
type Metadata struct {
	Ident         string   `json:"ident,omitempty"`
	CorrelationID string   `json:"correlationId,omitempty"`
	Brukerroller  []string `json:"brukerroller,omitempty"`
}

// Hendelse is an immutable fact on an entity's event stream. (EntitetID,
// Versjon) is unique; versions on one stream are exactly 1..N with no gaps.
// Hendelser are never mutated or deleted, only appended and optionally
// superseded by a later hendelse referencing them via TidligereHendelseID.
type Hendelse struct {
	HendelseID         string          `json:"hendelseId"`
	EntitetID          uuid.UUID       `json:"entitetId"`
	SakID              *uuid.UUID      `json:"sakId,omitempty"`
	Versjon            int64           `json:"versjon"`
	Type               Hendelsestype   `json:"type"`
	Hendelsestidspunkt time.Time       `json:"hendelsestidspunkt"`
	TidligereHendelseID string         `json:"tidligereHendelseId,omitempty"`
	Metadata           Metadata        `json:"metadata"`
	Data               json.RawMessage `json:"data"`
}

// RootVersjon is the expected prior version when appending to a new stream.
const RootVersjon int64 = 0

// Validate checks the structural invariants of a hendelse before persistence.
func (h *Hendelse) Validate() error {
	if h.HendelseID == "" {
		return errors.New("hendelse: missing hendelseId")
	}
	if h.EntitetID == uuid.Nil {
		return errors.New("hendelse: missing entitetId")
	}
	if h.Versjon < 1 {
		return fmt.Errorf("hendelse: versjon must be positive, got %d", h.Versjon)
	}
	if h.Type == "" {
		return errors.New("hendelse: missing type")
	}
	if h.Hendelsestidspunkt.IsZero() {
		return errors.New("hendelse: missing hendelsestidspunkt")
	}
	return nil
}

// Tidspunkt truncates t to the microsecond precision the hendelse log stores,
// in UTC. Domain time is always recorded through this helper so replayed and
// freshly computed values compare equal.
func Tidspunkt(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
