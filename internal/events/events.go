// Package events carries the NATS plumbing: the intake subject the settlement
// system's kravgrunnlag feed arrives on, and the notification subjects this
// service publishes when hendelser land.
package events

import (
	"context"

	"github.com/google/uuid"

	"github.com/groblegark/sakd/internal/model"
)

// Subjects. The intake subject carries raw payloads straight off the feed;
// the sakd.* subjects carry JSON-encoded notification events.
const (
	TopicKravgrunnlagIntake = "tilbakekreving.kravgrunnlag.intake"

	TopicHendelseLagret      = "sakd.hendelse.lagret"
	TopicBehandlingIverksatt = "sakd.behandling.iverksatt"
	TopicBehandlingAvbrutt   = "sakd.behandling.avbrutt"
)

// HendelseLagret notifies that a hendelse was appended to a sak's stream.
type HendelseLagret struct {
	HendelseID string             `json:"hendelseId"`
	SakID      uuid.UUID          `json:"sakId"`
	Type       model.Hendelsestype `json:"type"`
	Versjon    int64              `json:"versjon"`
}

// BehandlingAvgjort notifies that a behandling reached a terminal state.
type BehandlingAvgjort struct {
	SakID        uuid.UUID `json:"sakId"`
	BehandlingID uuid.UUID `json:"behandlingId"`
	Saksnummer   int64     `json:"saksnummer"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
