package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/groblegark/sakd/internal/model"
)

// ErrVersjonskonflikt is returned by AppendHendelse when another writer won
// the race for the expected version. The store never retries; re-read,
// recompute and re-append is the caller's responsibility.
var ErrVersjonskonflikt = errors.New("hendelse: version conflict on append")

// ErrHendelseNotFound is returned when a hendelse id does not exist.
var ErrHendelseNotFound = errors.New("hendelse: not found")

// ErrSakNotFound is returned when no sak exists for a saksnummer.
var ErrSakNotFound = errors.New("sak: not found")

// KonsumentID names a downstream processor for offset bookkeeping.
type KonsumentID string

// Sammendrag is one row of the cross-case operational summary: a
// tilbakekrevingsbehandling with its owning sak and current status.
type Sammendrag struct {
	Saksnummer   int64
	BehandlingID uuid.UUID
	Status       model.Hendelsestype
	Startet      time.Time
}

// Store is the persistence interface for the hendelse log and its
// bookkeeping. All reads and writes honour the per-entity version counter;
// RunInTransaction lets a business action co-write hendelser and offsets
// atomically.
type Store interface {
	// Hendelse log
	AppendHendelse(ctx context.Context, expectedPriorVersion int64, h *model.Hendelse) error
	HendelserSiden(ctx context.Context, entitetID uuid.UUID, sinceVersjon int64) ([]*model.Hendelse, error)
	HendelserForSakOgType(ctx context.Context, sakID uuid.UUID, typer ...model.Hendelsestype) ([]*model.Hendelse, error)
	HentHendelse(ctx context.Context, hendelseID string) (*model.Hendelse, error)
	SisteVersjon(ctx context.Context, entitetID uuid.UUID) (int64, error)
	AlleHendelser(ctx context.Context) ([]*model.Hendelse, error)

	// Sak lookup by the originating system's case number.
	SakIDForSaksnummer(ctx context.Context, saksnummer int64) (uuid.UUID, error)

	// Konsument offsets
	RecordProcessed(ctx context.Context, konsumentID KonsumentID, hendelseIDer ...string) error
	FindOutstandingPerSak(ctx context.Context, konsumentID KonsumentID, hendelsestype model.Hendelsestype, limit int) (map[uuid.UUID][]string, error)
	FindOutstanding(ctx context.Context, konsumentID KonsumentID, hendelsestype model.Hendelsestype, limit int) ([]string, error)

	// Raw claim-basis intake; retained verbatim regardless of parse outcome.
	LagreRaattKravgrunnlag(ctx context.Context, melding string, mottatt time.Time) (*model.RaattKravgrunnlag, error)
	MarkerTilManuellOppfoelging(ctx context.Context, raattID int64, grunn string) error

	// Operational summary projections
	Behandlingssammendrag(ctx context.Context) ([]*Sammendrag, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
