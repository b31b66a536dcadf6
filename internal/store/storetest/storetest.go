// Package storetest provides an in-memory store.Store for tests. It enforces
// the same (entitetId, versjon) uniqueness as the postgres implementation, so
// optimistic-concurrency behaviour can be exercised without a database.
package storetest

import (
	"bytes"
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/groblegark/sakd/internal/model"
	"github.com/groblegark/sakd/internal/store"
)

type offsetKey struct {
	konsument  store.KonsumentID
	hendelseID string
}

// Store is an in-memory store.Store.
type Store struct {
	mu         sync.Mutex
	hendelser  []*model.Hendelse
	byID       map[string]*model.Hendelse
	offsets    map[offsetKey]bool
	raatt      []*model.RaattKravgrunnlag
	oppfolging map[int64]string
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		byID:       make(map[string]*model.Hendelse),
		offsets:    make(map[offsetKey]bool),
		oppfolging: make(map[int64]string),
	}
}

func (s *Store) AppendHendelse(ctx context.Context, expectedPriorVersion int64, h *model.Hendelse) error {
	if err := h.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var max int64
	for _, e := range s.hendelser {
		if e.EntitetID == h.EntitetID && e.Versjon > max {
			max = e.Versjon
		}
	}
	if max != expectedPriorVersion || h.Versjon != expectedPriorVersion+1 {
		return store.ErrVersjonskonflikt
	}
	cp := *h
	s.hendelser = append(s.hendelser, &cp)
	s.byID[cp.HendelseID] = &cp
	return nil
}

func (s *Store) HendelserSiden(ctx context.Context, entitetID uuid.UUID, sinceVersjon int64) ([]*model.Hendelse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Hendelse
	for _, h := range s.hendelser {
		if h.EntitetID == entitetID && h.Versjon > sinceVersjon {
			out = append(out, h)
		}
	}
	sortByVersjon(out)
	return out, nil
}

func (s *Store) HendelserForSakOgType(ctx context.Context, sakID uuid.UUID, typer ...model.Hendelsestype) ([]*model.Hendelse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[model.Hendelsestype]bool, len(typer))
	for _, t := range typer {
		want[t] = true
	}
	var out []*model.Hendelse
	for _, h := range s.hendelser {
		if h.SakID != nil && *h.SakID == sakID && want[h.Type] {
			out = append(out, h)
		}
	}
	sortByVersjon(out)
	return out, nil
}

func (s *Store) HentHendelse(ctx context.Context, hendelseID string) (*model.Hendelse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.byID[hendelseID]
	if !ok {
		return nil, store.ErrHendelseNotFound
	}
	return h, nil
}

func (s *Store) SisteVersjon(ctx context.Context, entitetID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max int64 = model.RootVersjon
	for _, h := range s.hendelser {
		if h.EntitetID == entitetID && h.Versjon > max {
			max = h.Versjon
		}
	}
	return max, nil
}

func (s *Store) AlleHendelser(ctx context.Context) ([]*model.Hendelse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Hendelse, len(s.hendelser))
	copy(out, s.hendelser)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].EntitetID != out[j].EntitetID {
			return out[i].EntitetID.String() < out[j].EntitetID.String()
		}
		return out[i].Versjon < out[j].Versjon
	})
	return out, nil
}

func (s *Store) SakIDForSaksnummer(ctx context.Context, saksnummer int64) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := []byte(`"saksnummer":` + strconv.FormatInt(saksnummer, 10))
	for _, h := range s.hendelser {
		if h.Type == model.TypeSakOpprettet && bytes.Contains(h.Data, want) {
			return h.EntitetID, nil
		}
	}
	return uuid.Nil, store.ErrSakNotFound
}

func (s *Store) RecordProcessed(ctx context.Context, konsumentID store.KonsumentID, hendelseIDer ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range hendelseIDer {
		s.offsets[offsetKey{konsumentID, id}] = true
	}
	return nil
}

func (s *Store) FindOutstandingPerSak(ctx context.Context, konsumentID store.KonsumentID, hendelsestype model.Hendelsestype, limit int) (map[uuid.UUID][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID][]string)
	n := 0
	for _, h := range s.sortedByVersjonLocked() {
		if n >= limit {
			break
		}
		if h.Type != hendelsestype || h.SakID == nil {
			continue
		}
		if s.offsets[offsetKey{konsumentID, h.HendelseID}] {
			continue
		}
		out[*h.SakID] = append(out[*h.SakID], h.HendelseID)
		n++
	}
	return out, nil
}

func (s *Store) FindOutstanding(ctx context.Context, konsumentID store.KonsumentID, hendelsestype model.Hendelsestype, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, h := range s.sortedByVersjonLocked() {
		if len(out) >= limit {
			break
		}
		if h.Type != hendelsestype {
			continue
		}
		if s.offsets[offsetKey{konsumentID, h.HendelseID}] {
			continue
		}
		out = append(out, h.HendelseID)
	}
	return out, nil
}

func (s *Store) LagreRaattKravgrunnlag(ctx context.Context, melding string, mottatt time.Time) (*model.RaattKravgrunnlag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &model.RaattKravgrunnlag{
		ID:      int64(len(s.raatt) + 1),
		Melding: melding,
		Mottatt: mottatt,
	}
	s.raatt = append(s.raatt, r)
	return r, nil
}

func (s *Store) MarkerTilManuellOppfoelging(ctx context.Context, raattID int64, grunn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.oppfolging[raattID] = grunn
	return nil
}

func (s *Store) Behandlingssammendrag(ctx context.Context) ([]*store.Sammendrag, error) {
	// Tests exercise the summary projection against postgres via sqlmock;
	// the in-memory store has no jsonb machinery to emulate.
	return nil, nil
}

// RunInTransaction runs fn against the same store. The in-memory store has no
// rollback; tests asserting atomicity use the postgres layer.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

func (s *Store) Close() error { return nil }

// RaattKravgrunnlag returns the retained raw payloads, for assertions.
func (s *Store) RaattKravgrunnlag() []*model.RaattKravgrunnlag {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.RaattKravgrunnlag, len(s.raatt))
	copy(out, s.raatt)
	return out
}

// ManuellOppfoelging returns the manual follow-up flags, for assertions.
func (s *Store) ManuellOppfoelging() map[int64]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]string, len(s.oppfolging))
	for k, v := range s.oppfolging {
		out[k] = v
	}
	return out
}

func (s *Store) sortedByVersjonLocked() []*model.Hendelse {
	out := make([]*model.Hendelse, len(s.hendelser))
	copy(out, s.hendelser)
	sortByVersjon(out)
	return out
}

func sortByVersjon(hs []*model.Hendelse) {
	sort.SliceStable(hs, func(i, j int) bool { return hs[i].Versjon < hs[j].Versjon })
}
