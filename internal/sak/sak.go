// Package sak manages the sak-level event stream: creating a sak and
// recording utbetalinger against it. A sak's stream also carries the
// kravgrunnlag- and behandling-hendelser appended by other packages; they all
// share the sak's version counter.
package sak

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/groblegark/sakd/internal/idgen"
	"github.com/groblegark/sakd/internal/model"
	"github.com/groblegark/sakd/internal/store"
)

// ErrSakFinnes is returned by OpprettSak when the saksnummer already has a sak.
var ErrSakFinnes = errors.New("sak: saksnummer already registered")

// OpprettetSakData is the payload of an OPPRETTET_SAK hendelse.
type OpprettetSakData struct {
	Saksnummer int64  `json:"saksnummer"`
	Fnr        string `json:"fnr"`
}

// NyUtbetalingData is the payload of a NY_UTBETALING hendelse. Periode is the
// months the payment covers; a kravgrunnlag produced before the hendelse is
// only outdated when one of its grunnlagsperioder overlaps this periode.
type NyUtbetalingData struct {
	Saksnummer   int64         `json:"saksnummer"`
	UtbetalingID string        `json:"utbetalingId"`
	Periode      model.Periode `json:"periode"`
}

// Utbetaling is one payment recorded on the sak, with the months it affects.
type Utbetaling struct {
	ID      string
	Periode model.Periode
}

// Sak is the folded read model of a sak's own hendelser.
type Sak struct {
	ID           uuid.UUID
	Saksnummer   int64
	Fnr          string
	Versjon      int64
	Utbetalinger []Utbetaling
}

// Service exposes the sak-level operations.
type Service struct {
	store store.Store
	clock func() time.Time
	log   *slog.Logger
}

// NewService creates a sak service. clock may be nil, in which case time.Now
// is used.
func NewService(st store.Store, clock func() time.Time, log *slog.Logger) *Service {
	if clock == nil {
		clock = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: st, clock: clock, log: log}
}

// OpprettSak registers a new sak for a saksnummer and returns its id. The
// OPPRETTET_SAK hendelse is the root of the sak's stream.
func (s *Service) OpprettSak(ctx context.Context, saksnummer int64, fnr string, meta model.Metadata) (uuid.UUID, error) {
	if _, err := s.store.SakIDForSaksnummer(ctx, saksnummer); err == nil {
		return uuid.Nil, ErrSakFinnes
	} else if !errors.Is(err, store.ErrSakNotFound) {
		return uuid.Nil, err
	}

	sakID := uuid.New()
	h, err := NyHendelse(sakID, &sakID, model.RootVersjon+1, model.TypeSakOpprettet, s.clock(), "", meta,
		OpprettetSakData{Saksnummer: saksnummer, Fnr: fnr})
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.store.AppendHendelse(ctx, model.RootVersjon, h); err != nil {
		return uuid.Nil, err
	}
	s.log.Info("sak opprettet", "sakId", sakID, "saksnummer", saksnummer)
	return sakID, nil
}

// NyUtbetaling records that the originating system issued a new payment on
// the sak, covering periode. Kravgrunnlag produced before this moment whose
// months overlap periode are considered outdated.
func (s *Service) NyUtbetaling(ctx context.Context, sakID uuid.UUID, utbetalingID string, periode model.Periode, meta model.Metadata) error {
	sak, err := s.HentSak(ctx, sakID)
	if err != nil {
		return err
	}
	h, err := NyHendelse(sakID, &sakID, sak.Versjon+1, model.TypeNyUtbetaling, s.clock(), "", meta,
		NyUtbetalingData{Saksnummer: sak.Saksnummer, UtbetalingID: utbetalingID, Periode: periode})
	if err != nil {
		return err
	}
	if err := s.store.AppendHendelse(ctx, sak.Versjon, h); err != nil {
		return err
	}
	s.log.Info("ny utbetaling registrert", "sakId", sakID, "utbetalingId", utbetalingID)
	return nil
}

// HentSak folds the sak read model from the stream.
func (s *Service) HentSak(ctx context.Context, sakID uuid.UUID) (*Sak, error) {
	hendelser, err := s.store.HendelserSiden(ctx, sakID, model.RootVersjon)
	if err != nil {
		return nil, err
	}
	if len(hendelser) == 0 {
		return nil, store.ErrSakNotFound
	}
	return Fold(sakID, hendelser)
}

// Fold replays a sak's hendelser into the read model. Hendelser of types this
// package does not own still advance the version counter.
func Fold(sakID uuid.UUID, hendelser []*model.Hendelse) (*Sak, error) {
	sak := &Sak{ID: sakID}
	for _, h := range hendelser {
		switch h.Type {
		case model.TypeSakOpprettet:
			var data OpprettetSakData
			if err := json.Unmarshal(h.Data, &data); err != nil {
				return nil, fmt.Errorf("fold sak %s: %w", sakID, err)
			}
			sak.Saksnummer = data.Saksnummer
			sak.Fnr = data.Fnr
		case model.TypeNyUtbetaling:
			var data NyUtbetalingData
			if err := json.Unmarshal(h.Data, &data); err != nil {
				return nil, fmt.Errorf("fold sak %s: %w", sakID, err)
			}
			sak.Utbetalinger = append(sak.Utbetalinger, Utbetaling{ID: data.UtbetalingID, Periode: data.Periode})
		}
		sak.Versjon = h.Versjon
	}
	return sak, nil
}

// NyHendelse builds a hendelse with a fresh id and a normalized timestamp.
// Shared by the packages that append to sak streams.
func NyHendelse(entitetID uuid.UUID, sakID *uuid.UUID, versjon int64, typ model.Hendelsestype,
	tidspunkt time.Time, tidligereHendelseID string, meta model.Metadata, data any) (*model.Hendelse, error) {

	hendelseID, err := idgen.Generate()
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal hendelse payload: %w", err)
	}
	return &model.Hendelse{
		HendelseID:          hendelseID,
		EntitetID:           entitetID,
		SakID:               sakID,
		Versjon:             versjon,
		Type:                typ,
		Hendelsestidspunkt:  model.Tidspunkt(tidspunkt),
		TidligereHendelseID: tidligereHendelseID,
		Metadata:            meta,
		Data:                payload,
	}, nil
}
