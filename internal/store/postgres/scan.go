package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/groblegark/sakd/internal/model"
	"github.com/groblegark/sakd/internal/store"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanHendelse scans a single row into a model.Hendelse.
// The row must contain columns in the order defined by hendelseColumns.
func scanHendelse(row scannable) (*model.Hendelse, error) {
	var h model.Hendelse
	var (
		sakID     sql.NullString
		tidligere sql.NullString
		meta      []byte
		data      []byte
	)

	err := row.Scan(
		&h.HendelseID,
		&h.EntitetID,
		&sakID,
		&h.Versjon,
		&h.Type,
		&h.Hendelsestidspunkt,
		&tidligere,
		&meta,
		&data,
	)
	if err != nil {
		return nil, err
	}

	if sakID.Valid {
		id, err := uuid.Parse(sakID.String)
		if err != nil {
			return nil, fmt.Errorf("hendelse %s: bad sak_id: %w", h.HendelseID, err)
		}
		h.SakID = &id
	}
	h.TidligereHendelseID = tidligere.String
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &h.Metadata); err != nil {
			return nil, fmt.Errorf("hendelse %s: bad metadata: %w", h.HendelseID, err)
		}
	}
	if len(data) > 0 {
		h.Data = json.RawMessage(data)
	}
	h.Hendelsestidspunkt = model.Tidspunkt(h.Hendelsestidspunkt)
	return &h, nil
}

func scanHendelser(rows *sql.Rows) ([]*model.Hendelse, error) {
	var out []*model.Hendelse
	for rows.Next() {
		h, err := scanHendelse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanSammendrag(row scannable) (*store.Sammendrag, error) {
	var s store.Sammendrag
	var (
		saksnummer   sql.NullString
		behandlingID string
	)
	if err := row.Scan(&saksnummer, &behandlingID, &s.Status, &s.Startet); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(behandlingID)
	if err != nil {
		return nil, fmt.Errorf("sammendrag: bad behandlingId %q: %w", behandlingID, err)
	}
	s.BehandlingID = id
	if saksnummer.Valid {
		n, err := strconv.ParseInt(saksnummer.String, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("sammendrag: bad saksnummer %q: %w", saksnummer.String, err)
		}
		s.Saksnummer = n
	}
	s.Startet = model.Tidspunkt(s.Startet)
	return &s, nil
}

// nullString converts a string to sql.NullString, treating "" as NULL.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullUUIDPtr converts a *uuid.UUID to a driver-friendly value, nil as NULL.
func nullUUIDPtr(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return *id
}

// jsonbBytes converts a json.RawMessage to []byte for a jsonb column,
// treating empty input as NULL.
func jsonbBytes(m json.RawMessage) []byte {
	if len(m) == 0 {
		return nil
	}
	return []byte(m)
}
