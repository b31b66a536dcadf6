package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/groblegark/sakd/internal/model"
	"github.com/groblegark/sakd/internal/store"
)

// hendelseColumns is the column list used for SELECT statements on the
// hendelse table.
const hendelseColumns = `hendelse_id, entitet_id, sak_id, versjon, type,
	hendelsestidspunkt, tidligere_hendelse_id, metadata, data`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// uniqueViolation is the postgres error code raised when the
// (entitet_id, versjon) unique index rejects a racing append.
const uniqueViolation = "23505"

func queryAppendHendelse(ctx context.Context, db executor, expectedPriorVersion int64, h *model.Hendelse) error {
	if err := h.Validate(); err != nil {
		return err
	}
	if h.Versjon != expectedPriorVersion+1 {
		return fmt.Errorf("hendelse %s: versjon %d does not follow expected prior version %d",
			h.HendelseID, h.Versjon, expectedPriorVersion)
	}
	meta, err := json.Marshal(h.Metadata)
	if err != nil {
		return fmt.Errorf("marshal hendelse metadata: %w", err)
	}
	// The insert is conditional on the stream head still being at the expected
	// version. A writer that read a version ahead of the stored head would
	// otherwise punch a gap into the stream; the unique index only catches
	// writers racing for the same slot.
	res, err := db.ExecContext(ctx, `
		INSERT INTO hendelse (
			hendelse_id, entitet_id, sak_id, versjon, type,
			hendelsestidspunkt, tidligere_hendelse_id, metadata, data
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9
		WHERE (SELECT COALESCE(MAX(versjon), 0) FROM hendelse WHERE entitet_id = $2) = $10`,
		h.HendelseID,
		h.EntitetID,
		nullUUIDPtr(h.SakID),
		h.Versjon,
		string(h.Type),
		h.Hendelsestidspunkt,
		nullString(h.TidligereHendelseID),
		meta,
		jsonbBytes(h.Data),
		expectedPriorVersion,
	)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
		return store.ErrVersjonskonflikt
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrVersjonskonflikt
	}
	return nil
}

func queryHendelserSiden(ctx context.Context, db executor, entitetID uuid.UUID, sinceVersjon int64) ([]*model.Hendelse, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+hendelseColumns+` FROM hendelse
		WHERE entitet_id = $1 AND versjon > $2
		ORDER BY versjon ASC`,
		entitetID, sinceVersjon,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHendelser(rows)
}

func queryHendelserForSakOgType(ctx context.Context, db executor, sakID uuid.UUID, typer []model.Hendelsestype) ([]*model.Hendelse, error) {
	names := make([]string, len(typer))
	for i, t := range typer {
		names[i] = string(t)
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+hendelseColumns+` FROM hendelse
		WHERE sak_id = $1 AND type = ANY($2)
		ORDER BY versjon ASC`,
		sakID, pq.Array(names),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHendelser(rows)
}

func queryHentHendelse(ctx context.Context, db executor, hendelseID string) (*model.Hendelse, error) {
	row := db.QueryRowContext(ctx, `SELECT `+hendelseColumns+` FROM hendelse WHERE hendelse_id = $1`, hendelseID)
	h, err := scanHendelse(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrHendelseNotFound
	}
	return h, err
}

func querySisteVersjon(ctx context.Context, db executor, entitetID uuid.UUID) (int64, error) {
	var versjon sql.NullInt64
	err := db.QueryRowContext(ctx,
		`SELECT MAX(versjon) FROM hendelse WHERE entitet_id = $1`, entitetID,
	).Scan(&versjon)
	if err != nil {
		return 0, err
	}
	if !versjon.Valid {
		return model.RootVersjon, nil
	}
	return versjon.Int64, nil
}

func queryAlleHendelser(ctx context.Context, db executor) ([]*model.Hendelse, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+hendelseColumns+` FROM hendelse
		ORDER BY entitet_id, versjon ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHendelser(rows)
}

// querySakIDForSaksnummer resolves the originating system's case number to the
// sak entity. Saksnummer lives in the OPPRETTET_SAK payload.
func querySakIDForSaksnummer(ctx context.Context, db executor, saksnummer int64) (uuid.UUID, error) {
	var sakID uuid.UUID
	err := db.QueryRowContext(ctx, `
		SELECT entitet_id FROM hendelse
		WHERE type = $1 AND data ->> 'saksnummer' = $2
		LIMIT 1`,
		string(model.TypeSakOpprettet), fmt.Sprintf("%d", saksnummer),
	).Scan(&sakID)
	if err == sql.ErrNoRows {
		return uuid.Nil, store.ErrSakNotFound
	}
	return sakID, err
}

func queryRecordProcessed(ctx context.Context, db executor, konsumentID store.KonsumentID, hendelseIDer []string) error {
	for _, id := range hendelseIDer {
		_, err := db.ExecContext(ctx, `
			INSERT INTO hendelse_konsument (konsument_id, hendelsestype, hendelse_id, sak_id)
			SELECT $1, h.type, h.hendelse_id, h.sak_id FROM hendelse h WHERE h.hendelse_id = $2
			ON CONFLICT (konsument_id, hendelsestype, hendelse_id) DO NOTHING`,
			string(konsumentID), id,
		)
		if err != nil {
			return fmt.Errorf("record processed %s for %s: %w", id, konsumentID, err)
		}
	}
	return nil
}

func queryFindOutstandingPerSak(ctx context.Context, db executor, konsumentID store.KonsumentID, hendelsestype model.Hendelsestype, limit int) (map[uuid.UUID][]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT h.sak_id, h.hendelse_id FROM hendelse h
		WHERE h.type = $2 AND h.sak_id IS NOT NULL
		  AND NOT EXISTS (
			SELECT 1 FROM hendelse_konsument hk
			WHERE hk.hendelse_id = h.hendelse_id AND hk.konsument_id = $1
		  )
		ORDER BY h.sak_id, h.versjon ASC
		LIMIT $3`,
		string(konsumentID), string(hendelsestype), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]string)
	for rows.Next() {
		var sakID uuid.UUID
		var hendelseID string
		if err := rows.Scan(&sakID, &hendelseID); err != nil {
			return nil, err
		}
		out[sakID] = append(out[sakID], hendelseID)
	}
	return out, rows.Err()
}

func queryFindOutstanding(ctx context.Context, db executor, konsumentID store.KonsumentID, hendelsestype model.Hendelsestype, limit int) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT h.hendelse_id FROM hendelse h
		WHERE h.type = $2
		  AND NOT EXISTS (
			SELECT 1 FROM hendelse_konsument hk
			WHERE hk.hendelse_id = h.hendelse_id AND hk.konsument_id = $1
		  )
		ORDER BY h.hendelsestidspunkt ASC
		LIMIT $3`,
		string(konsumentID), string(hendelsestype), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var hendelseID string
		if err := rows.Scan(&hendelseID); err != nil {
			return nil, err
		}
		out = append(out, hendelseID)
	}
	return out, rows.Err()
}

func queryLagreRaattKravgrunnlag(ctx context.Context, db executor, melding string, mottatt time.Time) (*model.RaattKravgrunnlag, error) {
	var id int64
	err := db.QueryRowContext(ctx, `
		INSERT INTO raatt_kravgrunnlag (melding, mottatt) VALUES ($1, $2)
		RETURNING id`,
		melding, mottatt,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert raatt kravgrunnlag: %w", err)
	}
	return &model.RaattKravgrunnlag{ID: id, Melding: melding, Mottatt: mottatt}, nil
}

func queryMarkerTilManuellOppfoelging(ctx context.Context, db executor, raattID int64, grunn string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE raatt_kravgrunnlag SET manuell_oppfoelging = TRUE, oppfoelging_grunn = $2
		WHERE id = $1`,
		raattID, grunn,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("raatt kravgrunnlag %d not found", raattID)
	}
	return nil
}

// queryBehandlingssammendrag produces one row per behandling: the latest
// behandling-hendelse decides the current status, the OPPRETTET hendelse the
// start time. Behandling ids live inside the event payload, hence the jsonb
// extraction.
func queryBehandlingssammendrag(ctx context.Context, db executor) ([]*store.Sammendrag, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT ON (h.data ->> 'behandlingId')
			h.data ->> 'saksnummer' AS saksnummer,
			h.data ->> 'behandlingId' AS behandling_id,
			h.type,
			first_value(h.hendelsestidspunkt) OVER w AS startet
		FROM hendelse h
		WHERE h.data ->> 'behandlingId' IS NOT NULL
		WINDOW w AS (PARTITION BY h.data ->> 'behandlingId' ORDER BY h.versjon ASC)
		ORDER BY h.data ->> 'behandlingId', h.versjon DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*store.Sammendrag
	for rows.Next() {
		s, err := scanSammendrag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
