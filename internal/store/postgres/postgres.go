// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/groblegark/sakd/internal/model"
	"github.com/groblegark/sakd/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) AppendHendelse(ctx context.Context, expectedPriorVersion int64, h *model.Hendelse) error {
	return queryAppendHendelse(ctx, s.db, expectedPriorVersion, h)
}

func (s *PostgresStore) HendelserSiden(ctx context.Context, entitetID uuid.UUID, sinceVersjon int64) ([]*model.Hendelse, error) {
	return queryHendelserSiden(ctx, s.db, entitetID, sinceVersjon)
}

func (s *PostgresStore) HendelserForSakOgType(ctx context.Context, sakID uuid.UUID, typer ...model.Hendelsestype) ([]*model.Hendelse, error) {
	return queryHendelserForSakOgType(ctx, s.db, sakID, typer)
}

func (s *PostgresStore) HentHendelse(ctx context.Context, hendelseID string) (*model.Hendelse, error) {
	return queryHentHendelse(ctx, s.db, hendelseID)
}

func (s *PostgresStore) SisteVersjon(ctx context.Context, entitetID uuid.UUID) (int64, error) {
	return querySisteVersjon(ctx, s.db, entitetID)
}

func (s *PostgresStore) AlleHendelser(ctx context.Context) ([]*model.Hendelse, error) {
	return queryAlleHendelser(ctx, s.db)
}

func (s *PostgresStore) SakIDForSaksnummer(ctx context.Context, saksnummer int64) (uuid.UUID, error) {
	return querySakIDForSaksnummer(ctx, s.db, saksnummer)
}

func (s *PostgresStore) RecordProcessed(ctx context.Context, konsumentID store.KonsumentID, hendelseIDer ...string) error {
	return queryRecordProcessed(ctx, s.db, konsumentID, hendelseIDer)
}

func (s *PostgresStore) FindOutstandingPerSak(ctx context.Context, konsumentID store.KonsumentID, hendelsestype model.Hendelsestype, limit int) (map[uuid.UUID][]string, error) {
	return queryFindOutstandingPerSak(ctx, s.db, konsumentID, hendelsestype, limit)
}

func (s *PostgresStore) FindOutstanding(ctx context.Context, konsumentID store.KonsumentID, hendelsestype model.Hendelsestype, limit int) ([]string, error) {
	return queryFindOutstanding(ctx, s.db, konsumentID, hendelsestype, limit)
}

func (s *PostgresStore) LagreRaattKravgrunnlag(ctx context.Context, melding string, mottatt time.Time) (*model.RaattKravgrunnlag, error) {
	return queryLagreRaattKravgrunnlag(ctx, s.db, melding, mottatt)
}

func (s *PostgresStore) MarkerTilManuellOppfoelging(ctx context.Context, raattID int64, grunn string) error {
	return queryMarkerTilManuellOppfoelging(ctx, s.db, raattID, grunn)
}

func (s *PostgresStore) Behandlingssammendrag(ctx context.Context) ([]*store.Sammendrag, error) {
	return queryBehandlingssammendrag(ctx, s.db)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) AppendHendelse(ctx context.Context, expectedPriorVersion int64, h *model.Hendelse) error {
	return queryAppendHendelse(ctx, s.tx, expectedPriorVersion, h)
}

func (s *txStore) HendelserSiden(ctx context.Context, entitetID uuid.UUID, sinceVersjon int64) ([]*model.Hendelse, error) {
	return queryHendelserSiden(ctx, s.tx, entitetID, sinceVersjon)
}

func (s *txStore) HendelserForSakOgType(ctx context.Context, sakID uuid.UUID, typer ...model.Hendelsestype) ([]*model.Hendelse, error) {
	return queryHendelserForSakOgType(ctx, s.tx, sakID, typer)
}

func (s *txStore) HentHendelse(ctx context.Context, hendelseID string) (*model.Hendelse, error) {
	return queryHentHendelse(ctx, s.tx, hendelseID)
}

func (s *txStore) SisteVersjon(ctx context.Context, entitetID uuid.UUID) (int64, error) {
	return querySisteVersjon(ctx, s.tx, entitetID)
}

func (s *txStore) AlleHendelser(ctx context.Context) ([]*model.Hendelse, error) {
	return queryAlleHendelser(ctx, s.tx)
}

func (s *txStore) SakIDForSaksnummer(ctx context.Context, saksnummer int64) (uuid.UUID, error) {
	return querySakIDForSaksnummer(ctx, s.tx, saksnummer)
}

func (s *txStore) RecordProcessed(ctx context.Context, konsumentID store.KonsumentID, hendelseIDer ...string) error {
	return queryRecordProcessed(ctx, s.tx, konsumentID, hendelseIDer)
}

func (s *txStore) FindOutstandingPerSak(ctx context.Context, konsumentID store.KonsumentID, hendelsestype model.Hendelsestype, limit int) (map[uuid.UUID][]string, error) {
	return queryFindOutstandingPerSak(ctx, s.tx, konsumentID, hendelsestype, limit)
}

func (s *txStore) FindOutstanding(ctx context.Context, konsumentID store.KonsumentID, hendelsestype model.Hendelsestype, limit int) ([]string, error) {
	return queryFindOutstanding(ctx, s.tx, konsumentID, hendelsestype, limit)
}

func (s *txStore) LagreRaattKravgrunnlag(ctx context.Context, melding string, mottatt time.Time) (*model.RaattKravgrunnlag, error) {
	return queryLagreRaattKravgrunnlag(ctx, s.tx, melding, mottatt)
}

func (s *txStore) MarkerTilManuellOppfoelging(ctx context.Context, raattID int64, grunn string) error {
	return queryMarkerTilManuellOppfoelging(ctx, s.tx, raattID, grunn)
}

func (s *txStore) Behandlingssammendrag(ctx context.Context) ([]*store.Sammendrag, error) {
	return queryBehandlingssammendrag(ctx, s.tx)
}

// RunInTransaction on a txStore reuses the already-open transaction; the
// business action defines the transaction boundary, not nested calls.
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op on a txStore; the owning PostgresStore manages the
// connection.
func (s *txStore) Close() error {
	return nil
}
