// Package store implements core.Store on PostgreSQL with pgx.
//
// Every query names its schema explicitly; ns values come from the tenants
// file and are quoted as identifiers, never interpolated raw.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/dqgen/internal/core"
	"github.com/JonMunkholm/dqgen/internal/schema"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
}

// Store reads rule configuration and, when enabled, upserts emitted rows.
type Store struct {
	db DBTX
}

// New returns a Store using db.
func New(db DBTX) *Store {
	return &Store{db: db}
}

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func (s *Store) MetadataID(ctx context.Context, ns, set, value string) (int64, bool, error) {
	return s.scanID(ctx, metadataQuery(ns), set, value)
}

func (s *Store) MaxRuleID(ctx context.Context, ns string) (int64, error) {
	var hi int64
	if err := s.db.QueryRow(ctx, maxRuleIDQuery(ns)).Scan(&hi); err != nil {
		return 0, fmt.Errorf("max rule_id in %s: %w", ns, err)
	}
	return hi, nil
}

func (s *Store) FindRule(ctx context.Context, ns, businessRuleID string) (core.Record, bool, error) {
	return s.findRecord(ctx, schema.ValidationRules, findRuleQuery(ns), businessRuleID)
}

func (s *Store) MaxRuleExtnID(ctx context.Context, ns, sourceOwner string) (int64, error) {
	var (
		hi   int64
		args []any
	)
	if sourceOwner != "" {
		args = append(args, sourceOwner)
	}
	if err := s.db.QueryRow(ctx, maxRuleExtnIDQuery(ns, sourceOwner != ""), args...).Scan(&hi); err != nil {
		return 0, fmt.Errorf("max rule_extn_id in %s: %w", ns, err)
	}
	return hi, nil
}

func (s *Store) FindRuleExtension(ctx context.Context, ns string, ruleID int64, sourceOwner string) (core.Record, bool, error) {
	return s.findRecord(ctx, schema.RuleExtensions, findRuleExtensionQuery(ns), ruleID, sourceOwner)
}

func (s *Store) RuleExtnIDExists(ctx context.Context, ns string, id int64) (bool, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, ruleExtnIDExistsQuery(ns), id).Scan(&exists); err != nil {
		return false, fmt.Errorf("rule_extn_id %d in %s: %w", id, ns, err)
	}
	return exists, nil
}

func (s *Store) ZoneTableID(ctx context.Context, ns, tableName, zone string) (int64, bool, error) {
	return s.scanID(ctx, zoneTableQuery(ns), tableName, zone)
}

func (s *Store) EntityInfo(ctx context.Context, ns, entityName string) (core.EntityInfo, bool, error) {
	var info core.EntityInfo
	err := s.db.QueryRow(ctx, entityQuery(ns), entityName).Scan(&info.ID, &info.KeyField)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.EntityInfo{}, false, nil
	}
	if err != nil {
		return core.EntityInfo{}, false, err
	}
	return info, true, nil
}

func (s *Store) SourceTableIDs(ctx context.Context, ns, sourceOwner string) ([]string, error) {
	rows, err := s.db.Query(ctx, sourceTablesQuery(ns), sourceOwner)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan source tables: %w", err)
	}
	return ids, nil
}

// ApplyRecords upserts records into ns in one transaction.
func (s *Store) ApplyRecords(ctx context.Context, ns string, table schema.Table, records []core.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	query := upsertQuery(ns, table)
	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(query, textArgs(r.Values(table))...)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert %s.%s: %w", ns, table.Name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) scanID(ctx context.Context, query string, args ...any) (int64, bool, error) {
	var id int64
	err := s.db.QueryRow(ctx, query, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (s *Store) findRecord(ctx context.Context, t schema.Table, query string, args ...any) (core.Record, bool, error) {
	values := make([]pgtype.Text, len(t.Columns))
	dest := make([]any, len(values))
	for i := range values {
		dest[i] = &values[i]
	}

	err := s.db.QueryRow(ctx, query, args...).Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return recordFromValues(t, values), true, nil
}

func recordFromValues(t schema.Table, values []pgtype.Text) core.Record {
	r := make(core.Record, len(t.Columns))
	for i, c := range t.Columns {
		r[c.Name] = values[i]
	}
	return r
}

func textArgs(values []pgtype.Text) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

var _ core.Store = (*Store)(nil)
