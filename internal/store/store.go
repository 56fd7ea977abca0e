// Package store reads snapshots, diffs and wiki settings from PostgreSQL.
// The tables are owned by the catalog snapshotter; this package only reads.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	"github.com/everstacklabs/pimdoc/internal/jsonv"
	"github.com/everstacklabs/pimdoc/internal/wiki"
)

// NotFoundError is returned when a requested row does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// Snapshot is one captured catalog model.
type Snapshot struct {
	ID          uuid.UUID
	ServerID    uuid.UUID
	Label       string
	StartedAt   time.Time
	CompletedAt time.Time
	Data        any
}

// DisplayLabel is the label, or the completion time when the snapshot has
// no label.
func (s *Snapshot) DisplayLabel() string {
	if s.Label != "" {
		return s.Label
	}
	return s.CompletedAt.UTC().Format("2006-01-02 15:04")
}

// DiffRecord is a stored diff with both of its snapshots.
type DiffRecord struct {
	ID     uuid.UUID
	Data   []byte
	Before *Snapshot
	After  *Snapshot
}

// Store is a read-only view of the snapshot database.
type Store struct {
	db *sql.DB
}

// Open connects to databaseURL with the pgx driver.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(8)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return New(db), nil
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Snapshot fetches one snapshot by id.
func (s *Store) Snapshot(ctx context.Context, id uuid.UUID) (*Snapshot, error) {
	var (
		snap  Snapshot
		label sql.NullString
		raw   []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, akeneo_server_id, label, started_at, completed_at, data FROM snapshot WHERE id = $1`, id,
	).Scan(&snap.ID, &snap.ServerID, &label, &snap.StartedAt, &snap.CompletedAt, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "snapshot", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot %s: %w", id, err)
	}

	snap.Label = label.String
	snap.Data, err = jsonv.DecodeBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", id, err)
	}
	return &snap, nil
}

// Diff fetches a diff and both of its snapshots. The snapshots are read
// concurrently.
func (s *Store) Diff(ctx context.Context, id uuid.UUID) (*DiffRecord, error) {
	var (
		rec               DiffRecord
		beforeID, afterID uuid.UUID
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, snapshot_before_id, snapshot_after_id, data FROM diff WHERE id = $1`, id,
	).Scan(&rec.ID, &beforeID, &afterID, &rec.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "diff", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("fetch diff %s: %w", id, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		snap, err := s.Snapshot(gctx, beforeID)
		rec.Before = snap
		return err
	})
	g.Go(func() error {
		snap, err := s.Snapshot(gctx, afterID)
		rec.After = snap
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("diff %s: %w", id, err)
	}
	return &rec, nil
}

// WikiConfig fetches the wiki settings of a catalog server.
func (s *Store) WikiConfig(ctx context.Context, serverID uuid.UUID) (*wiki.Config, error) {
	var (
		cfg    wiki.Config
		parent sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT base_url, username, api_token, space_key, parent_page FROM confluence_config WHERE akeneo_server_id = $1`, serverID,
	).Scan(&cfg.BaseURL, &cfg.Username, &cfg.APIToken, &cfg.SpaceKey, &parent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "confluence config", ID: serverID.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("fetch confluence config %s: %w", serverID, err)
	}
	cfg.ParentPage = parent.String
	return &cfg, nil
}
