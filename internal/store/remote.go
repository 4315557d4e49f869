package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tilawa-app/tilawa/internal/timeline"
)

// RemoteTimelines is the shared duration-timeline table: once any device has
// extracted a surah's full duration map it publishes it here, and other
// devices read it instead of re-probing a hundred clips. The backend is
// optional; callers must treat a nil *RemoteTimelines as "tier disabled".
type RemoteTimelines struct {
	pool *pgxpool.Pool
}

const timelineSchema = `
CREATE TABLE IF NOT EXISTS ayah_timelines (
	surah     INTEGER NOT NULL,
	reciter   TEXT    NOT NULL,
	durations JSONB   NOT NULL,
	PRIMARY KEY (surah, reciter)
)`

// DialRemoteTimelines connects to the shared table. An empty databaseURL
// returns (nil, nil): the tier is simply not configured.
func DialRemoteTimelines(ctx context.Context, databaseURL string) (*RemoteTimelines, error) {
	if databaseURL == "" {
		return nil, nil
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect shared timeline table: %w", err)
	}
	if _, err := pool.Exec(ctx, timelineSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure timeline schema: %w", err)
	}
	return &RemoteTimelines{pool: pool}, nil
}

// GetTimeline fetches a surah's duration map from the shared table.
func (rt *RemoteTimelines) GetTimeline(ctx context.Context, reciterCode string, surah int) (timeline.DurationMap, bool, error) {
	if rt == nil {
		return nil, false, ErrNotConfigured
	}

	var raw []byte
	err := rt.pool.QueryRow(ctx,
		`SELECT durations FROM ayah_timelines WHERE surah = $1 AND reciter = $2`,
		surah, reciterCode).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query shared timeline: %w", err)
	}

	var m timeline.DurationMap
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false, fmt.Errorf("decode shared timeline: %w", err)
	}
	return m, true, nil
}

// PutTimeline publishes a surah's duration map. Writes are idempotent
// (same key resolves to the same durations), so last-writer-wins is safe.
func (rt *RemoteTimelines) PutTimeline(ctx context.Context, reciterCode string, surah int, m timeline.DurationMap) error {
	if rt == nil {
		return ErrNotConfigured
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode shared timeline: %w", err)
	}
	_, err = rt.pool.Exec(ctx,
		`INSERT INTO ayah_timelines (surah, reciter, durations)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (surah, reciter) DO UPDATE SET durations = EXCLUDED.durations`,
		surah, reciterCode, data)
	if err != nil {
		return fmt.Errorf("publish shared timeline: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (rt *RemoteTimelines) Close() {
	if rt != nil {
		rt.pool.Close()
	}
}
