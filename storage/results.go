package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"coherence/config"
	"coherence/core"
)

// ErrResultNotFound is returned when no analysis exists for a video.
var ErrResultNotFound = errors.New("analysis result not found")

// ResultStore persists completed analyses. The backend is the sole writer;
// results are immutable once saved.
type ResultStore interface {
	Save(ctx context.Context, result *core.AnalysisResult) error
	Get(ctx context.Context, videoID string) (*core.AnalysisResult, error)
}

// NewResultStore selects the configured backend, falling back to memory when
// Postgres is unreachable so the service still comes up for local work.
func NewResultStore(cfg *config.Config, logger *logrus.Logger) ResultStore {
	if cfg.ResultStore == "postgres" {
		s, err := newPostgresResultStore(cfg.DatabaseURL)
		if err != nil {
			logger.WithError(err).Warn("Postgres result store unavailable, falling back to memory")
			return NewMemoryResultStore()
		}
		logger.Info("Result store initialized: postgres")
		return s
	}
	logger.Info("Result store initialized: memory")
	return NewMemoryResultStore()
}

// ---------------- Memory implementation ----------------

type MemoryResultStore struct {
	mu      sync.RWMutex
	results map[string]*core.AnalysisResult
}

func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{results: make(map[string]*core.AnalysisResult)}
}

func (s *MemoryResultStore) Save(_ context.Context, result *core.AnalysisResult) error {
	if err := result.Validate(); err != nil {
		return fmt.Errorf("refusing to store invalid result: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.VideoID] = result
	return nil
}

func (s *MemoryResultStore) Get(_ context.Context, videoID string) (*core.AnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[videoID]
	if !ok {
		return nil, ErrResultNotFound
	}
	return r, nil
}

// ---------------- Postgres implementation ----------------

type PostgresResultStore struct {
	conn *pgx.Conn
}

func newPostgresResultStore(dbURL string) (*PostgresResultStore, error) {
	if dbURL == "" {
		return nil, errors.New("DATABASE_URL not configured")
	}
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresResultStore{conn: conn}
	if err := s.ensureTable(ctx); err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *PostgresResultStore) ensureTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS analysis_results (
			video_id VARCHAR(255) PRIMARY KEY,
			result JSONB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`
	if _, err := s.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("create analysis_results table: %w", err)
	}
	return nil
}

func (s *PostgresResultStore) Save(ctx context.Context, result *core.AnalysisResult) error {
	if err := result.Validate(); err != nil {
		return fmt.Errorf("refusing to store invalid result: %w", err)
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = s.conn.Exec(ctx, `
		INSERT INTO analysis_results (video_id, result)
		VALUES ($1, $2)
		ON CONFLICT (video_id) DO UPDATE SET result = EXCLUDED.result
	`, result.VideoID, payload)
	if err != nil {
		return fmt.Errorf("store result: %w", err)
	}
	return nil
}

func (s *PostgresResultStore) Get(ctx context.Context, videoID string) (*core.AnalysisResult, error) {
	var payload []byte
	err := s.conn.QueryRow(ctx, `SELECT result FROM analysis_results WHERE video_id = $1`, videoID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query result: %w", err)
	}
	var result core.AnalysisResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("unmarshal stored result: %w", err)
	}
	return &result, nil
}

// Close releases the database connection.
func (s *PostgresResultStore) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}
