package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq"

	"fleetplane/internal/config"
)

// ============================================================================
// ERROR TAXONOMY
// ============================================================================

type ErrorCode int

const (
	ErrCodeConnectionFailed ErrorCode = iota + 7000
	ErrCodePingFailed
	ErrCodeSchemaFailed
	ErrCodeQueryFailed
)

type DBError struct {
	Code      ErrorCode
	Message   string
	Err       error
	Timestamp int64
}

func (e *DBError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *DBError) Unwrap() error {
	return e.Err
}

func newDBError(code ErrorCode, msg string, err error) *DBError {
	return &DBError{Code: code, Message: msg, Err: err, Timestamp: time.Now().UnixNano()}
}

// ============================================================================
// DATABASE SERVICE
// ============================================================================

const (
	stateDisconnected uint32 = 0
	stateConnected    uint32 = 1
	stateClosed       uint32 = 2
)

// Service is an explicitly owned Postgres handle for the telemetry history
// store. No global lookup: the composition root constructs one and passes
// it down.
type Service struct {
	db    *sql.DB
	cfg   config.DBConfig
	state atomic.Uint32

	queriesTotal  atomic.Uint64
	queriesFailed atomic.Uint64
}

// Connect opens the pool, applies the pool limits, and verifies the
// connection with a ping.
func Connect(cfg config.DBConfig) (*Service, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, newDBError(ErrCodeConnectionFailed, "sql.Open failed", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, newDBError(ErrCodePingFailed, "ping failed", err)
	}

	s := &Service{db: db, cfg: cfg}
	s.state.Store(stateConnected)
	log.Printf("[DB] connected: host=%s database=%s", cfg.Host, cfg.Database)
	return s, nil
}

func (s *Service) Ping(ctx context.Context) error {
	if s.state.Load() != stateConnected {
		return newDBError(ErrCodeConnectionFailed, "not connected", nil)
	}
	if err := s.db.PingContext(ctx); err != nil {
		return newDBError(ErrCodePingFailed, "ping failed", err)
	}
	return nil
}

func (s *Service) Close() error {
	if !s.state.CompareAndSwap(stateConnected, stateClosed) {
		return nil
	}
	log.Println("[DB] closing connection")
	if err := s.db.Close(); err != nil {
		return newDBError(ErrCodeConnectionFailed, "close failed", err)
	}
	return nil
}

func (s *Service) Metrics() map[string]interface{} {
	stats := s.db.Stats()
	return map[string]interface{}{
		"queries_total":         s.queriesTotal.Load(),
		"queries_failed":        s.queriesFailed.Load(),
		"pool_open_connections": stats.OpenConnections,
		"pool_in_use":           stats.InUse,
		"pool_idle":             stats.Idle,
	}
}

func (s *Service) execContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	s.queriesTotal.Add(1)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.queriesFailed.Add(1)
		return nil, newDBError(ErrCodeQueryFailed, "exec failed", err)
	}
	return result, nil
}

func (s *Service) queryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	s.queriesTotal.Add(1)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.queriesFailed.Add(1)
		return nil, newDBError(ErrCodeQueryFailed, "query failed", err)
	}
	return rows, nil
}
