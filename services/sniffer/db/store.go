package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/telemetry"
)

const (
	defaultStatementTimeout  = 5 * time.Second
	defaultReconnectInterval = 5 * time.Second
)

// errReconnectBackoff is returned while the store waits before redialing.
var errReconnectBackoff = errors.New("store connection down, waiting before reconnect")

// execConn is the part of *pgx.Conn the store needs.
type execConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	IsClosed() bool
	Close(ctx context.Context) error
}

type dialFunc func(ctx context.Context) (execConn, error)

// Options tune the persistent store.
type Options struct {
	StatementTimeout  time.Duration
	ReconnectInterval time.Duration
	Logger            *slog.Logger
	// OnStateChange is called with the new state whenever the connection goes
	// up or down.
	OnStateChange func(up bool)
}

// Store writes fixes into per-device tables over one long-lived connection.
// Store and Close must be called from a single goroutine; Status is safe
// from any goroutine.
type Store struct {
	dial     dialFunc
	conn     execConn
	opts     Options
	logger   *slog.Logger
	lastDial time.Time
	now      func() time.Time

	up      atomic.Bool
	errMu   sync.Mutex
	lastErr string
}

// Connect opens the store connection. Failing to connect here is fatal for
// the caller; later drops are handled by reconnecting lazily.
func Connect(ctx context.Context, databaseURL string, opts Options) (*Store, error) {
	cfg, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	dial := func(ctx context.Context) (execConn, error) {
		conn, err := pgx.ConnectConfig(ctx, cfg.Copy())
		if err != nil {
			return nil, err
		}
		return conn, nil
	}

	s := newStore(dial, opts)
	if err := s.redial(ctx); err != nil {
		return nil, fmt.Errorf("connect to store: %w", err)
	}
	return s, nil
}

func newStore(dial dialFunc, opts Options) *Store {
	if opts.StatementTimeout <= 0 {
		opts.StatementTimeout = defaultStatementTimeout
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = defaultReconnectInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dial:   dial,
		opts:   opts,
		logger: logger.With("component", "store"),
		now:    time.Now,
	}
}

// Close releases the connection.
func (s *Store) Close(ctx context.Context) {
	if s.conn != nil {
		_ = s.conn.Close(ctx)
		s.conn = nil
	}
	s.setState(false, "closed")
}

// Status reports whether the connection is open and the last failure seen.
func (s *Store) Status() (bool, string) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.up.Load(), s.lastErr
}

const insertFixSQL = `INSERT INTO %s (lat, lon, fecha, hora, rpm) VALUES ($1, $2, $3, $4, $5)`

// Store inserts one fix into table. The statement runs in autocommit mode, so
// each call is its own transaction. The device id selects the table and is
// not stored.
func (s *Store) Store(ctx context.Context, table string, fix telemetry.Fix) error {
	day, err := fix.Day()
	if err != nil {
		return &telemetry.StoreError{Kind: telemetry.StoreRejected, Table: table, Err: err}
	}
	clock, err := fix.ClockOffset()
	if err != nil {
		return &telemetry.StoreError{Kind: telemetry.StoreRejected, Table: table, Err: err}
	}

	if err := s.ensureConn(ctx); err != nil {
		return &telemetry.StoreError{Kind: telemetry.StoreConnection, Table: table, Err: err}
	}

	execCtx, cancel := context.WithTimeout(ctx, s.opts.StatementTimeout)
	defer cancel()

	_, err = s.conn.Exec(execCtx, sprintfTable(insertFixSQL, table),
		fix.Latitude,
		fix.Longitude,
		pgtype.Date{Time: day, Valid: true},
		pgtype.Time{Microseconds: clock.Microseconds(), Valid: true},
		fix.RPM,
	)
	if err == nil {
		return nil
	}

	storeErr := s.classify(table, err)
	if s.conn.IsClosed() {
		s.setState(false, err.Error())
		s.logger.Warn("store connection lost", "error", err)
	}
	return storeErr
}

func (s *Store) classify(table string, err error) *telemetry.StoreError {
	kind := telemetry.StoreRejected

	var pgErr *pgconn.PgError
	var netErr net.Error
	switch {
	case errors.As(err, &pgErr):
		switch {
		case strings.HasPrefix(pgErr.Code, "23"):
			kind = telemetry.StoreConstraint
		case pgErr.Code == "57014": // query_canceled, raised by statement_timeout
			kind = telemetry.StoreTimeout
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57P"):
			kind = telemetry.StoreConnection
		}
	case errors.Is(err, context.DeadlineExceeded), pgconn.Timeout(err):
		kind = telemetry.StoreTimeout
	case s.conn.IsClosed(), errors.As(err, &netErr):
		kind = telemetry.StoreConnection
	}
	return &telemetry.StoreError{Kind: kind, Table: table, Err: err}
}

func (s *Store) ensureConn(ctx context.Context) error {
	if s.conn != nil && !s.conn.IsClosed() {
		return nil
	}
	if !s.lastDial.IsZero() && s.now().Sub(s.lastDial) < s.opts.ReconnectInterval {
		return errReconnectBackoff
	}
	if err := s.redial(ctx); err != nil {
		return err
	}
	s.logger.Info("store reconnected")
	return nil
}

func (s *Store) redial(ctx context.Context) error {
	s.lastDial = s.now()
	if s.conn != nil {
		_ = s.conn.Close(ctx)
		s.conn = nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.opts.StatementTimeout)
	defer cancel()

	conn, err := s.dial(dialCtx)
	if err != nil {
		s.setState(false, err.Error())
		return err
	}
	s.conn = conn
	s.setState(true, "")
	return nil
}

func (s *Store) setState(up bool, lastErr string) {
	s.errMu.Lock()
	changed := s.up.Swap(up) != up
	if lastErr != "" || up {
		s.lastErr = lastErr
	}
	s.errMu.Unlock()

	if changed && s.opts.OnStateChange != nil {
		s.opts.OnStateChange(up)
	}
}

func sprintfTable(format, table string) string {
	return fmt.Sprintf(format, QuoteTable(table))
}

// QuoteTable sanitizes a possibly schema-qualified table name.
func QuoteTable(table string) string {
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}
