// Package db is the persistence layer: connection lifecycle, schema
// migration, config bootstrap and the token/task/log repositories. All
// repositories multiplex over the single pool owned by Store.
package db

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/afiq90/sora2api/internal/metrics"
)

const (
	connectAttempts = 5
	maxOpenConns    = 10
	maxIdleConns    = 1
)

// ErrNotConfigured is returned by DB when no database URL was supplied.
// Callers that can run config-less check Configured() instead.
var ErrNotConfigured = errors.New("db: no database configured")

// Store owns the database connection pool. The pool is created lazily on
// the first DB call and reused for the process lifetime; Close tears it
// down so a subsequent DB call re-initializes from scratch.
type Store struct {
	dsn       string
	dialector gorm.Dialector

	// retryDelay is the backoff base between connection attempts
	// (delay = retryDelay * 2^attempt). Shrunk in tests.
	retryDelay time.Duration

	mu sync.Mutex
	db *gorm.DB
}

// New returns a Store for the given PostgreSQL URL. An empty dsn yields an
// unconfigured store whose DB calls fail with ErrNotConfigured.
func New(dsn string) *Store {
	dsn = strings.TrimSpace(dsn)
	if dsn != "" {
		logConfiguredTarget(dsn)
	}
	return &Store{dsn: dsn, retryDelay: 2 * time.Second}
}

// NewForDialector returns a Store backed by an explicit GORM dialector.
// Used by tests to run the full layer against an embedded database.
func NewForDialector(d gorm.Dialector) *Store {
	return &Store{dialector: d, retryDelay: 2 * time.Second}
}

// Configured reports whether a database target was supplied at all.
func (s *Store) Configured() bool {
	return s.dsn != "" || s.dialector != nil
}

// DB returns the shared connection handle, establishing the pool on first
// use. Establishment is retried with exponential backoff; exhausting the
// attempt budget surfaces the last error to the caller.
func (s *Store) DB() (*gorm.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}
	if !s.Configured() {
		return nil, ErrNotConfigured
	}

	var lastErr error
	for attempt := 0; attempt < connectAttempts; attempt++ {
		log.Printf("attempting database connection (attempt %d/%d)", attempt+1, connectAttempts)
		db, err := s.open()
		if err == nil {
			log.Printf("database connection pool created")
			s.db = db
			return s.db, nil
		}
		lastErr = err
		log.Printf("database connection attempt %d failed: %v", attempt+1, err)
		if attempt < connectAttempts-1 {
			wait := s.retryDelay * (1 << attempt)
			log.Printf("retrying in %s", wait)
			time.Sleep(wait)
		}
	}
	return nil, fmt.Errorf("connect database after %d attempts: %w", connectAttempts, lastErr)
}

// Close tears down the pool and clears cached state.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	s.db = nil
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) open() (*gorm.DB, error) {
	dialector := s.dialector
	if dialector == nil {
		dialector = postgres.Open(normalizeDSN(s.dsn))
	}

	// PrepareStmt also keeps the GORM postgres migrator from forcing simple
	// protocol on its probe queries.
	db, err := gorm.Open(dialector, &gorm.Config{PrepareStmt: true})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// session returns the shared handle for one repository operation and counts
// the operation if metrics are initialized.
func (s *Store) session(entity, op string) (*gorm.DB, error) {
	db, err := s.DB()
	if err != nil {
		return nil, err
	}
	if metrics.Operations != nil {
		metrics.Operations.WithLabelValues(entity, op).Inc()
	}
	return db, nil
}

// normalizeDSN applies the layer's timeout policy to postgres URLs that do
// not already carry one: a 30s connect timeout and a 60s statement timeout.
func normalizeDSN(dsn string) string {
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return dsn
	}
	q := u.Query()
	if q.Get("connect_timeout") == "" {
		q.Set("connect_timeout", "30")
	}
	if q.Get("statement_timeout") == "" {
		q.Set("statement_timeout", "60000")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// logConfiguredTarget prints the connection target without credentials.
func logConfiguredTarget(dsn string) {
	u, err := url.Parse(dsn)
	if err != nil {
		log.Printf("warning: could not parse database URL: %v", err)
		return
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		dbName = "unknown"
	}
	log.Printf("database configured: host=%s port=%s db=%s", u.Hostname(), u.Port(), dbName)
}

// StartPoolStatsWorker launches a background goroutine that periodically
// copies pool statistics into the Prometheus gauges. No-op until both the
// pool and the metrics package are initialized.
func StartPoolStatsWorker(s *Store) {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			if metrics.PoolOpen == nil {
				continue
			}
			s.mu.Lock()
			db := s.db
			s.mu.Unlock()
			if db == nil {
				continue
			}
			sqlDB, err := db.DB()
			if err != nil {
				continue
			}
			stats := sqlDB.Stats()
			metrics.PoolOpen.Set(float64(stats.OpenConnections))
			metrics.PoolInUse.Set(float64(stats.InUse))
			metrics.PoolIdle.Set(float64(stats.Idle))
			metrics.PoolWaitTotal.Set(float64(stats.WaitCount))
		}
	}()
}
