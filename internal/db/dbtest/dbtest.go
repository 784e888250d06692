// Package dbtest provides an in-memory store and a controllable clock for tests.
package dbtest

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"geosafe/internal/db"
)

// Epoch is the default starting time of a test clock.
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Store bundles a migrated in-memory database with an Index over it.
type Store struct {
	DB    *gorm.DB
	Index *db.Index
	Clock *Clock

	failReads  atomic.Bool
	failWrites atomic.Bool
}

// New opens a fresh database private to t.
func New(t testing.TB) *Store {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	// A single connection keeps the shared in-memory database alive and
	// serialises writers the way SQLite requires.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(gdb))

	s := &Store{DB: gdb, Clock: NewClock(Epoch)}
	s.Index = db.NewIndex(gdb, db.Options{
		Timeout:     5 * time.Second,
		ReadRetries: 1,
		Clock:       s.Clock.Now,
	})

	errInjected := errors.New("injected store failure")
	require.NoError(t, gdb.Callback().Query().Before("gorm:query").Register("dbtest:fail_reads", func(tx *gorm.DB) {
		if s.failReads.Load() {
			_ = tx.AddError(errInjected)
		}
	}))
	failWrite := func(tx *gorm.DB) {
		if s.failWrites.Load() {
			_ = tx.AddError(errInjected)
		}
	}
	require.NoError(t, gdb.Callback().Create().Before("gorm:create").Register("dbtest:fail_create", failWrite))
	require.NoError(t, gdb.Callback().Delete().Before("gorm:delete").Register("dbtest:fail_delete", failWrite))
	require.NoError(t, gdb.Callback().Update().Before("gorm:update").Register("dbtest:fail_update", failWrite))
	return s
}

// FailReads makes every query fail until called with false.
func (s *Store) FailReads(fail bool) {
	s.failReads.Store(fail)
}

// FailWrites makes every create, update and delete fail until called with false.
func (s *Store) FailWrites(fail bool) {
	s.failWrites.Store(fail)
}

// Count returns the number of rows of model.
func (s *Store) Count(t testing.TB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, s.DB.Model(model).Count(&n).Error)
	return n
}
