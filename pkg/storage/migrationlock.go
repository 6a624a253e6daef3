package storage

import (
	"context"
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"gorm.io/gorm"
)

// MigrationLock serializes schema migrations across server replicas that
// share one database.
type MigrationLock interface {
	// WithLock runs fn while holding the lock.
	WithLock(ctx context.Context, fn func() error) error
}

// NewMigrationLock returns the lock suited to db's dialect: a session
// advisory lock on PostgreSQL, GET_LOCK on MySQL, and a lock row elsewhere.
// A nil db yields a lock that runs fn directly.
func NewMigrationLock(db *gorm.DB, name string) MigrationLock {
	if db == nil {
		return noLock{}
	}
	switch db.Dialector.Name() {
	case DialectPostgres:
		return &advisoryLock{db: db, id: int64(crc32.ChecksumIEEE([]byte(name)))}
	case DialectMySQL:
		return &mysqlLock{db: db, name: name, timeout: 30}
	}
	return &rowLock{
		db:       db,
		name:     name,
		attempts: 30,
		interval: time.Second,
		staleAge: 5 * time.Minute,
	}
}

type noLock struct{}

func (noLock) WithLock(_ context.Context, fn func() error) error { return fn() }

type advisoryLock struct {
	db *gorm.DB
	id int64
}

func (l *advisoryLock) WithLock(ctx context.Context, fn func() error) error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	// advisory locks belong to a session, so lock and unlock on one connection
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("reserve migration connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", l.id); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", l.id)
	}()
	return fn()
}

type mysqlLock struct {
	db      *gorm.DB
	name    string
	timeout int
}

func (l *mysqlLock) WithLock(ctx context.Context, fn func() error) error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("reserve migration connection: %w", err)
	}
	defer conn.Close()

	var got *int
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", l.name, l.timeout).Scan(&got); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	if got == nil || *got != 1 {
		return fmt.Errorf("acquire migration lock %q: timed out after %ds", l.name, l.timeout)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT RELEASE_LOCK(?)", l.name)
	}()
	return fn()
}

// migrationLockRow is the lock held by a replica on dialects without
// native named locks.
type migrationLockRow struct {
	Name     string    `gorm:"primaryKey;column:name"`
	LockedAt time.Time `gorm:"column:locked_at"`
	LockedBy string    `gorm:"column:locked_by"`
}

func (migrationLockRow) TableName() string { return "migration_locks" }

// rowLock inserts a row keyed by name and fails while another holder has
// it. Rows older than staleAge are treated as left by a crashed replica.
type rowLock struct {
	db       *gorm.DB
	name     string
	attempts int
	interval time.Duration
	staleAge time.Duration
}

func (l *rowLock) WithLock(ctx context.Context, fn func() error) error {
	db := l.db.WithContext(ctx)
	if err := db.AutoMigrate(&migrationLockRow{}); err != nil {
		return fmt.Errorf("create migration lock table: %w", err)
	}
	holder, _ := os.Hostname()
	if holder == "" {
		holder = "unknown"
	}

	var lastErr error
	for i := 0; i < l.attempts; i++ {
		db.Where("name = ? AND locked_at < ?", l.name, time.Now().Add(-l.staleAge)).Delete(&migrationLockRow{})

		lastErr = db.Create(&migrationLockRow{Name: l.name, LockedAt: time.Now(), LockedBy: holder}).Error
		if lastErr == nil {
			defer l.db.Where("name = ?", l.name).Delete(&migrationLockRow{})
			return fn()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.interval):
		}
	}
	return fmt.Errorf("acquire migration lock %q after %d attempts: %w", l.name, l.attempts, lastErr)
}
