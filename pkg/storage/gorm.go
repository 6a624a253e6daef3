package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// SQL dialect names accepted by OpenDB.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

// KVEntry is one row of the key-value table. Digest is the sha256 of Value
// and guards conditional updates.
type KVEntry struct {
	Key       string    `gorm:"primaryKey;column:entry_key;type:varchar(191)"`
	Value     []byte    `gorm:"column:value;not null"`
	Digest    string    `gorm:"column:digest;type:varchar(64);not null;default:''"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func valueDigest(v []byte) string {
	sum := sha256.Sum256(v)
	return hex.EncodeToString(sum[:])
}

// TableName returns the GORM table name.
func (KVEntry) TableName() string { return "kv_entries" }

// OpenDB opens a gorm connection for the given dialect.
func OpenDB(dialect, dsn string, verbose bool) (*gorm.DB, error) {
	var d gorm.Dialector
	switch dialect {
	case DialectSQLite, "":
		d = sqlite.Open(dsn)
	case DialectPostgres:
		d = postgres.Open(dsn)
	case DialectMySQL:
		d = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}

	level := logger.Silent
	if verbose {
		level = logger.Info
	}
	db, err := gorm.Open(d, &gorm.Config{Logger: logger.Default.LogMode(level)})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	return db, nil
}

// GormBackend stores values in the kv_entries table.
type GormBackend struct {
	db *gorm.DB
}

// NewGormBackend creates a GormBackend over db.
func NewGormBackend(db *gorm.DB) *GormBackend {
	return &GormBackend{db: db}
}

// AutoMigrate creates or updates the kv_entries table and fills in digests
// for rows written before the column existed.
func (g *GormBackend) AutoMigrate() error {
	if err := g.db.AutoMigrate(&KVEntry{}); err != nil {
		return fmt.Errorf("auto-migrate kv_entries: %w", err)
	}
	var missing []KVEntry
	if err := g.db.Where("digest = ?", "").Find(&missing).Error; err != nil {
		return fmt.Errorf("find kv_entries without digest: %w", err)
	}
	for _, e := range missing {
		err := g.db.Model(&KVEntry{}).Where("entry_key = ?", e.Key).
			Update("digest", valueDigest(e.Value)).Error
		if err != nil {
			return fmt.Errorf("backfill digest for %s: %w", e.Key, err)
		}
	}
	return nil
}

func (g *GormBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var entry KVEntry
	err := g.db.WithContext(ctx).Where("entry_key = ?", key).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return entry.Value, nil
}

// Set upserts the entry on the entry_key primary key.
func (g *GormBackend) Set(ctx context.Context, key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	entry := KVEntry{Key: key, Value: value, Digest: valueDigest(value)}
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "digest", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// CompareAndSet inserts with ON CONFLICT DO NOTHING when old is nil, and
// otherwise updates only the row whose digest still matches old.
func (g *GormBackend) CompareAndSet(ctx context.Context, key string, old, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	db := g.db.WithContext(ctx)
	if old == nil {
		entry := KVEntry{Key: key, Value: value, Digest: valueDigest(value)}
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry)
		if res.Error != nil {
			return fmt.Errorf("create %s: %w", key, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrValueChanged
		}
		return nil
	}

	res := db.Model(&KVEntry{}).
		Where("entry_key = ? AND digest = ?", key, valueDigest(old)).
		Updates(map[string]any{"value": value, "digest": valueDigest(value), "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("compare and set %s: %w", key, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	var n int64
	if err := db.Model(&KVEntry{}).Where("entry_key = ?", key).Count(&n).Error; err != nil {
		return fmt.Errorf("compare and set %s: %w", key, err)
	}
	if n == 0 {
		return ErrKeyNotFound
	}
	return ErrValueChanged
}

func (g *GormBackend) Remove(ctx context.Context, key string) error {
	if err := g.db.WithContext(ctx).Where("entry_key = ?", key).Delete(&KVEntry{}).Error; err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func (g *GormBackend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := g.db.WithContext(ctx).Model(&KVEntry{}).
		Where("entry_key LIKE ? ESCAPE '!'", likeEscaper.Replace(prefix)+"%").
		Order("entry_key").
		Pluck("entry_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("list keys with prefix %q: %w", prefix, err)
	}
	return keys, nil
}

// Close closes the underlying connection pool.
func (g *GormBackend) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
