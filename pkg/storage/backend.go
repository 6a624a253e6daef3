// Package storage persists evaluation records in a key-value backend and
// maps them to and from the domain model.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrKeyNotFound is returned by Backend.Get for a missing key.
	ErrKeyNotFound = errors.New("key not found")
	// ErrValueChanged is returned by Backend.CompareAndSet when the stored
	// value is no longer the one the caller read.
	ErrValueChanged = errors.New("stored value changed")
)

// Backend is a string-keyed blob store. Implementations are safe for
// concurrent use.
type Backend interface {
	// Get returns the value for key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set creates or replaces the value for key.
	Set(ctx context.Context, key string, value []byte) error
	// CompareAndSet replaces the value for key only while it still equals
	// old. A nil old creates key only if it is absent. It returns
	// ErrValueChanged when the stored value differs and ErrKeyNotFound when
	// a non-nil old finds no key.
	CompareAndSet(ctx context.Context, key string, old, value []byte) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	// List returns every key starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	// Close releases the backend's resources.
	Close() error
}

var validKey = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateKey rejects keys that cannot be stored portably; file names and
// redis glob patterns rely on this character set.
func ValidateKey(key string) error {
	if !validKey.MatchString(key) {
		return fmt.Errorf("invalid storage key %q", key)
	}
	return nil
}
