package criteria

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Key identifies a single criterion as "{principleId}-{practiceId}-{criterionId}".
type Key struct {
	Principle int
	Practice  int
	Criterion int
}

// NewKey builds a key from its three ids.
func NewKey(principle, practice, criterion int) Key {
	return Key{Principle: principle, Practice: practice, Criterion: criterion}
}

// ParseKey parses the hyphen-joined form produced by String.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("invalid criterion key %q: expected principle-practice-criterion", s)
	}
	ids := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			return Key{}, fmt.Errorf("invalid criterion key %q: %q is not a positive integer", s, p)
		}
		ids[i] = n
	}
	return Key{Principle: ids[0], Practice: ids[1], Criterion: ids[2]}, nil
}

func (k Key) String() string {
	return fmt.Sprintf("%d-%d-%d", k.Principle, k.Practice, k.Criterion)
}

// Compare orders keys by principle, then practice, then criterion.
func (k Key) Compare(o Key) int {
	if c := cmp.Compare(k.Principle, o.Principle); c != 0 {
		return c
	}
	if c := cmp.Compare(k.Practice, o.Practice); c != 0 {
		return c
	}
	return cmp.Compare(k.Criterion, o.Criterion)
}

// Less reports whether k sorts before o.
func (k Key) Less(o Key) bool {
	return k.Compare(o) < 0
}

// SortKeys sorts keys in catalog order.
func SortKeys(keys []Key) {
	slices.SortFunc(keys, Key.Compare)
}

// MarshalText lets keys be used as JSON object keys.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(b []byte) error {
	parsed, err := ParseKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
