// Package criteria holds the static governance criteria catalog: twelve
// principles, each split into practices, each listing the criteria an
// organization rates itself against.
package criteria

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"
	mapset "github.com/deckarep/golang-set/v2"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// MaxMaturityLevel is the highest level on the 0..3 scale.
const MaxMaturityLevel = 3

// MaturityLevel describes one step of the maturity scale.
type MaturityLevel struct {
	Value       int    `yaml:"value" json:"value"`
	Label       string `yaml:"label" json:"label"`
	LabelEn     string `yaml:"labelEn" json:"labelEn"`
	Description string `yaml:"description" json:"description"`
}

// Definition is a single criterion as listed in the catalog.
type Definition struct {
	PrincipleID      int    `json:"principleId"`
	PracticeID       int    `json:"practiceId"`
	CriterionID      int    `json:"criterionId"`
	Text             string `json:"text"`
	RequiredEvidence string `json:"requiredEvidence"`
}

// Key returns the criterion key of the definition.
func (d Definition) Key() Key {
	return NewKey(d.PrincipleID, d.PracticeID, d.CriterionID)
}

// Practice groups criteria under a principle.
type Practice struct {
	ID       int          `json:"id"`
	Name     string       `json:"name"`
	Criteria []Definition `json:"criteria"`
}

// Principle is a top-level governance theme.
type Principle struct {
	ID          int        `json:"id"`
	Name        string     `json:"name"`
	NameEn      string     `json:"nameEn"`
	Description string     `json:"description"`
	Practices   []Practice `json:"practices"`
}

// CriterionCount returns the number of criteria across all practices.
func (p Principle) CriterionCount() int {
	n := 0
	for _, pr := range p.Practices {
		n += len(pr.Criteria)
	}
	return n
}

// Catalog is the immutable, ordered set of principles and criteria.
type Catalog struct {
	version    *semver.Version
	levels     []MaturityLevel
	principles []Principle
	index      map[Key]Definition
	keys       []Key
	keySet     mapset.Set[Key]
}

type catalogFile struct {
	Version        string          `yaml:"version"`
	MaturityLevels []MaturityLevel `yaml:"maturityLevels"`
	Principles     []struct {
		ID          int    `yaml:"id"`
		Name        string `yaml:"name"`
		NameEn      string `yaml:"nameEn"`
		Description string `yaml:"description"`
		Practices   []struct {
			ID       int    `yaml:"id"`
			Name     string `yaml:"name"`
			Criteria []struct {
				ID       int    `yaml:"id"`
				Text     string `yaml:"text"`
				Evidence string `yaml:"evidence"`
			} `yaml:"criteria"`
		} `yaml:"practices"`
	} `yaml:"principles"`
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the catalog embedded in the binary.
// It panics if the embedded document is invalid.
func Default() *Catalog {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Load(bytes.NewReader(defaultCatalogYAML))
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("embedded criteria catalog: %v", defaultErr))
	}
	return defaultCatalog
}

// Load parses and validates a catalog YAML document.
func Load(r io.Reader) (*Catalog, error) {
	var f catalogFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	v, err := semver.NewVersion(f.Version)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog version %q: %w", f.Version, err)
	}

	c := &Catalog{
		version: v,
		levels:  f.MaturityLevels,
		index:   make(map[Key]Definition),
		keySet:  mapset.NewThreadUnsafeSet[Key](),
	}

	seenPrinciples := make(map[int]bool)
	for _, fp := range f.Principles {
		if fp.ID <= 0 {
			return nil, fmt.Errorf("principle %q: id must be positive", fp.Name)
		}
		if seenPrinciples[fp.ID] {
			return nil, fmt.Errorf("duplicate principle id %d", fp.ID)
		}
		seenPrinciples[fp.ID] = true

		p := Principle{ID: fp.ID, Name: fp.Name, NameEn: fp.NameEn, Description: fp.Description}
		for _, fpr := range fp.Practices {
			if fpr.ID <= 0 {
				return nil, fmt.Errorf("principle %d practice %q: id must be positive", fp.ID, fpr.Name)
			}
			pr := Practice{ID: fpr.ID, Name: fpr.Name}
			for _, fc := range fpr.Criteria {
				if fc.ID <= 0 {
					return nil, fmt.Errorf("principle %d practice %d: criterion id must be positive", fp.ID, fpr.ID)
				}
				if fc.Text == "" {
					return nil, fmt.Errorf("criterion %d-%d-%d: text is required", fp.ID, fpr.ID, fc.ID)
				}
				d := Definition{
					PrincipleID:      fp.ID,
					PracticeID:       fpr.ID,
					CriterionID:      fc.ID,
					Text:             fc.Text,
					RequiredEvidence: fc.Evidence,
				}
				k := d.Key()
				if !c.keySet.Add(k) {
					return nil, fmt.Errorf("duplicate criterion key %s", k)
				}
				c.index[k] = d
				c.keys = append(c.keys, k)
				pr.Criteria = append(pr.Criteria, d)
			}
			p.Practices = append(p.Practices, pr)
		}
		c.principles = append(c.principles, p)
	}

	if len(c.keys) == 0 {
		return nil, fmt.Errorf("catalog defines no criteria")
	}

	sort.Slice(c.levels, func(i, j int) bool { return c.levels[i].Value < c.levels[j].Value })
	return c, nil
}

// Version returns the catalog's semantic version.
func (c *Catalog) Version() *semver.Version {
	return c.version
}

// MaturityLevels returns the level descriptors in ascending order.
func (c *Catalog) MaturityLevels() []MaturityLevel {
	out := make([]MaturityLevel, len(c.levels))
	copy(out, c.levels)
	return out
}

// ListPrinciples returns all principles in catalog order.
func (c *Catalog) ListPrinciples() []Principle {
	out := make([]Principle, len(c.principles))
	copy(out, c.principles)
	return out
}

// Principle returns the principle with the given id.
func (c *Catalog) Principle(id int) (Principle, bool) {
	for _, p := range c.principles {
		if p.ID == id {
			return p, true
		}
	}
	return Principle{}, false
}

// ListCriteria returns the criteria of one practice, or nil when the
// principle or practice does not exist.
func (c *Catalog) ListCriteria(principleID, practiceID int) []Definition {
	p, ok := c.Principle(principleID)
	if !ok {
		return nil
	}
	for _, pr := range p.Practices {
		if pr.ID == practiceID {
			out := make([]Definition, len(pr.Criteria))
			copy(out, pr.Criteria)
			return out
		}
	}
	return nil
}

// TotalCriterionCount is the fixed denominator used for completion.
func (c *Catalog) TotalCriterionCount() int {
	return len(c.keys)
}

// PrincipleCriterionCount returns how many criteria a principle holds.
func (c *Catalog) PrincipleCriterionCount(principleID int) int {
	p, ok := c.Principle(principleID)
	if !ok {
		return 0
	}
	return p.CriterionCount()
}

// Lookup returns the definition for key.
func (c *Catalog) Lookup(key Key) (Definition, bool) {
	d, ok := c.index[key]
	return d, ok
}

// Contains reports whether key names a catalog criterion.
func (c *Catalog) Contains(key Key) bool {
	return c.keySet.Contains(key)
}

// Keys returns every criterion key in catalog order.
func (c *Catalog) Keys() []Key {
	out := make([]Key, len(c.keys))
	copy(out, c.keys)
	return out
}
