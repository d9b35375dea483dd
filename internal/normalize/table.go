// Package normalize rewrites raw sheet rows into the canonical billing
// schema. Crews and contractors rename columns constantly ("Qty",
// "Redlined Total Price", "Point #"), so a synonym table maps every known
// spelling onto one canonical name; anything it does not recognize passes
// through untouched rather than failing the row.
package normalize

import (
	_ "embed"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed synonyms.yaml
var defaultTableYAML []byte

var defaultTable = mustParseTable(defaultTableYAML)

// Table is an indexed synonym table: every source spelling resolves to
// exactly one canonical column name.
type Table struct {
	// sources lists, per canonical name, the spellings to read in priority
	// order. The canonical name itself is always first.
	sources map[string][]string
	// canonical resolves a source spelling back to its canonical name.
	canonical map[string]string
}

// NewTable indexes a canonical-name -> synonyms mapping. Canonical names are
// processed in sorted order so that a spelling accidentally listed under two
// canonicals resolves the same way on every run; the first mapping wins.
func NewTable(synonyms map[string][]string) *Table {
	t := &Table{
		sources:   make(map[string][]string, len(synonyms)),
		canonical: make(map[string]string),
	}
	canons := make([]string, 0, len(synonyms))
	for canon := range synonyms {
		canons = append(canons, canon)
	}
	sort.Strings(canons)
	for _, canon := range canons {
		t.add(canon, synonyms[canon])
	}
	return t
}

func (t *Table) add(canon string, alts []string) {
	if _, ok := t.canonical[canon]; !ok {
		t.canonical[canon] = canon
		t.sources[canon] = append(t.sources[canon], canon)
	}
	for _, alt := range alts {
		if _, ok := t.canonical[alt]; ok {
			continue
		}
		t.canonical[alt] = canon
		t.sources[canon] = append(t.sources[canon], alt)
	}
}

// Canonical resolves a trimmed source spelling to its canonical name.
func (t *Table) Canonical(name string) (string, bool) {
	c, ok := t.canonical[name]
	return c, ok
}

// Sources returns the spellings for a canonical name in priority order,
// starting with the canonical name itself.
func (t *Table) Sources(canon string) []string {
	if s, ok := t.sources[canon]; ok {
		return s
	}
	return []string{canon}
}

// DefaultTable returns the built-in synonym table.
func DefaultTable() *Table { return defaultTable }

// LoadTable reads a YAML synonym file and merges it over the built-in table.
// File entries extend a canonical name's synonym list; they cannot unmap a
// built-in spelling.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "normalize: read synonym table %s", path)
	}
	extra, err := parseSynonyms(data)
	if err != nil {
		return nil, eris.Wrapf(err, "normalize: parse synonym table %s", path)
	}

	merged, err := parseSynonyms(defaultTableYAML)
	if err != nil {
		return nil, eris.Wrap(err, "normalize: parse built-in synonym table")
	}
	t := NewTable(merged)
	canons := make([]string, 0, len(extra))
	for canon := range extra {
		canons = append(canons, canon)
	}
	sort.Strings(canons)
	for _, canon := range canons {
		t.add(canon, extra[canon])
	}
	return t, nil
}

func parseSynonyms(data []byte) (map[string][]string, error) {
	var wrapper struct {
		Synonyms map[string][]string `yaml:"synonyms"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "unmarshal synonyms")
	}
	return wrapper.Synonyms, nil
}

func mustParseTable(data []byte) *Table {
	m, err := parseSynonyms(data)
	if err != nil {
		panic(err) // embedded asset, unreachable at runtime
	}
	return NewTable(m)
}
