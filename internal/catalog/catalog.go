package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/seanmckee-pacmet/contract-review-2/pkg/logger"
)

// Entry is one notable clause from the taxonomy the system screens every
// review job against.
type Entry struct {
	ID          string
	Description string
}

// Catalog is the notable-clause taxonomy, read-only once loaded.
type Catalog struct {
	entries []Entry
	byID    map[string]string
}

// Entries returns all catalog entries sorted by clause id. Order is stable
// so job aggregation is deterministic, though downstream analysis does not
// depend on it.
func (c *Catalog) Entries() []Entry {
	return c.entries
}

func (c *Catalog) Description(clauseID string) (string, bool) {
	desc, ok := c.byID[clauseID]
	return desc, ok
}

func (c *Catalog) Len() int {
	return len(c.entries)
}

// Loader loads the catalog file at most once per process and caches the
// result. Concurrent first access is single-flighted through sync.Once.
type Loader struct {
	path string
	once sync.Once
	cat  *Catalog
	err  error
}

func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

func (l *Loader) Get() (*Catalog, error) {
	l.once.Do(func() {
		l.cat, l.err = load(l.path)
		if l.err == nil {
			logger.Info("Notable clause catalog loaded",
				zap.String("path", l.path),
				zap.Int("clauses", l.cat.Len()),
			)
		}
	})
	return l.cat, l.err
}

// load reads the canonical flat catalog schema: a single JSON object mapping
// clause id to description. Nested per-clause objects are rejected so the
// two historical file formats cannot silently diverge.
func load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}

	byID := make(map[string]string, len(raw))
	for id, val := range raw {
		var desc string
		if err := json.Unmarshal(val, &desc); err != nil {
			return nil, fmt.Errorf("catalog entry %q is not a plain description string; the catalog schema is a flat {clause_id: description} object", id)
		}
		byID[id] = desc
	}

	entries := make([]Entry, 0, len(byID))
	for id, desc := range byID {
		entries = append(entries, Entry{ID: id, Description: desc})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	return &Catalog{entries: entries, byID: byID}, nil
}
