package catalog

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notable_clauses.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFlatCatalog(t *testing.T) {
	path := writeCatalog(t, `{
		"WQR2": "Source inspection requirements",
		"WQR1": "Certificate of conformance required"
	}`)

	cat, err := NewLoader(path).Get()
	require.NoError(t, err)

	assert.Equal(t, 2, cat.Len())

	entries := cat.Entries()
	assert.Equal(t, "WQR1", entries[0].ID)
	assert.Equal(t, "WQR2", entries[1].ID)

	desc, ok := cat.Description("WQR1")
	assert.True(t, ok)
	assert.Equal(t, "Certificate of conformance required", desc)

	_, ok = cat.Description("WQR99")
	assert.False(t, ok)
}

func TestLoadRejectsNestedSchema(t *testing.T) {
	path := writeCatalog(t, `{
		"WQR1": {"description": "Certificate of conformance", "category": "quality"}
	}`)

	_, err := NewLoader(path).Get()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flat")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "absent.json")).Get()
	require.Error(t, err)
}

func TestLoaderSingleFlight(t *testing.T) {
	path := writeCatalog(t, `{"WQR1": "desc"}`)
	loader := NewLoader(path)

	var wg sync.WaitGroup
	results := make([]*Catalog, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cat, err := loader.Get()
			require.NoError(t, err)
			results[i] = cat
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		assert.Same(t, results[0], results[i], "all callers must share the cached catalog")
	}
}
