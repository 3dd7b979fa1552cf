package aliasing

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResolver_WithValidConfig(t *testing.T) {
	cfg := &Config{
		EnvAliases: map[string]string{
			"cpython-3.11": "py311",
			"python3.11":   "py311",
		},
	}

	r := NewResolver(cfg)

	require.NotNil(t, r)
	assert.Equal(t, 2, r.AliasCount())
}

func TestNewResolver_WithNilConfig(t *testing.T) {
	r := NewResolver(nil)

	require.NotNil(t, r)
	assert.Equal(t, 0, r.AliasCount())
}

func TestNewResolver_SkipsEmptyEntries(t *testing.T) {
	cfg := &Config{
		EnvAliases: map[string]string{
			"":           "py311",
			"  ":         "py311",
			"python3.11": "",
			"pypy-7.3":   "pypy3",
		},
	}

	r := NewResolver(cfg)

	assert.Equal(t, 1, r.AliasCount())
	assert.Equal(t, "pypy3", r.Resolve("pypy-7.3"))
}

func TestResolver_Resolve_KnownAlias(t *testing.T) {
	cfg := &Config{
		EnvAliases: map[string]string{
			"cpython-3.11": "py311",
		},
	}
	r := NewResolver(cfg)

	assert.Equal(t, "py311", r.Resolve("cpython-3.11"))
}

func TestResolver_Resolve_CaseAndWhitespaceInsensitive(t *testing.T) {
	cfg := &Config{
		EnvAliases: map[string]string{
			"CPython-3.11": "py311",
		},
	}
	r := NewResolver(cfg)

	assert.Equal(t, "py311", r.Resolve("cpython-3.11"))
	assert.Equal(t, "py311", r.Resolve("  CPYTHON-3.11  "))
}

func TestResolver_Resolve_UnknownLabelPassesThrough(t *testing.T) {
	cfg := &Config{
		EnvAliases: map[string]string{
			"cpython-3.11": "py311",
		},
	}
	r := NewResolver(cfg)

	assert.Equal(t, "py310", r.Resolve("py310"))
}

func TestResolver_Resolve_EmptyLabel(t *testing.T) {
	r := NewResolver(&Config{EnvAliases: map[string]string{"a": "b"}})

	assert.Equal(t, "", r.Resolve(""))
}

func TestResolver_Resolve_NilResolver(t *testing.T) {
	var r *Resolver

	assert.Equal(t, "py311", r.Resolve("py311"))
	assert.Equal(t, 0, r.AliasCount())
}

func TestResolver_ConcurrentResolve(t *testing.T) {
	cfg := &Config{
		EnvAliases: map[string]string{
			"cpython-3.11": "py311",
			"cpython-3.12": "py312",
		},
	}
	r := NewResolver(cfg)

	var wg sync.WaitGroup

	for range 16 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 100 {
				assert.Equal(t, "py311", r.Resolve("cpython-3.11"))
				assert.Equal(t, "py312", r.Resolve("CPython-3.12"))
			}
		}()
	}

	wg.Wait()
}
