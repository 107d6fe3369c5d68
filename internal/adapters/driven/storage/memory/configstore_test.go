package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigStore(t *testing.T) {
	store := NewConfigStore()
	require.NotNil(t, store)
	assert.Empty(t, store.Keys())
	assert.Equal(t, ":memory:", store.Path())
	assert.NoError(t, store.Load())
}

func TestConfigStore_Set_Update(t *testing.T) {
	store := NewConfigStore()

	require.NoError(t, store.Set("llm.model", "original"))
	require.NoError(t, store.Set("llm.model", "updated"))

	val, ok := store.Get("llm.model")
	assert.True(t, ok)
	assert.Equal(t, "updated", val)
}

func TestConfigStore_TypedGetters(t *testing.T) {
	store := NewConfigStoreFrom(map[string]any{
		"repository.default": "acme/widgets",
		"workers.size":       int64(8),
		"workers.float":      float64(3),
		"scheduler.enabled":  true,
		"llm.timeout":        "90s",
		"llm.native":         2 * time.Minute,
		"llm.bad":            "soon",
	})

	assert.Equal(t, "acme/widgets", store.GetString("repository.default"))
	assert.Equal(t, 8, store.GetInt("workers.size"))
	assert.Equal(t, 3, store.GetInt("workers.float"))
	assert.True(t, store.GetBool("scheduler.enabled"))
	assert.Equal(t, 90*time.Second, store.GetDuration("llm.timeout"))
	assert.Equal(t, 2*time.Minute, store.GetDuration("llm.native"))
}

func TestConfigStore_TypedGetters_WrongTypeOrMissing(t *testing.T) {
	store := NewConfigStoreFrom(map[string]any{
		"a": 42,
		"b": "text",
		"c": "soon",
	})

	assert.Empty(t, store.GetString("a"))
	assert.Zero(t, store.GetInt("b"))
	assert.False(t, store.GetBool("b"))
	assert.Zero(t, store.GetDuration("c"))
	assert.Zero(t, store.GetDuration("a"))
	assert.Empty(t, store.GetString("missing"))
	assert.Zero(t, store.GetInt("missing"))
	assert.False(t, store.GetBool("missing"))
	assert.Zero(t, store.GetDuration("missing"))
}

func TestConfigStore_Keys_Sorted(t *testing.T) {
	store := NewConfigStoreFrom(map[string]any{"z.key": 1, "a.key": 2, "m.key": 3})
	assert.Equal(t, []string{"a.key", "m.key", "z.key"}, store.Keys())
}

func TestConfigStore_ConcurrentAccess(t *testing.T) {
	store := NewConfigStore()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.Set("workers.size", i)
		}()
		go func() {
			defer wg.Done()
			_ = store.GetInt("workers.size")
		}()
	}
	wg.Wait()

	_, ok := store.Get("workers.size")
	assert.True(t, ok)
}
