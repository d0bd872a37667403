package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryPutGetRemove(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Get("acme")
	assert.False(t, ok)

	s := newSession("acme", &fakeTransport{})
	r.Put("acme", s)

	got, ok := r.Get("acme")
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, 1, r.Len())

	r.Remove("acme")
	_, ok = r.Get("acme")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestRegistryBeginClaimsOnce(t *testing.T) {
	r := NewRegistry()

	existing, wait, claimed := r.begin("acme")
	require.Nil(t, existing)
	require.Nil(t, wait)
	require.True(t, claimed)
	assert.True(t, r.Initializing("acme"))

	// second claimant gets the wait channel instead
	existing, wait, claimed = r.begin("acme")
	require.Nil(t, existing)
	require.NotNil(t, wait)
	require.False(t, claimed)

	select {
	case <-wait:
		t.Fatal("wait channel closed before settle")
	default:
	}

	r.settle("acme")
	assert.False(t, r.Initializing("acme"))
	select {
	case <-wait:
	default:
		t.Fatal("wait channel not closed by settle")
	}
}

func TestRegistryBeginReturnsExistingSession(t *testing.T) {
	r := NewRegistry()
	s := newSession("acme", &fakeTransport{})
	r.Put("acme", s)

	existing, wait, claimed := r.begin("acme")
	assert.Same(t, s, existing)
	assert.Nil(t, wait)
	assert.False(t, claimed)
}

func TestRegistryConcurrentBeginSingleClaim(t *testing.T) {
	r := NewRegistry()

	const n = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	claims := 0

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, claimed := r.begin("acme")
			if claimed {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, claims)
}

func TestRegistrySettleWithoutClaimIsNoop(t *testing.T) {
	r := NewRegistry()
	assert.NotPanics(t, func() { r.settle("acme") })
}

func TestRegistryRange(t *testing.T) {
	r := NewRegistry()
	r.Put("a", newSession("a", &fakeTransport{}))
	r.Put("b", newSession("b", &fakeTransport{}))

	seen := map[string]bool{}
	r.Range(func(tenantKey string, s *Session) bool {
		seen[tenantKey] = true
		return true
	})
	assert.Len(t, seen, 2)
}
