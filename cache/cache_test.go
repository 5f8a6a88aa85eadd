// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jcodagnone/addrcheck/address"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validResult(street string) address.ValidationResult {
	return address.ValidationResult{
		Address: &address.StandardizedAddress{
			Street: street,
			Number: address.StringPtr("123"),
			City:   "Springfield",
			State:  "IL",
			Zip:    "62701",
		},
		Status: address.StatusValid,
	}
}

func newTestCache() *Cache {
	return New(Options{MaxSize: 100, TTL: time.Minute})
}

func TestGetSet(t *testing.T) {
	c := newTestCache()

	_, ok := c.Get("123 Main St")
	assert.False(t, ok)

	c.Set("123 Main St", validResult("Main St"))

	got, ok := c.Get("  123   MAIN st ")
	require.True(t, ok, "lookup must use the normalized key")
	assert.Equal(t, "Main St", got.Address.Street)
	assert.Equal(t, 1, c.Size())
}

func TestSetSkipsUnverifiable(t *testing.T) {
	c := newTestCache()

	c.Set("nowhere", address.Unverifiable(nil))

	_, ok := c.Get("nowhere")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestSetStoresCorrected(t *testing.T) {
	c := newTestCache()

	res := validResult("Main St")
	res.Status = address.StatusCorrected
	c.Set("123 main st", res)

	got, ok := c.Get("123 main st")
	require.True(t, ok)
	assert.Equal(t, address.StatusCorrected, got.Status)
}

func TestGetOrFetchHit(t *testing.T) {
	c := newTestCache()
	c.Set("123 Main St", validResult("Main St"))

	got, err := c.GetOrFetch(context.Background(), "123 main st", func(context.Context) (address.ValidationResult, error) {
		t.Fatal("fetcher must not run on a hit")

		return address.ValidationResult{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Main St", got.Address.Street)
	assert.Equal(t, uint64(1), c.Stats().Hits)
}

func TestGetOrFetchMissCaches(t *testing.T) {
	c := newTestCache()

	var calls atomic.Int32
	fetch := func(context.Context) (address.ValidationResult, error) {
		calls.Add(1)

		return validResult("Main St"), nil
	}

	for range 3 {
		got, err := c.GetOrFetch(context.Background(), "123 Main St", fetch)
		require.NoError(t, err)
		assert.Equal(t, address.StatusValid, got.Status)
	}

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, 1, c.Size())

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(2), stats.Hits)
}

func TestGetOrFetchUnverifiableIsRetried(t *testing.T) {
	c := newTestCache()

	var calls atomic.Int32
	fetch := func(context.Context) (address.ValidationResult, error) {
		calls.Add(1)

		return address.Unverifiable(nil), nil
	}

	for range 2 {
		got, err := c.GetOrFetch(context.Background(), "nowhere", fetch)
		require.NoError(t, err)
		assert.Equal(t, address.StatusUnverifiable, got.Status)
	}

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 0, c.Size())
	assert.Equal(t, 0, c.Pending())
}

func TestGetOrFetchCoalesces(t *testing.T) {
	c := newTestCache()

	const n = 20

	var calls atomic.Int32

	release := make(chan struct{})
	fetch := func(context.Context) (address.ValidationResult, error) {
		calls.Add(1)
		<-release

		return validResult("Main St"), nil
	}

	inputs := []string{"123 Main St", "123 MAIN ST", "  123 main   st"}
	results := make([]address.ValidationResult, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)

		go func() {
			defer wg.Done()

			results[i], errs[i] = c.GetOrFetch(context.Background(), inputs[i%len(inputs)], fetch)
		}()
	}

	require.Eventually(t, func() bool {
		st := c.Stats()

		return st.Misses+st.Coalesced == n
	}, time.Second, time.Millisecond)
	assert.Equal(t, 1, c.Pending())

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())

	for i := range n {
		require.NoError(t, errs[i])
		assert.Same(t, results[0].Address, results[i].Address, "every caller gets the shared result")
	}

	assert.Equal(t, 0, c.Pending())
}

func TestGetOrFetchErrorPropagatesAndCleansUp(t *testing.T) {
	c := newTestCache()

	boom := errors.New("boom")
	release := make(chan struct{})

	var calls atomic.Int32
	failing := func(context.Context) (address.ValidationResult, error) {
		calls.Add(1)
		<-release

		return address.ValidationResult{}, boom
	}

	var wg sync.WaitGroup

	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, errs[i] = c.GetOrFetch(context.Background(), "123 Main St", failing)
		}()
	}

	require.Eventually(t, func() bool {
		st := c.Stats()

		return st.Misses+st.Coalesced == uint64(len(errs))
	}, time.Second, time.Millisecond)

	close(release)
	wg.Wait()

	for _, err := range errs {
		require.ErrorIs(t, err, boom)
	}

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, 0, c.Size())

	got, err := c.GetOrFetch(context.Background(), "123 Main St", func(context.Context) (address.ValidationResult, error) {
		return validResult("Main St"), nil
	})
	require.NoError(t, err, "key must be fetchable again after a failure")
	assert.Equal(t, address.StatusValid, got.Status)
}

func TestGetOrFetchPanicBecomesError(t *testing.T) {
	c := newTestCache()

	_, err := c.GetOrFetch(context.Background(), "123 Main St", func(context.Context) (address.ValidationResult, error) {
		panic("kaboom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Equal(t, 0, c.Pending())
}

func TestGetOrFetchCallerCancellation(t *testing.T) {
	c := newTestCache()

	release := make(chan struct{})
	fetch := func(ctx context.Context) (address.ValidationResult, error) {
		<-release

		return validResult("Main St"), ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetOrFetch(ctx, "123 Main St", fetch)
	require.ErrorIs(t, err, context.Canceled)

	close(release)

	require.Eventually(t, func() bool { return c.Pending() == 0 }, time.Second, time.Millisecond)

	got, ok := c.Get("123 Main St")
	require.True(t, ok, "the detached fetch still completes and is cached")
	assert.Equal(t, address.StatusValid, got.Status)
}

func TestTTLExpiry(t *testing.T) {
	c := New(Options{MaxSize: 10, TTL: 50 * time.Millisecond})
	c.Set("123 Main St", validResult("Main St"))

	_, ok := c.Get("123 Main St")
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok := c.Get("123 Main St")

		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestTTLNotExtendedByAccess(t *testing.T) {
	const ttl = 300 * time.Millisecond

	c := New(Options{MaxSize: 10, TTL: ttl})

	inserted := time.Now()
	c.Set("123 Main St", validResult("Main St"))

	for time.Since(inserted) < ttl/2 {
		_, ok := c.Get("123 Main St")
		require.True(t, ok)

		time.Sleep(10 * time.Millisecond)
	}

	// refreshed on access it would live until at least 1.5*ttl
	time.Sleep(time.Until(inserted.Add(ttl + ttl/3)))

	_, ok := c.Get("123 Main St")
	assert.False(t, ok, "entries expire after insertion regardless of reads")
}

func TestLRUEviction(t *testing.T) {
	c := New(Options{MaxSize: 2, TTL: time.Minute})

	c.Set("a", validResult("A"))
	c.Set("b", validResult("B"))

	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("c", validResult("C"))

	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry is evicted")

	_, ok = c.Get("a")
	assert.True(t, ok)

	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Size())
}

func TestClear(t *testing.T) {
	c := newTestCache()
	c.Set("123 Main St", validResult("Main St"))

	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)

		_, _ = c.GetOrFetch(context.Background(), "456 Oak Ave", func(context.Context) (address.ValidationResult, error) {
			<-release

			return validResult("Oak Ave"), nil
		})
	}()

	require.Eventually(t, func() bool { return c.Pending() == 1 }, time.Second, time.Millisecond)

	c.Clear()
	assert.Equal(t, 0, c.Size())
	assert.Equal(t, 0, c.Pending())

	close(release)
	<-done

	assert.Equal(t, 0, c.Pending())

	_, ok := c.Get("456 Oak Ave")
	assert.False(t, ok, "a fetch started before the clear is not stored")
}

func TestClearDuringFetchStillAnswersWaiter(t *testing.T) {
	c := newTestCache()

	release := make(chan struct{})
	done := make(chan struct{})

	var (
		got address.ValidationResult
		err error
	)

	go func() {
		defer close(done)

		got, err = c.GetOrFetch(context.Background(), "456 Oak Ave", func(context.Context) (address.ValidationResult, error) {
			<-release

			return validResult("Oak Ave"), nil
		})
	}()

	require.Eventually(t, func() bool { return c.Pending() == 1 }, time.Second, time.Millisecond)

	c.Clear()

	// a new fetch for the same key after the clear is stored
	res, fetchErr := c.GetOrFetch(context.Background(), "456 Oak Ave", func(context.Context) (address.ValidationResult, error) {
		return validResult("Oak Avenue"), nil
	})
	require.NoError(t, fetchErr)
	assert.Equal(t, "Oak Avenue", res.Address.Street)

	close(release)
	<-done

	require.NoError(t, err)
	assert.Equal(t, "Oak Ave", got.Address.Street)

	cached, ok := c.Get("456 Oak Ave")
	require.True(t, ok)
	assert.Equal(t, "Oak Avenue", cached.Address.Street, "the stale fetch does not overwrite")
	assert.Equal(t, 0, c.Pending())
}

func TestDefaults(t *testing.T) {
	c := New(Options{})

	for i := range DefaultMaxSize + 1 {
		c.Set(fmt.Sprintf("%d Main St", i), validResult("Main St"))
	}

	assert.Equal(t, DefaultMaxSize, c.Size())
}
