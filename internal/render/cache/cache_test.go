package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type memRemote struct {
	mu   sync.Mutex
	data map[string][]byte
	ct   map[string]string
	ttl  map[string]time.Duration
}

func newMemRemote() *memRemote {
	return &memRemote{data: map[string][]byte{}, ct: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (m *memRemote) Get(_ context.Context, key string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if !ok {
		return nil, "", ErrMiss
	}
	return b, m.ct[key], nil
}

func (m *memRemote) Set(_ context.Context, key string, blob []byte, ct string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = blob
	m.ct[key] = ct
	m.ttl[key] = ttl
	return nil
}

func (m *memRemote) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memRemote) DeletePrefix(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func newTestCache(opts Options) (*Cache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts.Clock = clock.Now
	return New(opts), clock
}

func key(n string) Key {
	return Key{DesignID: n, Revision: "r1", Format: "png", Width: 100, Height: 100, Scale: 1}
}

func TestKeyString(t *testing.T) {
	k := Key{TemplateID: "sale-post", Revision: Revision([]byte("{}")), Format: "png", Scale: 1}
	assert.True(t, strings.HasPrefix(k.String(), "render:sale-post:"))
	assert.True(t, strings.HasPrefix(key("d").String(), "render:design:"))

	other := k
	other.Scale = 2
	assert.NotEqual(t, k.String(), other.String())
	assert.Equal(t, k.String(), k.String())

	assert.NotEqual(t, Revision([]byte("a")), Revision([]byte("b")))
}

func TestGetSetHits(t *testing.T) {
	c, clock := newTestCache(Options{})
	ctx := context.Background()

	_, ok := c.Get(ctx, key("a"))
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, key("a"), []byte("png-bytes"), "image/png"))

	clock.Advance(time.Second)
	e, ok := c.Get(ctx, key("a"))
	require.True(t, ok)
	assert.Equal(t, []byte("png-bytes"), e.Blob)
	assert.Equal(t, "image/png", e.ContentType)
	assert.Equal(t, int64(1), e.Hits)
	assert.Equal(t, clock.Now(), e.LastAccess)

	e, _ = c.Get(ctx, key("a"))
	assert.Equal(t, int64(2), e.Hits)

	st := c.Stats()
	assert.Equal(t, 1, st.Entries)
	assert.Equal(t, int64(9), st.Bytes)
	assert.Equal(t, uint64(2), st.Hits)
	assert.Equal(t, uint64(1), st.Misses)
	assert.InDelta(t, 2.0/3.0, st.HitRate, 1e-9)
	assert.Equal(t, "9 B", st.BytesHuman)
}

func TestTTLExpiration(t *testing.T) {
	c, clock := newTestCache(Options{TTL: time.Minute})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, key("a"), []byte("x"), "image/png"))
	clock.Advance(time.Minute)

	_, ok := c.Get(ctx, key("a"))
	assert.False(t, ok)

	st := c.Stats()
	assert.Equal(t, 0, st.Entries)
	assert.Equal(t, uint64(1), st.Expirations)
	assert.Equal(t, uint64(1), st.Misses)
}

func TestPurge(t *testing.T) {
	c, clock := newTestCache(Options{TTL: time.Minute})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, key("a"), []byte("x"), "image/png"))
	clock.Advance(30 * time.Second)
	require.NoError(t, c.Set(ctx, key("b"), []byte("y"), "image/png"))
	clock.Advance(40 * time.Second)

	assert.Equal(t, 1, c.Purge())
	_, ok := c.Get(ctx, key("b"))
	assert.True(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Expirations)
}

func TestEvictionByEntries(t *testing.T) {
	c, _ := newTestCache(Options{MaxEntries: 2})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, key("a"), []byte("1"), "image/png"))
	require.NoError(t, c.Set(ctx, key("b"), []byte("2"), "image/png"))

	// "a" становится свежее "b"
	_, ok := c.Get(ctx, key("a"))
	require.True(t, ok)

	require.NoError(t, c.Set(ctx, key("c"), []byte("3"), "image/png"))

	_, ok = c.Get(ctx, key("b"))
	assert.False(t, ok)
	_, ok = c.Get(ctx, key("a"))
	assert.True(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestEvictionByBytes(t *testing.T) {
	c, _ := newTestCache(Options{MaxBytes: 10})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, key("a"), []byte("123456"), "image/png"))
	require.NoError(t, c.Set(ctx, key("b"), []byte("123456"), "image/png"))

	st := c.Stats()
	assert.Equal(t, 1, st.Entries)
	assert.Equal(t, int64(6), st.Bytes)

	err := c.Set(ctx, key("big"), []byte("12345678901"), "image/png")
	assert.ErrorIs(t, err, ErrEntryTooLarge)
}

func TestReplaceUpdatesSize(t *testing.T) {
	c, _ := newTestCache(Options{})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, key("a"), []byte("12345"), "image/png"))
	require.NoError(t, c.Set(ctx, key("a"), []byte("12"), "image/jpeg"))

	st := c.Stats()
	assert.Equal(t, 1, st.Entries)
	assert.Equal(t, int64(2), st.Bytes)

	e, _ := c.Get(ctx, key("a"))
	assert.Equal(t, "image/jpeg", e.ContentType)
}

func TestInvalidateTemplateAndDelete(t *testing.T) {
	remote := newMemRemote()
	c, _ := newTestCache(Options{Remote: remote})
	ctx := context.Background()

	k1 := Key{TemplateID: "t1", Revision: "r", Format: "png", Scale: 1}
	k2 := Key{TemplateID: "t1", Revision: "r", Format: "jpg", Scale: 1}
	k3 := Key{TemplateID: "t2", Revision: "r", Format: "png", Scale: 1}
	for _, k := range []Key{k1, k2, k3} {
		require.NoError(t, c.Set(ctx, k, []byte("x"), "image/png"))
	}

	assert.Equal(t, 2, c.InvalidateTemplate(ctx, "t1"))
	assert.Equal(t, 0, c.InvalidateTemplate(ctx, "t1"))

	_, ok := c.Get(ctx, k1)
	assert.False(t, ok)
	_, ok = c.Get(ctx, k3)
	assert.True(t, ok)
	assert.Len(t, remote.data, 1)

	c.Delete(ctx, k3)
	_, ok = c.Get(ctx, k3)
	assert.False(t, ok)
	assert.Empty(t, remote.data)
}

func TestInvalidateTemplateDropsRemoteRendersOfOtherNodes(t *testing.T) {
	remote := newMemRemote()
	ctx := context.Background()

	other, _ := newTestCache(Options{Remote: remote})
	shared := Key{TemplateID: "t1", Revision: "r", Format: "png", Scale: 2}
	require.NoError(t, other.Set(ctx, shared, []byte("x"), "image/png"))
	require.NoError(t, other.Set(ctx, Key{TemplateID: "t10", Revision: "r", Format: "png", Scale: 1}, []byte("y"), "image/png"))

	local, _ := newTestCache(Options{Remote: remote})
	assert.Equal(t, 0, local.InvalidateTemplate(ctx, "t1"), "nothing in the local index")

	_, ok := local.Get(ctx, shared)
	assert.False(t, ok, "remote render must not be promoted back")
	assert.Len(t, remote.data, 1, "other templates are kept")
}

func TestMatchPrefix(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"ds:render:sale:", "ds:render:sale:*"},
		{"render:a*b?:", `render:a\*b\?:*`},
		{"render:[x]:", `render:\[x\]:*`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchPrefix(tt.prefix), tt.prefix)
	}
}

func TestRemoteTierPromotes(t *testing.T) {
	remote := newMemRemote()
	ctx := context.Background()

	writer, _ := newTestCache(Options{Remote: remote, TTL: 5 * time.Minute})
	require.NoError(t, writer.Set(ctx, key("a"), []byte("shared"), "image/png"))
	assert.Equal(t, 5*time.Minute, remote.ttl[key("a").String()])

	reader, _ := newTestCache(Options{Remote: remote})
	e, ok := reader.Get(ctx, key("a"))
	require.True(t, ok)
	assert.Equal(t, []byte("shared"), e.Blob)
	assert.Equal(t, 1, reader.Stats().Entries)
}

func TestClear(t *testing.T) {
	c, _ := newTestCache(Options{})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, Key{TemplateID: "t"}, []byte("x"), "image/png"))
	c.Clear()

	assert.Equal(t, 0, c.Stats().Entries)
	assert.Equal(t, 0, c.InvalidateTemplate(ctx, "t"))
}

func TestGetOrRenderDeduplicates(t *testing.T) {
	c, _ := newTestCache(Options{})
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	render := func(context.Context) ([]byte, string, error) {
		calls.Add(1)
		<-release
		return []byte("rendered"), "image/png", nil
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([]Entry, n)
	started := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started <- struct{}{}
			e, _, err := c.GetOrRender(ctx, key("a"), render)
			assert.NoError(t, err)
			results[i] = e
		}(i)
	}
	for i := 0; i < n; i++ {
		<-started
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, e := range results {
		assert.Equal(t, []byte("rendered"), e.Blob)
	}

	e, hit, err := c.GetOrRender(ctx, key("a"), render)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []byte("rendered"), e.Blob)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrRenderError(t *testing.T) {
	c, _ := newTestCache(Options{})
	boom := errors.New("boom")

	_, _, err := c.GetOrRender(context.Background(), key("a"), func(context.Context) ([]byte, string, error) {
		return nil, "", boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestGetOrRenderPanicFailsWaiters(t *testing.T) {
	c, _ := newTestCache(Options{})
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	leaderPanic := make(chan any, 1)
	go func() {
		defer func() { leaderPanic <- recover() }()
		c.GetOrRender(ctx, key("a"), func(context.Context) ([]byte, string, error) {
			close(entered)
			<-release
			panic("rasterizer exploded")
		})
	}()
	<-entered

	waiterErr := make(chan error, 1)
	var waiterEntry Entry
	go func() {
		e, _, err := c.GetOrRender(ctx, key("a"), func(context.Context) ([]byte, string, error) {
			return nil, "", errors.New("waiter must not render")
		})
		waiterEntry = e
		waiterErr <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	assert.Equal(t, "rasterizer exploded", <-leaderPanic, "leader re-panics")
	err := <-waiterErr
	require.ErrorIs(t, err, ErrRenderPanic)
	assert.Contains(t, err.Error(), "rasterizer exploded")
	assert.Empty(t, waiterEntry.Blob)
	assert.Equal(t, 0, c.Stats().Entries)

	// ключ освобождён: следующий вызов рендерит заново
	e, hit, err := c.GetOrRender(ctx, key("a"), func(context.Context) ([]byte, string, error) {
		return []byte("ok"), "image/png", nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []byte("ok"), e.Blob)
}

func TestRunStopsOnCancel(t *testing.T) {
	c, clock := newTestCache(Options{TTL: time.Millisecond, CleanupInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, c.Set(ctx, key("a"), []byte("x"), "image/png"))
	clock.Advance(time.Second)

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return c.Stats().Entries == 0 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
