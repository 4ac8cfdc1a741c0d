package cache

import (
	"bytes"
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// ============================================================
// Render Cache
// ============================================================

const (
	DefaultMaxEntries      = 256
	DefaultMaxBytes        = 64 << 20
	DefaultTTL             = 10 * time.Minute
	DefaultCleanupInterval = time.Minute
)

var (
	ErrEntryTooLarge = errors.New("cache entry exceeds size limit")
	ErrRenderPanic   = errors.New("render panicked")
)

type Options struct {
	MaxEntries      int
	MaxBytes        int64
	TTL             time.Duration
	CleanupInterval time.Duration
	Remote          RemoteStore
	Logger          zerolog.Logger
	Clock           func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxEntries <= 0 {
		o.MaxEntries = DefaultMaxEntries
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = DefaultCleanupInterval
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Entry - закэшированный результат рендера.
type Entry struct {
	Key         string    `json:"key"`
	Blob        []byte    `json:"-"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	LastAccess  time.Time `json:"last_access"`
	Hits        int64     `json:"hits"`
}

type item struct {
	entry      Entry
	templateID string
	element    *list.Element
}

type Stats struct {
	Entries     int     `json:"entries"`
	Bytes       int64   `json:"bytes"`
	BytesHuman  string  `json:"bytes_human"`
	MaxBytes    int64   `json:"max_bytes"`
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Expirations uint64  `json:"expirations"`
	HitRate     float64 `json:"hit_rate"`
}

// Cache - LRU с TTL в памяти и необязательным удалённым уровнем.
type Cache struct {
	mu         sync.Mutex
	opts       Options
	items      map[string]*item
	lru        *list.List // front = самый свежий
	byTemplate map[string]map[string]struct{}
	size       int64

	inflightMu sync.Mutex
	inflight   map[string]*call

	hits        atomic.Uint64
	misses      atomic.Uint64
	evictions   atomic.Uint64
	expirations atomic.Uint64
}

func New(opts Options) *Cache {
	return &Cache{
		opts:       opts.withDefaults(),
		items:      make(map[string]*item),
		lru:        list.New(),
		byTemplate: make(map[string]map[string]struct{}),
		inflight:   make(map[string]*call),
	}
}

// Get возвращает запись; просроченная запись удаляется и считается промахом.
func (c *Cache) Get(ctx context.Context, key Key) (Entry, bool) {
	k := key.String()

	if e, ok := c.getLocal(k); ok {
		c.hits.Add(1)
		return e, true
	}

	if c.opts.Remote != nil {
		blob, ct, err := c.opts.Remote.Get(ctx, k)
		switch {
		case err == nil:
			c.store(k, key.TemplateID, blob, ct)
			if e, ok := c.getLocal(k); ok {
				c.hits.Add(1)
				return e, true
			}
		case !errors.Is(err, ErrMiss):
			c.opts.Logger.Warn().Err(err).Str("key", k).Msg("remote cache get failed")
		}
	}

	c.misses.Add(1)
	return Entry{}, false
}

func (c *Cache) getLocal(k string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[k]
	if !ok {
		return Entry{}, false
	}

	now := c.opts.Clock()
	if !now.Before(it.entry.ExpiresAt) {
		c.removeLocked(it)
		c.expirations.Add(1)
		return Entry{}, false
	}

	c.lru.MoveToFront(it.element)
	it.entry.Hits++
	it.entry.LastAccess = now
	return it.entry, true
}

// Set кладёт blob в кэш и в удалённый уровень с тем же TTL.
func (c *Cache) Set(ctx context.Context, key Key, blob []byte, contentType string) error {
	if int64(len(blob)) > c.opts.MaxBytes {
		return fmt.Errorf("%w: %s > %s", ErrEntryTooLarge,
			humanize.IBytes(uint64(len(blob))), humanize.IBytes(uint64(c.opts.MaxBytes)))
	}

	k := key.String()
	c.store(k, key.TemplateID, blob, contentType)

	if c.opts.Remote != nil {
		if err := c.opts.Remote.Set(ctx, k, blob, contentType, c.opts.TTL); err != nil {
			c.opts.Logger.Warn().Err(err).Str("key", k).Msg("remote cache set failed")
		}
	}
	return nil
}

func (c *Cache) store(k, templateID string, blob []byte, contentType string) {
	if int64(len(blob)) > c.opts.MaxBytes {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.items[k]; ok {
		c.removeLocked(old)
	}

	now := c.opts.Clock()
	it := &item{
		entry: Entry{
			Key:         k,
			Blob:        bytes.Clone(blob),
			ContentType: contentType,
			CreatedAt:   now,
			ExpiresAt:   now.Add(c.opts.TTL),
			LastAccess:  now,
		},
		templateID: templateID,
	}
	it.element = c.lru.PushFront(it)
	c.items[k] = it
	c.size += int64(len(blob))

	if templateID != "" {
		keys, ok := c.byTemplate[templateID]
		if !ok {
			keys = make(map[string]struct{})
			c.byTemplate[templateID] = keys
		}
		keys[k] = struct{}{}
	}

	c.evictLocked()
}

// evictLocked удаляет самые старые записи, пока не выполнены оба ограничения.
func (c *Cache) evictLocked() {
	for (len(c.items) > c.opts.MaxEntries || c.size > c.opts.MaxBytes) && c.lru.Len() > 0 {
		it := c.lru.Back().Value.(*item)
		c.removeLocked(it)
		c.evictions.Add(1)
	}
}

func (c *Cache) removeLocked(it *item) {
	c.lru.Remove(it.element)
	delete(c.items, it.entry.Key)
	c.size -= int64(len(it.entry.Blob))

	if it.templateID == "" {
		return
	}
	if keys, ok := c.byTemplate[it.templateID]; ok {
		delete(keys, it.entry.Key)
		if len(keys) == 0 {
			delete(c.byTemplate, it.templateID)
		}
	}
}

func (c *Cache) Delete(ctx context.Context, key Key) {
	k := key.String()

	c.mu.Lock()
	if it, ok := c.items[k]; ok {
		c.removeLocked(it)
	}
	c.mu.Unlock()

	c.deleteRemote(ctx, k)
}

// InvalidateTemplate удаляет все рендеры шаблона, возвращает число удалённых записей.
func (c *Cache) InvalidateTemplate(ctx context.Context, templateID string) int {
	c.mu.Lock()
	keys := make([]string, 0, len(c.byTemplate[templateID]))
	for k := range c.byTemplate[templateID] {
		keys = append(keys, k)
	}
	for _, k := range keys {
		if it, ok := c.items[k]; ok {
			c.removeLocked(it)
		}
	}
	c.mu.Unlock()

	// в удалённом уровне могут лежать рендеры других узлов, их нет в локальном индексе
	if c.opts.Remote != nil {
		n, err := c.opts.Remote.DeletePrefix(ctx, TemplatePrefix(templateID))
		if err != nil {
			c.opts.Logger.Warn().Err(err).Str("template", templateID).Msg("remote cache invalidate failed")
		} else {
			c.opts.Logger.Debug().Str("template", templateID).Int("remote", n).Msg("remote renders invalidated")
		}
	}
	return len(keys)
}

func (c *Cache) deleteRemote(ctx context.Context, keys ...string) {
	if c.opts.Remote == nil || len(keys) == 0 {
		return
	}
	if err := c.opts.Remote.Delete(ctx, keys...); err != nil {
		c.opts.Logger.Warn().Err(err).Int("keys", len(keys)).Msg("remote cache delete failed")
	}
}

// Purge удаляет просроченные записи, возвращает их число.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.Clock()
	var expired []*item
	for _, it := range c.items {
		if !now.Before(it.entry.ExpiresAt) {
			expired = append(expired, it)
		}
	}
	for _, it := range expired {
		c.removeLocked(it)
	}
	c.expirations.Add(uint64(len(expired)))
	return len(expired)
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*item)
	c.byTemplate = make(map[string]map[string]struct{})
	c.lru.Init()
	c.size = 0
}

// Run чистит просроченные записи каждые CleanupInterval до отмены контекста.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Purge(); n > 0 {
				st := c.Stats()
				c.opts.Logger.Debug().
					Int("purged", n).
					Int("entries", st.Entries).
					Str("size", st.BytesHuman).
					Msg("render cache cleanup")
			}
		}
	}
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	entries := len(c.items)
	size := c.size
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Entries:     entries,
		Bytes:       size,
		BytesHuman:  humanize.IBytes(uint64(size)),
		MaxBytes:    c.opts.MaxBytes,
		Hits:        hits,
		Misses:      misses,
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
		HitRate:     hitRate,
	}
}

// ============================================================
// Render deduplication
// ============================================================

// RenderFunc строит blob и его content type.
type RenderFunc func(ctx context.Context) ([]byte, string, error)

type call struct {
	wg    sync.WaitGroup
	entry Entry
	err   error
}

// GetOrRender возвращает запись из кэша или рендерит её; одновременные вызовы
// с одним ключом разделяют один рендер. hit=true, если рендер не выполнялся.
func (c *Cache) GetOrRender(ctx context.Context, key Key, render RenderFunc) (Entry, bool, error) {
	if e, ok := c.Get(ctx, key); ok {
		return e, true, nil
	}

	k := key.String()

	c.inflightMu.Lock()
	if cl, ok := c.inflight[k]; ok {
		c.inflightMu.Unlock()
		cl.wg.Wait()
		return cl.entry, false, cl.err
	}
	cl := &call{}
	cl.wg.Add(1)
	c.inflight[k] = cl
	c.inflightMu.Unlock()

	defer func() {
		// паника рендера не должна отдать ожидающим пустую запись без ошибки
		r := recover()
		if r != nil {
			cl.err = fmt.Errorf("%w: %v", ErrRenderPanic, r)
		}
		c.inflightMu.Lock()
		delete(c.inflight, k)
		c.inflightMu.Unlock()
		cl.wg.Done()
		if r != nil {
			panic(r)
		}
	}()

	blob, ct, err := render(ctx)
	if err != nil {
		cl.err = err
		return Entry{}, false, err
	}

	now := c.opts.Clock()
	cl.entry = Entry{
		Key:         k,
		Blob:        blob,
		ContentType: ct,
		CreatedAt:   now,
		ExpiresAt:   now.Add(c.opts.TTL),
		LastAccess:  now,
	}

	if err := c.Set(ctx, key, blob, ct); err != nil {
		// слишком большой результат отдаём без кэширования
		c.opts.Logger.Debug().Err(err).Str("key", k).Msg("render result not cached")
	}
	return cl.entry, false, nil
}
