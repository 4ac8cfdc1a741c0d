package service

import (
	"slices"
	"strings"
	"sync"

	"design-studio/internal/design/models"
	"design-studio/internal/design/snap"
)

// SnapStore держит по одному snap.Cache на дизайн, пока не сменятся версия
// или набор перемещаемых объектов. Серия запросов одного перетаскивания
// переиспользует отсортированных кандидатов.
type SnapStore struct {
	mu     sync.Mutex
	caches map[string]snapEntry
	hits   uint64
	builds uint64
}

type snapEntry struct {
	moving string
	opts   snap.Options
	cache  *snap.Cache
}

func NewSnapStore() *SnapStore {
	return &SnapStore{caches: make(map[string]snapEntry)}
}

// Get возвращает кэш для версии дизайна, перестраивая его при устаревании.
func (s *SnapStore) Get(design models.Design, movingIDs []string, opts snap.Options) *snap.Cache {
	opts.Version = design.Version
	key := movingKey(movingIDs)

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.caches[design.ID]; ok && e.moving == key && e.opts == opts && !e.cache.Stale(design.Version) {
		s.hits++
		return e.cache
	}

	c := snap.NewCache(design.Canvas, movingIDs, opts)
	s.caches[design.ID] = snapEntry{moving: key, opts: opts, cache: c}
	s.builds++
	return c
}

func (s *SnapStore) Drop(designID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.caches, designID)
}

// Stats - число переиспользований и перестроений.
func (s *SnapStore) Stats() (hits, builds uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits, s.builds
}

func movingKey(ids []string) string {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	return strings.Join(slices.Compact(sorted), "\x00")
}
