package history

import (
	"bytes"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ============================================================
// History Manager
// ============================================================

const (
	defaultMaxEntries  = 50
	minMaxEntries      = 2
	defaultMergeWindow = time.Second

	InitialAction = "initial"
)

var (
	ErrNothingToUndo  = errors.New("nothing to undo")
	ErrNothingToRedo  = errors.New("nothing to redo")
	ErrBatchOpen      = errors.New("batch is open")
	ErrNoBatch        = errors.New("no open batch")
	ErrEntryNotFound  = errors.New("history entry not found")
	ErrEmptySnapshot  = errors.New("empty snapshot")
	ErrHistoryMissing = errors.New("history not opened")
)

// DefaultMergeableActions - действия, которые при быстрой серии сливаются в одну запись.
var DefaultMergeableActions = []string{"move", "resize", "rotate", "text:edit", "style:color", "style:opacity"}

type RecordOutcome int

const (
	Appended RecordOutcome = iota
	Merged
	Skipped
	Batched
)

func (o RecordOutcome) String() string {
	switch o {
	case Appended:
		return "appended"
	case Merged:
		return "merged"
	case Skipped:
		return "skipped"
	case Batched:
		return "batched"
	}
	return "unknown"
}

type Options struct {
	MaxEntries       int
	MergeWindow      time.Duration
	MergeableActions []string
	Clock            func() time.Time
}

func DefaultOptions() Options {
	return Options{
		MaxEntries:       defaultMaxEntries,
		MergeWindow:      defaultMergeWindow,
		MergeableActions: DefaultMergeableActions,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxEntries == 0 {
		o.MaxEntries = defaultMaxEntries
	}
	if o.MaxEntries < minMaxEntries {
		o.MaxEntries = minMaxEntries
	}
	if o.MergeWindow < 0 {
		o.MergeWindow = 0
	}
	if o.MergeableActions == nil {
		o.MergeableActions = DefaultMergeableActions
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

type Entry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	Snapshot  []byte         `json:"-"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	sealed bool
}

// Summary - запись истории без снимка, для списка в UI.
type Summary struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Size      int            `json:"size"`
	Current   bool           `json:"current"`
}

type batch struct {
	action  string
	depth   int
	pending []byte
	meta    map[string]any
}

// Manager - журнал снимков холста с курсором undo/redo.
type Manager struct {
	mu        sync.Mutex
	opts      Options
	mergeable map[string]struct{}
	entries   []*Entry
	cursor    int
	batch     *batch
}

func New(initial []byte, opts Options) *Manager {
	opts = opts.withDefaults()

	m := &Manager{
		opts:      opts,
		mergeable: make(map[string]struct{}, len(opts.MergeableActions)),
	}
	for _, a := range opts.MergeableActions {
		m.mergeable[a] = struct{}{}
	}

	m.reset(initial)
	return m
}

func (m *Manager) reset(snapshot []byte) {
	m.entries = []*Entry{m.newEntry(InitialAction, snapshot, nil)}
	m.entries[0].sealed = true
	m.cursor = 0
	m.batch = nil
}

func (m *Manager) newEntry(action string, snapshot []byte, meta map[string]any) *Entry {
	return &Entry{
		ID:        uuid.NewString(),
		Timestamp: m.opts.Clock(),
		Action:    action,
		Snapshot:  bytes.Clone(snapshot),
		Metadata:  mergeMeta(nil, meta),
	}
}

// Record фиксирует новый снимок с учётом батча, дедупликации и слияния.
func (m *Manager) Record(action string, snapshot []byte, meta map[string]any) (Entry, RecordOutcome, error) {
	if len(snapshot) == 0 {
		return Entry{}, Skipped, ErrEmptySnapshot
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.batch != nil {
		m.batch.pending = bytes.Clone(snapshot)
		m.batch.meta = mergeMeta(m.batch.meta, meta)
		return Entry{Action: m.batch.action, Timestamp: m.opts.Clock(), Snapshot: bytes.Clone(snapshot)}, Batched, nil
	}

	cur := m.entries[m.cursor]
	if bytes.Equal(cur.Snapshot, snapshot) {
		return cur.copy(), Skipped, nil
	}

	m.truncateRedo()

	now := m.opts.Clock()
	if m.canMerge(cur, action, now) {
		cur.Snapshot = bytes.Clone(snapshot)
		cur.Timestamp = now
		cur.Metadata = mergeMeta(cur.Metadata, meta)
		return cur.copy(), Merged, nil
	}

	e := m.newEntry(action, snapshot, meta)
	m.append(e)
	return e.copy(), Appended, nil
}

func (m *Manager) canMerge(cur *Entry, action string, now time.Time) bool {
	if cur.sealed || cur.Action != action {
		return false
	}
	if _, ok := m.mergeable[action]; !ok {
		return false
	}
	return now.Sub(cur.Timestamp) <= m.opts.MergeWindow
}

func (m *Manager) truncateRedo() {
	if m.cursor < len(m.entries)-1 {
		for i := m.cursor + 1; i < len(m.entries); i++ {
			m.entries[i] = nil
		}
		m.entries = m.entries[:m.cursor+1]
	}
}

func (m *Manager) append(e *Entry) {
	m.entries = append(m.entries, e)
	m.cursor = len(m.entries) - 1

	if over := len(m.entries) - m.opts.MaxEntries; over > 0 {
		m.entries = append([]*Entry(nil), m.entries[over:]...)
		m.cursor -= over
	}
}

// ============================================================
// Batches
// ============================================================

// BeginBatch открывает батч; вложенные вызовы увеличивают глубину, метка берётся у внешнего.
func (m *Manager) BeginBatch(action string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.batch != nil {
		m.batch.depth++
		return
	}
	m.batch = &batch{action: action, depth: 1}
}

// EndBatch закрывает уровень батча; на нулевой глубине изменения становятся одной записью.
func (m *Manager) EndBatch() (Entry, RecordOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.batch == nil {
		return Entry{}, Skipped, ErrNoBatch
	}

	m.batch.depth--
	if m.batch.depth > 0 {
		return Entry{Action: m.batch.action}, Batched, nil
	}

	b := m.batch
	m.batch = nil

	cur := m.entries[m.cursor]
	if b.pending == nil || bytes.Equal(cur.Snapshot, b.pending) {
		return cur.copy(), Skipped, nil
	}

	m.truncateRedo()
	e := m.newEntry(b.action, b.pending, b.meta)
	e.sealed = true
	m.append(e)
	return e.copy(), Appended, nil
}

// CancelBatch отбрасывает открытый батч целиком.
func (m *Manager) CancelBatch() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.batch == nil {
		return ErrNoBatch
	}
	m.batch = nil
	return nil
}

func (m *Manager) InBatch() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batch != nil
}

// Seal закрывает текущую запись для слияния (конец перетаскивания).
func (m *Manager) Seal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[m.cursor].sealed = true
}

// ============================================================
// Navigation
// ============================================================

func (m *Manager) Undo() (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.batch != nil {
		return Entry{}, ErrBatchOpen
	}
	if m.cursor == 0 {
		return Entry{}, ErrNothingToUndo
	}
	m.cursor--
	return m.land(), nil
}

func (m *Manager) Redo() (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.batch != nil {
		return Entry{}, ErrBatchOpen
	}
	if m.cursor >= len(m.entries)-1 {
		return Entry{}, ErrNothingToRedo
	}
	m.cursor++
	return m.land(), nil
}

// Goto переводит курсор на запись с указанным id.
func (m *Manager) Goto(id string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.batch != nil {
		return Entry{}, ErrBatchOpen
	}
	for i, e := range m.entries {
		if e.ID == id {
			m.cursor = i
			return m.land(), nil
		}
	}
	return Entry{}, ErrEntryNotFound
}

// land запечатывает запись под курсором: после восстановления снимка новое действие
// не должно сливаться с ней.
func (m *Manager) land() Entry {
	e := m.entries[m.cursor]
	e.sealed = true
	return e.copy()
}

func (m *Manager) Current() Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[m.cursor].copy()
}

func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batch == nil && m.cursor > 0
}

func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batch == nil && m.cursor < len(m.entries)-1
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Entries возвращает журнал без снимков, от старых к новым.
func (m *Manager) Entries() []Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Summary, len(m.entries))
	for i, e := range m.entries {
		out[i] = Summary{
			ID:        e.ID,
			Timestamp: e.Timestamp,
			Action:    e.Action,
			Metadata:  maps.Clone(e.Metadata),
			Size:      len(e.Snapshot),
			Current:   i == m.cursor,
		}
	}
	return out
}

// Reset начинает журнал заново с одним снимком.
func (m *Manager) Reset(snapshot []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset(snapshot)
}

func (e *Entry) copy() Entry {
	return Entry{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		Action:    e.Action,
		Snapshot:  bytes.Clone(e.Snapshot),
		Metadata:  maps.Clone(e.Metadata),
		sealed:    e.sealed,
	}
}

func mergeMeta(dst, src map[string]any) map[string]any {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	maps.Copy(dst, src)
	return dst
}
