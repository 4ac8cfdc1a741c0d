package history

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(t *testing.T, opts Options) (*Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	opts.Clock = clock.Now
	return New([]byte("s0"), opts), clock
}

func snap(i int) []byte { return []byte(fmt.Sprintf("s%d", i)) }

func TestRecordAppendUndoRedo(t *testing.T) {
	m, clock := newTestManager(t, DefaultOptions())

	_, out, err := m.Record("add", snap(1), nil)
	require.NoError(t, err)
	assert.Equal(t, Appended, out)

	clock.Advance(5 * time.Second)
	_, out, err = m.Record("add", snap(2), nil)
	require.NoError(t, err)
	assert.Equal(t, Appended, out)
	assert.Equal(t, 3, m.Len())

	e, err := m.Undo()
	require.NoError(t, err)
	assert.Equal(t, snap(1), e.Snapshot)

	e, err = m.Undo()
	require.NoError(t, err)
	assert.Equal(t, snap(0), e.Snapshot)
	assert.Equal(t, InitialAction, e.Action)

	_, err = m.Undo()
	assert.ErrorIs(t, err, ErrNothingToUndo)

	e, err = m.Redo()
	require.NoError(t, err)
	assert.Equal(t, snap(1), e.Snapshot)

	e, err = m.Redo()
	require.NoError(t, err)
	assert.Equal(t, snap(2), e.Snapshot)

	_, err = m.Redo()
	assert.ErrorIs(t, err, ErrNothingToRedo)
}

func TestRecordSkipsIdenticalSnapshot(t *testing.T) {
	m, _ := newTestManager(t, DefaultOptions())

	_, out, err := m.Record("move", snap(0), nil)
	require.NoError(t, err)
	assert.Equal(t, Skipped, out)
	assert.Equal(t, 1, m.Len())

	_, _, err = m.Record("move", nil, nil)
	assert.ErrorIs(t, err, ErrEmptySnapshot)
}

func TestRecordMergesWithinWindow(t *testing.T) {
	m, clock := newTestManager(t, DefaultOptions())

	_, out, _ := m.Record("move", snap(1), map[string]any{"object": "a"})
	assert.Equal(t, Appended, out)

	clock.Advance(600 * time.Millisecond)
	e, out, _ := m.Record("move", snap(2), map[string]any{"dx": 3})
	assert.Equal(t, Merged, out)
	assert.Equal(t, snap(2), e.Snapshot)
	assert.Equal(t, "a", e.Metadata["object"])
	assert.Equal(t, 3, e.Metadata["dx"])

	// окно скользит от последнего слияния
	clock.Advance(600 * time.Millisecond)
	_, out, _ = m.Record("move", snap(3), nil)
	assert.Equal(t, Merged, out)
	assert.Equal(t, 2, m.Len())

	clock.Advance(1500 * time.Millisecond)
	_, out, _ = m.Record("move", snap(4), nil)
	assert.Equal(t, Appended, out)
	assert.Equal(t, 3, m.Len())

	e, err := m.Undo()
	require.NoError(t, err)
	assert.Equal(t, snap(3), e.Snapshot)
}

func TestRecordDoesNotMergeDifferentOrNonMergeable(t *testing.T) {
	m, clock := newTestManager(t, DefaultOptions())

	m.Record("move", snap(1), nil)
	clock.Advance(100 * time.Millisecond)
	_, out, _ := m.Record("resize", snap(2), nil)
	assert.Equal(t, Appended, out)

	clock.Advance(100 * time.Millisecond)
	m.Record("add", snap(3), nil)
	clock.Advance(100 * time.Millisecond)
	_, out, _ = m.Record("add", snap(4), nil)
	assert.Equal(t, Appended, out)

	assert.Equal(t, 5, m.Len())
}

func TestInitialEntryNeverMerges(t *testing.T) {
	opts := DefaultOptions()
	opts.MergeableActions = []string{InitialAction}
	m, _ := newTestManager(t, opts)

	_, out, _ := m.Record(InitialAction, snap(1), nil)
	assert.Equal(t, Appended, out)
}

func TestSealStopsMerging(t *testing.T) {
	m, clock := newTestManager(t, DefaultOptions())

	m.Record("move", snap(1), nil)
	m.Seal()
	clock.Advance(100 * time.Millisecond)

	_, out, _ := m.Record("move", snap(2), nil)
	assert.Equal(t, Appended, out)
}

func TestRecordAfterUndoDropsRedoBranch(t *testing.T) {
	m, clock := newTestManager(t, DefaultOptions())

	m.Record("move", snap(1), nil)
	clock.Advance(2 * time.Second)
	m.Record("resize", snap(2), nil)

	_, err := m.Undo()
	require.NoError(t, err)
	assert.True(t, m.CanRedo())

	// запись под курсором запечатана после undo и не поглощает новое действие
	clock.Advance(100 * time.Millisecond)
	_, out, _ := m.Record("move", snap(3), nil)
	assert.Equal(t, Appended, out)
	assert.False(t, m.CanRedo())
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, snap(3), m.Current().Snapshot)
}

func TestMaxEntriesDropsOldest(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxEntries = 3
	m, clock := newTestManager(t, opts)

	for i := 1; i <= 5; i++ {
		clock.Advance(2 * time.Second)
		m.Record("add", snap(i), nil)
	}
	assert.Equal(t, 3, m.Len())

	e, _ := m.Undo()
	assert.Equal(t, snap(4), e.Snapshot)
	e, _ = m.Undo()
	assert.Equal(t, snap(3), e.Snapshot)
	_, err := m.Undo()
	assert.ErrorIs(t, err, ErrNothingToUndo)
}

func TestMaxEntriesHasFloor(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxEntries = 1
	m, _ := newTestManager(t, opts)

	m.Record("add", snap(1), nil)
	m.Record("add", snap(2), nil)
	assert.Equal(t, 2, m.Len())
	assert.True(t, m.CanUndo())
}

func TestBatchCommitsOneSealedEntry(t *testing.T) {
	m, clock := newTestManager(t, DefaultOptions())

	m.BeginBatch("align")
	m.BeginBatch("move")
	assert.True(t, m.InBatch())

	_, out, _ := m.Record("move", snap(1), map[string]any{"a": 1})
	assert.Equal(t, Batched, out)
	_, out, _ = m.Record("move", snap(2), map[string]any{"b": 2})
	assert.Equal(t, Batched, out)

	_, err := m.Undo()
	assert.ErrorIs(t, err, ErrBatchOpen)
	assert.False(t, m.CanUndo())

	_, out, err = m.EndBatch()
	require.NoError(t, err)
	assert.Equal(t, Batched, out)

	e, out, err := m.EndBatch()
	require.NoError(t, err)
	assert.Equal(t, Appended, out)
	assert.Equal(t, "align", e.Action)
	assert.Equal(t, snap(2), e.Snapshot)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, e.Metadata)
	assert.Equal(t, 2, m.Len())

	// запечатанная запись батча не сливается
	clock.Advance(10 * time.Millisecond)
	_, out, _ = m.Record("align", snap(3), nil)
	assert.Equal(t, Appended, out)

	_, _, err = m.EndBatch()
	assert.ErrorIs(t, err, ErrNoBatch)
}

func TestBatchWithoutChangesIsSkipped(t *testing.T) {
	m, _ := newTestManager(t, DefaultOptions())

	m.BeginBatch("noop")
	_, out, err := m.EndBatch()
	require.NoError(t, err)
	assert.Equal(t, Skipped, out)

	m.BeginBatch("noop")
	m.Record("move", snap(0), nil)
	_, out, _ = m.EndBatch()
	assert.Equal(t, Skipped, out)
	assert.Equal(t, 1, m.Len())
}

func TestCancelBatch(t *testing.T) {
	m, _ := newTestManager(t, DefaultOptions())

	assert.ErrorIs(t, m.CancelBatch(), ErrNoBatch)

	m.BeginBatch("paste")
	m.Record("paste", snap(1), nil)
	require.NoError(t, m.CancelBatch())

	assert.False(t, m.InBatch())
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, snap(0), m.Current().Snapshot)
}

func TestGotoEntriesAndReset(t *testing.T) {
	m, clock := newTestManager(t, DefaultOptions())

	first, _, _ := m.Record("add", snap(1), nil)
	clock.Advance(time.Second)
	m.Record("add", snap(2), nil)

	e, err := m.Goto(first.ID)
	require.NoError(t, err)
	assert.Equal(t, snap(1), e.Snapshot)

	_, err = m.Goto("missing")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	list := m.Entries()
	require.Len(t, list, 3)
	assert.Equal(t, InitialAction, list[0].Action)
	assert.True(t, list[1].Current)
	assert.False(t, list[2].Current)
	assert.Equal(t, 2, list[1].Size)

	m.Reset(snap(9))
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, snap(9), m.Current().Snapshot)
	assert.False(t, m.CanUndo())
}

func TestSnapshotsAreCopied(t *testing.T) {
	m, _ := newTestManager(t, DefaultOptions())

	buf := []byte("s1")
	m.Record("add", buf, nil)
	buf[0] = 'x'

	assert.Equal(t, []byte("s1"), m.Current().Snapshot)

	cur := m.Current()
	cur.Snapshot[0] = 'y'
	assert.Equal(t, []byte("s1"), m.Current().Snapshot)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(DefaultOptions())

	_, ok := r.Get("d1")
	assert.False(t, ok)

	var wg sync.WaitGroup
	managers := make([]*Manager, 8)
	for i := range managers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			managers[i] = r.Open("d1", snap(0))
		}(i)
	}
	wg.Wait()

	for _, m := range managers {
		assert.Same(t, managers[0], m)
	}
	assert.Equal(t, 1, r.Len())

	r.Drop("d1")
	assert.Equal(t, 0, r.Len())
}

func TestRecordOutcomeString(t *testing.T) {
	assert.Equal(t, "merged", Merged.String())
	assert.Equal(t, "batched", Batched.String())
}
