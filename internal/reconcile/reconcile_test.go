package reconcile

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvasync/internal/feed"
	"canvasync/internal/ledger"
	"canvasync/internal/model"
	"canvasync/internal/todoist"
)

// fakeStore is an in-memory TaskStore recording every call.
type fakeStore struct {
	tasks  map[string]todoist.TaskSpec
	nextID int

	failCreate   bool
	failUpdate   bool
	failComplete bool

	createCalls   int
	updateCalls   int
	existsCalls   int
	completeCalls int
	reminders     []time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[string]todoist.TaskSpec)}
}

func (f *fakeStore) ResolveProject(_ context.Context, name string) (string, error) {
	return "project-" + name, nil
}

func (f *fakeStore) ResolveLabel(_ context.Context, name string) string {
	return todoist.SanitizeLabel(name)
}

func (f *fakeStore) CreateTask(_ context.Context, spec todoist.TaskSpec) (string, error) {
	f.createCalls++
	if f.failCreate {
		return "", &todoist.OpError{Op: "create task", Status: 500, Err: errors.New("boom")}
	}
	f.nextID++
	id := fmt.Sprintf("task-%d", f.nextID)
	f.tasks[id] = spec
	return id, nil
}

func (f *fakeStore) UpdateTask(_ context.Context, id string, patch todoist.TaskPatch) error {
	f.updateCalls++
	if f.failUpdate {
		return &todoist.OpError{Op: "update task", Status: 500, Err: errors.New("boom")}
	}
	spec := f.tasks[id]
	if patch.Title != nil {
		spec.Title = *patch.Title
	}
	if patch.Due != nil {
		spec.Due = *patch.Due
	}
	if patch.Description != nil {
		spec.Description = *patch.Description
	}
	if patch.Priority != nil {
		spec.Priority = *patch.Priority
	}
	f.tasks[id] = spec
	return nil
}

func (f *fakeStore) TaskExists(_ context.Context, id string) bool {
	f.existsCalls++
	_, ok := f.tasks[id]
	return ok
}

func (f *fakeStore) CompleteTask(_ context.Context, id string) bool {
	f.completeCalls++
	if f.failComplete {
		return false
	}
	delete(f.tasks, id)
	return true
}

func (f *fakeStore) AddReminder(_ context.Context, _ string, at time.Time) bool {
	f.reminders = append(f.reminders, at)
	return true
}

var testNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func newReconciler(t *testing.T, store TaskStore, led *ledger.Ledger) *Reconciler {
	t.Helper()
	r := New(store, led, Config{ProjectName: "Canvas Assignments", ReminderLead: 24 * time.Hour})
	r.now = func() time.Time { return testNow }
	return r
}

func emptyLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	return ledger.Load(filepath.Join(t.TempDir(), "ledger.json"))
}

func event(uid, summary string, due time.Time) model.EventRecord {
	return model.EventRecord{
		UID:         uid,
		Summary:     summary,
		Title:       feed.CleanTitle(summary),
		Description: "details",
		Course:      feed.ClassifyCourse(summary, ""),
		DueAt:       due,
		Tier:        3,
	}
}

func TestRunIdempotent(t *testing.T) {
	store := newFakeStore()
	led := emptyLedger(t)
	r := newReconciler(t, store, led)

	events := []model.EventRecord{
		event("A1", "Problem Set 3 [CHEM 350]", testNow.Add(48*time.Hour)),
		event("B2", "Essay draft [ENGL 101]", testNow.Add(96*time.Hour)),
	}

	first := r.Run(context.Background(), events)
	assert.Equal(t, Stats{Created: 2}, first)

	second := r.Run(context.Background(), events)
	assert.Equal(t, Stats{Skipped: 2}, second)
	assert.Equal(t, 2, store.createCalls)
	assert.Zero(t, store.updateCalls)
}

func TestDigestChangeTriggersOneUpdatePreservingTaskID(t *testing.T) {
	store := newFakeStore()
	led := emptyLedger(t)
	r := newReconciler(t, store, led)

	due := testNow.Add(48 * time.Hour)
	r.Run(context.Background(), []model.EventRecord{event("A1", "Problem Set 3 [CHEM 350]", due)})

	before, _ := led.Get("A1")

	shifted := event("A1", "Problem Set 3 [CHEM 350]", due.Add(24*time.Hour))
	stats := r.Run(context.Background(), []model.EventRecord{shifted})
	assert.Equal(t, Stats{Updated: 1}, stats)
	assert.Equal(t, 1, store.updateCalls)

	after, ok := led.Get("A1")
	require.True(t, ok)
	assert.Equal(t, before.TaskID, after.TaskID)
	assert.NotEqual(t, before.Digest, after.Digest)
	assert.True(t, after.DueAt.Equal(due.Add(24*time.Hour)))
}

func TestAtMostOneTaskPerEvent(t *testing.T) {
	store := newFakeStore()
	led := emptyLedger(t)
	r := newReconciler(t, store, led)

	due := testNow.Add(48 * time.Hour)
	ev := event("A1", "Problem Set 3 [CHEM 350]", due)

	r.Run(context.Background(), []model.EventRecord{ev})
	ev.Description = "changed"
	ev.Summary = "Problem Set 3 changed [CHEM 350]"
	r.Run(context.Background(), []model.EventRecord{ev})
	r.Run(context.Background(), []model.EventRecord{ev})

	assert.Len(t, store.tasks, 1)
	assert.Len(t, led.Entries, 1)
}

func TestUpdateFailureLeavesEntryUntouched(t *testing.T) {
	store := newFakeStore()
	led := emptyLedger(t)
	r := newReconciler(t, store, led)

	due := testNow.Add(48 * time.Hour)
	r.Run(context.Background(), []model.EventRecord{event("A1", "PS3 [CHEM 350]", due)})
	before, _ := led.Get("A1")

	store.failUpdate = true
	shifted := event("A1", "PS3 [CHEM 350]", due.Add(time.Hour))
	stats := r.Run(context.Background(), []model.EventRecord{shifted})
	assert.Equal(t, Stats{Failed: 1}, stats)

	after, _ := led.Get("A1")
	assert.Equal(t, before, after, "failed update must not mutate the entry")

	// Next run retries the update.
	store.failUpdate = false
	stats = r.Run(context.Background(), []model.EventRecord{shifted})
	assert.Equal(t, Stats{Updated: 1}, stats)
}

func TestCreateFailureDoesNotAbortRun(t *testing.T) {
	store := newFakeStore()
	led := emptyLedger(t)
	r := newReconciler(t, store, led)

	store.failCreate = true
	events := []model.EventRecord{
		event("A1", "PS3 [CHEM 350]", testNow.Add(48*time.Hour)),
		event("B2", "Essay [ENGL 101]", testNow.Add(72*time.Hour)),
	}
	stats := r.Run(context.Background(), events)

	assert.Equal(t, Stats{Failed: 2}, stats)
	assert.Empty(t, led.Entries, "failed creates must not be recorded")
	assert.Equal(t, 2, store.createCalls, "second event still processed")
}

func TestMissingRemoteTaskIsRecreated(t *testing.T) {
	store := newFakeStore()
	led := emptyLedger(t)
	r := newReconciler(t, store, led)

	due := testNow.Add(48 * time.Hour)
	r.Run(context.Background(), []model.EventRecord{event("A1", "PS3 [CHEM 350]", due)})
	before, _ := led.Get("A1")

	// Someone deleted the task remotely, then the event changed.
	delete(store.tasks, before.TaskID)
	shifted := event("A1", "PS3 [CHEM 350]", due.Add(time.Hour))
	stats := r.Run(context.Background(), []model.EventRecord{shifted})

	assert.Equal(t, Stats{Created: 1}, stats)
	after, ok := led.Get("A1")
	require.True(t, ok)
	assert.NotEqual(t, before.TaskID, after.TaskID)
	assert.Len(t, led.Entries, 1)
}

func TestDisappearanceWithFutureDueCompletesTask(t *testing.T) {
	store := newFakeStore()
	led := emptyLedger(t)
	r := newReconciler(t, store, led)

	r.Run(context.Background(), []model.EventRecord{event("A1", "PS3 [CHEM 350]", testNow.Add(48*time.Hour))})

	stats := r.Run(context.Background(), nil)
	assert.Equal(t, Stats{Completed: 1}, stats)
	assert.Equal(t, 1, store.completeCalls)
	assert.Empty(t, led.Entries)
	assert.Empty(t, store.tasks)
}

func TestDisappearanceRemovedEvenWhenCompletionFails(t *testing.T) {
	store := newFakeStore()
	led := emptyLedger(t)
	r := newReconciler(t, store, led)

	r.Run(context.Background(), []model.EventRecord{event("A1", "PS3 [CHEM 350]", testNow.Add(48*time.Hour))})

	store.failComplete = true
	stats := r.Run(context.Background(), nil)
	assert.Equal(t, Stats{}, stats)
	assert.Equal(t, 1, store.completeCalls)
	assert.Empty(t, led.Entries, "entry removed even though completion failed")
}

func TestPastDueDisappearanceSkipsCompletion(t *testing.T) {
	store := newFakeStore()
	led := emptyLedger(t)
	led.Put("old", ledger.Entry{
		TaskID: "task-old",
		Digest: "x",
		DueAt:  testNow.Add(-48 * time.Hour),
	})
	r := newReconciler(t, store, led)

	stats := r.Run(context.Background(), nil)
	assert.Equal(t, Stats{}, stats)
	assert.Zero(t, store.completeCalls)
	assert.Zero(t, store.existsCalls)
	assert.Empty(t, led.Entries, "aged-out entry still removed")
}

func TestReminderOnlyWhenStillFuture(t *testing.T) {
	store := newFakeStore()
	led := emptyLedger(t)
	r := newReconciler(t, store, led)

	// Due in 48h with 24h lead: reminder lands in the future.
	// Due in 12h with 24h lead: reminder instant already passed.
	events := []model.EventRecord{
		event("A1", "PS3 [CHEM 350]", testNow.Add(48*time.Hour)),
		event("B2", "Quiz [CHEM 350]", testNow.Add(12*time.Hour)),
	}
	r.Run(context.Background(), events)

	require.Len(t, store.reminders, 1)
	assert.True(t, store.reminders[0].Equal(testNow.Add(24*time.Hour)))
}

func TestRemindersDisabledByZeroLead(t *testing.T) {
	store := newFakeStore()
	led := emptyLedger(t)
	r := New(store, led, Config{ProjectName: "P", ReminderLead: 0})
	r.now = func() time.Time { return testNow }

	r.Run(context.Background(), []model.EventRecord{event("A1", "PS3 [CHEM 350]", testNow.Add(48*time.Hour))})
	assert.Empty(t, store.reminders)
}

// The four-run scenario: create, skip, update on a due-date shift, then
// complete-and-retire when the event disappears while still due.
func TestEndToEndScenario(t *testing.T) {
	store := newFakeStore()
	led := emptyLedger(t)
	r := newReconciler(t, store, led)

	due := testNow.Add(48 * time.Hour)
	ev := event("A1", "Problem Set 3 [CHEM 350]", due)

	// Run 1: empty ledger, one create.
	stats := r.Run(context.Background(), []model.EventRecord{ev})
	assert.Equal(t, Stats{Created: 1}, stats)

	entry, ok := led.Get("A1")
	require.True(t, ok)
	created := store.tasks[entry.TaskID]
	assert.Equal(t, "Problem Set 3", created.Title)
	assert.Equal(t, []string{"CHEM_350"}, created.Labels)
	assert.Equal(t, 3, created.Priority)

	// Run 2: same feed, skip.
	stats = r.Run(context.Background(), []model.EventRecord{ev})
	assert.Equal(t, Stats{Skipped: 1}, stats)

	// Run 3: due date shifted by one day, one update, task id stable.
	shifted := event("A1", "Problem Set 3 [CHEM 350]", due.Add(24*time.Hour))
	stats = r.Run(context.Background(), []model.EventRecord{shifted})
	assert.Equal(t, Stats{Updated: 1}, stats)

	updated, ok := led.Get("A1")
	require.True(t, ok)
	assert.Equal(t, entry.TaskID, updated.TaskID)
	assert.NotEqual(t, entry.Digest, updated.Digest)
	assert.True(t, updated.DueAt.Equal(due.Add(24*time.Hour)))

	// Run 4: event absent with a still-future due snapshot: one
	// completion attempt and the entry is gone.
	stats = r.Run(context.Background(), nil)
	assert.Equal(t, Stats{Completed: 1}, stats)
	_, ok = led.Get("A1")
	assert.False(t, ok)
}
