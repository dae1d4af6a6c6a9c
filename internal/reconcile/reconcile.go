// Package reconcile decides, for each feed event seen in a run, whether to
// create, update, skip or retire its corresponding task, using the ledger
// as the sole source of truth for prior correspondence.
package reconcile

import (
	"context"
	"time"

	"canvasync/internal/ledger"
	applog "canvasync/internal/log"
	"canvasync/internal/model"
	"canvasync/internal/todoist"
)

// TaskStore is the slice of the task store adapter the reconciler needs.
// ResolveLabel, CompleteTask and AddReminder are best effort by contract;
// everything else surfaces errors for a per-event decision.
type TaskStore interface {
	ResolveProject(ctx context.Context, name string) (string, error)
	ResolveLabel(ctx context.Context, name string) string
	CreateTask(ctx context.Context, spec todoist.TaskSpec) (string, error)
	UpdateTask(ctx context.Context, id string, patch todoist.TaskPatch) error
	TaskExists(ctx context.Context, id string) bool
	CompleteTask(ctx context.Context, id string) bool
	AddReminder(ctx context.Context, taskID string, at time.Time) bool
}

// Config carries the reconciliation settings.
type Config struct {
	// ProjectName is the destination project, resolved or created on the
	// first task creation of the run and cached afterward.
	ProjectName string

	// ReminderLead is how long before the due timestamp to schedule a
	// reminder; zero disables reminders.
	ReminderLead time.Duration
}

// Stats summarizes one run.
type Stats struct {
	Created   int
	Updated   int
	Skipped   int
	Completed int // tasks completed because their event disappeared
	Failed    int // per-event failures that did not abort the run
}

// Reconciler drives the create/update/skip/retire plan for one run.
type Reconciler struct {
	store  TaskStore
	ledger *ledger.Ledger
	cfg    Config
	now    func() time.Time

	projectID string // run-scoped, resolved lazily
}

func New(store TaskStore, led *ledger.Ledger, cfg Config) *Reconciler {
	return &Reconciler{
		store:  store,
		ledger: led,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Run reconciles the current event list against the ledger. Each
// successful remote mutation is reflected in the in-memory ledger before
// the next event is touched, so a crash mid-run leaves the ledger
// consistent with whatever remote calls actually completed. Persisting the
// ledger is the caller's job, exactly once after Run returns.
func (r *Reconciler) Run(ctx context.Context, events []model.EventRecord) Stats {
	var stats Stats

	r.retireDisappeared(ctx, events, &stats)

	for _, ev := range events {
		r.reconcileEvent(ctx, ev, &stats)
	}

	return stats
}

// retireDisappeared handles ledger entries whose event is absent from the
// current feed. A still-future due snapshot is read as "resolved
// out-of-band" (e.g. submitted): the remote task is completed best-effort.
// Either way the entry is removed, so a disappeared event is never
// reprocessed on later runs.
func (r *Reconciler) retireDisappeared(ctx context.Context, events []model.EventRecord, stats *Stats) {
	current := make(map[string]struct{}, len(events))
	for _, ev := range events {
		current[ev.UID] = struct{}{}
	}

	now := r.now()

	for _, uid := range r.ledger.UIDs() {
		if _, ok := current[uid]; ok {
			continue
		}
		entry, _ := r.ledger.Get(uid)

		if entry.DueAt.After(now) {
			applog.Info("event disappeared from feed before its due date; completing task",
				"uid", uid, "task_id", entry.TaskID, "reason", "disappeared_future_due")
			if r.store.TaskExists(ctx, entry.TaskID) {
				if r.store.CompleteTask(ctx, entry.TaskID) {
					stats.Completed++
				}
			}
		} else {
			applog.Debug("event aged out of feed", "uid", uid, "task_id", entry.TaskID)
		}

		// Removal is unconditional regardless of cause or completion
		// outcome; the entry must not come back next run.
		r.ledger.Remove(uid)
	}
}

func (r *Reconciler) reconcileEvent(ctx context.Context, ev model.EventRecord, stats *Stats) {
	digest := ledger.Digest(ev.Summary, ev.DueAt, ev.Description)

	entry, known := r.ledger.Get(ev.UID)
	if known {
		if entry.Digest == digest {
			applog.Debug("event unchanged; skipping", "uid", ev.UID, "title", ev.Title)
			stats.Skipped++
			return
		}

		if r.store.TaskExists(ctx, entry.TaskID) {
			r.updateTask(ctx, ev, entry, digest, stats)
			return
		}
		// The remote task vanished underneath a changed event: fall
		// through to Create, replacing the stale entry by key.
		applog.Info("tracked task missing remotely; recreating", "uid", ev.UID, "task_id", entry.TaskID)
	}

	r.createTask(ctx, ev, digest, stats)
}

func (r *Reconciler) updateTask(ctx context.Context, ev model.EventRecord, entry ledger.Entry, digest string, stats *Stats) {
	applog.Info("updating changed event", "uid", ev.UID, "title", ev.Title, "task_id", entry.TaskID)

	patch := todoist.TaskPatch{
		Title:       &ev.Title,
		Due:         &ev.DueAt,
		Description: &ev.Description,
		Priority:    &ev.Tier,
	}
	if err := r.store.UpdateTask(ctx, entry.TaskID, patch); err != nil {
		// The ledger entry keeps its old digest so the update is retried
		// next run.
		applog.Error("failed to update task", err, "uid", ev.UID, "task_id", entry.TaskID)
		stats.Failed++
		return
	}

	r.ledger.Put(ev.UID, ledger.Entry{
		TaskID:   entry.TaskID,
		Digest:   digest,
		SyncedAt: r.now().UTC(),
		DueAt:    ev.DueAt,
	})
	stats.Updated++
}

func (r *Reconciler) createTask(ctx context.Context, ev model.EventRecord, digest string, stats *Stats) {
	applog.Info("creating task", "uid", ev.UID, "title", ev.Title, "course", ev.Course)

	projectID, err := r.resolveProject(ctx)
	if err != nil {
		applog.Error("failed to resolve project", err, "uid", ev.UID, "project", r.cfg.ProjectName)
		stats.Failed++
		return
	}

	label := r.store.ResolveLabel(ctx, ev.Course)

	spec := todoist.TaskSpec{
		Title:       ev.Title,
		ProjectID:   projectID,
		Due:         ev.DueAt,
		Description: ev.Description,
		Priority:    ev.Tier,
	}
	if label != "" {
		spec.Labels = []string{label}
	}

	taskID, err := r.store.CreateTask(ctx, spec)
	if err != nil {
		applog.Error("failed to create task", err, "uid", ev.UID, "title", ev.Title)
		stats.Failed++
		return
	}

	if r.cfg.ReminderLead > 0 {
		remindAt := ev.DueAt.Add(-r.cfg.ReminderLead)
		if remindAt.After(r.now()) {
			r.store.AddReminder(ctx, taskID, remindAt)
		}
	}

	r.ledger.Put(ev.UID, ledger.Entry{
		TaskID:   taskID,
		Digest:   digest,
		SyncedAt: r.now().UTC(),
		DueAt:    ev.DueAt,
	})
	stats.Created++
}

func (r *Reconciler) resolveProject(ctx context.Context) (string, error) {
	if r.projectID != "" {
		return r.projectID, nil
	}
	id, err := r.store.ResolveProject(ctx, r.cfg.ProjectName)
	if err != nil {
		return "", err
	}
	r.projectID = id
	return id, nil
}
