package main

import (
	"context"
	"time"

	applog "canvasync/internal/log"
	"canvasync/internal/todoist"
)

// dryRunStore satisfies reconcile.TaskStore without touching the remote
// store. TaskExists answers true so changed events surface as updates
// rather than phantom recreations.
type dryRunStore struct{}

func (dryRunStore) ResolveProject(_ context.Context, name string) (string, error) {
	applog.Info("dry-run: would resolve project", "name", name)
	return "dry-run-project", nil
}

func (dryRunStore) ResolveLabel(_ context.Context, name string) string {
	return todoist.SanitizeLabel(name)
}

func (dryRunStore) CreateTask(_ context.Context, spec todoist.TaskSpec) (string, error) {
	applog.Info("dry-run: would create task",
		"title", spec.Title,
		"due", spec.Due.UTC().Format(time.RFC3339),
		"labels", spec.Labels,
		"priority", spec.Priority,
	)
	return "dry-run-task", nil
}

func (dryRunStore) UpdateTask(_ context.Context, id string, _ todoist.TaskPatch) error {
	applog.Info("dry-run: would update task", "task_id", id)
	return nil
}

func (dryRunStore) TaskExists(context.Context, string) bool { return true }

func (dryRunStore) CompleteTask(_ context.Context, id string) bool {
	applog.Info("dry-run: would complete task", "task_id", id)
	return true
}

func (dryRunStore) AddReminder(_ context.Context, id string, at time.Time) bool {
	applog.Info("dry-run: would add reminder", "task_id", id, "remind_at", at.UTC().Format(time.RFC3339))
	return true
}
