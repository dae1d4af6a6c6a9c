// Package ledger persists the event→task correspondence that makes the
// sync idempotent. The ledger file is the sole authority on "have I synced
// this already"; the task store is never queried to rediscover a mapping.
package ledger

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	applog "canvasync/internal/log"
)

// Entry is the last-known correspondence between one event identity and
// one remote task.
type Entry struct {
	TaskID   string    `json:"task_id"`
	Digest   string    `json:"content_digest"`
	SyncedAt time.Time `json:"synced_at"`
	// DueAt is the due timestamp recorded at creation/last-update time,
	// used to tell "submitted" apart from "aged out" when an event
	// disappears from the feed.
	DueAt time.Time `json:"due_at"`
}

// Ledger maps event UID → Entry. It is process-local and single-writer:
// loaded once at run start, mutated in memory, saved once at run end.
type Ledger struct {
	Entries    map[string]Entry `json:"synced_events"`
	LastSyncAt time.Time        `json:"last_sync_at"`

	path string
}

// Load reads the ledger from path. A missing or unparseable file yields an
// empty ledger with a warning, never an error: recreating already-synced
// tasks is acceptable degraded behavior, aborting the run is not. Unknown
// fields in the file are ignored so older binaries can read newer ledgers.
func Load(path string) *Ledger {
	led := &Ledger{
		Entries: make(map[string]Entry),
		path:    path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			applog.Error("could not read ledger file; starting fresh", err, "path", path)
		}
		return led
	}

	if err := json.Unmarshal(data, led); err != nil {
		applog.Error("could not parse ledger file; starting fresh", err, "path", path)
		return &Ledger{Entries: make(map[string]Entry), path: path}
	}
	if led.Entries == nil {
		led.Entries = make(map[string]Entry)
	}

	applog.Info("ledger loaded", "path", path, "entries", len(led.Entries))
	return led
}

// Get returns the entry for an event UID.
func (l *Ledger) Get(uid string) (Entry, bool) {
	e, ok := l.Entries[uid]
	return e, ok
}

// Put records or overwrites the entry for an event UID.
func (l *Ledger) Put(uid string, e Entry) {
	l.Entries[uid] = e
}

// Remove drops the entry for an event UID.
func (l *Ledger) Remove(uid string) {
	delete(l.Entries, uid)
}

// UIDs returns a snapshot of all tracked event UIDs, safe to iterate while
// entries are removed.
func (l *Ledger) UIDs() []string {
	out := make([]string, 0, len(l.Entries))
	for uid := range l.Entries {
		out = append(out, uid)
	}
	return out
}

// Save stamps LastSyncAt and writes the ledger atomically (temp file +
// fsync + rename) so an interrupted write cannot leave a partial file the
// next run would fail to parse.
func (l *Ledger) Save() error {
	if l.path == "" {
		return errors.New("ledger path is empty")
	}

	l.LastSyncAt = time.Now().UTC()

	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".canvasync-ledger-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		return err
	}

	applog.Info("ledger saved", "path", l.path, "entries", len(l.Entries))
	return nil
}
