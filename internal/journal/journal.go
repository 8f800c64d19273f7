// Package journal keeps an append-only JSONL audit trail of the events each
// agent publishes, one file per task.
package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
)

// ErrInvalidTaskID is returned for task IDs that cannot name a directory.
var ErrInvalidTaskID = errors.New("invalid task id")

// Entry is one journaled event.
type Entry struct {
	Seq       int64         `json:"seq"`
	Agent     string        `json:"agent"`
	Kind      string        `json:"kind"`
	TaskID    a2a.TaskID    `json:"task_id"`
	ContextID string        `json:"context_id"`
	State     a2a.TaskState `json:"state,omitempty"`
	Final     bool          `json:"final,omitempty"`
	Text      string        `json:"text,omitempty"`
	Artifact  string        `json:"artifact,omitempty"`
	At        time.Time     `json:"at"`
}

// Journal stores entries under <root>/tasks/<taskID>/events.jsonl.
type Journal struct {
	root  string
	mu    sync.Mutex
	locks map[a2a.TaskID]*sync.Mutex
}

// New creates a Journal rooted at root.
func New(root string) *Journal {
	return &Journal{
		root:  root,
		locks: make(map[a2a.TaskID]*sync.Mutex),
	}
}

func (j *Journal) lockFor(taskID a2a.TaskID) *sync.Mutex {
	j.mu.Lock()
	defer j.mu.Unlock()

	if lock, ok := j.locks[taskID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	j.locks[taskID] = lock
	return lock
}

func (j *Journal) path(taskID a2a.TaskID) (string, error) {
	id := string(taskID)
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTaskID, id)
	}
	return filepath.Join(j.root, "tasks", id, "events.jsonl"), nil
}

// Record converts a published event to an Entry and appends it. A nil
// Journal records nothing.
func (j *Journal) Record(ctx context.Context, agent string, event a2a.Event) error {
	if j == nil {
		return nil
	}
	entry, ok := FromEvent(event)
	if !ok {
		return nil
	}
	entry.Agent = agent
	return j.Append(ctx, &entry)
}

// Append writes entry with the next sequence number for its task.
func (j *Journal) Append(_ context.Context, entry *Entry) error {
	path, err := j.path(entry.TaskID)
	if err != nil {
		return err
	}

	lock := j.lockFor(entry.TaskID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create task dir: %w", err)
	}

	existing, err := countLines(path)
	if err != nil {
		return err
	}
	entry.Seq = existing + 1
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	return nil
}

// Tail returns the last limit entries for taskID. A task with no journal
// returns nil.
func (j *Journal) Tail(_ context.Context, taskID a2a.TaskID, limit int) ([]*Entry, error) {
	path, err := j.path(taskID)
	if err != nil {
		return nil, err
	}

	lock := j.lockFor(taskID)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var entries []*Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("unmarshal entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// Count returns the number of entries for taskID.
func (j *Journal) Count(_ context.Context, taskID a2a.TaskID) (int64, error) {
	path, err := j.path(taskID)
	if err != nil {
		return 0, err
	}

	lock := j.lockFor(taskID)
	lock.Lock()
	defer lock.Unlock()

	return countLines(path)
}

// countLines counts entries in path. Caller must hold the task lock.
func countLines(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var n int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		n++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan journal: %w", err)
	}
	return n, nil
}

// Tasks lists the task IDs that have a journal, most recently written first.
func (j *Journal) Tasks(_ context.Context) ([]a2a.TaskID, error) {
	dirs, err := os.ReadDir(filepath.Join(j.root, "tasks"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read tasks dir: %w", err)
	}

	type stamped struct {
		id  a2a.TaskID
		mod time.Time
	}
	var found []stamped
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		info, err := os.Stat(filepath.Join(j.root, "tasks", d.Name(), "events.jsonl"))
		if err != nil {
			continue
		}
		found = append(found, stamped{id: a2a.TaskID(d.Name()), mod: info.ModTime()})
	}
	sort.Slice(found, func(a, b int) bool { return found[a].mod.After(found[b].mod) })

	ids := make([]a2a.TaskID, len(found))
	for i, f := range found {
		ids[i] = f.id
	}
	return ids, nil
}

// Remove deletes the journal for taskID. Removing an unknown task is not an error.
func (j *Journal) Remove(_ context.Context, taskID a2a.TaskID) error {
	path, err := j.path(taskID)
	if err != nil {
		return err
	}

	lock := j.lockFor(taskID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(filepath.Dir(path)); err != nil {
		return fmt.Errorf("remove task journal: %w", err)
	}
	return nil
}
