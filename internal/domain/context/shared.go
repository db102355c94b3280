// Package context defines the shared context consulted and mutated by
// agents during a project session.
package context

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/Strob0t/AgentFoundry/internal/domain/commitmeta"
	"github.com/Strob0t/AgentFoundry/internal/domain/task"
)

// maxRecentCommits bounds the commit records kept in the shared context.
const maxRecentCommits = 20

// SharedContext is the per-project collaboration state: recent structured
// commit records, the active task snapshot, and accumulated knowledge
// entries. Every agent completion mutates it; every handoff consults it.
type SharedContext struct {
	ProjectID     string              `json:"project_id"`
	SessionID     string              `json:"session_id"`
	RecentCommits []commitmeta.Record `json:"recent_commits,omitempty"`
	ActiveTasks   []task.Task         `json:"active_tasks,omitempty"`
	Knowledge     []KnowledgeEntry    `json:"knowledge,omitempty"`
	Version       int                 `json:"version"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// KnowledgeEntry is a single accumulated fact with its author and tags.
type KnowledgeEntry struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Author    string    `json:"author"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks that a SharedContext is well-formed.
func (sc *SharedContext) Validate() error {
	if sc.ProjectID == "" {
		return errors.New("project_id is required")
	}
	return nil
}

// RecordCommit prepends a commit record, trimming to the retention bound.
func (sc *SharedContext) RecordCommit(rec commitmeta.Record) {
	sc.RecentCommits = append([]commitmeta.Record{rec}, sc.RecentCommits...)
	if len(sc.RecentCommits) > maxRecentCommits {
		sc.RecentCommits = sc.RecentCommits[:maxRecentCommits]
	}
	sc.touch()
}

// AddKnowledge appends a knowledge entry.
func (sc *SharedContext) AddKnowledge(e KnowledgeEntry) {
	sc.Knowledge = append(sc.Knowledge, e)
	sc.touch()
}

// SnapshotTasks replaces the active task snapshot.
func (sc *SharedContext) SnapshotTasks(tasks []task.Task) {
	sc.ActiveTasks = append([]task.Task(nil), tasks...)
	sc.touch()
}

// Search returns knowledge entries whose key, value or tags contain the
// query, newest first. Matching is case-insensitive substring search.
func (sc *SharedContext) Search(query string) []KnowledgeEntry {
	q := strings.ToLower(query)
	var out []KnowledgeEntry
	for _, e := range sc.Knowledge {
		if strings.Contains(strings.ToLower(e.Key), q) ||
			strings.Contains(strings.ToLower(e.Value), q) ||
			tagsMatch(e.Tags, q) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func tagsMatch(tags []string, q string) bool {
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}

func (sc *SharedContext) touch() {
	sc.Version++
	sc.UpdatedAt = time.Now().UTC()
}
