package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Strob0t/AgentFoundry/internal/domain/forward"
	"github.com/Strob0t/AgentFoundry/internal/port/ledger"
	"github.com/Strob0t/AgentFoundry/internal/port/vcs"
)

// ForwardPromptFile is the checkpoint's on-disk name inside a worktree.
const ForwardPromptFile = "FORWARD_PROMPT.md"

// ContinuityService maintains one forward prompt per working unit: the
// durable checkpoint a successor session resumes from. The ledger store is
// the unit of concurrency control; the markdown file in the worktree is a
// reviewable export committed alongside the work.
type ContinuityService struct {
	ledger ledger.Store
	vcs    vcs.Client
}

// NewContinuityService creates a ContinuityService.
func NewContinuityService(store ledger.Store, client vcs.Client) *ContinuityService {
	return &ContinuityService{ledger: store, vcs: client}
}

// Read returns the unit's checkpoint. A unit that has never checkpointed
// gets an empty prompt, not an error.
func (s *ContinuityService) Read(ctx context.Context, unitID string) (forward.Prompt, error) {
	data, ok, err := s.ledger.Get(ctx, forwardKey(unitID))
	if err != nil {
		return forward.Prompt{}, fmt.Errorf("read checkpoint %s: %w", unitID, err)
	}
	if !ok {
		return forward.Prompt{}, nil
	}
	var p forward.Prompt
	if err := json.Unmarshal(data, &p); err != nil {
		return forward.Prompt{}, fmt.Errorf("decode checkpoint %s: %w", unitID, err)
	}
	return p, nil
}

// Update merges a partial update into the unit's checkpoint. The
// read-modify-write runs atomically inside the ledger so concurrent updates
// to the same unit cannot lose fields.
func (s *ContinuityService) Update(ctx context.Context, unitID string, u forward.Update) (forward.Prompt, error) {
	var updated forward.Prompt
	err := s.mutate(ctx, unitID, func(p *forward.Prompt) error {
		p.Apply(u)
		updated = *p
		return nil
	})
	if err != nil {
		return forward.Prompt{}, err
	}
	return updated, nil
}

// AddNextStep appends a step to the tail of the unit's next-steps queue.
func (s *ContinuityService) AddNextStep(ctx context.Context, unitID, step string) error {
	if step == "" {
		return fmt.Errorf("add next step %s: empty step", unitID)
	}
	return s.mutate(ctx, unitID, func(p *forward.Prompt) error {
		p.PushStep(step)
		return nil
	})
}

// CompleteNextStep pops the head of the next-steps queue. ok is false when
// the queue was already empty.
func (s *ContinuityService) CompleteNextStep(ctx context.Context, unitID string) (step string, ok bool, err error) {
	err = s.mutate(ctx, unitID, func(p *forward.Prompt) error {
		step, ok = p.PopStep()
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return step, ok, nil
}

// Flush writes the checkpoint's textual rendering into the worktree and
// commits it. The commit happens regardless of other pending changes: the
// checkpoint must survive even when the session produced no code.
func (s *ContinuityService) Flush(ctx context.Context, unitID, worktreePath string) error {
	p, err := s.Read(ctx, unitID)
	if err != nil {
		return err
	}

	path := filepath.Join(worktreePath, ForwardPromptFile)
	if err := os.WriteFile(path, []byte(forward.ToText(p)), 0o644); err != nil {
		return fmt.Errorf("flush checkpoint %s: %w", unitID, err)
	}

	if _, err := s.vcs.Commit(ctx, worktreePath, "checkpoint: update forward prompt"); err != nil {
		return fmt.Errorf("commit checkpoint %s: %w", unitID, err)
	}
	return nil
}

// Recover loads the checkpoint from the worktree's markdown export and
// reseeds the ledger from it. Used when the ledger is empty but a previous
// session left its export behind.
func (s *ContinuityService) Recover(ctx context.Context, unitID, worktreePath string) (forward.Prompt, error) {
	data, err := os.ReadFile(filepath.Join(worktreePath, ForwardPromptFile))
	if err != nil {
		return forward.Prompt{}, fmt.Errorf("recover checkpoint %s: %w", unitID, err)
	}
	p := forward.FromText(string(data))

	encoded, err := json.Marshal(p)
	if err != nil {
		return forward.Prompt{}, fmt.Errorf("recover checkpoint %s: %w", unitID, err)
	}
	if err := s.ledger.Put(ctx, forwardKey(unitID), encoded); err != nil {
		return forward.Prompt{}, fmt.Errorf("recover checkpoint %s: %w", unitID, err)
	}
	return p, nil
}

// Delete removes the unit's checkpoint, for use when the unit is retired.
func (s *ContinuityService) Delete(ctx context.Context, unitID string) error {
	return s.ledger.Delete(ctx, forwardKey(unitID))
}

// mutate runs fn against the decoded checkpoint inside an atomic ledger
// update. A missing entry starts from the zero prompt.
func (s *ContinuityService) mutate(ctx context.Context, unitID string, fn func(*forward.Prompt) error) error {
	err := s.ledger.Update(ctx, forwardKey(unitID), func(current []byte) ([]byte, error) {
		var p forward.Prompt
		if len(current) > 0 {
			if err := json.Unmarshal(current, &p); err != nil {
				return nil, fmt.Errorf("decode checkpoint: %w", err)
			}
		}
		if err := fn(&p); err != nil {
			return nil, err
		}
		return json.Marshal(p)
	})
	if err != nil {
		return fmt.Errorf("update checkpoint %s: %w", unitID, err)
	}
	return nil
}

func forwardKey(unitID string) string {
	return "forward/" + unitID
}
