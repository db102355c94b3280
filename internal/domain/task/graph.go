package task

import (
	"fmt"
	"sort"
)

// Executable returns the tasks that are ready to run: status pending and
// every dependency completed. The ready set is computed on demand from the
// latest statuses rather than maintained as a queue.
func Executable(tasks []Task) []Task {
	completed := make(map[string]bool, len(tasks))
	for i := range tasks {
		if tasks[i].Status == StatusCompleted {
			completed[tasks[i].ID] = true
		}
	}

	var ready []Task
	for i := range tasks {
		if tasks[i].Status != StatusPending {
			continue
		}
		ok := true
		for _, dep := range tasks[i].DependsOn {
			if !completed[dep] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, tasks[i])
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		return ready[i].Priority > ready[j].Priority
	})
	return ready
}

// CheckAcyclic verifies that the dependency relation over tasks contains no
// cycle, treating edges to unknown task ids as satisfied externally.
func CheckAcyclic(tasks []Task) error {
	deps := make(map[string][]string, len(tasks))
	for i := range tasks {
		deps[tasks[i].ID] = tasks[i].DependsOn
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(tasks))

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("dependency cycle through task %s", id)
		case done:
			return nil
		}
		state[id] = visiting
		for _, dep := range deps[id] {
			if _, known := deps[dep]; !known {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}

	for id := range deps {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}
