package engine

import (
	"time"

	"github.com/loupelabs/loupe/internal/lens"
	"github.com/loupelabs/loupe/pkg/types"
)

// UpdateActiveContext replaces the current-files and project portions of the
// rolling activation context, re-evaluates lens activation against the new
// snapshot, and returns the ids of the lenses now active. Recorded actions
// are unaffected.
func (e *ContextEngine) UpdateActiveContext(files []string, project types.ProjectContext) []string {
	e.mu.Lock()
	e.currentFiles = append([]string(nil), files...)
	e.project = project
	snapshot := e.activationLocked()
	e.mu.Unlock()

	return lensIDs(e.lenses.UpdateActiveContext(snapshot))
}

// RecordAction appends an action to the rolling context, trimming the window
// to the configured limit, and re-evaluates lens activation. A zero
// timestamp is filled in with the current time.
func (e *ContextEngine) RecordAction(action types.ActionEvent) {
	if action.Timestamp.IsZero() {
		action.Timestamp = time.Now()
	}

	e.mu.Lock()
	e.recentActions = append(e.recentActions, action)
	if over := len(e.recentActions) - e.config.RecentActionLimit; over > 0 {
		e.recentActions = append([]types.ActionEvent(nil), e.recentActions[over:]...)
	}
	snapshot := e.activationLocked()
	e.mu.Unlock()

	e.lenses.UpdateActiveContext(snapshot)
}

// CurrentlyActiveLenses returns the ids of the lenses active under the last
// pushed activation context.
func (e *ContextEngine) CurrentlyActiveLenses() []string {
	return lensIDs(e.lenses.CurrentlyActiveLenses())
}

// ActiveContext returns a copy of the rolling activation context as it
// stands now.
func (e *ContextEngine) ActiveContext() *types.ActivationContext {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.activationLocked()
}

// activationLocked builds an activation snapshot from the rolling state.
// Callers must hold e.mu.
func (e *ContextEngine) activationLocked() *types.ActivationContext {
	return &types.ActivationContext{
		CurrentFiles:  append([]string(nil), e.currentFiles...),
		RecentActions: append([]types.ActionEvent(nil), e.recentActions...),
		Project:       e.project,
	}
}

// lensIDs projects lenses to their ids, preserving order.
func lensIDs(lenses []lens.Lens) []string {
	ids := make([]string, len(lenses))
	for i, l := range lenses {
		ids[i] = l.ID()
	}
	return ids
}
