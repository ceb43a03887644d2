package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// ActionEvent records one editor/host event relevant to lens activation.
type ActionEvent struct {
	Type      ActionType             `json:"type"`               // What happened (see ActionType constants)
	Timestamp time.Time              `json:"timestamp"`          // When it happened
	Metadata  map[string]interface{} `json:"metadata,omitempty"` // Event detail: file, message, test result, ...
}

// ProjectContext describes the project the caller is working in.
type ProjectContext struct {
	Name         string   `json:"name,omitempty"`         // Project name
	Type         string   `json:"type,omitempty"`         // Project flavor (library, application, ...)
	Dependencies []string `json:"dependencies,omitempty"` // Declared dependencies
	HasTests     bool     `json:"hasTests,omitempty"`     // Structure flag: a test tree exists
	HasDocs      bool     `json:"hasDocs,omitempty"`      // Structure flag: a docs tree exists
}

// ActivationContext is the situational snapshot used to decide which lenses
// apply. Constructed fresh per decision by the caller; the lens framework
// never mutates it.
type ActivationContext struct {
	CurrentFiles  []string       `json:"currentFiles,omitempty"`  // Files currently open/focused
	RecentActions []ActionEvent  `json:"recentActions,omitempty"` // Most recent last
	Project       ProjectContext `json:"projectContext"`          // Project-level metadata

	// ManualOverride, when non-empty, disables all activation heuristics:
	// only the lens with this exact id may activate. An id matching no
	// registered lens yields an empty active set, not an error.
	ManualOverride string `json:"manualOverride,omitempty"`
}

// Fingerprint returns a stable structural hash of the context, suitable as
// an activation-cache key. Two contexts with equal content produce equal
// fingerprints regardless of how they were constructed.
func (c *ActivationContext) Fingerprint() string {
	if c == nil {
		return ""
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// LatestAction returns the most recent action of the given type, or nil.
func (c *ActivationContext) LatestAction(t ActionType) *ActionEvent {
	for i := len(c.RecentActions) - 1; i >= 0; i-- {
		if c.RecentActions[i].Type == t {
			return &c.RecentActions[i]
		}
	}
	return nil
}
