// Package domain defines the core types shared across the simulation engine:
// action requests and results, history entries, and run lifecycle states.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActionKind identifies the category of a simulated worker action.
type ActionKind string

const (
	KindLaunchApp  ActionKind = "launch_app"
	KindBrowse     ActionKind = "browse_web"
	KindCreateDoc  ActionKind = "create_document"
	KindFileOp     ActionKind = "file_op"
	KindDownload   ActionKind = "download_file"
	KindEmailCheck ActionKind = "check_email"
	KindIdle       ActionKind = "idle"
)

// AllKinds lists every valid action kind.
var AllKinds = []ActionKind{
	KindLaunchApp,
	KindBrowse,
	KindCreateDoc,
	KindFileOp,
	KindDownload,
	KindEmailCheck,
	KindIdle,
}

// ValidKind reports whether k is a known action kind.
func ValidKind(k ActionKind) bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Decision sources recorded on ActionRequest.Source.
const (
	SourceAdvisory = "advisory"
	SourceFallback = "fallback"
	SourceBreak    = "break"
)

// ActionRequest is one proposed action, created by the decision policy and
// consumed by the dispatcher. Not mutated after creation.
type ActionRequest struct {
	ID          string
	Kind        ActionKind
	Target      string
	Params      map[string]string
	DurationMin int    // simulated minutes the action occupies
	Reason      string // why this action was chosen
	Source      string // advisory, fallback, or break
	RequestedAt time.Time
}

// NewActionRequest creates a request with a fresh unique ID.
func NewActionRequest(kind ActionKind, target string, durationMin int, reason, source string, simTime time.Time) ActionRequest {
	return ActionRequest{
		ID:          uuid.NewString(),
		Kind:        kind,
		Target:      target,
		DurationMin: durationMin,
		Reason:      reason,
		Source:      source,
		RequestedAt: simTime,
	}
}

// ActionResult is the outcome of executing a request. Immutable.
type ActionResult struct {
	RequestID string
	Success   bool
	Error     string
	Duration  time.Duration // real time spent executing
	Metadata  map[string]string
}

// FailedResult builds a failed result for a request.
func FailedResult(requestID, errMsg string) ActionResult {
	return ActionResult{RequestID: requestID, Success: false, Error: errMsg}
}

// HistoryEntry records one completed decision cycle.
type HistoryEntry struct {
	Request ActionRequest
	Result  ActionResult
	SimTime time.Time
}

// RunStatus represents the lifecycle state of a simulation run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunAborted   RunStatus = "aborted"
)
