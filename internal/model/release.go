package model

import "time"

// RefKind classifies a ReleaseRef name.
type RefKind string

const (
	RefTag    RefKind = "tag"
	RefBranch RefKind = "branch"
	RefCommit RefKind = "commit"
)

// ReleaseRef identifies a deployable version.
type ReleaseRef struct {
	Name   string  `json:"name"`
	Commit string  `json:"commit"`
	Kind   RefKind `json:"kind"`
}

// IsZero reports whether the ref carries nothing.
func (r ReleaseRef) IsZero() bool { return r.Name == "" && r.Commit == "" }

// Short returns a display form such as "v1.2.0 (1a2b3c4)".
func (r ReleaseRef) Short() string {
	c := r.Commit
	if len(c) > 7 {
		c = c[:7]
	}
	switch {
	case r.Name == "" || r.Name == r.Commit:
		return c
	case c == "":
		return r.Name
	default:
		return r.Name + " (" + c + ")"
	}
}

// UpdateState is the UpdateManager state machine.
type UpdateState string

const (
	UpdateIdle               UpdateState = "idle"
	UpdateChecking           UpdateState = "checking"
	UpdateUpToDate           UpdateState = "up_to_date"
	UpdateCandidateAvailable UpdateState = "candidate_available"
	UpdateApplying           UpdateState = "applying"
	UpdateApplied            UpdateState = "applied"
	UpdateFailed             UpdateState = "failed"
	UpdateRolledBack         UpdateState = "rolled_back"
)

// ReleaseState is persisted between runs of the update manager.
type ReleaseState struct {
	Current      ReleaseRef `json:"current"`
	Previous     ReleaseRef `json:"previous"`
	Candidate    ReleaseRef `json:"candidate"`
	LastNotified string     `json:"last_notified,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
