package reader

// Progress reports one step of a read session to an observer.
// Callbacks fire synchronously on the reading goroutine, so handlers
// must not block; hand off to a channel for UI work.
type Progress struct {
	// SessionID identifies the read this event belongs to. A Reader
	// that is retried produces a fresh ID per attempt.
	SessionID string

	// State the session just entered.
	State State

	// File currently being read, e.g. "EF.DG1". Empty outside
	// StateReadingDataGroups.
	File string

	// Percent is a monotonic 0-100 estimate across the whole read.
	Percent int
}

// ProgressFunc observes read progress.
type ProgressFunc func(Progress)
