package reader

// State is the position of one read session in the protocol.
// Sessions only move forward; any failure lands in StateFailed and
// the session cannot be resumed.
type State int

const (
	StateIdle State = iota
	StateConnected
	StateKeysDerived
	StateAuthenticating
	StateAuthenticated
	StateReadingDataGroups
	StateComplete
	StateFailed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnected:
		return "Connected"
	case StateKeysDerived:
		return "KeysDerived"
	case StateAuthenticating:
		return "Authenticating"
	case StateAuthenticated:
		return "Authenticated"
	case StateReadingDataGroups:
		return "ReadingDataGroups"
	case StateComplete:
		return "Complete"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}
