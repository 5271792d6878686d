package transport

// State is one stage of a single protocol session's lifecycle.
type State int

const (
	Advertising State = iota
	Negotiating
	Sending
	Receiving
	Reporting
	Closed
)

func (s State) String() string {
	switch s {
	case Advertising:
		return "advertising"
	case Negotiating:
		return "negotiating"
	case Sending:
		return "sending"
	case Receiving:
		return "receiving"
	case Reporting:
		return "reporting"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session tracks a single protocol session's state transitions, so a
// caller driving UploadPack/ReceivePack by hand can assert it never skips
// a stage or re-enters one after Closed.
type Session struct {
	state   State
	service string
}

// NewSession starts a session in the Advertising state for the given
// service (ServiceUploadPack or ServiceReceivePack).
func NewSession(service string) *Session {
	return &Session{state: Advertising, service: service}
}

// State returns the session's current stage.
func (s *Session) State() State {
	return s.state
}

// Advance moves the session to the next legal state, returning false if
// the transition isn't permitted from the current state.
func (s *Session) Advance(next State) bool {
	if s.state == Closed {
		return false
	}
	if next == Closed {
		s.state = Closed
		return true
	}
	switch s.state {
	case Advertising:
		if next == Negotiating {
			s.state = next
			return true
		}
	case Negotiating:
		if (next == Sending && s.service == ServiceUploadPack) || (next == Receiving && s.service == ServiceReceivePack) {
			s.state = next
			return true
		}
	case Receiving:
		if next == Reporting {
			s.state = next
			return true
		}
	}
	return false
}
