package comm

import "fmt"

// Rank identifies an endpoint inside a World.
type Rank int

// AnySource lets a receive match a send from any rank.
const AnySource Rank = -1

// Tag is an application-chosen value that correlates a send with a receive.
type Tag int

// AnyTag lets a receive match a send with any tag.
const AnyTag Tag = -1

// Kind tells whether a request sends or receives.
type Kind int

// Request kinds.
const (
	KindSend Kind = iota
	KindRecv
)

func (k Kind) String() string {
	switch k {
	case KindSend:
		return "send"
	case KindRecv:
		return "recv"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// State is the completion state of a request.
type State int

// Request states. A request starts pending and moves to exactly one terminal
// state.
const (
	StatePending State = iota
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for _, candidate := range []State{
		StatePending, StateComplete, StateFailed,
	} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}

	return fmt.Errorf("unknown state %q", text)
}

// Datatype describes the elements held in a buffer.
type Datatype struct {
	Name string
	Size int
}

// Predefined datatypes.
var (
	Byte    = Datatype{Name: "byte", Size: 1}
	Int32   = Datatype{Name: "int32", Size: 4}
	Int64   = Datatype{Name: "int64", Size: 8}
	Float64 = Datatype{Name: "float64", Size: 8}
)

func (d Datatype) String() string {
	return d.Name
}

// Status is the completion record of a request.
type Status struct {
	State State `json:"state"`

	// Count is the number of elements transferred. For a send it is the
	// number of elements posted.
	Count int `json:"count"`

	// Source is the peer that was matched. For a receive posted with
	// AnySource it names the actual sender.
	Source Rank `json:"source"`

	// Tag is the tag of the matched send.
	Tag Tag `json:"tag"`

	// Err is the cause when State is StateFailed.
	Err error `json:"-"`
}
