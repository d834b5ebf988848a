package comm

import "time"

// A Request tracks one in-flight non-blocking operation. It is created by
// Isend or Irecv and consumed by Wait. Requests are only meaningful to the
// endpoint that created them.
type Request struct {
	id    string
	kind  Kind
	owner *Endpoint
	peer  Rank
	tag   Tag
	dtype Datatype
	buf   []byte

	done chan struct{}

	// The fields below are guarded by the world lock.
	state    State
	status   Status
	matched  bool
	claimed  bool
	payload  []byte
	timer    *time.Timer
	postedAt time.Time
}

// ID returns the unique ID of the request.
func (r *Request) ID() string {
	return r.id
}

// Kind returns whether the request sends or receives.
func (r *Request) Kind() Kind {
	return r.kind
}

// Peer returns the rank the request was posted to or from. It may be
// AnySource for receives.
func (r *Request) Peer() Rank {
	return r.peer
}

// Tag returns the tag the request was posted with.
func (r *Request) Tag() Tag {
	return r.tag
}

// Datatype returns the element type of the request's buffer.
func (r *Request) Datatype() Datatype {
	return r.dtype
}

// State returns the current completion state.
func (r *Request) State() State {
	r.owner.world.mu.Lock()
	defer r.owner.world.mu.Unlock()

	return r.state
}

// Done returns a channel that is closed when the request reaches a terminal
// state.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// RequestInfo is a snapshot of a request for reporting.
type RequestInfo struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	Owner    Rank      `json:"owner"`
	Peer     Rank      `json:"peer"`
	Tag      Tag       `json:"tag"`
	Datatype string    `json:"datatype"`
	Bytes    int       `json:"bytes"`
	State    State     `json:"state"`
	Matched  bool      `json:"matched"`
	PostedAt time.Time `json:"posted_at"`
}

// Info returns a snapshot of the request.
func (r *Request) Info() RequestInfo {
	r.owner.world.mu.Lock()
	defer r.owner.world.mu.Unlock()

	return r.info()
}

func (r *Request) info() RequestInfo {
	return RequestInfo{
		ID:       r.id,
		Kind:     r.kind.String(),
		Owner:    r.owner.rank,
		Peer:     r.peer,
		Tag:      r.tag,
		Datatype: r.dtype.Name,
		Bytes:    len(r.buf),
		State:    r.state,
		Matched:  r.matched,
		PostedAt: r.postedAt,
	}
}

// count converts a byte length to a number of elements of the request's
// datatype.
func (r *Request) count(n int) int {
	return n / r.dtype.Size
}

// matches tells whether this receive accepts a send from src with tag.
func (r *Request) matches(src Rank, tag Tag) bool {
	if r.peer != AnySource && r.peer != src {
		return false
	}

	return r.tag == AnyTag || r.tag == tag
}
