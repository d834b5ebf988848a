package comm

import (
	"context"
	"fmt"
	"time"

	"github.com/sarchlab/nbmsg/hooking"
	"github.com/sarchlab/nbmsg/tracing"
)

// An Endpoint is one communicating party of a World.
type Endpoint struct {
	*hooking.HookableBase

	world *World
	rank  Rank
	name  string

	// Requests not yet consumed, in initiation order. Guarded by the world
	// lock.
	pending []*Request
}

// Name returns the name of the endpoint.
func (e *Endpoint) Name() string {
	return e.name
}

// Rank returns the rank of the endpoint in its world.
func (e *Endpoint) Rank() Rank {
	return e.rank
}

// World returns the world the endpoint belongs to.
func (e *Endpoint) World() *World {
	return e.world
}

// Isend initiates sending buf, made of dt elements, to dest with tag. It
// returns without waiting for the message to be delivered. Invalid arguments
// are reported synchronously.
func (e *Endpoint) Isend(
	buf []byte,
	dt Datatype,
	dest Rank,
	tag Tag,
) (*Request, error) {
	return e.initiate(KindSend, OpIsend, buf, dt, dest, tag)
}

// Irecv initiates receiving into buf a message from source with tag. Source
// may be AnySource and tag may be AnyTag. It returns without waiting for the
// message to arrive.
func (e *Endpoint) Irecv(
	buf []byte,
	dt Datatype,
	source Rank,
	tag Tag,
) (*Request, error) {
	return e.initiate(KindRecv, OpIrecv, buf, dt, source, tag)
}

func (e *Endpoint) initiate(
	kind Kind,
	op Op,
	buf []byte,
	dt Datatype,
	peer Rank,
	tag Tag,
) (*Request, error) {
	call := Call{Op: op, Peer: peer, Tag: tag, Bytes: len(buf)}
	callID := startCall(e, call, "")

	req, err := e.post(kind, buf, dt, peer, tag, callID)
	if req != nil {
		call.RequestID = req.id
	}

	call.Err = err
	endCall(e, callID, call)

	return req, err
}

func (e *Endpoint) post(
	kind Kind,
	buf []byte,
	dt Datatype,
	peer Rank,
	tag Tag,
	callID string,
) (*Request, error) {
	err := e.validate(kind, buf, dt, peer, tag)
	if err != nil {
		return nil, err
	}

	w := e.world

	w.mu.Lock()
	defer w.mu.Unlock()

	err = w.checkPhase()
	if err != nil {
		return nil, err
	}

	req := &Request{
		id:       w.idGenerator.Generate(),
		kind:     kind,
		owner:    e,
		peer:     peer,
		tag:      tag,
		dtype:    dt,
		buf:      buf,
		done:     make(chan struct{}),
		postedAt: time.Now(),
	}
	e.pending = append(e.pending, req)

	w.logger.Debug("request posted",
		"endpoint", e.name, "id", req.id, "kind", kind,
		"peer", peer, "tag", tag, "bytes", len(buf))
	tracing.StartTask(req.id, callID, e, TaskKindReq, kind.String(), req.info())

	if kind == KindSend {
		w.postSend(req)
	} else {
		w.postRecv(req)
	}

	return req, nil
}

func (e *Endpoint) validate(
	kind Kind,
	buf []byte,
	dt Datatype,
	peer Rank,
	tag Tag,
) error {
	wildcard := kind == KindRecv

	if !e.world.addressable(peer) && !(wildcard && peer == AnySource) {
		return fmt.Errorf("%w: rank %d in %s of size %d",
			ErrInvalidPeer, peer, e.world.name, e.world.Size())
	}

	if tag < 0 && !(wildcard && tag == AnyTag) {
		return fmt.Errorf("%w: %d", ErrInvalidTag, tag)
	}

	if dt.Size <= 0 || len(buf)%dt.Size != 0 {
		return fmt.Errorf("%w: %d bytes of %s", ErrInvalidBuffer, len(buf), dt)
	}

	return nil
}

// Wait blocks until req reaches a terminal state, then consumes it. A failed
// request is reported with its status and the failure cause.
func (e *Endpoint) Wait(req *Request) (Status, error) {
	return e.WaitContext(context.Background(), req)
}

// WaitContext is Wait that gives up when ctx is done. A request that is given
// up on is not consumed and keeps running; it can be waited on again.
func (e *Endpoint) WaitContext(
	ctx context.Context,
	req *Request,
) (Status, error) {
	call := Call{Op: OpWait}
	parentID := ""
	if req != nil {
		call.RequestID = req.id
		call.Peer = req.peer
		call.Tag = req.tag
		parentID = req.id
	}

	callID := startCall(e, call, parentID)

	call.Status, call.Err = e.wait(ctx, req)
	endCall(e, callID, call)

	return call.Status, call.Err
}

func (e *Endpoint) wait(ctx context.Context, req *Request) (Status, error) {
	err := e.claim(req)
	if err != nil {
		return Status{}, err
	}

	select {
	case <-req.done:
		return e.consume(req)
	default:
	}

	select {
	case <-req.done:
	case <-ctx.Done():
		e.unclaim(req)
		return Status{State: StatePending}, ctx.Err()
	}

	return e.consume(req)
}

// Test reports whether req has reached a terminal state without blocking. If
// it has, the request is consumed and its status returned.
func (e *Endpoint) Test(req *Request) (Status, bool, error) {
	call := Call{Op: OpTest}
	parentID := ""
	if req != nil {
		call.RequestID = req.id
		parentID = req.id
	}

	callID := startCall(e, call, parentID)

	status, done, err := e.test(req)
	call.Status = status
	call.Err = err
	endCall(e, callID, call)

	return status, done, err
}

func (e *Endpoint) test(req *Request) (Status, bool, error) {
	err := e.claim(req)
	if err != nil {
		return Status{}, false, err
	}

	select {
	case <-req.done:
	default:
		e.unclaim(req)
		return Status{State: StatePending}, false, nil
	}

	status, err := e.consume(req)

	return status, true, err
}

// WaitAll waits on every request in order and returns their statuses. All
// requests are waited on even if one fails; the first error is returned.
func (e *Endpoint) WaitAll(reqs ...*Request) ([]Status, error) {
	statuses := make([]Status, len(reqs))

	var firstErr error
	for i, req := range reqs {
		status, err := e.Wait(req)
		statuses[i] = status

		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return statuses, firstErr
}

// Pending returns the requests of this endpoint that have not been consumed,
// in initiation order.
func (e *Endpoint) Pending() []*Request {
	e.world.mu.Lock()
	defer e.world.mu.Unlock()

	reqs := make([]*Request, len(e.pending))
	copy(reqs, e.pending)

	return reqs
}

func (e *Endpoint) claim(req *Request) error {
	if req == nil {
		return fmt.Errorf("%w: nil request", ErrInvalidHandle)
	}

	if req.owner != e {
		return fmt.Errorf("%w: request %s belongs to %s, not %s",
			ErrInvalidHandle, req.id, req.owner.name, e.name)
	}

	e.world.mu.Lock()
	defer e.world.mu.Unlock()

	if req.claimed {
		return fmt.Errorf("%w: request %s already consumed",
			ErrInvalidHandle, req.id)
	}

	req.claimed = true

	return nil
}

func (e *Endpoint) unclaim(req *Request) {
	e.world.mu.Lock()
	req.claimed = false
	e.world.mu.Unlock()
}

func (e *Endpoint) consume(req *Request) (Status, error) {
	e.world.mu.Lock()
	e.pending = removeRequest(e.pending, req)
	status := req.status
	e.world.mu.Unlock()

	if status.State == StateFailed {
		return status, status.Err
	}

	return status, nil
}
