package comm

import (
	"bytes"
	"fmt"
	"time"

	"github.com/sarchlab/nbmsg/tracing"
)

// postSend must be called with the lock held.
func (w *World) postSend(s *Request) {
	if w.abortErr != nil {
		w.fail(s, w.abortErr)
		return
	}

	q := &w.queues[s.peer]
	for i, r := range q.postedRecvs {
		if r.matches(s.owner.rank, s.tag) {
			q.postedRecvs = removeAt(q.postedRecvs, i)
			w.deliver(s, r)

			return
		}
	}

	if w.eagerLimit > 0 && len(s.buf) <= w.eagerLimit {
		s.payload = bytes.Clone(s.buf)
		w.finish(s, Status{
			State:  StateComplete,
			Count:  s.count(len(s.buf)),
			Source: s.peer,
			Tag:    s.tag,
		})
	} else {
		w.startTimer(s)
	}

	q.unexpected = append(q.unexpected, s)
}

// postRecv must be called with the lock held.
func (w *World) postRecv(r *Request) {
	if w.abortErr != nil {
		w.fail(r, w.abortErr)
		return
	}

	q := &w.queues[r.owner.rank]
	for i, s := range q.unexpected {
		if r.matches(s.owner.rank, s.tag) {
			q.unexpected = removeAt(q.unexpected, i)
			w.deliver(s, r)

			return
		}
	}

	w.startTimer(r)
	q.postedRecvs = append(q.postedRecvs, r)
}

// deliver copies the message of send s into receive r and completes both.
func (w *World) deliver(s, r *Request) {
	s.matched = true
	r.matched = true

	tracing.AddTaskStep(s.id, s.owner, StepMatched)
	tracing.AddTaskStep(r.id, r.owner, StepMatched)

	data := s.payload
	if data == nil {
		data = s.buf
	}

	n := copy(r.buf, data)

	if s.state == StatePending {
		w.finish(s, Status{
			State:  StateComplete,
			Count:  s.count(len(s.buf)),
			Source: r.owner.rank,
			Tag:    s.tag,
		})
	}

	status := Status{
		State:  StateComplete,
		Count:  r.count(n),
		Source: s.owner.rank,
		Tag:    s.tag,
	}

	if len(data) > len(r.buf) {
		status.State = StateFailed
		status.Err = fmt.Errorf("%w: %d bytes sent into a %d-byte buffer",
			ErrTruncate, len(data), len(r.buf))
	}

	w.finish(r, status)
}

func (w *World) fail(r *Request, err error) {
	w.finish(r, Status{
		State:  StateFailed,
		Source: r.peer,
		Tag:    r.tag,
		Err:    err,
	})
}

// finish moves a request to a terminal state and wakes its waiter.
func (w *World) finish(r *Request, status Status) {
	stopTimer(r)

	r.state = status.State
	r.status = status
	close(r.done)

	if status.State == StateFailed {
		tracing.AddTaskStep(r.id, r.owner, StepFailed)
		w.logger.Debug("request failed",
			"endpoint", r.owner.name, "id", r.id, "err", status.Err)
	} else {
		w.logger.Debug("request completed",
			"endpoint", r.owner.name, "id", r.id,
			"count", status.Count, "source", status.Source, "tag", status.Tag)
	}

	tracing.EndTask(r.id, r.owner)
}

// startTimer must be called with the lock held.
func (w *World) startTimer(r *Request) {
	if w.matchTimeout <= 0 {
		return
	}

	r.timer = time.AfterFunc(w.matchTimeout, func() { w.expire(r) })
}

func stopTimer(r *Request) {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (w *World) expire(r *Request) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if r.state != StatePending || r.matched {
		return
	}

	if r.kind == KindSend {
		q := &w.queues[r.peer]
		q.unexpected = removeRequest(q.unexpected, r)
	} else {
		q := &w.queues[r.owner.rank]
		q.postedRecvs = removeRequest(q.postedRecvs, r)
	}

	w.fail(r, fmt.Errorf("%w: waited %s", ErrUnmatched, w.matchTimeout))
}

func removeAt(reqs []*Request, i int) []*Request {
	return append(reqs[:i], reqs[i+1:]...)
}

func removeRequest(reqs []*Request, r *Request) []*Request {
	for i, candidate := range reqs {
		if candidate == r {
			return removeAt(reqs, i)
		}
	}

	return reqs
}
