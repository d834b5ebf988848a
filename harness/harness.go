// Package harness runs the reference exchange between two endpoints: the
// sender initiates a send, the receiver initiates a receive, and each then
// waits for its operation to complete.
package harness

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/nbmsg/comm"
)

// DefaultTag is the tag both sides use unless told otherwise.
const DefaultTag comm.Tag = 1234

// A Scenario describes one exchange of a single int32.
type Scenario struct {
	Sender   comm.Rank
	Receiver comm.Rank
	SendTag  comm.Tag
	RecvTag  comm.Tag
	Value    int32
}

// SelfSend returns the scenario in which rank 0 sends a value to itself.
func SelfSend(value int32) Scenario {
	return Scenario{
		SendTag: DefaultTag,
		RecvTag: DefaultTag,
		Value:   value,
	}
}

// Pair returns the scenario in which rank 0 sends a value to rank 1.
func Pair(value int32) Scenario {
	return Scenario{
		Sender:   0,
		Receiver: 1,
		SendTag:  DefaultTag,
		RecvTag:  DefaultTag,
		Value:    value,
	}
}

// Result is what each side observed.
type Result struct {
	SendStatus comm.Status
	RecvStatus comm.Status

	// Received is the value in the receive buffer. It is zero unless the
	// receive completed.
	Received int32
}

// Run executes the scenario in world, which must be initialized. Every rank
// involved runs in its own goroutine, and a failure on one rank does not
// stop the other. Run returns when both operations have
// completed or when ctx is done. Operations still pending at that point
// are reported with StatePending and the context error.
func Run(ctx context.Context, world *comm.World, sc Scenario) (Result, error) {
	for _, r := range []comm.Rank{sc.Sender, sc.Receiver} {
		if r < 0 || int(r) >= world.Size() {
			return Result{}, fmt.Errorf("%w: rank %d in %s of size %d",
				comm.ErrInvalidPeer, r, world.Name(), world.Size())
		}
	}

	if sc.Sender == sc.Receiver {
		return runSelf(ctx, world.Endpoint(sc.Sender), sc)
	}

	sender := world.Endpoint(sc.Sender)
	receiver := world.Endpoint(sc.Receiver)

	var (
		res     Result
		recvBuf = make([]byte, comm.Int32.Size)
	)

	var g errgroup.Group

	g.Go(func() error {
		req, err := sender.Isend(encode(sc.Value), comm.Int32,
			sc.Receiver, sc.SendTag)
		if err != nil {
			return fmt.Errorf("isend: %w", err)
		}

		res.SendStatus, err = sender.WaitContext(ctx, req)
		if err != nil {
			return fmt.Errorf("wait send: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		req, err := receiver.Irecv(recvBuf, comm.Int32, sc.Sender, sc.RecvTag)
		if err != nil {
			return fmt.Errorf("irecv: %w", err)
		}

		res.RecvStatus, err = receiver.WaitContext(ctx, req)
		if err != nil {
			return fmt.Errorf("wait recv: %w", err)
		}

		return nil
	})

	err := g.Wait()
	if res.RecvStatus.State == comm.StateComplete {
		res.Received = decode(recvBuf)
	}

	return res, err
}

// runSelf performs the exchange on a single endpoint, in the order isend,
// irecv, wait, wait.
func runSelf(
	ctx context.Context,
	ep *comm.Endpoint,
	sc Scenario,
) (Result, error) {
	var res Result

	buf := encode(sc.Value)
	recvBuf := make([]byte, comm.Int32.Size)

	sreq, err := ep.Isend(buf, comm.Int32, ep.Rank(), sc.SendTag)
	if err != nil {
		return res, fmt.Errorf("isend: %w", err)
	}

	rreq, err := ep.Irecv(recvBuf, comm.Int32, ep.Rank(), sc.RecvTag)
	if err != nil {
		return res, fmt.Errorf("irecv: %w", err)
	}

	var errs []error

	res.SendStatus, err = ep.WaitContext(ctx, sreq)
	if err != nil {
		errs = append(errs, fmt.Errorf("wait send: %w", err))
	}

	res.RecvStatus, err = ep.WaitContext(ctx, rreq)
	if err != nil {
		errs = append(errs, fmt.Errorf("wait recv: %w", err))
	}

	if res.RecvStatus.State == comm.StateComplete {
		res.Received = decode(recvBuf)
	}

	return res, errors.Join(errs...)
}

func encode(v int32) []byte {
	buf := make([]byte, comm.Int32.Size)
	binary.LittleEndian.PutUint32(buf, uint32(v))

	return buf
}

func decode(buf []byte) int32 {
	return int32(binary.LittleEndian.Uint32(buf))
}
