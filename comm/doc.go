// Package comm provides non-blocking point-to-point messaging between the
// endpoints of an in-process World, with explicit completion tracking.
//
// A send or receive is initiated with Endpoint.Isend or Endpoint.Irecv. Both
// return a *Request immediately. The request is later consumed, exactly once,
// by Endpoint.Wait (or by Endpoint.Test once it reports completion), which
// yields a Status describing the outcome.
//
//	world := comm.NewWorld(2)
//	world.Init()
//	a, b := world.Endpoint(0), world.Endpoint(1)
//
//	out := []byte{42}
//	in := make([]byte, 1)
//	sreq, _ := a.Isend(out, comm.Byte, 1, 1234)
//	rreq, _ := b.Irecv(in, comm.Byte, 0, 1234)
//	a.Wait(sreq)
//	b.Wait(rreq)
//	world.Finalize()
//
// A send and a receive match when the receive names the sender (or
// AnySource) and the send's tag (or AnyTag). Among several sends from the same
// source that match a receive, the earliest initiated one is matched first.
// Nothing else about completion order is guaranteed.
//
// A buffer passed to Isend must not be modified, and a buffer passed to Irecv
// must not be read, until the request has been waited on.
//
// Every call and every request is reported through the tracing package, so a
// tracer attached with World.CollectTrace observes each operation boundary.
package comm
