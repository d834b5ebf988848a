package comm_test

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nbmsg/comm"
	"github.com/sarchlab/nbmsg/hooking"
	"github.com/sarchlab/nbmsg/idgen"
)

var _ = Describe("Tracing", func() {
	var (
		world  *comm.World
		ep     *comm.Endpoint
		tracer *recordingTracer
	)

	BeforeEach(func() {
		world = comm.NewWorld(1, comm.WithIDGenerator(idgen.NewSequential()))
		ep = world.Endpoint(0)
		tracer = &recordingTracer{}
		world.CollectTrace(tracer)
	})

	It("should report every boundary of a self-send", func() {
		v := int32Buf(1)

		Expect(world.Init()).To(Succeed())
		sreq, _ := ep.Isend(v, comm.Int32, 0, 1234)
		rreq, _ := ep.Irecv(v, comm.Int32, 0, 1234)
		_, err := ep.Wait(sreq)
		Expect(err).NotTo(HaveOccurred())
		_, err = ep.Wait(rreq)
		Expect(err).NotTo(HaveOccurred())
		Expect(world.Finalize()).To(Succeed())

		Expect(tracer.Records()).To(Equal([]string{
			"start 1<- call/init@World",
			"end 1",
			"start 2<- call/isend@World.Rank[0]",
			"start 3<-2 req/send@World.Rank[0]",
			"end 2",
			"start 4<- call/irecv@World.Rank[0]",
			"start 5<-4 req/recv@World.Rank[0]",
			"step 3 matched",
			"step 5 matched",
			"end 3",
			"end 5",
			"end 4",
			"start 6<-3 call/wait@World.Rank[0]",
			"end 6",
			"start 7<-5 call/wait@World.Rank[0]",
			"end 7",
			"start 8<- call/finalize@World",
			"end 8",
		}))
	})

	It("should leave a mismatched receive started but not ended", func() {
		Expect(world.Init()).To(Succeed())
		_, _ = ep.Isend(int32Buf(1), comm.Int32, 0, 1234)
		_, _ = ep.Irecv(make([]byte, 4), comm.Int32, 0, 5678)

		records := tracer.Records()
		Expect(records).To(ContainElement("start 5<-4 req/recv@World.Rank[0]"))
		Expect(records).NotTo(ContainElement("end 5"))
		Expect(records).NotTo(ContainElement("end 3"))
	})

	It("should mark failed requests", func() {
		Expect(world.Init()).To(Succeed())
		rreq, _ := ep.Irecv(make([]byte, 1), comm.Byte, 0, 1)

		world.Abort(comm.ErrTransport)
		_, err := ep.Wait(rreq)
		Expect(err).To(MatchError(comm.ErrTransport))

		Expect(tracer.Records()).To(ContainElements(
			"step 3 failed",
			"end 3",
		))
	})

	It("should show hooks the arguments and the outcome of calls", func() {
		var (
			mu     sync.Mutex
			before []comm.Call
			after  []comm.Call
		)

		world.AcceptHookAll(hooking.HookFunc(func(ctx hooking.HookCtx) {
			call, ok := ctx.Item.(comm.Call)
			if !ok {
				return
			}

			mu.Lock()
			defer mu.Unlock()

			switch ctx.Pos {
			case comm.HookPosBeforeCall:
				before = append(before, call)
			case comm.HookPosAfterCall:
				after = append(after, call)
			}
		}))

		Expect(world.Init()).To(Succeed())
		_, err := ep.Isend([]byte{1}, comm.Byte, 3, 9)
		Expect(err).To(MatchError(comm.ErrInvalidPeer))

		Expect(before).To(HaveLen(2))
		Expect(after).To(HaveLen(2))
		Expect(before[1].Op).To(Equal(comm.OpIsend))
		Expect(before[1].Peer).To(Equal(comm.Rank(3)))
		Expect(before[1].Err).NotTo(HaveOccurred())
		Expect(after[1].Where).To(Equal("World.Rank[0]"))
		Expect(after[1].Err).To(MatchError(comm.ErrInvalidPeer))
		Expect(after[1].RequestID).To(BeEmpty())
	})
})
