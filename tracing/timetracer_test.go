package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nbmsg/timing"
)

var _ = Describe("TotalTimeTracer", func() {
	var (
		clock  *timing.ManualClock
		tracer *TotalTimeTracer
	)

	BeforeEach(func() {
		clock = &timing.ManualClock{}
		tracer = NewTotalTimeTracer(clock, KindFilter("call", "wait"))
	})

	It("should add up the time of matching tasks", func() {
		clock.Set(1)
		tracer.StartTask(Task{ID: "1", Kind: "call", What: "wait"})
		tracer.StartTask(Task{ID: "2", Kind: "call", What: "isend"})
		clock.Set(1.5)
		tracer.StartTask(Task{ID: "3", Kind: "call", What: "wait"})
		clock.Set(3)
		tracer.EndTask(Task{ID: "1"})
		tracer.EndTask(Task{ID: "2"})
		tracer.EndTask(Task{ID: "3"})

		Expect(tracer.TotalTime()).To(Equal(timing.TimeInSec(3.5)))
	})
})

var _ = Describe("AverageTimeTracer", func() {
	var (
		clock  *timing.ManualClock
		tracer *AverageTimeTracer
	)

	BeforeEach(func() {
		clock = &timing.ManualClock{}
		tracer = NewAverageTimeTracer(clock, KindFilter("req"))
	})

	It("should average the time of matching tasks", func() {
		tracer.StartTask(Task{ID: "1", Kind: "req", What: "send"})
		tracer.StartTask(Task{ID: "2", Kind: "req", What: "recv"})
		tracer.StartTask(Task{ID: "3", Kind: "call", What: "wait"})
		clock.Set(1)
		tracer.EndTask(Task{ID: "1"})
		clock.Set(3)
		tracer.EndTask(Task{ID: "2"})
		tracer.EndTask(Task{ID: "3"})

		Expect(tracer.TotalCount()).To(Equal(uint64(2)))
		Expect(tracer.AverageTime()).To(Equal(timing.TimeInSec(2)))
	})
})
