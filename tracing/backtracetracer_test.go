package tracing

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BackTraceTracer", func() {
	var (
		out    *bytes.Buffer
		tracer *BackTraceTracer
	)

	BeforeEach(func() {
		out = &bytes.Buffer{}
		tracer = NewBackTraceTracer(NewTaskPrinter(out))

		tracer.StartTask(Task{ID: "1", Kind: "call", What: "irecv", Where: "B"})
		tracer.StartTask(Task{
			ID: "2", ParentID: "1", Kind: "req", What: "recv", Where: "B",
		})
		tracer.EndTask(Task{ID: "1"})
		tracer.StartTask(Task{ID: "3", Kind: "call", What: "isend", Where: "A"})
		tracer.StartTask(Task{
			ID: "4", ParentID: "3", Kind: "req", What: "send", Where: "A",
		})
		tracer.EndTask(Task{ID: "3"})
	})

	It("should list tasks in flight in start order", func() {
		tasks := tracer.InflightTasks()

		Expect(tasks).To(HaveLen(2))
		Expect(tasks[0].ID).To(Equal("2"))
		Expect(tasks[1].ID).To(Equal("4"))
	})

	It("should keep steps of remembered tasks", func() {
		tracer.StepTask(Task{ID: "2", Steps: []TaskStep{{What: "matched"}}})
		tracer.StepTask(Task{ID: "9", Steps: []TaskStep{{What: "matched"}}})

		Expect(tracer.InflightTasks()[0].Steps).To(HaveLen(1))
	})

	It("should print a task and its ancestors", func() {
		tracer.DumpBackTrace(tracer.InflightTasks()[0])

		Expect(out.String()).To(Equal(
			"2 req-recv@B (in flight)\n" +
				"  1 call-irecv@B (ended)\n"))
	})

	It("should print only the deepest tasks in flight", func() {
		tracer.StartTask(Task{
			ID: "5", ParentID: "2", Kind: "call", What: "wait", Where: "B",
		})

		n := tracer.DumpInflight()

		Expect(n).To(Equal(2))
		Expect(out.String()).To(Equal(
			"4 req-send@A (in flight)\n" +
				"  3 call-isend@A (ended)\n" +
				"5 call-wait@B (in flight)\n" +
				"  2 req-recv@B (in flight)\n" +
				"    1 call-irecv@B (ended)\n"))
	})

	It("should print nothing when everything ended", func() {
		tracer.EndTask(Task{ID: "2"})
		tracer.EndTask(Task{ID: "4"})

		Expect(tracer.DumpInflight()).To(Equal(0))
		Expect(out.String()).To(BeEmpty())
	})
})
