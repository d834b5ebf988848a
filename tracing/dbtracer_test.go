package tracing

import (
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"

	"github.com/sarchlab/nbmsg/datarecording"
	"github.com/sarchlab/nbmsg/timing"
)

var _ = Describe("DBTracer", func() {
	var (
		mockCtrl     *gomock.Controller
		timeTeller   *MockTimeTeller
		dataRecorder datarecording.DataRecorder
		dbFile       string
		tracer       *DBTracer
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		timeTeller = NewMockTimeTeller(mockCtrl)

		dbPath := filepath.Join(GinkgoT().TempDir(), "trace")
		dbFile = dbPath + ".sqlite3"
		dataRecorder = datarecording.NewDataRecorder(dbPath)
		tracer = NewDBTracer(timeTeller, dataRecorder)
	})

	AfterEach(func() {
		dataRecorder.Close()
		mockCtrl.Finish()
	})

	readTasks := func(query TaskQuery) []RecordedTask {
		tracer.Terminate()
		Expect(dataRecorder.Close()).To(Succeed())

		reader, err := NewTraceReader(dbFile)
		Expect(err).NotTo(HaveOccurred())
		defer reader.Close()

		tasks, err := reader.ListTasks(context.Background(), query)
		Expect(err).NotTo(HaveOccurred())

		return tasks
	}

	It("should write a finished task with its steps", func() {
		gomock.InOrder(
			timeTeller.EXPECT().CurrentTime().Return(timing.TimeInSec(1)),
			timeTeller.EXPECT().CurrentTime().Return(timing.TimeInSec(2)),
			timeTeller.EXPECT().CurrentTime().Return(timing.TimeInSec(3)),
		)

		tracer.StartTask(Task{
			ID: "1", Kind: "req", What: "send", Where: "World.Rank[0]",
		})
		tracer.StepTask(Task{ID: "1", Steps: []TaskStep{{What: "matched"}}})
		tracer.EndTask(Task{ID: "1"})

		tasks := readTasks(TaskQuery{EnableSteps: true})

		Expect(tasks).To(HaveLen(1))
		Expect(tasks[0].ID).To(Equal("1"))
		Expect(tasks[0].Where).To(Equal("World.Rank[0]"))
		Expect(tasks[0].StartTime).To(Equal(timing.TimeInSec(1)))
		Expect(tasks[0].EndTime).To(Equal(timing.TimeInSec(3)))
		Expect(tasks[0].Finished).To(BeTrue())
		Expect(tasks[0].Steps).To(Equal([]TaskStep{{Time: 2, What: "matched"}}))
	})

	It("should write unfinished tasks on termination", func() {
		timeTeller.EXPECT().CurrentTime().Return(timing.TimeInSec(1)).AnyTimes()

		tracer.StartTask(Task{
			ID: "1", Kind: "req", What: "recv", Where: "World.Rank[1]",
		})
		tracer.StartTask(Task{
			ID: "2", ParentID: "1", Kind: "call", What: "wait",
			Where: "World.Rank[1]",
		})
		tracer.EndTask(Task{ID: "2"})

		tasks := readTasks(TaskQuery{Kind: "req"})

		Expect(tasks).To(HaveLen(1))
		Expect(tasks[0].ID).To(Equal("1"))
		Expect(tasks[0].Finished).To(BeFalse())
	})

	It("should filter tasks by parent", func() {
		timeTeller.EXPECT().CurrentTime().Return(timing.TimeInSec(1)).AnyTimes()

		tracer.StartTask(Task{ID: "1", Kind: "req", What: "send", Where: "A"})
		tracer.StartTask(Task{
			ID: "2", ParentID: "1", Kind: "call", What: "wait", Where: "A",
		})
		tracer.EndTask(Task{ID: "2"})
		tracer.EndTask(Task{ID: "1"})

		tasks := readTasks(TaskQuery{ParentID: "1"})

		Expect(tasks).To(HaveLen(1))
		Expect(tasks[0].What).To(Equal("wait"))
	})

	It("should drop tasks that start after the time range", func() {
		tracer.SetTimeRange(0, 5)
		timeTeller.EXPECT().CurrentTime().Return(timing.TimeInSec(6))

		tracer.StartTask(Task{ID: "1", Kind: "req", What: "send", Where: "A"})
		tracer.EndTask(Task{ID: "1"})

		Expect(readTasks(TaskQuery{})).To(BeEmpty())
	})

	It("should panic on invalid tasks", func() {
		Expect(func() { tracer.StartTask(Task{ID: "1"}) }).To(Panic())
	})
})
