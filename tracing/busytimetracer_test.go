package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"

	"github.com/sarchlab/nbmsg/timing"
)

var _ = Describe("BusyTimeTracer", func() {
	var (
		mockCtrl   *gomock.Controller
		timeTeller *MockTimeTeller
		t          *BusyTimeTracer
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		timeTeller = NewMockTimeTeller(mockCtrl)

		t = NewBusyTimeTracer(timeTeller, nil)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should track busy time, one task", func() {
		timeTeller.EXPECT().CurrentTime().Return(timing.TimeInSec(1))
		t.StartTask(Task{ID: "1"})

		timeTeller.EXPECT().CurrentTime().Return(timing.TimeInSec(2))
		t.EndTask(Task{ID: "1"})

		Expect(t.BusyTime()).To(Equal(timing.TimeInSec(1.0)))
	})

	It("should track busy time, two separate tasks", func() {
		timeTeller.EXPECT().CurrentTime().Return(timing.TimeInSec(1))
		t.StartTask(Task{ID: "1"})
		timeTeller.EXPECT().CurrentTime().Return(timing.TimeInSec(2))
		t.EndTask(Task{ID: "1"})

		timeTeller.EXPECT().CurrentTime().Return(timing.TimeInSec(3))
		t.StartTask(Task{ID: "2"})
		timeTeller.EXPECT().CurrentTime().Return(timing.TimeInSec(4))
		t.EndTask(Task{ID: "2"})

		Expect(t.BusyTime()).To(Equal(timing.TimeInSec(2.0)))
	})

	It("should count overlapping tasks once", func() {
		timeTeller.EXPECT().CurrentTime().Return(timing.TimeInSec(1))
		t.StartTask(Task{ID: "1"})
		t.StartTask(Task{ID: "2"})
		t.EndTask(Task{ID: "1"})
		timeTeller.EXPECT().CurrentTime().Return(timing.TimeInSec(4))
		t.EndTask(Task{ID: "2"})

		Expect(t.BusyTime()).To(Equal(timing.TimeInSec(3.0)))
	})

	It("should include the current busy period", func() {
		timeTeller.EXPECT().CurrentTime().Return(timing.TimeInSec(1))
		t.StartTask(Task{ID: "1"})

		timeTeller.EXPECT().CurrentTime().Return(timing.TimeInSec(2.5))
		Expect(t.BusyTime()).To(Equal(timing.TimeInSec(1.5)))
	})

	It("should ignore tasks it does not track", func() {
		t = NewBusyTimeTracer(timeTeller, KindFilter("req"))

		t.StartTask(Task{ID: "1", Kind: "call"})
		t.EndTask(Task{ID: "1"})
		t.EndTask(Task{ID: "2"})

		Expect(t.BusyTime()).To(Equal(timing.TimeInSec(0)))
	})
})
