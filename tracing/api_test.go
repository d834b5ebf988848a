package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"

	"github.com/sarchlab/nbmsg/hooking"
)

type sampleDomain struct {
	*hooking.HookableBase
	name string
}

func (d *sampleDomain) Name() string {
	return d.name
}

func newSampleDomain(name string) *sampleDomain {
	return &sampleDomain{
		HookableBase: hooking.NewHookableBase(),
		name:         name,
	}
}

var _ = Describe("Task API", func() {
	var (
		mockCtrl *gomock.Controller
		tracer   *MockTracer
		domain   *sampleDomain
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		tracer = NewMockTracer(mockCtrl)
		domain = newSampleDomain("World.Rank[0]")
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should not invoke anything if no hook is registered", func() {
		hookable := NewMockNamedHookable(mockCtrl)
		hookable.EXPECT().NumHooks().Return(0).Times(3)

		StartTask("1", "", hookable, "call", "isend", nil)
		AddTaskStep("1", hookable, "matched")
		EndTask("1", hookable)
	})

	It("should report the start of a task with the domain as location", func() {
		CollectTrace(domain, tracer)

		tracer.EXPECT().StartTask(Task{
			ID:       "1",
			ParentID: "0",
			Kind:     "call",
			What:     "isend",
			Where:    "World.Rank[0]",
		})

		StartTask("1", "0", domain, "call", "isend", nil)
	})

	It("should report steps and ends", func() {
		CollectTrace(domain, tracer)

		gomock.InOrder(
			tracer.EXPECT().StepTask(Task{
				ID:    "1",
				Steps: []TaskStep{{What: "matched"}},
			}),
			tracer.EXPECT().EndTask(Task{ID: "1"}),
		)

		AddTaskStep("1", domain, "matched")
		EndTask("1", domain)
	})

	It("should panic on tasks missing required fields", func() {
		CollectTrace(domain, tracer)

		Expect(func() { StartTask("", "", domain, "call", "isend", nil) }).
			To(Panic())
		Expect(func() { StartTask("1", "", domain, "", "isend", nil) }).
			To(Panic())
		Expect(func() { StartTask("1", "", domain, "call", "", nil) }).
			To(Panic())
	})

	It("should not collect the same tracer twice", func() {
		CollectTrace(domain, tracer)

		Expect(func() { CollectTrace(domain, tracer) }).To(Panic())
	})

	It("should ignore hook items that are not tasks", func() {
		CollectTrace(domain, tracer)

		domain.InvokeHook(hooking.HookCtx{
			Domain: domain,
			Pos:    HookPosTaskStart,
			Item:   "not a task",
		})
	})
})

var _ = Describe("KindFilter", func() {
	It("should match kind and optional whats", func() {
		Expect(KindFilter("call")(Task{Kind: "call", What: "wait"})).
			To(BeTrue())
		Expect(KindFilter("call", "wait")(Task{Kind: "call", What: "isend"})).
			To(BeFalse())
		Expect(KindFilter("call", "isend", "wait")(Task{Kind: "call", What: "wait"})).
			To(BeTrue())
		Expect(KindFilter("req")(Task{Kind: "call"})).To(BeFalse())
	})
})
