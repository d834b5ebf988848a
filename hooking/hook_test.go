package hooking

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"
)

var _ = Describe("HookableBase", func() {
	var (
		mockCtrl *gomock.Controller
		domain   *HookableBase
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		domain = NewHookableBase()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should invoke all hooks in registration order", func() {
		hook1 := NewMockHook(mockCtrl)
		hook2 := NewMockHook(mockCtrl)
		pos := &HookPos{Name: "Pos"}
		ctx := HookCtx{Domain: domain, Pos: pos, Item: 1}

		domain.AcceptHook(hook1)
		domain.AcceptHook(hook2)

		gomock.InOrder(
			hook1.EXPECT().Func(ctx),
			hook2.EXPECT().Func(ctx),
		)

		domain.InvokeHook(ctx)

		Expect(domain.NumHooks()).To(Equal(2))
	})

	It("should panic if the same hook is registered twice", func() {
		hook := NewMockHook(mockCtrl)
		domain.AcceptHook(hook)

		Expect(func() { domain.AcceptHook(hook) }).To(Panic())
	})

	It("should accept function hooks", func() {
		called := 0
		f := HookFunc(func(HookCtx) { called++ })

		domain.AcceptHook(f)
		domain.AcceptHook(f)
		domain.InvokeHook(HookCtx{})

		Expect(called).To(Equal(2))
	})
})
