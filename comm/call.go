package comm

import (
	"github.com/sarchlab/nbmsg/hooking"
	"github.com/sarchlab/nbmsg/idgen"
	"github.com/sarchlab/nbmsg/tracing"
)

// Op names an observable operation boundary.
type Op string

// Observable operations.
const (
	OpInit     Op = "init"
	OpIsend    Op = "isend"
	OpIrecv    Op = "irecv"
	OpWait     Op = "wait"
	OpTest     Op = "test"
	OpFinalize Op = "finalize"
)

// Task kinds and steps reported to tracers.
const (
	// TaskKindCall tasks span one call, from entry to exit.
	TaskKindCall = "call"

	// TaskKindReq tasks span one request, from initiation to completion.
	TaskKindReq = "req"

	StepMatched = "matched"
	StepFailed  = "failed"
)

// Hook positions fired around every call. The item is a Call.
var (
	HookPosBeforeCall = &hooking.HookPos{Name: "BeforeCall"}
	HookPosAfterCall  = &hooking.HookPos{Name: "AfterCall"}
)

// Call describes one crossing of an operation boundary. Before the call only
// the arguments are set; after it the outcome is filled in as well.
type Call struct {
	ID    string
	Op    Op
	Where string

	Peer  Rank
	Tag   Tag
	Bytes int

	RequestID string
	Status    Status
	Err       error
}

type tracedDomain interface {
	tracing.NamedHookable
	ids() idgen.Generator
}

// startCall reports the entry of a call and returns the ID of the call task.
// It returns an empty ID when nothing observes the domain.
func startCall(d tracedDomain, call Call, parentID string) string {
	if d.NumHooks() == 0 {
		return ""
	}

	call.ID = d.ids().Generate()
	call.Where = d.Name()

	d.InvokeHook(hooking.HookCtx{
		Domain: d,
		Pos:    HookPosBeforeCall,
		Item:   call,
	})
	tracing.StartTask(call.ID, parentID, d, TaskKindCall, string(call.Op), nil)

	return call.ID
}

// endCall reports the exit of the call started as callID.
func endCall(d tracedDomain, callID string, call Call) {
	if callID == "" {
		return
	}

	call.ID = callID
	call.Where = d.Name()

	tracing.EndTask(callID, d)
	d.InvokeHook(hooking.HookCtx{
		Domain: d,
		Pos:    HookPosAfterCall,
		Item:   call,
	})
}

func (w *World) ids() idgen.Generator {
	return w.idGenerator
}

func (e *Endpoint) ids() idgen.Generator {
	return e.world.idGenerator
}
