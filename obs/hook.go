// Package obs provides the observability primitives shared across the
// simulator: a hook mechanism for tapping into scheduler phases and an
// event-id generator.
package obs

// HookPos names a site in the tick pipeline where hooks may be invoked.
type HookPos struct {
	Name string
}

// HookCtx carries the information available at a hook invocation site.
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Item   interface{}
	Detail interface{}
}

// Hookable is implemented by anything that accepts Hooks.
type Hookable interface {
	AcceptHook(hook Hook)
}

// Hook is a short piece of program invoked by a Hookable at a HookPos.
type Hook interface {
	Func(ctx HookCtx)
}

var (
	// HookPosBeforePhase fires before a scheduler phase runs.
	HookPosBeforePhase = &HookPos{Name: "BeforePhase"}
	// HookPosAfterPhase fires after a scheduler phase runs.
	HookPosAfterPhase = &HookPos{Name: "AfterPhase"}
	// HookPosPageFault fires when the memory manager services a fault.
	HookPosPageFault = &HookPos{Name: "PageFault"}
	// HookPosDispatch fires when a process is assigned to a core.
	HookPosDispatch = &HookPos{Name: "Dispatch"}
)

// HookableBase implements Hookable and dispatches to registered hooks.
type HookableBase struct {
	Hooks []Hook
}

// NewHookableBase creates an empty HookableBase.
func NewHookableBase() *HookableBase {
	return &HookableBase{Hooks: make([]Hook, 0)}
}

// AcceptHook registers a hook.
func (h *HookableBase) AcceptHook(hook Hook) {
	h.Hooks = append(h.Hooks, hook)
}

// InvokeHook runs every registered hook with the given context.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.Hooks {
		hook.Func(ctx)
	}
}
