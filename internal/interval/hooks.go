package interval

// HookPos names a hooking position of the controller.
type HookPos struct {
	Name string
}

// HookCtx holds the information about the site where a hook is triggered.
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Item   interface{}
	Detail interface{}
}

// Hook observes controller activity. Hooks must not retain Items that
// carry values without cloning them.
type Hook interface {
	Func(ctx HookCtx)
}

// HookFunc adapts a plain function to a Hook.
type HookFunc func(ctx HookCtx)

func (f HookFunc) Func(ctx HookCtx) { f(ctx) }

// Hookable defines an object that accepts hooks.
type Hookable interface {
	AcceptHook(hook Hook)
}

var (
	// HookPosMsgRecv fires after every receive. Item is the message.
	HookPosMsgRecv = &HookPos{Name: "MsgRecv"}
	// HookPosMsgSend fires after every send. Item is the message.
	HookPosMsgSend = &HookPos{Name: "MsgSend"}
	// HookPosWidthAdjusted fires on time_adjusted. Item is the State.
	HookPosWidthAdjusted = &HookPos{Name: "WidthAdjusted"}
	// HookPosIntervalBegin fires when a new interval starts. Item is the State.
	HookPosIntervalBegin = &HookPos{Name: "IntervalBegin"}
	// HookPosIntervalResume fires when an interval is resumed. Item is the State.
	HookPosIntervalResume = &HookPos{Name: "IntervalResume"}
	// HookPosIntervalOutcome fires after the executor returns. Item is the
	// Outcome, Detail the State.
	HookPosIntervalOutcome = &HookPos{Name: "IntervalOutcome"}
)

// HookableBase provides the hook registry for Hookable types.
type HookableBase struct {
	Hooks []Hook
}

func NewHookableBase() *HookableBase {
	h := new(HookableBase)
	h.Hooks = make([]Hook, 0)
	return h
}

func (h *HookableBase) AcceptHook(hook Hook) {
	h.Hooks = append(h.Hooks, hook)
}

func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.Hooks {
		hook.Func(ctx)
	}
}
