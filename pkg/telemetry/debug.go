package telemetry

import (
	"log/slog"
	"sync"
	"time"
)

// DebugInfo describes one binding flush.
type DebugInfo struct {
	BindingID string    `json:"bindingId"`
	Time      time.Time `json:"time"`

	// Mode is "diff" or "patch": the engine that produced the payload.
	Mode string `json:"mode"`
	// Reason explains a diff-mode flush: "initial", "strategy" or a
	// fallback reason.
	Reason string `json:"reason,omitempty"`

	PendingPatchKeys     int      `json:"pendingPatchKeys"`
	PayloadKeys          int      `json:"payloadKeys"`
	EstimatedBytes       int      `json:"estimatedBytes"`
	Bytes                int      `json:"bytes"`
	MergedSiblingParents []string `json:"mergedSiblingParents,omitempty"`
	ComputedDirtyKeys    []string `json:"computedDirtyKeys,omitempty"`
}

// Fallback reports whether the flush fell back from patch to diff.
func (d DebugInfo) Fallback() bool {
	switch d.Reason {
	case "", ReasonInitial, ReasonStrategy:
		return false
	}
	return true
}

// Flush reasons.
const (
	ReasonInitial         = "initial"
	ReasonStrategy        = "strategy"
	ReasonMaxPatchKeys    = "maxPatchKeys"
	ReasonMaxPayloadBytes = "maxPayloadBytes"
	ReasonUnresolvedPath  = "unresolvedPath"
	ReasonUnreachableNode = "unreachableNode"
	ReasonToPlainBudget   = "toPlainBudget"
)

// DebugHook receives flush telemetry.
type DebugHook func(DebugInfo)

// Hooks fans DebugInfo out to registered hooks. A panicking hook is logged
// and does not affect the others. Hooks is safe for concurrent use.
type Hooks struct {
	mu     sync.RWMutex
	nextID int
	hooks  map[int]DebugHook
	order  []int
	logger *slog.Logger
}

// NewHooks creates an empty hook set.
func NewHooks(logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{
		hooks:  make(map[int]DebugHook),
		logger: logger,
	}
}

// Add registers fn and returns a function that removes it.
func (h *Hooks) Add(fn DebugHook) (remove func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.hooks[id] = fn
	h.order = append(h.order, id)
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.hooks[id]; !ok {
			return
		}
		delete(h.hooks, id)
		for i, x := range h.order {
			if x == id {
				h.order = append(h.order[:i], h.order[i+1:]...)
				break
			}
		}
	}
}

// Len returns the number of registered hooks.
func (h *Hooks) Len() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.order)
}

// Emit delivers info to every hook in registration order.
func (h *Hooks) Emit(info DebugInfo) {
	if h == nil {
		return
	}
	h.mu.RLock()
	fns := make([]DebugHook, 0, len(h.order))
	for _, id := range h.order {
		fns = append(fns, h.hooks[id])
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		h.call(fn, info)
	}
}

func (h *Hooks) call(fn DebugHook, info DebugInfo) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("debug hook panic", "binding", info.BindingID, "panic", r)
		}
	}()
	fn(info)
}
