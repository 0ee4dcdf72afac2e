package errors

import "sort"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Reactive Errors (E101-E199)
	// ============================================

	"E101": {
		Category: CategoryReactive,
		Message:  "write to readonly reactive value",
		Detail:   "The value was wrapped with Readonly. Writes through a readonly proxy are rejected.",
	},
	"E102": {
		Category: CategoryReactive,
		Message:  "computed is readonly",
		Detail:   "The computed value was created without a setter. Use NewWritableComputed to accept writes.",
	},
	"E103": {
		Category: CategoryReactive,
		Message:  "node observed by another runtime",
		Detail:   "A raw object can only be made reactive by the runtime that first observed it.",
	},
	"E104": {
		Category: CategoryReactive,
		Message:  "unsupported reactive value",
		Detail:   "Only *Object, *Array, *Proxy, map[string]any and []any can be made reactive.",
	},

	// ============================================
	// Scheduler Errors (E201-E299)
	// ============================================

	"E201": {
		Category: CategoryScheduler,
		Message:  "maximum recursive updates exceeded",
		Detail:   "A job kept re-queueing itself across consecutive flushes. This usually means two effects invalidate each other.",
	},

	// ============================================
	// Config Errors (E301-E399)
	// ============================================

	"E301": {
		Category: CategoryConfig,
		Message:  "invalid binding configuration",
		Detail:   "The configuration file could not be parsed or contains out-of-range values.",
	},
	"E302": {
		Category: CategoryConfig,
		Message:  "configuration file not found",
		Detail:   "No viewstate.json or viewstate.yaml was found.",
	},

	// ============================================
	// Scenario Errors (E401-E499)
	// ============================================

	"E401": {
		Category: CategoryScenario,
		Message:  "invalid replay scenario",
		Detail:   "A scenario step references an unknown operation or a path that cannot be resolved.",
	},
	"E402": {
		Category: CategoryScenario,
		Message:  "diff and patch strategies diverged",
		Detail:   "Replaying the same scenario under both strategies produced different final remote states.",
	},

	// ============================================
	// CLI Errors (E501-E599)
	// ============================================

	"E501": {
		Category: CategoryCLI,
		Message:  "invalid command arguments",
		Detail:   "The command received an unexpected number or kind of arguments.",
	},

	// ============================================
	// Binding Errors (E601-E699)
	// ============================================

	"E601": {
		Category: CategoryBinding,
		Message:  "binding already mounted",
		Detail:   "Mount was called twice. A binding sends its initial snapshot exactly once.",
	},
	"E602": {
		Category: CategoryBinding,
		Message:  "binding is closed",
		Detail:   "The binding was closed and no longer tracks its state.",
	},
}

// GetAllCodes returns all registered error codes in sorted order.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
