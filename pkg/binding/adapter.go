package binding

import "context"

// Adapter ships payloads to the view layer. Payload keys are top-level
// field names or dotted paths; a nil value deletes the field.
type Adapter interface {
	SetData(ctx context.Context, payload map[string]any) error
}

// AdapterFunc adapts a function to the Adapter interface.
type AdapterFunc func(ctx context.Context, payload map[string]any) error

// SetData calls f.
func (f AdapterFunc) SetData(ctx context.Context, payload map[string]any) error {
	return f(ctx, payload)
}
