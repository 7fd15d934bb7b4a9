package dash

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownCallback = errors.New("unknown callback")
	ErrInputMismatch   = errors.New("callback inputs do not match its declaration")
)

// Dependency names one property of one component.
type Dependency struct {
	ID       string `json:"id"`
	Property string `json:"property"`
}

func (d Dependency) String() string {
	return d.ID + "." + d.Property
}

// Output declares a property a callback writes.
type Output = Dependency

// Input declares a property whose changes trigger a callback.
type Input = Dependency

// NewOutput creates an Output for property of component id.
func NewOutput(id, property string) Output { return Output{ID: id, Property: property} }

// NewInput creates an Input for property of component id.
func NewInput(id, property string) Input { return Input{ID: id, Property: property} }

// CallbackFunc computes output values from input values, one per declared
// Output and Input, in declaration order.
type CallbackFunc func(ctx context.Context, inputs []any) ([]any, error)

// Callback binds inputs to outputs through Func.
type Callback struct {
	Outputs []Output
	Inputs  []Input
	Func    CallbackFunc
}

// NewCallback builds a Callback with a single output and a single input.
func NewCallback(output Output, input Input, fn func(ctx context.Context, value any) (any, error)) Callback {
	return Callback{
		Outputs: []Output{output},
		Inputs:  []Input{input},
		Func: func(ctx context.Context, inputs []any) ([]any, error) {
			out, err := fn(ctx, inputs[0])
			if err != nil {
				return nil, err
			}
			return []any{out}, nil
		},
	}
}

// Key identifies the callback by its outputs, e.g. "graph.figure" or "a.children..b.value".
func (c Callback) Key() string {
	parts := make([]string, len(c.Outputs))
	for i, out := range c.Outputs {
		parts[i] = out.String()
	}
	return strings.Join(parts, "..")
}

// callbackSpec is the browser-facing description of a Callback.
type callbackSpec struct {
	Key     string       `json:"key"`
	Outputs []Dependency `json:"outputs"`
	Inputs  []Dependency `json:"inputs"`
}

// InputValue is one input dependency with its current value.
type InputValue struct {
	ID       string `json:"id"`
	Property string `json:"property"`
	Value    any    `json:"value"`
}

// OutputValue is one output dependency with its new value.
type OutputValue struct {
	ID       string `json:"id"`
	Property string `json:"property"`
	Value    any    `json:"value"`
}

// UpdateRequest asks for the callback identified by Output to run.
type UpdateRequest struct {
	RequestID string       `json:"requestId,omitempty"`
	Output    string       `json:"output"`
	Inputs    []InputValue `json:"inputs"`
}

// UpdateResponse carries the callback results or its error.
type UpdateResponse struct {
	RequestID string        `json:"requestId,omitempty"`
	Outputs   []OutputValue `json:"outputs,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// invoke checks req against c's declaration and runs it.
func (c Callback) invoke(ctx context.Context, req UpdateRequest) ([]OutputValue, error) {
	if len(req.Inputs) != len(c.Inputs) {
		return nil, fmt.Errorf("%w: want %d inputs, got %d", ErrInputMismatch, len(c.Inputs), len(req.Inputs))
	}
	values := make([]any, len(c.Inputs))
	for i, in := range c.Inputs {
		got := req.Inputs[i]
		if got.ID != in.ID || got.Property != in.Property {
			return nil, fmt.Errorf("%w: input %d is %s.%s, want %s", ErrInputMismatch, i, got.ID, got.Property, in)
		}
		values[i] = got.Value
	}

	results, err := c.Func(ctx, values)
	if err != nil {
		return nil, err
	}
	if len(results) != len(c.Outputs) {
		return nil, fmt.Errorf("callback %s returned %d values for %d outputs", c.Key(), len(results), len(c.Outputs))
	}

	outputs := make([]OutputValue, len(c.Outputs))
	for i, out := range c.Outputs {
		outputs[i] = OutputValue{ID: out.ID, Property: out.Property, Value: results[i]}
	}
	return outputs, nil
}
