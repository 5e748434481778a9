// ABOUTME: Core plugin types: identity, capability declaration, and handler contract.
// ABOUTME: Declarations are what the model sees; handlers are what tool calls reach.

package plugins

import (
	"context"
	"encoding/json"
)

// Schema property types understood by the model.
const (
	TypeObject  = "object"
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
)

// Property describes a single named parameter of a capability.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Schema is the parameter schema of a capability. Type is always "object".
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// ObjectSchema builds an object schema from its properties and required names.
func ObjectSchema(props map[string]Property, required ...string) *Schema {
	if props == nil {
		props = map[string]Property{}
	}
	return &Schema{
		Type:       TypeObject,
		Properties: props,
		Required:   required,
	}
}

// Declaration is the machine-readable description of an invocable function.
// Name is the public capability identifier and is not required to be unique
// across plugins.
type Declaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parameters  *Schema `json:"parameters,omitempty"`
}

// ToolCallEvent is a single invocation requested by the model.
type ToolCallEvent struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolCall is a batch of invocations delivered together by the model.
type ToolCall struct {
	FunctionCalls []ToolCallEvent `json:"functionCalls"`
}

// Handler executes tool calls routed to a plugin. The returned text is an
// optional short result; an empty string means "no output".
type Handler interface {
	Handle(ctx context.Context, event ToolCallEvent) (string, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, event ToolCallEvent) (string, error)

// Handle calls f(ctx, event).
func (f HandlerFunc) Handle(ctx context.Context, event ToolCallEvent) (string, error) {
	return f(ctx, event)
}

// Guidance holds the briefing lines a plugin contributes to the model's
// system instruction, one for each enabled state.
type Guidance struct {
	Enabled  string
	Disabled string
}

// Plugin is a registered unit combining identity, a capability declaration,
// and a handler. Presentation names the UI unit that renders the plugin; the
// core carries it without interpreting it.
type Plugin struct {
	ID           string
	Name         string
	Description  string
	Version      string
	Author       string
	Declaration  Declaration
	Handler      Handler
	Presentation string
	Guidance     *Guidance
}

// Info is the serializable view of a plugin used by the operator API.
type Info struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	Version      string      `json:"version,omitempty"`
	Author       string      `json:"author,omitempty"`
	Capability   string      `json:"capability"`
	Declaration  Declaration `json:"declaration"`
	Presentation string      `json:"presentation,omitempty"`
	BuiltIn      bool        `json:"built_in"`
	Enabled      bool        `json:"enabled"`
}

// MarshalArgs renders event arguments as JSON, for logging and for handlers
// that decode into a typed struct.
func (e ToolCallEvent) MarshalArgs() json.RawMessage {
	if len(e.Args) == 0 {
		return json.RawMessage(`{}`)
	}
	b, err := json.Marshal(e.Args)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

// DecodeArgs decodes the event arguments into v.
func (e ToolCallEvent) DecodeArgs(v any) error {
	return json.Unmarshal(e.MarshalArgs(), v)
}

// Info returns the serializable view of p.
func (p *Plugin) Info(builtIn, enabled bool) Info {
	return Info{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		Version:      p.Version,
		Author:       p.Author,
		Capability:   p.Declaration.Name,
		Declaration:  p.Declaration,
		Presentation: p.Presentation,
		BuiltIn:      builtIn,
		Enabled:      enabled,
	}
}
