package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/yungbote/creditchat-backend/internal/platform/logger"
	"github.com/yungbote/creditchat-backend/internal/platform/openai"
)

var (
	ErrUnknownTool = errors.New("unknown tool")
	ErrInvalidArgs = errors.New("invalid tool arguments")
)

// capability is a registered tool with its arguments decoded into a concrete
// type before the handler sees them.
type capability interface {
	tool() openai.Tool
	invoke(ctx context.Context, raw json.RawMessage) (string, error)
}

type typedCapability[T any] struct {
	def      openai.Tool
	fn       func(ctx context.Context, args T) (string, error)
	validate *validator.Validate
}

func (c *typedCapability[T]) tool() openai.Tool { return c.def }

func (c *typedCapability[T]) invoke(ctx context.Context, raw json.RawMessage) (string, error) {
	if err := checkSchema(c.def.Parameters, raw); err != nil {
		return "", fmt.Errorf("%w for %s: %v", ErrInvalidArgs, c.def.Name, err)
	}
	var args T
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&args); err != nil {
		return "", fmt.Errorf("%w for %s: %v", ErrInvalidArgs, c.def.Name, err)
	}
	if err := c.validate.StructCtx(ctx, args); err != nil {
		return "", fmt.Errorf("%w for %s: %v", ErrInvalidArgs, c.def.Name, err)
	}
	return c.fn(ctx, args)
}

// Registry maps tool names to typed handlers.
type Registry struct {
	mu       sync.RWMutex
	caps     map[string]capability
	validate *validator.Validate
}

func NewRegistry() *Registry {
	return &Registry{caps: map[string]capability{}, validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Register adds a tool whose JSON arguments decode into T. schema is the JSON
// schema object declared to the model and checked before decoding.
func Register[T any](r *Registry, name, description string, schema map[string]any, fn func(ctx context.Context, args T) (string, error)) error {
	name = strings.TrimSpace(name)
	if name == "" || fn == nil {
		return fmt.Errorf("register tool: name and handler required")
	}
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.caps[name]; exists {
		return fmt.Errorf("register tool: %q already registered", name)
	}
	r.caps[name] = &typedCapability[T]{
		def:      openai.Tool{Name: name, Description: description, Parameters: schema},
		fn:       fn,
		validate: r.validate,
	}
	return nil
}

// Tools lists the declarations in name order.
func (r *Registry) Tools() []openai.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.caps))
	for n := range r.caps {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]openai.Tool, 0, len(names))
	for _, n := range names {
		out = append(out, r.caps[n].tool())
	}
	return out
}

func (r *Registry) Invoke(ctx context.Context, name string, raw json.RawMessage) (string, error) {
	r.mu.RLock()
	c, ok := r.caps[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	return c.invoke(ctx, raw)
}

// checkSchema enforces the object-level subset of JSON schema the tools use:
// required keys, additionalProperties=false and primitive property types.
func checkSchema(schema map[string]any, raw json.RawMessage) error {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return fmt.Errorf("arguments are not a JSON object: %w", err)
	}
	props, _ := schema["properties"].(map[string]any)
	for _, req := range stringList(schema["required"]) {
		if _, ok := obj[req]; !ok {
			return fmt.Errorf("missing required property %q", req)
		}
	}
	if extra, ok := schema["additionalProperties"].(bool); ok && !extra {
		for k := range obj {
			if _, declared := props[k]; !declared {
				return fmt.Errorf("unexpected property %q", k)
			}
		}
	}
	for k, v := range obj {
		p, _ := props[k].(map[string]any)
		want, _ := p["type"].(string)
		if want != "" && !matchesType(want, v) {
			return fmt.Errorf("property %q: want %s", k, want)
		}
	}
	return nil
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func matchesType(want string, v any) bool {
	switch want {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		_, ok := v.(float64)
		return ok
	case "integer":
		f, ok := v.(float64)
		return ok && f == float64(int64(f))
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	default:
		return true
	}
}

const toolRouterInstruction = "You decide whether a tool is needed. Only call a function when the user explicitly asks you to browse the web or search for something. Otherwise reply with a short plain answer and do not call any function."

type ToolResult struct {
	Name   string
	Result string
}

// ToolBroker asks the model whether the user message needs a tool and runs at
// most one.
type ToolBroker struct {
	log   *logger.Logger
	ai    openai.Client
	reg   *Registry
	model string
}

func NewToolBroker(log *logger.Logger, ai openai.Client, reg *Registry, model string) *ToolBroker {
	return &ToolBroker{log: log.With("component", "ToolBroker"), ai: ai, reg: reg, model: model}
}

// MaybeInvoke returns nil without error when the model chose not to call a
// tool.
func (b *ToolBroker) MaybeInvoke(ctx context.Context, userMessage string) (*ToolResult, error) {
	if b == nil || b.ai == nil || b.reg == nil {
		return nil, nil
	}
	tools := b.reg.Tools()
	if len(tools) == 0 {
		return nil, nil
	}
	call, err := b.ai.ChatWithTools(ctx, openai.ChatRequest{
		Model: b.model,
		Messages: []openai.Message{
			{Role: "system", Content: toolRouterInstruction},
			{Role: "user", Content: userMessage},
		},
	}, tools)
	if err != nil {
		return nil, fmt.Errorf("tool routing: %w", err)
	}
	if call == nil {
		return nil, nil
	}
	b.log.Info("model requested tool", "tool", call.Name)
	res, err := b.reg.Invoke(ctx, call.Name, call.Arguments)
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", call.Name, err)
	}
	return &ToolResult{Name: call.Name, Result: res}, nil
}
