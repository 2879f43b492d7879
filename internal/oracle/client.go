// Package oracle implements the Oracle Client of spec.md §4.1: a defensive
// wrapper around a single "given a prompt, return text" capability that
// classifies provider errors, retries with backoff, and extracts structured
// data from an otherwise unreliable text response.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/evoforge/evoforge/internal/interfaces"
)

// Backend is the minimal text-completion capability the Oracle Client
// consumes. Any internal/models provider satisfies it, and so does a
// Router wrapped with internal/models.AsOracleBackend.
type Backend interface {
	Chat(ctx context.Context, req interfaces.ChatRequest) (*interfaces.ChatResponse, error)
}

// ExpectedShape constrains how askStructured parses a response.
type ExpectedShape string

const (
	ShapeText       ExpectedShape = "text"
	ShapeJSONObject ExpectedShape = "json-object"
	ShapeJSONArray  ExpectedShape = "json-array"
)

// FieldType is a shallow type tag for schema validation.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldArray   FieldType = "array"
	FieldAny     FieldType = "any"
)

// Schema is a shallow field-name -> type map, validated against the top
// level of a parsed JSON object.
type Schema map[string]FieldType

// Client is the Oracle Client: ask/askStructured plus retry.
type Client struct {
	backend Backend
	retry   RetryConfig
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRetryConfig overrides the default retry policy.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// New builds an Oracle Client over backend.
func New(backend Backend, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		backend: backend,
		retry:   DefaultRetryConfig(),
		logger:  logger.With("component", "oracle"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ask performs a single, unretried completion call. Role-level retry
// semantics belong to AskStructured; Ask is for callers that want raw text
// and will handle failure themselves.
func (c *Client) Ask(ctx context.Context, model, prompt string) (string, error) {
	resp, err := c.backend.Chat(ctx, interfaces.ChatRequest{
		Model:    model,
		Messages: []interfaces.ChatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// AskStructured is the typed variant: it owns retry, classifies errors, and
// defensively extracts JSON when shape requires it. On retry exhaustion it
// returns ErrOracleUnavailable wrapping the last cause.
func (c *Client) AskStructured(ctx context.Context, model, prompt string, shape ExpectedShape, schema Schema) (any, error) {
	var result any

	err := Do(ctx, c.retry, func(ctx context.Context, attempt int) error {
		resp, callErr := c.backend.Chat(ctx, interfaces.ChatRequest{
			Model:    model,
			Messages: []interfaces.ChatMessage{{Role: "user", Content: prompt}},
		})
		if callErr != nil {
			return callErr
		}

		parsed, parseErr := c.parse(resp.Content, shape, schema)
		if parseErr != nil {
			c.logger.Warn("oracle response failed to parse, retrying",
				"attempt", attempt, "shape", shape, "error", parseErr)
			return parseErr
		}
		result = parsed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
	}
	return result, nil
}

func (c *Client) parse(raw string, shape ExpectedShape, schema Schema) (any, error) {
	switch shape {
	case ShapeText:
		return raw, nil
	case ShapeJSONObject:
		candidate, ok := ExtractJSONObject(raw)
		if !ok {
			return nil, &ParseError{Raw: raw, Err: fmt.Errorf("no balanced { } found")}
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
			return nil, &ParseError{Raw: candidate, Err: err}
		}
		if err := validateSchema(obj, schema); err != nil {
			return nil, err
		}
		return obj, nil
	case ShapeJSONArray:
		candidate, ok := ExtractJSONArray(raw)
		if !ok {
			return nil, &ParseError{Raw: raw, Err: fmt.Errorf("no balanced [ ] found")}
		}
		var arr []any
		if err := json.Unmarshal([]byte(candidate), &arr); err != nil {
			return nil, &ParseError{Raw: candidate, Err: err}
		}
		return arr, nil
	default:
		return nil, &FatalError{Err: fmt.Errorf("unknown expected shape: %s", shape)}
	}
}

func validateSchema(obj map[string]any, schema Schema) error {
	for field, want := range schema {
		val, present := obj[field]
		if !present {
			return &SchemaMismatchError{Field: field, Expected: string(want), Got: "missing"}
		}
		if want == FieldAny {
			continue
		}
		if !matchesType(val, want) {
			return &SchemaMismatchError{Field: field, Expected: string(want), Got: fmt.Sprintf("%T", val)}
		}
	}
	return nil
}

func matchesType(val any, want FieldType) bool {
	switch want {
	case FieldString:
		_, ok := val.(string)
		return ok
	case FieldNumber:
		_, ok := val.(float64)
		return ok
	case FieldBoolean:
		_, ok := val.(bool)
		return ok
	case FieldArray:
		_, ok := val.([]any)
		return ok
	default:
		return true
	}
}
