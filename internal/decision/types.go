// internal/decision/types.go
package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// IndexFile is the entry point looked up by ExecuteIndex.
const IndexFile = "index.json"

var (
	// ErrDecisionNotFound is returned when a decision key cannot be resolved
	// from the overrides or the repository.
	ErrDecisionNotFound = errors.New("decision not found")

	// ErrInvalidGraph is returned by evaluators for malformed decision graphs.
	ErrInvalidGraph = errors.New("invalid decision graph")
)

// MissingDecisionError names a decision key that could not be resolved. It
// matches ErrDecisionNotFound.
type MissingDecisionError struct {
	Key string
}

func (e *MissingDecisionError) Error() string {
	return fmt.Sprintf("%v: %s", ErrDecisionNotFound, e.Key)
}

func (e *MissingDecisionError) Unwrap() error {
	return ErrDecisionNotFound
}

// Loader returns the raw decision graph stored under key.
type Loader func(ctx context.Context, key string) ([]byte, error)

// TraceNode records one evaluated node.
type TraceNode struct {
	ID          string          `json:"id"`
	Name        string          `json:"name,omitempty"`
	Input       json.RawMessage `json:"input,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	Performance string          `json:"performance,omitempty"`
}

// Evaluation is what an evaluator returns. Performance is optional and, when
// set, is reported instead of the measured wall time.
type Evaluation struct {
	Result      json.RawMessage      `json:"result"`
	Trace       map[string]TraceNode `json:"trace,omitempty"`
	Performance string               `json:"performance,omitempty"`
}

// Evaluator runs a decision graph against an input context. Nested decisions
// are fetched through loader.
type Evaluator interface {
	Evaluate(ctx context.Context, graph []byte, input json.RawMessage, loader Loader, trace bool) (*Evaluation, error)
}

// SimulateRequest carries a graph to evaluate. Decisions overrides keys
// before RepositoryID and Branch are consulted.
type SimulateRequest struct {
	Content      json.RawMessage            `json:"content"`
	Context      json.RawMessage            `json:"context"`
	RepositoryID string                     `json:"repository_id,omitempty"`
	Branch       string                     `json:"branch,omitempty"`
	Decisions    map[string]json.RawMessage `json:"decisions,omitempty"`
	Trace        *bool                      `json:"trace,omitempty"`
}

type SimulateResult struct {
	Result      json.RawMessage      `json:"result"`
	Trace       map[string]TraceNode `json:"trace,omitempty"`
	Performance string               `json:"performance"`
}

type ExecuteResult struct {
	Result      json.RawMessage `json:"result"`
	Performance string          `json:"performance"`
}
