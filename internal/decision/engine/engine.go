// internal/decision/engine/engine.go
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dgit/internal/decision"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// DefaultMaxDepth bounds how deeply decision nodes may nest.
const DefaultMaxDepth = 16

const (
	NodeInput      = "inputNode"
	NodeOutput     = "outputNode"
	NodeExpression = "expressionNode"
	NodeDecision   = "decisionNode"
)

type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

type Node struct {
	ID      string          `json:"id"`
	Name    string          `json:"name,omitempty"`
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

type Edge struct {
	ID       string `json:"id,omitempty"`
	SourceID string `json:"sourceId"`
	TargetID string `json:"targetId"`
}

// Expression assigns the value of an HCL expression to Key. Expressions see
// the node input as `input` and the keys computed before them as `output`.
type Expression struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type expressionContent struct {
	Expressions []Expression `json:"expressions"`
}

type decisionContent struct {
	Key string `json:"key"`
}

// Engine is the built-in decision graph evaluator.
type Engine struct {
	maxDepth  int
	functions map[string]function.Function
}

func New(maxDepth int) *Engine {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Engine{
		maxDepth: maxDepth,
		functions: map[string]function.Function{
			"abs":        stdlib.AbsoluteFunc,
			"ceil":       stdlib.CeilFunc,
			"floor":      stdlib.FloorFunc,
			"max":        stdlib.MaxFunc,
			"min":        stdlib.MinFunc,
			"upper":      stdlib.UpperFunc,
			"lower":      stdlib.LowerFunc,
			"strlen":     stdlib.StrlenFunc,
			"substr":     stdlib.SubstrFunc,
			"format":     stdlib.FormatFunc,
			"length":     stdlib.LengthFunc,
			"concat":     stdlib.ConcatFunc,
			"contains":   stdlib.ContainsFunc,
			"keys":       stdlib.KeysFunc,
			"coalesce":   stdlib.CoalesceFunc,
			"jsonencode": stdlib.JSONEncodeFunc,
			"jsondecode": stdlib.JSONDecodeFunc,
		},
	}
}

func (e *Engine) Evaluate(ctx context.Context, graph []byte, input json.RawMessage, loader decision.Loader, trace bool) (*decision.Evaluation, error) {
	return e.evaluate(ctx, graph, input, loader, trace, 0)
}

func (e *Engine) evaluate(ctx context.Context, raw []byte, input json.RawMessage, loader decision.Loader, trace bool, depth int) (*decision.Evaluation, error) {
	if depth > e.maxDepth {
		return nil, fmt.Errorf("%w: decisions nested deeper than %d", decision.ErrInvalidGraph, e.maxDepth)
	}

	var g Graph
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("%w: %v", decision.ErrInvalidGraph, err)
	}
	order, parents, err := g.sort()
	if err != nil {
		return nil, err
	}

	outputs := make(map[string]json.RawMessage, len(order))
	eval := &decision.Evaluation{}
	if trace {
		eval.Trace = make(map[string]decision.TraceNode, len(order))
	}

	var results []json.RawMessage
	for _, node := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()

		nodeInput := input
		if node.Type != NodeInput {
			nodeInput, err = mergeInputs(parents[node.ID], outputs)
			if err != nil {
				return nil, fmt.Errorf("node %s: %w", node.ID, err)
			}
		}

		var out json.RawMessage
		switch node.Type {
		case NodeInput:
			out = input
		case NodeOutput:
			out = nodeInput
			results = append(results, out)
		case NodeExpression:
			out, err = e.expressions(node, nodeInput)
		case NodeDecision:
			out, err = e.subDecision(ctx, node, nodeInput, loader, depth)
		default:
			err = fmt.Errorf("%w: node %s has unsupported type %q", decision.ErrInvalidGraph, node.ID, node.Type)
		}
		if err != nil {
			return nil, err
		}
		outputs[node.ID] = out

		if trace {
			eval.Trace[node.ID] = decision.TraceNode{
				ID:          node.ID,
				Name:        node.Name,
				Input:       nodeInput,
				Output:      out,
				Performance: time.Since(start).String(),
			}
		}
	}

	switch {
	case len(results) > 0:
		eval.Result, err = mergeObjects(results)
	case len(order) > 0:
		eval.Result = outputs[order[len(order)-1].ID]
	default:
		eval.Result = json.RawMessage(`{}`)
	}
	if err != nil {
		return nil, err
	}
	return eval, nil
}

// sort orders nodes topologically, keeping declaration order among nodes
// that are ready together, and returns each node's predecessors in edge
// order.
func (g *Graph) sort() ([]Node, map[string][]string, error) {
	index := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		if n.ID == "" {
			return nil, nil, fmt.Errorf("%w: node without id", decision.ErrInvalidGraph)
		}
		if _, dup := index[n.ID]; dup {
			return nil, nil, fmt.Errorf("%w: duplicate node %s", decision.ErrInvalidGraph, n.ID)
		}
		index[n.ID] = i
	}

	parents := make(map[string][]string)
	children := make(map[string][]string)
	indegree := make([]int, len(g.Nodes))
	for _, edge := range g.Edges {
		_, okSource := index[edge.SourceID]
		target, okTarget := index[edge.TargetID]
		if !okSource || !okTarget {
			return nil, nil, fmt.Errorf("%w: edge %s -> %s references an unknown node", decision.ErrInvalidGraph, edge.SourceID, edge.TargetID)
		}
		parents[edge.TargetID] = append(parents[edge.TargetID], edge.SourceID)
		children[edge.SourceID] = append(children[edge.SourceID], edge.TargetID)
		indegree[target]++
	}

	order := make([]Node, 0, len(g.Nodes))
	done := make([]bool, len(g.Nodes))
	for len(order) < len(g.Nodes) {
		progressed := false
		for i, n := range g.Nodes {
			if done[i] || indegree[i] > 0 {
				continue
			}
			done[i] = true
			progressed = true
			order = append(order, n)
			for _, child := range children[n.ID] {
				indegree[index[child]]--
			}
		}
		if !progressed {
			return nil, nil, fmt.Errorf("%w: graph contains a cycle", decision.ErrInvalidGraph)
		}
	}
	return order, parents, nil
}

func mergeInputs(parentIDs []string, outputs map[string]json.RawMessage) (json.RawMessage, error) {
	switch len(parentIDs) {
	case 0:
		return json.RawMessage(`{}`), nil
	case 1:
		return outputs[parentIDs[0]], nil
	}
	values := make([]json.RawMessage, 0, len(parentIDs))
	for _, id := range parentIDs {
		values = append(values, outputs[id])
	}
	return mergeObjects(values)
}

// mergeObjects shallow-merges JSON objects; later keys win. A single value
// is returned as-is even when it is not an object.
func mergeObjects(values []json.RawMessage) (json.RawMessage, error) {
	if len(values) == 1 {
		return values[0], nil
	}
	merged := make(map[string]json.RawMessage)
	for _, v := range values {
		if len(bytes.TrimSpace(v)) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			continue
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(v, &obj); err != nil {
			return nil, fmt.Errorf("%w: cannot merge non-object values", decision.ErrInvalidGraph)
		}
		for k, val := range obj {
			merged[k] = val
		}
	}
	return json.Marshal(merged)
}

func (e *Engine) expressions(node Node, input json.RawMessage) (json.RawMessage, error) {
	var content expressionContent
	if err := json.Unmarshal(node.Content, &content); err != nil {
		return nil, fmt.Errorf("%w: node %s: %v", decision.ErrInvalidGraph, node.ID, err)
	}

	inputVal, err := toCty(input)
	if err != nil {
		return nil, fmt.Errorf("node %s input: %w", node.ID, err)
	}

	computed := make(map[string]cty.Value, len(content.Expressions))
	out := make(map[string]json.RawMessage, len(content.Expressions))
	for _, expr := range content.Expressions {
		if expr.Key == "" {
			return nil, fmt.Errorf("%w: node %s: expression without key", decision.ErrInvalidGraph, node.ID)
		}
		parsed, diags := hclsyntax.ParseExpression([]byte(expr.Value), node.ID+"."+expr.Key, hcl.Pos{Line: 1, Column: 1, Byte: 0})
		if diags.HasErrors() {
			return nil, fmt.Errorf("%w: %s", decision.ErrInvalidGraph, diags.Error())
		}

		val, diags := parsed.Value(&hcl.EvalContext{
			Variables: map[string]cty.Value{
				"input":  inputVal,
				"output": cty.ObjectVal(computed),
			},
			Functions: e.functions,
		})
		if diags.HasErrors() {
			return nil, fmt.Errorf("evaluating %s.%s: %s", node.ID, expr.Key, diags.Error())
		}

		encoded, err := fromCty(val)
		if err != nil {
			return nil, fmt.Errorf("encoding %s.%s: %w", node.ID, expr.Key, err)
		}
		computed[expr.Key] = val
		out[expr.Key] = encoded
	}
	return json.Marshal(out)
}

func (e *Engine) subDecision(ctx context.Context, node Node, input json.RawMessage, loader decision.Loader, depth int) (json.RawMessage, error) {
	var content decisionContent
	if err := json.Unmarshal(node.Content, &content); err != nil || content.Key == "" {
		return nil, fmt.Errorf("%w: node %s needs a decision key", decision.ErrInvalidGraph, node.ID)
	}
	if loader == nil {
		return nil, &decision.MissingDecisionError{Key: content.Key}
	}

	graph, err := loader(ctx, content.Key)
	if err != nil {
		return nil, err
	}
	sub, err := e.evaluate(ctx, graph, input, loader, false, depth+1)
	if err != nil {
		return nil, fmt.Errorf("decision %s: %w", content.Key, err)
	}
	return sub.Result, nil
}

func toCty(data json.RawMessage) (cty.Value, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return cty.EmptyObjectVal, nil
	}
	ty, err := ctyjson.ImpliedType(data)
	if err != nil {
		return cty.NilVal, err
	}
	return ctyjson.Unmarshal(data, ty)
}

func fromCty(v cty.Value) (json.RawMessage, error) {
	if v.IsNull() {
		return json.RawMessage(`null`), nil
	}
	if !v.IsWhollyKnown() {
		return nil, fmt.Errorf("value is not known")
	}
	return ctyjson.Marshal(v, v.Type())
}
