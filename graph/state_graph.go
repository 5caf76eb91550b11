package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/smallnest/pdfqa/log"
)

// StateGraph represents a generic state-based graph with compile-time type safety.
// The type parameter S represents the state type, which is typically a struct.
type StateGraph[S any] struct {
	// nodes is a map of node names to their corresponding Node objects
	nodes map[string]Node[S]

	// edges is a slice of Edge objects representing the connections between nodes
	edges []Edge

	// conditionalEdges maps a "From" node to the function choosing the "To" node
	conditionalEdges map[string]func(ctx context.Context, state S) string

	// entryPoint is the name of the entry point node in the graph
	entryPoint string

	// retryPolicy defines retry behavior for failed nodes
	retryPolicy *RetryPolicy

	maxSteps int
}

// Node is a named state transformation.
type Node[S any] struct {
	Name        string
	Description string
	Function    func(ctx context.Context, state S) (S, error)
}

// NewStateGraph creates a new instance of StateGraph with type safety.
func NewStateGraph[S any]() *StateGraph[S] {
	return &StateGraph[S]{
		nodes:            make(map[string]Node[S]),
		conditionalEdges: make(map[string]func(ctx context.Context, state S) string),
		maxSteps:         DefaultMaxSteps,
	}
}

// AddNode adds a new node to the state graph with the given name, description and function.
func (g *StateGraph[S]) AddNode(name string, description string, fn func(ctx context.Context, state S) (S, error)) {
	g.nodes[name] = Node[S]{
		Name:        name,
		Description: description,
		Function:    fn,
	}
}

// AddEdge adds a new edge to the state graph between the "from" and "to" nodes.
func (g *StateGraph[S]) AddEdge(from, to string) {
	g.edges = append(g.edges, Edge{
		From: from,
		To:   to,
	})
}

// AddConditionalEdge adds a conditional edge where the target node is determined at runtime.
// It takes precedence over static edges from the same node.
func (g *StateGraph[S]) AddConditionalEdge(from string, condition func(ctx context.Context, state S) string) {
	g.conditionalEdges[from] = condition
}

// SetEntryPoint sets the entry point node name for the state graph.
func (g *StateGraph[S]) SetEntryPoint(name string) {
	g.entryPoint = name
}

// SetRetryPolicy sets the retry policy applied to every node.
func (g *StateGraph[S]) SetRetryPolicy(policy *RetryPolicy) {
	g.retryPolicy = policy
}

// SetMaxSteps bounds node executions per run; n <= 0 restores DefaultMaxSteps.
func (g *StateGraph[S]) SetMaxSteps(n int) {
	if n <= 0 {
		n = DefaultMaxSteps
	}
	g.maxSteps = n
}

// Nodes returns the node names sorted alphabetically.
func (g *StateGraph[S]) Nodes() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StateRunnable represents a compiled state graph that can be invoked with type safety.
type StateRunnable[S any] struct {
	graph *StateGraph[S]
	next  map[string]string
}

// Compile validates the graph and returns a StateRunnable instance.
func (g *StateGraph[S]) Compile() (*StateRunnable[S], error) {
	if g.entryPoint == "" {
		return nil, ErrEntryPointNotSet
	}
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return nil, fmt.Errorf("%w: entry point %s", ErrNodeNotFound, g.entryPoint)
	}

	next := make(map[string]string, len(g.edges))
	for _, e := range g.edges {
		if _, ok := g.nodes[e.From]; !ok {
			return nil, fmt.Errorf("%w: edge from %s", ErrNodeNotFound, e.From)
		}
		if _, ok := g.nodes[e.To]; !ok && e.To != END {
			return nil, fmt.Errorf("%w: edge to %s", ErrNodeNotFound, e.To)
		}
		if prev, dup := next[e.From]; dup && prev != e.To {
			return nil, fmt.Errorf("node %s has more than one outgoing edge", e.From)
		}
		next[e.From] = e.To
	}
	for from := range g.conditionalEdges {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("%w: conditional edge from %s", ErrNodeNotFound, from)
		}
	}

	return &StateRunnable[S]{graph: g, next: next}, nil
}

// Invoke executes the compiled state graph with the given input state and
// returns the state produced by the last node.
func (r *StateRunnable[S]) Invoke(ctx context.Context, initialState S) (S, error) {
	state := initialState
	current := r.graph.entryPoint

	for step := 0; current != END; step++ {
		if step >= r.graph.maxSteps {
			return state, fmt.Errorf("%w: %d", ErrMaxStepsExceeded, r.graph.maxSteps)
		}
		if err := ctx.Err(); err != nil {
			return state, err
		}

		node, ok := r.graph.nodes[current]
		if !ok {
			return state, fmt.Errorf("%w: %s", ErrNodeNotFound, current)
		}

		start := time.Now()
		log.Debug("node %s started", node.Name)
		result, err := r.executeNodeWithRetry(ctx, node, state)
		if err != nil {
			log.Debug("node %s failed after %v: %v", node.Name, time.Since(start), err)
			return state, fmt.Errorf("error in node %s: %w", node.Name, err)
		}
		log.Debug("node %s finished in %v", node.Name, time.Since(start))
		state = result

		current, err = r.nextNode(ctx, node.Name, state)
		if err != nil {
			return state, err
		}
	}

	return state, nil
}

func (r *StateRunnable[S]) nextNode(ctx context.Context, from string, state S) (string, error) {
	if cond, ok := r.graph.conditionalEdges[from]; ok {
		to := cond(ctx, state)
		if to == "" {
			return "", fmt.Errorf("conditional edge returned empty next node from %s", from)
		}
		return to, nil
	}
	if to, ok := r.next[from]; ok {
		return to, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNoOutgoingEdge, from)
}

// executeNodeWithRetry executes a node with retry logic based on the retry policy.
func (r *StateRunnable[S]) executeNodeWithRetry(ctx context.Context, node Node[S], state S) (S, error) {
	policy := r.graph.retryPolicy
	attempts := 1
	if policy != nil && policy.MaxRetries > 0 {
		attempts += policy.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := runNode(ctx, node, state)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == attempts-1 || !policy.Retryable(err) || errors.Is(err, context.Canceled) {
			break
		}

		delay := policy.Delay(attempt)
		log.Warn("node %s failed (attempt %d/%d), retrying in %v: %v", node.Name, attempt+1, attempts, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return state, ctx.Err()
		}
	}

	return state, lastErr
}

// runNode turns a panic inside the node function into an error.
func runNode[S any](ctx context.Context, node Node[S], state S) (result S, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in node %s: %v", node.Name, p)
		}
	}()
	return node.Function(ctx, state)
}
