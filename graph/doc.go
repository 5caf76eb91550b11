// Package graph is a small execution engine for stateful workflows.
//
// A StateGraph is a set of named nodes that each transform a typed state,
// joined by static or conditional edges. Compile checks the wiring, and the
// resulting StateRunnable walks the graph from its entry point until a node
// routes to END. Node failures can be retried with a RetryPolicy, and a panic
// inside a node is returned as an error instead of crashing the caller.
//
//	type State struct{ Count int }
//
//	g := graph.NewStateGraph[State]()
//	g.AddNode("inc", "increment the counter", func(ctx context.Context, s State) (State, error) {
//		s.Count++
//		return s, nil
//	})
//	g.AddConditionalEdge("inc", func(ctx context.Context, s State) string {
//		if s.Count < 3 {
//			return "inc"
//		}
//		return graph.END
//	})
//	g.SetEntryPoint("inc")
//
//	app, err := g.Compile()
//	if err != nil {
//		return err
//	}
//	final, err := app.Invoke(ctx, State{})
package graph
