// Package orchestrator runs a request through the team.
//
// The package provides:
//   - Loop: the delegation and evaluation state machine of one task
//   - Orchestrator: decomposition, concurrent subtask loops and aggregation
//   - Events: a stream of task transitions and messages for subscribers
//
// Example usage:
//
//	team, _ := agent.Build(gen, nil, agent.Settings{Timeout: time.Minute})
//	orch, _ := orchestrator.New(team, orchestrator.DefaultConfig())
//	result, err := orch.Solve(ctx, "Build a todo app with a REST API")
package orchestrator
