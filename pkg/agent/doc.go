// Package agent defines the deliberation roles, the per-round Task handed to an
// agent, and the Decision an agent returns.
//
// Invariants:
// - Decision is a closed set: Opinion, Message, Vote, Wait and Search.
// - A Decider honours the context deadline derived from Task.Timeout.
// - LLMDecider only returns decisions that passed schema validation.
//
// Usage:
//
//	provider, _ := agent.NewProvider("anthropic", apiKey)
//	decider := agent.NewLLMDecider(agent.LLMDeciderConfig{Provider: provider, Model: "claude-sonnet-4"})
//	decision, err := decider.Decide(ctx, task)
package agent
