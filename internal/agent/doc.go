// Package agent implements the actor, critic and summarizer capabilities the
// orchestrator drives.
//
// GraphActor persists actor thoughts. LLMCritic and LLMSummarizer delegate
// the reasoning to a langchaingo model; FixedCritic records a verdict
// supplied by the caller, for runs without a model.
package agent
