// Package orchestrator sequences one actor/critic step.
//
// # Overview
//
// Every step runs the same cycle:
//
//	ActorPending → CriticPending → SummarizationCheck → ActorPending
//
// No state is reachable without its predecessor completing. An actor step is
// unsettled until reviewed, so ActorThink persists the actor node and then
// reviews it before returning; its result is the critic node.
//
// # Key Components
//
// ## ActorCritic
//
// ActorCritic owns the cycle. It delegates node creation to an Actor, review
// to a Critic and, after every review, asks the summarization trigger
// whether the project's un-summarized tail is due.
//
// ## Transitions
//
// OnTransition registers a callback that observes every state change,
// including the reset to ActorPending after a failed step.
//
// # Usage
//
//	ac, err := orchestrator.New(actor, critic, segmenter, orchestrator.Options{
//	    SummarizationEnabled: true,
//	    Logger:               logger,
//	})
//	critic, err := ac.ActorThink(ctx, orchestrator.ThinkInput{
//	    Thought:        "Add retry to the uploader",
//	    ProjectContext: "/work/uploader",
//	    Tags:           []string{"feature"},
//	})
//
// Iterating on a needs_revision or reject verdict is left to the caller.
package orchestrator
