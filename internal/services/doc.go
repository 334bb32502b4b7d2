// Package services wires the codeloops stores and agents together.
//
// NewRegistry opens the knowledge graph and memory stores under the
// configured data directory, builds the language model when one is
// configured, and hands out actor-critic orchestrators on demand.
package services
