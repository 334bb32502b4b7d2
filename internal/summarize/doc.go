// Package summarize condenses the un-summarized tail of a project's graph
// into summary nodes.
//
// Segmentation looks back over the Threshold most recent nodes and anchors
// on the most recent summary among them. When at least Threshold nodes
// follow that anchor (or no summary is in the window), those nodes become
// the next segment. Anchoring on the previous summary keeps segments
// disjoint under sequential use.
package summarize
