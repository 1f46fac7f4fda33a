package bktree

import "github.com/agnivade/levenshtein"

// DistanceFunc computes a metric distance between two sequences.
type DistanceFunc func(a, b string) int

// Distance returns the Levenshtein edit distance between a and b.
func Distance(a, b string) int {
	return levenshtein.ComputeDistance(a, b)
}
