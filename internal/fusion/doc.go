// Package fusion merges vector similarity and keyword evidence into one
// ranking.
//
// Each candidate is scored as
//
//	score = (1 - d*d/2) + weight * matches
//
// where d is the L2 distance reported by the vector index and matches is the
// number of bonus keywords found in the passage text. Results are sorted by
// descending score with a stable sort, so ties keep the order in which the
// vector index returned them.
package fusion
