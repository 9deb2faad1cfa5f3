// Package expander widens a free-text query with a fixed synonym list before
// it reaches the FTS5 prefilter.
//
// The expansion is a pure function of the query and the configured list:
//
//	exp := expander.New(nil) // DefaultSynonyms
//	terms := exp.Expand("illegal detention")
//	// ["illegal detention", "حبسِ جسم", "ہیبیس کارپس", ...]
//
// Only the lexical stage sees the expanded terms. The query embedding is
// always computed from the original text.
package expander
