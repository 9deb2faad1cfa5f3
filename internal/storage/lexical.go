package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/hybridrag/pkg/types"
)

// BuildMatchExpression builds a disjunctive FTS5 expression matching ANY term.
// Each term is quoted as a phrase so FTS5 operators and punctuation inside
// the term are taken literally. Blank terms are skipped; an empty string is
// returned when no term survives.
func BuildMatchExpression(terms []string) string {
	phrases := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		phrases = append(phrases, `"`+strings.ReplaceAll(term, `"`, `""`)+`"`)
	}
	return strings.Join(phrases, " OR ")
}

// lexicalCandidates runs the BM25 prefilter. bm25() is lower-is-better, so
// ascending order yields the best match first; rowid breaks ties.
func lexicalCandidates(ctx context.Context, q querier, terms []string, limit int) LexicalResult {
	if limit <= 0 {
		return LexicalResult{Status: LexicalEmpty}
	}

	expr := BuildMatchExpression(terms)
	if expr == "" {
		return LexicalResult{Status: LexicalEmpty}
	}

	query := `
		SELECT rowid
		FROM chunks_fts
		WHERE chunks_fts MATCH ?
		ORDER BY bm25(chunks_fts) ASC, rowid ASC
		LIMIT ?
	`
	rows, err := q.QueryContext(ctx, query, expr, limit)
	if err != nil {
		return lexicalUnavailable(err)
	}
	defer func() { _ = rows.Close() }()

	ids := make([]int64, 0, limit)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return lexicalUnavailable(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return lexicalUnavailable(err)
	}

	return LexicalResult{IDs: ids, Status: LexicalOK}
}

func lexicalUnavailable(err error) LexicalResult {
	return LexicalResult{
		Status: LexicalUnavailable,
		Err:    fmt.Errorf("%w: %v", types.ErrLexicalUnavailable, err),
	}
}
