// Package paging turns page-token list RPCs into iterators.
package paging

import (
	"context"
	"iter"
)

// Fetch loads the page at token and returns its items and the next token.
type Fetch[T any] func(ctx context.Context, token string) ([]T, string, error)

// Iterate walks every page, starting with the empty token and stopping
// on an empty next token. A fetch error is yielded once and ends the
// sequence.
func Iterate[T any](ctx context.Context, fetch Fetch[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		token := ""
		for {
			items, next, err := fetch(ctx, token)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			for _, it := range items {
				if !yield(it, nil) {
					return
				}
			}
			if next == "" || next == token {
				return
			}
			token = next
		}
	}
}

// Collect drains seq into a slice. A positive limit stops after that
// many items.
func Collect[T any](seq iter.Seq2[T, error], limit int) ([]T, error) {
	var out []T
	for it, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, it)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
