// Package stream turns a paginable statement into a lazy, forward-only
// sequence of results.
//
// A Stream fetches one page at a time. A page shorter than the page size is
// the last one; a full page triggers exactly one more fetch, and an empty
// page ends the stream. Results are therefore only complete when the caller
// drains the stream or closes it.
package stream

import (
	"context"
	"errors"
	"iter"

	"github.com/roach88/graphgate/internal/transport"
)

// Pageable is a statement that can render successive pages of itself.
type Pageable interface {
	// Statement renders the statement for the current page.
	Statement() string
	// Parameters returns the statement parameters for the current page.
	Parameters() map[string]any
	// PageSize is the number of rows requested per page. A size of zero or
	// less means the statement is unpaged and fetched once.
	PageSize() int
	// AdvancePage moves to the next page. The page index only increases.
	AdvancePage()
}

// OpenFunc executes one page statement and returns its cursor.
type OpenFunc[T any] func(ctx context.Context, statement string, params map[string]any) (transport.Cursor[T], error)

// Stream is a lazy sequence of results over a Pageable.
//
// A Stream is not safe for concurrent use.
type Stream[T any] struct {
	query   Pageable
	open    OpenFunc[T]
	page    transport.Cursor[T]
	rows    int
	cur     T
	err     error
	done    bool
	fetches int
}

// New returns a stream over q. Nothing is fetched until the first Next.
func New[T any](q Pageable, open OpenFunc[T]) *Stream[T] {
	return &Stream[T]{query: q, open: open}
}

// Next advances to the next result, fetching a page if needed.
func (s *Stream[T]) Next(ctx context.Context) bool {
	if s.done {
		return false
	}

	for {
		if s.page != nil {
			if s.page.Next(ctx) {
				s.cur = s.page.Record()
				s.rows++
				return true
			}

			err := s.page.Err()
			closeErr := s.page.Close(ctx)
			s.page = nil
			if err = errors.Join(err, closeErr); err != nil {
				s.fail(err)
				return false
			}
			if size := s.query.PageSize(); size <= 0 || s.rows < size {
				s.done = true
				return false
			}
			s.query.AdvancePage()
		}

		if err := ctx.Err(); err != nil {
			s.fail(err)
			return false
		}
		page, err := s.open(ctx, s.query.Statement(), s.query.Parameters())
		if err != nil {
			s.fail(err)
			return false
		}
		s.fetches++
		s.page = page
		s.rows = 0
	}
}

// Value returns the current result.
func (s *Stream[T]) Value() T {
	return s.cur
}

// Err returns the error that ended the stream, if any.
func (s *Stream[T]) Err() error {
	return s.err
}

// Fetches returns the number of page statements executed so far.
func (s *Stream[T]) Fetches() int {
	return s.fetches
}

// Close releases the open page, if any. Further calls to Next return false.
func (s *Stream[T]) Close(ctx context.Context) error {
	s.done = true
	if s.page == nil {
		return nil
	}
	err := s.page.Close(ctx)
	s.page = nil
	return err
}

// All returns an iterator over the remaining results. The stream is closed
// when iteration ends, including early exit; a terminal error is yielded
// once with the zero value.
func (s *Stream[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer s.Close(ctx)
		for s.Next(ctx) {
			if !yield(s.cur, nil) {
				return
			}
		}
		if s.err != nil {
			var zero T
			yield(zero, s.err)
		}
	}
}

// Collect drains the stream into a slice and closes it.
func (s *Stream[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	for v, err := range s.All(ctx) {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Stream[T]) fail(err error) {
	s.err = err
	s.done = true
	if s.page != nil {
		_ = s.page.Close(context.Background())
		s.page = nil
	}
}

// Map adapts an OpenFunc producing rows of type R into one producing T.
// An error from fn stops the page with that error.
func Map[R, T any](open OpenFunc[R], fn func(ctx context.Context, row R) (T, error)) OpenFunc[T] {
	return func(ctx context.Context, statement string, params map[string]any) (transport.Cursor[T], error) {
		cur, err := open(ctx, statement, params)
		if err != nil {
			return nil, err
		}
		return &mapCursor[R, T]{src: cur, fn: fn}, nil
	}
}

type mapCursor[R, T any] struct {
	src transport.Cursor[R]
	fn  func(context.Context, R) (T, error)
	cur T
	err error
}

func (c *mapCursor[R, T]) Next(ctx context.Context) bool {
	if c.err != nil || !c.src.Next(ctx) {
		return false
	}
	v, err := c.fn(ctx, c.src.Record())
	if err != nil {
		c.err = err
		return false
	}
	c.cur = v
	return true
}

func (c *mapCursor[R, T]) Record() T { return c.cur }

func (c *mapCursor[R, T]) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.src.Err()
}

func (c *mapCursor[R, T]) Close(ctx context.Context) error { return c.src.Close(ctx) }
