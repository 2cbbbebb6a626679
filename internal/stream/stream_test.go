package stream

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphgate/internal/transport"
)

// pagedList serves a fixed list of ints page by page.
type pagedList struct {
	size int
	page int
}

func (p *pagedList) Statement() string {
	return fmt.Sprintf("PAGE %d", p.page)
}

func (p *pagedList) Parameters() map[string]any {
	return map[string]any{"page": p.page}
}

func (p *pagedList) PageSize() int { return p.size }

func (p *pagedList) AdvancePage() { p.page++ }

type fakeSource struct {
	rows       []int
	statements []string
	cursors    []*transport.SliceCursor[int]
	failOn     int
}

func (f *fakeSource) open(_ context.Context, statement string, params map[string]any) (transport.Cursor[int], error) {
	f.statements = append(f.statements, statement)
	if f.failOn > 0 && len(f.statements) == f.failOn {
		return nil, errors.New("connection reset")
	}
	page := params["page"].(int)
	size := 3
	lo := min(page*size, len(f.rows))
	hi := min(lo+size, len(f.rows))
	cur := transport.NewSliceCursor(f.rows[lo:hi])
	f.cursors = append(f.cursors, cur)
	return cur, nil
}

func intsTo(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestStream_Pagination(t *testing.T) {
	tests := []struct {
		name    string
		rows    int
		fetches int
	}{
		{"empty", 0, 1},
		{"short first page", 2, 1},
		{"exact multiple needs trailing fetch", 6, 3},
		{"partial last page", 7, 3},
		{"one full page", 3, 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			src := &fakeSource{rows: intsTo(tc.rows)}
			s := New(&pagedList{size: 3}, src.open)

			got, err := s.Collect(ctx)
			require.NoError(t, err)

			if tc.rows == 0 {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, intsTo(tc.rows), got)
			}
			assert.Equal(t, tc.fetches, s.Fetches())
			assert.Len(t, src.statements, tc.fetches)
			for _, c := range src.cursors {
				assert.True(t, c.Closed(), "every page cursor is closed")
			}
		})
	}
}

func TestStream_Lazy(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{rows: intsTo(10)}
	s := New(&pagedList{size: 3}, src.open)

	assert.Zero(t, s.Fetches(), "nothing is fetched before Next")

	require.True(t, s.Next(ctx))
	assert.Equal(t, 0, s.Value())
	assert.Equal(t, 1, s.Fetches())

	for range 3 {
		require.True(t, s.Next(ctx))
	}
	assert.Equal(t, 3, s.Value())
	assert.Equal(t, 2, s.Fetches())
	assert.Equal(t, []string{"PAGE 0", "PAGE 1"}, src.statements)
}

func TestStream_EarlyExitClosesPage(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{rows: intsTo(10)}
	s := New(&pagedList{size: 3}, src.open)

	for v, err := range s.All(ctx) {
		require.NoError(t, err)
		if v == 1 {
			break
		}
	}

	require.Len(t, src.cursors, 1)
	assert.True(t, src.cursors[0].Closed())
	assert.False(t, s.Next(ctx), "closed stream yields nothing")
}

func TestStream_FetchError(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{rows: intsTo(10), failOn: 2}
	s := New(&pagedList{size: 3}, src.open)

	got, err := s.Collect(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, []int{0, 1, 2}, got)
	assert.Equal(t, err, s.Err())
}

func TestStream_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeSource{rows: intsTo(10)}
	s := New(&pagedList{size: 3}, src.open)

	assert.False(t, s.Next(ctx))
	assert.ErrorIs(t, s.Err(), context.Canceled)
	assert.Empty(t, src.statements)
}

func TestStream_Unpaged(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{rows: intsTo(3)}
	s := New(&pagedList{size: 0}, src.open)

	got, err := s.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, got)
	assert.Equal(t, 1, s.Fetches())
}

func TestMap(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{rows: intsTo(4)}

	open := Map(src.open, func(_ context.Context, v int) (string, error) {
		if v == 3 {
			return "", errors.New("bad row")
		}
		return fmt.Sprintf("row-%d", v), nil
	})

	s := New(&pagedList{size: 3}, open)
	got, err := s.Collect(ctx)
	require.Error(t, err)
	assert.Equal(t, "bad row", err.Error())
	assert.Equal(t, []string{"row-0", "row-1", "row-2"}, got)
}
