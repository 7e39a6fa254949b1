package groupchat

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"maa/internal/domain"
)

func history(n int) []domain.Message {
	out := make([]domain.Message, n)
	for i := range out {
		out[i] = domain.Message{Seq: int64(i + 1), Role: domain.AuthorAgent, Author: "Coach", Content: fmt.Sprintf("m%d", i+1)}
	}
	return out
}

func TestTruncationReducer(t *testing.T) {
	tests := []struct {
		name string
		keep int
		n    int
		want []int64
	}{
		{"default keeps last", DefaultHistoryDepth, 3, []int64{3}},
		{"keep two", 2, 3, []int64{2, 3}},
		{"keep more than len", 5, 2, []int64{1, 2}},
		{"zero keeps all", 0, 3, []int64{1, 2, 3}},
		{"negative keeps all", -1, 2, []int64{1, 2}},
		{"empty", 1, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewTruncationReducer(tt.keep).Reduce(history(tt.n))
			var seqs []int64
			for _, m := range got {
				seqs = append(seqs, m.Seq)
			}
			assert.Equal(t, tt.want, seqs)
		})
	}
}

func TestKeepAllReducer(t *testing.T) {
	in := history(4)
	got := KeepAllReducer{}.Reduce(in)
	assert.Equal(t, in, got)

	got[0].Content = "changed"
	assert.Equal(t, "m1", in[0].Content)
}

func TestReducerFor(t *testing.T) {
	assert.Equal(t, KeepAllReducer{}, ReducerFor(0))
	assert.Equal(t, TruncationReducer{Keep: 3}, ReducerFor(3))
}

func TestReducerIdempotentAndPure(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 20).Draw(t, "n")
		keep := rapid.IntRange(-2, 25).Draw(t, "keep")
		in := history(n)
		snapshot := history(n)

		r := ReducerFor(keep)
		if keep < 0 {
			r = NewTruncationReducer(keep)
		}
		first := r.Reduce(in)
		second := r.Reduce(in)

		assert.Equal(t, first, second)
		assert.Equal(t, snapshot, in, "input mutated")
		if keep > 0 && n > keep {
			assert.Len(t, first, keep)
		} else {
			assert.Len(t, first, n)
		}
		if len(first) > 0 {
			first[0].Content = "scribble"
			assert.Equal(t, snapshot, in, "result aliases input")
		}
	})
}
