package transcript

import (
	"slices"
	"testing"
)

func TestLineRing(t *testing.T) {
	tests := []struct {
		name   string
		size   int
		chunks []string
		want   []string
	}{
		{name: "empty", size: 3, want: nil},
		{name: "partial only", size: 3, chunks: []string{"$ "}, want: []string{"$ "}},
		{name: "split across chunks", size: 3, chunks: []string{"he", "llo\nwor", "ld\n"}, want: []string{"hello", "world"}},
		{name: "wraps", size: 2, chunks: []string{"1\n2\n3\n4\n"}, want: []string{"3", "4"}},
		{name: "partial counts against limit", size: 2, chunks: []string{"1\n2\n3"}, want: []string{"2", "3"}},
		{name: "blank lines kept", size: 3, chunks: []string{"a\n\nb\n"}, want: []string{"a", "", "b"}},
		{name: "zero size keeps one", size: 0, chunks: []string{"a\nb\n"}, want: []string{"b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newLineRing(tt.size)
			for _, c := range tt.chunks {
				r.feed(c)
			}

			if got := r.snapshot(); !slices.Equal(got, tt.want) {
				t.Errorf("snapshot() = %#v, want %#v", got, tt.want)
			}
		})
	}
}
