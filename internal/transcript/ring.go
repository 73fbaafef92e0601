package transcript

import "strings"

// lineRing keeps the last n complete lines of a text stream plus the
// unterminated remainder.
type lineRing struct {
	lines   []string
	next    int
	full    bool
	partial string
}

func newLineRing(n int) *lineRing {
	return &lineRing{lines: make([]string, max(n, 1))}
}

func (r *lineRing) feed(text string) {
	text = r.partial + text

	for {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			break
		}

		r.lines[r.next] = text[:i]
		r.next++

		if r.next == len(r.lines) {
			r.next, r.full = 0, true
		}

		text = text[i+1:]
	}

	r.partial = text
}

// snapshot returns the kept lines oldest first, ending with the partial
// line when there is one. The partial line counts against the limit.
func (r *lineRing) snapshot() []string {
	var out []string
	if r.full {
		out = append(out, r.lines[r.next:]...)
	}

	out = append(out, r.lines[:r.next]...)

	if r.partial != "" {
		out = append(out, r.partial)
		if len(out) > len(r.lines) {
			out = out[1:]
		}
	}

	return out
}
