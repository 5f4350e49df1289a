// Package position maps line/column offsets onto document content.
// Everything here is pure: remote positions are advisory and get
// clamped to the local buffer, they never fail validation.
package position

import "strings"

// Position is a zero-based line/column offset into a document.
type Position struct {
	Line int
	Col  int
}

// Span is a range between two positions. Start and End may arrive in
// either order; Normalize puts Start first.
type Span struct {
	Start Position
	End   Position
}

// Before reports whether p comes strictly before q in document order.
func (p Position) Before(q Position) bool {
	if p.Line != q.Line {
		return p.Line < q.Line
	}
	return p.Col < q.Col
}

// SplitLines is the canonical content-to-lines view. Empty content is
// a single empty line, matching what an editor buffer shows.
func SplitLines(content string) []string {
	return strings.Split(content, "\n")
}

// Clamp returns the nearest valid position for p in lines. Line is
// clamped into [0, len(lines)-1], column into [0, len(line)] measured
// in runes so a caret may sit one past the last character.
func Clamp(p Position, lines []string) Position {
	if len(lines) == 0 {
		return Position{}
	}
	if p.Line < 0 {
		p.Line = 0
	}
	if p.Line >= len(lines) {
		p.Line = len(lines) - 1
	}
	max := len([]rune(lines[p.Line]))
	if p.Col < 0 {
		p.Col = 0
	}
	if p.Col > max {
		p.Col = max
	}
	return p
}

// ClampSpan clamps both ends of s and normalizes their order.
func ClampSpan(s Span, lines []string) Span {
	s.Start = Clamp(s.Start, lines)
	s.End = Clamp(s.End, lines)
	return s.Normalize()
}

// Normalize swaps Start and End if they arrived reversed.
func (s Span) Normalize() Span {
	if s.End.Before(s.Start) {
		s.Start, s.End = s.End, s.Start
	}
	return s
}

// IsEmpty reports whether the span covers no characters.
func (s Span) IsEmpty() bool {
	return s.Start == s.End
}
