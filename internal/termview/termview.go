// Package termview paints a monitored document on a terminal screen:
// the buffer itself plus remote carets and selection highlights in
// each collaborator's color, with a status line listing who is online.
package termview

import (
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"

	"github.com/rkravets/edsync/internal/document"
	"github.com/rkravets/edsync/internal/marker"
	"github.com/rkravets/edsync/internal/presence"
)

// View implements marker.Renderer on a tcell screen. Decorations are
// retained between frames; Render paints whatever is currently applied
// for the document it is given.
type View struct {
	mu     sync.Mutex
	dir    *presence.Directory
	nextID int
	live   map[marker.DecorationID]marker.Decoration
	paths  map[marker.DecorationID]string
	branch string

	styleMain   tcell.Style
	styleStatus tcell.Style
}

func New(dir *presence.Directory) *View {
	return &View{
		dir:         dir,
		live:        make(map[marker.DecorationID]marker.Decoration),
		paths:       make(map[marker.DecorationID]string),
		styleMain:   tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorBlack),
		styleStatus: tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorGray),
	}
}

// SetBranch sets the repository branch shown on the status bar.
func (v *View) SetBranch(branch string) {
	v.mu.Lock()
	v.branch = branch
	v.mu.Unlock()
}

func (v *View) AddDecorations(path string, decs []marker.Decoration) ([]marker.DecorationID, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var ids []marker.DecorationID
	for _, d := range decs {
		v.nextID++
		id := marker.DecorationID(fmt.Sprintf("tv-%d", v.nextID))
		v.live[id] = d
		v.paths[id] = path
		ids = append(ids, id)
	}
	return ids, nil
}

func (v *View) RemoveDecorations(path string, ids []marker.DecorationID) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, id := range ids {
		delete(v.live, id)
		delete(v.paths, id)
	}
	return nil
}

// DecorationsFor returns the currently applied decorations for path,
// selections before carets so carets paint on top.
func (v *View) DecorationsFor(path string) []marker.Decoration {
	v.mu.Lock()
	defer v.mu.Unlock()
	var sels, carets []marker.Decoration
	for id, d := range v.live {
		if v.paths[id] != path {
			continue
		}
		if d.Kind == marker.DecorationSelection {
			sels = append(sels, d)
		} else {
			carets = append(carets, d)
		}
	}
	return append(sels, carets...)
}

// Render paints one frame: the document's lines, the applied
// decorations and the status bar. The bottom row is always the status
// bar, everything above is buffer.
func (v *View) Render(s tcell.Screen, doc *document.Document) {
	s.Clear()
	w, h := s.Size()
	if w == 0 || h == 0 {
		return
	}

	lines := doc.Lines()
	bufH := h - 1
	for y := 0; y < bufH && y < len(lines); y++ {
		drawText(s, 0, y, w, []rune(lines[y]), v.styleMain)
	}

	for _, d := range v.DecorationsFor(doc.Path) {
		switch d.Kind {
		case marker.DecorationSelection:
			v.paintSelection(s, d, lines, w, bufH)
		case marker.DecorationCaret:
			v.paintCaret(s, d, lines, bufH)
		}
	}

	v.paintStatus(s, doc, w, h-1)
	s.Show()
}

func (v *View) paintSelection(s tcell.Screen, d marker.Decoration, lines []string, w, bufH int) {
	bg := tcell.GetColor(d.Color)
	style := tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(bg)
	for row := d.Span.Start.Line; row <= d.Span.End.Line && row < bufH; row++ {
		if row >= len(lines) {
			break
		}
		line := []rune(lines[row])
		from := 0
		if row == d.Span.Start.Line {
			from = d.Span.Start.Col
		}
		to := len(line)
		if row == d.Span.End.Line && d.Span.End.Col < to {
			to = d.Span.End.Col
		}
		for x := from; x < to && x < w; x++ {
			s.SetContent(x, row, line[x], nil, style)
		}
	}
}

func (v *View) paintCaret(s tcell.Screen, d marker.Decoration, lines []string, bufH int) {
	if d.Pos.Line >= bufH {
		return
	}
	bg := tcell.GetColor(d.Color)
	style := tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(bg)
	ch := ' '
	if d.Pos.Line < len(lines) {
		line := []rune(lines[d.Pos.Line])
		if d.Pos.Col < len(line) {
			ch = line[d.Pos.Col]
		}
	}
	s.SetContent(d.Pos.Col, d.Pos.Line, ch, nil, style)
}

func (v *View) paintStatus(s tcell.Screen, doc *document.Document, w, y int) {
	left := doc.Path
	if doc.Modified() {
		left += " [+]"
	}
	for x := 0; x < w; x++ {
		s.SetContent(x, y, ' ', nil, v.styleStatus)
	}
	drawText(s, 0, y, w, []rune(left), v.styleStatus)

	v.mu.Lock()
	branch := v.branch
	v.mu.Unlock()
	if branch != "" {
		runes := []rune(" " + branch)
		if start := w - len(runes); start > len(left) {
			drawText(s, start, y, w, runes, v.styleStatus)
		}
	}

	if v.dir == nil {
		return
	}
	x := len(left) + 2
	for _, p := range v.dir.ListOnline() {
		name := p.DisplayName
		if name == "" {
			name = p.ActorID
		}
		style := tcell.StyleDefault.Foreground(tcell.GetColor(p.Color)).Background(tcell.ColorGray)
		drawText(s, x, y, w, []rune(name), style)
		x += len([]rune(name)) + 1
		if x >= w {
			break
		}
	}
}

func drawText(s tcell.Screen, x, y, w int, text []rune, style tcell.Style) {
	for i, r := range text {
		if x+i >= w {
			return
		}
		s.SetContent(x+i, y, r, nil, style)
	}
}
