package app

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
)

// row is one screen line: a form field or a heading.
type row struct {
	field   int    // index into a.fields, -1 for headings
	heading string // section title
	columns string // block whose item columns are labelled on this line
}

func (a *App) rows() []row {
	var out []row
	for i, f := range a.fields {
		switch {
		case f.kind == fieldScalar && a.fields[i-1].kind != fieldScalar:
			out = append(out, row{field: -1}, row{field: -1, heading: "Variables"})
		case f.kind == fieldTemplate:
			t := a.Tables[f.name]
			heading := fmt.Sprintf("Sum block %s  (%d/%d values)", f.name, t.Filled(), t.Rows*len(t.Columns))
			out = append(out, row{field: -1}, row{field: -1, heading: heading})
		case f.kind == fieldItem && f.row == 0:
			out = append(out, row{field: -1, columns: f.name})
		}
		out = append(out, row{field: i})
	}
	return out
}

func (a *App) labelWidth() int {
	w := runewidth.StringWidth("Formula")
	for _, name := range a.scalars {
		w = max(w, runewidth.StringWidth(name))
	}
	for _, b := range a.Def.SumBlocks {
		w = max(w, runewidth.StringWidth(b.Name)+2)
	}
	return w + 2
}

func (a *App) Draw(s tcell.Screen) {
	s.Clear()
	w, h := s.Size()

	titleStyle := tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	printTextFixedWidth(s, 0, 0, " GHG formula calculator   ? help   : command", titleStyle, w)

	labelStyle := tcell.StyleDefault.Foreground(tcell.ColorYellow)
	dimStyle := tcell.StyleDefault.Foreground(tcell.ColorGray)
	selStyle := tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorLightGray)
	labelW := a.labelWidth()

	rows := a.rows()
	y := 1
	for ri := a.View; ri < len(rows) && y < h-a.StatusLines; ri++ {
		rw := rows[ri]
		switch {
		case rw.heading != "":
			printTextFixedWidth(s, 0, y, rw.heading, titleStyle, w)
		case rw.columns != "":
			x := labelW + 1
			for _, col := range a.Tables[rw.columns].Columns {
				innerW := a.DefaultWidth - 2*a.CellPadding
				printTextFixedWidth(s, x+a.CellPadding, y, col, labelStyle, innerW)
				x += a.DefaultWidth
			}
		case rw.field >= 0:
			a.drawField(s, y, rw.field, labelW, w, labelStyle, dimStyle, selStyle)
		}
		y++
	}

	// Status area
	statusY := max(h-a.StatusLines, 0)
	statusStyle := tcell.StyleDefault.Background(tcell.ColorGray).Foreground(tcell.ColorWhite)
	statusLeft := fmt.Sprintf("Mode:%s  Formula:%s  Field:%d/%d  Library:%s",
		a.Mode, a.Def.Name, a.Cur+1, len(a.fields), a.libraryPath())
	printTextFixedWidth(s, 0, statusY, statusLeft, statusStyle, w)

	msgStyle := tcell.StyleDefault.Foreground(tcell.ColorGreen)
	if a.StatusErr {
		msgStyle = tcell.StyleDefault.Foreground(tcell.ColorRed)
	}
	printTextFixedWidth(s, 0, statusY+1, a.Status, msgStyle, w)

	if a.Overlay != "" {
		drawPopup(s, a.Overlay)
	}

	s.HideCursor()
	s.Show()
}

func (a *App) libraryPath() string {
	if a.Lib == nil {
		return "-"
	}
	return a.Lib.Path()
}

func (a *App) drawField(s tcell.Screen, y, idx, labelW, w int, labelStyle, dimStyle, selStyle tcell.Style) {
	f := a.fields[idx]
	selected := idx == a.Cur
	if f.kind == fieldItem {
		t := a.Tables[f.name]
		gutterStyle := labelStyle
		if selected {
			gutterStyle = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorYellow)
		}
		printTextFixedWidth(s, 0, y, fmt.Sprintf("%*d", labelW-1, f.row+1), gutterStyle, labelW)
		x := labelW + 1
		for c := range t.Columns {
			style := tcell.StyleDefault
			if selected && c == a.CurCol {
				style = selStyle
			}
			text := t.Get(f.row, c)
			if text == "" {
				text = "·"
				if style == tcell.StyleDefault {
					style = dimStyle
				}
			}
			printTextFixedWidth(s, x, y, "", style, a.DefaultWidth)
			printTextFixedWidth(s, x+a.CellPadding, y, text, style, a.DefaultWidth-2*a.CellPadding)
			x += a.DefaultWidth
			if x >= w {
				break
			}
		}
		return
	}

	label, text := a.fieldText(f)
	valueStyle := tcell.StyleDefault
	switch f.kind {
	case fieldTemplate:
		label = f.name
		text = "Σ " + text
	case fieldCount:
		label = "  items"
	case fieldFormula:
		if text == "" {
			text = "press = to enter a formula"
			valueStyle = dimStyle
		}
	case fieldScalar:
		if text == "" {
			text = "·"
			valueStyle = dimStyle
		}
	}
	if selected {
		valueStyle = selStyle
	}
	printTextFixedWidth(s, 0, y, label, labelStyle, labelW)
	printTextFixedWidth(s, labelW, y, " "+text, valueStyle, max(w-labelW, 0))
}

// EnsureCursorVisible scrolls the view so the focused field is on screen.
func (a *App) EnsureCursorVisible(s tcell.Screen) {
	_, h := s.Size()
	usable := max(h-a.StatusLines-1, 1)
	rows := a.rows()
	idx := 0
	for i, rw := range rows {
		if rw.field == a.Cur {
			idx = i
			break
		}
	}
	top := idx
	// keep the heading of the section in view
	for top > 0 && rows[top-1].field < 0 && idx-top < usable-1 {
		top--
	}
	if top < a.View {
		a.View = top
	}
	if idx >= a.View+usable {
		a.View = idx - usable + 1
	}
	a.View = max(0, min(a.View, len(rows)-1))
}

// Run draws the form and handles events until the user quits.
func (a *App) Run(s tcell.Screen) {
	for !a.Quit {
		a.EnsureCursorVisible(s)
		a.Draw(s)

		switch ev := s.PollEvent().(type) {
		case nil:
			return
		case *tcell.EventResize:
			s.Sync()
		case *tcell.EventKey:
			a.HandleKeyEvent(s, ev)
		}
	}
}

// ----------------------------- Helpers -----------------------------

// printTextFixedWidth prints str into width terminal columns, padding with
// spaces and cutting anything that does not fit.
func printTextFixedWidth(s tcell.Screen, x, y int, str string, style tcell.Style, width int) {
	col := 0
	for _, ch := range str {
		rw := runewidth.RuneWidth(ch)
		if rw == 0 {
			continue
		}
		if col+rw > width {
			break
		}
		if x+col >= 0 && y >= 0 {
			s.SetContent(x+col, y, ch, nil, style)
		}
		col += rw
	}
	for ; col < width; col++ {
		if x+col >= 0 && y >= 0 {
			s.SetContent(x+col, y, ' ', nil, style)
		}
	}
}

func drawPopup(s tcell.Screen, text string) {
	w, h := s.Size()
	if w < 10 || h < 5 {
		return
	}

	padding := 2
	maxPW := w - 6
	maxPH := h - 4

	innerW := min(maxPW-padding*2, 60)
	if innerW < 30 {
		innerW = max(30, maxPW-padding*2)
	}
	innerW = min(innerW, maxPW-padding*2)

	lines := wrapText(text, innerW)
	if len(lines) > maxPH-padding*2 {
		lines = lines[:max(maxPH-padding*2, 0)]
	}

	innerH := max(len(lines), 3)
	pw := innerW + padding*2
	ph := innerH + padding*2
	left := (w - pw) / 2
	top := (h - ph) / 2

	borderStyle := tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorDefault)
	bgStyle := tcell.StyleDefault.Background(tcell.ColorDefault).Foreground(tcell.ColorWhite)

	for yy := 0; yy < ph; yy++ {
		for xx := 0; xx < pw; xx++ {
			s.SetContent(left+xx, top+yy, ' ', nil, bgStyle)
		}
	}

	s.SetContent(left, top, '┌', nil, borderStyle)
	s.SetContent(left+pw-1, top, '┐', nil, borderStyle)
	s.SetContent(left, top+ph-1, '└', nil, borderStyle)
	s.SetContent(left+pw-1, top+ph-1, '┘', nil, borderStyle)
	for xx := 1; xx < pw-1; xx++ {
		s.SetContent(left+xx, top, '─', nil, borderStyle)
		s.SetContent(left+xx, top+ph-1, '─', nil, borderStyle)
	}
	for yy := 1; yy < ph-1; yy++ {
		s.SetContent(left, top+yy, '│', nil, borderStyle)
		s.SetContent(left+pw-1, top+yy, '│', nil, borderStyle)
	}

	for i, ln := range lines {
		printTextFixedWidth(s, left+padding, top+padding+i, ln, bgStyle, innerW)
	}
}

// wrapText breaks s into lines of at most width columns. Each input line
// starts a new output line and keeps its leading indent.
func wrapText(s string, width int) []string {
	if width <= 2 {
		return []string{s}
	}

	var result []string
	for _, para := range strings.Split(s, "\n") {
		indent := para[:len(para)-len(strings.TrimLeft(para, " "))]
		words := strings.Fields(para)
		if len(words) == 0 {
			result = append(result, "")
			continue
		}

		cur := indent
		for _, word := range words {
			if runewidth.StringWidth(word) > width-len(indent) {
				for _, c := range chunkString(word, width-len(indent)) {
					if strings.TrimSpace(cur) != "" {
						result = append(result, cur)
					}
					cur = indent + c
				}
				continue
			}
			switch {
			case strings.TrimSpace(cur) == "":
				cur = indent + word
			case runewidth.StringWidth(cur)+1+runewidth.StringWidth(word) <= width:
				cur += " " + word
			default:
				result = append(result, cur)
				cur = indent + word
			}
		}
		result = append(result, cur)
	}
	return result
}

func chunkString(s string, size int) []string {
	size = max(size, 1)
	var out []string
	var cur strings.Builder
	curW := 0
	for _, r := range s {
		rw := runewidth.RuneWidth(r)
		if curW+rw > size && curW > 0 {
			out = append(out, cur.String())
			cur.Reset()
			curW = 0
		}
		cur.WriteRune(r)
		curW += rw
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
