package app

import (
	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
)

const maxInputRunes = 4096

// PopupInput shows a modal input box with prompt and initial text.
// It returns the entered text and true on Enter, or "" and false on Esc.
func (a *App) PopupInput(s tcell.Screen, prompt, initial string) (string, bool) {
	style := tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorReset)

	buf := []rune(initial)
	pos := len(buf)
	promptW := runewidth.StringWidth(prompt)

	var left, top, boxW int
	const boxH = 3
	layout := func() {
		w, h := s.Size()
		contentW := max(40, promptW+runewidth.StringWidth(initial)+2)
		contentW = min(contentW, w-4)
		boxW = contentW + 4
		left = (w - boxW) / 2
		top = (h - boxH) / 2
	}

	drawBox := func() {
		for y := top; y < top+boxH; y++ {
			for x := left; x < left+boxW; x++ {
				s.SetContent(x, y, ' ', nil, style)
			}
		}
		for x := left; x < left+boxW; x++ {
			s.SetContent(x, top, tcell.RuneHLine, nil, style)
			s.SetContent(x, top+boxH-1, tcell.RuneHLine, nil, style)
		}
		for y := top; y < top+boxH; y++ {
			s.SetContent(left, y, tcell.RuneVLine, nil, style)
			s.SetContent(left+boxW-1, y, tcell.RuneVLine, nil, style)
		}
		s.SetContent(left, top, tcell.RuneULCorner, nil, style)
		s.SetContent(left+boxW-1, top, tcell.RuneURCorner, nil, style)
		s.SetContent(left, top+boxH-1, tcell.RuneLLCorner, nil, style)
		s.SetContent(left+boxW-1, top+boxH-1, tcell.RuneLRCorner, nil, style)

		y := top + 1
		x := left + 2
		printTextFixedWidth(s, x, y, prompt, style, promptW)
		x += promptW + 1

		// scroll so the cursor stays inside the field
		maxField := boxW - 5 - promptW
		start := 0
		for runewidth.StringWidth(string(buf[start:pos])) >= maxField && start < pos {
			start++
		}
		printTextFixedWidth(s, x, y, string(buf[start:]), style, maxField)
		s.ShowCursor(x+runewidth.StringWidth(string(buf[start:pos])), y)
	}

	redraw := func() {
		a.Draw(s)
		drawBox()
		s.Show()
	}

	layout()
	redraw()

	for {
		switch ev := s.PollEvent().(type) {
		case nil:
			return "", false
		case *tcell.EventKey:
			switch ev.Key() {
			case tcell.KeyEsc:
				s.HideCursor()
				a.Draw(s)
				s.Show()
				return "", false
			case tcell.KeyEnter:
				s.HideCursor()
				a.Draw(s)
				s.Show()
				return string(buf), true
			case tcell.KeyBackspace, tcell.KeyBackspace2:
				if pos > 0 {
					buf = append(buf[:pos-1], buf[pos:]...)
					pos--
				}
			case tcell.KeyDelete:
				if pos < len(buf) {
					buf = append(buf[:pos], buf[pos+1:]...)
				}
			case tcell.KeyCtrlU:
				buf = buf[:0]
				pos = 0
			case tcell.KeyLeft:
				if pos > 0 {
					pos--
				}
			case tcell.KeyRight:
				if pos < len(buf) {
					pos++
				}
			case tcell.KeyHome, tcell.KeyCtrlA:
				pos = 0
			case tcell.KeyEnd, tcell.KeyCtrlE:
				pos = len(buf)
			case tcell.KeyRune:
				if len(buf) < maxInputRunes {
					buf = append(buf[:pos], append([]rune{ev.Rune()}, buf[pos:]...)...)
					pos++
				}
			}
			redraw()
		case *tcell.EventResize:
			s.Sync()
			layout()
			redraw()
		}
	}
}
