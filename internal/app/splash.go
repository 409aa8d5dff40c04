package app

import (
	"time"

	"github.com/gdamore/tcell/v2"
)

// SplashScreen reveals the title letter by letter and waits for a key.
func SplashScreen(s tcell.Screen) {
	text := []struct {
		char  rune
		color tcell.Color
	}{
		{'G', tcell.ColorGreen},
		{'H', tcell.ColorGreen},
		{'G', tcell.ColorGreen},
		{' ', tcell.ColorReset},
		{'C', tcell.ColorWhite},
		{'A', tcell.ColorWhite},
		{'L', tcell.ColorYellow},
		{'C', tcell.ColorYellow},
	}
	hints := []string{
		"Custom greenhouse gas formulas",
		"Press any key to start",
	}

	width, height := s.Size()

	for reveal := 1; reveal <= len(text); reveal++ {
		s.Clear()

		startX := (width - len(text)) / 2
		y := height / 2

		for i := 0; i < reveal; i++ {
			style := tcell.StyleDefault.Foreground(text[i].color).Bold(true)
			s.SetContent(startX+i, y, text[i].char, nil, style)
		}

		style := tcell.StyleDefault.Foreground(tcell.ColorYellow)
		for n, hint := range hints {
			printTextFixedWidth(s, (width-len(hint))/2, y+2+n, hint, style, len(hint))
		}

		s.Show()
		time.Sleep(120 * time.Millisecond)
	}

	for {
		switch s.PollEvent().(type) {
		case nil, *tcell.EventKey:
			return
		case *tcell.EventResize:
			s.Sync()
		}
	}
}
