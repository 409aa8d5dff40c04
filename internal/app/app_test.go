package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ghgcalc/internal/calc"
	"ghgcalc/internal/config"
	"ghgcalc/internal/storage"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lib := storage.NewLibrary(filepath.Join(t.TempDir(), "formulas.json"), time.Second, logger)
	cfg := config.Default()
	cfg.Splash = false
	return NewApp(context.Background(), cfg, lib, logger)
}

func newTestScreen(t *testing.T) tcell.SimulationScreen {
	t.Helper()
	s := tcell.NewSimulationScreen("UTF-8")
	require.NoError(t, s.Init())
	s.SetSize(100, 30)
	t.Cleanup(s.Fini)
	return s
}

func screenText(s tcell.SimulationScreen) string {
	cells, w, h := s.GetContents()
	var b strings.Builder
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := cells[y*w+x]
			if len(c.Runes) > 0 {
				b.WriteRune(c.Runes[0])
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// fuelForm builds E = S * GWP + C with S summing FC_j * EF_j over two items.
func fuelForm(t *testing.T) *App {
	t.Helper()
	a := newTestApp(t)
	a.ExecuteCommand("f E = S * GWP + C")
	a.ExecuteCommand("b add S 2 FC_j * EF_j")
	require.False(t, a.StatusErr, a.Status)
	return a
}

func focus(t *testing.T, a *App, kind fieldKind, name string) {
	t.Helper()
	for i, f := range a.fields {
		if f.kind == kind && f.name == name {
			a.Cur = i
			a.clampCol()
			return
		}
	}
	t.Fatalf("no field %v %q", kind, name)
}

func TestRefresh_DiscoversVariables(t *testing.T) {
	a := fuelForm(t)
	assert.Equal(t, []string{"C", "GWP"}, a.Scalars())
	require.Contains(t, a.Tables, "S")
	assert.Equal(t, []string{"EF_j", "FC_j"}, a.Tables["S"].Columns)
	assert.Equal(t, 2, a.Tables["S"].Rows)

	var kinds []fieldKind
	for _, f := range a.fields {
		kinds = append(kinds, f.kind)
	}
	assert.Equal(t, []fieldKind{
		fieldName, fieldFormula, fieldScalar, fieldScalar,
		fieldTemplate, fieldCount, fieldItem, fieldItem,
	}, kinds)
}

func TestRefresh_MalformedFormulaStillListsInputs(t *testing.T) {
	a := newTestApp(t)
	a.SetFormula("a * (b +")
	assert.True(t, a.StatusErr)
	assert.Equal(t, []string{"a", "b"}, a.Scalars())
}

func TestCompute(t *testing.T) {
	a := fuelForm(t)
	for _, cmd := range []string{
		"set GWP 2", "set C 1",
		"set FC_1 10", "set EF_1 2",
		"set FC_2 5", "set EF_2 3",
	} {
		a.ExecuteCommand(cmd)
		require.False(t, a.StatusErr, a.Status)
	}

	res, err := a.Compute()
	require.NoError(t, err)
	assert.Equal(t, 71.0, res.Value)
	assert.Equal(t, 35.0, res.Blocks["S"])
	assert.False(t, a.StatusErr)
	assert.Contains(t, a.Status, "E = 71")
	assert.Contains(t, a.Status, "S = 35")
}

func TestCompute_Errors(t *testing.T) {
	a := fuelForm(t)
	_, err := a.Compute()
	require.ErrorIs(t, err, calc.ErrUnboundVariable)
	assert.True(t, a.StatusErr)

	a.ExecuteCommand("set GWP 2")
	a.ExecuteCommand("set C 1")
	a.ExecuteCommand("set FC_1 10")
	_, err = a.Compute()
	require.ErrorIs(t, err, calc.ErrIndexedVariableMismatch)

	a.ExecuteCommand("set EF_1 2")
	a.ExecuteCommand("set FC_2 abc")
	a.ExecuteCommand("set EF_2 1")
	_, err = a.Compute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `FC_2: "abc" is not a number`)

	a.ExecuteCommand("set FC_2 0")
	a.ExecuteCommand("f E = S / C")
	a.ExecuteCommand("set C 0")
	_, err = a.Compute()
	require.ErrorIs(t, err, calc.ErrArithmetic)

	a.ExecuteCommand("set C nan")
	_, err = a.Compute()
	require.ErrorIs(t, err, calc.ErrArithmetic)
	assert.Contains(t, err.Error(), "C")
}

func TestCompute_NoFormula(t *testing.T) {
	a := newTestApp(t)
	_, err := a.Compute()
	require.Error(t, err)
	assert.True(t, a.StatusErr)
}

func TestBlockCommands(t *testing.T) {
	a := fuelForm(t)

	a.ExecuteCommand("b add S 1 x_j")
	assert.True(t, a.StatusErr, "duplicate block")

	a.ExecuteCommand("b add T 1 k")
	assert.True(t, a.StatusErr, "template without an indexed variable")

	a.ExecuteCommand("n S 3")
	require.False(t, a.StatusErr)
	assert.Equal(t, 3, a.Def.SumBlocks[0].ItemCount)
	assert.Equal(t, 3, a.Tables["S"].Rows)

	a.ExecuteCommand("n S 0")
	assert.True(t, a.StatusErr)
	assert.Equal(t, 3, a.Def.SumBlocks[0].ItemCount)

	a.ExecuteCommand("b del T")
	a.ExecuteCommand("b del S")
	require.False(t, a.StatusErr, a.Status)
	assert.Empty(t, a.Tables)
	assert.Equal(t, []string{"C", "GWP", "S"}, a.Scalars(), "S becomes a plain variable once its block is gone")

	a.ExecuteCommand("bogus")
	assert.True(t, a.StatusErr)
}

func TestEditKeepsItemValues(t *testing.T) {
	a := fuelForm(t)
	a.ExecuteCommand("set FC_1 10")
	focus(t, a, fieldTemplate, "S")
	a.ApplyEdit("FC_j * EF_j * k_j")
	require.False(t, a.StatusErr, a.Status)
	assert.Equal(t, []string{"EF_j", "FC_j", "k_j"}, a.Tables["S"].Columns)
	r, c, ok := a.Tables["S"].Lookup("FC_1")
	require.True(t, ok)
	assert.Equal(t, "10", a.Tables["S"].Get(r, c))
}

func TestLibraryCommands(t *testing.T) {
	a := fuelForm(t)
	a.ExecuteCommand("w Fuel combustion")
	require.False(t, a.StatusErr, a.Status)

	a.ExecuteCommand("new")
	assert.Equal(t, "untitled", a.Def.Name)
	assert.Empty(t, a.Def.SumBlocks)

	a.ExecuteCommand("o Fuel combustion")
	require.False(t, a.StatusErr, a.Status)
	assert.Equal(t, "E = S * GWP + C", a.Def.MainFormula)
	require.Len(t, a.Def.SumBlocks, 1)
	assert.Equal(t, 2, a.Def.SumBlocks[0].ItemCount)

	a.ExecuteCommand("ls")
	assert.Contains(t, a.Overlay, "Fuel combustion")

	a.ExecuteCommand("rm Fuel combustion")
	require.False(t, a.StatusErr, a.Status)
	a.ExecuteCommand("o Fuel combustion")
	assert.True(t, a.StatusErr)

	a.ExecuteCommand("f E = (")
	a.ExecuteCommand("w broken")
	assert.True(t, a.StatusErr, "invalid definitions are not saved")
}

func TestImportExport(t *testing.T) {
	a := fuelForm(t)
	a.ExecuteCommand("set FC_1 10")
	a.ExecuteCommand("set EF_1 2")
	a.ExecuteCommand("set FC_2 5")
	a.ExecuteCommand("set EF_2 3")

	file := filepath.Join(t.TempDir(), "items.csv")
	a.ExecuteCommand("export S " + file)
	require.False(t, a.StatusErr, a.Status)

	a.ExecuteCommand("b del S")
	a.ExecuteCommand("b add S 1 FC_j * EF_j")
	a.ExecuteCommand("import S " + file)
	require.False(t, a.StatusErr, a.Status)
	assert.Equal(t, 2, a.Def.SumBlocks[0].ItemCount)

	items, err := a.Tables["S"].Items()
	require.NoError(t, err)
	assert.Equal(t, []calc.Bindings{
		{"FC_1": 10, "EF_1": 2},
		{"FC_2": 5, "EF_2": 3},
	}, items)

	a.ExecuteCommand("import Nope " + file)
	assert.True(t, a.StatusErr)
}

func TestHandleKeyEvent(t *testing.T) {
	s := newTestScreen(t)
	a := fuelForm(t)
	a.Cur = 0

	a.HandleKeyEvent(s, tcell.NewEventKey(tcell.KeyDown, 0, tcell.ModNone))
	assert.Equal(t, 1, a.Cur)
	a.HandleKeyEvent(s, tcell.NewEventKey(tcell.KeyEnd, 0, tcell.ModNone))
	assert.Equal(t, len(a.fields)-1, a.Cur)
	a.HandleKeyEvent(s, tcell.NewEventKey(tcell.KeyRight, 0, tcell.ModNone))
	assert.Equal(t, 1, a.CurCol)
	a.HandleKeyEvent(s, tcell.NewEventKey(tcell.KeyRight, 0, tcell.ModNone))
	assert.Equal(t, 1, a.CurCol, "cursor stays on the last column")

	a.HandleKeyEvent(s, tcell.NewEventKey(tcell.KeyF2, 0, tcell.ModNone))
	assert.Equal(t, 3, a.Def.SumBlocks[0].ItemCount)
	a.HandleKeyEvent(s, tcell.NewEventKey(tcell.KeyF4, 0, tcell.ModNone))
	assert.Equal(t, 2, a.Def.SumBlocks[0].ItemCount)

	a.HandleKeyEvent(s, tcell.NewEventKey(tcell.KeyRune, '?', tcell.ModNone))
	assert.NotEmpty(t, a.Overlay)
	a.HandleKeyEvent(s, tcell.NewEventKey(tcell.KeyRune, 'c', tcell.ModNone))
	assert.False(t, a.StatusErr, "keys are swallowed while a popup is open")
	a.HandleKeyEvent(s, tcell.NewEventKey(tcell.KeyEsc, 0, tcell.ModNone))
	assert.Empty(t, a.Overlay)

	a.HandleKeyEvent(s, tcell.NewEventKey(tcell.KeyRune, 'c', tcell.ModNone))
	assert.True(t, a.StatusErr, "compute without values reports an error")

	a.HandleKeyEvent(s, tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone))
	assert.True(t, a.Quit)
}

func TestEditField_Popup(t *testing.T) {
	s := newTestScreen(t)
	a := fuelForm(t)
	focus(t, a, fieldScalar, "GWP")

	s.InjectKey(tcell.KeyRune, '2', tcell.ModNone)
	s.InjectKey(tcell.KeyRune, '5', tcell.ModNone)
	s.InjectKey(tcell.KeyEnter, 0, tcell.ModNone)
	a.HandleKeyEvent(s, tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone))
	assert.Equal(t, "25", a.Values["GWP"])

	s.InjectKey(tcell.KeyRune, '9', tcell.ModNone)
	s.InjectKey(tcell.KeyEsc, 0, tcell.ModNone)
	a.HandleKeyEvent(s, tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone))
	assert.Equal(t, "25", a.Values["GWP"], "Esc cancels the edit")
}

func TestDraw(t *testing.T) {
	s := newTestScreen(t)
	a := fuelForm(t)
	a.ExecuteCommand("set GWP 2")
	a.ExecuteCommand("set FC_1 10")
	a.EnsureCursorVisible(s)
	a.Draw(s)

	text := screenText(s)
	assert.Contains(t, text, "(1/4 values)")
	assert.Contains(t, text, "E = S * GWP + C")
	assert.Contains(t, text, "Variables")
	assert.Contains(t, text, "Sum block S")
	assert.Contains(t, text, "FC_j")
	assert.Contains(t, text, "Σ FC_j * EF_j")
	assert.Contains(t, text, "Mode:normal")
}

func TestEnsureCursorVisible(t *testing.T) {
	s := newTestScreen(t)
	s.SetSize(80, 8)
	a := fuelForm(t)
	a.ExecuteCommand("n S 20")
	a.Cur = len(a.fields) - 1
	a.EnsureCursorVisible(s)
	assert.Greater(t, a.View, 0)

	a.Draw(s)
	assert.Contains(t, screenText(s), "20")

	a.Cur = 0
	a.EnsureCursorVisible(s)
	assert.Equal(t, 0, a.View)
}

func TestWrapText(t *testing.T) {
	lines := wrapText(" alpha beta gamma\n\n indented", 12)
	assert.Equal(t, []string{" alpha beta", " gamma", "", " indented"}, lines)
	assert.Equal(t, []string{"abc", "def", "g"}, chunkString("abcdefg", 3))
}
