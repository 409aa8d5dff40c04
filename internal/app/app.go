package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"

	"ghgcalc/internal/calc"
	"ghgcalc/internal/config"
	"ghgcalc/internal/grid"
	"ghgcalc/internal/storage"

	"github.com/gdamore/tcell/v2"
)

type fieldKind int

const (
	fieldName fieldKind = iota
	fieldFormula
	fieldScalar
	fieldTemplate
	fieldCount
	fieldItem
)

// field is one focusable line of the form.
type field struct {
	kind fieldKind
	name string // scalar or block name
	row  int    // item row for fieldItem
}

type App struct {
	// layout
	StatusLines  int
	DefaultWidth int
	CellPadding  int

	Cfg config.Config
	Lib *storage.Library
	Log *slog.Logger
	ctx context.Context

	// formula data
	Def     calc.FormulaDefinition
	Values  map[string]string
	Tables  map[string]*grid.Table
	scalars []string
	fields  []field

	// cursor / view
	Cur    int
	CurCol int
	View   int

	// UI state
	Mode      string // normal | edit | command
	Status    string
	StatusErr bool
	Overlay   string
	Quit      bool
}

func NewApp(ctx context.Context, cfg config.Config, lib *storage.Library, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		StatusLines:  2,
		DefaultWidth: 14,
		CellPadding:  1,
		Cfg:          cfg,
		Lib:          lib,
		Log:          logger,
		ctx:          ctx,
		Def:          calc.FormulaDefinition{Name: "untitled"},
		Values:       map[string]string{},
		Tables:       map[string]*grid.Table{},
		Mode:         "normal",
		Status:       "Press = to enter a formula, ? for help",
	}
	a.Refresh()
	return a
}

// Load replaces the form with def. Entered values are dropped.
func (a *App) Load(def calc.FormulaDefinition) {
	a.Def = def.Clone()
	a.Values = map[string]string{}
	a.Tables = map[string]*grid.Table{}
	a.Cur, a.CurCol, a.View = 0, 0, 0
	a.Refresh()
}

// Refresh rediscovers the variables of the current definition and rebuilds the
// form fields. Discovery is lexical so a half-typed formula still shows its inputs.
func (a *App) Refresh() {
	blocks := map[string]bool{}
	for _, b := range a.Def.SumBlocks {
		blocks[b.Name] = true
	}
	scalars := map[string]bool{}
	for _, v := range calc.Variables(a.Def.Expression()) {
		if !blocks[v] {
			scalars[v] = true
		}
	}

	tables := map[string]*grid.Table{}
	for _, b := range a.Def.SumBlocks {
		var cols []string
		for _, v := range calc.Variables(b.Expression) {
			switch {
			case calc.IsIndexed(v):
				cols = append(cols, v)
			case !blocks[v]:
				scalars[v] = true
			}
		}
		t, ok := a.Tables[b.Name]
		if !ok {
			t = grid.NewTable(b.Name, cols, b.ItemCount)
		} else {
			t.SetColumns(cols)
			t.Resize(b.ItemCount)
		}
		tables[b.Name] = t
	}
	a.Tables = tables
	a.scalars = slices.Sorted(maps.Keys(scalars))

	a.fields = a.fields[:0]
	a.fields = append(a.fields, field{kind: fieldName}, field{kind: fieldFormula})
	for _, name := range a.scalars {
		a.fields = append(a.fields, field{kind: fieldScalar, name: name})
	}
	for _, b := range a.Def.SumBlocks {
		a.fields = append(a.fields, field{kind: fieldTemplate, name: b.Name}, field{kind: fieldCount, name: b.Name})
		for r := 0; r < b.ItemCount; r++ {
			a.fields = append(a.fields, field{kind: fieldItem, name: b.Name, row: r})
		}
	}
	if a.Cur >= len(a.fields) {
		a.Cur = len(a.fields) - 1
	}
	a.clampCol()
}

// Scalars returns the plain variables the form asks for, sorted.
func (a *App) Scalars() []string {
	return slices.Clone(a.scalars)
}

func (a *App) focused() field {
	return a.fields[a.Cur]
}

func (a *App) clampCol() {
	f := a.focused()
	if f.kind != fieldItem {
		a.CurCol = 0
		return
	}
	n := len(a.Tables[f.name].Columns)
	a.CurCol = max(0, min(a.CurCol, n-1))
}

func (a *App) blockIndex(name string) int {
	return slices.IndexFunc(a.Def.SumBlocks, func(b calc.SumBlock) bool { return b.Name == name })
}

func (a *App) setStatus(format string, args ...any) {
	a.Status = fmt.Sprintf(format, args...)
	a.StatusErr = false
}

func (a *App) setError(err error) {
	a.Status = err.Error()
	a.StatusErr = true
}

// ----------------------------- Events / Input -----------------------------

func (a *App) HandleKeyEvent(s tcell.Screen, ev *tcell.EventKey) {
	// If a popup is visible, consume keys and only allow closing it
	if a.Overlay != "" {
		if ev.Key() == tcell.KeyEsc || ev.Key() == tcell.KeyEnter || ev.Rune() == '?' || ev.Rune() == 'q' {
			a.Overlay = ""
		}
		return
	}

	switch ev.Key() {
	case tcell.KeyEsc:
		a.Status = ""
		a.StatusErr = false
	case tcell.KeyCtrlC:
		a.Quit = true
	case tcell.KeyUp:
		if a.Cur > 0 {
			a.Cur--
		}
		a.clampCol()
	case tcell.KeyDown:
		if a.Cur < len(a.fields)-1 {
			a.Cur++
		}
		a.clampCol()
	case tcell.KeyLeft:
		if a.CurCol > 0 {
			a.CurCol--
		}
	case tcell.KeyRight:
		a.CurCol++
		a.clampCol()
	case tcell.KeyTab:
		a.nextCell()
	case tcell.KeyPgUp:
		a.Cur = max(0, a.Cur-10)
		a.clampCol()
	case tcell.KeyPgDn:
		a.Cur = min(len(a.fields)-1, a.Cur+10)
		a.clampCol()
	case tcell.KeyHome:
		a.Cur, a.View = 0, 0
		a.clampCol()
	case tcell.KeyEnd:
		a.Cur = len(a.fields) - 1
		a.clampCol()
	case tcell.KeyEnter:
		a.EditField(s)
	case tcell.KeyDelete, tcell.KeyBackspace, tcell.KeyBackspace2:
		a.ApplyEdit("")
	case tcell.KeyF2:
		a.resizeFocusedBlock(1)
	case tcell.KeyF4:
		a.resizeFocusedBlock(-1)
	case tcell.KeyF9:
		a.Compute()
	case tcell.KeyCtrlS:
		a.ExecuteCommand("w")
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			a.Quit = true
		case 'i':
			a.EditField(s)
		case ':':
			a.Mode = "command"
			command, ok := a.PopupInput(s, ":", "")
			a.Mode = "normal"
			if ok {
				a.ExecuteCommand(command)
			}
		case '=':
			value, ok := a.PopupInput(s, "Formula:", a.Def.MainFormula)
			if ok {
				a.SetFormula(value)
			}
		case 'c':
			a.Compute()
		case '?':
			a.Overlay = helpText
		}
	}
}

// nextCell moves to the next item cell, wrapping to the next row.
func (a *App) nextCell() {
	f := a.focused()
	if f.kind == fieldItem && a.CurCol < len(a.Tables[f.name].Columns)-1 {
		a.CurCol++
		return
	}
	if a.Cur < len(a.fields)-1 {
		a.Cur++
	}
	a.CurCol = 0
}

func (a *App) resizeFocusedBlock(delta int) {
	name := a.focused().name
	idx := a.blockIndex(name)
	if idx < 0 {
		a.setError(errors.New("move to a sum block to change its item count"))
		return
	}
	a.setItemCount(name, a.Def.SumBlocks[idx].ItemCount+delta)
}

// EditField opens an input popup for the focused field.
func (a *App) EditField(s tcell.Screen) {
	prompt, initial := a.fieldText(a.focused())
	a.Mode = "edit"
	text, ok := a.PopupInput(s, prompt+":", initial)
	a.Mode = "normal"
	if ok {
		a.ApplyEdit(text)
	}
}

// fieldText returns the label and current text of f.
func (a *App) fieldText(f field) (string, string) {
	switch f.kind {
	case fieldName:
		return "Name", a.Def.Name
	case fieldFormula:
		return "Formula", a.Def.MainFormula
	case fieldScalar:
		return f.name, a.Values[f.name]
	case fieldTemplate:
		b := a.Def.SumBlocks[a.blockIndex(f.name)]
		return f.name, b.Expression
	case fieldCount:
		b := a.Def.SumBlocks[a.blockIndex(f.name)]
		return "Items", strconv.Itoa(b.ItemCount)
	case fieldItem:
		t := a.Tables[f.name]
		if len(t.Columns) == 0 {
			return t.CellName(0, f.row), ""
		}
		return t.CellName(a.CurCol, f.row), t.Get(f.row, a.CurCol)
	}
	return "", ""
}

// ApplyEdit stores text into the focused field.
func (a *App) ApplyEdit(text string) {
	f := a.focused()
	switch f.kind {
	case fieldName:
		if strings.TrimSpace(text) == "" {
			a.setError(errors.New("formula name is empty"))
			return
		}
		a.Def.Name = strings.TrimSpace(text)
	case fieldFormula:
		a.SetFormula(text)
	case fieldScalar:
		a.Values[f.name] = strings.TrimSpace(text)
	case fieldTemplate:
		a.Def.SumBlocks[a.blockIndex(f.name)].Expression = strings.TrimSpace(text)
		a.Refresh()
		a.checkTemplate(f.name)
	case fieldCount:
		n, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			a.setError(fmt.Errorf("item count %q is not a number", text))
			return
		}
		a.setItemCount(f.name, n)
	case fieldItem:
		t := a.Tables[f.name]
		if len(t.Columns) == 0 {
			a.setError(fmt.Errorf("sum block %s has no %s variables", f.name, calc.IndexMarker))
			return
		}
		t.Set(f.row, a.CurCol, text)
	}
}

// SetFormula replaces the main formula and rediscovers its variables.
func (a *App) SetFormula(text string) {
	a.Def.MainFormula = strings.TrimSpace(text)
	a.Refresh()
	if a.Def.MainFormula == "" {
		return
	}
	if _, err := calc.Parse(a.Def.Expression()); err != nil {
		a.setError(err)
		return
	}
	a.setStatus("Formula set: %d variables", len(a.scalars))
}

func (a *App) checkTemplate(block string) {
	b := a.Def.SumBlocks[a.blockIndex(block)]
	def := calc.FormulaDefinition{Name: a.Def.Name, MainFormula: "0", SumBlocks: []calc.SumBlock{b}}
	if err := def.Validate(); err != nil {
		a.setError(err)
		return
	}
	a.setStatus("Sum block %s updated", block)
}

func (a *App) setItemCount(block string, n int) {
	idx := a.blockIndex(block)
	if idx < 0 {
		a.setError(fmt.Errorf("unknown sum block %s", block))
		return
	}
	if n < 1 {
		a.setError(fmt.Errorf("sum block %s needs at least one item", block))
		return
	}
	a.Def.SumBlocks[idx].ItemCount = n
	a.Refresh()
	a.setStatus("Sum block %s has %d items", block, n)
}

// Compute evaluates the form. The outcome is shown on the status line.
func (a *App) Compute() (calc.Result, error) {
	res, err := a.evaluate()
	if err != nil {
		a.Log.Info("Evaluation failed.", "formula", a.Def.Name, "error", err)
		a.setError(err)
		return calc.Result{}, err
	}
	label := a.Def.Label()
	if label == "" {
		label = "Result"
	}
	msg := label + " = " + calc.FormatNumber(res.Value, a.Cfg.Precision)
	var parts []string
	for _, name := range a.Def.BlockNames() {
		parts = append(parts, name+" = "+calc.FormatNumber(res.Blocks[name], a.Cfg.Precision))
	}
	if len(parts) > 0 {
		msg += "   (" + strings.Join(parts, ", ") + ")"
	}
	a.setStatus("%s", msg)
	a.Log.Debug("Formula evaluated.", "formula", a.Def.Name, "value", res.Value)
	return res, nil
}

func (a *App) evaluate() (calc.Result, error) {
	if strings.TrimSpace(a.Def.MainFormula) == "" {
		return calc.Result{}, errors.New("no formula: press = to enter one")
	}
	values := calc.Bindings{}
	for _, name := range a.scalars {
		text := strings.TrimSpace(a.Values[name])
		if text == "" {
			return calc.Result{}, &calc.UnboundVariableError{Name: name}
		}
		v, err := calc.ParseValue(name, text)
		if err != nil {
			return calc.Result{}, err
		}
		values[name] = v
	}
	items := map[string][]calc.Bindings{}
	for _, b := range a.Def.SumBlocks {
		list, err := a.Tables[b.Name].Items()
		if err != nil {
			return calc.Result{}, err
		}
		items[b.Name] = list
	}
	return a.Def.Evaluate(values, items)
}

// ----------------------------- Commands / Storage -----------------------------

func (a *App) ExecuteCommand(cmd string) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return
	}
	rest := func(from int) string {
		if len(parts) <= from {
			return ""
		}
		return strings.Join(parts[from:], " ")
	}
	switch parts[0] {
	case "q", "quit":
		a.Quit = true
	case "f":
		a.SetFormula(rest(1))
	case "name":
		if rest(1) == "" {
			a.setError(errors.New("usage: :name <formula name>"))
			return
		}
		a.Def.Name = rest(1)
		a.setStatus("Renamed to %s", a.Def.Name)
	case "new":
		a.Load(calc.FormulaDefinition{Name: "untitled"})
		a.setStatus("New formula")
	case "c", "compute":
		a.Compute()
	case "b":
		a.blockCommand(parts[1:])
	case "n":
		if len(parts) != 3 {
			a.setError(errors.New("usage: :n <block> <count>"))
			return
		}
		n, err := strconv.Atoi(parts[2])
		if err != nil {
			a.setError(fmt.Errorf("item count %q is not a number", parts[2]))
			return
		}
		a.setItemCount(parts[1], n)
	case "set":
		if len(parts) != 3 {
			a.setError(errors.New("usage: :set <variable> <value>"))
			return
		}
		a.setVariable(parts[1], parts[2])
	case "w":
		if name := rest(1); name != "" {
			a.Def.Name = name
		}
		if err := a.Lib.Save(a.ctx, a.Def); err != nil {
			a.setError(err)
			return
		}
		a.setStatus("Saved %s to %s", a.Def.Name, a.Lib.Path())
	case "o":
		def, err := a.Lib.Get(a.ctx, rest(1))
		if err != nil {
			a.setError(err)
			return
		}
		a.Load(def)
		a.setStatus("Loaded %s", def.Name)
	case "rm":
		if err := a.Lib.Delete(a.ctx, rest(1)); err != nil {
			a.setError(err)
			return
		}
		a.setStatus("Deleted %s", rest(1))
	case "ls":
		a.showLibrary()
	case "import":
		if len(parts) != 3 {
			a.setError(errors.New("usage: :import <block> <file.csv>"))
			return
		}
		a.importItems(parts[1], parts[2])
	case "export":
		if len(parts) != 3 {
			a.setError(errors.New("usage: :export <block> <file.csv>"))
			return
		}
		t, ok := a.Tables[parts[1]]
		if !ok {
			a.setError(fmt.Errorf("unknown sum block %s", parts[1]))
			return
		}
		if err := storage.SaveCSV(t, parts[2]); err != nil {
			a.setError(err)
			return
		}
		a.setStatus("Exported %d items of %s to %s", t.Rows, parts[1], parts[2])
	default:
		a.setError(fmt.Errorf("unknown command %q", parts[0]))
	}
}

func (a *App) blockCommand(args []string) {
	if len(args) == 0 {
		a.setError(errors.New("usage: :b add <name> <count> <template> | :b del <name>"))
		return
	}
	switch args[0] {
	case "add":
		if len(args) < 4 {
			a.setError(errors.New("usage: :b add <name> <count> <template>"))
			return
		}
		name := args[1]
		if !calc.IsIdentifier(name) {
			a.setError(fmt.Errorf("sum block name %q is not a valid identifier", name))
			return
		}
		if a.blockIndex(name) >= 0 {
			a.setError(fmt.Errorf("sum block %s already exists", name))
			return
		}
		n, err := strconv.Atoi(args[2])
		if err != nil || n < 1 {
			a.setError(fmt.Errorf("item count %q must be a positive number", args[2]))
			return
		}
		a.Def.SumBlocks = append(a.Def.SumBlocks, calc.SumBlock{
			Name:       name,
			Expression: strings.Join(args[3:], " "),
			ItemCount:  n,
		})
		a.Refresh()
		a.checkTemplate(name)
		if !a.StatusErr && !slices.Contains(calc.Variables(a.Def.Expression()), name) {
			a.setStatus("Sum block %s added (the formula does not use it yet)", name)
		}
	case "del":
		if len(args) != 2 {
			a.setError(errors.New("usage: :b del <name>"))
			return
		}
		idx := a.blockIndex(args[1])
		if idx < 0 {
			a.setError(fmt.Errorf("unknown sum block %s", args[1]))
			return
		}
		a.Def.SumBlocks = slices.Delete(a.Def.SumBlocks, idx, idx+1)
		a.Refresh()
		a.setStatus("Sum block %s removed", args[1])
	default:
		a.setError(fmt.Errorf("unknown block command %q", args[0]))
	}
}

func (a *App) setVariable(name, value string) {
	if slices.Contains(a.scalars, name) {
		a.Values[name] = value
		a.setStatus("%s = %s", name, value)
		return
	}
	for _, b := range a.Def.SumBlocks {
		t := a.Tables[b.Name]
		if r, c, ok := t.Lookup(name); ok {
			t.Set(r, c, value)
			a.setStatus("%s = %s", name, value)
			return
		}
	}
	a.setError(fmt.Errorf("unknown variable %s", name))
}

func (a *App) importItems(block, filename string) {
	idx := a.blockIndex(block)
	if idx < 0 {
		a.setError(fmt.Errorf("unknown sum block %s", block))
		return
	}
	t, err := storage.LoadCSV(block, filename)
	if err != nil {
		a.setError(err)
		return
	}
	if t.Rows == 0 {
		a.setError(fmt.Errorf("%s has no item rows", filename))
		return
	}
	a.Tables[block] = t
	a.Def.SumBlocks[idx].ItemCount = t.Rows
	a.Refresh()
	a.setStatus("Imported %d items into %s", t.Rows, block)
}

func (a *App) showLibrary() {
	defs, err := a.Lib.LoadAll(a.ctx)
	if err != nil {
		a.setError(err)
		return
	}
	if len(defs) == 0 {
		a.Overlay = "\nThe formula library is empty.\nSave the current formula with :w\n"
		return
	}
	var b strings.Builder
	b.WriteString("\nSaved formulas (:o <name> to load)\n")
	for _, d := range defs {
		fmt.Fprintf(&b, "\n%s: %s", d.Name, d.MainFormula)
		for _, sb := range d.SumBlocks {
			fmt.Fprintf(&b, "\n   %s = Σ(%s) over %d items", sb.Name, sb.Expression, sb.ItemCount)
		}
	}
	b.WriteString("\n")
	a.Overlay = b.String()
}

const helpText = `
 = - edit the formula
 Enter / i - edit the focused field
 Tab / arrows - move
 c / F9 - compute
 F2 / F4 - add/remove item row
 Del - clear field
 : - command
 :b add NAME COUNT TEMPLATE
 :b del NAME | :n NAME COUNT
 :set VAR VALUE | :name NAME | :new
 :w [name] | :o name | :rm name | :ls
 :import BLOCK file.csv | :export BLOCK file.csv
 q / Ctrl+C - quit
 `
