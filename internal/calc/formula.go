package calc

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// SumBlock is a named aggregation: Expression is evaluated for items 1..ItemCount
// and the sum is bound to Name in the main formula.
type SumBlock struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
	ItemCount  int    `json:"item_count"`
}

// FormulaDefinition is a reusable formula template. Item values are supplied
// per calculation and are not part of the definition.
type FormulaDefinition struct {
	Name        string     `json:"name"`
	MainFormula string     `json:"main_formula"`
	SumBlocks   []SumBlock `json:"sum_blocks"`
}

// Expression returns the evaluable right-hand side of the main formula.
func (d FormulaDefinition) Expression() string {
	_, rhs := SplitAssignment(d.MainFormula)
	return rhs
}

// Label returns the left-hand side of the main formula, if any.
func (d FormulaDefinition) Label() string {
	label, _ := SplitAssignment(d.MainFormula)
	return label
}

// Block returns the sum block called name.
func (d FormulaDefinition) Block(name string) (SumBlock, bool) {
	for _, b := range d.SumBlocks {
		if b.Name == name {
			return b, true
		}
	}
	return SumBlock{}, false
}

func (d FormulaDefinition) blockNames() map[string]bool {
	names := make(map[string]bool, len(d.SumBlocks))
	for _, b := range d.SumBlocks {
		names[b.Name] = true
	}
	return names
}

// Validate checks that the definition can be evaluated once values are bound.
func (d FormulaDefinition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("formula name is empty")
	}
	if _, err := Parse(d.Expression()); err != nil {
		return fmt.Errorf("main formula: %w", err)
	}
	blocks := d.blockNames()
	seen := map[string]bool{}
	for _, b := range d.SumBlocks {
		if !IsIdentifier(b.Name) {
			return fmt.Errorf("sum block name %q is not a valid identifier", b.Name)
		}
		if seen[b.Name] {
			return fmt.Errorf("duplicate sum block %s", b.Name)
		}
		seen[b.Name] = true
		if b.ItemCount < 1 {
			return fmt.Errorf("sum block %s: item count must be at least 1, got %d", b.Name, b.ItemCount)
		}
		tree, err := Parse(b.Expression)
		if err != nil {
			return fmt.Errorf("sum block %s: %w", b.Name, err)
		}
		if _, _, err := templateVars(b.Expression, tree); err != nil {
			return fmt.Errorf("sum block %s: %w", b.Name, err)
		}
		for _, ref := range Refs(tree) {
			if blocks[ref] {
				return fmt.Errorf("sum block %s: nested sum block %s is not supported", b.Name, ref)
			}
		}
	}
	return nil
}

// BlockVars lists the inputs of one sum block.
type BlockVars struct {
	Name string
	// Indexed holds marker names such as FC_j, sorted.
	Indexed []string
	// Plain holds unmarked names the template reads from the shared bindings.
	Plain []string
}

// Analysis is the variable dependency summary of a definition.
type Analysis struct {
	// Scalars are the values the user must bind outside any item list.
	Scalars []string
	Blocks  []BlockVars
	// Unused names sum blocks the main formula never references.
	Unused []string
}

// Analyze discovers the variables a definition needs. It fails if the
// definition does not validate.
func (d FormulaDefinition) Analyze() (Analysis, error) {
	if err := d.Validate(); err != nil {
		return Analysis{}, err
	}
	blocks := d.blockNames()
	scalars := map[string]bool{}
	main, _ := Parse(d.Expression())
	used := map[string]bool{}
	for _, name := range Refs(main) {
		if blocks[name] {
			used[name] = true
			continue
		}
		scalars[name] = true
	}

	var a Analysis
	for _, b := range d.SumBlocks {
		tree, _ := Parse(b.Expression)
		indexed, plain, _ := templateVars(b.Expression, tree)
		for _, name := range plain {
			scalars[name] = true
		}
		a.Blocks = append(a.Blocks, BlockVars{Name: b.Name, Indexed: indexed, Plain: plain})
		if !used[b.Name] {
			a.Unused = append(a.Unused, b.Name)
		}
	}
	a.Scalars = sortedKeys(scalars)
	return a, nil
}

// Result is the outcome of evaluating a definition.
type Result struct {
	Value  float64
	Blocks map[string]float64
}

// Evaluate aggregates every sum block over items[block.Name], binds each
// aggregate under the block name and evaluates the main formula. values are
// visible to the main formula and to every item of every block. A value in
// values named like a block is replaced by the aggregate.
func (d FormulaDefinition) Evaluate(values Bindings, items map[string][]Bindings) (Result, error) {
	if err := d.Validate(); err != nil {
		return Result{}, err
	}
	env := make(Bindings, len(values)+len(d.SumBlocks))
	maps.Copy(env, values)
	res := Result{Blocks: make(map[string]float64, len(d.SumBlocks))}
	for _, b := range d.SumBlocks {
		list := items[b.Name]
		if len(list) == 0 {
			return Result{}, &EmptyBlockError{Block: b.Name}
		}
		if len(list) != b.ItemCount {
			return Result{}, &IndexedVariableMismatchError{
				Block: b.Name,
				Msg:   fmt.Sprintf("expected %d items, got %d", b.ItemCount, len(list)),
			}
		}
		v, err := aggregate(b.Name, b.Expression, values, list)
		if err != nil {
			return Result{}, err
		}
		res.Blocks[b.Name] = v
		env[b.Name] = v
	}
	for name := range items {
		if _, ok := d.Block(name); !ok {
			return Result{}, fmt.Errorf("items given for unknown sum block %s", name)
		}
	}
	v, err := Evaluate(d.Expression(), env)
	if err != nil {
		return Result{}, err
	}
	res.Value = v
	return res, nil
}

// BlockNames returns the sum block names in definition order.
func (d FormulaDefinition) BlockNames() []string {
	out := make([]string, 0, len(d.SumBlocks))
	for _, b := range d.SumBlocks {
		out = append(out, b.Name)
	}
	return out
}

// Clone returns a deep copy of d.
func (d FormulaDefinition) Clone() FormulaDefinition {
	d.SumBlocks = slices.Clone(d.SumBlocks)
	return d
}
