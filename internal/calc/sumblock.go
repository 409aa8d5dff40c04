package calc

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
)

// IndexMarker is the identifier segment replaced by the item index inside a sum block.
const IndexMarker = "_j"

// markerPositions returns the offsets of every "_j" segment in name. A segment
// must end the name or be followed by '_', so FC_jet carries no marker.
func markerPositions(name string) []int {
	var out []int
	for k := 0; k+len(IndexMarker) <= len(name); k++ {
		if name[k:k+len(IndexMarker)] != IndexMarker {
			continue
		}
		end := k + len(IndexMarker)
		if end == len(name) || name[end] == '_' {
			out = append(out, k)
		}
	}
	return out
}

// IsIndexed reports whether name carries exactly one index marker.
func IsIndexed(name string) bool {
	return len(markerPositions(name)) == 1
}

// IndexName substitutes the item index i for the marker in name.
// Names without a marker come back unchanged with ok false.
func IndexName(name string, i int) (string, bool) {
	pos := markerPositions(name)
	if len(pos) != 1 {
		return name, false
	}
	k := pos[0]
	return name[:k] + "_" + strconv.Itoa(i) + name[k+len(IndexMarker):], true
}

// IndexItem converts a row keyed by marker names (FC_j) into bindings keyed
// by indexed names (FC_3 for i == 3). Unmarked keys are copied as is.
func IndexItem(row map[string]float64, i int) Bindings {
	out := make(Bindings, len(row))
	for k, v := range row {
		name, _ := IndexName(k, i)
		out[name] = v
	}
	return out
}

// templateVars splits the variables of a parsed template into indexed and plain names.
func templateVars(template string, n Node) (indexed, plain []string, err error) {
	for _, name := range Refs(n) {
		switch len(markerPositions(name)) {
		case 0:
			plain = append(plain, name)
		case 1:
			indexed = append(indexed, name)
		default:
			return nil, nil, &ParseError{
				Expr: template,
				Pos:  identIndex(template, name),
				Msg:  fmt.Sprintf("%s has more than one %s marker", name, IndexMarker),
			}
		}
	}
	if len(indexed) == 0 {
		return nil, nil, &ParseError{Expr: template, Msg: "sum block template has no " + IndexMarker + " variable"}
	}
	slices.Sort(indexed)
	slices.Sort(plain)
	return indexed, plain, nil
}

// AggregateSumBlock evaluates template once per item and returns the sum.
// Item i (1-based) must bind the indexed names, e.g. FC_i for FC_j.
func AggregateSumBlock(template string, items []Bindings) (float64, error) {
	return aggregate("", template, nil, items)
}

// AggregateSumBlockWith is AggregateSumBlock with shared bindings visible to
// every item, so templates may mix indexed and plain variables.
func AggregateSumBlockWith(template string, shared Bindings, items []Bindings) (float64, error) {
	return aggregate("", template, shared, items)
}

func aggregate(block, template string, shared Bindings, items []Bindings) (float64, error) {
	if len(items) == 0 {
		return 0, &EmptyBlockError{Block: block}
	}
	tree, err := Parse(template)
	if err != nil {
		return 0, err
	}
	indexed, _, err := templateVars(template, tree)
	if err != nil {
		return 0, err
	}

	sum := 0.0
	for idx, item := range items {
		i := idx + 1
		rename := make(map[string]string, len(indexed))
		for _, name := range indexed {
			concrete, _ := IndexName(name, i)
			if _, ok := item[concrete]; !ok {
				return 0, &IndexedVariableMismatchError{Block: block, Index: i, Variable: concrete}
			}
			rename[name] = concrete
		}
		env := make(Bindings, len(shared)+len(item))
		maps.Copy(env, shared)
		maps.Copy(env, item)
		v, err := rewrite(tree, rename).Eval(env)
		if err != nil {
			return 0, &ItemError{Block: block, Index: i, Err: err}
		}
		sum += v
	}
	if math.IsInf(sum, 0) || math.IsNaN(sum) {
		return 0, &ArithmeticError{Expr: template, Msg: "sum is not a finite number"}
	}
	return sum, nil
}

// rewrite copies n with variables renamed through names.
func rewrite(n Node, names map[string]string) Node {
	switch t := n.(type) {
	case *Variable:
		if to, ok := names[t.Name]; ok {
			return &Variable{Name: to}
		}
		return t
	case *Unary:
		return &Unary{Op: t.Op, X: rewrite(t.X, names)}
	case *Binary:
		return &Binary{Op: t.Op, L: rewrite(t.L, names), R: rewrite(t.R, names)}
	}
	return n
}

func sortedKeys(m map[string]bool) []string {
	return slices.Sorted(maps.Keys(m))
}
