package calc

import (
	"math"
	"strconv"
)

// Bindings maps variable names to values for one evaluation.
type Bindings map[string]float64

// Node is a parsed arithmetic expression.
type Node interface {
	// Eval computes the node value against b.
	Eval(b Bindings) (float64, error)
	// String renders the node back to expression text.
	String() string
	prec() int
}

const (
	precAdd = iota + 1
	precMul
	precUnary
	precPow
	precAtom
)

type Number struct {
	Value float64
	Text  string
}

func (n *Number) Eval(Bindings) (float64, error) { return n.Value, nil }

func (n *Number) String() string {
	if n.Text != "" {
		return n.Text
	}
	return strconv.FormatFloat(n.Value, 'g', -1, 64)
}

func (n *Number) prec() int { return precAtom }

type Variable struct {
	Name string
}

func (v *Variable) Eval(b Bindings) (float64, error) {
	val, ok := b[v.Name]
	if !ok {
		return 0, &UnboundVariableError{Name: v.Name}
	}
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return 0, &ArithmeticError{Expr: v.Name, Msg: "value is not a finite number"}
	}
	return val, nil
}

func (v *Variable) String() string { return v.Name }

func (v *Variable) prec() int { return precAtom }

// Unary is a sign applied to X. Op is '+' or '-'.
type Unary struct {
	Op byte
	X  Node
}

func (u *Unary) Eval(b Bindings) (float64, error) {
	v, err := u.X.Eval(b)
	if err != nil {
		return 0, err
	}
	if u.Op == '-' {
		return -v, nil
	}
	return v, nil
}

func (u *Unary) String() string {
	x := u.X.String()
	if u.X.prec() < precUnary {
		x = "(" + x + ")"
	}
	return string(u.Op) + x
}

func (u *Unary) prec() int { return precUnary }

// Binary applies Op ("+", "-", "*", "/" or "**") to L and R.
type Binary struct {
	Op   string
	L, R Node
}

func (n *Binary) Eval(b Bindings) (float64, error) {
	l, err := n.L.Eval(b)
	if err != nil {
		return 0, err
	}
	r, err := n.R.Eval(b)
	if err != nil {
		return 0, err
	}
	var v float64
	switch n.Op {
	case "+":
		v = l + r
	case "-":
		v = l - r
	case "*":
		v = l * r
	case "/":
		if r == 0 {
			return 0, &ArithmeticError{Expr: n.String(), Msg: "division by zero"}
		}
		v = l / r
	case "**":
		if l == 0 && r < 0 {
			return 0, &ArithmeticError{Expr: n.String(), Msg: "zero raised to a negative power"}
		}
		if l < 0 && r != math.Trunc(r) {
			return 0, &ArithmeticError{Expr: n.String(), Msg: "negative base with fractional exponent"}
		}
		v = math.Pow(l, r)
	default:
		return 0, &ArithmeticError{Expr: n.String(), Msg: "unknown operator " + n.Op}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ArithmeticError{Expr: n.String(), Msg: "result is not a finite number"}
	}
	return v, nil
}

func (n *Binary) String() string {
	p := n.prec()
	l := n.L.String()
	r := n.R.String()
	// ** is right associative, the other operators are left associative.
	if n.L.prec() < p || (p == precPow && n.L.prec() == p) {
		l = "(" + l + ")"
	}
	if n.R.prec() < p || (p != precPow && n.R.prec() == p) {
		r = "(" + r + ")"
	}
	return l + " " + n.Op + " " + r
}

func (n *Binary) prec() int {
	switch n.Op {
	case "+", "-":
		return precAdd
	case "*", "/":
		return precMul
	}
	return precPow
}

// Walk calls fn for n and every node below it, depth first.
func Walk(n Node, fn func(Node)) {
	if n == nil {
		return
	}
	fn(n)
	switch t := n.(type) {
	case *Unary:
		Walk(t.X, fn)
	case *Binary:
		Walk(t.L, fn)
		Walk(t.R, fn)
	}
}

// Refs returns the distinct variable names referenced by n, in first-use order.
func Refs(n Node) []string {
	seen := map[string]bool{}
	var out []string
	Walk(n, func(x Node) {
		if v, ok := x.(*Variable); ok && !seen[v.Name] {
			seen[v.Name] = true
			out = append(out, v.Name)
		}
	})
	return out
}
