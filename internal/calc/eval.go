package calc

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Evaluate parses expr and computes it against b.
func Evaluate(expr string, b Bindings) (float64, error) {
	n, err := Parse(expr)
	if err != nil {
		return 0, err
	}
	v, err := n.Eval(b)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ArithmeticError{Expr: expr, Msg: "result is not a finite number"}
	}
	return v, nil
}

// ParseValue parses the text entered for variable name. Text that is not a
// number, or is NaN or infinite, is an error naming the variable.
func ParseValue(name, text string) (float64, error) {
	text = strings.TrimSpace(text)
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", name, text)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ArithmeticError{Expr: name, Msg: fmt.Sprintf("%q is not a finite number", text)}
	}
	return v, nil
}

// Variables returns the distinct identifiers in expr, sorted. The scan is
// lexical: malformed expressions still yield their identifiers, and numeric
// literals such as 2e3 are never reported.
func Variables(expr string) []string {
	seen := map[string]bool{}
	pos := 0
	for pos < len(expr) {
		ch := expr[pos]
		switch {
		case isIdentStart(ch):
			end := scanIdent(expr, pos)
			seen[expr[pos:end]] = true
			pos = end
		case isDigit(ch) || ch == '.':
			end := scanNumber(expr, pos)
			if end == pos {
				end++
			}
			// digits glued to letters (2abc) form one word, not an identifier;
			// a lone dot (x.y) is just punctuation
			if strings.ContainsAny(expr[pos:end], "0123456789") {
				end = scanIdent(expr, end)
			}
			pos = end
		default:
			pos++
		}
	}
	return sortedKeys(seen)
}

// SplitAssignment splits "E_CO2_y = Sum_Block_1 + C" into its label and the
// right-hand side. Without '=' the label is empty and rhs is the whole text.
func SplitAssignment(s string) (label, rhs string) {
	i := strings.IndexByte(s, '=')
	if i < 0 {
		return "", strings.TrimSpace(s)
	}
	return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])
}

// FormatNumber renders v for display. Integral values print without decimals;
// others use precision digits with trailing zeros trimmed.
func FormatNumber(v float64, precision int) string {
	if precision < 0 {
		precision = 6
	}
	if v != 0 && math.Abs(v) < math.Pow(10, -float64(precision)) {
		return strconv.FormatFloat(v, 'g', max(precision, 1), 64)
	}
	if r := math.Round(v); math.Abs(v-r) < 1e-9 && math.Abs(v) < 1e15 {
		if r == 0 {
			r = 0 // drop the sign of -0
		}
		return strconv.FormatFloat(r, 'f', 0, 64)
	}
	s := strconv.FormatFloat(v, 'f', precision, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	if s == "-0" {
		s = "0"
	}
	return s
}
