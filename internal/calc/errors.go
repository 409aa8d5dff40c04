package calc

import (
	"errors"
	"fmt"
)

// Error kinds. Every typed error below matches exactly one of these with errors.Is.
var (
	ErrParse                   = errors.New("parse error")
	ErrUnboundVariable         = errors.New("unbound variable")
	ErrArithmetic              = errors.New("arithmetic error")
	ErrEmptyBlock              = errors.New("empty sum block")
	ErrIndexedVariableMismatch = errors.New("indexed variable mismatch")
)

// ParseError reports malformed expression text. Pos is a byte offset into Expr.
type ParseError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Expr == "" {
		return fmt.Sprintf("parse error: %s", e.Msg)
	}
	return fmt.Sprintf("parse error at %d in %q: %s", e.Pos, e.Expr, e.Msg)
}

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// UnboundVariableError names a variable referenced by an expression but missing from the bindings.
type UnboundVariableError struct {
	Name string
}

func (e *UnboundVariableError) Error() string {
	return fmt.Sprintf("unbound variable %q", e.Name)
}

func (e *UnboundVariableError) Is(target error) bool { return target == ErrUnboundVariable }

// ArithmeticError reports an undefined numeric operation such as division by zero.
type ArithmeticError struct {
	Expr string
	Msg  string
}

func (e *ArithmeticError) Error() string {
	if e.Expr == "" {
		return "arithmetic error: " + e.Msg
	}
	return fmt.Sprintf("arithmetic error in %s: %s", e.Expr, e.Msg)
}

func (e *ArithmeticError) Is(target error) bool { return target == ErrArithmetic }

// EmptyBlockError is returned when a sum block is aggregated over no items.
type EmptyBlockError struct {
	Block string
}

func (e *EmptyBlockError) Error() string {
	if e.Block == "" {
		return "sum block has no items"
	}
	return fmt.Sprintf("sum block %s has no items", e.Block)
}

func (e *EmptyBlockError) Is(target error) bool { return target == ErrEmptyBlock }

// IndexedVariableMismatchError reports an item that lacks one of the indexed
// variables required by the block template, or an item list of the wrong length.
type IndexedVariableMismatchError struct {
	Block    string
	Index    int
	Variable string
	Msg      string
}

func (e *IndexedVariableMismatchError) Error() string {
	prefix := "sum block"
	if e.Block != "" {
		prefix += " " + e.Block
	}
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s", prefix, e.Msg)
	}
	return fmt.Sprintf("%s: item %d has no value for %s", prefix, e.Index, e.Variable)
}

func (e *IndexedVariableMismatchError) Is(target error) bool {
	return target == ErrIndexedVariableMismatch
}

// ItemError annotates a failure with the 1-based item index it happened at.
type ItemError struct {
	Block string
	Index int
	Err   error
}

func (e *ItemError) Error() string {
	if e.Block == "" {
		return fmt.Sprintf("item %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("sum block %s, item %d: %v", e.Block, e.Index, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }
