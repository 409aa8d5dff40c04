package calc_test

import (
	"errors"
	"testing"

	"ghgcalc/internal/calc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateSumBlock(t *testing.T) {
	got, err := calc.AggregateSumBlock("x_j * 2", []calc.Bindings{{"x_1": 3}, {"x_2": 5}})
	require.NoError(t, err)
	require.Equal(t, 16.0, got)
}

func TestAggregateSumBlock_ProductOfIndexedVariables(t *testing.T) {
	items := []calc.Bindings{
		{"FC_1": 100, "EF_1": 2.5},
		{"FC_2": 40, "EF_2": 0.5},
		{"FC_3": 0, "EF_3": 9},
	}
	got, err := calc.AggregateSumBlock("FC_j * EF_j", items)
	require.NoError(t, err)
	require.InDelta(t, 270.0, got, 1e-9)
}

func TestAggregateSumBlock_Empty(t *testing.T) {
	for _, expr := range []string{"x_j", "FC_j * EF_j", "not even ( valid"} {
		_, err := calc.AggregateSumBlock(expr, nil)
		require.ErrorIs(t, err, calc.ErrEmptyBlock, expr)
		_, err = calc.AggregateSumBlock(expr, []calc.Bindings{})
		require.ErrorIs(t, err, calc.ErrEmptyBlock, expr)
	}
}

func TestAggregateSumBlock_MissingIndexedVariable(t *testing.T) {
	items := []calc.Bindings{
		{"x_1": 1, "y_1": 2},
		{"x_2": 3},
	}
	_, err := calc.AggregateSumBlock("x_j * y_j", items)
	require.ErrorIs(t, err, calc.ErrIndexedVariableMismatch)
	var me *calc.IndexedVariableMismatchError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, 2, me.Index)
	assert.Equal(t, "y_2", me.Variable)
	assert.Contains(t, err.Error(), "item 2")
}

func TestAggregateSumBlock_ItemErrorsCarryIndex(t *testing.T) {
	items := []calc.Bindings{
		{"a_1": 1, "b_1": 1},
		{"a_2": 1, "b_2": 0},
	}
	_, err := calc.AggregateSumBlock("a_j / b_j", items)
	require.ErrorIs(t, err, calc.ErrArithmetic)
	var ie *calc.ItemError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 2, ie.Index)
	assert.Contains(t, err.Error(), "a_2 / b_2")
}

func TestAggregateSumBlock_SharedBindings(t *testing.T) {
	items := []calc.Bindings{{"FC_1": 1}, {"FC_2": 2}}

	got, err := calc.AggregateSumBlockWith("FC_j * EF", calc.Bindings{"EF": 2}, items)
	require.NoError(t, err)
	require.Equal(t, 6.0, got)

	_, err = calc.AggregateSumBlock("FC_j * EF", items)
	require.ErrorIs(t, err, calc.ErrUnboundVariable)
	var ie *calc.ItemError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 1, ie.Index)
}

func TestAggregateSumBlock_TemplateRules(t *testing.T) {
	items := []calc.Bindings{{"x_1": 1, "a_1_1": 1}}

	_, err := calc.AggregateSumBlock("x * 2", items)
	require.ErrorIs(t, err, calc.ErrParse, "template without marker")

	_, err = calc.AggregateSumBlock("a_j_j + x_j", items)
	require.ErrorIs(t, err, calc.ErrParse, "identifier with two markers")

	_, err = calc.AggregateSumBlock("ba_j_jx + a_j_j", items)
	var pe *calc.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 10, pe.Pos, "position of the standalone a_j_j, not the one inside ba_j_jx")

	_, err = calc.AggregateSumBlock("x_j +", items)
	require.ErrorIs(t, err, calc.ErrParse)
}

func TestIndexName(t *testing.T) {
	tests := []struct {
		name string
		i    int
		want string
		ok   bool
	}{
		{"FC_j", 1, "FC_1", true},
		{"EF_j_CO2", 3, "EF_3_CO2", true},
		{"_j", 2, "_2", true},
		{"FC_jet", 1, "FC_jet", false},
		{"FC", 1, "FC", false},
		{"a_j_j", 1, "a_j_j", false},
	}
	for _, tt := range tests {
		got, ok := calc.IndexName(tt.name, tt.i)
		assert.Equal(t, tt.want, got, tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
	}
	assert.True(t, calc.IsIndexed("FC_j"))
	assert.False(t, calc.IsIndexed("FC_jet"))
}

func TestIndexItem(t *testing.T) {
	got := calc.IndexItem(map[string]float64{"FC_j": 1, "EF": 2}, 3)
	require.Equal(t, calc.Bindings{"FC_3": 1, "EF": 2}, got)
}
