package grid_test

import (
	"testing"

	"ghgcalc/internal/calc"
	"ghgcalc/internal/grid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_Items(t *testing.T) {
	tb := grid.NewTable("Sum_Block_1", []string{"EF_j", "FC_j"}, 2)
	tb.Set(0, 0, "10")
	tb.Set(0, 1, " 1.5 ")
	tb.Set(1, 0, "20")
	tb.Set(1, 1, "2")

	items, err := tb.Items()
	require.NoError(t, err)
	require.Equal(t, []calc.Bindings{
		{"EF_1": 10, "FC_1": 1.5},
		{"EF_2": 20, "FC_2": 2},
	}, items)

	v, err := calc.AggregateSumBlock("FC_j * EF_j", items)
	require.NoError(t, err)
	require.Equal(t, 55.0, v)
}

func TestTable_ItemsReportsCell(t *testing.T) {
	tb := grid.NewTable("B", []string{"FC_j"}, 2)
	tb.Set(0, 0, "1")

	_, err := tb.Items()
	require.ErrorIs(t, err, calc.ErrIndexedVariableMismatch)
	assert.Contains(t, err.Error(), "FC_2")

	tb.Set(1, 0, "abc")
	_, err = tb.Items()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `FC_2: "abc" is not a number`)

	tb.Set(1, 0, "inf")
	_, err = tb.Items()
	require.ErrorIs(t, err, calc.ErrArithmetic)
	assert.Contains(t, err.Error(), "FC_2")
}

func TestTable_ResizeAndColumns(t *testing.T) {
	tb := grid.NewTable("B", []string{"a_j", "b_j"}, 3)
	tb.Set(2, 0, "1")
	tb.Set(0, 1, "2")

	tb.Resize(2)
	assert.Equal(t, "", tb.Get(2, 0))
	assert.Equal(t, 1, tb.Filled())

	tb.SetColumns([]string{"b_j", "c_j"})
	assert.Equal(t, "2", tb.Get(0, 0))
	assert.Equal(t, "", tb.Get(0, 1))

	tb.Set(4, 0, "7")
	assert.Equal(t, 5, tb.Rows)

	tb.Set(0, 0, "")
	assert.Equal(t, "", tb.Get(0, 0))
}

func TestTable_CellNameAndLookup(t *testing.T) {
	tb := grid.NewTable("B", []string{"FC_j", "EF_j_CO2"}, 3)
	assert.Equal(t, "FC_1", tb.CellName(0, 0))
	assert.Equal(t, "EF_3_CO2", tb.CellName(1, 2))

	r, c, ok := tb.Lookup("EF_2_CO2")
	require.True(t, ok)
	assert.Equal(t, 1, r)
	assert.Equal(t, 1, c)

	_, _, ok = tb.Lookup("FC_9")
	assert.False(t, ok)
}
