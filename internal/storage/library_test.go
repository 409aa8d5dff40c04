package storage_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"ghgcalc/internal/calc"
	"ghgcalc/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLibrary(t *testing.T) *storage.Library {
	t.Helper()
	return storage.NewLibrary(filepath.Join(t.TempDir(), "formulas.json"), 0, nil)
}

func TestLibrary_RoundTrip(t *testing.T) {
	ctx := context.Background()
	lib := newLibrary(t)

	def := calc.FormulaDefinition{
		Name:        "F",
		MainFormula: "Sum_Block_1 * 2",
		SumBlocks:   []calc.SumBlock{{Name: "Sum_Block_1", Expression: "x_j", ItemCount: 3}},
	}
	require.NoError(t, lib.Save(ctx, def))

	defs, err := lib.LoadAll(ctx)
	require.NoError(t, err)
	require.Equal(t, []calc.FormulaDefinition{def}, defs)
}

func TestLibrary_RoundTripUTF8(t *testing.T) {
	ctx := context.Background()
	lib := newLibrary(t)

	def := calc.FormulaDefinition{
		Name:        "Сжигание топлива CO₂ <котельная>",
		MainFormula: "E_CO2_y = Sum_Block_1 + C",
		SumBlocks:   []calc.SumBlock{{Name: "Sum_Block_1", Expression: "FC_j * EF_j", ItemCount: 2}},
	}
	require.NoError(t, lib.Save(ctx, def))

	raw, err := os.ReadFile(lib.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "CO₂ <котельная>")
	assert.Contains(t, string(raw), `"main_formula"`)
	assert.Contains(t, string(raw), `"item_count": 2`)

	got, err := lib.Get(ctx, def.Name)
	require.NoError(t, err)
	require.Equal(t, def, got)
}

func TestLibrary_UpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	lib := newLibrary(t)

	require.NoError(t, lib.Save(ctx, calc.FormulaDefinition{Name: "b", MainFormula: "x + 1"}))
	require.NoError(t, lib.Save(ctx, calc.FormulaDefinition{Name: "a", MainFormula: "y"}))
	require.NoError(t, lib.Save(ctx, calc.FormulaDefinition{Name: "b", MainFormula: "x + 2"}))

	defs, err := lib.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "a", defs[0].Name)
	assert.Equal(t, "x + 2", defs[1].MainFormula)
	assert.NotNil(t, defs[0].SumBlocks)

	require.NoError(t, lib.Delete(ctx, "a"))
	err = lib.Delete(ctx, "a")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = lib.Get(ctx, "a")
	require.ErrorIs(t, err, storage.ErrNotFound)

	defs, err = lib.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 1)
}

func TestLibrary_MissingFileIsEmpty(t *testing.T) {
	defs, err := newLibrary(t).LoadAll(context.Background())
	require.NoError(t, err)
	require.Empty(t, defs)
}

func TestLibrary_RejectsInvalid(t *testing.T) {
	lib := newLibrary(t)
	err := lib.Save(context.Background(), calc.FormulaDefinition{Name: "bad", MainFormula: "a +"})
	require.ErrorIs(t, err, calc.ErrParse)

	_, statErr := os.Stat(lib.Path())
	require.True(t, os.IsNotExist(statErr))
}

func TestLibrary_CorruptFile(t *testing.T) {
	lib := newLibrary(t)
	require.NoError(t, os.WriteFile(lib.Path(), []byte("{not json"), 0o644))
	_, err := lib.LoadAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing library")
}

func TestLibrary_ConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	lib := newLibrary(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			def := calc.FormulaDefinition{Name: fmt.Sprintf("f%d", i), MainFormula: "a * b"}
			assert.NoError(t, lib.Save(ctx, def))
		}(i)
	}
	wg.Wait()

	defs, err := lib.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 8)
}
