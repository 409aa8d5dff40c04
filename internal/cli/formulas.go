package cli

import (
	"fmt"
	"strconv"
	"strings"

	"ghgcalc/internal/calc"

	"github.com/spf13/cobra"
)

func newFormulasCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "formulas",
		Aliases: []string{"f"},
		Short:   "Manage the formula library",
		Long: `Manage saved formula definitions.

The library is a JSON file (library_path in the config). Definitions are
keyed by name; saving an existing name replaces it.`,
	}
	cmd.AddCommand(
		newFormulasListCmd(opts),
		newFormulasShowCmd(opts),
		newFormulasSaveCmd(opts),
		newFormulasDeleteCmd(opts),
		newFormulasRunCmd(opts),
	)
	return cmd
}

func newFormulasListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved formulas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defs, err := opts.lib.LoadAll(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(defs) == 0 {
				fmt.Fprintln(w, Dim.Render("no formulas in "+opts.lib.Path()))
				return nil
			}
			for _, d := range defs {
				fmt.Fprintf(w, "%s  %s\n", Bold.Render(d.Name), d.MainFormula)
				for _, b := range d.SumBlocks {
					fmt.Fprintln(w, Dim.Render(fmt.Sprintf("    %s = Σ(%s), %d items", b.Name, b.Expression, b.ItemCount)))
				}
			}
			return nil
		},
	}
}

func newFormulasShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a formula and the variables it needs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := opts.lib.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s\n  %s\n", Bold.Render(def.Name), def.MainFormula)
			for _, b := range def.SumBlocks {
				fmt.Fprintf(w, "  %s = Σ(%s) over %d items\n", b.Name, b.Expression, b.ItemCount)
			}
			a, err := def.Analyze()
			if err != nil {
				printWarning(w, "definition does not validate: %v", err)
				return nil
			}
			if len(a.Scalars) > 0 {
				fmt.Fprintf(w, "variables: %s\n", strings.Join(a.Scalars, ", "))
			}
			for _, b := range a.Blocks {
				fmt.Fprintf(w, "item variables of %s: %s\n", b.Name, strings.Join(b.Indexed, ", "))
			}
			for _, name := range a.Unused {
				printWarning(w, "sum block %s is not used by the main formula", name)
			}
			return nil
		},
	}
}

func newFormulasSaveCmd(opts *options) *cobra.Command {
	var name, main string
	var blocks []string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save a formula definition",
		Long: `Validate and save a formula definition, replacing one with the same name.

Example:
  ghgcalc formulas save --name "Fuel combustion" \
      --main "E_CO2_y = Sum_Block_1 * GWP" \
      --block "Sum_Block_1:3:FC_j * EF_j"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			def := calc.FormulaDefinition{Name: name, MainFormula: main, SumBlocks: []calc.SumBlock{}}
			for _, spec := range blocks {
				b, err := parseBlockSpec(spec)
				if err != nil {
					return err
				}
				def.SumBlocks = append(def.SumBlocks, b)
			}
			if err := opts.lib.Save(cmd.Context(), def); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s saved %s to %s\n", SuccessPrefix, def.Name, opts.lib.Path())
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "formula name (required)")
	cmd.Flags().StringVar(&main, "main", "", "main formula, optionally \"LABEL = expression\" (required)")
	cmd.Flags().StringArrayVar(&blocks, "block", nil, "sum block NAME:COUNT:TEMPLATE (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("main")
	return cmd
}

// parseBlockSpec parses NAME:COUNT:TEMPLATE.
func parseBlockSpec(spec string) (calc.SumBlock, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) != 3 {
		return calc.SumBlock{}, usageError(fmt.Sprintf("--block %q: want NAME:COUNT:TEMPLATE", spec))
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return calc.SumBlock{}, usageError(fmt.Sprintf("--block %q: item count %q is not a number", spec, parts[1]))
	}
	return calc.SumBlock{
		Name:       strings.TrimSpace(parts[0]),
		Expression: strings.TrimSpace(parts[2]),
		ItemCount:  n,
	}, nil
}

func newFormulasDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a saved formula",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.lib.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s deleted %s\n", SuccessPrefix, args[0])
			return nil
		},
	}
}

func newFormulasRunCmd(opts *options) *cobra.Command {
	var sets, items, files []string
	cmd := &cobra.Command{
		Use:   "run <name>",
		Short: "Evaluate a saved formula",
		Long: `Evaluate a saved formula. Scalars come from --set, sum block items from
--items BLOCK=FILE.csv (header row of _j names, one item per row) or from
--item BLOCK:VAR=VALUE,... flags. Each block needs exactly its item count.

Example:
  ghgcalc formulas run "Fuel combustion" --set GWP=1 --items Sum_Block_1=fuels.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := opts.lib.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			values, err := parseAssignments(sets)
			if err != nil {
				return err
			}
			itemMap, err := parseItems(items)
			if err != nil {
				return err
			}
			if err := loadItemFiles(files, itemMap); err != nil {
				return err
			}
			res, err := def.Evaluate(values, itemMap)
			if err != nil {
				return err
			}
			opts.log.Debug("Formula evaluated.", "name", def.Name, "value", res.Value)
			printResult(cmd.OutOrStdout(), def, res, opts.cfg.Precision)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "bind a variable, NAME=VALUE (repeatable)")
	cmd.Flags().StringArrayVar(&files, "items", nil, "load sum block items from CSV, BLOCK=FILE.csv (repeatable)")
	cmd.Flags().StringArrayVar(&items, "item", nil, "add an item to a sum block, BLOCK:VAR=VALUE,... (repeatable)")
	return cmd
}
