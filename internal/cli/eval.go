package cli

import (
	"fmt"
	"io"
	"strings"

	"ghgcalc/internal/calc"
	"ghgcalc/internal/storage"

	"github.com/spf13/cobra"
)

func newEvalCmd(opts *options) *cobra.Command {
	var sets, blocks, items []string
	cmd := &cobra.Command{
		Use:   "eval <expression>",
		Short: "Evaluate an expression",
		Long: `Evaluate an arithmetic expression with + - * / ** ^ and parentheses.

Sum blocks are declared with --block NAME:TEMPLATE and fed one item per
--item NAME:VAR=VALUE,... flag. Item variables may use the _j marker
(FC_j=10) or the item's own index (FC_1=10).

Examples:
  ghgcalc eval "a * b + c" --set a=2 --set b=3 --set c=4
  ghgcalc eval "E = S * GWP" --set GWP=25 \
      --block "S:FC_j * EF_j" --item S:FC_j=10,EF_j=2 --item S:FC_j=5,EF_j=3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseAssignments(sets)
			if err != nil {
				return err
			}
			def := calc.FormulaDefinition{Name: "eval", MainFormula: args[0]}
			for _, spec := range blocks {
				name, template, ok := strings.Cut(spec, ":")
				if !ok {
					return usageError(fmt.Sprintf("--block %q: want NAME:TEMPLATE", spec))
				}
				def.SumBlocks = append(def.SumBlocks, calc.SumBlock{
					Name:       strings.TrimSpace(name),
					Expression: strings.TrimSpace(template),
				})
			}
			itemMap, err := parseItems(items)
			if err != nil {
				return err
			}
			if len(def.SumBlocks) == 0 {
				if len(itemMap) > 0 {
					return usageError("--item given without --block")
				}
				v, err := calc.Evaluate(def.Expression(), values)
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), def, calc.Result{Value: v}, opts.cfg.Precision)
				return nil
			}
			for i := range def.SumBlocks {
				def.SumBlocks[i].ItemCount = len(itemMap[def.SumBlocks[i].Name])
				if def.SumBlocks[i].ItemCount == 0 {
					return &calc.EmptyBlockError{Block: def.SumBlocks[i].Name}
				}
			}
			res, err := def.Evaluate(values, itemMap)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), def, res, opts.cfg.Precision)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "bind a variable, NAME=VALUE (repeatable)")
	cmd.Flags().StringArrayVar(&blocks, "block", nil, "declare a sum block, NAME:TEMPLATE (repeatable)")
	cmd.Flags().StringArrayVar(&items, "item", nil, "add an item to a sum block, NAME:VAR=VALUE,... (repeatable)")
	return cmd
}

func newVarsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vars <expression>",
		Short: "List the variables an expression references",
		Long: `Print the distinct variable names of an expression, one per line, sorted.
The scan is lexical, so a malformed expression still lists its names.
The label of "LABEL = expression" is not a variable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, rhs := calc.SplitAssignment(args[0])
			for _, name := range calc.Variables(rhs) {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

// parseAssignments turns NAME=VALUE flags into bindings.
func parseAssignments(pairs []string) (calc.Bindings, error) {
	b := calc.Bindings{}
	for _, p := range pairs {
		name, v, err := parseAssignment(p)
		if err != nil {
			return nil, err
		}
		b[name] = v
	}
	return b, nil
}

func parseAssignment(p string) (string, float64, error) {
	name, text, ok := strings.Cut(p, "=")
	name = strings.TrimSpace(name)
	if !ok || !calc.IsIdentifier(name) {
		return "", 0, usageError(fmt.Sprintf("%q: want NAME=VALUE", p))
	}
	v, err := calc.ParseValue(name, text)
	if err != nil {
		return "", 0, err
	}
	return name, v, nil
}

// parseItems groups BLOCK:VAR=VALUE,... flags by block, in flag order.
func parseItems(flags []string) (map[string][]calc.Bindings, error) {
	items := map[string][]calc.Bindings{}
	for _, f := range flags {
		block, rest, ok := strings.Cut(f, ":")
		block = strings.TrimSpace(block)
		if !ok || block == "" {
			return nil, usageError(fmt.Sprintf("--item %q: want BLOCK:VAR=VALUE,...", f))
		}
		row := map[string]float64{}
		for _, p := range strings.Split(rest, ",") {
			if strings.TrimSpace(p) == "" {
				continue
			}
			name, v, err := parseAssignment(p)
			if err != nil {
				return nil, fmt.Errorf("--item %s: %w", block, err)
			}
			row[name] = v
		}
		items[block] = append(items[block], calc.IndexItem(row, len(items[block])+1))
	}
	return items, nil
}

// loadItemFiles reads BLOCK=FILE.csv flags into item lists.
func loadItemFiles(flags []string, items map[string][]calc.Bindings) error {
	for _, f := range flags {
		block, file, ok := strings.Cut(f, "=")
		block = strings.TrimSpace(block)
		if !ok || block == "" {
			return usageError(fmt.Sprintf("--items %q: want BLOCK=FILE.csv", f))
		}
		if _, dup := items[block]; dup {
			return usageError(fmt.Sprintf("items for sum block %s given twice", block))
		}
		t, err := storage.LoadCSV(block, strings.TrimSpace(file))
		if err != nil {
			return err
		}
		list, err := t.Items()
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		items[block] = list
	}
	return nil
}

func printResult(w io.Writer, def calc.FormulaDefinition, res calc.Result, precision int) {
	value := calc.FormatNumber(res.Value, precision)
	if label := def.Label(); label != "" {
		fmt.Fprintf(w, "%s = %s\n", label, Bold.Render(value))
	} else {
		fmt.Fprintln(w, value)
	}
	for _, name := range def.BlockNames() {
		v, ok := res.Blocks[name]
		if !ok {
			continue
		}
		fmt.Fprintln(w, Dim.Render(fmt.Sprintf("  %s = %s", name, calc.FormatNumber(v, precision))))
	}
}
