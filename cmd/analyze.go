package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/origin-cli/internal/model"
	"github.com/sells-group/origin-cli/internal/sheet"
)

var (
	analyzeJSON   bool
	analyzeReport string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Run origin determination on one costing sheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "analyze")
		if err != nil {
			return err
		}
		defer env.Close()

		c, err := analyzeFile(ctx, env, args[0])
		if err != nil {
			return err
		}
		mats, err := env.Store.ListMaterials(ctx, c.ID)
		if err != nil {
			return eris.Wrap(err, "list materials")
		}

		if analyzeReport != "" {
			if err := writeReportFile(analyzeReport, c, mats); err != nil {
				return err
			}
		}
		if analyzeJSON {
			return printJSON(cmd.OutOrStdout(), caseView{AnalysisCase: c, Materials: mats})
		}
		printCase(cmd.OutOrStdout(), c, mats)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the case as JSON")
	analyzeCmd.Flags().StringVar(&analyzeReport, "report", "", "also write the XLSX report to this path")
	rootCmd.AddCommand(analyzeCmd)
}

// analyzeFile loads path and runs it through the engine.
func analyzeFile(ctx context.Context, env *originEnv, path string) (*model.AnalysisCase, error) {
	name := filepath.Base(path)
	if !sheet.Allowed(name) {
		return nil, eris.Errorf("analyze: %s: accepted file types are %s", name, strings.Join(sheet.AllowedExtensions, ", "))
	}
	rows, err := sheet.Load(ctx, path)
	if err != nil {
		return nil, eris.Wrapf(err, "analyze: load %s", name)
	}
	return env.Engine.Analyze(ctx, name, rows)
}

// caseView is the JSON shape printed by the CLI.
type caseView struct {
	*model.AnalysisCase
	Materials []model.MaterialRecord `json:"materials"`
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printCase(w io.Writer, c *model.AnalysisCase, mats []model.MaterialRecord) {
	fmt.Fprintf(w, "Case:          %s\n", c.ID)
	fmt.Fprintf(w, "File:          %s\n", c.Filename)
	fmt.Fprintf(w, "Manufacturer:  %s\n", orNA(c.Manufacturer))
	fmt.Fprintf(w, "Final HS code: %s\n", orNA(c.FinalHSCode))
	fmt.Fprintf(w, "Result:        %s\n", c.Verdict.Label())
	fmt.Fprintf(w, "Reason:        %s\n", orNA(c.Reason))

	if len(c.Steps) > 0 {
		fmt.Fprintln(w, "\nSteps:")
		for _, s := range c.Steps {
			fmt.Fprintf(w, "  %d. %s\n", s.Step, s.Description)
		}
	}
	if len(mats) > 0 {
		fmt.Fprintln(w, "\nProblematic materials:")
		for _, m := range mats {
			cost := "n/a"
			if m.CostPerUnit != nil {
				cost = fmt.Sprintf("%.2f", *m.CostPerUnit)
			}
			fmt.Fprintf(w, "  - %s (%s) HS %s cost %s\n", m.Name, m.CountryOfOrigin, orNA(m.HSCode), cost)
		}
	}
	if len(c.MissingFields) > 0 {
		fmt.Fprintf(w, "\nMissing: %s\n", strings.Join(c.MissingFields, ", "))
	}
	if c.Explanation != "" {
		fmt.Fprintf(w, "\n%s\n", c.Explanation)
	}
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}
