package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/origin-cli/internal/model"
	"github.com/sells-group/origin-cli/internal/report"
	"github.com/sells-group/origin-cli/internal/store"
)

var (
	casesResult    string
	casesCompleted string
	casesLimit     int
	casesJSON      bool
	exportOut      string
)

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "List stored analysis cases",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := caseFilter(casesResult, casesCompleted, casesLimit)
		if err != nil {
			return err
		}

		env, err := initEnv(cmd.Context(), "analyze")
		if err != nil {
			return err
		}
		defer env.Close()

		list, err := env.Store.ListCases(cmd.Context(), f)
		if err != nil {
			return eris.Wrap(err, "list cases")
		}
		if casesJSON {
			return printJSON(cmd.OutOrStdout(), list)
		}
		printCaseTable(cmd.OutOrStdout(), list)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show the status of one case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "analyze")
		if err != nil {
			return err
		}
		defer env.Close()

		c, err := env.Store.GetCase(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrapf(err, "get case %s", args[0])
		}
		return printJSON(cmd.OutOrStdout(), c.Status())
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a case with its steps and materials",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "analyze")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.DeleteCase(cmd.Context(), args[0]); err != nil {
			return eris.Wrapf(err, "delete case %s", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Write the XLSX report for a completed case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "analyze")
		if err != nil {
			return err
		}
		defer env.Close()

		c, err := env.Store.GetCase(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrapf(err, "get case %s", args[0])
		}
		if !c.Completed {
			return eris.Errorf("case %s is not completed", c.ID)
		}
		mats, err := env.Store.ListMaterials(cmd.Context(), c.ID)
		if err != nil {
			return eris.Wrap(err, "list materials")
		}

		out := exportOut
		if out == "" {
			out = report.Filename(c)
		}
		if err := writeReportFile(out, c, mats); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
		return nil
	},
}

func init() {
	casesCmd.Flags().StringVar(&casesResult, "result", "", "filter by result (originating, non_originating, incomplete, error)")
	casesCmd.Flags().StringVar(&casesCompleted, "completed", "", "filter by completion (true/false)")
	casesCmd.Flags().IntVar(&casesLimit, "limit", 50, "max cases to list")
	casesCmd.Flags().BoolVar(&casesJSON, "json", false, "print cases as JSON")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (default origin_analysis_<id>.xlsx)")

	rootCmd.AddCommand(casesCmd, statusCmd, deleteCmd, exportCmd)
}

// caseFilter builds a store filter from the cases command flags.
func caseFilter(result, completed string, limit int) (store.CaseFilter, error) {
	f := store.CaseFilter{Limit: limit}
	if result != "" {
		v := model.Verdict(result)
		if !v.Valid() {
			return f, eris.Errorf("invalid --result %q", result)
		}
		f.Verdict = v
	}
	switch completed {
	case "":
	case "true":
		t := true
		f.Completed = &t
	case "false":
		b := false
		f.Completed = &b
	default:
		return f, eris.Errorf("invalid --completed %q (want true or false)", completed)
	}
	if limit < 0 {
		return f, eris.Errorf("invalid --limit %d", limit)
	}
	return f, nil
}

func printCaseTable(w io.Writer, list []model.AnalysisCase) {
	if len(list) == 0 {
		fmt.Fprintln(w, "no cases")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILE\tSUBMITTED\tRESULT\tLAST STEP")
	for _, c := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
			c.ID, c.Filename, c.SubmittedAt.Format("2006-01-02 15:04"), c.Verdict.Label(), c.LastStep())
	}
	_ = tw.Flush()
}

func printBatch(w io.Writer, results []batchResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "no costing sheets processed")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tCASE\tRESULT\tDETAIL")
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(tw, "%s\t-\tFAILED\t%s\n", r.Path, r.Error)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Path, r.CaseID, r.Verdict.Label(), r.Reason)
	}
	_ = tw.Flush()
}

// writeReportFile writes the XLSX report for c to path.
func writeReportFile(path string, c *model.AnalysisCase, mats []model.MaterialRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := report.Write(f, c, mats); err != nil {
		_ = f.Close()
		return eris.Wrap(err, "write report")
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "close %s", path)
	}
	return nil
}
