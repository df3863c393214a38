package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/origin-cli/internal/hscode"
	"github.com/sells-group/origin-cli/internal/registry"
)

var lookupID string

var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Query the reference data",
}

var lookupManufacturerCmd = &cobra.Command{
	Use:   "manufacturer [name]",
	Short: "Find a manufacturer by name or --id",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := loadSnapshot(cmd)
		if err != nil {
			return err
		}
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		printManufacturer(cmd.OutOrStdout(), snap.Manufacturers, name, lookupID)
		return nil
	},
}

var lookupHSCmd = &cobra.Command{
	Use:   "hs <code>",
	Short: "Validate and describe an HS code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := loadSnapshot(cmd)
		if err != nil {
			return err
		}
		printHSCode(cmd.OutOrStdout(), snap.HSCodes, args[0], cfg.Agreement.CriticalHeading)
		return nil
	},
}

var lookupRulesCmd = &cobra.Command{
	Use:   "rules <hs_code>",
	Short: "Show the FTA rule set applied to an HS code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := loadSnapshot(cmd)
		if err != nil {
			return err
		}
		printRules(cmd.OutOrStdout(), snap.Rules, args[0])
		return nil
	},
}

func init() {
	lookupManufacturerCmd.Flags().StringVar(&lookupID, "id", "", "manufacturer identifier")
	lookupCmd.AddCommand(lookupManufacturerCmd, lookupHSCmd, lookupRulesCmd)
	rootCmd.AddCommand(lookupCmd)
}

// loadSnapshot reads the reference tables without opening the store.
func loadSnapshot(cmd *cobra.Command) (registry.Snapshot, error) {
	if err := cfg.Validate("lookup"); err != nil {
		return registry.Snapshot{}, err
	}
	return newReference(cfg.Reference).Snapshot(cmd.Context())
}

func printManufacturer(w io.Writer, t *registry.ManufacturerTable, name, id string) {
	res := t.Lookup(name, id)
	if !res.Found {
		fmt.Fprintln(w, "not found in reference list")
		return
	}
	m := res.Match
	fmt.Fprintf(w, "ID:       %s\n", orNA(m.ManufacturerID))
	fmt.Fprintf(w, "Name:     %s\n", m.Name)
	fmt.Fprintf(w, "Country:  %s (%s)\n", orNA(m.Country), orNA(m.CountryCode))
	fmt.Fprintf(w, "Vietnam:  %t\n", res.IsVietnam)
}

func printHSCode(w io.Writer, t *hscode.Table, code, critical string) {
	n := hscode.Normalize(code)
	fmt.Fprintf(w, "Code:        %s\n", n)
	if !t.IsValid(code) {
		fmt.Fprintln(w, "Valid:       false")
		return
	}
	heading, _ := t.Heading(code)
	fmt.Fprintln(w, "Valid:       true")
	fmt.Fprintf(w, "Heading:     %s\n", heading)
	fmt.Fprintf(w, "Description: %s\n", t.Describe(code))
	fmt.Fprintf(w, "Critical:    %t (heading %s)\n", t.IsHeading(code, critical), critical)
}

func printRules(w io.Writer, t *registry.RuleTable, code string) {
	rs := t.RulesFor(code)
	fmt.Fprintf(w, "Rule set:    %s\n", rs.Key)
	fmt.Fprintf(w, "Description: %s\n", orNA(rs.Description))
	fmt.Fprintf(w, "Threshold:   %g%%\n", t.ThresholdFor(code))
	if len(rs.Rules) > 0 {
		fmt.Fprintf(w, "Rules:\n  - %s\n", strings.Join(rs.Rules, "\n  - "))
	}
}
