package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var errCheckFailed = errors.New("contract check failed")

var checkStrict bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate and build every declared contract",
	Long: `Validate every contract declared on the registry and then build each one.

A contract with no factory is reported as missing. Missing contracts fail
the check only with --strict or when the strict-contracts flag is on.
A factory that fails to build always fails the check.

Examples:
  registrar check
  registrar check --strict`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkStrict, "strict", false, "fail when any contract has no factory")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	r, app, err := newApp()
	if err != nil {
		return err
	}
	defer shutdown(r, app)

	rep := app.Check(cmd.Context(), checkStrict)

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "%d contract(s) checked\n", rep.Contracts)
	for _, m := range rep.Missing {
		_, _ = fmt.Fprintf(out, "missing  %s\n", m)
	}
	for _, f := range rep.Failures {
		_, _ = fmt.Fprintf(out, "failed   %s\n", f)
	}
	if !rep.OK() {
		return errCheckFailed
	}
	_, _ = fmt.Fprintln(out, "ok")
	return nil
}
