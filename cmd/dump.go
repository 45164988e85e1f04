package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/registrar/internal/log"
)

var dumpBuild bool

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the registry state as YAML",
	Long: `Print factories, objects, contracts and addon counts as YAML.

With --build every contract is built first so the objects section shows
what the process would hold after startup. Build failures are logged and
the dump is still printed.`,
	RunE: runDump,
}

func init() {
	dumpCmd.Flags().BoolVar(&dumpBuild, "build", false, "build every contract before dumping")
	rootCmd.AddCommand(dumpCmd)
}

func runDump(cmd *cobra.Command, _ []string) error {
	r, app, err := newApp()
	if err != nil {
		return err
	}
	defer shutdown(r, app)

	if dumpBuild {
		if err := r.TestAllContracts(cmd.Context()); err != nil {
			log.Warn(log.CatCLI, "build before dump failed", "error", err)
		}
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(r.Snapshot()); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return enc.Close()
}
