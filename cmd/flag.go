package cmd

import (
	"fmt"
	"slices"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zjrosen/registrar/internal/config"
	"github.com/zjrosen/registrar/internal/flags"
)

var flagCmd = &cobra.Command{
	Use:   "flag [name] [on|off]",
	Short: "List or set feature flags",
	Long: `With no arguments, list every known flag and its state.
With a name and a value, write the flag to the config file.

Examples:
  registrar flag
  registrar flag strict-contracts on`,
	Args: cobra.RangeArgs(0, 2),
	RunE: runFlag,
}

func init() {
	rootCmd.AddCommand(flagCmd)
}

func runFlag(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fl := flags.New(cfg.Flags)

	switch len(args) {
	case 0:
		names := flags.Known()
		for name := range fl.All() {
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		for _, name := range names {
			_, _ = fmt.Fprintf(out, "%-24s %s\n", name, onOff(fl.Enabled(name)))
		}
		return nil
	case 1:
		_, _ = fmt.Fprintf(out, "%s %s\n", args[0], onOff(fl.Enabled(args[0])))
		return nil
	}

	value, err := parseOnOff(args[1])
	if err != nil {
		return err
	}
	path := cfgPath
	if path == "" {
		path = config.ProjectConfigPath()
	}

	updated := fl.All()
	updated[args[0]] = value
	if err := config.SaveFlags(path, updated); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "%s %s (%s)\n", args[0], onOff(value), path)
	return nil
}

func parseOnOff(raw string) (bool, error) {
	switch raw {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("flag value must be on or off, got %q", raw)
	}
	return v, nil
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
