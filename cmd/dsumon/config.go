package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dsumotion/pkg/config"
)

func newConfigCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use: "config",

		Short: "Create or check the config file",
	}

	cmd.AddCommand(
		newConfigInitCmd(root),
		newConfigCheckCmd(root),
	)

	return cmd
}

func newConfigInitCmd(root *rootFlags) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use: "init",

		Short: "Write a config file with default values",

		Long: `init writes every setting with its default value to --config. The format
follows the extension: YAML for .yaml and .yml, TOML otherwise.
`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			path := root.configPath
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			file := config.DefaultFile()
			if err := file.Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	return cmd
}

func newConfigCheckCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use: "check",

		Short: "Parse and validate the config file",

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			path := root.configPath
			file, err := config.Load(path)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("%s: %w", path, err)
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: ok\n", path)
			fmt.Fprintf(out, "  server    %s (pad %d, auto_connect %t)\n", file.DSU.Endpoint(), file.DSU.PadID, file.DSU.AutoConnect)
			fmt.Fprintf(out, "  foxglove  %s\n", enabled(file.Foxglove.Enabled, file.Foxglove.WSAddr))
			fmt.Fprintf(out, "  mqtt      %s\n", enabled(file.MQTT.Enabled, file.MQTT.URL))
			fmt.Fprintf(out, "  jsonl     %s\n", enabled(file.Log.JSONL != "", file.Log.JSONL))
			return nil
		},
	}
}

func enabled(on bool, detail string) string {
	if !on {
		return "off"
	}
	return detail
}
