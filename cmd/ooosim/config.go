package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/ooosim/timing/pipeline"
)

var configOut string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print or save the default core configuration.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config := pipeline.DefaultConfig()

		if configOut != "" {
			return config.SaveConfig(configOut)
		}

		data, err := json.MarshalIndent(config, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to serialize core config: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	configCmd.Flags().StringVarP(&configOut, "out", "o", "", "write the configuration to this file")
}
