package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tunedrift/tunedrift/internal/config"
)

var (
	initOutput    string
	initOverwrite bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteFile(config.Default(), initOutput, initOverwrite); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", initOutput)
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVarP(&initOutput, "output", "o", "config.yaml", "Where to write the config file")
	configInitCmd.Flags().BoolVar(&initOverwrite, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
}
