package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/hpnssflw/voicekeeper/internal/api"
)

var version = "dev"

var (
	noColor bool
	userID  string
)

var rootCmd = &cobra.Command{
	Use:           "voicekeeper",
	Short:         "Learn an author's writing style and write posts in that voice",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if os.Getenv("NO_COLOR") != "" {
			noColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&userID, "user", api.DefaultMCPUser, "user the command acts for")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(jobCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
