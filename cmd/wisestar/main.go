package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "wisestar",
	Short:         "WiseStar math tutor",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(interactionsCmd)
	rootCmd.AddCommand(dailyCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	// A missing .env is normal; the environment and config file still apply.
	_ = godotenv.Load(".env")

	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		noColor = true
	}

	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
