package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pcbuild-agent/cmd/ask"
	"pcbuild-agent/cmd/server"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pcbuild-agent",
	Short: "PC build assistant backed by an LLM reasoning agent",
	Long: `A PC build assistant that turns a natural-language request (budget, use
case) into a component recommendation with reasoning.

The agent grounds its answers with live web search and streams its
intermediate reasoning steps to the client over Server-Sent Events.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.pcbuild-agent.yaml)")
	rootCmd.PersistentFlags().String("provider", "googleai", "LLM provider (googleai, openai, anthropic)")
	rootCmd.PersistentFlags().String("model", "", "LLM model identifier")
	rootCmd.PersistentFlags().Float64("temperature", 1.0, "LLM temperature")
	rootCmd.PersistentFlags().Int("max-iterations", 30, "maximum reasoning iterations per session")

	// Logging flags
	rootCmd.PersistentFlags().String("log-file", "", "log file path (optional)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")

	viper.BindPFlag("provider", rootCmd.PersistentFlags().Lookup("provider"))
	viper.BindPFlag("model", rootCmd.PersistentFlags().Lookup("model"))
	viper.BindPFlag("temperature", rootCmd.PersistentFlags().Lookup("temperature"))
	viper.BindPFlag("max-iterations", rootCmd.PersistentFlags().Lookup("max-iterations"))
	viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(server.ServerCmd)
	rootCmd.AddCommand(ask.AskCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// Load .env file first (if present)
	if err := godotenv.Load(".env"); err != nil {
		if err := godotenv.Load("../.env"); err != nil {
			fmt.Fprintln(os.Stderr, "No .env file found, using system environment variables")
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".pcbuild-agent")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
