// Dunning recognizes and classifies debtor replies to collection calls.
//
// Usage:
//
//	dunning serve --config /path/to/dunning.yaml
//	dunning classify --lang auto "Заплачу завтра"
//	dunning detect "Ертең төлеймін"
//	dunning check-audio reply.wav
//	dunning version
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nadzzz/dunning/internal/config"
	"github.com/nadzzz/dunning/internal/lexicon"
)

// version is set at build time via ldflags.
var version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "dunning",
	Short: "Debtor reply recognition and classification",
	Long: `Dunning transcribes a debtor's spoken reply to a collection call (Russian or Kazakh)
and sorts it into one of six intents: promise, ignore, help, wrong_number,
third_party or hangup. Run "dunning serve" for the HTTP API, or use the
offline commands to try the lexicon against text and files.`,
	SilenceUsage: true,
}

// @title       dunning API
// @version     1.0
// @description Recognizes and classifies debtor replies to collection calls in Russian and Kazakh.
// @BasePath    /
func main() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./dunning.yaml, ./configs/dunning.yaml, /etc/dunning/dunning.yaml)")

	rootCmd.AddCommand(
		newServeCmd(),
		newClassifyCmd(),
		newDetectCmd(),
		newCheckAudioCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "dunning %s\n", version)
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads configuration and installs the logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	config.SetupLogging(cfg.Logging)
	return cfg, nil
}

// loadLexicon returns the configured lexicon, or the built-in one.
func loadLexicon(cfg *config.Config) (*lexicon.Table, error) {
	if cfg.Lexicon.Path == "" {
		return lexicon.Default()
	}
	return lexicon.Load(cfg.Lexicon.Path)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
