// Command research answers a question by searching the web, reading the
// most promising pages and documents, and synthesizing what it found.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"webresearch/internal/config"
	"webresearch/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Research flags
	maxWeb     int
	maxDocs    int
	runTimeout time.Duration
	asJSON     bool
	noMemory   bool

	// Fetch flags
	fetchConcurrency int
	waitSelector     string
)

// rootCmd runs one research query.
var rootCmd = &cobra.Command{
	Use:   "research [query]",
	Short: "Research a question on the web and synthesize the findings",
	Long: `Runs the research pipeline for a single query:
  1. Plan: ask the language model how to approach the question
  2. Search: query the web search provider
  3. Classify: split hits into web pages and documents, drop the rest
  4. Extract: render pages in a pooled headless browser and download
     documents in parallel, keeping only relevant sources
  5. Synthesize: combine the key points into one answer with a confidence

Example:
  research "quantum computing error correction" --max-web 5 --max-docs 2`,
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		appConfig = cfg
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
	RunE: runResearch,
}

// fetchCmd fetches URLs through the browser pool without the LLM.
var fetchCmd = &cobra.Command{
	Use:   "fetch [url...]",
	Short: "Fetch and extract pages through the browser pool",
	Long: `Fetches every URL through the worker pool in bounded windows and prints
one status line per URL. No search or language model is involved.

Example:
  research fetch https://go.dev/doc https://example.com --concurrency 2`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFetch,
}

var appConfig *config.Config

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "research.yaml", "Config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print results as JSON")

	rootCmd.Flags().IntVar(&maxWeb, "max-web", 5, "Maximum web pages to read")
	rootCmd.Flags().IntVar(&maxDocs, "max-docs", 2, "Maximum documents to read")
	rootCmd.Flags().DurationVar(&runTimeout, "timeout", 2*time.Minute, "Overall research timeout")
	rootCmd.Flags().BoolVar(&noMemory, "no-memory", false, "Do not recall or store memories")

	fetchCmd.Flags().IntVar(&fetchConcurrency, "concurrency", 3, "URLs fetched per window")
	fetchCmd.Flags().StringVar(&waitSelector, "wait", "", "CSS selector to wait for before extracting")

	rootCmd.AddCommand(fetchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

// loadConfig reads the config file, applies explicitly set flags, validates
// the result and initializes logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logging.Init(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Categories: cfg.Logging.Categories,
		Outputs:    logOutputs(cfg.Logging.File),
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logging.Boot("config loaded from %s", configPath)
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("max-web") {
		cfg.Pipeline.MaxWebPages = maxWeb
	}
	if flags.Changed("max-docs") {
		cfg.Pipeline.MaxDocuments = maxDocs
	}
	if flags.Changed("timeout") {
		cfg.Pipeline.Timeout = runTimeout.String()
	}
	if flags.Changed("no-memory") && noMemory {
		cfg.Memory.Enabled = false
	}
	if flags.Changed("concurrency") {
		cfg.Pipeline.BatchConcurrency = fetchConcurrency
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
}

func logOutputs(file string) []string {
	if file == "" {
		return nil
	}
	return []string{file}
}
