package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maauso/mediatools-api/internal/config"
)

type rootOptions struct {
	ffmpegPath string
	sandboxDir string
	verbose    bool
}

// loadConfig reads the environment and applies command line overrides.
// Results always stay in memory; run writes them to disk itself.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.ffmpegPath != "" {
		cfg.FFmpegPath = o.ffmpegPath
	}
	if o.sandboxDir != "" {
		cfg.SandboxDir = o.sandboxDir
	}
	cfg.ResultStore = config.ResultStoreMemory
	cfg.LogLevel = "warn"
	if o.verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "mediactl",
		Short:         "Split, convert and extract media with ffmpeg",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.ffmpegPath, "ffmpeg", "", "Path to the ffmpeg binary (default $FFMPEG_PATH)")
	rootCmd.PersistentFlags().StringVar(&opts.sandboxDir, "sandbox", "", "Engine working directory (default $SANDBOX_DIR)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log engine activity to stderr")

	rootCmd.AddCommand(newToolsCommand())
	rootCmd.AddCommand(newRunCommand(opts))

	return rootCmd
}
