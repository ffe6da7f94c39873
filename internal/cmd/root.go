package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zfogg/daredrop/pkg/config"
	clierrors "github.com/zfogg/daredrop/pkg/errors"
	"github.com/zfogg/daredrop/pkg/logger"
	"github.com/zfogg/daredrop/pkg/output"
)

var (
	verbose     bool
	configPath  string
	outputFmt   string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "daredrop",
	Short: "DareDrop CLI - live dares, challenges and chat",
	Long: `DareDrop CLI is a command-line client for the DareDrop social
challenge platform. Chat in challenge rooms, join live challenges, upload
completion videos and moderate content directly from the terminal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := config.Init(configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing config: %v\n", err)
			os.Exit(1)
		}

		logger.Init(verbose)

		if !output.ValidateOutputFormat(outputFmt) {
			fmt.Fprintf(os.Stderr, "Error: unknown output format %q (use text, json or table)\n", outputFmt)
			os.Exit(1)
		}
		config.Override("output.format", outputFmt)

		if metricsAddr != "" {
			config.Override("metrics.addr", metricsAddr)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, clierrors.FormatError(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ~/.config/daredrop/config.toml)")
	rootCmd.PersistentFlags().StringVar(&outputFmt, "output", "text", "Output format: text, json, table")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address while the command runs")

	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(notificationsCmd)
	rootCmd.AddCommand(challengesCmd)
	rootCmd.AddCommand(moderationCmd)
	rootCmd.AddCommand(daresCmd)
	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(versionCmd)
}
