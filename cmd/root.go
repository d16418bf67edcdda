package cmd

import (
	"fmt"
	"os"

	"github.com/flanksource/clicky"
	"github.com/spf13/cobra"

	"github.com/webcomponents/catalog/pkg/config"
)

var (
	configFile string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "catalog",
	Short: "The web components catalog ingestion service",
	Long: `catalog ingests web component libraries from GitHub and the npm
registry, versions them, and maintains the search index behind the catalog.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		clicky.Flags.UseFlags()

		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	clicky.BindAllFlags(rootCmd.PersistentFlags(), "tasks", "!format")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to catalog.yaml config file")
}
