package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/webcomponents/catalog/pkg/datastore"
	"github.com/webcomponents/catalog/pkg/ingest"
)

var addCmd = &cobra.Command{
	Use:   "add owner/repo ...",
	Short: "Queue libraries for ingestion",
	Long: `add queues one or more GitHub repositories for ingestion. The
running serve process picks the work up from the task outbox.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := datastore.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		service := ingest.NewService(store, nil, nil, nil, nil)
		for _, arg := range args {
			owner, repo, ok := strings.Cut(arg, "/")
			if !ok {
				return fmt.Errorf("invalid library %q: expected owner/repo", arg)
			}
			if err := service.AddLibrary(cmd.Context(), owner, repo); err != nil {
				return err
			}
			fmt.Printf("queued %s\n", datastore.LibraryID(owner, repo))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
}
