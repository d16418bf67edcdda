package cmd

import (
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/webcomponents/catalog/pkg/httpclient"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a one-use mutation token from the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := httpclient.Get()
		resp, err := client.Get(cfg.BaseURL + "/manage/token")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server answered %d", resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		fmt.Print(string(body))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
