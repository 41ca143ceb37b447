package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"aiclone/client"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	timeout   time.Duration

	api *client.Client
)

var rootCmd = &cobra.Command{
	Use:   "clonectl",
	Short: "Manage personas and generate conversations",
	Long: `clonectl talks to a running clone API server.

The server URL defaults to $CLONE_SERVER_URL, then http://localhost:8001.

Examples:
  clonectl health
  clonectl users create -f alice.yaml
  clonectl converse user_alice user_bob --topic "weekend plans"
  clonectl smoke`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		api = client.New(serverURL, timeout)
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the server is up",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := api.Health(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", h.Status, h.Message)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "API server URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "per-request timeout")

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(converseCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(smokeCmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
