// blueprintctl requests engagement blueprints from a running gateway and
// reports their status.
//
// Usage:
//
//	blueprintctl request --engagement=<id> [--tone=<tone>] [--prompt=<text>] [--select=source:id:name]...
//	blueprintctl status <blueprint-id> [--watch]
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"blueprint/internal/blueprint"
	"blueprint/internal/gateway/handler/rpc"
)

var version = "dev"

var rootFlags struct {
	server string
	user   string
	email  string
}

var rootCmd = &cobra.Command{
	Use:   "blueprintctl",
	Short: "Request and inspect engagement blueprints",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.server, "server", envOr("BLUEPRINT_SERVER", "http://localhost:8081"), "gateway base URL")
	f.StringVar(&rootFlags.user, "user", os.Getenv("BLUEPRINT_USER"), "caller user id")
	f.StringVar(&rootFlags.email, "email", "", "caller email")

	rootCmd.AddCommand(requestCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.Version = version
}

func newClient() *rpc.BlueprintClient {
	return rpc.NewBlueprintClient(&http.Client{Timeout: 90 * time.Second}, rootFlags.server, blueprint.Requester{
		UserID: rootFlags.user,
		Email:  rootFlags.email,
	})
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
