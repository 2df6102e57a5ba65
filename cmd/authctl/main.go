// Command authctl performs operator tasks against the auth service's key
// material, store and cache. It reads the same AUTH_* configuration as the
// server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/shopauth/internal/auth/app"
	"github.com/aussiebroadwan/shopauth/pkg/slogx"
)

func main() {
	var verbose bool

	root := &cobra.Command{
		Use:           "authctl",
		Short:         "Operator tool for the shopauth service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	newLogger := func() *slog.Logger {
		level := "warn"
		if verbose {
			level = "debug"
		}
		return slogx.New(slogx.Config{Service: "authctl", Version: app.BuildVersion, Level: level, Format: "text", Output: os.Stderr})
	}

	root.AddCommand(
		keysCmd(),
		tokenCmd(newLogger),
		usersCmd(newLogger),
		sessionsCmd(newLogger),
		guardCmd(newLogger),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
