// cmd/root.go

package cmd

import (
	"fmt"
	"os"

	"github.com/aegis-security/aegis/pkg/aegis_err"
	"github.com/aegis-security/aegis/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

// RootCmd is the base command for aegis.
var RootCmd = &cobra.Command{
	Use:   "aegis",
	Short: "Credential vault and content-safety layer for LLM integrations",
	Long: `Aegis stores provider credentials encrypted at rest, gates requests on
permissions and quotas, keeps an append-only audit trail, and sanitizes
prompts and responses on their way through.`,
	SilenceUsage: true,
	RunE: Wrap(func(rc *RuntimeContext, cmd *cobra.Command, args []string) error {
		return cmd.Help()
	}),
}

// RegisterCommands adds all subcommands to the root command.
func RegisterCommands() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to a YAML configuration file (AEGIS_* env vars apply on top)")

	for _, sub := range []*cobra.Command{
		secretCmd,
		auditCmd,
		sanitizeCmd,
	} {
		RootCmd.AddCommand(sub)
	}
}

// Execute runs the root command.
func Execute() {
	defer logger.Sync()

	// Missing .env is fine; it only exists in development checkouts.
	_ = godotenv.Load()

	RegisterCommands()

	if err := RootCmd.Execute(); err != nil {
		if kind, ok := aegis_err.KindOf(err); ok {
			logger.L().Warn("Command completed with a classified error",
				zap.String("kind", kind.String()), zap.Error(err))
		} else {
			logger.L().Error("Command failed", zap.Error(err))
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
