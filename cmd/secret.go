// cmd/secret.go

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage encrypted provider credentials",
}

var secretScope string

func init() {
	secretCmd.PersistentFlags().StringVar(&secretScope, "scope", "global",
		"credential scope (global, tenant:<id> or user:<id>)")

	secretCmd.AddCommand(secretStoreCmd)
	secretCmd.AddCommand(secretGetCmd)
	secretCmd.AddCommand(secretRotateCmd)
	secretCmd.AddCommand(secretDeleteCmd)
	secretCmd.AddCommand(secretListCmd)
}

// readSecret takes the credential from stdin so it never appears in argv or
// shell history.
func readSecret() (string, error) {
	fmt.Fprint(os.Stderr, "Enter secret value: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read secret from stdin: %w", err)
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return "", fmt.Errorf("empty secret")
	}
	return secret, nil
}

var secretStoreCmd = &cobra.Command{
	Use:   "store <provider>",
	Short: "Encrypt and store a new credential",
	Args:  cobra.ExactArgs(1),
	RunE: Wrap(func(rc *RuntimeContext, cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime(rc)
		if err != nil {
			return err
		}
		secret, err := readSecret()
		if err != nil {
			return err
		}
		if err := rt.vault.Store(rc.Ctx, args[0], secretScope, secret, nil); err != nil {
			return err
		}
		rc.Log.Info("Credential stored",
			zap.String("provider", args[0]), zap.String("scope", secretScope))
		fmt.Printf("Stored credential for %s (%s)\n", args[0], secretScope)
		return nil
	}),
}

var secretGetCmd = &cobra.Command{
	Use:   "get <provider>",
	Short: "Decrypt and print a credential",
	Args:  cobra.ExactArgs(1),
	RunE: Wrap(func(rc *RuntimeContext, cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime(rc)
		if err != nil {
			return err
		}
		secret, err := rt.vault.Retrieve(rc.Ctx, args[0], secretScope)
		if err != nil {
			return err
		}
		fmt.Println(secret)
		return nil
	}),
}

var secretRotateCmd = &cobra.Command{
	Use:   "rotate <provider>",
	Short: "Replace an existing credential with a new value",
	Args:  cobra.ExactArgs(1),
	RunE: Wrap(func(rc *RuntimeContext, cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime(rc)
		if err != nil {
			return err
		}
		secret, err := readSecret()
		if err != nil {
			return err
		}
		if err := rt.vault.Rotate(rc.Ctx, args[0], secretScope, secret); err != nil {
			return err
		}
		fmt.Printf("Rotated credential for %s (%s)\n", args[0], secretScope)
		return nil
	}),
}

var secretDeleteCmd = &cobra.Command{
	Use:   "delete <provider>",
	Short: "Soft-delete a credential",
	Args:  cobra.ExactArgs(1),
	RunE: Wrap(func(rc *RuntimeContext, cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime(rc)
		if err != nil {
			return err
		}
		if err := rt.vault.Delete(rc.Ctx, args[0], secretScope); err != nil {
			return err
		}
		fmt.Printf("Deleted credential for %s (%s)\n", args[0], secretScope)
		return nil
	}),
}

// listScopeFilter returns the scope filter for the list subcommand: every
// scope unless the operator explicitly narrowed it with --scope.
func listScopeFilter(cmd *cobra.Command) string {
	if cmd.Flags().Changed("scope") {
		return secretScope
	}
	return ""
}

var secretListCmd = &cobra.Command{
	Use:   "list",
	Short: "List credentials across all scopes (metadata only, never secret values)",
	Args:  cobra.NoArgs,
	RunE: Wrap(func(rc *RuntimeContext, cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime(rc)
		if err != nil {
			return err
		}
		infos, err := rt.vault.List(rc.Ctx, listScopeFilter(cmd))
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PROVIDER\tSCOPE\tCREATED\tLAST ROTATED")
		for _, info := range infos {
			rotated := "never"
			if info.LastRotatedAt != nil {
				rotated = info.LastRotatedAt.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				info.Provider, info.Scope,
				info.CreatedAt.Format("2006-01-02 15:04"), rotated)
		}
		return w.Flush()
	}),
}
