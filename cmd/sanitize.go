// cmd/sanitize.go

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/aegis-security/aegis/pkg/promptguard"
	"github.com/spf13/cobra"
)

var sanitizeCmd = &cobra.Command{
	Use:   "sanitize",
	Short: "Run the content guards over text from stdin",
}

var (
	sanitizeSystem   bool
	sanitizeMask     bool
	sanitizeTruncate bool
	sanitizeFormat   string
)

func init() {
	sanitizePromptCmd.Flags().BoolVar(&sanitizeSystem, "system", false,
		"treat input as a system prompt (strict delimiter handling)")
	sanitizePromptCmd.Flags().BoolVar(&sanitizeMask, "mask-pii", false,
		"mask detected PII in the output")
	sanitizePromptCmd.Flags().BoolVar(&sanitizeTruncate, "truncate", false,
		"truncate over-length prompts instead of blocking")

	sanitizeResponseCmd.Flags().StringVar(&sanitizeFormat, "format", "plain",
		"response format: html, markdown or plain")

	sanitizeCmd.AddCommand(sanitizePromptCmd)
	sanitizeCmd.AddCommand(sanitizeResponseCmd)
}

func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

var sanitizePromptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Check a prompt for injection attempts and PII",
	Args:  cobra.NoArgs,
	RunE: Wrap(func(rc *RuntimeContext, cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime(rc)
		if err != nil {
			return err
		}
		text, err := readStdin()
		if err != nil {
			return err
		}

		var verdict *promptguard.Verdict
		if sanitizeSystem {
			verdict = rt.prompts.SanitizeSystemPrompt(rc.Ctx, text)
		} else {
			verdict = rt.prompts.SanitizePrompt(rc.Ctx, text, promptguard.Options{
				Truncate: sanitizeTruncate,
				MaskPII:  sanitizeMask,
			})
		}

		for _, w := range verdict.Warnings {
			fmt.Fprintf(os.Stderr, "warning: %s: %s\n", w.Code, w.Message)
		}
		if verdict.Blocked {
			return fmt.Errorf("prompt blocked")
		}
		fmt.Print(verdict.Sanitized)
		return nil
	}),
}

var sanitizeResponseCmd = &cobra.Command{
	Use:   "response",
	Short: "Sanitize a provider response for safe rendering",
	Args:  cobra.NoArgs,
	RunE: Wrap(func(rc *RuntimeContext, cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime(rc)
		if err != nil {
			return err
		}
		text, err := readStdin()
		if err != nil {
			return err
		}
		fmt.Print(rt.responses.SanitizeResponse(text, sanitizeFormat))
		return nil
	}),
}
