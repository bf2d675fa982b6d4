// cmd/audit.go

package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/aegis-security/aegis/pkg/audit"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query and maintain the security audit trail",
}

var (
	auditEventType string
	auditSeverity  string
	auditActorID   string
	auditSinceStr  string
	auditLimit     int
)

func init() {
	auditQueryCmd.Flags().StringVar(&auditEventType, "event-type", "", "filter by event type")
	auditQueryCmd.Flags().StringVar(&auditSeverity, "severity", "", "filter by exact severity")
	auditQueryCmd.Flags().StringVar(&auditActorID, "actor", "", "filter by actor id")
	auditQueryCmd.Flags().StringVar(&auditSinceStr, "since", "", "only events after this RFC3339 timestamp")
	auditQueryCmd.Flags().IntVar(&auditLimit, "limit", 50, "maximum events to return")

	auditCmd.AddCommand(auditQueryCmd)
	auditCmd.AddCommand(auditAnonymizeCmd)
	auditCmd.AddCommand(auditCleanupCmd)
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "List audit events, newest first",
	Args:  cobra.NoArgs,
	RunE: Wrap(func(rc *RuntimeContext, cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime(rc)
		if err != nil {
			return err
		}

		filter := audit.Filter{
			EventType: audit.EventType(auditEventType),
			Severity:  audit.Severity(auditSeverity),
			ActorID:   auditActorID,
			Limit:     auditLimit,
		}
		if auditSinceStr != "" {
			since, err := time.Parse(time.RFC3339, auditSinceStr)
			if err != nil {
				return fmt.Errorf("invalid --since timestamp: %w", err)
			}
			filter.Since = since
		}

		events, err := rt.trail.Query(rc.Ctx, filter)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tTYPE\tSEVERITY\tACTOR\tMESSAGE")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				e.CreatedAt.Format(time.RFC3339), e.EventType, e.Severity,
				e.ActorID, e.Message)
		}
		return w.Flush()
	}),
}

var auditAnonymizeCmd = &cobra.Command{
	Use:   "anonymize",
	Short: "Strip actor identity from events past the anonymization threshold",
	Long: `Clears actor id, name, source address and user agent on events older
than the configured anonymize_after_days. Idempotent: re-running touches
nothing it already processed.`,
	Args: cobra.NoArgs,
	RunE: Wrap(func(rc *RuntimeContext, cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime(rc)
		if err != nil {
			return err
		}
		count, err := rt.trail.Anonymize(rc.Ctx)
		if err != nil {
			return err
		}
		rc.Log.Info("Anonymization pass complete", zap.Int64("events", count))
		fmt.Printf("Anonymized %d events\n", count)
		return nil
	}),
}

var auditCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Permanently delete events past the retention threshold",
	Args:  cobra.NoArgs,
	RunE: Wrap(func(rc *RuntimeContext, cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime(rc)
		if err != nil {
			return err
		}
		count, err := rt.trail.Cleanup(rc.Ctx)
		if err != nil {
			return err
		}
		rc.Log.Info("Retention cleanup complete", zap.Int64("events", count))
		fmt.Printf("Purged %d events\n", count)
		return nil
	}),
}
