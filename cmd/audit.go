package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atlas-utilities/billing-cli/internal/audit"
	"github.com/atlas-utilities/billing-cli/internal/model"
	"github.com/atlas-utilities/billing-cli/internal/notify"
)

var (
	auditInputs       []string
	auditSaveBaseline bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit timesheet drops without generating packets",
	Long: `Run the anomaly audit over raw timesheet drops, before validation
filters anything out, so integrity problems on rows the pipeline would
reject (blank work requests, negative prices) still surface. History is
never touched; only the trend baseline is written, and --baseline=false
skips even that.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("audit"); err != nil {
			return err
		}

		inputs := auditInputs
		if len(inputs) == 0 {
			inputs = cfg.Ingest.Inputs
		}
		if len(inputs) == 0 {
			return eris.New("no inputs: pass --input or set ingest.inputs")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate history store")
		}

		norm, err := initNormalizer()
		if err != nil {
			return err
		}

		raw, err := loadRows(ctx, inputs, ingestOptions())
		if err != nil {
			return err
		}

		// Pre-validation rows: every parsed line is audited, rejects included.
		rows := make([]model.CanonicalRow, len(raw))
		for i, rr := range raw {
			rows[i] = norm.Normalize(rr, i)
		}

		prev, err := st.LoadBaseline(ctx)
		if err != nil {
			return eris.Wrap(err, "load audit baseline")
		}

		engine := audit.New(audit.Config{
			PriceVarianceThreshold: cfg.Audit.PriceVarianceThreshold,
			HighSeverityThreshold:  cfg.Audit.HighSeverityThreshold,
			HighRiskAnomalyCount:   cfg.Audit.HighRiskAnomalyCount,
		})
		summary := engine.Run(rows, prev)

		if auditSaveBaseline {
			if err := st.SaveBaseline(ctx, summary); err != nil {
				return eris.Wrap(err, "save audit baseline")
			}
		}

		zap.L().Info("audit complete",
			zap.Int("rows", summary.RowsAudited),
			zap.Int("anomalies", summary.AnomalyCount()),
			zap.String("risk", string(summary.Risk)),
			zap.String("trend", string(summary.Trend.Direction)),
		)

		sent, err := notifyAudit(ctx, summary)
		if err != nil {
			zap.L().Warn("audit notification failed", zap.Error(err))
		} else if sent {
			zap.L().Info("audit notification delivered", zap.String("risk", string(summary.Risk)))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	auditCmd.Flags().StringArrayVar(&auditInputs, "input", nil, "timesheet file or ftp:// URL (repeatable)")
	auditCmd.Flags().BoolVar(&auditSaveBaseline, "baseline", true, "persist this audit as the trend baseline")
	rootCmd.AddCommand(auditCmd)
}

func notifyAudit(ctx context.Context, summary model.AuditSummary) (bool, error) {
	return notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.MinRisk).Notify(ctx, "audit-"+uuid.New().String(), summary)
}
