package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atlas-utilities/billing-cli/internal/ingest"
	"github.com/atlas-utilities/billing-cli/internal/model"
	"github.com/atlas-utilities/billing-cli/internal/notify"
	"github.com/atlas-utilities/billing-cli/internal/pipeline"
	"github.com/atlas-utilities/billing-cli/internal/render"
)

var (
	runInputs []string
	runForce  bool
	runSheet  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the billing pipeline over one or more timesheet drops",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Flag overrides
		if runForce {
			cfg.Pipeline.ForceRegeneration = true
		}
		if runSheet != "" {
			cfg.Ingest.SheetName = runSheet
		}

		if err := cfg.Validate("run"); err != nil {
			return err
		}

		inputs := runInputs
		if len(inputs) == 0 {
			inputs = cfg.Ingest.Inputs
		}
		if len(inputs) == 0 {
			return eris.New("no inputs: pass --input or set ingest.inputs")
		}

		// Init store
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

		rows, err := loadRows(ctx, inputs, ingestOptions())
		if err != nil {
			return err
		}

		// Build pipeline
		p, err := pipeline.New(cfg, st, norm, render.NewJSON(cfg.Render.OutputDir), render.FSChecker{})
		if err != nil {
			return err
		}

		report, err := p.Run(ctx, rows)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("billing run complete",
			zap.String("run_id", report.RunID),
			zap.Int("packets", report.Packets),
			zap.Int("generated", report.Generated),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
		)

		sendAuditNotification(ctx, report)

		// Print report JSON to stdout
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	runCmd.Flags().StringArrayVar(&runInputs, "input", nil, "timesheet file or ftp:// URL (repeatable)")
	runCmd.Flags().BoolVar(&runForce, "force", false, "regenerate every packet regardless of history")
	runCmd.Flags().StringVar(&runSheet, "sheet", "", "workbook sheet name (default first sheet)")
	rootCmd.AddCommand(runCmd)
}

// ingestOptions builds reader options from config.
func ingestOptions() ingest.Options {
	return ingest.Options{
		SheetName: cfg.Ingest.SheetName,
		SkipRows:  cfg.Ingest.SkipRows,
		Charset:   cfg.Ingest.Charset,
	}
}

// loadRows reads every input in order and concatenates the rows. One FTP
// puller is shared across inputs so the rate limit spans the whole list.
func loadRows(ctx context.Context, inputs []string, opts ingest.Options) ([]model.RawRow, error) {
	var (
		rows   []model.RawRow
		puller *ingest.FTPPuller
	)

	for _, input := range inputs {
		var (
			batch []model.RawRow
			err   error
		)

		if strings.HasPrefix(input, "ftp://") {
			if puller == nil {
				puller = ingest.NewFTPPuller(ingest.FTPOptions{
					Timeout:    time.Duration(cfg.Ingest.FTPTimeoutSecs) * time.Second,
					RatePerSec: cfg.Ingest.FTPRatePerSec,
				})
			}
			batch, err = puller.PullRows(ctx, input, opts)
		} else {
			batch, err = ingest.ReadFile(input, opts)
		}
		if err != nil {
			return nil, eris.Wrapf(err, "load %s", input)
		}

		zap.L().Info("sheet loaded", zap.String("input", input), zap.Int("rows", len(batch)))
		rows = append(rows, batch...)
	}

	return rows, nil
}

// sendAuditNotification posts the audit summary to the configured webhook.
// Delivery failure is logged, not fatal: the run itself already succeeded.
func sendAuditNotification(ctx context.Context, report *model.RunReport) {
	if report.Audit == nil {
		return
	}

	sent, err := notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.MinRisk).Notify(ctx, report.RunID, *report.Audit)
	if err != nil {
		zap.L().Warn("audit notification failed", zap.Error(err))
		return
	}
	if sent {
		zap.L().Info("audit notification delivered", zap.String("risk", string(report.Audit.Risk)))
	}
}
