// Package pipeline orchestrates one billing run: normalize and validate the
// raw rows, group them into weekly packets, decide per packet whether to
// regenerate, render what changed, and audit the accepted rows. The history
// store is the only shared mutable resource; every upsert is atomic per key.
package pipeline

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atlas-utilities/billing-cli/internal/audit"
	"github.com/atlas-utilities/billing-cli/internal/config"
	"github.com/atlas-utilities/billing-cli/internal/decision"
	"github.com/atlas-utilities/billing-cli/internal/fingerprint"
	"github.com/atlas-utilities/billing-cli/internal/grouping"
	"github.com/atlas-utilities/billing-cli/internal/history"
	"github.com/atlas-utilities/billing-cli/internal/model"
	"github.com/atlas-utilities/billing-cli/internal/normalize"
	"github.com/atlas-utilities/billing-cli/internal/render"
	"github.com/atlas-utilities/billing-cli/internal/validate"
)

// maxAutoWorkers caps the worker pool when pipeline.workers is 0.
const maxAutoWorkers = 8

// Pipeline wires the run stages together.
type Pipeline struct {
	cfg      *config.Config
	weekday  time.Weekday
	store    history.Store
	norm     *normalize.Normalizer
	valid    *validate.Validator
	fprint   *fingerprint.Engine
	decide   *decision.Engine
	auditor  *audit.Engine
	renderer render.Renderer
	now      func() time.Time
}

// New creates a pipeline from configuration and injected collaborators.
func New(cfg *config.Config, store history.Store, norm *normalize.Normalizer, renderer render.Renderer, checker decision.ArtifactChecker) (*Pipeline, error) {
	weekday, err := config.ParseWeekday(cfg.Pipeline.WeekEndingWeekday)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: week ending weekday")
	}

	return &Pipeline{
		cfg:     cfg,
		weekday: weekday,
		store:   store,
		norm:    norm,
		valid:   validate.New(cfg.Validation.PlaceholderCU),
		fprint:  fingerprint.New(cfg.Pipeline.ExtendedChangeDetection),
		decide:  decision.New(checker, cfg.Pipeline.ForceRegeneration),
		auditor: audit.New(audit.Config{
			PriceVarianceThreshold: cfg.Audit.PriceVarianceThreshold,
			HighSeverityThreshold:  cfg.Audit.HighSeverityThreshold,
			HighRiskAnomalyCount:   cfg.Audit.HighRiskAnomalyCount,
		}),
		renderer: renderer,
		now:      time.Now,
	}, nil
}

// workers resolves the configured pool size; 0 means NumCPU capped at 8.
func (p *Pipeline) workers() int {
	if n := p.cfg.Pipeline.Workers; n > 0 {
		return n
	}
	n := runtime.NumCPU()
	if n > maxAutoWorkers {
		n = maxAutoWorkers
	}
	return n
}

// Run executes one full billing pass over the raw rows. Row rejections and
// per-packet failures are recorded in the report, never returned as errors;
// the returned error is reserved for faults that stop the run outright.
func (p *Pipeline) Run(ctx context.Context, raw []model.RawRow) (*model.RunReport, error) {
	log := zap.L().With(zap.String("component", "pipeline"))

	report := &model.RunReport{
		RunID:     uuid.New().String(),
		StartedAt: p.now().UTC(),
		Rejected:  make(map[model.RejectReason]int),
	}

	var phasesMu sync.Mutex
	trackPhase := func(name string, fn func() error) *model.PhaseResult {
		start := time.Now()
		err := fn()

		pr := &model.PhaseResult{
			Name:     name,
			Status:   model.PhaseStatusComplete,
			Duration: time.Since(start).Milliseconds(),
		}
		if err != nil {
			pr.Status = model.PhaseStatusFailed
			pr.Error = err.Error()
			log.Error("phase failed", zap.String("phase", name), zap.Error(err))
		} else {
			log.Info("phase complete", zap.String("phase", name), zap.Int64("duration_ms", pr.Duration))
		}

		phasesMu.Lock()
		report.Phases = append(report.Phases, *pr)
		phasesMu.Unlock()
		return pr
	}

	// Normalize and validate. Rows fan out over the worker pool; results land
	// in an index-addressed slice so report order equals arrival order.
	var accepted []model.CanonicalRow
	_ = trackPhase("normalize_validate", func() error {
		canon := make([]model.CanonicalRow, len(raw))

		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(p.workers())
		for i := range raw {
			i := i
			g.Go(func() error {
				canon[i] = p.norm.Normalize(raw[i], i)
				return nil
			})
		}
		_ = g.Wait()

		var rejected []model.RejectedRow
		accepted, rejected = p.valid.Partition(canon)

		report.RowsTotal = len(raw)
		report.RowsAccepted = len(accepted)
		for _, rr := range rejected {
			report.Rejected[rr.Reason]++
		}
		return nil
	})

	// Group into weekly packets.
	var (
		packets map[model.PacketKey]*model.Packet
		keys    []model.PacketKey
	)
	_ = trackPhase("group", func() error {
		packets, report.HelperFallbacks = grouping.Group(accepted, p.weekday)
		keys = grouping.SortKeys(packets)
		report.Packets = len(keys)
		return nil
	})

	// Decide+render and audit consume the same validated rows and run
	// concurrently. Packet failures stay inside their outcome rows.
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_ = trackPhase("decide_render", func() error {
			return p.decideRender(gCtx, report, keys, packets)
		})
		return nil
	})
	g.Go(func() error {
		_ = trackPhase("audit", func() error {
			return p.runAudit(gCtx, report, accepted)
		})
		return nil
	})
	_ = g.Wait()

	report.FinishedAt = p.now().UTC()
	log.Info("run complete",
		zap.String("run_id", report.RunID),
		zap.Int("rows_total", report.RowsTotal),
		zap.Int("rows_accepted", report.RowsAccepted),
		zap.Int("packets", report.Packets),
		zap.Int("generated", report.Generated),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))

	return report, ctx.Err()
}

// decideRender fingerprints every packet, decides its verdict against stored
// history, and renders the ones that need regeneration. Outcomes are written
// into a slice indexed by the sorted key order, so the report is stable no
// matter how the pool schedules.
func (p *Pipeline) decideRender(ctx context.Context, report *model.RunReport, keys []model.PacketKey, packets map[model.PacketKey]*model.Packet) error {
	outcomes := make([]model.PacketOutcome, len(keys))

	hist, err := p.store.All(ctx)
	if err != nil {
		// Without history every skip would be a guess. Mark everything
		// failed rather than regenerate or skip blindly.
		err = eris.Wrap(err, "pipeline: load history")
		for i, key := range keys {
			outcomes[i] = model.PacketOutcome{
				Key:        key.String(),
				RowCount:   packets[key].RowCount(),
				TotalCents: int64(packets[key].Total()),
				Error:      err.Error(),
			}
		}
		report.Outcomes = outcomes
		report.Failed = len(keys)
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			outcomes[i] = p.processPacket(gCtx, packets[key], hist)
			return nil
		})
	}
	_ = g.Wait()

	report.Outcomes = outcomes
	for _, out := range outcomes {
		switch {
		case out.Error != "":
			report.Failed++
		case out.Verdict == model.VerdictGenerate:
			report.Generated++
		default:
			report.Skipped++
		}
	}
	return nil
}

// processPacket runs fingerprint, decision, render, and the history upsert
// for one packet. History is only written after the renderer reports
// success; a failed render leaves the stored record untouched so the next
// run retries.
func (p *Pipeline) processPacket(ctx context.Context, pkt *model.Packet, hist map[string]model.HistoryRecord) model.PacketOutcome {
	out := model.PacketOutcome{
		Key:        pkt.Key.String(),
		RowCount:   pkt.RowCount(),
		TotalCents: int64(pkt.Total()),
	}

	fp, err := p.fprint.Compute(pkt)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Fingerprint = fp

	d, err := p.decide.Decide(ctx, pkt.Key, fp, hist)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Verdict = d.Verdict
	out.Reason = d.Reason

	if !d.ShouldGenerate() {
		return out
	}

	ref, err := p.renderer.Render(ctx, pkt, fp)
	if err != nil {
		out.Error = eris.Wrapf(err, "pipeline: render %s", pkt.Key).Error()
		return out
	}

	rec := model.HistoryRecord{
		Key:         pkt.Key.String(),
		Fingerprint: fp,
		ArtifactRef: ref,
		GeneratedAt: p.now().UTC(),
	}
	if err := p.store.Put(ctx, rec); err != nil {
		// The artifact exists but history does not know it. Failed is the
		// safe label: the next run regenerates instead of skipping.
		out.Error = eris.Wrapf(err, "pipeline: record %s", pkt.Key).Error()
		return out
	}

	out.ArtifactRef = ref
	return out
}

// runAudit scans the accepted rows against the previous run's baseline and
// persists the new summary as the next baseline.
func (p *Pipeline) runAudit(ctx context.Context, report *model.RunReport, rows []model.CanonicalRow) error {
	prev, err := p.store.LoadBaseline(ctx)
	if err != nil {
		return eris.Wrap(err, "pipeline: load audit baseline")
	}

	summary := p.auditor.Run(rows, prev)
	report.Audit = &summary

	if err := p.store.SaveBaseline(ctx, summary); err != nil {
		return eris.Wrap(err, "pipeline: save audit baseline")
	}
	return nil
}
