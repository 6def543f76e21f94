// Package pipeline is the batch orchestrator: it runs matching, inference
// and divergence evaluation over every need of a selection and persists the
// outcomes.
package pipeline

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/casampa-lab/sinaliza/internal/divergence"
	"github.com/casampa-lab/sinaliza/internal/inference"
	"github.com/casampa-lab/sinaliza/internal/matching"
	"github.com/casampa-lab/sinaliza/internal/model"
	"github.com/casampa-lab/sinaliza/internal/resilience"
	"github.com/casampa-lab/sinaliza/internal/store"
)

// Repository is what a batch reads and writes.
type Repository interface {
	store.NeedRepository
	store.InventoryRepository
	store.ToleranceRepository
}

// Options tunes a Pipeline.
type Options struct {
	Matching         matching.Options
	WriteConcurrency int
	Retry            resilience.RetryConfig
	// OnProgress, when set, is called after each need is evaluated, in
	// need order.
	OnProgress func(done, total int)
}

// Pipeline runs batches against a repository.
type Pipeline struct {
	repo   Repository
	engine *matching.Engine
	opts   Options
}

// New returns a Pipeline.
func New(repo Repository, opts Options) *Pipeline {
	if opts.WriteConcurrency <= 0 {
		opts.WriteConcurrency = 4
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	return &Pipeline{repo: repo, engine: matching.New(opts.Matching), opts: opts}
}

// ErrorEntry is one need whose pipeline step failed.
type ErrorEntry struct {
	NeedID  string `json:"record_id"`
	Message string `json:"message"`
}

// Report is the observable result of a batch.
type Report struct {
	Selection   model.Selection `json:"selection"`
	Force       bool            `json:"force"`
	ToleranceM  float64         `json:"tolerance_m"`
	Inventory   int             `json:"inventory"`
	Total       int             `json:"total"`
	Matches     int             `json:"matches"`
	Divergences int             `json:"divergences"`
	NewElements int             `json:"new_elements"`
	Errors      int             `json:"errors"`
	ErrorLog    []ErrorEntry    `json:"error_log,omitempty"`
	DurationMs  int64           `json:"duration_ms"`
}

type pendingWrite struct {
	index   int
	needID  string
	outcome store.Outcome
}

type indexedError struct {
	index int
	entry ErrorEntry
}

// Run processes the needs of sel. Without force, needs that already carry a
// human decision are skipped; with force, every decision in the selection is
// cleared first. Tolerance or inventory failures abort the batch before any
// need is touched and wrap model.ErrConfiguration. Per-need failures are
// counted in the report and never abort the batch.
func (p *Pipeline) Run(ctx context.Context, sel model.Selection, force bool) (*Report, error) {
	if err := sel.Validate(); err != nil {
		return nil, eris.Wrap(err, "pipeline: selection")
	}
	start := time.Now()
	log := zap.L().With(
		zap.String("lot", sel.LotID),
		zap.String("highway", sel.HighwayID),
		zap.String("asset_type", string(sel.AssetType)),
	)

	toleranceM, err := p.repo.GetTolerance(ctx, sel.HighwayID, sel.AssetType)
	if err != nil {
		return nil, eris.Wrapf(model.ErrConfiguration, "pipeline: load tolerance: %v", err)
	}
	inventory, err := p.repo.ListInventory(ctx, sel.HighwayID, sel.AssetType, true)
	if err != nil {
		return nil, eris.Wrapf(model.ErrConfiguration, "pipeline: load inventory: %v", err)
	}

	if force {
		reset, err := p.repo.ResetReconciled(ctx, sel)
		if err != nil {
			return nil, eris.Wrapf(model.ErrConfiguration, "pipeline: reset decisions: %v", err)
		}
		log.Info("pipeline: decisions reset", zap.Int("needs", reset))
	}
	needs, err := p.repo.ListNeeds(ctx, sel, !force)
	if err != nil {
		return nil, eris.Wrapf(model.ErrConfiguration, "pipeline: load needs: %v", err)
	}

	report := &Report{
		Selection:  sel,
		Force:      force,
		ToleranceM: toleranceM,
		Inventory:  len(inventory),
		Total:      len(needs),
	}
	log.Info("pipeline: batch starting",
		zap.Int("needs", len(needs)),
		zap.Int("inventory", len(inventory)),
		zap.Float64("tolerance_m", toleranceM),
		zap.Bool("force", force),
	)

	var errs []indexedError
	writes := make([]pendingWrite, 0, len(needs))
	for i := range needs {
		n := &needs[i]
		outcome, err := p.Evaluate(n, inventory, toleranceM)
		if err != nil {
			log.Warn("pipeline: need skipped", zap.String("need_id", n.ID), zap.Error(err))
			errs = append(errs, indexedError{i, ErrorEntry{NeedID: n.ID, Message: err.Error()}})
		} else {
			writes = append(writes, pendingWrite{index: i, needID: n.ID, outcome: outcome})
		}
		if p.opts.OnProgress != nil {
			p.opts.OnProgress(i+1, len(needs))
		}
	}

	var matches, divergences, newElements atomic.Int64
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.WriteConcurrency)
	for _, w := range writes {
		g.Go(func() error {
			if err := p.persist(gctx, w); err != nil {
				log.Error("pipeline: persist failed", zap.String("need_id", w.needID), zap.Error(err))
				mu.Lock()
				errs = append(errs, indexedError{w.index, ErrorEntry{NeedID: w.needID, Message: err.Error()}})
				mu.Unlock()
				return nil
			}
			if w.outcome.MatchedInventoryID != "" {
				matches.Add(1)
			} else {
				newElements.Add(1)
			}
			if w.outcome.Divergence {
				divergences.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(errs, func(i, j int) bool { return errs[i].index < errs[j].index })
	for _, e := range errs {
		report.ErrorLog = append(report.ErrorLog, e.entry)
	}
	report.Matches = int(matches.Load())
	report.Divergences = int(divergences.Load())
	report.NewElements = int(newElements.Load())
	report.Errors = len(errs)
	report.DurationMs = time.Since(start).Milliseconds()

	log.Info("pipeline: batch complete",
		zap.Int("total", report.Total),
		zap.Int("matches", report.Matches),
		zap.Int("divergences", report.Divergences),
		zap.Int("new_elements", report.NewElements),
		zap.Int("errors", report.Errors),
		zap.Int64("duration_ms", report.DurationMs),
	)
	return report, nil
}

// Evaluate runs matching, inference and divergence for one need against
// the active inventory of its highway. It does not write anything.
func (p *Pipeline) Evaluate(need *model.NeedRecord, inventory []model.InventoryRecord, toleranceM float64) (store.Outcome, error) {
	ranked, err := p.engine.Rank(need, inventory)
	if err != nil {
		return store.Outcome{}, err
	}
	best, matched := matching.Select(need.AssetType.GeometryKind(), ranked, toleranceM)
	inferred := inference.Infer(matched, need)
	ev := divergence.Evaluate(need.AssetType, need.DeclaredService, inferred, matched)

	out := store.Outcome{
		Inferred:   ev.Inferred,
		Final:      ev.Final,
		Divergence: ev.Divergence,
	}
	if matched {
		out.MatchedInventoryID = best.InventoryID
		if need.AssetType.Linear() {
			pct := best.OverlapPct
			out.OverlapPct = &pct
			out.Tier = best.Tier
		} else {
			d := best.DistanceM
			out.DistanceM = &d
		}
	}
	return out, nil
}

func (p *Pipeline) persist(ctx context.Context, w pendingWrite) error {
	cfg := p.opts.Retry
	cfg.OnRetry = resilience.RetryLogger("update_need", zap.String("need_id", w.needID))
	err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
		return p.repo.UpdateNeed(ctx, w.needID, store.NeedUpdate{Outcome: &w.outcome})
	})
	return eris.Wrapf(err, "pipeline: update need %s", w.needID)
}
