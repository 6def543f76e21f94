// Package workflow closes divergences with an auditable operator decision,
// one need at a time or in batches.
package workflow

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/casampa-lab/sinaliza/internal/divergence"
	"github.com/casampa-lab/sinaliza/internal/model"
	"github.com/casampa-lab/sinaliza/internal/resilience"
	"github.com/casampa-lab/sinaliza/internal/store"
)

// DefaultBatchJustification is recorded when a batch decision carries no
// justification of its own.
const DefaultBatchJustification = "Aprovado em lote: valor do projeto confirmado"

// Options tunes batch reconciliation.
type Options struct {
	Concurrency int
	Retry       resilience.RetryConfig
}

// Workflow applies decisions through a need repository.
type Workflow struct {
	repo store.NeedRepository
	opts Options
}

// New returns a Workflow.
func New(repo store.NeedRepository, opts Options) *Workflow {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	return &Workflow{repo: repo, opts: opts}
}

// DecisionInput is an operator's decision on one pending need.
type DecisionInput struct {
	ChosenSource  model.Source `json:"fonte_escolhida" validate:"required,oneof=projeto inferencia"`
	Justification string       `json:"justificativa" validate:"required_if=ChosenSource inferencia"`
	DecidedBy     string       `json:"decidido_por" validate:"notblank"`
}

// Status returns the workflow state of a need.
func (w *Workflow) Status(ctx context.Context, id string) (model.WorkflowStatus, error) {
	n, err := w.repo.GetNeed(ctx, id)
	if err != nil {
		return "", eris.Wrapf(err, "workflow: status %s", id)
	}
	return n.Status(), nil
}

// ListPending returns the needs of the selection awaiting a decision.
func (w *Workflow) ListPending(ctx context.Context, sel model.Selection) ([]model.NeedRecord, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	needs, err := w.repo.ListNeeds(ctx, sel, true)
	if err != nil {
		return nil, eris.Wrap(err, "workflow: list pending")
	}
	pending := needs[:0]
	for _, n := range needs {
		if n.Status() == model.StatusPendenteAprovacao {
			pending = append(pending, n)
		}
	}
	return pending, nil
}

// Reconcile records a decision on a pending need. Input is validated before
// anything is read or written.
func (w *Workflow) Reconcile(ctx context.Context, id string, in DecisionInput) (*model.NeedRecord, error) {
	in.Justification = strings.TrimSpace(in.Justification)
	in.DecidedBy = strings.TrimSpace(in.DecidedBy)
	if err := model.Validate(in); err != nil {
		return nil, eris.Wrapf(err, "workflow: reconcile %s", id)
	}

	n, err := w.repo.GetNeed(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "workflow: reconcile %s", id)
	}
	if n.Status() != model.StatusPendenteAprovacao {
		return nil, eris.Wrapf(model.ErrNotPending, "workflow: need %s is %s", id, n.Status())
	}

	final := n.InferredService
	if in.ChosenSource == model.SourceProjeto {
		final = divergence.ProjectService(n.DeclaredService, n.InferredService)
	}
	now := time.Now().UTC()
	u := store.NeedUpdate{Decision: &model.ReconciliationDecision{
		DecidedBy:     in.DecidedBy,
		DecidedAt:     now,
		ChosenSource:  in.ChosenSource,
		Justification: in.Justification,
		FinalService:  final,
	}}
	if err := w.update(ctx, id, u); err != nil {
		return nil, eris.Wrapf(err, "workflow: reconcile %s", id)
	}
	u.Apply(n, now)

	zap.L().Info("workflow: need reconciled",
		zap.String("need_id", id),
		zap.String("chosen_source", string(in.ChosenSource)),
		zap.String("final_service", string(final)),
		zap.String("decided_by", in.DecidedBy),
	)
	return n, nil
}

// Failure is one need a batch could not reconcile.
type Failure struct {
	NeedID  string `json:"need_id"`
	Message string `json:"message"`
}

// BatchResult tallies a batch reconciliation. Successes are kept even when
// other needs fail.
type BatchResult struct {
	Requested  int       `json:"requested"`
	Reconciled int       `json:"reconciled"`
	Failed     int       `json:"failed"`
	Failures   []Failure `json:"failures,omitempty"`
}

// ReconcileBatch confirms the project value for every selected need,
// concurrently. Batch mode never chooses the inferred value.
func (w *Workflow) ReconcileBatch(ctx context.Context, ids map[string]struct{}, decidedBy, justification string) (*BatchResult, error) {
	decidedBy = strings.TrimSpace(decidedBy)
	if decidedBy == "" {
		return nil, eris.Wrap(model.ErrValidation, "workflow: decided_by is required")
	}
	justification = strings.TrimSpace(justification)
	if justification == "" {
		justification = DefaultBatchJustification
	}

	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	in := DecisionInput{ChosenSource: model.SourceProjeto, Justification: justification, DecidedBy: decidedBy}
	result := &BatchResult{Requested: len(sorted)}
	var reconciled, failed atomic.Int64
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.Concurrency)
	for _, id := range sorted {
		g.Go(func() error {
			if _, err := w.Reconcile(gctx, id, in); err != nil {
				failed.Add(1)
				mu.Lock()
				result.Failures = append(result.Failures, Failure{NeedID: id, Message: err.Error()})
				mu.Unlock()
				zap.L().Warn("workflow: batch item failed", zap.String("need_id", id), zap.Error(err))
				return nil
			}
			reconciled.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	result.Reconciled = int(reconciled.Load())
	result.Failed = int(failed.Load())
	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].NeedID < result.Failures[j].NeedID
	})

	zap.L().Info("workflow: batch reconciled",
		zap.Int("requested", result.Requested),
		zap.Int("reconciled", result.Reconciled),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (w *Workflow) update(ctx context.Context, id string, u store.NeedUpdate) error {
	cfg := w.opts.Retry
	cfg.OnRetry = resilience.RetryLogger("update_need", zap.String("need_id", id))
	return resilience.Do(ctx, cfg, func(ctx context.Context) error {
		return w.repo.UpdateNeed(ctx, id, u)
	})
}
