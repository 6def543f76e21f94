package conflict

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/casampa-lab/sinaliza/internal/model"
	"github.com/casampa-lab/sinaliza/internal/store"
)

// Repository is what the conflict service needs from storage.
type Repository interface {
	store.ConflictRepository
	ListNeeds(ctx context.Context, sel model.Selection, onlyUnreconciled bool) ([]model.NeedRecord, error)
}

// Service runs detection passes and applies operator resolutions.
type Service struct {
	repo Repository
	opts Options
}

// NewService returns a Service.
func NewService(repo Repository, opts Options) *Service {
	return &Service{repo: repo, opts: opts.withDefaults()}
}

// ResolveInput is an operator's resolution of one conflict.
type ResolveInput struct {
	Justification string `json:"justificativa" validate:"notblank"`
	ResolvedBy    string `json:"resolvido_por" validate:"notblank"`
}

// Detect scans every need of the selection and replaces its unresolved
// conflicts with the result.
func (s *Service) Detect(ctx context.Context, sel model.Selection) ([]model.ConflictRecord, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	needs, err := s.repo.ListNeeds(ctx, sel, false)
	if err != nil {
		return nil, eris.Wrap(err, "conflict: list needs")
	}

	found := Detect(needs, s.opts)
	if err := s.repo.ReplaceConflicts(ctx, sel, found); err != nil {
		return nil, eris.Wrap(err, "conflict: store detection")
	}

	var contradictory, duplicate int
	for _, c := range found {
		if c.Kind == model.ConflictContradictory {
			contradictory++
		} else {
			duplicate++
		}
	}
	zap.L().Info("conflict: detection complete",
		zap.String("lot", sel.LotID),
		zap.String("highway", sel.HighwayID),
		zap.String("asset_type", string(sel.AssetType)),
		zap.Int("needs", len(needs)),
		zap.Int("contradictory", contradictory),
		zap.Int("duplicate", duplicate),
	)
	return found, nil
}

// List returns the conflicts of a lot and highway; t may be empty.
func (s *Service) List(ctx context.Context, lotID, highwayID string, t model.AssetType) ([]model.ConflictRecord, error) {
	if lotID == "" || highwayID == "" {
		return nil, eris.Wrap(model.ErrValidation, "conflict: lot_id and highway_id are required")
	}
	if t != "" && !t.Valid() {
		return nil, eris.Wrapf(model.ErrUnknownAssetType, "conflict: asset type %q", t)
	}
	out, err := s.repo.ListConflicts(ctx, lotID, highwayID, t)
	return out, eris.Wrap(err, "conflict: list")
}

// Resolve closes a conflict with a mandatory justification. It does not
// touch the reconciliation state of the needs involved.
func (s *Service) Resolve(ctx context.Context, id string, in ResolveInput) error {
	in.Justification = strings.TrimSpace(in.Justification)
	if err := model.Validate(in); err != nil {
		return eris.Wrapf(err, "conflict: resolve %s", id)
	}

	c, err := s.repo.GetConflict(ctx, id)
	if err != nil {
		return eris.Wrapf(err, "conflict: resolve %s", id)
	}
	if c.Resolved {
		return eris.Wrapf(model.ErrValidation, "conflict: %s already resolved", id)
	}
	if err := s.repo.ResolveConflict(ctx, id, in.Justification, in.ResolvedBy); err != nil {
		return eris.Wrapf(err, "conflict: resolve %s", id)
	}
	zap.L().Info("conflict: resolved",
		zap.String("conflict_id", id),
		zap.String("kind", string(c.Kind)),
		zap.String("resolved_by", in.ResolvedBy),
	)
	return nil
}

// DeleteNeed removes one of the offending rows, which drops every conflict
// that referenced it.
func (s *Service) DeleteNeed(ctx context.Context, needID string) error {
	if needID == "" {
		return eris.Wrap(model.ErrValidation, "conflict: need id is required")
	}
	if err := s.repo.DeleteNeed(ctx, needID); err != nil {
		return eris.Wrapf(err, "conflict: delete need %s", needID)
	}
	zap.L().Info("conflict: need deleted", zap.String("need_id", needID))
	return nil
}
