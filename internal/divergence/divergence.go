// Package divergence compares the declared project action with the
// inferred one and applies the per-asset-type review policy.
package divergence

import (
	"github.com/casampa-lab/sinaliza/internal/inference"
	"github.com/casampa-lab/sinaliza/internal/model"
)

// Outcome is the result of evaluating one need.
type Outcome struct {
	// Declared is the normalized declared service; empty when the plan
	// left it blank. Unrecognized text is carried through unchanged.
	Declared   model.Service
	Recognized bool
	Inferred   model.Service
	Final      model.Service
	Divergence bool
}

// Evaluate applies the review policy:
//
//   - recurrent types trust automation: the declared value wins when
//     present, and a divergence is raised only when it disagrees with the
//     inference;
//   - non-recurrent types raise a divergence on every match so a human
//     confirms it before a structural action; unmatched needs (Implantar)
//     raise none. The declared value still wins for the final service.
func Evaluate(t model.AssetType, declaredRaw string, inferred model.Service, matched bool) Outcome {
	declared, recognized := inference.NormalizeService(declaredRaw)
	out := Outcome{
		Declared:   declared,
		Recognized: recognized,
		Inferred:   inferred,
		Final:      inferred,
	}
	if declared != "" {
		out.Final = declared
	}

	if t.Recurrent() {
		out.Divergence = declared != "" && declared != inferred
		return out
	}
	out.Divergence = matched
	return out
}

// ProjectService is the final service when an operator sides with the
// project: the declared value, or the inferred one when nothing was
// declared.
func ProjectService(declaredRaw string, inferred model.Service) model.Service {
	if declared, _ := inference.NormalizeService(declaredRaw); declared != "" {
		return declared
	}
	return inferred
}
