package store

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/casampa-lab/sinaliza/internal/model"
)

// ToleranceSeed is one highway's tolerance table as written in a seed file.
//
//	tolerancias:
//	  - rodovia: BR-101
//	    padrao_m: 40
//	    por_tipo:
//	      placas: 30
//	      porticos: 150
type ToleranceSeed struct {
	HighwayID string                      `yaml:"rodovia"`
	DefaultM  *float64                    `yaml:"padrao_m,omitempty"`
	ByType    map[model.AssetType]float64 `yaml:"por_tipo,omitempty"`
}

// LoadToleranceSeeds reads and checks a YAML seed file.
func LoadToleranceSeeds(path string) ([]ToleranceSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: read tolerance seeds %s", path)
	}

	var wrapper struct {
		Tolerances []ToleranceSeed `yaml:"tolerancias"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "store: parse tolerance seeds")
	}

	for i, s := range wrapper.Tolerances {
		if model.Blank(s.HighwayID) {
			return nil, eris.Wrapf(model.ErrValidation, "store: tolerance seed %d has no rodovia", i+1)
		}
		if s.DefaultM != nil && *s.DefaultM <= 0 {
			return nil, eris.Wrapf(model.ErrValidation, "store: %s padrao_m must be positive", s.HighwayID)
		}
		for t, m := range s.ByType {
			if !t.Valid() {
				return nil, eris.Wrapf(model.ErrUnknownAssetType, "store: %s por_tipo %q", s.HighwayID, t)
			}
			if m <= 0 {
				return nil, eris.Wrapf(model.ErrValidation, "store: %s %s tolerance must be positive", s.HighwayID, t)
			}
		}
	}
	return wrapper.Tolerances, nil
}

// ApplyToleranceSeeds writes every seed through repo and returns the number
// of values stored.
func ApplyToleranceSeeds(ctx context.Context, repo ToleranceRepository, seeds []ToleranceSeed) (int, error) {
	var n int
	for _, s := range seeds {
		if s.DefaultM != nil {
			if err := repo.SetTolerance(ctx, s.HighwayID, "", *s.DefaultM); err != nil {
				return n, eris.Wrapf(err, "store: seed %s default", s.HighwayID)
			}
			n++
		}
		for _, t := range model.AllAssetTypes() {
			m, ok := s.ByType[t]
			if !ok {
				continue
			}
			if err := repo.SetTolerance(ctx, s.HighwayID, t, m); err != nil {
				return n, eris.Wrapf(err, "store: seed %s %s", s.HighwayID, t)
			}
			n++
		}
	}
	return n, nil
}
