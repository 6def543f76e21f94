package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casampa-lab/sinaliza/internal/model"
)

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tolerancias.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadToleranceSeeds(t *testing.T) {
	path := writeSeed(t, `
tolerancias:
  - rodovia: BR-101
    padrao_m: 40
    por_tipo:
      placas: 30
      porticos: 150
  - rodovia: SC-401
    por_tipo:
      tachas: 10
`)
	seeds, err := LoadToleranceSeeds(path)
	require.NoError(t, err)
	require.Len(t, seeds, 2)
	assert.Equal(t, "BR-101", seeds[0].HighwayID)
	require.NotNil(t, seeds[0].DefaultM)
	assert.InDelta(t, 40.0, *seeds[0].DefaultM, 1e-9)
	assert.InDelta(t, 150.0, seeds[0].ByType[model.AssetPorticos], 1e-9)
	assert.Nil(t, seeds[1].DefaultM)
}

func TestLoadToleranceSeeds_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"missing highway", "tolerancias:\n  - padrao_m: 10\n", model.ErrValidation},
		{"unknown type", "tolerancias:\n  - rodovia: BR-101\n    por_tipo:\n      semaforos: 5\n", model.ErrUnknownAssetType},
		{"non positive", "tolerancias:\n  - rodovia: BR-101\n    por_tipo:\n      placas: 0\n", model.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadToleranceSeeds(writeSeed(t, tt.body))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := LoadToleranceSeeds(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyToleranceSeeds(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seeds, err := LoadToleranceSeeds(writeSeed(t, `
tolerancias:
  - rodovia: BR-101
    padrao_m: 40
    por_tipo:
      placas: 30
`))
	require.NoError(t, err)

	n, err := ApplyToleranceSeeds(ctx, st, seeds)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := st.GetTolerance(ctx, "BR-101", model.AssetPlacas)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, got, 1e-9)

	got, err = st.GetTolerance(ctx, "BR-101", model.AssetDefensas)
	require.NoError(t, err)
	assert.InDelta(t, 40.0, got, 1e-9)
}
