package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casampa-lab/sinaliza/internal/config"
	"github.com/casampa-lab/sinaliza/internal/model"
	"github.com/casampa-lab/sinaliza/internal/pipeline"
)

func testConfig(t *testing.T) {
	t.Helper()
	prev := cfg
	cfg = &config.Config{
		Store:    config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "test.db")},
		Matching: config.MatchingConfig{KmTolerance: 0.05, MinOverlapPct: 50, TierExactPct: 95, TierHighPct: 75},
		Conflict: config.ConflictConfig{KmTolerance: 0.02, DistanceM: 20, MinOverlapPct: 50},
		Batch:    config.BatchConfig{WriteConcurrency: 2, ReconcileConcurrency: 2, RetryAttempts: 1, RetryBackoffMs: 1},
		Server:   config.ServerConfig{Port: 8080, AllowedOrigins: []string{"*"}},
	}
	t.Cleanup(func() { cfg = prev })
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"match", "reconcile", "conflicts", "tolerance", "import", "export", "migrate", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "sinaliza", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestConflictsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range conflictsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"detect", "list", "resolve", "delete"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestCommandFlags(t *testing.T) {
	require.NotNil(t, matchCmd.Flags().Lookup("force"))
	require.NotNil(t, matchCmd.Flags().Lookup("lot"))
	require.NotNil(t, reconcileCmd.Flags().Lookup("ids"))
	assert.Equal(t, "projeto", reconcileCmd.Flags().Lookup("source").DefValue)
	assert.Equal(t, "0", serveCmd.Flags().Lookup("port").DefValue)
	assert.Equal(t, "sinaliza.xlsx", exportCmd.Flags().Lookup("out").DefValue)
	require.NotNil(t, importInventoryCmd.Flags().Lookup("file"))
}

func TestMatchCommand_HelpNamesTierSettings(t *testing.T) {
	assert.Contains(t, matchCmd.Long, "matching.tier_exact_pct")
	assert.Contains(t, matchCmd.Long, "matching.tier_high_pct")
	assert.Contains(t, matchCmd.Long, "SINALIZA_MATCHING_TIER_HIGH_PCT")
}

func TestSelectionFromFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	addSelectionFlags(cmd, false)
	require.NoError(t, cmd.Flags().Set("lot", "L1"))
	require.NoError(t, cmd.Flags().Set("highway", "BR-101"))
	require.NoError(t, cmd.Flags().Set("type", "Placa"))

	sel, err := selectionFromFlags(cmd)
	require.NoError(t, err)
	assert.Equal(t, model.Selection{LotID: "L1", HighwayID: "BR-101", AssetType: model.AssetPlacas}, sel)

	require.NoError(t, cmd.Flags().Set("type", "semaforo"))
	_, err = selectionFromFlags(cmd)
	assert.ErrorIs(t, err, model.ErrUnknownAssetType)
}

func TestIDSet(t *testing.T) {
	got := idSet([]string{"a", " b ", "a", ""})
	assert.Len(t, got, 2)
	assert.Contains(t, got, "b")
}

func TestFormatReport(t *testing.T) {
	var buf bytes.Buffer
	formatReport(&buf, &pipeline.Report{
		Selection: model.Selection{LotID: "L1", HighwayID: "BR-101", AssetType: model.AssetTachas},
		Total:     4,
		Matches:   3,
		Errors:    1,
		ErrorLog:  []pipeline.ErrorEntry{{NeedID: "n4", Message: "invalid geometry"}},
	})
	out := buf.String()
	assert.Contains(t, out, "BR-101")
	assert.Contains(t, out, "Matches")
	assert.Contains(t, out, "n4")
	assert.Contains(t, out, "invalid geometry")
}

func TestFormatConflicts(t *testing.T) {
	var buf bytes.Buffer
	formatConflicts(&buf, []model.ConflictRecord{
		{ID: "c1", Kind: model.ConflictContradictory, RowA: 2, RowB: 7, Details: "Implantar x Remover"},
	})
	out := buf.String()
	assert.Contains(t, out, "SERVICO_CONTRADICTORIO")
	assert.Contains(t, out, "2/7")
	assert.Contains(t, out, "no")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "curto", truncate("curto", 10))
	assert.Equal(t, "sinal...", truncate("sinalização", 8))
}

func TestBuildHandler_Health(t *testing.T) {
	testConfig(t)
	st, err := openStore(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	rr := httptest.NewRecorder()
	buildHandler(st).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	buildHandler(st).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/needs/pending?lot_id=L1", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	testConfig(t)
	cfg.Store.Driver = "mysql"
	_, err := initStore(context.Background())
	assert.Error(t, err)
}
