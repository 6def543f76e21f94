package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetTypeProperties(t *testing.T) {
	tests := []struct {
		asset     AssetType
		kind      GeometryKind
		recurrent bool
	}{
		{AssetPlacas, GeometryPontual, false},
		{AssetPorticos, GeometryPontual, false},
		{AssetInscricoes, GeometryPontual, true},
		{AssetMarcasLongitudinais, GeometryLinear, true},
		{AssetTachas, GeometryLinear, true},
		{AssetCilindros, GeometryLinear, true},
		{AssetDefensas, GeometryLinear, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.asset), func(t *testing.T) {
			assert.True(t, tt.asset.Valid())
			assert.Equal(t, tt.kind, tt.asset.GeometryKind())
			assert.Equal(t, tt.recurrent, tt.asset.Recurrent())
		})
	}
	assert.Len(t, AllAssetTypes(), len(tests))
}

func TestParseAssetType(t *testing.T) {
	got, err := ParseAssetType("Marcas Longitudinais")
	require.NoError(t, err)
	assert.Equal(t, AssetMarcasLongitudinais, got)

	got, err = ParseAssetType("Pórticos")
	require.NoError(t, err)
	assert.Equal(t, AssetPorticos, got)

	got, err = ParseAssetType("defensa")
	require.NoError(t, err)
	assert.Equal(t, AssetDefensas, got)

	_, err = ParseAssetType("semaforos")
	assert.ErrorIs(t, err, ErrUnknownAssetType)
}

func TestFoldAndBlank(t *testing.T) {
	assert.Equal(t, "manutencao", Fold("  Manutenção "))
	assert.True(t, Blank("Não se Aplica"))
	assert.True(t, Blank("  "))
	assert.True(t, Blank("-"))
	assert.False(t, Blank("Bordo"))
	assert.True(t, SameText("Branca", " branca"))
}

func TestParseNumber(t *testing.T) {
	tests := map[string]*float64{
		"1,5":           Float(1.5),
		"1.5":           Float(1.5),
		"1.234,5":       Float(1234.5),
		"12":            Float(12),
		"":              nil,
		"abc":           nil,
		"Não se Aplica": nil,
	}
	for in, want := range tests {
		got := ParseNumber(in)
		if want == nil {
			assert.Nil(t, got, in)
			continue
		}
		require.NotNil(t, got, in)
		assert.InDelta(t, *want, *got, 1e-9, in)
	}
}

func TestGeometryValidate(t *testing.T) {
	assert.NoError(t, Geometry{Km: Float(1)}.Validate(GeometryPontual))
	assert.NoError(t, Geometry{Coord: &Coord{Lat: -15, Lon: -47}}.Validate(GeometryPontual))
	assert.ErrorIs(t, Geometry{}.Validate(GeometryPontual), ErrInvalidGeometry)
	assert.ErrorIs(t, Geometry{KmStart: Float(1)}.Validate(GeometryLinear), ErrInvalidGeometry)

	start, end := Geometry{KmStart: Float(5), KmEnd: Float(3)}.Segment()
	assert.Equal(t, 3.0, start)
	assert.Equal(t, 5.0, end)
}

func TestAttributesRoundTripThroughStorage(t *testing.T) {
	attrs, err := AttributesFromFields(AssetPorticos, FieldSet{
		"tipo":             "Pórtico",
		"vao_horizontal_m": "18,5",
		"altura_livre_m":   "Não se Aplica",
	})
	require.NoError(t, err)

	raw, err := EncodeAttributes(attrs)
	require.NoError(t, err)

	decoded, err := DecodeAttributes(AssetPorticos, raw)
	require.NoError(t, err)
	g, ok := decoded.(*GantryAttributes)
	require.True(t, ok)
	assert.Equal(t, "Pórtico", g.Tipo)
	require.NotNil(t, g.VaoHorizontalM)
	assert.InDelta(t, 18.5, *g.VaoHorizontalM, 1e-9)
	assert.Nil(t, g.AlturaLivreM)
}

func TestDecodeAttributesUnknownType(t *testing.T) {
	_, err := DecodeAttributes("semaforos", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownAssetType)
}

func TestNeedStatus(t *testing.T) {
	n := &NeedRecord{}
	assert.Equal(t, StatusSemDivergencia, n.Status())

	n.Divergence = true
	assert.Equal(t, StatusPendenteAprovacao, n.Status())

	n.Reconciled = true
	n.Decision = &ReconciliationDecision{ChosenSource: SourceProjeto}
	assert.Equal(t, StatusAprovado, n.Status())

	n.Decision.ChosenSource = SourceInferencia
	assert.Equal(t, StatusRejeitado, n.Status())
}

func TestNeedMarshalIncludesAttributesAndStatus(t *testing.T) {
	n := NeedRecord{
		ID:         "n1",
		AssetType:  AssetPlacas,
		Attrs:      &SignAttributes{Codigo: "R-1"},
		Divergence: true,
	}
	data, err := json.Marshal(n)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "pendente_aprovacao", out["status"])
	attrs, ok := out["atributos"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "R-1", attrs["codigo"])
}

func TestValidate(t *testing.T) {
	type input struct {
		Name   string `validate:"notblank"`
		Source Source `validate:"oneof=projeto inferencia"`
	}
	require.NoError(t, Validate(input{Name: "ana", Source: SourceProjeto}))

	err := Validate(input{Name: "   ", Source: "outro"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "name: notblank")
	assert.Contains(t, err.Error(), "source: oneof=projeto inferencia")
}
