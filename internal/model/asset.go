package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// AssetType identifies a class of highway asset.
type AssetType string

const (
	AssetPlacas              AssetType = "placas"
	AssetPorticos            AssetType = "porticos"
	AssetInscricoes          AssetType = "inscricoes"
	AssetMarcasLongitudinais AssetType = "marcas_longitudinais"
	AssetTachas              AssetType = "tachas"
	AssetCilindros           AssetType = "cilindros"
	AssetDefensas            AssetType = "defensas"
)

// GeometryKind tells whether an asset is located by a single point or by a
// kilometre segment.
type GeometryKind string

const (
	GeometryPontual GeometryKind = "pontual"
	GeometryLinear  GeometryKind = "linear"
)

type assetProps struct {
	kind      GeometryKind
	recurrent bool
}

var assetTable = map[AssetType]assetProps{
	AssetPlacas:              {kind: GeometryPontual},
	AssetPorticos:            {kind: GeometryPontual},
	AssetInscricoes:          {kind: GeometryPontual, recurrent: true},
	AssetMarcasLongitudinais: {kind: GeometryLinear, recurrent: true},
	AssetTachas:              {kind: GeometryLinear, recurrent: true},
	AssetCilindros:           {kind: GeometryLinear, recurrent: true},
	AssetDefensas:            {kind: GeometryLinear},
}

// AllAssetTypes lists every known asset type in a stable order.
func AllAssetTypes() []AssetType {
	return []AssetType{
		AssetPlacas, AssetPorticos, AssetInscricoes, AssetMarcasLongitudinais,
		AssetTachas, AssetCilindros, AssetDefensas,
	}
}

// Valid reports whether t is a known asset type.
func (t AssetType) Valid() bool {
	_, ok := assetTable[t]
	return ok
}

// GeometryKind returns the geometry shape used by t. Unknown types report
// an empty kind.
func (t AssetType) GeometryKind() GeometryKind {
	return assetTable[t].kind
}

// Linear reports whether t is located by a km segment.
func (t AssetType) Linear() bool {
	return t.GeometryKind() == GeometryLinear
}

// Recurrent reports whether t is routinely repainted or resurfaced.
// Recurrent types trust the automatic inference; the rest always need a
// human check when a match is found.
func (t AssetType) Recurrent() bool {
	return assetTable[t].recurrent
}

// ParseAssetType maps a user supplied name (any case, accents, dashes or
// spaces) onto an AssetType.
func ParseAssetType(s string) (AssetType, error) {
	key := strings.NewReplacer(" ", "_", "-", "_").Replace(Fold(s))
	t := AssetType(key)
	if t.Valid() {
		return t, nil
	}
	switch key {
	case "placa", "sinalizacao_vertical":
		return AssetPlacas, nil
	case "portico", "semiportico", "semi_portico":
		return AssetPorticos, nil
	case "inscricao", "zebrado", "setas", "inscricoes_no_pavimento":
		return AssetInscricoes, nil
	case "marcas", "marca_longitudinal", "sinalizacao_horizontal", "ficha_marcas_longitudinais":
		return AssetMarcasLongitudinais, nil
	case "tacha", "taxas":
		return AssetTachas, nil
	case "cilindro", "cilindros_delimitadores", "delineadores":
		return AssetCilindros, nil
	case "defensa", "barreira", "barreiras", "dispositivo_de_contencao":
		return AssetDefensas, nil
	}
	return "", eris.Wrapf(ErrUnknownAssetType, "model: parse asset type %q", s)
}
