// Package importer maps spreadsheet and shapefile tables onto need and
// inventory records. Column headers are matched by alias after folding
// case, accents and punctuation, so "Km Inicial", "KM_INICIAL" and
// "km-inicial" are one column.
package importer

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/casampa-lab/sinaliza/internal/divergence"
	"github.com/casampa-lab/sinaliza/internal/fetcher"
	"github.com/casampa-lab/sinaliza/internal/inference"
	"github.com/casampa-lab/sinaliza/internal/model"
)

// Column aliases, most specific first.
var (
	colID        = []string{"id", "codigo_inventario", "id_cadastro"}
	colLot       = []string{"lote", "lot", "lot_id"}
	colHighway   = []string{"rodovia", "highway", "highway_id", "br"}
	colKm        = []string{"km", "km_ponto", "quilometro"}
	colLat       = []string{"latitude", "lat"}
	colLon       = []string{"longitude", "lon", "long"}
	colKmStart   = []string{"km_inicial", "km_inicio", "km_ini"}
	colKmEnd     = []string{"km_final", "km_fim"}
	colLatStart  = []string{"latitude_inicial", "lat_inicial", "lat_ini"}
	colLonStart  = []string{"longitude_inicial", "lon_inicial", "long_inicial", "lon_ini"}
	colLatEnd    = []string{"latitude_final", "lat_final", "lat_fim"}
	colLonEnd    = []string{"longitude_final", "lon_final", "long_final", "lon_fim"}
	colSide      = []string{"lado", "posicao_pista"}
	colService   = []string{"servico", "servico_declarado", "acao", "tipo_servico"}
	colQuantity  = []string{"quantidade", "qtd", "qtde"}
	colExtension = []string{"extensao", "extensao_m", "extensao_km", "comprimento"}
	colSolution  = []string{"solucao", "solucao_proposta"}
	colActive    = []string{"ativo", "active"}
	colOrigin    = []string{"origem", "origin"}
)

// RowError is a row that could not be imported.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// NeedOptions scopes an import of project needs. Lot and highway fall back
// to the "lote" and "rodovia" columns when empty.
type NeedOptions struct {
	LotID     string
	HighwayID string
	AssetType model.AssetType
}

// NeedResult is the outcome of mapping a needs table.
type NeedResult struct {
	Needs   []model.NeedRecord
	Skipped []RowError
}

// Needs maps every row of tbl to a NeedRecord. Rows with unusable geometry
// are kept so the batch orchestrator can report them; rows without a lot
// or highway are skipped.
func Needs(tbl *fetcher.Table, opts NeedOptions) (*NeedResult, error) {
	if !opts.AssetType.Valid() {
		return nil, eris.Wrapf(model.ErrUnknownAssetType, "importer: asset type %q", opts.AssetType)
	}
	if tbl == nil || len(tbl.Header) == 0 {
		return nil, eris.Wrap(model.ErrValidation, "importer: table has no header")
	}
	keys := headerKeys(tbl.Header)

	res := &NeedResult{}
	for _, row := range tbl.Rows {
		f := fieldSet(keys, row)
		if isEmpty(f) {
			continue
		}
		n := model.NeedRecord{
			ID:              uuid.New().String(),
			AssetType:       opts.AssetType,
			LotID:           firstNonEmpty(opts.LotID, f.Get(colLot...)),
			HighwayID:       firstNonEmpty(opts.HighwayID, f.Get(colHighway...)),
			SourceRow:       row.Number,
			Geometry:        geometryFrom(f, opts.AssetType),
			Side:            f.Get(colSide...),
			DeclaredService: f.Get(colService...),
			Quantity:        f.Number(colQuantity...),
			Extension:       f.Number(colExtension...),
			Solution:        f.Get(colSolution...),
		}
		if n.LotID == "" || n.HighwayID == "" {
			res.Skipped = append(res.Skipped, RowError{Row: row.Number, Message: "missing lote or rodovia"})
			continue
		}
		attrs, err := model.AttributesFromFields(opts.AssetType, f)
		if err != nil {
			return nil, eris.Wrap(err, "importer: attributes")
		}
		n.Attrs = attrs
		// Unmatched until the first match run.
		n.InferredService = inference.Infer(false, &n)
		n.FinalService = divergence.Evaluate(opts.AssetType, n.DeclaredService, n.InferredService, false).Final
		if err := n.Geometry.Validate(opts.AssetType.GeometryKind()); err != nil {
			zap.L().Warn("importer: need without usable geometry",
				zap.Int("row", row.Number),
				zap.String("asset_type", string(opts.AssetType)),
			)
		}
		res.Needs = append(res.Needs, n)
	}
	return res, nil
}

// InventoryOptions scopes an import of surveyed assets.
type InventoryOptions struct {
	HighwayID string
	AssetType model.AssetType
}

// InventoryResult is the outcome of mapping an inventory table.
type InventoryResult struct {
	Records []model.InventoryRecord
	Skipped []RowError
}

// Inventory maps every row of tbl to an InventoryRecord of the initial
// survey. Rows without usable geometry can never be matched and are
// skipped.
func Inventory(tbl *fetcher.Table, opts InventoryOptions) (*InventoryResult, error) {
	if !opts.AssetType.Valid() {
		return nil, eris.Wrapf(model.ErrUnknownAssetType, "importer: asset type %q", opts.AssetType)
	}
	if tbl == nil || len(tbl.Header) == 0 {
		return nil, eris.Wrap(model.ErrValidation, "importer: table has no header")
	}
	keys := headerKeys(tbl.Header)

	res := &InventoryResult{}
	for _, row := range tbl.Rows {
		f := fieldSet(keys, row)
		if isEmpty(f) {
			continue
		}
		r := model.InventoryRecord{
			ID:        firstNonEmpty(f.Get(colID...), uuid.New().String()),
			AssetType: opts.AssetType,
			HighwayID: firstNonEmpty(opts.HighwayID, f.Get(colHighway...)),
			Geometry:  geometryFrom(f, opts.AssetType),
			Side:      f.Get(colSide...),
			Origin:    parseOrigin(f.Get(colOrigin...)),
			Active:    parseActive(f.Get(colActive...)),
		}
		if r.HighwayID == "" {
			res.Skipped = append(res.Skipped, RowError{Row: row.Number, Message: "missing rodovia"})
			continue
		}
		if err := r.Geometry.Validate(opts.AssetType.GeometryKind()); err != nil {
			res.Skipped = append(res.Skipped, RowError{Row: row.Number, Message: err.Error()})
			continue
		}
		attrs, err := model.AttributesFromFields(opts.AssetType, f)
		if err != nil {
			return nil, eris.Wrap(err, "importer: attributes")
		}
		r.Attrs = attrs
		res.Records = append(res.Records, r)
	}
	return res, nil
}

func geometryFrom(f model.FieldSet, t model.AssetType) model.Geometry {
	if t.Linear() {
		return model.Geometry{
			KmStart:    f.Number(colKmStart...),
			KmEnd:      f.Number(colKmEnd...),
			CoordStart: coord(f, colLatStart, colLonStart),
			CoordEnd:   coord(f, colLatEnd, colLonEnd),
		}
	}
	return model.Geometry{
		Km:    f.Number(colKm...),
		Coord: coord(f, colLat, colLon),
	}
}

func coord(f model.FieldSet, latCols, lonCols []string) *model.Coord {
	lat, lon := f.Number(latCols...), f.Number(lonCols...)
	if lat == nil || lon == nil {
		return nil
	}
	if *lat < -90 || *lat > 90 || *lon < -180 || *lon > 180 {
		return nil
	}
	return &model.Coord{Lat: *lat, Lon: *lon}
}

func parseActive(s string) bool {
	switch model.Fold(s) {
	case "nao", "n", "false", "0", "inativo":
		return false
	}
	return true
}

// parseOrigin reads the origem column; surveys without it are the initial
// inventory.
func parseOrigin(s string) model.Origin {
	if strings.HasPrefix(model.Fold(s), "necessidade") {
		return model.OriginNecessidade
	}
	return model.OriginCadastroInicial
}

// headerKey folds a column header into the alias form: lowercase ASCII
// words joined by underscores.
func headerKey(h string) string {
	folded := model.Fold(h)
	var b strings.Builder
	sep := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if sep && b.Len() > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			sep = false
			continue
		}
		sep = true
	}
	return b.String()
}

func headerKeys(header []string) []string {
	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = headerKey(h)
	}
	return keys
}

// fieldSet keys the row by folded header. The first column wins when two
// headers fold to the same key.
func fieldSet(keys []string, row fetcher.Row) model.FieldSet {
	f := make(model.FieldSet, len(keys))
	for i, k := range keys {
		if k == "" {
			continue
		}
		if _, dup := f[k]; dup {
			continue
		}
		f[k] = row.Get(i)
	}
	return f
}

func isEmpty(f model.FieldSet) bool {
	for _, v := range f {
		if !model.Blank(v) {
			return false
		}
	}
	return true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
