// Package report writes reconciliation results to XLSX workbooks for the
// operators who review them.
package report

import (
	"io"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/casampa-lab/sinaliza/internal/model"
)

// needColumns is the ordered header of the needs sheet. Attribute columns
// of the asset type follow these.
var needColumns = []string{
	"ID",
	"Linha",
	"Lote",
	"Rodovia",
	"Tipo",
	"Km",
	"Km Inicial",
	"Km Final",
	"Latitude",
	"Longitude",
	"Lado",
	"Serviço Declarado",
	"Serviço Inferido",
	"Serviço Final",
	"Cadastro Vinculado",
	"Distância (m)",
	"Sobreposição (%)",
	"Faixa",
	"Divergência",
	"Status",
	"Fonte Escolhida",
	"Decidido Por",
	"Decidido Em",
	"Justificativa",
	"Conflito",
	"Detalhes Conflito",
}

var conflictColumns = []string{
	"ID",
	"Tipo",
	"Lote",
	"Rodovia",
	"Tipo Ativo",
	"Necessidade A",
	"Linha A",
	"Necessidade B",
	"Linha B",
	"Detalhes",
	"Resolvido",
	"Resolvido Por",
	"Resolvido Em",
	"Justificativa",
}

// Sheet names.
const (
	SheetNeeds     = "Necessidades"
	SheetConflicts = "Conflitos"
)

// Build assembles a workbook with one row per need and, when conflicts is
// non-empty, a second sheet listing them.
func Build(t model.AssetType, needs []model.NeedRecord, conflicts []model.ConflictRecord) (*xlsx.File, error) {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet(SheetNeeds)
	if err != nil {
		return nil, eris.Wrap(err, "report: add needs sheet")
	}
	header := append([]string{}, needColumns...)
	attrNames := attributeNames(t)
	header = append(header, attrNames...)
	addRow(sheet, header)
	for i := range needs {
		addRow(sheet, append(buildNeedRow(&needs[i]), attributeValues(needs[i].Attrs, len(attrNames))...))
	}

	if len(conflicts) > 0 {
		cs, err := f.AddSheet(SheetConflicts)
		if err != nil {
			return nil, eris.Wrap(err, "report: add conflicts sheet")
		}
		addRow(cs, conflictColumns)
		for i := range conflicts {
			addRow(cs, buildConflictRow(&conflicts[i]))
		}
	}
	return f, nil
}

// Save writes the workbook to path.
func Save(path string, t model.AssetType, needs []model.NeedRecord, conflicts []model.ConflictRecord) error {
	f, err := Build(t, needs, conflicts)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Save(path), "report: save workbook")
}

// Write streams the workbook to w.
func Write(w io.Writer, t model.AssetType, needs []model.NeedRecord, conflicts []model.ConflictRecord) error {
	f, err := Build(t, needs, conflicts)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "report: write workbook")
}

func addRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

func buildNeedRow(n *model.NeedRecord) []string {
	g := n.Geometry
	var lat, lon string
	switch {
	case g.Coord != nil:
		lat, lon = num(&g.Coord.Lat), num(&g.Coord.Lon)
	case g.CoordStart != nil:
		lat, lon = num(&g.CoordStart.Lat), num(&g.CoordStart.Lon)
	}

	var source, decidedBy, decidedAt, justification string
	if d := n.Decision; d != nil {
		source, decidedBy, justification = string(d.ChosenSource), d.DecidedBy, d.Justification
		decidedAt = stamp(&d.DecidedAt)
	}

	return []string{
		n.ID,
		strconv.Itoa(n.SourceRow),
		n.LotID,
		n.HighwayID,
		string(n.AssetType),
		num(g.Km),
		num(g.KmStart),
		num(g.KmEnd),
		lat,
		lon,
		n.Side,
		n.DeclaredService,
		string(n.InferredService),
		string(n.FinalService),
		n.MatchedInventoryID,
		num(n.MatchDistanceM),
		num(n.MatchOverlapPct),
		string(n.MatchTier),
		yesNo(n.Divergence),
		string(n.Status()),
		source,
		decidedBy,
		decidedAt,
		justification,
		string(n.ConflictKind),
		n.ConflictDetails,
	}
}

func buildConflictRow(c *model.ConflictRecord) []string {
	return []string{
		c.ID,
		string(c.Kind),
		c.LotID,
		c.HighwayID,
		string(c.AssetType),
		c.NeedAID,
		strconv.Itoa(c.RowA),
		c.NeedBID,
		strconv.Itoa(c.RowB),
		c.Details,
		yesNo(c.Resolved),
		c.ResolvedBy,
		stamp(c.ResolvedAt),
		c.Justification,
	}
}

func attributeNames(t model.AssetType) []string {
	attrs, err := model.NewAttributes(t)
	if err != nil {
		return nil
	}
	fields := attrs.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

func attributeValues(attrs model.Attributes, n int) []string {
	out := make([]string, n)
	if attrs == nil {
		return out
	}
	for i, f := range attrs.Fields() {
		if i < n {
			out[i] = f.Value
		}
	}
	return out
}

func num(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func stamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func yesNo(b bool) string {
	if b {
		return "Sim"
	}
	return "Não"
}
