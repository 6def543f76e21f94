package model

import (
	"encoding/json"
	"strconv"

	"github.com/rotisserie/eris"
)

// Attributes is the per-type attribute variant attached to a need or an
// inventory record. Each implementation carries only the fields its
// compatibility rules read.
type Attributes interface {
	AssetType() AssetType
	// Fields lists the attribute values in a stable order for exports.
	Fields() []Field
}

// Field is one named attribute value rendered as text.
type Field struct {
	Name  string
	Value string
}

// SignAttributes describes a vertical sign (placas).
type SignAttributes struct {
	Codigo    string `json:"codigo,omitempty"`
	Tipo      string `json:"tipo,omitempty"`
	Suporte   string `json:"suporte,omitempty"`
	Substrato string `json:"substrato,omitempty"`
}

// GantryAttributes describes a gantry or half-gantry (porticos).
type GantryAttributes struct {
	Tipo           string   `json:"tipo,omitempty"`
	VaoHorizontalM *float64 `json:"vao_horizontal_m,omitempty"`
	AlturaLivreM   *float64 `json:"altura_livre_m,omitempty"`
}

// InscriptionAttributes describes a pavement inscription (inscricoes).
type InscriptionAttributes struct {
	Sigla         string   `json:"sigla,omitempty"`
	TipoInscricao string   `json:"tipo_inscricao,omitempty"`
	Cor           string   `json:"cor,omitempty"`
	AreaM2        *float64 `json:"area_m2,omitempty"`
}

// LongitudinalMarkAttributes describes a painted line (marcas_longitudinais).
type LongitudinalMarkAttributes struct {
	Posicao        string   `json:"posicao,omitempty"`
	Cor            string   `json:"cor,omitempty"`
	TipoDemarcacao string   `json:"tipo_demarcacao,omitempty"`
	LarguraCm      *float64 `json:"largura_cm,omitempty"`
}

// StudAttributes describes a run of retroreflective studs (tachas).
type StudAttributes struct {
	LocalImplantacao string `json:"local_implantacao,omitempty"`
	Corpo            string `json:"corpo,omitempty"`
	Refletivo        string `json:"refletivo,omitempty"`
	CorRefletivo     string `json:"cor_refletivo,omitempty"`
}

// CylinderAttributes describes a run of delineator cylinders (cilindros).
type CylinderAttributes struct {
	LocalImplantacao string `json:"local_implantacao,omitempty"`
	CorCorpo         string `json:"cor_corpo,omitempty"`
	CorRefletivo     string `json:"cor_refletivo,omitempty"`
}

// BarrierAttributes describes a guardrail or barrier (defensas).
type BarrierAttributes struct {
	Funcao                     string `json:"funcao,omitempty"`
	EspecificacaoObstaculoFixo string `json:"especificacao_obstaculo_fixo,omitempty"`
	NivelContencaoEN1317       string `json:"nivel_contencao_en1317,omitempty"`
	NivelContencaoNCHRP350     string `json:"nivel_contencao_nchrp350,omitempty"`
	Geometria                  string `json:"geometria,omitempty"`
}

func (*SignAttributes) AssetType() AssetType             { return AssetPlacas }
func (*GantryAttributes) AssetType() AssetType           { return AssetPorticos }
func (*InscriptionAttributes) AssetType() AssetType      { return AssetInscricoes }
func (*LongitudinalMarkAttributes) AssetType() AssetType { return AssetMarcasLongitudinais }
func (*StudAttributes) AssetType() AssetType             { return AssetTachas }
func (*CylinderAttributes) AssetType() AssetType         { return AssetCilindros }
func (*BarrierAttributes) AssetType() AssetType          { return AssetDefensas }

func (a *SignAttributes) Fields() []Field {
	return []Field{{"codigo", a.Codigo}, {"tipo", a.Tipo}, {"suporte", a.Suporte}, {"substrato", a.Substrato}}
}

func (a *GantryAttributes) Fields() []Field {
	return []Field{{"tipo", a.Tipo}, {"vao_horizontal_m", formatNumber(a.VaoHorizontalM)}, {"altura_livre_m", formatNumber(a.AlturaLivreM)}}
}

func (a *InscriptionAttributes) Fields() []Field {
	return []Field{{"sigla", a.Sigla}, {"tipo_inscricao", a.TipoInscricao}, {"cor", a.Cor}, {"area_m2", formatNumber(a.AreaM2)}}
}

func (a *LongitudinalMarkAttributes) Fields() []Field {
	return []Field{{"posicao", a.Posicao}, {"cor", a.Cor}, {"tipo_demarcacao", a.TipoDemarcacao}, {"largura_cm", formatNumber(a.LarguraCm)}}
}

func (a *StudAttributes) Fields() []Field {
	return []Field{{"local_implantacao", a.LocalImplantacao}, {"corpo", a.Corpo}, {"refletivo", a.Refletivo}, {"cor_refletivo", a.CorRefletivo}}
}

func (a *CylinderAttributes) Fields() []Field {
	return []Field{{"local_implantacao", a.LocalImplantacao}, {"cor_corpo", a.CorCorpo}, {"cor_refletivo", a.CorRefletivo}}
}

func (a *BarrierAttributes) Fields() []Field {
	return []Field{
		{"funcao", a.Funcao},
		{"especificacao_obstaculo_fixo", a.EspecificacaoObstaculoFixo},
		{"nivel_contencao_en1317", a.NivelContencaoEN1317},
		{"nivel_contencao_nchrp350", a.NivelContencaoNCHRP350},
		{"geometria", a.Geometria},
	}
}

func formatNumber(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// NewAttributes returns the empty attribute variant for t.
func NewAttributes(t AssetType) (Attributes, error) {
	switch t {
	case AssetPlacas:
		return &SignAttributes{}, nil
	case AssetPorticos:
		return &GantryAttributes{}, nil
	case AssetInscricoes:
		return &InscriptionAttributes{}, nil
	case AssetMarcasLongitudinais:
		return &LongitudinalMarkAttributes{}, nil
	case AssetTachas:
		return &StudAttributes{}, nil
	case AssetCilindros:
		return &CylinderAttributes{}, nil
	case AssetDefensas:
		return &BarrierAttributes{}, nil
	}
	return nil, eris.Wrapf(ErrUnknownAssetType, "model: attributes for %q", t)
}

// DecodeAttributes unmarshals a stored JSON attribute document into the
// variant for t. Empty input yields the empty variant.
func DecodeAttributes(t AssetType, raw []byte) (Attributes, error) {
	attrs, err := NewAttributes(t)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return attrs, nil
	}
	if err := json.Unmarshal(raw, attrs); err != nil {
		return nil, eris.Wrapf(err, "model: decode %s attributes", t)
	}
	return attrs, nil
}

// EncodeAttributes marshals attrs to JSON for storage. A nil variant is
// stored as an empty object.
func EncodeAttributes(attrs Attributes) ([]byte, error) {
	if attrs == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return nil, eris.Wrap(err, "model: encode attributes")
	}
	return data, nil
}

// FieldSet is a bag of raw spreadsheet values keyed by folded column name.
type FieldSet map[string]string

// Get returns the first non-blank value among names.
func (f FieldSet) Get(names ...string) string {
	for _, n := range names {
		if v, ok := f[Fold(n)]; ok && !Blank(v) {
			return v
		}
	}
	return ""
}

// Number parses the first non-blank numeric value among names.
func (f FieldSet) Number(names ...string) *float64 {
	for _, n := range names {
		if v, ok := f[Fold(n)]; ok {
			if p := ParseNumber(v); p != nil {
				return p
			}
		}
	}
	return nil
}

// AttributesFromFields builds the variant for t out of raw column values.
// Column names are matched after folding, so "Código" and "codigo" are the
// same key.
func AttributesFromFields(t AssetType, f FieldSet) (Attributes, error) {
	switch t {
	case AssetPlacas:
		return &SignAttributes{
			Codigo:    f.Get("codigo", "codigo_placa", "cod"),
			Tipo:      f.Get("tipo", "tipo_placa"),
			Suporte:   f.Get("suporte", "tipo_suporte"),
			Substrato: f.Get("substrato", "tipo_substrato"),
		}, nil
	case AssetPorticos:
		return &GantryAttributes{
			Tipo:           f.Get("tipo", "tipo_portico"),
			VaoHorizontalM: f.Number("vao_horizontal_m", "vao_horizontal", "vao"),
			AlturaLivreM:   f.Number("altura_livre_m", "altura_livre", "altura"),
		}, nil
	case AssetInscricoes:
		return &InscriptionAttributes{
			Sigla:         f.Get("sigla"),
			TipoInscricao: f.Get("tipo_inscricao", "tipo"),
			Cor:           f.Get("cor"),
			AreaM2:        f.Number("area_m2", "area"),
		}, nil
	case AssetMarcasLongitudinais:
		return &LongitudinalMarkAttributes{
			Posicao:        f.Get("posicao"),
			Cor:            f.Get("cor"),
			TipoDemarcacao: f.Get("tipo_demarcacao", "codigo", "tipo"),
			LarguraCm:      f.Number("largura_cm", "largura"),
		}, nil
	case AssetTachas:
		return &StudAttributes{
			LocalImplantacao: f.Get("local_implantacao", "local"),
			Corpo:            f.Get("corpo", "cor_corpo"),
			Refletivo:        f.Get("refletivo", "tipo_refletivo"),
			CorRefletivo:     f.Get("cor_refletivo"),
		}, nil
	case AssetCilindros:
		return &CylinderAttributes{
			LocalImplantacao: f.Get("local_implantacao", "local"),
			CorCorpo:         f.Get("cor_corpo", "corpo"),
			CorRefletivo:     f.Get("cor_refletivo"),
		}, nil
	case AssetDefensas:
		return &BarrierAttributes{
			Funcao:                     f.Get("funcao"),
			EspecificacaoObstaculoFixo: f.Get("especificacao_obstaculo_fixo", "obstaculo_fixo"),
			NivelContencaoEN1317:       f.Get("nivel_contencao_en1317", "en1317"),
			NivelContencaoNCHRP350:     f.Get("nivel_contencao_nchrp350", "nchrp350"),
			Geometria:                  f.Get("geometria"),
		}, nil
	}
	return nil, eris.Wrapf(ErrUnknownAssetType, "model: attributes for %q", t)
}
