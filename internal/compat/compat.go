// Package compat decides whether a need and an inventory record describe
// the same physical object, using per-asset-type attribute rules.
//
// Rules are conjunctive and open-world: an attribute only takes part when
// both sides carry a value. The exception is a defining attribute, which a
// candidate must always have.
package compat

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/casampa-lab/sinaliza/internal/model"
)

// Tolerances for numeric attributes.
const (
	LarguraToleranceCm = 2.0
	RelativeTolerance  = 0.10
)

// Compatible reports whether candidate may be the inventory object that
// need refers to.
func Compatible(t model.AssetType, need, candidate model.Features) bool {
	return Check(t, need, candidate) == ""
}

// Check is Compatible with the reason for a rejection. It returns "" when
// the candidate is accepted.
func Check(t model.AssetType, need, candidate model.Features) string {
	if reason := requiredMissing(t, candidate.Attrs); reason != "" {
		return reason
	}
	return compare(t, need, candidate)
}

// Equivalent reports whether two need rows describe the same element. It
// applies the same rules as Check but skips the defining-attribute
// requirement, since project rows are often sparsely filled.
func Equivalent(t model.AssetType, a, b model.Features) bool {
	return compare(t, a, b) == ""
}

func compare(t model.AssetType, need, cand model.Features) string {
	if !t.Valid() {
		return fmt.Sprintf("unknown asset type %q", t)
	}
	if !sidesAgree(t, need.Side, cand.Side) {
		return fmt.Sprintf("lado %q != %q", need.Side, cand.Side)
	}
	na, err := orEmpty(t, need.Attrs)
	if err != nil {
		return err.Error()
	}
	ca, err := orEmpty(t, cand.Attrs)
	if err != nil {
		return err.Error()
	}

	switch n := na.(type) {
	case *model.SignAttributes:
		c := ca.(*model.SignAttributes)
		return firstReason(
			sameCode("codigo", n.Codigo, c.Codigo),
			same("tipo", n.Tipo, c.Tipo),
			same("suporte", n.Suporte, c.Suporte),
			same("substrato", n.Substrato, c.Substrato),
		)
	case *model.GantryAttributes:
		c := ca.(*model.GantryAttributes)
		return firstReason(
			same("tipo", n.Tipo, c.Tipo),
			within("vao_horizontal_m", n.VaoHorizontalM, c.VaoHorizontalM),
			within("altura_livre_m", n.AlturaLivreM, c.AlturaLivreM),
		)
	case *model.InscriptionAttributes:
		c := ca.(*model.InscriptionAttributes)
		return firstReason(
			same("sigla", n.Sigla, c.Sigla),
			same("tipo_inscricao", n.TipoInscricao, c.TipoInscricao),
			same("cor", n.Cor, c.Cor),
			within("area_m2", n.AreaM2, c.AreaM2),
		)
	case *model.LongitudinalMarkAttributes:
		c := ca.(*model.LongitudinalMarkAttributes)
		return firstReason(
			same("posicao", n.Posicao, c.Posicao),
			same("cor", n.Cor, c.Cor),
			same("tipo_demarcacao", n.TipoDemarcacao, c.TipoDemarcacao),
			withinAbs("largura_cm", n.LarguraCm, c.LarguraCm, LarguraToleranceCm),
		)
	case *model.StudAttributes:
		c := ca.(*model.StudAttributes)
		return firstReason(
			same("local_implantacao", n.LocalImplantacao, c.LocalImplantacao),
			same("corpo", n.Corpo, c.Corpo),
			same("refletivo", n.Refletivo, c.Refletivo),
			same("cor_refletivo", n.CorRefletivo, c.CorRefletivo),
		)
	case *model.CylinderAttributes:
		c := ca.(*model.CylinderAttributes)
		return firstReason(
			same("local_implantacao", n.LocalImplantacao, c.LocalImplantacao),
			same("cor_corpo", n.CorCorpo, c.CorCorpo),
			same("cor_refletivo", n.CorRefletivo, c.CorRefletivo),
		)
	case *model.BarrierAttributes:
		c := ca.(*model.BarrierAttributes)
		return firstReason(
			same("funcao", n.Funcao, c.Funcao),
			same("especificacao_obstaculo_fixo", n.EspecificacaoObstaculoFixo, c.EspecificacaoObstaculoFixo),
			same("nivel_contencao_en1317", n.NivelContencaoEN1317, c.NivelContencaoEN1317),
			same("nivel_contencao_nchrp350", n.NivelContencaoNCHRP350, c.NivelContencaoNCHRP350),
			same("geometria", n.Geometria, c.Geometria),
		)
	}
	return fmt.Sprintf("no rules for %q", t)
}

// requiredMissing rejects candidates that lack their type's defining
// attribute, whatever the need says.
func requiredMissing(t model.AssetType, attrs model.Attributes) string {
	var name, value string
	switch a := attrs.(type) {
	case *model.SignAttributes:
		name, value = "codigo", a.Codigo
	case *model.GantryAttributes:
		name, value = "tipo", a.Tipo
	case *model.StudAttributes:
		name, value = "local_implantacao", a.LocalImplantacao
	case *model.CylinderAttributes:
		name, value = "local_implantacao", a.LocalImplantacao
	case *model.BarrierAttributes:
		name, value = "funcao", a.Funcao
	case nil:
		switch t {
		case model.AssetPlacas, model.AssetPorticos, model.AssetTachas, model.AssetCilindros, model.AssetDefensas:
			return "candidate has no attributes"
		}
		return ""
	default:
		return ""
	}
	if model.Blank(value) {
		return "candidate missing " + name
	}
	return ""
}

// orEmpty substitutes the empty variant for nil and rejects variants of
// another asset type.
func orEmpty(t model.AssetType, attrs model.Attributes) (model.Attributes, error) {
	if attrs == nil {
		return model.NewAttributes(t)
	}
	if attrs.AssetType() != t {
		return nil, fmt.Errorf("attributes of %s on a %s record", attrs.AssetType(), t)
	}
	return attrs, nil
}

func firstReason(reasons ...string) string {
	for _, r := range reasons {
		if r != "" {
			return r
		}
	}
	return ""
}

func same(name, a, b string) string {
	if model.Blank(a) || model.Blank(b) {
		return ""
	}
	if !model.SameText(a, b) {
		return fmt.Sprintf("%s %q != %q", name, a, b)
	}
	return ""
}

// sameCode compares sign codes ignoring punctuation and spacing, so "R-1",
// "R1" and "r 1" are one code.
func sameCode(name, a, b string) string {
	if model.Blank(a) || model.Blank(b) {
		return ""
	}
	if codeKey(a) != codeKey(b) {
		return fmt.Sprintf("%s %q != %q", name, a, b)
	}
	return ""
}

func codeKey(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, model.Fold(s))
}

// within accepts values that differ by at most RelativeTolerance of the
// need's value.
func within(name string, need, cand *float64) string {
	if need == nil || cand == nil {
		return ""
	}
	return withinAbs(name, need, cand, math.Abs(*need)*RelativeTolerance)
}

func withinAbs(name string, need, cand *float64, tol float64) string {
	if need == nil || cand == nil {
		return ""
	}
	if math.Abs(*need-*cand) > tol+1e-9 {
		return fmt.Sprintf("%s %g outside ±%g of %g", name, *cand, tol, *need)
	}
	return ""
}
