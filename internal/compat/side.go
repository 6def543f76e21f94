package compat

import (
	"strings"

	"github.com/casampa-lab/sinaliza/internal/model"
)

// Side is a normalized lado value.
type Side string

const (
	SideNone     Side = ""
	SideEsquerdo Side = "esquerdo"
	SideDireito  Side = "direito"
	SideEixo     Side = "eixo"
	SideAmbos    Side = "ambos"
)

// NormalizeSide maps free text such as "Lado Direito", "LD" or "Eixo
// central" onto a Side. Unrecognized text is returned folded so that two
// identical unknown values still compare equal.
func NormalizeSide(s string) Side {
	f := model.Fold(s)
	if model.Blank(f) {
		return SideNone
	}
	switch f {
	case "e", "le":
		return SideEsquerdo
	case "d", "ld":
		return SideDireito
	case "c", "ce":
		return SideEixo
	case "a", "ae":
		return SideAmbos
	}
	switch {
	case strings.Contains(f, "amb"):
		return SideAmbos
	case strings.Contains(f, "esq"):
		return SideEsquerdo
	case strings.Contains(f, "dir"):
		return SideDireito
	case strings.Contains(f, "eix"), strings.Contains(f, "central"):
		return SideEixo
	}
	return Side(f)
}

type sidePolicy int

const (
	sideIgnored sidePolicy = iota
	sideExact
	sideAmbosWildcard
)

var sidePolicies = map[model.AssetType]sidePolicy{
	model.AssetPlacas:              sideExact,
	model.AssetPorticos:            sideExact,
	model.AssetMarcasLongitudinais: sideExact,
	model.AssetDefensas:            sideExact,
	model.AssetTachas:              sideAmbosWildcard,
}

// sidesAgree applies the per-type side policy. Blank sides never block.
func sidesAgree(t model.AssetType, a, b string) bool {
	policy := sidePolicies[t]
	if policy == sideIgnored {
		return true
	}
	sa, sb := NormalizeSide(a), NormalizeSide(b)
	if sa == SideNone || sb == SideNone {
		return true
	}
	if policy == sideAmbosWildcard && (sa == SideAmbos || sb == SideAmbos) {
		return true
	}
	return sa == sb
}
