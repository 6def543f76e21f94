// Package inference derives the maintenance action implied by a matching
// outcome and normalizes the free-text services declared in project plans.
package inference

import (
	"strings"

	"github.com/casampa-lab/sinaliza/internal/model"
)

// serviceKeywords maps substrings of folded text to canonical services,
// checked in order.
var serviceKeywords = []struct {
	service  model.Service
	keywords []string
}{
	{model.ServiceImplantar, []string{"implant", "instal"}},
	{model.ServiceSubstituir, []string{"substit", "troca"}},
	{model.ServiceRemover, []string{"remov", "remoc", "desativ", "retir"}},
	{model.ServiceManter, []string{"manter", "manut", "mantid"}},
}

// NormalizeService maps a declared service such as "Implantação",
// "TROCA" or "retirar placa" onto a canonical Service. Text outside the
// known vocabulary is returned trimmed and unchanged with ok=false; blank
// text returns "" and ok=false.
func NormalizeService(raw string) (svc model.Service, ok bool) {
	trimmed := strings.TrimSpace(raw)
	if model.Blank(trimmed) {
		return "", false
	}
	folded := model.Fold(trimmed)
	for _, entry := range serviceKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(folded, kw) {
				return entry.service, true
			}
		}
	}
	return model.Service(trimmed), false
}

// Infer returns the action implied by the matching outcome: Implantar when
// nothing was matched, Remover when the plan zeroes the quantity or the
// extension or its solution mentions a removal, otherwise Substituir.
func Infer(matched bool, need *model.NeedRecord) model.Service {
	if !matched {
		return model.ServiceImplantar
	}
	if RemovalDeclared(need) {
		return model.ServiceRemover
	}
	return model.ServiceSubstituir
}

// RemovalDeclared reports whether the plan signals that the matched asset
// goes away.
func RemovalDeclared(need *model.NeedRecord) bool {
	if need.Quantity != nil && *need.Quantity == 0 {
		return true
	}
	if need.Extension != nil && *need.Extension == 0 {
		return true
	}
	solution := model.Fold(need.Solution)
	return strings.Contains(solution, "remov") || strings.Contains(solution, "remoc")
}
