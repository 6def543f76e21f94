package model

// Service is the maintenance action applied to an asset.
type Service string

const (
	ServiceImplantar  Service = "Implantar"
	ServiceSubstituir Service = "Substituir"
	ServiceRemover    Service = "Remover"
	ServiceManter     Service = "Manter"
)

// Canonical reports whether s is one of the four known actions. Declared
// services that could not be normalized keep their raw text and are not
// canonical.
func (s Service) Canonical() bool {
	switch s {
	case ServiceImplantar, ServiceSubstituir, ServiceRemover, ServiceManter:
		return true
	}
	return false
}

// MatchTier classifies the confidence of a linear match by overlap.
type MatchTier string

const (
	TierExato   MatchTier = "exato"
	TierAlto    MatchTier = "alto"
	TierParcial MatchTier = "parcial"
)

// Origin records how an inventory record came to exist.
type Origin string

const (
	OriginCadastroInicial Origin = "cadastro_inicial"
	OriginNecessidade     Origin = "necessidade"
)

// Source is the side an operator trusted when closing a divergence.
type Source string

const (
	SourceProjeto    Source = "projeto"
	SourceInferencia Source = "inferencia"
)

// WorkflowStatus is the reconciliation state of a need.
type WorkflowStatus string

const (
	StatusSemDivergencia    WorkflowStatus = "sem_divergencia"
	StatusPendenteAprovacao WorkflowStatus = "pendente_aprovacao"
	StatusAprovado          WorkflowStatus = "aprovado"
	StatusRejeitado         WorkflowStatus = "rejeitado"
)

// ConflictKind names an inconsistency between need rows.
type ConflictKind string

const (
	ConflictContradictory ConflictKind = "SERVICO_CONTRADICTORIO"
	ConflictDuplicate     ConflictKind = "DUPLICATA_PROJETO"
)
