package model

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// Selection scopes a batch to one lot, highway and asset type.
type Selection struct {
	LotID     string    `json:"lot_id"`
	HighwayID string    `json:"highway_id"`
	AssetType AssetType `json:"asset_type"`
}

// Validate checks that every part of the selection is present.
func (s Selection) Validate() error {
	if s.LotID == "" || s.HighwayID == "" {
		return eris.Wrap(ErrValidation, "selection requires lot_id and highway_id")
	}
	if !s.AssetType.Valid() {
		return eris.Wrapf(ErrUnknownAssetType, "selection asset type %q", s.AssetType)
	}
	return nil
}

// Features is the part of a record the compatibility rules look at.
type Features struct {
	Side  string
	Attrs Attributes
}

// NeedRecord is one row of the imported project plan.
type NeedRecord struct {
	ID        string     `json:"id"`
	AssetType AssetType  `json:"asset_type"`
	LotID     string     `json:"lot_id"`
	HighwayID string     `json:"highway_id"`
	SourceRow int        `json:"source_row,omitempty"`
	Geometry  Geometry   `json:"geometry"`
	Side      string     `json:"lado,omitempty"`
	Attrs     Attributes `json:"-"`

	DeclaredService string   `json:"servico_declarado,omitempty"`
	Quantity        *float64 `json:"quantidade,omitempty"`
	Extension       *float64 `json:"extensao,omitempty"`
	Solution        string   `json:"solucao,omitempty"`

	InferredService    Service   `json:"servico_inferido,omitempty"`
	FinalService       Service   `json:"servico_final,omitempty"`
	MatchedInventoryID string    `json:"match_inventory_id,omitempty"`
	MatchDistanceM     *float64  `json:"match_distance_m,omitempty"`
	MatchOverlapPct    *float64  `json:"match_overlap_pct,omitempty"`
	MatchTier          MatchTier `json:"match_tier,omitempty"`

	Divergence bool                    `json:"divergencia"`
	Reconciled bool                    `json:"reconciliado"`
	Decision   *ReconciliationDecision `json:"decisao,omitempty"`

	HasConflict     bool         `json:"tem_conflito"`
	ConflictKind    ConflictKind `json:"tipo_conflito,omitempty"`
	ConflictDetails string       `json:"detalhes_conflito,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Features returns the side and attributes used by compatibility checks.
func (n *NeedRecord) Features() Features {
	return Features{Side: n.Side, Attrs: n.Attrs}
}

// Matched reports whether the need is linked to an inventory record.
func (n *NeedRecord) Matched() bool {
	return n.MatchedInventoryID != ""
}

// Status derives the workflow state from the divergence and decision
// fields.
func (n *NeedRecord) Status() WorkflowStatus {
	switch {
	case !n.Divergence:
		return StatusSemDivergencia
	case !n.Reconciled:
		return StatusPendenteAprovacao
	case n.Decision != nil && n.Decision.ChosenSource == SourceInferencia:
		return StatusRejeitado
	default:
		return StatusAprovado
	}
}

// MarshalJSON includes the attribute variant inline under "atributos".
func (n NeedRecord) MarshalJSON() ([]byte, error) {
	type alias NeedRecord
	return json.Marshal(struct {
		alias
		Attrs  Attributes     `json:"atributos,omitempty"`
		Status WorkflowStatus `json:"status"`
	}{alias: alias(n), Attrs: n.Attrs, Status: n.Status()})
}

// InventoryRecord is one physically surveyed asset.
type InventoryRecord struct {
	ID        string     `json:"id"`
	AssetType AssetType  `json:"asset_type"`
	HighwayID string     `json:"highway_id"`
	Geometry  Geometry   `json:"geometry"`
	Side      string     `json:"lado,omitempty"`
	Attrs     Attributes `json:"-"`
	Origin    Origin     `json:"origem"`
	Active    bool       `json:"ativo"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Features returns the side and attributes used by compatibility checks.
func (r *InventoryRecord) Features() Features {
	return Features{Side: r.Side, Attrs: r.Attrs}
}

// MarshalJSON includes the attribute variant inline under "atributos".
func (r InventoryRecord) MarshalJSON() ([]byte, error) {
	type alias InventoryRecord
	return json.Marshal(struct {
		alias
		Attrs Attributes `json:"atributos,omitempty"`
	}{alias: alias(r), Attrs: r.Attrs})
}

// ReconciliationDecision is the audit trail of a human decision on a need.
type ReconciliationDecision struct {
	DecidedBy     string    `json:"decidido_por"`
	DecidedAt     time.Time `json:"decidido_em"`
	ChosenSource  Source    `json:"fonte_escolhida"`
	Justification string    `json:"justificativa,omitempty"`
	FinalService  Service   `json:"servico_final"`
}

// ConflictRecord is one contradiction or duplication between two need rows
// of the same selection.
type ConflictRecord struct {
	ID            string       `json:"id"`
	LotID         string       `json:"lot_id"`
	HighwayID     string       `json:"highway_id"`
	AssetType     AssetType    `json:"asset_type"`
	Kind          ConflictKind `json:"tipo"`
	NeedAID       string       `json:"need_a_id"`
	NeedBID       string       `json:"need_b_id"`
	RowA          int          `json:"linha_a,omitempty"`
	RowB          int          `json:"linha_b,omitempty"`
	Details       string       `json:"detalhes"`
	Resolved      bool         `json:"resolvido"`
	Justification string       `json:"justificativa,omitempty"`
	ResolvedBy    string       `json:"resolvido_por,omitempty"`
	ResolvedAt    *time.Time   `json:"resolvido_em,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Involves reports whether the conflict references needID.
func (c *ConflictRecord) Involves(needID string) bool {
	return c.NeedAID == needID || c.NeedBID == needID
}
