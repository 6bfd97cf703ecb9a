// Package model defines the core domain types for segmenta.
//
// Types correspond directly to database tables and run artifacts.
// Input records are immutable; run artifacts are append-only.
package model

// ClientRecord is one loan/contract row from the clientes_carteira source
// table. Read-only input owned by the external ETL.
type ClientRecord struct {
	ClientID      string   `json:"cliente_id"`
	ClientName    string   `json:"cliente_nome"`
	Profile       string   `json:"cliente_perfil"`
	AgencyName    string   `json:"agencia_nome"`
	PortfolioName string   `json:"carteira_nome"`
	ProductLine   string   `json:"linha"`
	RiskRating    string   `json:"risco_inicial"`
	BacenModality string   `json:"mod_bacen"`
	Coverage      *float64 `json:"cob_garantia,omitempty"`
	DelinqDays    *float64 `json:"atraso,omitempty"`
	ContractValue *float64 `json:"valor_contrato,omitempty"`
	Balance       *float64 `json:"saldo_atual,omitempty"`
}

// RiskOrder is the ordinal severity ladder for initial risk ratings,
// best (AA) to worst (G). Index in this slice is the numeric score.
var RiskOrder = []string{"AA", "A", "B", "BB", "C", "CC", "D", "DD", "E", "EE", "F", "G"}

// RiskScores maps a normalized rating letter to its ordinal severity.
var RiskScores = func() map[string]int {
	m := make(map[string]int, len(RiskOrder))
	for i, r := range RiskOrder {
		m[r] = i
	}
	return m
}()
