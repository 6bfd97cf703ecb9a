package model

import (
	"time"

	"github.com/google/uuid"
)

// Algorithm identifies the segmentation pipeline version recorded with
// every run. Bump when the pipeline's numeric semantics change.
const Algorithm = "factor_analysis_kmeans_v1"

// RunParameters are the inputs that fully determine a run, persisted as
// JSONB for reproducibility.
type RunParameters struct {
	FeatureColumns []string `json:"feature_columns"`
	FactorCount    int      `json:"n_components"`
	KMin           int      `json:"k_min"`
	KMax           int      `json:"k_max"`
	Seed           int64    `json:"seed"`
}

// RunMetrics are the model-selection results for a run.
type RunMetrics struct {
	ChosenK    int     `json:"n_clusters"`
	Silhouette float64 `json:"silhouette"`
}

// ClusterRun is the versioned artifact of one pipeline execution for one
// profile. Immutable once created; history is append-only.
type ClusterRun struct {
	ID         uuid.UUID     `json:"run_id"`
	RunAt      time.Time     `json:"run_at"`
	Profile    string        `json:"perfil"`
	Algorithm  string        `json:"algoritmo"`
	Parameters RunParameters `json:"parametros"`
	Metrics    RunMetrics    `json:"metricas"`
}

// ClusterAssignment maps one client to its cluster within a run, carrying
// descriptive fields so downstream reports need no rejoin with raw data.
type ClusterAssignment struct {
	RunID         uuid.UUID `json:"run_id"`
	ClientID      string    `json:"cliente_id"`
	Profile       string    `json:"cliente_perfil"`
	AgencyName    string    `json:"agencia_nome"`
	PortfolioName string    `json:"carteira_nome"`
	ProductLine   string    `json:"linha"`
	Cluster       int       `json:"cluster"`
	RiskRating    string    `json:"risco_inicial"`
	RiskScore     int       `json:"risco_inicial_score"`
	FactorScores  []float64 `json:"factors"`
}

// ClusterSummary holds per-cluster aggregate indicators for a run.
// Means are computed on raw indicator values, not standardized features.
type ClusterSummary struct {
	RunID         uuid.UUID `json:"run_id"`
	Cluster       int       `json:"cluster"`
	MemberCount   int       `json:"total_clientes"`
	MeanRiskScore float64   `json:"risco_inicial_medio"`
	MeanCoverage  float64   `json:"cobertura_media"`
	MeanDelinq    float64   `json:"atraso_medio"`
	MeanContract  float64   `json:"valor_contrato_medio"`
	MeanBalance   float64   `json:"saldo_atual_medio"`
}

// CrossTab is one (cluster, dimension value) aggregate cell, produced for
// the agency, portfolio and product-line cross-tabulated views.
type CrossTab struct {
	Profile       string  `json:"cliente_perfil"`
	Dimension     string  `json:"dimension"`
	Value         string  `json:"value"`
	Cluster       int     `json:"cluster"`
	MemberCount   int     `json:"total_clientes"`
	MeanRiskScore float64 `json:"risco_inicial_medio"`
	MeanCoverage  float64 `json:"cobertura_media"`
	MeanDelinq    float64 `json:"atraso_medio"`
	MeanContract  float64 `json:"valor_contrato_medio"`
	MeanBalance   float64 `json:"saldo_atual_medio"`
}
