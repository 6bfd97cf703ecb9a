package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/veredalabs/segmenta/internal/model"
)

// SaveRun persists one completed pipeline execution as a single atomic
// unit: the run row, all client assignments (via COPY), and all cluster
// summaries. Any failure rolls the whole run back; a partially written
// run is never visible.
func (db *DB) SaveRun(ctx context.Context, run model.ClusterRun, assignments []model.ClusterAssignment, summaries []model.ClusterSummary) error {
	params, err := json.Marshal(run.Parameters)
	if err != nil {
		return fmt.Errorf("storage: encode run parameters: %w", err)
	}
	metrics, err := json.Marshal(run.Metrics)
	if err != nil {
		return fmt.Errorf("storage: encode run metrics: %w", err)
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin run tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO cluster_run (run_id, run_at, perfil, algoritmo, parametros, metricas)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.RunAt, run.Profile, run.Algorithm, params, metrics,
	); err != nil {
		return fmt.Errorf("storage: insert run: %w", err)
	}

	if len(assignments) > 0 {
		columns := []string{"run_id", "cliente_id", "cliente_perfil", "agencia_nome",
			"carteira_nome", "linha", "cluster", "risco_inicial", "risco_inicial_score", "factors"}
		rows := make([][]any, len(assignments))
		for i, a := range assignments {
			factors, err := json.Marshal(a.FactorScores)
			if err != nil {
				return fmt.Errorf("storage: encode factor scores: %w", err)
			}
			rows[i] = []any{a.RunID, a.ClientID, a.Profile, a.AgencyName,
				a.PortfolioName, a.ProductLine, a.Cluster, a.RiskRating, a.RiskScore, factors}
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"cluster_run_clientes"}, columns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("storage: copy assignments: %w", err)
		}
	}

	for _, s := range summaries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO cluster_run_resumo (run_id, cluster, total_clientes, risco_inicial_medio,
			 cobertura_media, atraso_medio, valor_contrato_medio, saldo_atual_medio)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			s.RunID, s.Cluster, s.MemberCount, s.MeanRiskScore,
			s.MeanCoverage, s.MeanDelinq, s.MeanContract, s.MeanBalance,
		); err != nil {
			return fmt.Errorf("storage: insert summary for cluster %d: %w", s.Cluster, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit run tx: %w", err)
	}
	return nil
}

// GetRun retrieves a persisted run by id.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (model.ClusterRun, error) {
	var run model.ClusterRun
	var params, metrics []byte
	err := db.pool.QueryRow(ctx,
		`SELECT run_id, run_at, perfil, algoritmo, parametros, metricas
		 FROM cluster_run WHERE run_id = $1`, id,
	).Scan(&run.ID, &run.RunAt, &run.Profile, &run.Algorithm, &params, &metrics)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ClusterRun{}, fmt.Errorf("%w: run %s", ErrNotFound, id)
		}
		return model.ClusterRun{}, fmt.Errorf("storage: get run: %w", err)
	}
	if err := json.Unmarshal(params, &run.Parameters); err != nil {
		return model.ClusterRun{}, fmt.Errorf("storage: decode run parameters: %w", err)
	}
	if err := json.Unmarshal(metrics, &run.Metrics); err != nil {
		return model.ClusterRun{}, fmt.Errorf("storage: decode run metrics: %w", err)
	}
	return run, nil
}

// ListRuns returns the run history for a profile, newest first.
func (db *DB) ListRuns(ctx context.Context, profile string, limit int) ([]model.ClusterRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT run_id, run_at, perfil, algoritmo, parametros, metricas
		 FROM cluster_run WHERE perfil = $1
		 ORDER BY run_at DESC LIMIT $2`, profile, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list runs: %w", err)
	}
	defer rows.Close()

	var runs []model.ClusterRun
	for rows.Next() {
		var run model.ClusterRun
		var params, metrics []byte
		if err := rows.Scan(&run.ID, &run.RunAt, &run.Profile, &run.Algorithm, &params, &metrics); err != nil {
			return nil, fmt.Errorf("storage: scan run: %w", err)
		}
		if err := json.Unmarshal(params, &run.Parameters); err != nil {
			return nil, fmt.Errorf("storage: decode run parameters: %w", err)
		}
		if err := json.Unmarshal(metrics, &run.Metrics); err != nil {
			return nil, fmt.Errorf("storage: decode run metrics: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// AssignmentsByRun returns the per-client assignments of a run, ordered by
// client id.
func (db *DB) AssignmentsByRun(ctx context.Context, runID uuid.UUID) ([]model.ClusterAssignment, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT run_id, cliente_id, cliente_perfil, agencia_nome, carteira_nome,
		        linha, cluster, risco_inicial, risco_inicial_score, factors
		 FROM cluster_run_clientes WHERE run_id = $1
		 ORDER BY cliente_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage: list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []model.ClusterAssignment
	for rows.Next() {
		var a model.ClusterAssignment
		var factors []byte
		if err := rows.Scan(&a.RunID, &a.ClientID, &a.Profile, &a.AgencyName, &a.PortfolioName,
			&a.ProductLine, &a.Cluster, &a.RiskRating, &a.RiskScore, &factors); err != nil {
			return nil, fmt.Errorf("storage: scan assignment: %w", err)
		}
		if err := json.Unmarshal(factors, &a.FactorScores); err != nil {
			return nil, fmt.Errorf("storage: decode factor scores: %w", err)
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// SummariesByRun returns the per-cluster summaries of a run, ordered by
// cluster.
func (db *DB) SummariesByRun(ctx context.Context, runID uuid.UUID) ([]model.ClusterSummary, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT run_id, cluster, total_clientes, risco_inicial_medio,
		        cobertura_media, atraso_medio, valor_contrato_medio, saldo_atual_medio
		 FROM cluster_run_resumo WHERE run_id = $1
		 ORDER BY cluster`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage: list summaries: %w", err)
	}
	defer rows.Close()

	var summaries []model.ClusterSummary
	for rows.Next() {
		var s model.ClusterSummary
		if err := rows.Scan(&s.RunID, &s.Cluster, &s.MemberCount, &s.MeanRiskScore,
			&s.MeanCoverage, &s.MeanDelinq, &s.MeanContract, &s.MeanBalance); err != nil {
			return nil, fmt.Errorf("storage: scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
