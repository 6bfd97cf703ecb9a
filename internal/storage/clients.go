package storage

import (
	"context"
	"fmt"

	"github.com/veredalabs/segmenta/internal/model"
)

// Profiles returns the distinct non-null client profiles present in the
// clientes_carteira source table, ordered by name.
func (db *DB) Profiles(ctx context.Context) ([]string, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT DISTINCT cliente_perfil FROM clientes_carteira
		 WHERE cliente_perfil IS NOT NULL
		 ORDER BY cliente_perfil`)
	if err != nil {
		return nil, fmt.Errorf("storage: list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("storage: scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// ClientsByProfile returns all client records for one profile value.
// Numeric columns may be NULL in the source; the pipeline decides whether
// to exclude or impute.
func (db *DB) ClientsByProfile(ctx context.Context, profile string) ([]model.ClientRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT cliente_id, cliente_nome, cliente_perfil, agencia_nome, carteira_nome,
		        linha, risco_inicial, mod_bacen, cob_garantia, atraso, valor_contrato, saldo_atual
		 FROM clientes_carteira
		 WHERE cliente_perfil = $1
		 ORDER BY cliente_id`, profile)
	if err != nil {
		return nil, fmt.Errorf("storage: list clients for profile %q: %w", profile, err)
	}
	defer rows.Close()

	var records []model.ClientRecord
	for rows.Next() {
		var r model.ClientRecord
		var name, agency, portfolio, line, rating, modality *string
		if err := rows.Scan(
			&r.ClientID, &name, &r.Profile, &agency, &portfolio,
			&line, &rating, &modality, &r.Coverage, &r.DelinqDays, &r.ContractValue, &r.Balance,
		); err != nil {
			return nil, fmt.Errorf("storage: scan client: %w", err)
		}
		r.ClientName = strOrEmpty(name)
		r.AgencyName = strOrEmpty(agency)
		r.PortfolioName = strOrEmpty(portfolio)
		r.ProductLine = strOrEmpty(line)
		r.RiskRating = strOrEmpty(rating)
		r.BacenModality = strOrEmpty(modality)
		records = append(records, r)
	}
	return records, rows.Err()
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
