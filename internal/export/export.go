// Package export writes the tabular reporting outputs of completed runs:
// a per-client assignment table and a per-cluster summary table per
// profile, plus consolidated cross-tabulated views. The files mirror the
// persisted records and are suitable for spreadsheet import.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/veredalabs/segmenta/internal/model"
	"github.com/veredalabs/segmenta/internal/segment"
)

// Writer writes CSV report files under a base directory.
type Writer struct {
	dir string
}

// NewWriter creates a writer rooted at dir, creating it if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: create output dir: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// WriteProfile writes the assignment and summary tables for one profile's
// run: perfil_<slug>_clusters.csv and perfil_<slug>_cluster_summary.csv.
func (w *Writer) WriteProfile(res *segment.Result) error {
	slug := Slugify(res.Run.Profile)

	header := []string{"cliente_id", "cliente_perfil", "agencia_nome", "carteira_nome", "linha", "cluster", "risco_inicial"}
	factors := res.Run.Parameters.FactorCount
	for f := 1; f <= factors; f++ {
		header = append(header, fmt.Sprintf("factor_%d", f))
	}
	rows := make([][]string, 0, len(res.Assignments))
	for _, a := range res.Assignments {
		row := []string{a.ClientID, a.Profile, a.AgencyName, a.PortfolioName, a.ProductLine,
			strconv.Itoa(a.Cluster), a.RiskRating}
		for _, s := range a.FactorScores {
			row = append(row, formatFloat(s))
		}
		rows = append(rows, row)
	}
	if err := w.writeFile(fmt.Sprintf("perfil_%s_clusters.csv", slug), header, rows); err != nil {
		return err
	}

	sumHeader := []string{"cluster", "total_clientes", "risco_inicial_medio", "cobertura_media",
		"atraso_medio", "valor_contrato_medio", "saldo_atual_medio"}
	sumRows := make([][]string, 0, len(res.Summaries))
	for _, s := range res.Summaries {
		sumRows = append(sumRows, []string{
			strconv.Itoa(s.Cluster), strconv.Itoa(s.MemberCount),
			formatFloat(s.MeanRiskScore), formatFloat(s.MeanCoverage), formatFloat(s.MeanDelinq),
			formatFloat(s.MeanContract), formatFloat(s.MeanBalance),
		})
	}
	return w.writeFile(fmt.Sprintf("perfil_%s_cluster_summary.csv", slug), sumHeader, sumRows)
}

// WriteCrossTabs writes the consolidated agency, portfolio and product
// line views across all successful outcomes: clusters_por_agencia.csv,
// clusters_por_carteira.csv and clusters_por_linha.csv.
func (w *Writer) WriteCrossTabs(outcomes []segment.Outcome) error {
	files := []struct {
		name string
		pick func(*segment.Result) []model.CrossTab
	}{
		{"clusters_por_agencia.csv", func(r *segment.Result) []model.CrossTab { return r.ByAgency }},
		{"clusters_por_carteira.csv", func(r *segment.Result) []model.CrossTab { return r.ByPortfolio }},
		{"clusters_por_linha.csv", func(r *segment.Result) []model.CrossTab { return r.ByLine }},
	}

	header := []string{"cliente_perfil", "valor", "cluster", "total_clientes", "risco_inicial_medio",
		"cobertura_media", "atraso_medio", "valor_contrato_medio", "saldo_atual_medio"}
	for _, f := range files {
		var rows [][]string
		for _, o := range outcomes {
			if o.Failed() {
				continue
			}
			for _, ct := range f.pick(o.Result) {
				rows = append(rows, []string{
					ct.Profile, ct.Value, strconv.Itoa(ct.Cluster), strconv.Itoa(ct.MemberCount),
					formatFloat(ct.MeanRiskScore), formatFloat(ct.MeanCoverage), formatFloat(ct.MeanDelinq),
					formatFloat(ct.MeanContract), formatFloat(ct.MeanBalance),
				})
			}
		}
		if err := w.writeFile(f.name, header, rows); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeFile(name string, header []string, rows [][]string) error {
	path := filepath.Join(w.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", name, err)
	}
	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("export: write %s: %w", name, err)
	}
	if err := cw.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("export: write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("export: close %s: %w", name, err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// Slugify lowercases a profile name and collapses every run of
// non-alphanumeric characters into a single underscore.
func Slugify(value string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(value) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	slug := strings.Trim(b.String(), "_")
	if slug == "" {
		return "perfil"
	}
	return slug
}
