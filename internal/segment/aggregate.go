package segment

import (
	"sort"

	"github.com/veredalabs/segmenta/internal/model"
)

// Cross-tabulation dimensions.
const (
	DimAgency    = "agencia_nome"
	DimPortfolio = "carteira_nome"
	DimLine      = "linha"
)

type aggCell struct {
	count    int
	risk     float64
	coverage float64
	delinq   float64
	contract float64
	balance  float64
}

type aggKey struct {
	cluster int
	value   string
}

// summarize is the one group-by-aggregate primitive: it buckets rows by
// (cluster, keyFn(row)) and accumulates count and indicator sums. Both the
// per-cluster summary and every cross-tab are applications of it.
func summarize(rows []ClientRow, labels []int, keyFn func(ClientRow) string) map[aggKey]*aggCell {
	cells := make(map[aggKey]*aggCell)
	for i, row := range rows {
		key := aggKey{cluster: labels[i], value: keyFn(row)}
		cell := cells[key]
		if cell == nil {
			cell = &aggCell{}
			cells[key] = cell
		}
		cell.count++
		cell.risk += float64(row.RiskScore)
		cell.coverage += row.Coverage
		cell.delinq += row.DelinqDays
		cell.contract += row.ContractValue
		cell.balance += row.Balance
	}
	return cells
}

// Summaries computes per-cluster member counts and mean indicators on raw
// values. The member counts sum to len(rows) by construction.
func Summaries(rows []ClientRow, labels []int) []model.ClusterSummary {
	cells := summarize(rows, labels, func(ClientRow) string { return "" })

	out := make([]model.ClusterSummary, 0, len(cells))
	for key, cell := range cells {
		n := float64(cell.count)
		out = append(out, model.ClusterSummary{
			Cluster:       key.cluster,
			MemberCount:   cell.count,
			MeanRiskScore: cell.risk / n,
			MeanCoverage:  cell.coverage / n,
			MeanDelinq:    cell.delinq / n,
			MeanContract:  cell.contract / n,
			MeanBalance:   cell.balance / n,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cluster < out[j].Cluster })
	return out
}

// CrossTab computes the same aggregation within each (cluster, dimension
// value) pair for one of the supported dimensions.
func CrossTab(rows []ClientRow, labels []int, dimension string) []model.CrossTab {
	keyFn := func(r ClientRow) string {
		switch dimension {
		case DimAgency:
			return r.AgencyName
		case DimPortfolio:
			return r.PortfolioName
		case DimLine:
			return r.ProductLine
		}
		return ""
	}
	cells := summarize(rows, labels, keyFn)

	out := make([]model.CrossTab, 0, len(cells))
	for key, cell := range cells {
		n := float64(cell.count)
		out = append(out, model.CrossTab{
			Profile:       profile(rows),
			Dimension:     dimension,
			Value:         key.value,
			Cluster:       key.cluster,
			MemberCount:   cell.count,
			MeanRiskScore: cell.risk / n,
			MeanCoverage:  cell.coverage / n,
			MeanDelinq:    cell.delinq / n,
			MeanContract:  cell.contract / n,
			MeanBalance:   cell.balance / n,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Cluster != out[j].Cluster {
			return out[i].Cluster < out[j].Cluster
		}
		return out[i].Value < out[j].Value
	})
	return out
}

func profile(rows []ClientRow) string {
	if len(rows) == 0 {
		return ""
	}
	return rows[0].Profile
}
