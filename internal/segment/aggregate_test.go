package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func aggRows() ([]ClientRow, []int) {
	rows := []ClientRow{
		{ClientID: "a", Profile: "varejo", AgencyName: "centro", PortfolioName: "p1", ProductLine: "giro", RiskScore: 2, Coverage: 0.5, DelinqDays: 10, ContractValue: 1000, Balance: 800},
		{ClientID: "b", Profile: "varejo", AgencyName: "centro", PortfolioName: "p1", ProductLine: "giro", RiskScore: 4, Coverage: 0.7, DelinqDays: 30, ContractValue: 3000, Balance: 2400},
		{ClientID: "c", Profile: "varejo", AgencyName: "norte", PortfolioName: "p2", ProductLine: "rural", RiskScore: 6, Coverage: 0.9, DelinqDays: 0, ContractValue: 5000, Balance: 100},
		{ClientID: "d", Profile: "varejo", AgencyName: "norte", PortfolioName: "p1", ProductLine: "rural", RiskScore: 8, Coverage: 0.1, DelinqDays: 60, ContractValue: 7000, Balance: 6500},
	}
	labels := []int{0, 0, 1, 1}
	return rows, labels
}

func TestSummaries(t *testing.T) {
	rows, labels := aggRows()
	summaries := Summaries(rows, labels)
	require.Len(t, summaries, 2)

	total := 0
	for _, s := range summaries {
		total += s.MemberCount
	}
	assert.Equal(t, len(rows), total, "member counts must sum to processed clients")

	assert.Equal(t, 0, summaries[0].Cluster)
	assert.Equal(t, 2, summaries[0].MemberCount)
	assert.InDelta(t, 3.0, summaries[0].MeanRiskScore, 1e-9)
	assert.InDelta(t, 0.6, summaries[0].MeanCoverage, 1e-9)
	assert.InDelta(t, 20.0, summaries[0].MeanDelinq, 1e-9)
	assert.InDelta(t, 2000.0, summaries[0].MeanContract, 1e-9)
	assert.InDelta(t, 1600.0, summaries[0].MeanBalance, 1e-9)

	assert.Equal(t, 1, summaries[1].Cluster)
	assert.InDelta(t, 7.0, summaries[1].MeanRiskScore, 1e-9)
}

func TestCrossTabByAgency(t *testing.T) {
	rows, labels := aggRows()
	tabs := CrossTab(rows, labels, DimAgency)
	require.Len(t, tabs, 2) // (0, centro) and (1, norte)

	assert.Equal(t, "centro", tabs[0].Value)
	assert.Equal(t, 0, tabs[0].Cluster)
	assert.Equal(t, 2, tabs[0].MemberCount)
	assert.Equal(t, "varejo", tabs[0].Profile)
	assert.Equal(t, DimAgency, tabs[0].Dimension)

	assert.Equal(t, "norte", tabs[1].Value)
	assert.Equal(t, 1, tabs[1].Cluster)
}

func TestCrossTabSplitsDimensionValues(t *testing.T) {
	rows, labels := aggRows()
	tabs := CrossTab(rows, labels, DimPortfolio)
	// Cluster 1 spans portfolios p1 and p2.
	require.Len(t, tabs, 3)
	assert.Equal(t, "p1", tabs[0].Value)
	assert.Equal(t, "p1", tabs[1].Value)
	assert.Equal(t, "p2", tabs[2].Value)
	assert.Equal(t, 1, tabs[1].MemberCount)
	assert.Equal(t, 1, tabs[2].MemberCount)
}

func TestCrossTabCountInvariant(t *testing.T) {
	rows, labels := aggRows()
	for _, dim := range []string{DimAgency, DimPortfolio, DimLine} {
		total := 0
		for _, tab := range CrossTab(rows, labels, dim) {
			total += tab.MemberCount
		}
		assert.Equal(t, len(rows), total, "dimension %s", dim)
	}
}
