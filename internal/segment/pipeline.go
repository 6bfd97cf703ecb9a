package segment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/veredalabs/segmenta/internal/model"
)

// Sink persists one completed run as an atomic unit. Implementations must
// not report success unless the run, all assignments and all summaries
// were accepted together.
type Sink interface {
	SaveRun(ctx context.Context, run model.ClusterRun, assignments []model.ClusterAssignment, summaries []model.ClusterSummary) error
}

// Result is the outcome of one successful pipeline execution for one
// profile: the persisted run plus the tabular views handed to the
// reporting collaborator.
type Result struct {
	Run         model.ClusterRun
	Assignments []model.ClusterAssignment
	Summaries   []model.ClusterSummary
	ByAgency    []model.CrossTab
	ByPortfolio []model.CrossTab
	ByLine      []model.CrossTab
	Candidates  []CandidateK
	Excluded    int
}

// Pipeline runs the segmentation stages for one profile at a time. Safe
// for concurrent use: each Run owns all of its intermediate state.
type Pipeline struct {
	params Params
	sink   Sink
	logger *slog.Logger
}

// NewPipeline builds a pipeline with the given parameters. sink may be nil
// to compute without persisting (dry runs, tests).
func NewPipeline(params Params, sink Sink, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{params: params, sink: sink, logger: logger}
}

// Run executes the full pipeline for one profile's client records. The
// stages are strictly sequential; the returned error is one of the
// profile-scoped kinds (see errors.go) or a context error.
func (p *Pipeline) Run(ctx context.Context, profile string, records []model.ClientRecord) (*Result, error) {
	features, err := BuildFeatures(records, p.params)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scores, factorModel, err := ReduceFactors(features.X)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	best, candidates, err := SelectK(ctx, scores, p.params.KMin, p.params.KMax, p.params.Seed)
	if err != nil {
		return nil, err
	}

	// Final fit. Same data and seed as the winning candidate, so the
	// partition is reproduced exactly.
	partition := Cluster(scores, best.K, p.params.Seed)

	run := model.ClusterRun{
		ID:        uuid.New(),
		RunAt:     time.Now().UTC(),
		Profile:   profile,
		Algorithm: model.Algorithm,
		Parameters: model.RunParameters{
			FeatureColumns: features.Columns,
			FactorCount:    factorModel.NumFactors,
			KMin:           p.params.KMin,
			KMax:           p.params.KMax,
			Seed:           p.params.Seed,
		},
		Metrics: model.RunMetrics{
			ChosenK:    best.K,
			Silhouette: best.Silhouette,
		},
	}

	assignments := make([]model.ClusterAssignment, len(features.Rows))
	for i, row := range features.Rows {
		factorScores := make([]float64, factorModel.NumFactors)
		for f := range factorScores {
			factorScores[f] = scores.At(i, f)
		}
		assignments[i] = model.ClusterAssignment{
			RunID:         run.ID,
			ClientID:      row.ClientID,
			Profile:       row.Profile,
			AgencyName:    row.AgencyName,
			PortfolioName: row.PortfolioName,
			ProductLine:   row.ProductLine,
			Cluster:       partition.Labels[i],
			RiskRating:    row.RiskRating,
			RiskScore:     row.RiskScore,
			FactorScores:  factorScores,
		}
	}

	summaries := Summaries(features.Rows, partition.Labels)
	for i := range summaries {
		summaries[i].RunID = run.ID
	}

	result := &Result{
		Run:         run,
		Assignments: assignments,
		Summaries:   summaries,
		ByAgency:    CrossTab(features.Rows, partition.Labels, DimAgency),
		ByPortfolio: CrossTab(features.Rows, partition.Labels, DimPortfolio),
		ByLine:      CrossTab(features.Rows, partition.Labels, DimLine),
		Candidates:  candidates,
		Excluded:    features.Excluded,
	}

	if p.sink != nil {
		if err := p.sink.SaveRun(ctx, run, assignments, summaries); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
	}

	p.logger.Info("profile segmented",
		"profile", profile,
		"run_id", run.ID,
		"clients", len(assignments),
		"excluded", features.Excluded,
		"clusters", best.K,
		"silhouette", best.Silhouette,
	)
	return result, nil
}
