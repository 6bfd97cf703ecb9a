// Package segment implements the portfolio segmentation pipeline:
// feature preparation, factor-analysis reduction, cluster-count selection,
// k-means partitioning, aggregation, and run assembly.
//
// All stages are pure computation; only run persistence (via the Sink
// interface) touches I/O.
package segment

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/veredalabs/segmenta/internal/model"
)

// Feature names understood by the builder. Primary and secondary feature
// lists in Params must draw from these; Bacen-modality dummies are added
// on top automatically.
const (
	FeatureRiskScore  = "risco_inicial"
	FeatureCoverage   = "cob_garantia"
	FeatureDelinqDays = "atraso"
	FeatureContract   = "valor_contrato"
	FeatureBalance    = "saldo_atual"
)

// unknownModality labels records whose Bacen modality is missing.
const unknownModality = "DESCONHECIDO"

// Params controls one pipeline invocation. Explicit rather than ambient so
// profiles with different settings can run concurrently.
type Params struct {
	PrimaryFeatures   []string
	SecondaryFeatures []string
	KMin              int
	KMax              int
	Seed              int64
	MinClients        int
	MaxExclusionRate  float64
}

// ClientRow is one included client with its raw (imputed, unstandardized)
// indicator values. Aggregation runs on these raw values.
type ClientRow struct {
	ClientID      string
	ClientName    string
	Profile       string
	AgencyName    string
	PortfolioName string
	ProductLine   string
	RiskRating    string
	BacenModality string
	RiskScore     int
	Coverage      float64
	DelinqDays    float64
	ContractValue float64
	Balance       float64
}

// FeatureMatrix is the standardized per-profile design matrix. Rows map
// 1:1 to X's rows; Columns names X's columns; Excluded counts the rows
// dropped for missing primary features.
type FeatureMatrix struct {
	Columns  []string
	X        *mat.Dense
	Rows     []ClientRow
	Excluded int
}

// BuildFeatures selects and encodes the configured feature set for one
// profile's client records.
//
// Rows missing any primary feature are excluded and counted, as are
// repeated client ids beyond the first usable row (a client is clustered
// at most once per run). Missing secondary features are imputed with the
// column median of included rows. The Bacen modality is one-hot encoded.
// Columns with zero variance are dropped, and the survivors are
// standardized to zero mean and unit variance over included rows.
func BuildFeatures(records []model.ClientRecord, p Params) (*FeatureMatrix, error) {
	rows := make([]ClientRow, 0, len(records))
	seen := make(map[string]bool, len(records))
	excluded := 0

	for _, rec := range records {
		if seen[rec.ClientID] {
			excluded++
			continue
		}
		row, ok := includeRecord(rec, p.PrimaryFeatures)
		if !ok {
			excluded++
			continue
		}
		seen[rec.ClientID] = true
		rows = append(rows, row)
	}

	total := len(records)
	if total == 0 || len(rows) == 0 {
		return nil, fmt.Errorf("%w: no usable rows for profile", ErrInsufficientData)
	}
	if rate := float64(excluded) / float64(total); rate > p.MaxExclusionRate {
		return nil, fmt.Errorf("%w: exclusion rate %.2f exceeds limit %.2f (%d of %d rows dropped)",
			ErrInsufficientData, rate, p.MaxExclusionRate, excluded, total)
	}
	if len(rows) < p.MinClients {
		return nil, fmt.Errorf("%w: %d usable rows, need at least %d", ErrInsufficientData, len(rows), p.MinClients)
	}
	if len(rows) < 2*p.KMax {
		return nil, fmt.Errorf("%w: %d usable rows cannot support up to %d clusters", ErrInsufficientData, len(rows), p.KMax)
	}

	imputeSecondary(rows, p.SecondaryFeatures)

	names, cols, err := featureColumns(rows, p)
	if err != nil {
		return nil, err
	}

	names, cols = dropConstant(names, cols)
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: all feature columns have zero variance", ErrModelFit)
	}

	n := len(rows)
	X := mat.NewDense(n, len(cols), nil)
	for j, col := range cols {
		mean := stat.Mean(col, nil)
		std := math.Sqrt(stat.PopVariance(col, nil))
		for i, v := range col {
			X.Set(i, j, (v-mean)/std)
		}
	}

	return &FeatureMatrix{Columns: names, X: X, Rows: rows, Excluded: excluded}, nil
}

// includeRecord converts a raw record into a ClientRow, rejecting it when
// any configured primary feature is missing. Secondary gaps are marked NaN
// for later imputation.
func includeRecord(rec model.ClientRecord, primary []string) (ClientRow, bool) {
	rating := strings.ToUpper(strings.TrimSpace(rec.RiskRating))
	score, ratingKnown := model.RiskScores[rating]

	modality := strings.ToUpper(strings.TrimSpace(rec.BacenModality))
	if modality == "" {
		modality = unknownModality
	}

	row := ClientRow{
		ClientID:      rec.ClientID,
		ClientName:    rec.ClientName,
		Profile:       rec.Profile,
		AgencyName:    rec.AgencyName,
		PortfolioName: rec.PortfolioName,
		ProductLine:   rec.ProductLine,
		RiskRating:    rating,
		BacenModality: modality,
		RiskScore:     score,
		Coverage:      deref(rec.Coverage),
		DelinqDays:    deref(rec.DelinqDays),
		ContractValue: deref(rec.ContractValue),
		Balance:       deref(rec.Balance),
	}

	for _, f := range primary {
		switch f {
		case FeatureRiskScore:
			if !ratingKnown {
				return ClientRow{}, false
			}
		case FeatureCoverage:
			if rec.Coverage == nil {
				return ClientRow{}, false
			}
		case FeatureDelinqDays:
			if rec.DelinqDays == nil {
				return ClientRow{}, false
			}
		case FeatureContract:
			if rec.ContractValue == nil {
				return ClientRow{}, false
			}
		case FeatureBalance:
			if rec.Balance == nil {
				return ClientRow{}, false
			}
		}
	}
	return row, true
}

func deref(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// imputeSecondary replaces NaN secondary values with the column median of
// the included rows.
func imputeSecondary(rows []ClientRow, secondary []string) {
	for _, f := range secondary {
		get, set := fieldAccessors(f)
		if get == nil {
			continue
		}
		var present []float64
		for i := range rows {
			if v := get(&rows[i]); !math.IsNaN(v) {
				present = append(present, v)
			}
		}
		med := 0.0
		if len(present) > 0 {
			sort.Float64s(present)
			med = present[len(present)/2]
			if len(present)%2 == 0 {
				med = (present[len(present)/2-1] + present[len(present)/2]) / 2
			}
		}
		for i := range rows {
			if math.IsNaN(get(&rows[i])) {
				set(&rows[i], med)
			}
		}
	}
}

func fieldAccessors(feature string) (func(*ClientRow) float64, func(*ClientRow, float64)) {
	switch feature {
	case FeatureRiskScore:
		return func(r *ClientRow) float64 { return float64(r.RiskScore) },
			func(r *ClientRow, v float64) { r.RiskScore = int(v) }
	case FeatureCoverage:
		return func(r *ClientRow) float64 { return r.Coverage },
			func(r *ClientRow, v float64) { r.Coverage = v }
	case FeatureDelinqDays:
		return func(r *ClientRow) float64 { return r.DelinqDays },
			func(r *ClientRow, v float64) { r.DelinqDays = v }
	case FeatureContract:
		return func(r *ClientRow) float64 { return r.ContractValue },
			func(r *ClientRow, v float64) { r.ContractValue = v }
	case FeatureBalance:
		return func(r *ClientRow) float64 { return r.Balance },
			func(r *ClientRow, v float64) { r.Balance = v }
	}
	return nil, nil
}

// featureColumns assembles the named numeric columns plus one-hot Bacen
// modality dummies, in a stable order.
func featureColumns(rows []ClientRow, p Params) ([]string, [][]float64, error) {
	var names []string
	var cols [][]float64

	for _, f := range append(append([]string{}, p.PrimaryFeatures...), p.SecondaryFeatures...) {
		get, _ := fieldAccessors(f)
		if get == nil {
			return nil, nil, fmt.Errorf("segment: unknown feature %q", f)
		}
		col := make([]float64, len(rows))
		for i := range rows {
			col[i] = get(&rows[i])
		}
		names = append(names, f)
		cols = append(cols, col)
	}

	modalities := map[string]bool{}
	for i := range rows {
		modalities[rows[i].BacenModality] = true
	}
	keys := make([]string, 0, len(modalities))
	for m := range modalities {
		keys = append(keys, m)
	}
	sort.Strings(keys)
	for _, m := range keys {
		col := make([]float64, len(rows))
		for i := range rows {
			if rows[i].BacenModality == m {
				col[i] = 1
			}
		}
		names = append(names, "mod_"+strings.ToLower(m))
		cols = append(cols, col)
	}

	return names, cols, nil
}

// dropConstant removes zero-variance columns before standardization.
func dropConstant(names []string, cols [][]float64) ([]string, [][]float64) {
	var outNames []string
	var outCols [][]float64
	for j, col := range cols {
		if stat.PopVariance(col, nil) > 0 {
			outNames = append(outNames, names[j])
			outCols = append(outCols, col)
		}
	}
	return outNames, outCols
}
