package analysis

import (
	"encoding/json"
	"math"
	"sort"
)

// DEOptions controls differential expression ranking.
type DEOptions struct {
	// AdjustPValues enables Benjamini-Hochberg correction. Off unless
	// explicitly requested; raw p-values are reported either way.
	AdjustPValues bool
}

// DEResult is one gene's differential expression between two sample groups.
type DEResult struct {
	GeneID         string  `json:"gene_id"`
	FoldChange     float64 `json:"fold_change"`
	Log2FoldChange float64 `json:"log2_fold_change"`
	PValue         float64 `json:"p_value"`
	AdjustedP      float64 `json:"adjusted_p_value,omitempty"`
}

// MarshalJSON implements json.Marshaler. Non-finite fold changes encode as
// null; one unexpressed gene must not make the whole result list
// unserializable.
func (r DEResult) MarshalJSON() ([]byte, error) {
	type wire struct {
		GeneID         string    `json:"gene_id"`
		FoldChange     jsonFloat `json:"fold_change"`
		Log2FoldChange jsonFloat `json:"log2_fold_change"`
		PValue         jsonFloat `json:"p_value"`
		AdjustedP      jsonFloat `json:"adjusted_p_value,omitempty"`
	}
	return json.Marshal(wire{
		GeneID:         r.GeneID,
		FoldChange:     jsonFloat(r.FoldChange),
		Log2FoldChange: jsonFloat(r.Log2FoldChange),
		PValue:         jsonFloat(r.PValue),
		AdjustedP:      jsonFloat(r.AdjustedP),
	})
}

// DifferentialExpression applies Welch's t-test to every gene in the matrix
// and ranks genes by ascending p-value, ties broken by descending absolute
// log2 fold-change, then by gene id for determinism.
func DifferentialExpression(m *Matrix, groupA, groupB []string, opts DEOptions) ([]DEResult, error) {
	if err := m.checkPartition(groupA, groupB); err != nil {
		return nil, err
	}

	results := make([]DEResult, 0, m.NumGenes())
	for _, gene := range m.Genes() {
		t, err := Welch(m, gene, groupA, groupB)
		if err != nil {
			return nil, err
		}
		results = append(results, DEResult{
			GeneID:         gene,
			FoldChange:     t.FoldChange,
			Log2FoldChange: t.Log2FoldChange,
			PValue:         t.PValue,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].PValue != results[j].PValue {
			return results[i].PValue < results[j].PValue
		}
		ai, aj := math.Abs(results[i].Log2FoldChange), math.Abs(results[j].Log2FoldChange)
		if ai != aj {
			return ai > aj
		}
		return results[i].GeneID < results[j].GeneID
	})

	if opts.AdjustPValues {
		ps := make([]float64, len(results))
		for i := range results {
			ps[i] = results[i].PValue
		}
		for i, p := range benjaminiHochberg(ps) {
			results[i].AdjustedP = p
		}
	}
	return results, nil
}

// benjaminiHochberg adjusts p-values already sorted in ascending order.
func benjaminiHochberg(sorted []float64) []float64 {
	n := len(sorted)
	adjusted := make([]float64, n)
	minSoFar := 1.0
	for i := n - 1; i >= 0; i-- {
		adj := sorted[i] * float64(n) / float64(i+1)
		if adj < minSoFar {
			minSoFar = adj
		}
		adjusted[i] = minSoFar
	}
	return adjusted
}
