package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/stemformatics/mcp/faults"
)

// Correlation is the Pearson correlation of one gene against the reference.
type Correlation struct {
	GeneID string  `json:"gene_id"`
	R      float64 `json:"correlation"`
}

// CorrelatedGenes computes the Pearson correlation of every other gene's
// expression vector against the reference gene across all samples, and
// returns the topK by descending absolute correlation. Ties are broken by
// gene id lexical order so the ranking is deterministic. Genes with zero
// variance have no defined correlation and are skipped.
func CorrelatedGenes(m *Matrix, geneID string, topK int) ([]Correlation, error) {
	if topK <= 0 {
		return nil, faults.Validationf("top_k", "must be a positive integer, got %d", topK)
	}
	ref, err := m.Row(geneID)
	if err != nil {
		return nil, err
	}

	results := make([]Correlation, 0, m.NumGenes()-1)
	for _, other := range m.Genes() {
		if other == geneID {
			continue
		}
		row, err := m.Row(other)
		if err != nil {
			return nil, err
		}
		r := stat.Correlation(ref, row, nil)
		if math.IsNaN(r) {
			continue
		}
		results = append(results, Correlation{GeneID: other, R: r})
	}

	sort.Slice(results, func(i, j int) bool {
		ai, aj := math.Abs(results[i].R), math.Abs(results[j].R)
		if ai != aj {
			return ai > aj
		}
		return results[i].GeneID < results[j].GeneID
	})

	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}
