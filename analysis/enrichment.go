package analysis

import (
	"math"
	"sort"

	"github.com/stemformatics/mcp/faults"
)

// EnrichmentOptions controls pathway enrichment scoring.
type EnrichmentOptions struct {
	// AdjustPValues enables Benjamini-Hochberg correction across pathways.
	AdjustPValues bool
}

// EnrichmentResult is the over-representation score for one pathway.
type EnrichmentResult struct {
	Pathway     string  `json:"pathway"`
	Overlap     int     `json:"overlap"`
	PathwaySize int     `json:"pathway_size"`
	PValue      float64 `json:"p_value"`
	AdjustedP   float64 `json:"adjusted_p_value,omitempty"`
}

// PathwayEnrichment scores each pathway for over-representation of the gene
// set against a background universe, using the hypergeometric upper tail
// (one-sided Fisher's exact test). Pathways are returned ordered by
// ascending p-value; ties break by pathway name.
func PathwayEnrichment(geneSet []string, backgroundSize int, membership map[string][]string, opts EnrichmentOptions) ([]EnrichmentResult, error) {
	if len(geneSet) == 0 {
		return nil, faults.Validationf("gene_set", "gene set is empty")
	}
	if backgroundSize < len(geneSet) {
		return nil, faults.Validationf("background_size", "background %d is smaller than the gene set %d", backgroundSize, len(geneSet))
	}

	set := make(map[string]struct{}, len(geneSet))
	for _, g := range geneSet {
		set[g] = struct{}{}
	}
	draws := len(set)

	results := make([]EnrichmentResult, 0, len(membership))
	for pathway, genes := range membership {
		overlap := 0
		for _, g := range genes {
			if _, ok := set[g]; ok {
				overlap++
			}
		}
		results = append(results, EnrichmentResult{
			Pathway:     pathway,
			Overlap:     overlap,
			PathwaySize: len(genes),
			PValue:      hypergeomUpperTail(backgroundSize, len(genes), draws, overlap),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].PValue != results[j].PValue {
			return results[i].PValue < results[j].PValue
		}
		return results[i].Pathway < results[j].Pathway
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

// hypergeomUpperTail is P(X >= k) for a hypergeometric draw of n from a
// population of size pop containing succ successes. Summed in log space.
func hypergeomUpperTail(pop, succ, n, k int) float64 {
	if k <= 0 {
		return 1
	}
	hi := succ
	if n < hi {
		hi = n
	}
	if k > hi {
		return 0
	}
	total := 0.0
	denom := logChoose(pop, n)
	for i := k; i <= hi; i++ {
		if n-i > pop-succ {
			continue
		}
		total += math.Exp(logChoose(succ, i) + logChoose(pop-succ, n-i) - denom)
	}
	if total > 1 {
		total = 1
	}
	return total
}

func logChoose(n, k int) float64 {
	if k < 0 || k > n {
		return math.Inf(-1)
	}
	ln, _ := math.Lgamma(float64(n + 1))
	lk, _ := math.Lgamma(float64(k + 1))
	lnk, _ := math.Lgamma(float64(n - k + 1))
	return ln - lk - lnk
}
