package analysis

import (
	"encoding/json"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/stemformatics/mcp/faults"
)

// TTestResult is the outcome of Welch's two-sample t-test for one gene.
type TTestResult struct {
	GeneID           string  `json:"gene_id"`
	TStatistic       float64 `json:"t_statistic"`
	PValue           float64 `json:"p_value"`
	DegreesOfFreedom float64 `json:"degrees_of_freedom"`
	MeanA            float64 `json:"mean_a"`
	MeanB            float64 `json:"mean_b"`
	// FoldChange is the ratio of group means; 1.0 means no change.
	FoldChange float64 `json:"fold_change"`
	// Log2FoldChange is log2(FoldChange); 0 means no change.
	Log2FoldChange float64 `json:"log2_fold_change"`
}

// jsonFloat marshals like float64 but emits null for NaN and the
// infinities, which encoding/json refuses to serialize.
type jsonFloat float64

// MarshalJSON implements json.Marshaler.
func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// MarshalJSON implements json.Marshaler. Constant groups produce infinite
// t-statistics and a gene unexpressed in one group produces infinite or
// undefined fold changes; those encode as null so the result stays
// serializable.
func (r TTestResult) MarshalJSON() ([]byte, error) {
	type wire struct {
		GeneID           string    `json:"gene_id"`
		TStatistic       jsonFloat `json:"t_statistic"`
		PValue           jsonFloat `json:"p_value"`
		DegreesOfFreedom jsonFloat `json:"degrees_of_freedom"`
		MeanA            jsonFloat `json:"mean_a"`
		MeanB            jsonFloat `json:"mean_b"`
		FoldChange       jsonFloat `json:"fold_change"`
		Log2FoldChange   jsonFloat `json:"log2_fold_change"`
	}
	return json.Marshal(wire{
		GeneID:           r.GeneID,
		TStatistic:       jsonFloat(r.TStatistic),
		PValue:           jsonFloat(r.PValue),
		DegreesOfFreedom: jsonFloat(r.DegreesOfFreedom),
		MeanA:            jsonFloat(r.MeanA),
		MeanB:            jsonFloat(r.MeanB),
		FoldChange:       jsonFloat(r.FoldChange),
		Log2FoldChange:   jsonFloat(r.Log2FoldChange),
	})
}

// Welch computes Welch's t-statistic and two-tailed p-value for one gene's
// expression between two disjoint sample groups. Each group needs at least
// two samples for a variance estimate.
func Welch(m *Matrix, geneID string, groupA, groupB []string) (*TTestResult, error) {
	if err := m.checkPartition(groupA, groupB); err != nil {
		return nil, err
	}
	if len(groupA) < 2 {
		return nil, faults.New(faults.InsufficientSamples, "group_a has %d samples, need at least 2", len(groupA))
	}
	if len(groupB) < 2 {
		return nil, faults.New(faults.InsufficientSamples, "group_b has %d samples, need at least 2", len(groupB))
	}

	xs, err := m.SampleValues(geneID, groupA)
	if err != nil {
		return nil, err
	}
	ys, err := m.SampleValues(geneID, groupB)
	if err != nil {
		return nil, err
	}

	meanA, varA := stat.Mean(xs, nil), stat.Variance(xs, nil)
	meanB, varB := stat.Mean(ys, nil), stat.Variance(ys, nil)
	na, nb := float64(len(xs)), float64(len(ys))

	res := &TTestResult{
		GeneID:     geneID,
		MeanA:      meanA,
		MeanB:      meanB,
		FoldChange: foldChange(meanA, meanB),
	}
	res.Log2FoldChange = math.Log2(res.FoldChange)

	se2 := varA/na + varB/nb
	if se2 == 0 {
		// Both groups are constant. Identical means carry no signal;
		// different means are infinitely separated.
		if meanA == meanB {
			res.TStatistic = 0
			res.PValue = 1
		} else {
			res.TStatistic = math.Inf(sign(meanA - meanB))
			res.PValue = 0
		}
		res.DegreesOfFreedom = na + nb - 2
		return res, nil
	}

	res.TStatistic = (meanA - meanB) / math.Sqrt(se2)

	// Welch–Satterthwaite approximation.
	num := se2 * se2
	den := (varA*varA)/(na*na*(na-1)) + (varB*varB)/(nb*nb*(nb-1))
	res.DegreesOfFreedom = num / den

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: res.DegreesOfFreedom}
	res.PValue = 2 * dist.CDF(-math.Abs(res.TStatistic))
	if res.PValue > 1 {
		res.PValue = 1
	}
	return res, nil
}

// foldChange is the ratio of group means. Equal means, including the
// all-zero case, report 1.0.
func foldChange(meanA, meanB float64) float64 {
	if meanA == meanB {
		return 1
	}
	if meanB == 0 {
		return math.Inf(sign(meanA))
	}
	return meanA / meanB
}

func sign(v float64) int {
	if v < 0 {
		return -1
	}
	return 1
}
