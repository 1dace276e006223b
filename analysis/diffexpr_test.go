package analysis_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemformatics/mcp/analysis"
)

func deFixture(t *testing.T) (*analysis.Matrix, []string, []string) {
	t.Helper()
	groupA := []string{"a1", "a2", "a3", "a4", "a5"}
	groupB := []string{"b1", "b2", "b3", "b4", "b5"}
	m, err := analysis.NewMatrix(
		[]string{"FLAT1", "UPREG", "NOISY"},
		append(append([]string{}, groupA...), groupB...),
		[][]float64{
			{5.0, 5.1, 4.9, 5.0, 5.0, 5.1, 4.9, 5.0, 5.0, 5.1},
			{2.0, 2.1, 1.9, 2.0, 2.0, 9.9, 10.1, 10.0, 9.8, 10.2},
			{3.0, 4.0, 2.0, 5.0, 3.5, 3.2, 4.1, 2.8, 4.6, 3.1},
		},
	)
	require.NoError(t, err)
	return m, groupA, groupB
}

func Test_DifferentialExpression_Ranking(t *testing.T) {
	m, groupA, groupB := deFixture(t)

	results, err := analysis.DifferentialExpression(m, groupA, groupB, analysis.DEOptions{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// The clearly up-regulated gene ranks first.
	assert.Equal(t, "UPREG", results[0].GeneID)
	assert.Less(t, results[0].PValue, 1e-6)

	// Output is sorted by ascending p-value.
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].PValue, results[i].PValue)
	}

	// Raw p-values are never adjusted unless asked for.
	for _, r := range results {
		assert.Zero(t, r.AdjustedP)
	}
}

func Test_DifferentialExpression_MarshalUnexpressedGene(t *testing.T) {
	groupA := []string{"a1", "a2", "a3"}
	groupB := []string{"b1", "b2", "b3"}
	m, err := analysis.NewMatrix(
		[]string{"OFFGENE", "STEADY"},
		append(append([]string{}, groupA...), groupB...),
		[][]float64{
			{4.0, 4.2, 3.8, 0.0, 0.0, 0.0}, // silent in group B
			{5.0, 5.1, 4.9, 5.0, 5.1, 4.9},
		},
	)
	require.NoError(t, err)

	results, err := analysis.DifferentialExpression(m, groupA, groupB, analysis.DEOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// One gene with an infinite fold change must not make the whole
	// response list unserializable.
	buf, err := json.Marshal(results)
	require.NoError(t, err)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(buf, &out))
	require.Len(t, out, 2)
	assert.Equal(t, "OFFGENE", out[0]["gene_id"])
	assert.Nil(t, out[0]["fold_change"])
	assert.Nil(t, out[0]["log2_fold_change"])
	assert.NotNil(t, out[1]["fold_change"])
}

func Test_DifferentialExpression_Adjusted(t *testing.T) {
	m, groupA, groupB := deFixture(t)

	results, err := analysis.DifferentialExpression(m, groupA, groupB, analysis.DEOptions{AdjustPValues: true})
	require.NoError(t, err)

	for i, r := range results {
		assert.GreaterOrEqual(t, r.AdjustedP, r.PValue, "gene %d", i)
		assert.LessOrEqual(t, r.AdjustedP, 1.0)
		if i > 0 {
			// BH adjusted values are monotone over the ascending raw ranking.
			assert.GreaterOrEqual(t, r.AdjustedP, results[i-1].AdjustedP)
		}
	}
}
