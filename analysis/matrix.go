// Package analysis implements the statistical computations performed on
// fetched expression data: Welch's t-test, differential expression ranking,
// Pearson correlation and pathway enrichment. All functions are pure and
// operate on in-memory matrices; no I/O happens here.
package analysis

import (
	"github.com/stemformatics/mcp/faults"
)

// Matrix is an immutable gene-by-sample expression table. Rows are genes,
// columns are samples. Row and column label slices always match the value
// dimensions and contain no duplicates.
type Matrix struct {
	genes   []string
	samples []string
	values  [][]float64

	geneIndex   map[string]int
	sampleIndex map[string]int
}

// NewMatrix builds a Matrix and enforces the label invariants: label slice
// lengths equal the value dimensions and labels are unique within a slice.
func NewMatrix(genes, samples []string, values [][]float64) (*Matrix, error) {
	if len(values) != len(genes) {
		return nil, faults.New(faults.Parse, "expression matrix has %d rows but %d gene labels", len(values), len(genes))
	}
	geneIndex := make(map[string]int, len(genes))
	for i, g := range genes {
		if _, ok := geneIndex[g]; ok {
			return nil, faults.New(faults.Parse, "duplicate gene label %q", g)
		}
		geneIndex[g] = i
	}
	sampleIndex := make(map[string]int, len(samples))
	for i, s := range samples {
		if _, ok := sampleIndex[s]; ok {
			return nil, faults.New(faults.Parse, "duplicate sample label %q", s)
		}
		sampleIndex[s] = i
	}
	for i, row := range values {
		if len(row) != len(samples) {
			return nil, faults.New(faults.Parse, "row %d has %d values but %d sample labels", i, len(row), len(samples))
		}
	}
	return &Matrix{
		genes:       genes,
		samples:     samples,
		values:      values,
		geneIndex:   geneIndex,
		sampleIndex: sampleIndex,
	}, nil
}

// Genes returns the row labels in matrix order.
func (m *Matrix) Genes() []string {
	return m.genes
}

// Samples returns the column labels in matrix order.
func (m *Matrix) Samples() []string {
	return m.samples
}

// NumGenes returns the row count.
func (m *Matrix) NumGenes() int {
	return len(m.genes)
}

// NumSamples returns the column count.
func (m *Matrix) NumSamples() int {
	return len(m.samples)
}

// HasGene reports whether the gene is a row of the matrix.
func (m *Matrix) HasGene(geneID string) bool {
	_, ok := m.geneIndex[geneID]
	return ok
}

// Row returns the expression vector for a gene across all samples.
func (m *Matrix) Row(geneID string) ([]float64, error) {
	i, ok := m.geneIndex[geneID]
	if !ok {
		return nil, faults.New(faults.UnknownGene, "gene %q not found in expression matrix", geneID)
	}
	return m.values[i], nil
}

// SampleValues returns the expression of a gene restricted to the given
// sample identifiers, in the order given. Unknown sample identifiers are a
// validation failure: sample groups must be subsets of the dataset's samples.
func (m *Matrix) SampleValues(geneID string, sampleIDs []string) ([]float64, error) {
	row, err := m.Row(geneID)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(sampleIDs))
	for _, id := range sampleIDs {
		j, ok := m.sampleIndex[id]
		if !ok {
			return nil, faults.Validationf("sample", "sample %q not found in dataset", id)
		}
		out = append(out, row[j])
	}
	return out, nil
}

// checkPartition verifies the two sample groups are non-empty, disjoint
// subsets of the matrix columns.
func (m *Matrix) checkPartition(groupA, groupB []string) error {
	if len(groupA) == 0 {
		return faults.Validationf("group_a", "sample group is empty")
	}
	if len(groupB) == 0 {
		return faults.Validationf("group_b", "sample group is empty")
	}
	seen := make(map[string]struct{}, len(groupA))
	for _, id := range groupA {
		if _, ok := m.sampleIndex[id]; !ok {
			return faults.Validationf("group_a", "sample %q not found in dataset", id)
		}
		seen[id] = struct{}{}
	}
	for _, id := range groupB {
		if _, ok := m.sampleIndex[id]; !ok {
			return faults.Validationf("group_b", "sample %q not found in dataset", id)
		}
		if _, ok := seen[id]; ok {
			return faults.Validationf("group_b", "sample %q appears in both groups", id)
		}
	}
	return nil
}
