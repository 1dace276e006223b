package stemtools

import (
	"context"

	"github.com/stemformatics/mcp/analysis"
	"github.com/stemformatics/mcp/faults"
	"github.com/stemformatics/mcp/tools"
)

type ttestRequest struct {
	DatasetID string   `json:"dataset_id" jsonschema:"description=The ID of the dataset"`
	GeneID    string   `json:"gene_id" jsonschema:"description=Ensembl gene ID"`
	GroupA    []string `json:"group_a,omitempty" jsonschema:"description=Sample IDs of the first group"`
	GroupB    []string `json:"group_b,omitempty" jsonschema:"description=Sample IDs of the second group"`
	// Legacy shape: name a sample annotation key and two of its values
	// instead of explicit sample lists.
	SampleGroup      string `json:"sample_group,omitempty" jsonschema:"description=Sample group key"`
	SampleGroupItem1 string `json:"sample_group_item1,omitempty" jsonschema:"description=First sample group item"`
	SampleGroupItem2 string `json:"sample_group_item2,omitempty" jsonschema:"description=Second sample group item"`
	Key              string `json:"key,omitempty" jsonschema:"description=Expression value key (default cpm)"`
}

type correlatedGenesRequest struct {
	DatasetID string `json:"dataset_id" jsonschema:"description=The ID of the dataset"`
	GeneID    string `json:"gene_id" jsonschema:"description=Ensembl gene ID"`
	Cutoff    int    `json:"cutoff,omitempty" jsonschema:"description=Correlation cutoff for the upstream computation (default 30)"`
	Local     bool   `json:"local,omitempty" jsonschema:"description=Compute Pearson correlations locally over the expression matrix"`
	TopK      int    `json:"top_k,omitempty" jsonschema:"description=Number of genes to return for the local computation (default 30)"`
	Key       string `json:"key,omitempty" jsonschema:"description=Expression value key (default cpm)"`
}

type diffExprRequest struct {
	DatasetID string   `json:"dataset_id" jsonschema:"description=The ID of the dataset"`
	GroupA    []string `json:"group_a" jsonschema:"description=Sample IDs of the first group"`
	GroupB    []string `json:"group_b" jsonschema:"description=Sample IDs of the second group"`
	Key       string   `json:"key,omitempty" jsonschema:"description=Expression value key (default cpm)"`
}

type pathwayDef struct {
	Name  string   `json:"name" jsonschema:"description=Pathway name"`
	Genes []string `json:"genes" jsonschema:"description=Member gene IDs"`
}

type enrichmentRequest struct {
	GeneSet        []string     `json:"gene_set" jsonschema:"description=Gene IDs to test for over-representation"`
	BackgroundSize int          `json:"background_size" jsonschema:"description=Size of the background gene universe"`
	Pathways       []pathwayDef `json:"pathways" jsonschema:"description=Pathways with their member genes"`
}

func (s *Service) registerAnalysis(reg *tools.Registry) error {
	if err := register(reg, "perform_ttest",
		"Perform Welch's t-test for a gene between two sample groups.",
		s.performTTest); err != nil {
		return err
	}

	if err := register(reg, "get_correlated_genes",
		"Get genes correlated with a specific gene in a dataset.",
		s.correlatedGenes); err != nil {
		return err
	}

	if err := register(reg, "differential_expression",
		"Rank all genes in a dataset by differential expression between two sample groups.",
		s.differentialExpression); err != nil {
		return err
	}

	return register(reg, "pathway_enrichment",
		"Score pathways for over-representation of a gene set.",
		s.pathwayEnrichment)
}

func (s *Service) performTTest(ctx context.Context, in *ttestRequest) (any, error) {
	groupA, groupB := in.GroupA, in.GroupB
	if len(groupA) == 0 && len(groupB) == 0 {
		if in.SampleGroup == "" || in.SampleGroupItem1 == "" || in.SampleGroupItem2 == "" {
			return nil, faults.Validationf("group_a", "either group_a/group_b or sample_group with both items is required")
		}
		var err error
		groupA, groupB, err = s.client.ResolveSampleGroups(ctx, in.DatasetID, in.SampleGroup, in.SampleGroupItem1, in.SampleGroupItem2)
		if err != nil {
			return nil, err
		}
	} else if len(groupA) == 0 || len(groupB) == 0 {
		return nil, faults.Validationf("group_b", "group_a and group_b must both be provided")
	}

	m, err := s.client.ExpressionMatrix(ctx, in.DatasetID, in.Key)
	if err != nil {
		return nil, err
	}
	return analysis.Welch(m, in.GeneID, groupA, groupB)
}

func (s *Service) correlatedGenes(ctx context.Context, in *correlatedGenesRequest) (any, error) {
	if !in.Local {
		cutoff := in.Cutoff
		if cutoff <= 0 {
			cutoff = 30
		}
		return s.client.CorrelatedGenes(ctx, in.DatasetID, in.GeneID, cutoff)
	}

	topK := in.TopK
	if topK <= 0 {
		topK = 30
	}
	m, err := s.client.ExpressionMatrix(ctx, in.DatasetID, in.Key)
	if err != nil {
		return nil, err
	}
	return analysis.CorrelatedGenes(m, in.GeneID, topK)
}

func (s *Service) differentialExpression(ctx context.Context, in *diffExprRequest) (any, error) {
	m, err := s.client.ExpressionMatrix(ctx, in.DatasetID, in.Key)
	if err != nil {
		return nil, err
	}
	return analysis.DifferentialExpression(m, in.GroupA, in.GroupB, analysis.DEOptions{
		AdjustPValues: s.adjustPValues,
	})
}

func (s *Service) pathwayEnrichment(_ context.Context, in *enrichmentRequest) (any, error) {
	membership := make(map[string][]string, len(in.Pathways))
	for _, p := range in.Pathways {
		if p.Name == "" {
			return nil, faults.Validationf("pathways", "pathway name is required")
		}
		if _, ok := membership[p.Name]; ok {
			return nil, faults.Validationf("pathways", "duplicate pathway name %q", p.Name)
		}
		membership[p.Name] = p.Genes
	}
	return analysis.PathwayEnrichment(in.GeneSet, in.BackgroundSize, membership, analysis.EnrichmentOptions{
		AdjustPValues: s.adjustPValues,
	})
}
