package stemtools

import (
	"context"

	"github.com/stemformatics/mcp/stemformatics"
	"github.com/stemformatics/mcp/tools"
)

type datasetRequest struct {
	DatasetID string `json:"dataset_id" jsonschema:"description=The ID of the dataset"`
}

type datasetSamplesRequest struct {
	DatasetID string `json:"dataset_id" jsonschema:"description=The ID of the dataset"`
	Orient    string `json:"orient,omitempty" jsonschema:"description=Orientation of the data (records or dict)"`
	AsFile    bool   `json:"as_file,omitempty" jsonschema:"description=Return the data as raw file content"`
}

type datasetExpressionRequest struct {
	DatasetID string `json:"dataset_id" jsonschema:"description=The ID of the dataset"`
	GeneID    string `json:"gene_id,omitempty" jsonschema:"description=Optional Ensembl gene ID to filter by"`
	Key       string `json:"key,omitempty" jsonschema:"description=Expression value key (default cpm)"`
	Log2      bool   `json:"log2,omitempty" jsonschema:"description=Return log2 values"`
	Orient    string `json:"orient,omitempty" jsonschema:"description=Orientation of the data"`
	AsFile    bool   `json:"as_file,omitempty" jsonschema:"description=Return the data as raw file content"`
}

type datasetPCARequest struct {
	DatasetID string `json:"dataset_id" jsonschema:"description=The ID of the dataset"`
	Orient    string `json:"orient,omitempty" jsonschema:"description=Orientation of the data"`
	Dims      int    `json:"dims,omitempty" jsonschema:"description=Number of PCA dimensions to return (default 20)"`
}

type searchDatasetsRequest struct {
	QueryString     string `json:"query_string,omitempty" jsonschema:"description=Search query"`
	PaginationStart int    `json:"pagination_start,omitempty" jsonschema:"description=Offset of the first result to return"`
	PaginationLimit int    `json:"pagination_limit,omitempty" jsonschema:"description=Maximum number of results per page; 0 returns the full collection"`
}

type searchSamplesRequest struct {
	QueryString string `json:"query_string,omitempty" jsonschema:"description=Search query"`
	Field       string `json:"field,omitempty" jsonschema:"description=Comma-separated annotation fields to search in"`
	Limit       int    `json:"limit,omitempty" jsonschema:"description=Maximum number of results (default 50)"`
	Orient      string `json:"orient,omitempty" jsonschema:"description=Orientation of the data"`
}

type valuesRequest struct {
	Key          string `json:"key" jsonschema:"description=Annotation key to list values for"`
	IncludeCount bool   `json:"include_count,omitempty" jsonschema:"description=Include the count of each value"`
}

type downloadRequest struct {
	DatasetIDs []string `json:"dataset_ids" jsonschema:"description=Dataset IDs to download"`
}

type sampleGroupToGenesRequest struct {
	SampleGroup     string `json:"sample_group" jsonschema:"description=Sample group key"`
	SampleGroupItem string `json:"sample_group_item" jsonschema:"description=Sample group item"`
	Cutoff          int    `json:"cutoff,omitempty" jsonschema:"description=Cutoff value (default 10)"`
}

type geneToSampleGroupsRequest struct {
	GeneID      string `json:"gene_id" jsonschema:"description=Ensembl gene ID"`
	SampleGroup string `json:"sample_group,omitempty" jsonschema:"description=Sample group key (default cell_type)"`
}

type atlasTypesRequest struct{}

type atlasRequest struct {
	AtlasType   string `json:"atlas_type" jsonschema:"description=Type of atlas"`
	Item        string `json:"item" jsonschema:"description=Atlas item"`
	Version     string `json:"version,omitempty" jsonschema:"description=Atlas version"`
	Orient      string `json:"orient,omitempty" jsonschema:"description=Orientation of the data"`
	Filtered    bool   `json:"filtered,omitempty" jsonschema:"description=Filter the data"`
	QueryString string `json:"query_string,omitempty" jsonschema:"description=Search query"`
	GeneID      string `json:"gene_id,omitempty" jsonschema:"description=Optional Ensembl gene ID"`
	AsFile      bool   `json:"as_file,omitempty" jsonschema:"description=Return the data as raw file content"`
}

type atlasProjectionRequest struct {
	AtlasType  string `json:"atlas_type" jsonschema:"description=Type of atlas"`
	DataSource string `json:"data_source" jsonschema:"description=Data source to project"`
}

func (s *Service) registerRetrieval(reg *tools.Registry) error {
	if err := register(reg, "get_dataset_metadata",
		"Get metadata for a specific dataset.",
		func(ctx context.Context, in *datasetRequest) (any, error) {
			return s.client.DatasetMetadata(ctx, in.DatasetID)
		}); err != nil {
		return err
	}

	if err := register(reg, "get_dataset_samples",
		"Get the sample annotation table for a dataset.",
		func(ctx context.Context, in *datasetSamplesRequest) (any, error) {
			orient := in.Orient
			if orient == "" {
				orient = "records"
			}
			return s.client.DatasetSamples(ctx, in.DatasetID, orient, in.AsFile)
		}); err != nil {
		return err
	}

	if err := register(reg, "get_dataset_expression",
		"Get gene expression data for a dataset.",
		func(ctx context.Context, in *datasetExpressionRequest) (any, error) {
			return s.client.DatasetExpression(ctx, in.DatasetID, stemformatics.ExpressionQuery{
				GeneID: in.GeneID,
				Key:    in.Key,
				Log2:   in.Log2,
				Orient: in.Orient,
				AsFile: in.AsFile,
			})
		}); err != nil {
		return err
	}

	if err := register(reg, "get_dataset_pca",
		"Get PCA coordinates for a dataset.",
		func(ctx context.Context, in *datasetPCARequest) (any, error) {
			orient := in.Orient
			if orient == "" {
				orient = "records"
			}
			dims := in.Dims
			if dims <= 0 {
				dims = 20
			}
			return s.client.DatasetPCA(ctx, in.DatasetID, orient, dims)
		}); err != nil {
		return err
	}

	if err := register(reg, "search_datasets",
		"Search for datasets.",
		func(ctx context.Context, in *searchDatasetsRequest) (any, error) {
			if in.PaginationLimit > 0 {
				return s.client.SearchDatasetsPage(ctx, in.QueryString, in.PaginationStart, in.PaginationLimit)
			}
			return s.client.SearchDatasets(ctx, in.QueryString)
		}); err != nil {
		return err
	}

	if err := register(reg, "search_samples",
		"Search for samples.",
		func(ctx context.Context, in *searchSamplesRequest) (any, error) {
			limit := in.Limit
			if limit <= 0 {
				limit = 50
			}
			orient := in.Orient
			if orient == "" {
				orient = "records"
			}
			return s.client.SearchSamples(ctx, in.QueryString, in.Field, limit, orient)
		}); err != nil {
		return err
	}

	if err := register(reg, "get_dataset_values",
		"Get unique values for a key across all datasets.",
		func(ctx context.Context, in *valuesRequest) (any, error) {
			return s.client.DatasetValues(ctx, in.Key, in.IncludeCount)
		}); err != nil {
		return err
	}

	if err := register(reg, "get_sample_values",
		"Get unique values for a key across all samples.",
		func(ctx context.Context, in *valuesRequest) (any, error) {
			return s.client.SampleValues(ctx, in.Key, in.IncludeCount)
		}); err != nil {
		return err
	}

	if err := register(reg, "download_datasets",
		"Request a bulk download of datasets.",
		func(ctx context.Context, in *downloadRequest) (any, error) {
			return s.client.Download(ctx, in.DatasetIDs)
		}); err != nil {
		return err
	}

	if err := register(reg, "get_sample_group_to_genes",
		"Get genes associated with a sample group item.",
		func(ctx context.Context, in *sampleGroupToGenesRequest) (any, error) {
			cutoff := in.Cutoff
			if cutoff <= 0 {
				cutoff = 10
			}
			return s.client.SampleGroupToGenes(ctx, in.SampleGroup, in.SampleGroupItem, cutoff)
		}); err != nil {
		return err
	}

	if err := register(reg, "get_gene_to_sample_groups",
		"Get sample groups associated with a gene.",
		func(ctx context.Context, in *geneToSampleGroupsRequest) (any, error) {
			group := in.SampleGroup
			if group == "" {
				group = "cell_type"
			}
			return s.client.GeneToSampleGroups(ctx, in.GeneID, group)
		}); err != nil {
		return err
	}

	if err := register(reg, "get_atlas_types",
		"Get available atlas types.",
		func(ctx context.Context, _ *atlasTypesRequest) (any, error) {
			return s.client.AtlasTypes(ctx)
		}); err != nil {
		return err
	}

	if err := register(reg, "get_atlas",
		"Get data for an atlas item.",
		func(ctx context.Context, in *atlasRequest) (any, error) {
			return s.client.Atlas(ctx, in.AtlasType, in.Item, stemformatics.AtlasQuery{
				Version:     in.Version,
				Orient:      in.Orient,
				Filtered:    in.Filtered,
				QueryString: in.QueryString,
				GeneID:      in.GeneID,
				AsFile:      in.AsFile,
			})
		}); err != nil {
		return err
	}

	return register(reg, "get_atlas_projection",
		"Project a data source onto an atlas.",
		func(ctx context.Context, in *atlasProjectionRequest) (any, error) {
			return s.client.AtlasProjection(ctx, in.AtlasType, in.DataSource)
		})
}
