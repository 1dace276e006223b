package stemformatics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// FileContent is returned for endpoints queried with as_file, where the
// upstream sends raw text instead of JSON.
type FileContent struct {
	Content string `json:"content"`
	IsFile  bool   `json:"is_file"`
}

// decodeOrFile decodes a JSON body, or wraps a non-JSON body as raw file
// content. Endpoints that accept as_file return text/tab-separated payloads.
func decodeOrFile(body []byte) (any, error) {
	var out any
	if err := json.Unmarshal(body, &out); err != nil {
		return &FileContent{Content: string(body), IsFile: true}, nil
	}
	return out, nil
}

// DatasetMetadata returns metadata for one dataset.
func (c *Client) DatasetMetadata(ctx context.Context, datasetID string) (any, error) {
	var out any
	err := c.getJSON(ctx, fmt.Sprintf("datasets/%s/metadata", datasetID), nil, &out)
	return out, err
}

// DatasetSamples returns the sample annotation table for a dataset.
func (c *Client) DatasetSamples(ctx context.Context, datasetID, orient string, asFile bool) (any, error) {
	params := url.Values{}
	params.Set("orient", orient)
	params.Set("as_file", strconv.FormatBool(asFile))
	body, err := c.Get(ctx, fmt.Sprintf("datasets/%s/samples", datasetID), params)
	if err != nil {
		return nil, err
	}
	return decodeOrFile(body)
}

// SampleTable returns the sample annotations as records, one map per sample.
// Used to resolve sample-group items into sample id lists.
func (c *Client) SampleTable(ctx context.Context, datasetID string) ([]map[string]any, error) {
	params := url.Values{}
	params.Set("orient", "records")
	var out []map[string]any
	if err := c.getJSON(ctx, fmt.Sprintf("datasets/%s/samples", datasetID), params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExpressionQuery selects the expression slice to fetch.
type ExpressionQuery struct {
	GeneID string
	Key    string // expression value key, defaults to cpm
	Log2   bool
	Orient string
	AsFile bool
}

// DatasetExpression returns expression data in the requested orientation.
func (c *Client) DatasetExpression(ctx context.Context, datasetID string, q ExpressionQuery) (any, error) {
	if q.Key == "" {
		q.Key = "cpm"
	}
	if q.Orient == "" {
		q.Orient = "records"
	}
	params := url.Values{}
	params.Set("key", q.Key)
	params.Set("log2", strconv.FormatBool(q.Log2))
	params.Set("orient", q.Orient)
	params.Set("as_file", strconv.FormatBool(q.AsFile))
	if q.GeneID != "" {
		params.Set("gene_id", q.GeneID)
	}
	body, err := c.Get(ctx, fmt.Sprintf("datasets/%s/expression", datasetID), params)
	if err != nil {
		return nil, err
	}
	return decodeOrFile(body)
}

// DatasetPCA returns PCA coordinates for a dataset.
func (c *Client) DatasetPCA(ctx context.Context, datasetID, orient string, dims int) (any, error) {
	params := url.Values{}
	params.Set("orient", orient)
	params.Set("dims", strconv.Itoa(dims))
	var out any
	err := c.getJSON(ctx, fmt.Sprintf("datasets/%s/pca", datasetID), params, &out)
	return out, err
}

// CorrelatedGenes returns the upstream's correlated-genes computation.
func (c *Client) CorrelatedGenes(ctx context.Context, datasetID, geneID string, cutoff int) (any, error) {
	params := url.Values{}
	params.Set("gene_id", geneID)
	params.Set("cutoff", strconv.Itoa(cutoff))
	var out any
	err := c.getJSON(ctx, fmt.Sprintf("datasets/%s/correlated-genes", datasetID), params, &out)
	return out, err
}

// TTest runs the upstream's t-test between two sample-group items.
func (c *Client) TTest(ctx context.Context, datasetID, geneID, sampleGroup, item1, item2 string) (any, error) {
	params := url.Values{}
	params.Set("gene_id", geneID)
	params.Set("sample_group", sampleGroup)
	params.Set("sample_group_item1", item1)
	params.Set("sample_group_item2", item2)
	var out any
	err := c.getJSON(ctx, fmt.Sprintf("datasets/%s/ttest", datasetID), params, &out)
	return out, err
}

// SearchDatasets searches dataset annotations.
func (c *Client) SearchDatasets(ctx context.Context, query string) (any, error) {
	params := url.Values{}
	if query != "" {
		params.Set("query_string", query)
	}
	var out any
	err := c.getJSON(ctx, "search/datasets", params, &out)
	return out, err
}

// SearchDatasetsPage fetches one page of dataset search results. An empty
// page means the end of the collection.
func (c *Client) SearchDatasetsPage(ctx context.Context, query string, start, limit int) ([]any, error) {
	params := url.Values{}
	if query != "" {
		params.Set("query_string", query)
	}
	params.Set("pagination_start", strconv.Itoa(start))
	params.Set("pagination_limit", strconv.Itoa(limit))
	var out []any
	if err := c.getJSON(ctx, "search/datasets", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchSamples searches sample annotations. field narrows the search to a
// comma-separated list of annotation fields.
func (c *Client) SearchSamples(ctx context.Context, query, field string, limit int, orient string) (any, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("orient", orient)
	if query != "" {
		params.Set("query_string", query)
	}
	if field != "" {
		params.Set("field", field)
	}
	var out any
	err := c.getJSON(ctx, "search/samples", params, &out)
	return out, err
}

// DatasetValues returns the unique values of a dataset annotation key.
func (c *Client) DatasetValues(ctx context.Context, key string, includeCount bool) (any, error) {
	params := url.Values{}
	params.Set("include_count", strconv.FormatBool(includeCount))
	var out any
	err := c.getJSON(ctx, "values/datasets/"+key, params, &out)
	return out, err
}

// SampleValues returns the unique values of a sample annotation key.
func (c *Client) SampleValues(ctx context.Context, key string, includeCount bool) (any, error) {
	params := url.Values{}
	params.Set("include_count", strconv.FormatBool(includeCount))
	var out any
	err := c.getJSON(ctx, "values/samples/"+key, params, &out)
	return out, err
}

// Download requests a bulk download of the given datasets.
func (c *Client) Download(ctx context.Context, datasetIDs []string) (any, error) {
	params := url.Values{}
	params.Set("dataset_id", strings.Join(datasetIDs, ","))
	var out any
	err := c.getJSON(ctx, "download", params, &out)
	return out, err
}

// SampleGroupToGenes returns genes highly expressed in a sample-group item.
func (c *Client) SampleGroupToGenes(ctx context.Context, sampleGroup, item string, cutoff int) (any, error) {
	params := url.Values{}
	params.Set("sample_group", sampleGroup)
	params.Set("sample_group_item", item)
	params.Set("cutoff", strconv.Itoa(cutoff))
	var out any
	err := c.getJSON(ctx, "genes/sample-group-to-genes", params, &out)
	return out, err
}

// GeneToSampleGroups returns the sample-group items a gene scores highly in.
func (c *Client) GeneToSampleGroups(ctx context.Context, geneID, sampleGroup string) (any, error) {
	params := url.Values{}
	params.Set("gene_id", geneID)
	params.Set("sample_group", sampleGroup)
	var out any
	err := c.getJSON(ctx, "genes/gene-to-sample-groups", params, &out)
	return out, err
}

// AtlasTypes returns the available atlas types.
func (c *Client) AtlasTypes(ctx context.Context) (any, error) {
	var out any
	err := c.getJSON(ctx, "atlas-types", nil, &out)
	return out, err
}

// AtlasQuery selects the atlas slice to fetch.
type AtlasQuery struct {
	Version     string
	Orient      string
	Filtered    bool
	QueryString string
	GeneID      string
	AsFile      bool
}

// Atlas returns data for one atlas item.
func (c *Client) Atlas(ctx context.Context, atlasType, item string, q AtlasQuery) (any, error) {
	if q.Orient == "" {
		q.Orient = "records"
	}
	params := url.Values{}
	params.Set("version", q.Version)
	params.Set("orient", q.Orient)
	params.Set("filtered", strconv.FormatBool(q.Filtered))
	params.Set("as_file", strconv.FormatBool(q.AsFile))
	if q.QueryString != "" {
		params.Set("query_string", q.QueryString)
	}
	if q.GeneID != "" {
		params.Set("gene_id", q.GeneID)
	}
	body, err := c.Get(ctx, fmt.Sprintf("atlases/%s/%s", atlasType, item), params)
	if err != nil {
		return nil, err
	}
	return decodeOrFile(body)
}

// AtlasProjection projects a data source onto an atlas.
func (c *Client) AtlasProjection(ctx context.Context, atlasType, dataSource string) (any, error) {
	var out any
	err := c.getJSON(ctx, fmt.Sprintf("atlas-projection/%s/%s", atlasType, dataSource), nil, &out)
	return out, err
}
