package stemformatics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/stemformatics/mcp/analysis"
	"github.com/stemformatics/mcp/faults"
)

// ExpressionMatrix fetches the full expression table for a dataset and
// parses it into an analysis matrix. The dict orientation maps sample id to
// gene id to value; genes and samples come out in sorted label order.
func (c *Client) ExpressionMatrix(ctx context.Context, datasetID, key string) (*analysis.Matrix, error) {
	if key == "" {
		key = "cpm"
	}
	params := url.Values{}
	params.Set("key", key)
	params.Set("log2", "false")
	params.Set("orient", "dict")
	params.Set("as_file", "false")

	endpoint := fmt.Sprintf("datasets/%s/expression", datasetID)
	body, err := c.Get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	var columns map[string]map[string]float64
	if err := json.Unmarshal(body, &columns); err != nil {
		return nil, faults.Wrap(faults.Parse, err, "unparsable expression table for dataset %s", datasetID)
	}
	if len(columns) == 0 {
		return nil, faults.New(faults.Parse, "empty expression table for dataset %s", datasetID)
	}

	samples := make([]string, 0, len(columns))
	geneSet := make(map[string]bool)
	for sampleID, col := range columns {
		samples = append(samples, sampleID)
		for geneID := range col {
			geneSet[geneID] = true
		}
	}
	sort.Strings(samples)

	genes := make([]string, 0, len(geneSet))
	for geneID := range geneSet {
		genes = append(genes, geneID)
	}
	sort.Strings(genes)

	values := make([][]float64, len(genes))
	for i, geneID := range genes {
		row := make([]float64, len(samples))
		for j, sampleID := range samples {
			v, ok := columns[sampleID][geneID]
			if !ok {
				return nil, faults.New(faults.Parse,
					"expression table for dataset %s is ragged: gene %s missing in sample %s",
					datasetID, geneID, sampleID)
			}
			row[j] = v
		}
		values[i] = row
	}

	m, err := analysis.NewMatrix(genes, samples, values)
	if err != nil {
		return nil, faults.Wrap(faults.Parse, err, "invalid expression table for dataset %s", datasetID)
	}
	return m, nil
}

// ResolveSampleGroups splits a dataset's samples into two groups by the
// value of a sample annotation key. Returned slices preserve the sample
// table's order.
func (c *Client) ResolveSampleGroups(ctx context.Context, datasetID, sampleGroup, item1, item2 string) (groupA, groupB []string, err error) {
	table, err := c.SampleTable(ctx, datasetID)
	if err != nil {
		return nil, nil, err
	}
	for _, rec := range table {
		id := sampleID(rec)
		if id == "" {
			continue
		}
		v, ok := rec[sampleGroup]
		if !ok {
			return nil, nil, faults.Validationf("sample_group", "unknown sample annotation key %q in dataset %s", sampleGroup, datasetID)
		}
		switch fmt.Sprint(v) {
		case item1:
			groupA = append(groupA, id)
		case item2:
			groupB = append(groupB, id)
		}
	}
	if len(groupA) == 0 {
		return nil, nil, faults.Validationf("sample_group_item1", "no samples with %s=%q in dataset %s", sampleGroup, item1, datasetID)
	}
	if len(groupB) == 0 {
		return nil, nil, faults.Validationf("sample_group_item2", "no samples with %s=%q in dataset %s", sampleGroup, item2, datasetID)
	}
	return groupA, groupB, nil
}

// sampleID extracts the sample identifier from one annotation record. The
// upstream names the column sample_id; index is the pandas fallback.
func sampleID(rec map[string]any) string {
	for _, k := range []string{"sample_id", "index"} {
		if v, ok := rec[k]; ok {
			switch id := v.(type) {
			case string:
				return id
			case float64:
				return strconv.FormatFloat(id, 'f', -1, 64)
			}
		}
	}
	return ""
}
