package schema_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemformatics/mcp/schema"
)

type ttestRequest struct {
	DatasetID string   `json:"dataset_id" jsonschema:"description=Dataset identifier"`
	GeneID    string   `json:"gene_id" jsonschema:"description=Ensembl gene identifier"`
	GroupA    []string `json:"group_a" jsonschema:"description=First sample group"`
	GroupB    []string `json:"group_b" jsonschema:"description=Second sample group"`
	Key       string   `json:"key,omitempty" jsonschema:"enum=raw,enum=cpm,description=Expression value key"`
	Dims      int      `json:"dims,omitempty" jsonschema:"description=Number of dimensions"`
	Log2      bool     `json:"log2,omitempty"`
	Cutoff    float64  `json:"cutoff,omitempty"`
}

func Test_New_ParameterList(t *testing.T) {
	sc, err := schema.New(reflect.TypeOf(ttestRequest{}))
	require.NoError(t, err)
	require.NotNil(t, sc.Parameters)

	params := sc.ParameterList()
	require.Len(t, params, 8)

	// Declared struct field order is preserved.
	names := make([]string, 0, len(params))
	for _, p := range params {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"dataset_id", "gene_id", "group_a", "group_b", "key", "dims", "log2", "cutoff"}, names)

	byName := make(map[string]schema.Parameter, len(params))
	for _, p := range params {
		byName[p.Name] = p
	}

	assert.Equal(t, "string", byName["dataset_id"].Type)
	assert.True(t, byName["dataset_id"].Required)
	assert.Equal(t, "Dataset identifier", byName["dataset_id"].Description)

	assert.Equal(t, "array", byName["group_a"].Type)
	assert.Equal(t, "string", byName["group_a"].Items)
	assert.True(t, byName["group_a"].Required)

	assert.Equal(t, "string", byName["key"].Type)
	assert.False(t, byName["key"].Required)
	assert.Equal(t, []string{"raw", "cpm"}, byName["key"].Enum)

	assert.Equal(t, "integer", byName["dims"].Type)
	assert.Equal(t, "boolean", byName["log2"].Type)
	assert.Equal(t, "number", byName["cutoff"].Type)
}

func Test_New_Cached(t *testing.T) {
	a, err := schema.New(reflect.TypeOf(ttestRequest{}))
	require.NoError(t, err)
	b, err := schema.New(reflect.TypeOf(ttestRequest{}))
	require.NoError(t, err)
	assert.Same(t, a, b)
}
