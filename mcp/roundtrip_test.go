package mcp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemformatics/mcp/mcp"
	"github.com/stemformatics/mcp/mcp/transport/tcptransport"
	"github.com/stemformatics/mcp/stemformatics"
	"github.com/stemformatics/mcp/tools"
	"github.com/stemformatics/mcp/tools/stemtools"
)

// startServer runs the full stack: fake upstream API, caching client, tool
// catalog, dispatcher, TCP transport.
func startServer(t *testing.T) *mcp.Client {
	t.Helper()

	expression := map[string]map[string]float64{
		"s1": {"ENSG00000102145": 1}, "s2": {"ENSG00000102145": 2},
		"s3": {"ENSG00000102145": 3}, "s4": {"ENSG00000102145": 4},
		"s5": {"ENSG00000102145": 5}, "s6": {"ENSG00000102145": 2},
		"s7": {"ENSG00000102145": 3}, "s8": {"ENSG00000102145": 4},
		"s9": {"ENSG00000102145": 5}, "s10": {"ENSG00000102145": 6},
	}
	constant := map[string]map[string]float64{
		"s1": {"ENSG00000111640": 2}, "s2": {"ENSG00000111640": 2},
		"s3": {"ENSG00000111640": 8}, "s4": {"ENSG00000111640": 8},
	}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/datasets/7283/expression":
			require.NoError(t, json.NewEncoder(w).Encode(expression))
		case "/datasets/8144/expression":
			require.NoError(t, json.NewEncoder(w).Encode(constant))
		case "/atlas-types":
			_, _ = w.Write([]byte(`["myeloid","blood"]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(upstream.Close)

	svc := stemtools.NewService(stemformatics.New(upstream.URL))
	reg := tools.NewRegistry()
	require.NoError(t, svc.RegisterAll(reg))

	tr := tcptransport.New("127.0.0.1:0")
	require.NoError(t, tr.Listen())
	d := mcp.NewDispatcher(reg, tr, mcp.WithRequestTimeout(10*time.Second))
	go func() {
		_ = d.Serve(context.Background())
	}()
	t.Cleanup(func() {
		_ = tr.Close()
	})

	client, err := mcp.Dial(tr.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func Test_RoundTrip_PerformTTest(t *testing.T) {
	client := startServer(t)

	res, err := client.Call(context.Background(), "perform_ttest", map[string]any{
		"dataset_id": "7283",
		"gene_id":    "ENSG00000102145",
		"group_a":    []string{"s1", "s2", "s3", "s4", "s5"},
		"group_b":    []string{"s6", "s7", "s8", "s9", "s10"},
	})
	require.NoError(t, err)
	require.True(t, res.OK, "error: %+v", res.Error)

	buf, err := json.Marshal(res.Result)
	require.NoError(t, err)
	var out struct {
		GeneID     string  `json:"gene_id"`
		TStatistic float64 `json:"t_statistic"`
		PValue     float64 `json:"p_value"`
	}
	require.NoError(t, json.Unmarshal(buf, &out))
	assert.Equal(t, "ENSG00000102145", out.GeneID)
	assert.InDelta(t, -1.0, out.TStatistic, 1e-9)
	assert.Greater(t, out.PValue, 0.0)
	assert.LessOrEqual(t, out.PValue, 1.0)
}

// Constant groups with different means give an infinite t-statistic; the
// client must still receive its result, with the non-finite fields null.
func Test_RoundTrip_PerformTTest_ConstantGroups(t *testing.T) {
	client := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := client.Call(ctx, "perform_ttest", map[string]any{
		"dataset_id": "8144",
		"gene_id":    "ENSG00000111640",
		"group_a":    []string{"s1", "s2"},
		"group_b":    []string{"s3", "s4"},
	})
	require.NoError(t, err)
	require.True(t, res.OK, "error: %+v", res.Error)

	out, ok := res.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ENSG00000111640", out["gene_id"])
	assert.Nil(t, out["t_statistic"])
	assert.Equal(t, 0.0, out["p_value"])
	assert.Equal(t, 0.25, out["fold_change"])
}

func Test_RoundTrip_Retrieval(t *testing.T) {
	client := startServer(t)

	res, err := client.Call(context.Background(), "get_atlas_types", nil)
	require.NoError(t, err)
	require.True(t, res.OK)
	types, ok := res.Result.([]any)
	require.True(t, ok)
	assert.Contains(t, types, "myeloid")
}

func Test_RoundTrip_ErrorEnvelope(t *testing.T) {
	client := startServer(t)

	res, err := client.Call(context.Background(), "no_such_tool", nil)
	require.NoError(t, err)
	assert.False(t, res.OK)
	require.NotNil(t, res.Error)
	assert.Equal(t, "UnknownToolError", res.Error.Kind)

	res, err = client.Call(context.Background(), "perform_ttest", map[string]any{
		"gene_id": 42,
	})
	require.NoError(t, err)
	assert.False(t, res.OK)
	require.NotNil(t, res.Error)
	assert.Equal(t, "ValidationError", res.Error.Kind)
}
