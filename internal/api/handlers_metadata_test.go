package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/fhirstore/zunder/internal/runtimeconfig"
	"github.com/stretchr/testify/require"
)

func TestMetadata_ListsEnabledSystemInteractionsAndOperations(t *testing.T) {
	cfg := newTestRuntimeCache()
	cfg.Set(runtimeconfig.InteractionsSystemBatch, json.RawMessage("false"))
	s := &Server{Config: cfg, FhirVersion: "4.0.1"}

	c, w := newRecordedTestContext()
	s.Metadata(c)

	require.Equal(t, http.StatusOK, w.Code)
	var cs capabilityStatement
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cs))
	require.Equal(t, "CapabilityStatement", cs.ResourceType)
	require.Equal(t, "4.0.1", cs.FhirVersion)
	require.Len(t, cs.Rest, 1)

	var codes []string
	for _, i := range cs.Rest[0].Interaction {
		codes = append(codes, i.Code)
	}
	require.NotContains(t, codes, "batch")
	require.Contains(t, codes, "transaction")
	require.Contains(t, codes, "search-system")

	var ops []string
	for _, o := range cs.Rest[0].Operation {
		ops = append(ops, o.Name)
	}
	require.Contains(t, ops, "validate")
}
