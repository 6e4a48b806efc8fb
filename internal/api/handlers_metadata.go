package api

import (
	"net/http"
	"time"

	"github.com/fhirstore/zunder/internal/runtimeconfig"
	"github.com/gin-gonic/gin"
)

// capabilityStatement is the minimal subset of CapabilityStatement this
// server renders: enough for a client to discover the FHIR version, the
// wire format, and which of the interaction toggles (spec §4.9) are
// currently enabled, without replicating the Standard's full resource
// element (every SearchParameter per resource type is discoverable via
// GET /SearchParameter instead).
type capabilityStatement struct {
	ResourceType string                  `json:"resourceType"`
	Status       string                  `json:"status"`
	Date         string                  `json:"date"`
	Kind         string                  `json:"kind"`
	FhirVersion  string                  `json:"fhirVersion"`
	Format       []string                `json:"format"`
	Rest         []capabilityRest        `json:"rest"`
}

type capabilityRest struct {
	Mode        string                `json:"mode"`
	Interaction []capabilityInteract  `json:"interaction,omitempty"`
	Operation   []capabilityOperation `json:"operation,omitempty"`
}

type capabilityInteract struct {
	Code string `json:"code"`
}

type capabilityOperation struct {
	Name string `json:"name"`
}

// Metadata handles GET /metadata (spec §6's system-level capabilities
// interaction).
func (s *Server) Metadata(c *gin.Context) {
	rest := capabilityRest{Mode: "server"}
	add := func(key runtimeconfig.ConfigKey, code string) {
		if s.Config.GetBool(key) {
			rest.Interaction = append(rest.Interaction, capabilityInteract{Code: code})
		}
	}
	add(runtimeconfig.InteractionsSystemBatch, "batch")
	add(runtimeconfig.InteractionsSystemTransaction, "transaction")
	add(runtimeconfig.InteractionsSystemHistoryBundle, "history-system")
	add(runtimeconfig.InteractionsSystemSearch, "search-system")

	if s.Config.GetBool(runtimeconfig.InteractionsOperationsSystem) {
		rest.Operation = append(rest.Operation, capabilityOperation{Name: "validate"})
	}

	cs := capabilityStatement{
		ResourceType: "CapabilityStatement",
		Status:       "active",
		Date:         time.Now().UTC().Format("2006-01-02"),
		Kind:         "instance",
		FhirVersion:  s.FhirVersion,
		Format:       []string{"json", fhirJSON},
		Rest:         []capabilityRest{rest},
	}
	c.Header("Content-Type", fhirJSON)
	c.JSON(http.StatusOK, cs)
}
