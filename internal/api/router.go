// Package api implements the HTTP REST surface spec §6 describes:
// routing, content negotiation, conditional-header handling, and
// OperationOutcome rendering on top of the already-built store (C6),
// search (C5), bundle (C7), hooks (C8), and runtimeconfig (C9) packages.
// Grounded on the teacher's cmd/api/main.go router-assembly shape
// (gin.Default() + CORS/RequestLogger middleware + grouped routes) and
// original_source's api/handlers/* dispatch tables, adapted from its
// per-resource-type generated routes to gin's :type path parameter since
// this server's resource type set isn't fixed at compile time.
package api

import (
	"github.com/fhirstore/zunder/internal/bundle"
	"github.com/fhirstore/zunder/internal/conformance"
	"github.com/fhirstore/zunder/internal/hooks"
	"github.com/fhirstore/zunder/internal/middleware"
	"github.com/fhirstore/zunder/internal/runtimeconfig"
	"github.com/fhirstore/zunder/internal/search"
	"github.com/fhirstore/zunder/internal/store"
	"github.com/gin-gonic/gin"
)

// Server holds every dependency a handler method needs. One instance is
// built at startup (cmd/server) and shared across all requests; nothing
// on it is request-scoped.
type Server struct {
	Store       *store.ResourceStore
	Engine      *search.Engine
	Bundle      *bundle.Processor
	Hooks       *hooks.Dispatcher
	Config      *runtimeconfig.Cache
	Conformance conformance.FhirContext

	// BasePath is the mount point routes are grouped under (e.g. "/fhir"),
	// FhirVersion feeds CapabilityStatement.fhirVersion, and StaticBaseURL
	// is the process-configured fallback base URL for contexts with no
	// *gin.Context to read X-Forwarded-* headers from (system-level union
	// search's per-type fan-out).
	BasePath      string
	FhirVersion   string
	StaticBaseURL string
}

// NewRouter assembles the gin engine: ambient middleware first (CORS,
// request logging — the teacher's cmd/api/main.go pattern), then the
// FHIR REST routes grouped under BasePath, each gated by its
// runtimeconfig interaction toggle (spec §4.9) before the handler body
// ever runs.
func NewRouter(s *Server) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Cors())
	router.Use(middleware.RequestLogger())

	router.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	base := router.Group(s.BasePath)
	cfg := s.Config

	base.GET("/metadata", gate(cfg, runtimeconfig.InteractionsSystemCapabilities, s.Metadata))
	// SubmitBundle gates itself per bundle.type (batch/transaction/history
	// each have their own toggle), so the route isn't wrapped in gate()
	// here the way every other route is.
	base.POST("", s.SubmitBundle)
	base.GET("/_history", gate(cfg, runtimeconfig.InteractionsSystemHistory, s.SystemHistory))
	base.GET("/_search", gate(cfg, runtimeconfig.InteractionsSystemSearch, s.SystemSearch))
	base.POST("/$validate", gate(cfg, runtimeconfig.InteractionsOperationsSystem, s.Validate))

	typeGroup := base.Group("/:type")
	typeGroup.GET("", gate(cfg, runtimeconfig.InteractionsTypeSearch, s.Search))
	typeGroup.POST("", gate(cfg, runtimeconfig.InteractionsTypeCreate, s.Create))
	typeGroup.PUT("", gate(cfg, runtimeconfig.InteractionsTypeConditionalUpdate, s.Update))
	typeGroup.PATCH("", gate(cfg, runtimeconfig.InteractionsTypeConditionalPatch, s.Patch))
	typeGroup.DELETE("", gate(cfg, runtimeconfig.InteractionsTypeConditionalDelete, s.Delete))
	typeGroup.GET("/_history", gate(cfg, runtimeconfig.InteractionsTypeHistory, s.TypeHistory))
	typeGroup.POST("/$validate", gate(cfg, runtimeconfig.InteractionsOperationsTypeLevel, s.Validate))

	typeGroup.GET("/:id", gate(cfg, runtimeconfig.InteractionsInstanceRead, s.Read))
	typeGroup.PUT("/:id", gate(cfg, runtimeconfig.InteractionsInstanceUpdate, s.Update))
	typeGroup.PATCH("/:id", gate(cfg, runtimeconfig.InteractionsInstancePatch, s.Patch))
	typeGroup.DELETE("/:id", gate(cfg, runtimeconfig.InteractionsInstanceDelete, s.Delete))
	typeGroup.GET("/:id/_history", gate(cfg, runtimeconfig.InteractionsInstanceHistory, s.InstanceHistory))
	typeGroup.GET("/:id/_history/:vid", gate(cfg, runtimeconfig.InteractionsInstanceVread, s.VRead))
	typeGroup.POST("/:id/$validate", gate(cfg, runtimeconfig.InteractionsOperationsInstance, s.Validate))
	typeGroup.GET("/:id/:compartment", gate(cfg, runtimeconfig.InteractionsTypeSearch, s.CompartmentSearch))

	return router
}
