// Package fhirmodel holds the shared, wire-level data shapes that the
// conformance, indexing, store, and bundle packages all need a common
// vocabulary for. It deliberately stays close to raw JSON: resource bodies
// are validated against profiles by the conformance layer, not by Go struct
// tags, so this package only fixes the handful of fields every resource and
// every version row is guaranteed to carry.
package fhirmodel

import (
	"encoding/json"
	"time"
)

// Meta is the subset of Resource.meta the server itself manages.
type Meta struct {
	VersionID   string    `json:"versionId,omitempty"`
	LastUpdated time.Time `json:"lastUpdated,omitempty"`
	Source      string    `json:"source,omitempty"`
	Profile     []string  `json:"profile,omitempty"`
}

// Resource is one version of a stored resource: the raw body plus the
// identity and lifecycle columns the store maintains alongside it.
type Resource struct {
	Type         string          `db:"resource_type" json:"-"`
	ID           string          `db:"id" json:"-"`
	VersionID    int64           `db:"version_id" json:"-"`
	IsCurrent    bool            `db:"is_current" json:"-"`
	Deleted      bool            `db:"deleted" json:"-"`
	LastUpdated  time.Time       `db:"last_updated" json:"-"`
	CanonicalURL *string         `db:"canonical_url" json:"-"`
	CanonicalVersion *string     `db:"canonical_version" json:"-"`
	Body         json.RawMessage `db:"body" json:"-"`
	ContentHash  *string         `db:"content_hash" json:"-"`
}

// OperationOutcome error severities, per the Standard.
const (
	IssueSeverityFatal   = "fatal"
	IssueSeverityError   = "error"
	IssueSeverityWarning = "warning"
	IssueSeverityInfo    = "information"
)

// OperationOutcomeIssue is one issue entry within an OperationOutcome.
type OperationOutcomeIssue struct {
	Severity    string   `json:"severity"`
	Code        string   `json:"code"`
	Diagnostics string   `json:"diagnostics,omitempty"`
	Expression  []string `json:"expression,omitempty"`
}

// OperationOutcome is the error/informational resource returned on every
// non-2xx response (and optionally via Prefer: return=OperationOutcome).
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

// NewOperationOutcome builds a single-issue OperationOutcome.
func NewOperationOutcome(severity, code, diagnostics string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OperationOutcomeIssue{
			{Severity: severity, Code: code, Diagnostics: diagnostics},
		},
	}
}

// PreferReturn mirrors the Prefer: return= request header.
type PreferReturn int

const (
	PreferReturnMinimal PreferReturn = iota
	PreferReturnRepresentation
	PreferReturnOperationOutcome
)

// PreferHandling mirrors the Prefer: handling= request header.
type PreferHandling int

const (
	PreferHandlingStrict PreferHandling = iota
	PreferHandlingLenient
)
