package conformance

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// conformanceResourceTypes lists the resource types whose writes trigger
// C8 hooks (search-parameter cache invalidation, membership/terminology
// rebuilds) — grounded on original_source's is_conformance_resource_type.
var conformanceResourceTypes = map[string]bool{
	"SearchParameter": true, "StructureDefinition": true, "CodeSystem": true,
	"ValueSet": true, "CompartmentDefinition": true, "ConceptMap": true,
	"ImplementationGuide": true,
}

// IsConformanceResourceType reports whether writes to this resource type
// should trigger the post-write hook dispatcher (C8).
func IsConformanceResourceType(resourceType string) bool {
	return conformanceResourceTypes[resourceType]
}

// CorePackageFor maps a FHIR version string to the canonical core package
// name/version pin, the supplemented package-registry surface from
// SPEC_FULL.md Section D (original_source downloads these from a package
// registry at startup; this server instead requires them pre-loaded into
// the resources table via `migrate` and only tracks the pin here).
func CorePackageFor(fhirVersion string) (name, version string, ok bool) {
	switch fhirVersion {
	case "R4":
		return "hl7.fhir.r4.core", "4.0.1", true
	case "R4B":
		return "hl7.fhir.r4b.core", "4.3.0", true
	case "R5":
		return "hl7.fhir.r5.core", "5.0.0", true
	default:
		return "", "", false
	}
}

// PackageRegistry resolves which installed package version owns a given
// resource, and records installed packages for `fhir_packages`/
// `resource_packages` (SPEC_FULL.md Section D's supplemented package
// registry surface).
type PackageRegistry struct {
	db *sqlx.DB
}

func NewPackageRegistry(db *sqlx.DB) *PackageRegistry { return &PackageRegistry{db: db} }

func (r *PackageRegistry) RecordInstalled(name, version string) error {
	_, err := r.db.Exec(`
		INSERT INTO fhir_packages (name, version) VALUES ($1, $2)
		ON CONFLICT (name, version) DO NOTHING
	`, name, version)
	if err != nil {
		return fmt.Errorf("record installed package: %w", err)
	}
	return nil
}

func (r *PackageRegistry) RecordResource(packageName, packageVersion, resourceType, resourceID string) error {
	_, err := r.db.Exec(`
		INSERT INTO resource_packages (package_name, package_version, resource_type, resource_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`, packageName, packageVersion, resourceType, resourceID)
	if err != nil {
		return fmt.Errorf("record package resource: %w", err)
	}
	return nil
}

func (r *PackageRegistry) OwningPackage(resourceType, resourceID string) (packageName, packageVersion string, ok bool) {
	var row struct {
		PackageName    string `db:"package_name"`
		PackageVersion string `db:"package_version"`
	}
	err := r.db.Get(&row, `
		SELECT package_name, package_version FROM resource_packages
		WHERE resource_type = $1 AND resource_id = $2
		LIMIT 1
	`, resourceType, resourceID)
	if err != nil {
		return "", "", false
	}
	return row.PackageName, row.PackageVersion, true
}
