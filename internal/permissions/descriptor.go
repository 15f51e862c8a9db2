// Package permissions resolves the permission closure of Salesforce
// profiles: every setup entity, object permission, and custom-tab setting
// the profiles reference, translated into the API names a retrieval
// manifest needs.
package permissions

// EntityDescriptor describes how one setup-entity category is resolved
// from discovered IDs to manifest member names.
type EntityDescriptor struct {
	// Columns to select when resolving. The first column is the canonical
	// display name; an optional second column is a namespace prefix.
	Columns []string

	// SourceTable is the table the resolution query runs against.
	SourceTable string

	// ManifestCategory is the name the resolved members are reported
	// under. Distinct from SourceTable for some types (e.g. TabSet rows
	// resolve through AppMenuItem into CustomApplication).
	ManifestCategory string

	// IDField filters the resolution query by the discovered IDs.
	IDField string
}

// Manifest categories that do not come from setup-entity resolution.
const (
	CategoryProfile      = "Profile"
	CategoryCustomObject = "CustomObject"
	CategoryCustomTab    = "CustomTab"
)

// setupEntityOrder fixes the iteration order over descriptors so that
// categories shared by two entity types (CustomApplication) assemble
// deterministically.
var setupEntityOrder = []string{
	"ApexClass",
	"ApexPage",
	"CustomPermission",
	"TabSet",
	"ConnectedApplication",
	"ExternalDataSource",
	"FlowDefinition",
}

// DefaultDescriptors returns the built-in setup-entity descriptors, keyed
// by the SetupEntityType value the discovery query reports. The returned
// map is a fresh copy; callers own it.
func DefaultDescriptors() map[string]EntityDescriptor {
	return map[string]EntityDescriptor{
		"ApexClass": {
			Columns:          []string{"Name", "NamespacePrefix"},
			SourceTable:      "ApexClass",
			ManifestCategory: "ApexClass",
			IDField:          "Id",
		},
		"ApexPage": {
			Columns:          []string{"Name", "NamespacePrefix"},
			SourceTable:      "ApexPage",
			ManifestCategory: "ApexPage",
			IDField:          "Id",
		},
		"CustomPermission": {
			Columns:          []string{"DeveloperName", "NamespacePrefix"},
			SourceTable:      "CustomPermission",
			ManifestCategory: "CustomPermission",
			IDField:          "Id",
		},
		"TabSet": {
			Columns:          []string{"Name", "NamespacePrefix"},
			SourceTable:      "AppMenuItem",
			ManifestCategory: "CustomApplication",
			IDField:          "ApplicationId",
		},
		"ConnectedApplication": {
			Columns:          []string{"Name", "NamespacePrefix"},
			SourceTable:      "AppMenuItem",
			ManifestCategory: "CustomApplication",
			IDField:          "ApplicationId",
		},
		"ExternalDataSource": {
			Columns:          []string{"DeveloperName", "NamespacePrefix"},
			SourceTable:      "ExternalDataSource",
			ManifestCategory: "ExternalDataSource",
			IDField:          "Id",
		},
		"FlowDefinition": {
			Columns:          []string{"ApiName"},
			SourceTable:      "FlowDefinitionView",
			ManifestCategory: "Flow",
			IDField:          "Id",
		},
	}
}
