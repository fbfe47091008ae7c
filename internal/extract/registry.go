package extract

import (
	"fmt"
	"strings"
)

// Resource describes one extractable API resource: where it lives, where its
// raw records land, how its identifier is resolved, and what must run first.
type Resource struct {
	Name string

	// Endpoint is the API path. It may contain a {policy_id} or
	// {location_id} placeholder filled in at request time.
	Endpoint string

	// Table is the staging table raw records land in.
	Table string

	// IDFields are checked in order; the first present, non-empty one
	// becomes the record's source identifier.
	IDFields []string

	// RequiredFields must be present and non-empty or the record is
	// dropped with a validation count.
	RequiredFields []string

	// Composite resources are fetched per parent policy and keyed
	// "{policy_id}_{child_id}".
	Composite bool

	// LocationScoped resources are fetched per agency location.
	LocationScoped bool

	// DependsOn lists resources that must finish extracting first.
	DependsOn []string
}

// ExpandEndpoint substitutes a parent identifier into the endpoint path.
func (r Resource) ExpandEndpoint(parentID string) string {
	path := strings.ReplaceAll(r.Endpoint, "{policy_id}", parentID)
	return strings.ReplaceAll(path, "{location_id}", parentID)
}

var registry = []Resource{
	{
		Name:     "contacts",
		Endpoint: "Contacts/LastModifiedCreated",
		Table:    "raw_contacts",
		IDFields: []string{"EntityID", "ContactId"},
	},
	{
		Name:           "policies",
		Endpoint:       "Policies/LastModifiedCreated",
		Table:          "raw_policies",
		IDFields:       []string{"EntityID", "PolicyId"},
		RequiredFields: []string{"PolicyNumber", "Status"},
		DependsOn:      []string{"contacts"},
	},
	{
		Name:      "quotes",
		Endpoint:  "Policies/{policy_id}/Quotes",
		Table:     "raw_quotes",
		IDFields:  []string{"QuoteId", "QuoteID", "EntityID"},
		Composite: true,
		DependsOn: []string{"contacts"},
	},
	{
		Name:      "claims",
		Endpoint:  "Claims",
		Table:     "raw_claims",
		IDFields:  []string{"EntityID"},
		DependsOn: []string{"policies"},
	},
	{
		Name:      "documents",
		Endpoint:  "Documents",
		Table:     "raw_documents",
		IDFields:  []string{"EntityID"},
		DependsOn: []string{"contacts"},
	},
	{
		Name:      "applications",
		Endpoint:  "Applications",
		Table:     "raw_applications",
		IDFields:  []string{"EntityID"},
		DependsOn: []string{"contacts"},
	},
	{
		Name:      "renewals",
		Endpoint:  "Renewals",
		Table:     "raw_renewals",
		IDFields:  []string{"EntityID"},
		DependsOn: []string{"policies"},
	},
	{
		Name:      "terminations",
		Endpoint:  "Terminations",
		Table:     "raw_terminations",
		IDFields:  []string{"EntityID"},
		DependsOn: []string{"policies"},
	},
	{
		Name:      "billing_records",
		Endpoint:  "BillingRecords",
		Table:     "raw_billing_records",
		IDFields:  []string{"EntityID"},
		DependsOn: []string{"policies"},
	},
	{
		Name:     "commission_rules",
		Endpoint: "CommissionRules",
		Table:    "raw_commission_rules",
		IDFields: []string{"EntityID"},
	},
	{
		Name:      "commissions",
		Endpoint:  "Commissions",
		Table:     "raw_commissions",
		IDFields:  []string{"EntityID"},
		DependsOn: []string{"policies", "commission_rules"},
	},
	{
		Name:           "fees",
		Endpoint:       "Locations/{location_id}/Fees",
		Table:          "raw_fees",
		IDFields:       []string{"EntityID"},
		LocationScoped: true,
		DependsOn:      []string{"policies", "locations"},
	},
	{
		Name:      "acord_forms",
		Endpoint:  "AcordForms",
		Table:     "raw_acord_forms",
		IDFields:  []string{"EntityID"},
		DependsOn: []string{"policies"},
	},
	{
		Name:      "tasks",
		Endpoint:  "Tasks",
		Table:     "raw_tasks",
		IDFields:  []string{"EntityID"},
		DependsOn: []string{"contacts", "employees"},
	},
	{
		Name:      "text_messages",
		Endpoint:  "TextMessages",
		Table:     "raw_text_messages",
		IDFields:  []string{"EntityID"},
		DependsOn: []string{"contacts"},
	},
	{
		Name:     "carriers",
		Endpoint: "Carriers",
		Table:    "raw_carriers",
		IDFields: []string{"EntityID"},
	},
	{
		Name:      "commercial_auto_drivers",
		Endpoint:  "CommercialAuto/Drivers",
		Table:     "raw_commercial_auto_drivers",
		IDFields:  []string{"EntityID"},
		DependsOn: []string{"policies"},
	},
	{
		Name:      "commercial_auto_vehicles",
		Endpoint:  "CommercialAuto/Vehicles",
		Table:     "raw_commercial_auto_vehicles",
		IDFields:  []string{"EntityID"},
		DependsOn: []string{"policies"},
	},
	{
		Name:     "employees",
		Endpoint: "Employees",
		Table:    "raw_employees",
		IDFields: []string{"EntityID"},
	},
	{
		Name:     "locations",
		Endpoint: "Locations",
		Table:    "raw_locations",
		IDFields: []string{"EntityID"},
	},
	{
		Name:      "notes",
		Endpoint:  "Notes",
		Table:     "raw_notes",
		IDFields:  []string{"EntityID"},
		DependsOn: []string{"contacts"},
	},
	{
		Name:           "signatures",
		Endpoint:       "Locations/{location_id}/Signatures",
		Table:          "raw_signatures",
		IDFields:       []string{"EntityID"},
		LocationScoped: true,
		DependsOn:      []string{"policies", "locations"},
	},
	{
		Name:      "social_media",
		Endpoint:  "SocialMedia",
		Table:     "raw_social_media",
		IDFields:  []string{"EntityID"},
		DependsOn: []string{"contacts"},
	},
	{
		Name:      "websites",
		Endpoint:  "Websites",
		Table:     "raw_websites",
		IDFields:  []string{"EntityID"},
		DependsOn: []string{"contacts"},
	},
	{
		Name:      "underwriting_questions",
		Endpoint:  "UnderwritingQuestions",
		Table:     "raw_underwriting_questions",
		IDFields:  []string{"EntityID"},
		DependsOn: []string{"policies"},
	},
}

// Lookup returns the resource definition for name. Unknown names fail before
// any network or database work happens.
func Lookup(name string) (Resource, error) {
	for _, r := range registry {
		if r.Name == name {
			return r, nil
		}
	}
	return Resource{}, fmt.Errorf("unsupported resource type: %q", name)
}

// All returns every registered resource.
func All() []Resource {
	out := make([]Resource, len(registry))
	copy(out, registry)
	return out
}

// DefaultOrder returns every resource sorted so that each appears after all
// of its dependencies, with registry order breaking ties.
func DefaultOrder() []Resource {
	placed := make(map[string]bool, len(registry))
	out := make([]Resource, 0, len(registry))

	for len(out) < len(registry) {
		progressed := false
		for _, r := range registry {
			if placed[r.Name] {
				continue
			}
			ready := true
			for _, dep := range r.DependsOn {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				placed[r.Name] = true
				out = append(out, r)
				progressed = true
			}
		}
		if !progressed {
			// Dependency cycle in the registry; append the rest in
			// declaration order rather than loop forever.
			for _, r := range registry {
				if !placed[r.Name] {
					placed[r.Name] = true
					out = append(out, r)
				}
			}
		}
	}
	return out
}
