package planning

import (
	"testing"

	"github.com/fantastic-router/fantastic-router/site"
)

// propertyConfig is the fixture used across planning tests: a property
// management site with landlords, tenants and properties.
const propertyConfig = `
domain: property_management
base_url: https://app.example.com
entities:
  landlord:
    table: landlords
    search_fields: [first_name, last_name, full_name]
    display_field: full_name
    aliases: [owner, property owner]
  tenant:
    table: tenants
    search_fields: [first_name, last_name, full_name]
    display_field: full_name
  property:
    table: properties
    search_fields: [address, name]
    display_field: address
route_patterns:
  - pattern: /landlords/{landlord_id}/financials
    name: landlord_financials
    description: Financial overview for one landlord
    action: NAVIGATE
    intent_patterns:
      - "show me the incomes of {landlord}"
      - "view {landlord} financials"
    parameters:
      landlord_id:
        type: uuid
        entity: landlord
  - pattern: /landlords/{landlord_id}
    name: landlord_detail
    action: NAVIGATE
    parameters:
      landlord_id:
        type: uuid
        entity: landlord
  - pattern: /tenants/{tenant_id}
    name: tenant_detail
    action: NAVIGATE
    parameters:
      tenant_id:
        type: uuid
        entity: tenant
  - pattern: /properties/{property_id}/maintenance/{priority}
    name: property_maintenance
    action: CREATE
    parameters:
      property_id:
        type: uuid
        entity: property
      priority:
        type: enum
        enum_values: [low, normal, urgent]
        default: normal
  - pattern: /admin/reports
    name: admin_reports
    action: NAVIGATE
    required_role: admin
database_schema:
  tables:
    landlords:
      description: Property owners
      columns:
        - name: id
          type: uuid
        - name: full_name
          type: text
`

func testConfig(t *testing.T) *site.SiteConfiguration {
	t.Helper()
	cfg, err := site.Load([]byte(propertyConfig))
	if err != nil {
		t.Fatalf("load fixture config: %v", err)
	}
	return cfg
}

func testStructural(t *testing.T, cfg *site.SiteConfiguration) *Structural {
	t.Helper()
	s, err := BuildStructural(cfg)
	if err != nil {
		t.Fatalf("build structural: %v", err)
	}
	return s
}
