// Package plans holds the immutable catalog of subscription plans: resource ceilings,
// gated features and prices.
package plans

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
)

// Type identifies a plan.
type Type string

const (
	Basic      Type = "basic"
	Premium    Type = "premium"
	Enterprise Type = "enterprise"
)

// Valid reports whether t is one of the known plan types.
func (t Type) Valid() bool {
	switch t {
	case Basic, Premium, Enterprise:
		return true
	}
	return false
}

// Quota-bearing resource kinds.
const (
	ResourceEmployees = "employees"
	ResourceVehicles  = "vehicles"
	ResourceUsers     = "users"
)

// Gated features. Any other feature name is available on every plan.
const (
	FeatureAdvancedReports  = "advanced_reports"
	FeatureSalaryManagement = "salary_management"
	FeatureAPIIntegration   = "api_integration"
	FeatureMultiCompany     = "multi_company"
	FeatureCustomBranding   = "custom_branding"
)

var gatedFeatures = []string{
	FeatureAdvancedReports,
	FeatureSalaryManagement,
	FeatureAPIIntegration,
	FeatureMultiCompany,
	FeatureCustomBranding,
}

// ErrUnknownPlan is returned for a plan type missing from the catalog.
var ErrUnknownPlan = errors.New("unknown plan")

// Plan is one catalog entry.
type Plan struct {
	Type         Type            `json:"type"`
	Name         string          `json:"name"`
	MaxEmployees int             `json:"maxEmployees"`
	MaxVehicles  int             `json:"maxVehicles"`
	MaxUsers     int             `json:"maxUsers"`
	Features     []string        `json:"features"`
	PriceMonthly decimal.Decimal `json:"priceMonthly"`
	PriceYearly  decimal.Decimal `json:"priceYearly"`
}

// Limit returns the ceiling for a resource kind.
func (p Plan) Limit(kind string) (int, bool) {
	switch kind {
	case ResourceEmployees:
		return p.MaxEmployees, true
	case ResourceVehicles:
		return p.MaxVehicles, true
	case ResourceUsers:
		return p.MaxUsers, true
	}
	return 0, false
}

// HasFeature reports whether the plan unlocks feature.
func (p Plan) HasFeature(feature string) bool {
	if !slices.Contains(gatedFeatures, feature) {
		return true
	}
	return slices.Contains(p.Features, feature)
}

// Catalog is an immutable, ordered set of plans.
type Catalog struct {
	order []Type
	plans map[Type]Plan
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := newCatalog([]Plan{
		{
			Type: Basic, Name: "Basic",
			MaxEmployees: 50, MaxVehicles: 20, MaxUsers: 5,
			PriceMonthly: decimal.NewFromInt(199), PriceYearly: decimal.NewFromInt(1990),
		},
		{
			Type: Premium, Name: "Premium",
			MaxEmployees: 200, MaxVehicles: 100, MaxUsers: 20,
			Features:     []string{FeatureAdvancedReports, FeatureSalaryManagement, FeatureAPIIntegration},
			PriceMonthly: decimal.NewFromInt(499), PriceYearly: decimal.NewFromInt(4990),
		},
		{
			Type: Enterprise, Name: "Enterprise",
			MaxEmployees: 1000, MaxVehicles: 500, MaxUsers: 100,
			Features:     slices.Clone(gatedFeatures),
			PriceMonthly: decimal.NewFromInt(999), PriceYearly: decimal.NewFromInt(9990),
		},
	})
	if err != nil {
		panic(err)
	}
	return c
}

func newCatalog(plans []Plan) (*Catalog, error) {
	c := &Catalog{plans: make(map[Type]Plan, len(plans))}
	for _, p := range plans {
		if !p.Type.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPlan, p.Type)
		}
		if _, dup := c.plans[p.Type]; dup {
			return nil, fmt.Errorf("duplicated plan %q", p.Type)
		}
		c.order = append(c.order, p.Type)
		c.plans[p.Type] = p
	}
	return c, nil
}

//go:embed catalog.schema.json
var catalogSchema []byte

const catalogSchemaURL = "nuzum://plans/catalog.schema.json"

var compiledSchema = func() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(catalogSchemaURL, bytes.NewReader(catalogSchema)); err != nil {
		panic(fmt.Sprintf("register plan catalog schema: %v", err))
	}
	return compiler.MustCompile(catalogSchemaURL)
}()

// Load parses a JSON catalog after validating it against the embedded schema.
func Load(data []byte) (*Catalog, error) {
	var document any
	if err := json.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("decode plan catalog: %w", err)
	}
	if err := compiledSchema.Validate(document); err != nil {
		return nil, fmt.Errorf("plan catalog validation: %w", err)
	}

	var payload struct {
		Plans []Plan `json:"plans"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode plan catalog: %w", err)
	}
	return newCatalog(payload.Plans)
}

// LoadFile reads path and calls Load. An empty path yields the default catalog.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan catalog: %w", err)
	}
	return Load(data)
}

// Get returns the plan of type t.
func (c *Catalog) Get(t Type) (Plan, bool) {
	p, ok := c.plans[t]
	return p, ok
}

// All returns the plans in catalog order.
func (c *Catalog) All() []Plan {
	out := make([]Plan, 0, len(c.order))
	for _, t := range c.order {
		out = append(out, c.plans[t])
	}
	return out
}

// Quote prices a subscription of months: every full 12 months at the yearly price, the
// remainder at the monthly price.
func (c *Catalog) Quote(t Type, months int) (decimal.Decimal, error) {
	p, ok := c.Get(t)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownPlan, t)
	}
	if months < 1 {
		return decimal.Zero, fmt.Errorf("duration must be at least one month, got %d", months)
	}
	years := decimal.NewFromInt(int64(months / 12))
	rest := decimal.NewFromInt(int64(months % 12))
	return p.PriceYearly.Mul(years).Add(p.PriceMonthly.Mul(rest)), nil
}
