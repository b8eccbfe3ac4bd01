// Package plans holds the static table that maps plans to product families and
// sponsorship plans to the families allowed on each side.
package plans

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/aura-platform/sponsorships/internal/models"
)

// ProductType is the coarse family a plan belongs to.
type ProductType string

const (
	ProductFree       ProductType = "Free"
	ProductFamilies   ProductType = "Families"
	ProductTeams      ProductType = "Teams"
	ProductEnterprise ProductType = "Enterprise"
)

// SponsoredPlan describes which families may sponsor and be sponsored.
type SponsoredPlan struct {
	Type              models.PlanSponsorshipType `yaml:"type"`
	SponsoringProduct ProductType                `yaml:"sponsoring_product"`
	SponsoredProduct  ProductType                `yaml:"sponsored_product"`
	// SponsoredPlan is the plan a sponsored organization is billed on while active.
	SponsoredPlan models.PlanType `yaml:"sponsored_plan"`
}

type planEntry struct {
	Type    models.PlanType `yaml:"type"`
	Product ProductType     `yaml:"product"`
}

type document struct {
	Plans          []planEntry     `yaml:"plans"`
	SponsoredPlans []SponsoredPlan `yaml:"sponsored_plans"`
}

// Table is an immutable lookup over the plan configuration.
type Table struct {
	products  map[models.PlanType]ProductType
	sponsored map[models.PlanSponsorshipType]SponsoredPlan
}

//go:embed plans.yaml
var defaultDocument []byte

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the table built from the embedded plans.yaml. It panics if the
// embedded document is broken, which is caught by the package tests.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := Parse(defaultDocument)
		if err != nil {
			panic(fmt.Sprintf("plans: embedded table: %v", err))
		}
		defaultTable = t
	})
	return defaultTable
}

// Parse builds a table from a YAML document.
func Parse(raw []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode plans: %w", err)
	}
	t := &Table{
		products:  make(map[models.PlanType]ProductType, len(doc.Plans)),
		sponsored: make(map[models.PlanSponsorshipType]SponsoredPlan, len(doc.SponsoredPlans)),
	}
	for _, p := range doc.Plans {
		if p.Type == "" || p.Product == "" {
			return nil, fmt.Errorf("plan entry missing type or product")
		}
		if _, dup := t.products[p.Type]; dup {
			return nil, fmt.Errorf("duplicate plan %q", p.Type)
		}
		t.products[p.Type] = p.Product
	}
	for _, sp := range doc.SponsoredPlans {
		if _, ok := models.ParsePlanSponsorshipType(string(sp.Type)); !ok {
			return nil, fmt.Errorf("unknown sponsorship plan %q", sp.Type)
		}
		if sp.SponsoringProduct == "" || sp.SponsoredProduct == "" {
			return nil, fmt.Errorf("sponsorship plan %q missing product families", sp.Type)
		}
		if _, dup := t.sponsored[sp.Type]; dup {
			return nil, fmt.Errorf("duplicate sponsorship plan %q", sp.Type)
		}
		t.sponsored[sp.Type] = sp
	}
	return t, nil
}

// Product returns the family of an organization plan.
func (t *Table) Product(p models.PlanType) (ProductType, bool) {
	prod, ok := t.products[p]
	return prod, ok
}

// SponsoredPlan returns the eligibility rule of a sponsorship plan.
func (t *Table) SponsoredPlan(st models.PlanSponsorshipType) (SponsoredPlan, bool) {
	sp, ok := t.sponsored[st]
	return sp, ok
}

// CanSponsor reports whether an organization on plan p may offer st.
func (t *Table) CanSponsor(p models.PlanType, st models.PlanSponsorshipType) bool {
	sp, ok := t.SponsoredPlan(st)
	if !ok {
		return false
	}
	prod, ok := t.Product(p)
	return ok && prod == sp.SponsoringProduct
}

// CanBeSponsored reports whether an organization on plan p may redeem st.
func (t *Table) CanBeSponsored(p models.PlanType, st models.PlanSponsorshipType) bool {
	sp, ok := t.SponsoredPlan(st)
	if !ok {
		return false
	}
	prod, ok := t.Product(p)
	return ok && prod == sp.SponsoredProduct
}
