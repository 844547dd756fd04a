package domain

import "strings"

// Plan is a priced tier of a product.
type Plan struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MonthlyPrice int64  `json:"monthlyPrice"` // whole currency units
	Trial        bool   `json:"trial"`        // new subscriptions start in trialing
	Popular      bool   `json:"popular"`
}

// Price returns the amount charged for one period of the given cycle.
// Annual billing is twelve months at a 20% discount.
func (p Plan) Price(cycle BillingCycle) int64 {
	if cycle == CycleAnnual {
		return p.MonthlyPrice * 12 * 8 / 10
	}
	return p.MonthlyPrice
}

// Product is something a tenant can subscribe to.
type Product struct {
	Slug           string `json:"slug"`
	Name           string `json:"name"`
	RequiresAPIKey bool   `json:"requiresApiKey"`
	TrialEntitled  bool   `json:"trialEntitled"`
	Plans          []Plan `json:"plans"`
}

// Plan looks up a plan of this product by id.
func (p Product) Plan(id string) (Plan, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, pl := range p.Plans {
		if pl.ID == id {
			return pl, true
		}
	}
	return Plan{}, false
}

// Rank orders plans of a product from cheapest to most expensive.
func (p Product) Rank(planID string) int {
	for i, pl := range p.Plans {
		if pl.ID == planID {
			return i
		}
	}
	return -1
}

var standardPlans = []Plan{
	{ID: "plus", Name: "Plus", MonthlyPrice: 1500},
	{ID: "pro", Name: "Pro", MonthlyPrice: 2500, Popular: true},
	{ID: "enterprise", Name: "Enterprise", MonthlyPrice: 9900, Trial: true},
}

// AvailableProducts returns the product catalog.
func AvailableProducts() []Product {
	return []Product{
		{
			Slug:           "ugraph",
			Name:           "UGraph",
			RequiresAPIKey: true,
			TrialEntitled:  true,
			Plans:          standardPlans,
		},
		{
			Slug:           "orrery",
			Name:           "Orrery",
			RequiresAPIKey: true,
			TrialEntitled:  false,
			Plans:          standardPlans,
		},
		{
			Slug:           "ai-workflow",
			Name:           "AI Workflow",
			RequiresAPIKey: true,
			TrialEntitled:  true,
			Plans: []Plan{
				{ID: "pro", Name: "Pro", MonthlyPrice: 2500, Popular: true},
				{ID: "enterprise", Name: "Enterprise", MonthlyPrice: 9900, Trial: true},
			},
		},
	}
}

// GetProduct returns the catalog entry for slug.
func GetProduct(slug string) (Product, bool) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	for _, p := range AvailableProducts() {
		if p.Slug == slug {
			return p, true
		}
	}
	return Product{}, false
}
