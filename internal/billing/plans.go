// Package billing provides the premium plans and the subscription lifecycle.
package billing

import (
	"sort"
	"time"

	"bugspotter/internal/types"
)

// Plan describes a premium plan as shown on the pricing page. Prices are
// held in cents; Price is the display value in dollars.
type Plan struct {
	Type               types.PlanType `json:"planType"`
	Name               string         `json:"name"`
	PriceCents         int64          `json:"-"`
	Price              float64        `json:"price"`
	OriginalPriceCents int64          `json:"-"`
	OriginalPrice      float64        `json:"originalPrice,omitempty"`
	Discount           string         `json:"discount,omitempty"`
	Currency           string         `json:"currency"`
	Features           []string       `json:"features"`

	months int
	years  int
}

// EndDate returns the end of a subscription to this plan started at start.
// Month arithmetic follows time.AddDate normalization, so Jan 31 + 1 month
// lands in early March.
func (p Plan) EndDate(start time.Time) time.Time {
	return start.AddDate(p.years, p.months, 0)
}

// PlanRegistry is the authoritative list of purchasable plans.
type PlanRegistry interface {
	Get(planType types.PlanType) (Plan, bool)
	List() []Plan
}

type staticPlanRegistry struct {
	plans map[types.PlanType]Plan
}

func newPlan(t types.PlanType, name string, cents, originalCents int64, discount string, months, years int, features ...string) Plan {
	p := Plan{
		Type:               t,
		Name:               name,
		PriceCents:         cents,
		Price:              float64(cents) / 100,
		OriginalPriceCents: originalCents,
		OriginalPrice:      float64(originalCents) / 100,
		Discount:           discount,
		Currency:           "usd",
		Features:           features,
		months:             months,
		years:              years,
	}
	return p
}

var planDefaults = []Plan{
	newPlan(types.PlanMonthly, "Monthly", 499, 0, "", 1, 0,
		"Unlimited identifications",
		"Premium bug information",
		"History sync across devices",
		"Location-based predictions",
		"Advanced AI insights",
	),
	newPlan(types.PlanYearly, "Yearly", 4999, 5988, "Save 16%", 0, 1,
		"All monthly features",
		"Priority support",
		"Offline mode",
		"Ad-free experience",
		"Early access to new features",
	),
}

// NewStaticPlanRegistry returns the built-in monthly and yearly plans.
func NewStaticPlanRegistry() PlanRegistry {
	m := make(map[types.PlanType]Plan, len(planDefaults))
	for _, p := range planDefaults {
		p.Features = append([]string(nil), p.Features...)
		m[p.Type] = p
	}
	return &staticPlanRegistry{plans: m}
}

func (r *staticPlanRegistry) Get(planType types.PlanType) (Plan, bool) {
	p, ok := r.plans[planType]
	if !ok {
		return Plan{}, false
	}
	p.Features = append([]string(nil), p.Features...)
	return p, true
}

// List returns the plans ordered by price.
func (r *staticPlanRegistry) List() []Plan {
	out := make([]Plan, 0, len(r.plans))
	for _, p := range r.plans {
		p.Features = append([]string(nil), p.Features...)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PriceCents < out[j].PriceCents })
	return out
}
