package plans

import (
	"fmt"
	"strings"
)

// Catalog is the immutable set of plans, one per tier.
type Catalog struct {
	plans map[Tier]Plan
}

// DefaultCatalog returns the built-in plan table.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog([]Plan{
		{
			Name:     TierBasic,
			Price:    0,
			Currency: DefaultCurrency,
			Features: []string{
				"Profil de student",
				"Acces la forum",
				"Mesaje directe",
			},
		},
		{
			Name:     TierBronze,
			Price:    1999,
			Currency: DefaultCurrency,
			Features: []string{
				"Tot din Basic",
				"2 proiecte active",
				"Insigna Bronze pe profil",
			},
		},
		{
			Name:     TierPremium,
			Price:    3999,
			Currency: DefaultCurrency,
			Features: []string{
				"Tot din Bronze",
				"4 proiecte active",
				"Proiecte evidentiate in cautare",
				"Statistici de vizualizare",
			},
		},
		{
			Name:     TierGold,
			Price:    7999,
			Currency: DefaultCurrency,
			Features: []string{
				"Tot din Premium",
				"Proiecte nelimitate",
				"Suport prioritar",
				"Insigna Gold pe profil",
			},
		},
	})
	if err != nil {
		panic(fmt.Sprintf("plans: invalid default catalog: %v", err))
	}
	return c
}

// NewCatalog builds a catalog from exactly one plan per tier. Quotas are
// always taken from the fixed tier table; any ProjectQuota on the input is
// ignored.
func NewCatalog(in []Plan) (*Catalog, error) {
	c := &Catalog{plans: make(map[Tier]Plan, len(tierOrder))}
	for _, p := range in {
		if !p.Name.Valid() {
			return nil, fmt.Errorf("unknown plan %q", p.Name)
		}
		if _, dup := c.plans[p.Name]; dup {
			return nil, fmt.Errorf("duplicate plan %q", p.Name)
		}
		if p.Price < 0 {
			return nil, fmt.Errorf("plan %q: negative price", p.Name)
		}
		if p.Name == TierBasic && p.Price != 0 {
			return nil, fmt.Errorf("plan %q must be free", p.Name)
		}
		if p.Name != TierBasic && p.Price == 0 {
			return nil, fmt.Errorf("plan %q must have a price", p.Name)
		}

		p = p.clone()
		p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
		if p.Currency == "" {
			p.Currency = DefaultCurrency
		}
		p.ProjectQuota = projectQuota[p.Name]
		c.plans[p.Name] = p
	}
	for _, t := range tierOrder {
		if _, ok := c.plans[t]; !ok {
			return nil, fmt.Errorf("missing plan %q", t)
		}
	}
	return c, nil
}

// Get returns a copy of the plan for tier t.
func (c *Catalog) Get(t Tier) (Plan, bool) {
	p, ok := c.plans[t]
	if !ok {
		return Plan{}, false
	}
	return p.clone(), true
}

// Plans returns every plan ordered by tier.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, 0, len(tierOrder))
	for _, t := range tierOrder {
		out = append(out, c.plans[t].clone())
	}
	return out
}

// QuotaFor returns the active project quota of tier t. Unknown tiers get
// the Basic quota.
func (c *Catalog) QuotaFor(t Tier) int {
	if q, ok := projectQuota[t]; ok {
		return q
	}
	return projectQuota[TierBasic]
}

// FromStored builds a catalog from stored plan rows, so prices, currency
// and features match what the plans table serves.
func FromStored(stored []Plan) (*Catalog, error) {
	for _, p := range stored {
		if p.ID == 0 {
			return nil, fmt.Errorf("plan %q has no id", p.Name)
		}
	}
	return NewCatalog(stored)
}

// WithIDs returns a new catalog carrying the database ids from seeded.
func (c *Catalog) WithIDs(seeded []Plan) *Catalog {
	next := &Catalog{plans: make(map[Tier]Plan, len(c.plans))}
	for t, p := range c.plans {
		next.plans[t] = p.clone()
	}
	for _, s := range seeded {
		if p, ok := next.plans[s.Name]; ok {
			p.ID = s.ID
			p.CreatedAt = s.CreatedAt
			p.UpdatedAt = s.UpdatedAt
			next.plans[s.Name] = p
		}
	}
	return next
}
