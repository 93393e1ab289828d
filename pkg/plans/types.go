package plans

import (
	"strings"
	"time"
)

// Tier is a subscription plan name.
type Tier string

const (
	TierBasic   Tier = "Basic"
	TierBronze  Tier = "Bronze"
	TierPremium Tier = "Premium"
	TierGold    Tier = "Gold"
)

// Unlimited is the quota (and remaining count) of an unbounded tier.
const Unlimited = -1

// DefaultCurrency is used for plans that do not name one.
const DefaultCurrency = "RON"

var tierOrder = []Tier{TierBasic, TierBronze, TierPremium, TierGold}

// projectQuota is fixed per tier and not configurable.
var projectQuota = map[Tier]int{
	TierBasic:   0,
	TierBronze:  2,
	TierPremium: 4,
	TierGold:    Unlimited,
}

// Tiers returns every tier from cheapest to most expensive.
func Tiers() []Tier {
	out := make([]Tier, len(tierOrder))
	copy(out, tierOrder)
	return out
}

// ParseTier matches a plan name case-insensitively.
func ParseTier(s string) (Tier, bool) {
	s = strings.TrimSpace(s)
	for _, t := range tierOrder {
		if strings.EqualFold(string(t), s) {
			return t, true
		}
	}
	return "", false
}

// Valid reports whether t is one of the four tiers.
func (t Tier) Valid() bool {
	_, ok := projectQuota[t]
	return ok
}

// Rank orders tiers, Basic being 0. Unknown tiers rank -1.
func (t Tier) Rank() int {
	for i, candidate := range tierOrder {
		if candidate == t {
			return i
		}
	}
	return -1
}

// Purchasable reports whether the tier can be bought.
func (t Tier) Purchasable() bool {
	return t.Valid() && t != TierBasic
}

func (t Tier) String() string {
	return string(t)
}

// Plan is one row of the catalog.
type Plan struct {
	ID           int64     `json:"id,omitempty"`
	Name         Tier      `json:"name"`
	Price        int64     `json:"price"` // minor units
	Currency     string    `json:"currency"`
	Features     []string  `json:"features"`
	ProjectQuota int       `json:"project_quota"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// Unlimited reports whether the plan has no project quota.
func (p Plan) Unlimited() bool {
	return p.ProjectQuota == Unlimited
}

func (p Plan) clone() Plan {
	c := p
	c.Features = append([]string(nil), p.Features...)
	return c
}
