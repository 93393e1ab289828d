// Package plans holds the plan catalog: the four subscription tiers, their
// price, ordered feature list and project quota.
//
// # Tiers
//
//	Basic    free, no projects
//	Bronze   2 active projects
//	Premium  4 active projects
//	Gold     unlimited projects
//
// The Catalog is immutable once built. DefaultCatalog returns the built-in
// table; LoadCatalogFile overrides prices and features from YAML but never
// quotas. PostgresStore seeds the catalog into the plans table so orders
// can reference plans by id.
//
//	catalog := plans.DefaultCatalog()
//	limit := catalog.QuotaFor(plans.TierPremium) // 4
package plans
