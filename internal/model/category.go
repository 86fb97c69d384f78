package model

// Category is a taxonomy tag assigned during triage.
type Category string

const (
	CategoryExpansion         Category = "expansion"
	CategoryConstruction      Category = "construction"
	CategoryAutomation        Category = "automation"
	CategoryManufacturing     Category = "manufacturing"
	CategoryGovernment        Category = "government_contract"
	CategoryMergerAcquisition Category = "merger_acquisition"
	CategoryLeadership        Category = "leadership"
	CategoryEarnings          Category = "earnings"
	CategoryPolicy            Category = "policy"
	CategorySupplyChain       Category = "supply_chain"
	CategoryCompetitor        Category = "competitor"
	CategoryTechnology        Category = "technology"
	CategoryWorkforce         Category = "workforce"
)

// AllCategories returns the full taxonomy in a stable order.
func AllCategories() []Category {
	return []Category{
		CategoryExpansion,
		CategoryConstruction,
		CategoryAutomation,
		CategoryManufacturing,
		CategoryGovernment,
		CategoryMergerAcquisition,
		CategoryLeadership,
		CategoryEarnings,
		CategoryPolicy,
		CategorySupplyChain,
		CategoryCompetitor,
		CategoryTechnology,
		CategoryWorkforce,
	}
}

// ParseCategory validates a category tag. Unknown tags return false.
func ParseCategory(s string) (Category, bool) {
	c := Category(lowerTrim(s))
	for _, known := range AllCategories() {
		if c == known {
			return c, true
		}
	}
	return "", false
}
