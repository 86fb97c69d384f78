package model

// Company is a canonical registry entry. The pipeline reads companies but
// never creates them.
type Company struct {
	ID                string   `json:"id" yaml:"id"`
	Name              string   `json:"name" yaml:"name"`
	ShortName         string   `json:"short_name,omitempty" yaml:"short_name"`
	Ticker            string   `json:"ticker,omitempty" yaml:"ticker"`
	SearchIdentifiers []string `json:"search_identifiers,omitempty" yaml:"search_identifiers"`
	Sector            string   `json:"sector,omitempty" yaml:"sector"`
	IsCompetitor      bool     `json:"is_competitor,omitempty" yaml:"is_competitor"`
}

// Aliases returns every lowercased, non-empty name the company is known by.
func (c Company) Aliases() []string {
	raw := make([]string, 0, 3+len(c.SearchIdentifiers))
	raw = append(raw, c.Name, c.ShortName, c.Ticker)
	raw = append(raw, c.SearchIdentifiers...)

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, a := range raw {
		a = lowerTrim(a)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

// CompanyMatch links an article to a registry company.
type CompanyMatch struct {
	CompanyID  string  `json:"company_id"`
	Mention    string  `json:"mention"`
	Confidence float64 `json:"confidence"`
	IsPrimary  bool    `json:"is_primary"`
}

// CompanyMention is an organization name extracted from article text.
type CompanyMention struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}
