// Package resolve matches extracted organization mentions to canonical
// registry companies.
package resolve

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sells-group/news-intel/internal/model"
)

const (
	exactScore     = 100
	substringScore = 50
	acceptScore    = 50

	// minScanLen keeps two-letter tickers out of free-text scanning.
	minScanLen = 3
)

type entry struct {
	company model.Company
	aliases []string
}

// Resolver holds the alias index for one batch. Build it once per run;
// the registry is read-only while it is in use.
type Resolver struct {
	entries []entry
}

// New precomputes alias sets for companies. Registry order is kept and
// breaks score ties.
func New(companies []model.Company) *Resolver {
	entries := make([]entry, 0, len(companies))
	for _, c := range companies {
		aliases := c.Aliases()
		if len(aliases) == 0 {
			continue
		}
		entries = append(entries, entry{company: c, aliases: aliases})
	}
	return &Resolver{entries: entries}
}

// Len returns the number of indexed companies.
func (r *Resolver) Len() int { return len(r.entries) }

// Score sums the alias scores of company i against a normalized mention.
func (r *Resolver) score(i int, mention string) int {
	total := 0
	for _, alias := range r.entries[i].aliases {
		switch {
		case alias == mention:
			total += exactScore
		case strings.Contains(alias, mention) || strings.Contains(mention, alias):
			total += substringScore
		}
	}
	return total
}

// Match is the best company for one mention.
type Match struct {
	Company    model.Company
	Score      int
	Confidence float64
}

// Resolve returns the best-scoring company for mention, or false when no
// company reaches the acceptance score.
func (r *Resolver) Resolve(mention model.CompanyMention) (Match, bool) {
	norm := strings.ToLower(strings.TrimSpace(mention.Name))
	if norm == "" {
		return Match{}, false
	}

	best, bestScore := -1, 0
	for i := range r.entries {
		if s := r.score(i, norm); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 || bestScore < acceptScore {
		return Match{}, false
	}

	conf := float64(bestScore) / 100
	if conf > 1 {
		conf = 1
	}
	return Match{
		Company:    r.entries[best].company,
		Score:      bestScore,
		Confidence: conf * mention.Confidence,
	}, true
}

// ResolveAll resolves mentions in extraction order. The first mention that
// resolves is primary; later mentions of an already matched company are
// dropped.
func (r *Resolver) ResolveAll(mentions []model.CompanyMention) []model.CompanyMatch {
	var out []model.CompanyMatch
	seen := make(map[string]bool)
	for _, m := range mentions {
		match, ok := r.Resolve(m)
		if !ok {
			zap.L().Debug("resolve: mention unmatched", zap.String("mention", m.Name))
			continue
		}
		if seen[match.Company.ID] {
			continue
		}
		seen[match.Company.ID] = true
		out = append(out, model.CompanyMatch{
			CompanyID:  match.Company.ID,
			Mention:    m.Name,
			Confidence: match.Confidence,
			IsPrimary:  len(out) == 0,
		})
	}
	return out
}

// Scan finds registry companies named in free text, for use when no
// extraction step ran. Mentions are ordered by first appearance and carry
// full confidence.
func (r *Resolver) Scan(text string) []model.CompanyMention {
	padded := " " + strings.Join(strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '&' && r != '.' && r != '-'
	}), " ") + " "

	type hit struct {
		pos  int
		name string
	}
	var hits []hit
	for _, e := range r.entries {
		pos := -1
		for _, alias := range e.aliases {
			if utf8.RuneCountInString(alias) < minScanLen {
				continue
			}
			if i := strings.Index(padded, " "+alias+" "); i >= 0 && (pos < 0 || i < pos) {
				pos = i
			}
		}
		if pos >= 0 {
			hits = append(hits, hit{pos: pos, name: e.company.Name})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	out := make([]model.CompanyMention, 0, len(hits))
	for _, h := range hits {
		out = append(out, model.CompanyMention{Name: h.name, Confidence: 1})
	}
	return out
}
