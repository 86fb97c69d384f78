package store

import (
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"

	"github.com/sells-group/news-intel/internal/model"
)

const defaultListLimit = 200

var articleColumns = []string{
	"id", "url", "title", "description", "source", "published_at",
	"is_relevant", "relevance_score", "sentiment", "categories", "is_breaking",
	"summary", "triage", "deep_analysis", "stored_at",
}

var alertColumns = []string{
	"id", "user_id", "article_id", "type", "priority", "title", "message",
	"created_at", "read_at", "dismissed_at",
}

var leadColumns = []string{
	"id", "company_name", "source_article_id", "sector", "rationale",
	"suggested_approach", "status", "created_at",
}

func limitOrDefault(n int) uint64 {
	if n <= 0 {
		return defaultListLimit
	}
	return uint64(n)
}

func articleQuery(f ArticleFilter) sq.SelectBuilder {
	q := sq.Select(articleColumns...).From("articles")
	if !f.Since.IsZero() {
		q = q.Where(sq.GtOrEq{"stored_at": f.Since.UTC()})
	}
	if f.RelevantOnly {
		q = q.Where(sq.Eq{"is_relevant": true})
	}
	if f.MinScore > 0 {
		q = q.Where(sq.GtOrEq{"relevance_score": f.MinScore})
	}
	if f.CompanyID != "" {
		q = q.Where(sq.Expr("id IN (SELECT article_id FROM article_companies WHERE company_id = ?)", f.CompanyID))
	}
	if f.Category != "" {
		// categories is a JSON array of quoted tags.
		q = q.Where(sq.Like{"categories": `%"` + string(f.Category) + `"%`})
	}
	return q.OrderBy("published_at DESC", "stored_at DESC").Limit(limitOrDefault(f.Limit))
}

func matchQuery(articleIDs []string) sq.SelectBuilder {
	return sq.Select("article_id", "company_id", "mention", "confidence", "is_primary").
		From("article_companies").
		Where(sq.Eq{"article_id": articleIDs}).
		OrderBy("article_id", "position")
}

func alertQuery(f AlertFilter) sq.SelectBuilder {
	q := sq.Select(alertColumns...).From("alerts")
	if f.UserID != "" {
		q = q.Where(sq.Eq{"user_id": f.UserID})
	}
	if !f.Since.IsZero() {
		q = q.Where(sq.GtOrEq{"created_at": f.Since.UTC()})
	}
	if f.UnreadOnly {
		q = q.Where(sq.Eq{"read_at": nil})
	}
	if !f.IncludeDismissed {
		q = q.Where(sq.Eq{"dismissed_at": nil})
	}
	return q.OrderBy("created_at DESC").Limit(limitOrDefault(f.Limit))
}

func leadQuery(f LeadFilter) sq.SelectBuilder {
	q := sq.Select(leadColumns...).From("leads")
	if f.Status != "" {
		q = q.Where(sq.Eq{"status": string(f.Status)})
	}
	return q.OrderBy("created_at DESC").Limit(limitOrDefault(f.Limit))
}

// articleJSON holds the encoded JSON columns of an article.
type articleJSON struct {
	categories []byte
	triage     []byte
	deep       []byte
}

func encodeArticle(a *model.Article) (articleJSON, error) {
	var (
		out articleJSON
		err error
	)
	cats := a.Categories
	if cats == nil {
		cats = []model.Category{}
	}
	if out.categories, err = json.Marshal(cats); err != nil {
		return out, eris.Wrap(err, "store: marshal categories")
	}
	if a.Triage != nil {
		if out.triage, err = json.Marshal(a.Triage); err != nil {
			return out, eris.Wrap(err, "store: marshal triage")
		}
	}
	if a.DeepAnalysis != nil {
		if out.deep, err = json.Marshal(a.DeepAnalysis); err != nil {
			return out, eris.Wrap(err, "store: marshal deep analysis")
		}
	}
	return out, nil
}

func (j articleJSON) decodeInto(a *model.Article) error {
	a.Categories = []model.Category{}
	if len(j.categories) > 0 {
		if err := json.Unmarshal(j.categories, &a.Categories); err != nil {
			return eris.Wrap(err, "store: unmarshal categories")
		}
	}
	if len(j.triage) > 0 {
		a.Triage = &model.TriageResult{}
		if err := json.Unmarshal(j.triage, a.Triage); err != nil {
			return eris.Wrap(err, "store: unmarshal triage")
		}
	}
	if len(j.deep) > 0 {
		a.DeepAnalysis = &model.DeepAnalysis{}
		if err := json.Unmarshal(j.deep, a.DeepAnalysis); err != nil {
			return eris.Wrap(err, "store: unmarshal deep analysis")
		}
	}
	return nil
}

// nullableJSON maps an empty encoding to SQL NULL.
func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// attachMatches distributes company matches onto their articles.
func attachMatches(articles []model.Article, byArticle map[string][]model.CompanyMatch) {
	for i := range articles {
		articles[i].CompanyMatches = byArticle[articles[i].ID]
	}
}

func articleIDs(articles []model.Article) []string {
	ids := make([]string, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
	}
	return ids
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
