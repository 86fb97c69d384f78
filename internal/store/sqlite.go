package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/news-intel/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is the local
// and single-node driver.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if !strings.Contains(dsn, "?") {
		// Sortable text timestamps so range filters compare correctly.
		dsn += "?_time_format=sqlite"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection keeps the pragmas below in force for every statement.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS articles (
	id              TEXT PRIMARY KEY,
	url             TEXT NOT NULL UNIQUE,
	title           TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	source          TEXT NOT NULL DEFAULT '',
	published_at    DATETIME NOT NULL,
	is_relevant     BOOLEAN NOT NULL DEFAULT 0,
	relevance_score INTEGER NOT NULL DEFAULT 0,
	sentiment       TEXT NOT NULL DEFAULT 'neutral',
	categories      TEXT NOT NULL DEFAULT '[]',
	is_breaking     BOOLEAN NOT NULL DEFAULT 0,
	summary         TEXT NOT NULL DEFAULT '',
	triage          TEXT,
	deep_analysis   TEXT,
	stored_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_articles_stored_at ON articles(stored_at);

CREATE TABLE IF NOT EXISTS companies (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	short_name         TEXT NOT NULL DEFAULT '',
	ticker             TEXT NOT NULL DEFAULT '',
	search_identifiers TEXT NOT NULL DEFAULT '[]',
	sector             TEXT NOT NULL DEFAULT '',
	is_competitor      BOOLEAN NOT NULL DEFAULT 0,
	position           INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS article_companies (
	article_id TEXT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
	company_id TEXT NOT NULL,
	mention    TEXT NOT NULL,
	confidence REAL NOT NULL,
	is_primary BOOLEAN NOT NULL DEFAULT 0,
	position   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (article_id, company_id)
);

CREATE INDEX IF NOT EXISTS idx_article_companies_company ON article_companies(company_id);

CREATE TABLE IF NOT EXISTS users (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	email              TEXT NOT NULL DEFAULT '',
	role               TEXT NOT NULL DEFAULT 'member',
	email_enabled      BOOLEAN NOT NULL DEFAULT 0,
	in_app_enabled     BOOLEAN NOT NULL DEFAULT 1,
	priority_threshold TEXT NOT NULL DEFAULT 'MEDIUM',
	position           INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS subscriptions (
	user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	company_id TEXT NOT NULL,
	PRIMARY KEY (user_id, company_id)
);

CREATE TABLE IF NOT EXISTS alerts (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	article_id   TEXT NOT NULL,
	type         TEXT NOT NULL,
	priority     TEXT NOT NULL,
	title        TEXT NOT NULL,
	message      TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL,
	read_at      DATETIME,
	dismissed_at DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_alerts_open ON alerts(user_id, article_id, type) WHERE dismissed_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_alerts_user_created ON alerts(user_id, created_at);

CREATE TABLE IF NOT EXISTS leads (
	id                 TEXT PRIMARY KEY,
	company_name       TEXT NOT NULL UNIQUE,
	source_article_id  TEXT NOT NULL,
	sector             TEXT NOT NULL DEFAULT '',
	rationale          TEXT NOT NULL DEFAULT '',
	suggested_approach TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL DEFAULT 'new',
	created_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS insights (
	id          TEXT PRIMARY KEY,
	article_id  TEXT NOT NULL UNIQUE,
	type        TEXT NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteUpsertArticle = `INSERT INTO articles (id, url, title, description, source, published_at, is_relevant, relevance_score, sentiment, categories, is_breaking, summary, triage, deep_analysis, stored_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (url) DO UPDATE SET
	title = excluded.title,
	description = excluded.description,
	source = excluded.source,
	published_at = excluded.published_at,
	is_relevant = excluded.is_relevant,
	relevance_score = excluded.relevance_score,
	sentiment = excluded.sentiment,
	categories = excluded.categories,
	is_breaking = excluded.is_breaking,
	summary = excluded.summary,
	triage = COALESCE(excluded.triage, articles.triage),
	deep_analysis = COALESCE(excluded.deep_analysis, articles.deep_analysis)
RETURNING id`

func (s *SQLiteStore) UpsertArticle(ctx context.Context, a *model.Article) error {
	enc, err := encodeArticle(a)
	if err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.StoredAt.IsZero() {
		a.StoredAt = nowUTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert article")
	}
	defer tx.Rollback() //nolint:errcheck

	var id string
	err = tx.QueryRowContext(ctx, sqliteUpsertArticle,
		a.ID, a.URL, a.Title, a.Description, a.Source, a.PublishedAt.UTC(),
		a.IsRelevant, a.RelevanceScore, string(a.Sentiment), string(enc.categories), a.IsBreaking,
		a.Summary, nullableJSON(enc.triage), nullableJSON(enc.deep), a.StoredAt.UTC(),
	).Scan(&id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert article %s", a.URL)
	}
	a.ID = id

	if _, err := tx.ExecContext(ctx, `DELETE FROM article_companies WHERE article_id = ?`, id); err != nil {
		return eris.Wrap(err, "sqlite: clear article companies")
	}
	for i, m := range a.CompanyMatches {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO article_companies (article_id, company_id, mention, confidence, is_primary, position) VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
			id, m.CompanyID, m.Mention, m.Confidence, m.IsPrimary, i,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert article company %s", m.CompanyID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit upsert article")
}

func (s *SQLiteStore) ListArticles(ctx context.Context, filter ArticleFilter) ([]model.Article, error) {
	articles, err := s.queryArticles(ctx, filter)
	if err != nil || len(articles) == 0 {
		return articles, err
	}
	matches, err := s.matches(ctx, articleIDs(articles))
	if err != nil {
		return nil, err
	}
	attachMatches(articles, matches)
	return articles, nil
}

func (s *SQLiteStore) queryArticles(ctx context.Context, filter ArticleFilter) ([]model.Article, error) {
	query, args, err := articleQuery(filter).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list articles")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list articles")
	}
	defer rows.Close() //nolint:errcheck

	var articles []model.Article
	for rows.Next() {
		var (
			a               model.Article
			sentiment, cats string
			triageJ, deepJ  sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.URL, &a.Title, &a.Description, &a.Source, &a.PublishedAt,
			&a.IsRelevant, &a.RelevanceScore, &sentiment, &cats, &a.IsBreaking,
			&a.Summary, &triageJ, &deepJ, &a.StoredAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan article")
		}
		a.Sentiment = model.ParseSentiment(sentiment)
		enc := articleJSON{categories: []byte(cats)}
		if triageJ.Valid {
			enc.triage = []byte(triageJ.String)
		}
		if deepJ.Valid {
			enc.deep = []byte(deepJ.String)
		}
		if err := enc.decodeInto(&a); err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, eris.Wrap(rows.Err(), "sqlite: iterate articles")
}

func (s *SQLiteStore) matches(ctx context.Context, ids []string) (map[string][]model.CompanyMatch, error) {
	query, args, err := matchQuery(ids).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list matches")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list matches")
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[string][]model.CompanyMatch)
	for rows.Next() {
		var (
			articleID string
			m         model.CompanyMatch
		)
		if err := rows.Scan(&articleID, &m.CompanyID, &m.Mention, &m.Confidence, &m.IsPrimary); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan match")
		}
		out[articleID] = append(out[articleID], m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate matches")
}

func (s *SQLiteStore) RecentItems(ctx context.Context, since time.Time) ([]model.RawItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, title, source, published_at FROM articles WHERE stored_at >= ?`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent items")
	}
	defer rows.Close() //nolint:errcheck

	var items []model.RawItem
	for rows.Next() {
		var it model.RawItem
		if err := rows.Scan(&it.URL, &it.Title, &it.Source, &it.PublishedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan recent item")
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: iterate recent items")
}

func (s *SQLiteStore) UpsertCompanies(ctx context.Context, companies []model.Company) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert companies")
	}
	defer tx.Rollback() //nolint:errcheck

	for i, c := range companies {
		ids := c.SearchIdentifiers
		if ids == nil {
			ids = []string{}
		}
		idsJSON, err := json.Marshal(ids)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal search identifiers")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO companies (id, name, short_name, ticker, search_identifiers, sector, is_competitor, position) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name, short_name = excluded.short_name, ticker = excluded.ticker,
	search_identifiers = excluded.search_identifiers, sector = excluded.sector, is_competitor = excluded.is_competitor, position = excluded.position`,
			c.ID, c.Name, c.ShortName, c.Ticker, string(idsJSON), c.Sector, c.IsCompetitor, i,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert company %s", c.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit upsert companies")
}

func (s *SQLiteStore) ListCompanies(ctx context.Context) ([]model.Company, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, short_name, ticker, search_identifiers, sector, is_competitor FROM companies ORDER BY position, id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list companies")
	}
	defer rows.Close() //nolint:errcheck

	var companies []model.Company
	for rows.Next() {
		var (
			c       model.Company
			idsJSON string
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.ShortName, &c.Ticker, &idsJSON, &c.Sector, &c.IsCompetitor); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		if err := json.Unmarshal([]byte(idsJSON), &c.SearchIdentifiers); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal search identifiers for %s", c.ID)
		}
		companies = append(companies, c)
	}
	return companies, eris.Wrap(rows.Err(), "sqlite: iterate companies")
}

func (s *SQLiteStore) UpsertUsers(ctx context.Context, users []model.User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert users")
	}
	defer tx.Rollback() //nolint:errcheck

	for i, u := range users {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, name, email, role, email_enabled, in_app_enabled, priority_threshold, position) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name, email = excluded.email, role = excluded.role, email_enabled = excluded.email_enabled,
	in_app_enabled = excluded.in_app_enabled, priority_threshold = excluded.priority_threshold, position = excluded.position`,
			u.ID, u.Name, u.Email, string(u.Role), u.Channels.Email, u.Channels.InApp, u.PriorityThreshold.String(), i,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert user %s", u.ID)
		}
		for _, cid := range u.AssignedCompanyIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO subscriptions (user_id, company_id) VALUES (?, ?) ON CONFLICT DO NOTHING`, u.ID, cid,
			); err != nil {
				return eris.Wrapf(err, "sqlite: upsert subscription %s/%s", u.ID, cid)
			}
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit upsert users")
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.queryUsers(ctx)
	if err != nil || len(users) == 0 {
		return users, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT user_id, company_id FROM subscriptions ORDER BY user_id, company_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list subscriptions")
	}
	defer rows.Close() //nolint:errcheck

	index := make(map[string]int, len(users))
	for i, u := range users {
		index[u.ID] = i
	}
	for rows.Next() {
		var userID, companyID string
		if err := rows.Scan(&userID, &companyID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan subscription")
		}
		if i, ok := index[userID]; ok {
			users[i].AssignedCompanyIDs = append(users[i].AssignedCompanyIDs, companyID)
		}
	}
	return users, eris.Wrap(rows.Err(), "sqlite: iterate subscriptions")
}

func (s *SQLiteStore) queryUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, email, role, email_enabled, in_app_enabled, priority_threshold FROM users ORDER BY position, id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list users")
	}
	defer rows.Close() //nolint:errcheck

	var users []model.User
	for rows.Next() {
		var (
			u               model.User
			role, threshold string
		)
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &role, &u.Channels.Email, &u.Channels.InApp, &threshold); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan user")
		}
		u.Role = model.Role(role)
		u.PriorityThreshold = model.ParsePriority(threshold)
		u.AssignedCompanyIDs = []string{}
		users = append(users, u)
	}
	return users, eris.Wrap(rows.Err(), "sqlite: iterate users")
}

func (s *SQLiteStore) CreateAlertIfAbsent(ctx context.Context, a *model.Alert) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = nowUTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, user_id, article_id, type, priority, title, message, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
		a.ID, a.UserID, a.ArticleID, string(a.Type), a.Priority.String(), a.Title, a.Message, a.CreatedAt.UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: create alert for user %s", a.UserID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	query, args, err := alertQuery(filter).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list alerts")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list alerts")
	}
	defer rows.Close() //nolint:errcheck

	var alerts []model.Alert
	for rows.Next() {
		var (
			a                 model.Alert
			typ, priority     string
			readAt, dismissAt sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.ArticleID, &typ, &priority, &a.Title, &a.Message,
			&a.CreatedAt, &readAt, &dismissAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan alert")
		}
		a.Type = model.AlertType(typ)
		a.Priority = model.ParsePriority(priority)
		if readAt.Valid {
			a.ReadAt = &readAt.Time
		}
		if dismissAt.Valid {
			a.DismissedAt = &dismissAt.Time
		}
		alerts = append(alerts, a)
	}
	return alerts, eris.Wrap(rows.Err(), "sqlite: iterate alerts")
}

func (s *SQLiteStore) MarkAlertRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alerts SET read_at = COALESCE(read_at, ?) WHERE id = ?`, nowUTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark alert read %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) DismissAlert(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alerts SET dismissed_at = COALESCE(dismissed_at, ?) WHERE id = ?`, nowUTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: dismiss alert %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) CreateLeadIfAbsent(ctx context.Context, l *model.ProspectLead) (bool, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = nowUTC()
	}
	if l.Status == "" {
		l.Status = model.LeadStatusNew
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO leads (id, company_name, source_article_id, sector, rationale, suggested_approach, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (company_name) DO NOTHING`,
		l.ID, l.CompanyName, l.SourceArticleID, l.Sector, l.Rationale, l.SuggestedApproach, string(l.Status), l.CreatedAt.UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: create lead %s", l.CompanyName)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.ProspectLead, error) {
	query, args, err := leadQuery(filter).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list leads")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close() //nolint:errcheck

	var leads []model.ProspectLead
	for rows.Next() {
		var (
			l      model.ProspectLead
			status string
		)
		if err := rows.Scan(&l.ID, &l.CompanyName, &l.SourceArticleID, &l.Sector, &l.Rationale,
			&l.SuggestedApproach, &status, &l.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		l.Status = model.LeadStatus(status)
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: iterate leads")
}

func (s *SQLiteStore) SaveInsight(ctx context.Context, in model.Insight) error {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO insights (id, article_id, type, title, description, created_at) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (article_id) DO UPDATE SET type = excluded.type, title = excluded.title, description = excluded.description`,
		in.ID, in.ArticleID, string(in.Type), in.Title, in.Description, nowUTC(),
	)
	return eris.Wrapf(err, "sqlite: save insight for article %s", in.ArticleID)
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: alert %s", id)
	}
	return nil
}
