package store

import (
	"context"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/news-intel/internal/db"
	"github.com/sells-group/news-intel/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS articles (
	id              TEXT PRIMARY KEY,
	url             TEXT NOT NULL UNIQUE,
	title           TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	source          TEXT NOT NULL DEFAULT '',
	published_at    TIMESTAMPTZ NOT NULL,
	is_relevant     BOOLEAN NOT NULL DEFAULT false,
	relevance_score INTEGER NOT NULL DEFAULT 0,
	sentiment       TEXT NOT NULL DEFAULT 'neutral',
	categories      JSONB NOT NULL DEFAULT '[]',
	is_breaking     BOOLEAN NOT NULL DEFAULT false,
	summary         TEXT NOT NULL DEFAULT '',
	triage          JSONB,
	deep_analysis   JSONB,
	stored_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_articles_stored_at ON articles(stored_at);
CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles(published_at DESC);

CREATE TABLE IF NOT EXISTS companies (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	short_name         TEXT NOT NULL DEFAULT '',
	ticker             TEXT NOT NULL DEFAULT '',
	search_identifiers JSONB NOT NULL DEFAULT '[]',
	sector             TEXT NOT NULL DEFAULT '',
	is_competitor      BOOLEAN NOT NULL DEFAULT false,
	position           INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS article_companies (
	article_id TEXT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
	company_id TEXT NOT NULL,
	mention    TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	is_primary BOOLEAN NOT NULL DEFAULT false,
	position   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (article_id, company_id)
);

CREATE INDEX IF NOT EXISTS idx_article_companies_company ON article_companies(company_id);

CREATE TABLE IF NOT EXISTS users (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	email              TEXT NOT NULL DEFAULT '',
	role               TEXT NOT NULL DEFAULT 'member',
	email_enabled      BOOLEAN NOT NULL DEFAULT false,
	in_app_enabled     BOOLEAN NOT NULL DEFAULT true,
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
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	read_at      TIMESTAMPTZ,
	dismissed_at TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_alerts_open ON alerts(user_id, article_id, type) WHERE dismissed_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_alerts_user_created ON alerts(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS leads (
	id                 TEXT PRIMARY KEY,
	company_name       TEXT NOT NULL UNIQUE,
	source_article_id  TEXT NOT NULL,
	sector             TEXT NOT NULL DEFAULT '',
	rationale          TEXT NOT NULL DEFAULT '',
	suggested_approach TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL DEFAULT 'new',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS insights (
	id          TEXT PRIMARY KEY,
	article_id  TEXT NOT NULL UNIQUE,
	type        TEXT NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const pgUpsertArticle = `INSERT INTO articles (id, url, title, description, source, published_at, is_relevant, relevance_score, sentiment, categories, is_breaking, summary, triage, deep_analysis, stored_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (url) DO UPDATE SET
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	source = EXCLUDED.source,
	published_at = EXCLUDED.published_at,
	is_relevant = EXCLUDED.is_relevant,
	relevance_score = EXCLUDED.relevance_score,
	sentiment = EXCLUDED.sentiment,
	categories = EXCLUDED.categories,
	is_breaking = EXCLUDED.is_breaking,
	summary = EXCLUDED.summary,
	triage = COALESCE(EXCLUDED.triage, articles.triage),
	deep_analysis = COALESCE(EXCLUDED.deep_analysis, articles.deep_analysis)
RETURNING id`

func (s *PostgresStore) UpsertArticle(ctx context.Context, a *model.Article) error {
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

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin upsert article")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var id string
	err = tx.QueryRow(ctx, pgUpsertArticle,
		a.ID, a.URL, a.Title, a.Description, a.Source, a.PublishedAt.UTC(),
		a.IsRelevant, a.RelevanceScore, string(a.Sentiment), string(enc.categories), a.IsBreaking,
		a.Summary, nullableJSON(enc.triage), nullableJSON(enc.deep), a.StoredAt,
	).Scan(&id)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert article %s", a.URL)
	}
	a.ID = id

	if _, err := tx.Exec(ctx, `DELETE FROM article_companies WHERE article_id = $1`, id); err != nil {
		return eris.Wrap(err, "postgres: clear article companies")
	}
	for i, m := range a.CompanyMatches {
		_, err := tx.Exec(ctx,
			`INSERT INTO article_companies (article_id, company_id, mention, confidence, is_primary, position) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT DO NOTHING`,
			id, m.CompanyID, m.Mention, m.Confidence, m.IsPrimary, i,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert article company %s", m.CompanyID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit upsert article")
}

func (s *PostgresStore) ListArticles(ctx context.Context, filter ArticleFilter) ([]model.Article, error) {
	query, args, err := articleQuery(filter).PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list articles")
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list articles")
	}
	defer rows.Close()

	var articles []model.Article
	for rows.Next() {
		var (
			a         model.Article
			sentiment string
			enc       articleJSON
		)
		if err := rows.Scan(&a.ID, &a.URL, &a.Title, &a.Description, &a.Source, &a.PublishedAt,
			&a.IsRelevant, &a.RelevanceScore, &sentiment, &enc.categories, &a.IsBreaking,
			&a.Summary, &enc.triage, &enc.deep, &a.StoredAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan article")
		}
		a.Sentiment = model.ParseSentiment(sentiment)
		if err := enc.decodeInto(&a); err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate articles")
	}
	if len(articles) == 0 {
		return articles, nil
	}

	matches, err := s.matches(ctx, articleIDs(articles))
	if err != nil {
		return nil, err
	}
	attachMatches(articles, matches)
	return articles, nil
}

func (s *PostgresStore) matches(ctx context.Context, ids []string) (map[string][]model.CompanyMatch, error) {
	query, args, err := matchQuery(ids).PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list matches")
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list matches")
	}
	defer rows.Close()

	out := make(map[string][]model.CompanyMatch)
	for rows.Next() {
		var (
			articleID string
			m         model.CompanyMatch
		)
		if err := rows.Scan(&articleID, &m.CompanyID, &m.Mention, &m.Confidence, &m.IsPrimary); err != nil {
			return nil, eris.Wrap(err, "postgres: scan match")
		}
		out[articleID] = append(out[articleID], m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate matches")
}

func (s *PostgresStore) RecentItems(ctx context.Context, since time.Time) ([]model.RawItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT url, title, source, published_at FROM articles WHERE stored_at >= $1`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent items")
	}
	defer rows.Close()

	var items []model.RawItem
	for rows.Next() {
		var it model.RawItem
		if err := rows.Scan(&it.URL, &it.Title, &it.Source, &it.PublishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan recent item")
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "postgres: iterate recent items")
}

func (s *PostgresStore) UpsertCompanies(ctx context.Context, companies []model.Company) error {
	rows := make([][]any, 0, len(companies))
	for i, c := range companies {
		ids := c.SearchIdentifiers
		if ids == nil {
			ids = []string{}
		}
		idsJSON, err := json.Marshal(ids)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal search identifiers")
		}
		rows = append(rows, []any{c.ID, c.Name, c.ShortName, c.Ticker, string(idsJSON), c.Sector, c.IsCompetitor, i})
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "companies",
		Columns:      []string{"id", "name", "short_name", "ticker", "search_identifiers", "sector", "is_competitor", "position"},
		ConflictKeys: []string{"id"},
	}, rows)
	return eris.Wrap(err, "postgres: upsert companies")
}

func (s *PostgresStore) ListCompanies(ctx context.Context) ([]model.Company, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, short_name, ticker, search_identifiers, sector, is_competitor FROM companies ORDER BY position, id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list companies")
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		var (
			c       model.Company
			idsJSON []byte
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.ShortName, &c.Ticker, &idsJSON, &c.Sector, &c.IsCompetitor); err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		if len(idsJSON) > 0 {
			if err := json.Unmarshal(idsJSON, &c.SearchIdentifiers); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal search identifiers for %s", c.ID)
			}
		}
		companies = append(companies, c)
	}
	return companies, eris.Wrap(rows.Err(), "postgres: iterate companies")
}

func (s *PostgresStore) UpsertUsers(ctx context.Context, users []model.User) error {
	userRows := make([][]any, 0, len(users))
	var subRows [][]any
	for i, u := range users {
		userRows = append(userRows, []any{
			u.ID, u.Name, u.Email, string(u.Role), u.Channels.Email, u.Channels.InApp, u.PriorityThreshold.String(), i,
		})
		for _, cid := range u.AssignedCompanyIDs {
			subRows = append(subRows, []any{u.ID, cid})
		}
	}
	if _, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "users",
		Columns:      []string{"id", "name", "email", "role", "email_enabled", "in_app_enabled", "priority_threshold", "position"},
		ConflictKeys: []string{"id"},
	}, userRows); err != nil {
		return eris.Wrap(err, "postgres: upsert users")
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "subscriptions",
		Columns:      []string{"user_id", "company_id"},
		ConflictKeys: []string{"user_id", "company_id"},
		DoNothing:    true,
	}, subRows)
	return eris.Wrap(err, "postgres: upsert subscriptions")
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, email, role, email_enabled, in_app_enabled, priority_threshold FROM users ORDER BY position, id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list users")
	}
	defer rows.Close()

	var users []model.User
	index := make(map[string]int)
	for rows.Next() {
		var (
			u         model.User
			role      string
			threshold string
		)
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &role, &u.Channels.Email, &u.Channels.InApp, &threshold); err != nil {
			return nil, eris.Wrap(err, "postgres: scan user")
		}
		u.Role = model.Role(role)
		u.PriorityThreshold = model.ParsePriority(threshold)
		u.AssignedCompanyIDs = []string{}
		index[u.ID] = len(users)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate users")
	}

	subs, err := s.pool.Query(ctx, `SELECT user_id, company_id FROM subscriptions ORDER BY user_id, company_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list subscriptions")
	}
	defer subs.Close()
	for subs.Next() {
		var userID, companyID string
		if err := subs.Scan(&userID, &companyID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan subscription")
		}
		if i, ok := index[userID]; ok {
			users[i].AssignedCompanyIDs = append(users[i].AssignedCompanyIDs, companyID)
		}
	}
	return users, eris.Wrap(subs.Err(), "postgres: iterate subscriptions")
}

func (s *PostgresStore) CreateAlertIfAbsent(ctx context.Context, a *model.Alert) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = nowUTC()
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO alerts (id, user_id, article_id, type, priority, title, message, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT DO NOTHING`,
		a.ID, a.UserID, a.ArticleID, string(a.Type), a.Priority.String(), a.Title, a.Message, a.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: create alert for user %s", a.UserID)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	query, args, err := alertQuery(filter).PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list alerts")
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list alerts")
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		var (
			a        model.Alert
			typ      string
			priority string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.ArticleID, &typ, &priority, &a.Title, &a.Message,
			&a.CreatedAt, &a.ReadAt, &a.DismissedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan alert")
		}
		a.Type = model.AlertType(typ)
		a.Priority = model.ParsePriority(priority)
		alerts = append(alerts, a)
	}
	return alerts, eris.Wrap(rows.Err(), "postgres: iterate alerts")
}

func (s *PostgresStore) MarkAlertRead(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE alerts SET read_at = COALESCE(read_at, $1) WHERE id = $2`, nowUTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark alert read %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: alert %s", id)
	}
	return nil
}

func (s *PostgresStore) DismissAlert(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE alerts SET dismissed_at = COALESCE(dismissed_at, $1) WHERE id = $2`, nowUTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: dismiss alert %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: alert %s", id)
	}
	return nil
}

func (s *PostgresStore) CreateLeadIfAbsent(ctx context.Context, l *model.ProspectLead) (bool, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = nowUTC()
	}
	if l.Status == "" {
		l.Status = model.LeadStatusNew
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO leads (id, company_name, source_article_id, sector, rationale, suggested_approach, status, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (company_name) DO NOTHING`,
		l.ID, l.CompanyName, l.SourceArticleID, l.Sector, l.Rationale, l.SuggestedApproach, string(l.Status), l.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: create lead %s", l.CompanyName)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.ProspectLead, error) {
	query, args, err := leadQuery(filter).PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list leads")
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.ProspectLead
	for rows.Next() {
		var (
			l      model.ProspectLead
			status string
		)
		if err := rows.Scan(&l.ID, &l.CompanyName, &l.SourceArticleID, &l.Sector, &l.Rationale,
			&l.SuggestedApproach, &status, &l.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		l.Status = model.LeadStatus(status)
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: iterate leads")
}

func (s *PostgresStore) SaveInsight(ctx context.Context, in model.Insight) error {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO insights (id, article_id, type, title, description, created_at) VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (article_id) DO UPDATE SET type = EXCLUDED.type, title = EXCLUDED.title, description = EXCLUDED.description`,
		in.ID, in.ArticleID, string(in.Type), in.Title, in.Description, nowUTC(),
	)
	return eris.Wrapf(err, "postgres: save insight for article %s", in.ArticleID)
}
