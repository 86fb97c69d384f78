package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/news-intel/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS articles`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertArticle_ReturnsExistingID(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	a := &model.Article{
		RawItem:        model.RawItem{Title: "t", URL: "https://x.example.com/a"},
		Sentiment:      model.SentimentNeutral,
		CompanyMatches: []model.CompanyMatch{{CompanyID: "fanuc", Mention: "FANUC", Confidence: 1, IsPrimary: true}},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO articles .* ON CONFLICT \(url\) DO UPDATE .* RETURNING id`).
		WithArgs(pgxmock.AnyArg(), "https://x.example.com/a", "t", "", "", pgxmock.AnyArg(),
			false, 0, "neutral", "[]", false, "", nil, nil, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("existing-id"))
	mock.ExpectExec(`DELETE FROM article_companies WHERE article_id = \$1`).
		WithArgs("existing-id").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`INSERT INTO article_companies`).
		WithArgs("existing-id", "fanuc", "FANUC", 1.0, true, 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.UpsertArticle(context.Background(), a))
	assert.Equal(t, "existing-id", a.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateAlertIfAbsent(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO alerts .* ON CONFLICT DO NOTHING`).
		WithArgs(pgxmock.AnyArg(), "u1", "a1", "breaking", "CRITICAL", "Breaking", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO alerts .* ON CONFLICT DO NOTHING`).
		WithArgs(pgxmock.AnyArg(), "u1", "a1", "breaking", "CRITICAL", "Breaking", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	alert := func() *model.Alert {
		return &model.Alert{UserID: "u1", ArticleID: "a1", Type: model.AlertBreaking, Priority: model.PriorityCritical, Title: "Breaking"}
	}
	created, err := s.CreateAlertIfAbsent(ctx, alert())
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.CreateAlertIfAbsent(ctx, alert())
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateLeadIfAbsent(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO leads .* ON CONFLICT \(company_name\) DO NOTHING`).
		WithArgs(pgxmock.AnyArg(), "Ohio Robotics Corp", "a1", "", "", "", "new", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	created, err := s.CreateLeadIfAbsent(context.Background(), &model.ProspectLead{CompanyName: "Ohio Robotics Corp", SourceArticleID: "a1"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkAlertRead_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE alerts SET read_at`).
		WithArgs(pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.MarkAlertRead(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListLeads(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, company_name, .* FROM leads WHERE status = \$1 ORDER BY created_at DESC LIMIT 10`).
		WithArgs("new").
		WillReturnRows(pgxmock.NewRows(leadColumns).
			AddRow("l1", "Ohio Robotics Corp", "a1", "Automotive", "Greenfield", "Intro", "new", created))

	leads, err := s.ListLeads(context.Background(), LeadFilter{Status: model.LeadStatusNew, Limit: 10})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "Ohio Robotics Corp", leads[0].CompanyName)
	assert.Equal(t, model.LeadStatusNew, leads[0].Status)
	assert.Equal(t, created, leads[0].CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListCompanies(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, name, short_name, ticker, search_identifiers, sector, is_competitor FROM companies ORDER BY position`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "short_name", "ticker", "search_identifiers", "sector", "is_competitor"}).
			AddRow("rockwell", "Rockwell Automation", "", "ROK", []byte(`["Allen-Bradley"]`), "Industrial", false))

	got, err := s.ListCompanies(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"Allen-Bradley"}, got[0].SearchIdentifiers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertCompanies_BulkUpsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "companies" .* ON CONFLICT \("id"\) DO UPDATE SET`).
		WithArgs("fanuc", "FANUC America", "FANUC", "", "[]", "", true, 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.UpsertCompanies(context.Background(), []model.Company{
		{ID: "fanuc", Name: "FANUC America", ShortName: "FANUC", IsCompetitor: true},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
