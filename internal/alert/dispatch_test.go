package alert

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/news-intel/internal/model"
	"github.com/sells-group/news-intel/internal/notify"
	"github.com/sells-group/news-intel/internal/store"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, msg notify.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func fanucArticle() *model.Article {
	return &model.Article{
		ID: "a1",
		RawItem: model.RawItem{
			Title: "FANUC Opens New Robotics Assembly Plant in Ohio",
			URL:   "https://news.example.com/fanuc",
		},
		RelevanceScore: 85,
		Summary:        "FANUC is investing $200M.",
		CompanyMatches: []model.CompanyMatch{{CompanyID: "fanuc", Mention: "FANUC", Confidence: 1, IsPrimary: true}},
	}
}

var users = []model.User{
	{ID: "u-high", Email: "high@example.com", AssignedCompanyIDs: []string{"fanuc"}, Channels: model.Channels{Email: true}, PriorityThreshold: model.PriorityHigh},
	{ID: "u-critical", AssignedCompanyIDs: []string{"fanuc"}, Channels: model.Channels{InApp: true}, PriorityThreshold: model.PriorityCritical},
}

func TestDispatch_OnlyEligibleUserAlerted(t *testing.T) {
	n := &mockNotifier{}
	n.On("Notify", mock.Anything, mock.MatchedBy(func(m notify.Message) bool {
		return m.Kind == notify.KindAlert && m.Recipient == "u-high" && m.Email == "high@example.com"
	})).Return(nil).Once()

	d := NewDispatcher(NewClassifier(60), newStore(t), n)
	created, err := d.Dispatch(context.Background(), fanucArticle(), users)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "u-high", created[0].UserID)
	assert.Equal(t, model.AlertNewFacility, created[0].Type)
	assert.Equal(t, "New facility: FANUC Opens New Robotics Assembly Plant in Ohio", created[0].Title)
	assert.Contains(t, created[0].Message, "https://news.example.com/fanuc")
	n.AssertExpectations(t)
}

func TestDispatch_Idempotent(t *testing.T) {
	n := &mockNotifier{}
	n.On("Notify", mock.Anything, mock.Anything).Return(nil).Once()

	st := newStore(t)
	d := NewDispatcher(NewClassifier(60), st, n)
	ctx := context.Background()

	_, err := d.Dispatch(ctx, fanucArticle(), users)
	require.NoError(t, err)
	created, err := d.Dispatch(ctx, fanucArticle(), users)
	require.NoError(t, err)
	assert.Empty(t, created)

	open, err := st.ListAlerts(ctx, store.AlertFilter{UserID: "u-high"})
	require.NoError(t, err)
	assert.Len(t, open, 1)
	n.AssertExpectations(t)
}

func TestDispatch_NotifyFailureKeepsAlert(t *testing.T) {
	n := &mockNotifier{}
	n.On("Notify", mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	d := NewDispatcher(NewClassifier(60), newStore(t), n)
	created, err := d.Dispatch(context.Background(), fanucArticle(), users)
	require.NoError(t, err)
	assert.Len(t, created, 1)
}

func TestDispatch_LowRelevanceNoAlert(t *testing.T) {
	n := &mockNotifier{}
	a := fanucArticle()
	a.RelevanceScore = 40

	created, err := NewDispatcher(NewClassifier(60), newStore(t), n).Dispatch(context.Background(), a, users)
	require.NoError(t, err)
	assert.Empty(t, created)
	n.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestDigest_ReadDismiss(t *testing.T) {
	n := &mockNotifier{}
	n.On("Notify", mock.Anything, mock.Anything).Return(nil)

	st := newStore(t)
	d := NewDispatcher(NewClassifier(60), st, n)
	ctx := context.Background()
	since := time.Now().Add(-time.Hour)

	breaking := fanucArticle()
	breaking.ID = "a2"
	breaking.IsBreaking = true

	_, err := d.Dispatch(ctx, fanucArticle(), users)
	require.NoError(t, err)
	_, err = d.Dispatch(ctx, breaking, users)
	require.NoError(t, err)

	dg, err := d.Digest(ctx, "u-high", since)
	require.NoError(t, err)
	require.Equal(t, 2, dg.Total)
	assert.Equal(t, 2, dg.Unread)
	assert.Equal(t, model.PriorityCritical, dg.Alerts[0].Priority, "highest priority first")
	assert.Equal(t, 1, dg.ByPriority["HIGH"])
	assert.Equal(t, 1, dg.ByType[string(model.AlertBreaking)])

	require.NoError(t, d.MarkRead(ctx, dg.Alerts[0].ID))
	require.NoError(t, d.Dismiss(ctx, dg.Alerts[1].ID))

	dg, err = d.Digest(ctx, "u-high", since)
	require.NoError(t, err)
	assert.Equal(t, 1, dg.Total)
	assert.Equal(t, 0, dg.Unread)

	assert.ErrorIs(t, d.Dismiss(ctx, "missing"), store.ErrNotFound)
}

func TestSendDigest(t *testing.T) {
	n := &mockNotifier{}
	n.On("Notify", mock.Anything, mock.MatchedBy(func(m notify.Message) bool { return m.Kind == notify.KindAlert })).Return(nil)
	n.On("Notify", mock.Anything, mock.MatchedBy(func(m notify.Message) bool {
		return m.Kind == notify.KindDigest && m.Subject == "1 news alerts (1 unread)" && m.Email == "high@example.com"
	})).Return(nil).Once()

	d := NewDispatcher(NewClassifier(60), newStore(t), n)
	ctx := context.Background()

	dg, err := d.SendDigest(ctx, users[0], time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, dg.Total)

	_, err = d.Dispatch(ctx, fanucArticle(), users)
	require.NoError(t, err)
	dg, err = d.SendDigest(ctx, users[0], time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, dg.Total)
	n.AssertExpectations(t)
}
