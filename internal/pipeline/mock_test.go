package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/news-intel/internal/deep"
	"github.com/sells-group/news-intel/internal/fetcher"
	"github.com/sells-group/news-intel/internal/model"
	"github.com/sells-group/news-intel/internal/triage"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) FetchAll(ctx context.Context, sources []fetcher.Source) []model.RawItem {
	args := m.Called(ctx, sources)
	return args.Get(0).([]model.RawItem)
}

type mockTriager struct {
	mock.Mock
}

func (m *mockTriager) Classify(ctx context.Context, in triage.Input) model.TriageResult {
	return m.Called(ctx, in).Get(0).(model.TriageResult)
}

type mockDeep struct {
	mock.Mock
}

func (m *mockDeep) Analyze(ctx context.Context, in deep.Input) model.DeepAnalysis {
	return m.Called(ctx, in).Get(0).(model.DeepAnalysis)
}

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, a *model.Article, users []model.User) ([]model.Alert, error) {
	args := m.Called(ctx, a, users)
	if v := args.Get(0); v != nil {
		return v.([]model.Alert), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockLeads struct {
	mock.Mock
}

func (m *mockLeads) Extract(ctx context.Context, articleID string, da model.DeepAnalysis, users []model.User) (*model.ProspectLead, error) {
	args := m.Called(ctx, articleID, da, users)
	if v := args.Get(0); v != nil {
		return v.(*model.ProspectLead), args.Error(1)
	}
	return nil, args.Error(1)
}
