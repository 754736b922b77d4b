package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/sentinel-insights/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockQuerier struct {
	mock.Mock
}

func (m *mockQuerier) List(ctx context.Context, limit int) ([]domain.CycleRunRecord, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]domain.CycleRunRecord), args.Error(1)
}

func (m *mockQuerier) Get(ctx context.Context, id string) (*domain.CycleRunRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CycleRunRecord), args.Error(1)
}

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) RunNow(ctx context.Context) (domain.CycleRunRecord, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.CycleRunRecord), args.Error(1)
}

func newRouter(q CycleQuerier, r CycleRunner) http.Handler {
	router := chi.NewRouter()
	NewHandler(q, r, zerolog.New(nil).Level(zerolog.Disabled)).RegisterRoutes(router)
	return router
}

func TestHandleRun_ReturnsRecord(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)
	runner := new(mockRunner)
	runner.On("RunNow", mock.Anything).Return(domain.CycleRunRecord{
		ID: "c-1", StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond), Outcome: domain.OutcomeSuccess,
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/cycles/run", nil)
	w := httptest.NewRecorder()
	newRouter(new(mockQuerier), runner).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "success", body["data"].(map[string]interface{})["outcome"])
	assert.Equal(t, float64(1500), body["metadata"].(map[string]interface{})["duration_ms"])
}

func TestHandleRun_ConflictWhileInProgress(t *testing.T) {
	runner := new(mockRunner)
	runner.On("RunNow", mock.Anything).Return(domain.CycleRunRecord{}, domain.ErrCycleInProgress)

	req := httptest.NewRequest(http.MethodPost, "/cycles/run", nil)
	w := httptest.NewRecorder()
	newRouter(new(mockQuerier), runner).ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleGet(t *testing.T) {
	q := new(mockQuerier)
	q.On("Get", mock.Anything, "c-1").Return(&domain.CycleRunRecord{ID: "c-1", Outcome: domain.OutcomePartial}, nil)
	q.On("Get", mock.Anything, "missing").Return(nil, nil)
	router := newRouter(q, new(mockRunner))

	req := httptest.NewRequest(http.MethodGet, "/cycles/c-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/cycles/missing", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleList(t *testing.T) {
	q := new(mockQuerier)
	q.On("List", mock.Anything, 3).Return([]domain.CycleRunRecord{{ID: "a"}, {ID: "b"}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/cycles/?limit=3", nil)
	w := httptest.NewRecorder()
	newRouter(q, new(mockRunner)).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body["data"], 2)
	q.AssertExpectations(t)
}
