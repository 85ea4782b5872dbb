package stats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockCheckpoint struct{ mock.Mock }

func (m *MockCheckpoint) ScannedCount() int {
	return m.Called().Int(0)
}

func (m *MockCheckpoint) PendingCounts() (int, int) {
	args := m.Called()
	return args.Int(0), args.Int(1)
}

type MockFindingCounter struct{ mock.Mock }

func (m *MockFindingCounter) CountByOutcome(ctx context.Context) (map[string]int, error) {
	args := m.Called(ctx)
	counts, _ := args.Get(0).(map[string]int)
	return counts, args.Error(1)
}

func TestHandler_GetStats(t *testing.T) {
	tests := []struct {
		name       string
		findings   bool
		setupMocks func(*MockCheckpoint, *MockFindingCounter)
		wantStatus int
		checkBody  func(*testing.T, map[string]interface{})
	}{
		{
			name:     "Success With Findings",
			findings: true,
			setupMocks: func(c *MockCheckpoint, f *MockFindingCounter) {
				c.On("ScannedCount").Return(120)
				c.On("PendingCounts").Return(3, 1)
				f.On("CountByOutcome", mock.Anything).Return(map[string]int{"valid": 2}, nil)
			},
			wantStatus: http.StatusOK,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				data := body["data"].(map[string]interface{})
				assert.EqualValues(t, 120, data["scanned_shas"])
				assert.EqualValues(t, 3, data["pending_balancer"])
				assert.EqualValues(t, 1, data["pending_gpt_load"])
				outcomes := data["outcomes"].(map[string]interface{})
				assert.EqualValues(t, 2, outcomes["valid"])
			},
		},
		{
			name:     "Success Without Database",
			findings: false,
			setupMocks: func(c *MockCheckpoint, f *MockFindingCounter) {
				c.On("ScannedCount").Return(0)
				c.On("PendingCounts").Return(0, 0)
			},
			wantStatus: http.StatusOK,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				data := body["data"].(map[string]interface{})
				assert.NotContains(t, data, "outcomes")
			},
		},
		{
			name:     "Counter Failure",
			findings: true,
			setupMocks: func(c *MockCheckpoint, f *MockFindingCounter) {
				c.On("ScannedCount").Return(10)
				c.On("PendingCounts").Return(0, 0)
				f.On("CountByOutcome", mock.Anything).Return(nil, errors.New("connection refused"))
			},
			wantStatus: http.StatusInternalServerError,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				errObj := body["error"].(map[string]interface{})
				assert.Equal(t, "INTERNAL_ERROR", errObj["code"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkpoint := new(MockCheckpoint)
			counter := new(MockFindingCounter)
			tt.setupMocks(checkpoint, counter)

			var h *Handler
			if tt.findings {
				h = NewHandler(checkpoint, counter)
			} else {
				h = NewHandler(checkpoint, nil)
			}

			req := httptest.NewRequest(http.MethodGet, "/stats", nil)
			rec := httptest.NewRecorder()
			h.GetStats(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var body map[string]interface{}
			assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			tt.checkBody(t, body)

			checkpoint.AssertExpectations(t)
			counter.AssertExpectations(t)
		})
	}
}

func TestHandler_Healthz(t *testing.T) {
	h := NewHandler(new(MockCheckpoint), nil)

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}
