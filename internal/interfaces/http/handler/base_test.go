package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/erp/catalogsync/internal/infrastructure/logger"
	"github.com/erp/catalogsync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestGetRequestID(t *testing.T) {
	t.Run("from request context", func(t *testing.T) {
		c, _ := newTestContext()
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), "ctx-id"))
		c.Request.Header.Set(logger.RequestIDHeader, "header-id")
		assert.Equal(t, "ctx-id", getRequestID(c))
	})

	t.Run("from header when context empty", func(t *testing.T) {
		c, _ := newTestContext()
		c.Request.Header.Set(logger.RequestIDHeader, "header-id")
		assert.Equal(t, "header-id", getRequestID(c))
	})

	t.Run("empty when not set", func(t *testing.T) {
		c, _ := newTestContext()
		assert.Empty(t, getRequestID(c))
	})
}

func TestBaseHandler_HandleError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
		expectedMsg    string
	}{
		{
			name:           "not found",
			err:            shared.ErrNotFound,
			expectedStatus: http.StatusNotFound,
			expectedCode:   dto.ErrCodeNotFound,
			expectedMsg:    "Resource not found",
		},
		{
			name:           "wrapped invalid input keeps the detail",
			err:            fmt.Errorf("%w: limit must be at most 200", shared.ErrInvalidInput),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   dto.ErrCodeInvalidInput,
			expectedMsg:    "Invalid input provided: limit must be at most 200",
		},
		{
			name:           "unknown domain code",
			err:            shared.NewDomainError("REMOTE_BINDING_CONFLICT", "bound elsewhere"),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   "REMOTE_BINDING_CONFLICT",
			expectedMsg:    "bound elsewhere",
		},
		{
			name:           "plain error hides details",
			err:            errors.New("pq: connection refused"),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   dto.ErrCodeInternal,
			expectedMsg:    "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestContext()
			h := &BaseHandler{}

			h.HandleError(c, tt.err)

			assert.Equal(t, tt.expectedStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.expectedCode, resp.Error.Code)
			assert.Equal(t, tt.expectedMsg, resp.Error.Message)
		})
	}
}

func TestBaseHandler_HandleErrorNil(t *testing.T) {
	c, w := newTestContext()
	(&BaseHandler{}).HandleError(c, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, w.Body.Len())
}

func TestBaseHandler_ErrorCarriesRequestID(t *testing.T) {
	c, w := newTestContext()
	c.Request.Header.Set(logger.RequestIDHeader, "req-42")

	(&BaseHandler{}).Conflict(c, dto.ErrCodeSyncInProgress, "busy")

	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "req-42", resp.Error.RequestID)
	assert.Equal(t, dto.ErrCodeSyncInProgress, resp.Error.Code)
}
