package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/loungeskip/loungeskip/internal/apperrors"
)

func decodeError(t *testing.T, resp *http.Response) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHandler_ErrorEnvelopeCarriesRequestID(t *testing.T) {
	handler := RequestIDMiddleware(Handler(func(w http.ResponseWriter, r *http.Request) error {
		return apperrors.NewValidationError("bad input", nil)
	}))
	server := httptest.NewServer(handler)
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeError(t, resp)
	require.Equal(t, apperrors.ErrorCodeValidationError, body.Error.Code)
	require.Equal(t, "bad input", body.Error.Message)
	require.Equal(t, resp.Header.Get("x-request-id"), body.RequestID)
}

func TestRecovererMiddleware_PanicBecomesInternalError(t *testing.T) {
	handler := RequestIDMiddleware(RecovererMiddleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})))
	server := httptest.NewServer(handler)
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decodeError(t, resp)
	require.Equal(t, apperrors.ErrorCodeInternalError, body.Error.Code)
	require.NotEmpty(t, body.RequestID)

	// The server keeps serving after a recovered panic.
	again, err := http.Get(server.URL)
	require.NoError(t, err)
	again.Body.Close()
	require.Equal(t, http.StatusInternalServerError, again.StatusCode)
}

func TestRecovererMiddleware_AbortHandlerPropagates(t *testing.T) {
	handler := RecovererMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	})
}

func TestRequestIDMiddleware_ValidatesIncomingID(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r)
	}))

	supplied := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("x-request-id", supplied)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, supplied, seen)
	require.Equal(t, supplied, rec.Header().Get("x-request-id"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("x-request-id", "not a uuid\nwith junk")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.NotEqual(t, "not a uuid\nwith junk", seen)
	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	require.Equal(t, seen, rec.Header().Get("x-request-id"))
}
