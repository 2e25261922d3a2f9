package handler_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/launchpad/handler"
)

type echoRequest struct {
	Name  string `json:"name"`
	Limit int    `query:"limit"`
	Debug bool   `query:"debug"`
}

var errDomain = errors.New("domain: thing not found")

func mapDomain(err error) (handler.HTTPError, bool) {
	if errors.Is(err, errDomain) {
		return handler.ErrNotFound.WithMessage("thing not found"), true
	}
	return handler.HTTPError{}, false
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) handler.JSONResponse {
	t.Helper()
	var body handler.JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestWrap_BindsAndRenders(t *testing.T) {
	t.Parallel()

	h := handler.Wrap(func(r *http.Request, req echoRequest) handler.Response {
		return handler.JSON(req, handler.WithStatus(http.StatusCreated), handler.WithMeta(map[string]any{"v": 1}))
	}, handler.WithBinders(handler.JSONBody(0), handler.Query()))

	req := httptest.NewRequest(http.MethodPost, "/?limit=5&debug=true", strings.NewReader(`{"name":"pro"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	body := decode(t, rec)
	assert.Equal(t, map[string]any{"name": "pro", "limit": float64(5), "debug": true}, normalize(body.Data))
	assert.Equal(t, float64(1), body.Meta["v"])
	assert.Nil(t, body.Error)
}

// normalize lower-cases the struct field names produced by encoding echoRequest.
func normalize(v any) map[string]any {
	m, _ := v.(map[string]any)
	out := map[string]any{}
	for k, val := range m {
		out[strings.ToLower(k)] = val
	}
	return out
}

func TestWrap_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		code int
		key  string
	}{
		{"http error", handler.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"wrapped http error", errors.Join(errors.New("ctx"), handler.ErrPaymentRequired), http.StatusPaymentRequired, "payment_required"},
		{"validation", handler.ValidationError{"amount": {"must be positive"}}, http.StatusBadRequest, "validation_error"},
		{"mapped", errDomain, http.StatusNotFound, "not_found"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := handler.Wrap(func(r *http.Request, _ struct{}) handler.Response {
				return handler.JSONError(tt.err)
			}, handler.WithErrorMapper(mapDomain))

			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.code, rec.Code)
			body := decode(t, rec)
			require.NotNil(t, body.Error)
			assert.Equal(t, tt.key, body.Error.Code)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

func TestWrap_ValidationDetails(t *testing.T) {
	t.Parallel()

	h := handler.Wrap(func(r *http.Request, _ struct{}) handler.Response {
		return handler.JSONError(handler.ValidationError{"price_id": {"is required"}})
	})
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	body := decode(t, rec)
	require.NotNil(t, body.Error)
	assert.Equal(t, []string{"is required"}, body.Error.Details["price_id"])
}

func TestWrap_BindErrors(t *testing.T) {
	t.Parallel()

	h := handler.Wrap(func(r *http.Request, req echoRequest) handler.Response {
		return handler.JSON(req)
	}, handler.WithBinders(handler.JSONBody(16), handler.Query()))

	tests := []struct {
		name        string
		target      string
		body        string
		contentType string
		code        int
	}{
		{"malformed json", "/", `{"name":`, "application/json", http.StatusBadRequest},
		{"wrong content type", "/", `name=x`, "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType},
		{"too large", "/", `{"name":"` + strings.Repeat("x", 64) + `"}`, "application/json", http.StatusRequestEntityTooLarge},
		{"bad query", "/?limit=ten", "", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, tt.target, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			h(rec, req)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestWrap_NilResponse(t *testing.T) {
	t.Parallel()

	h := handler.Wrap(func(r *http.Request, _ struct{}) handler.Response { return nil })
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	v := handler.ValidationError{}
	assert.NoError(t, v.Err())
	v.Add("b", "second")
	v.Add("a", "first")
	assert.Equal(t, "validation error: a: first, b: second", v.Error())
	assert.Error(t, v.Err())
}
