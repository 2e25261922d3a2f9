package requestid_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/launchpad/pkg/requestid"
)

func serve(t *testing.T, incoming string) (ctxID, headerID string) {
	t.Helper()
	h := requestid.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = requestid.FromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if incoming != "" {
		req.Header.Set(requestid.Header, incoming)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return ctxID, rec.Header().Get(requestid.Header)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("keeps valid id", func(t *testing.T) {
		t.Parallel()
		ctxID, headerID := serve(t, "abc_123-XYZ")
		assert.Equal(t, "abc_123-XYZ", ctxID)
		assert.Equal(t, ctxID, headerID)
	})

	for name, incoming := range map[string]string{
		"missing":   "",
		"bad chars": "abc; drop table",
		"too long":  strings.Repeat("a", 129),
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctxID, headerID := serve(t, incoming)
			_, err := uuid.Parse(ctxID)
			require.NoError(t, err)
			assert.Equal(t, ctxID, headerID)
		})
	}
}

func TestLoggerExtractor(t *testing.T) {
	t.Parallel()

	_, ok := requestid.LoggerExtractor()(context.Background())
	assert.False(t, ok)

	attr, ok := requestid.LoggerExtractor()(requestid.WithContext(context.Background(), "r1"))
	assert.True(t, ok)
	assert.Equal(t, "request_id", attr.Key)
	assert.Equal(t, "r1", attr.Value.String())
	assert.Empty(t, requestid.FromContext(nil)) //nolint:staticcheck
}
