package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProblemWritesRFC7807Body(t *testing.T) {
	rec := httptest.NewRecorder()
	Problem(rec, http.StatusUnprocessableEntity, "Shift Mismatch", "toM1+toM3+toM4: 3 does not equal fromM2 4")

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{"title":"Shift Mismatch","status":422,"detail":"toM1+toM3+toM4: 3 does not equal fromM2 4"}`, rec.Body.String())
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var dst struct {
		Quantity int `json:"quantity"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":3}`))
	require.NoError(t, DecodeJSON(req, &dst))
	require.Equal(t, 3, dst.Quantity)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":3,"qty":4}`))
	require.Error(t, DecodeJSON(req, &dst))
}

func TestDecodeJSONRejectsEmptyTrailingAndOversizedBodies(t *testing.T) {
	var dst struct {
		Quantity int `json:"quantity"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	require.ErrorIs(t, DecodeJSON(req, &dst), ErrEmptyBody)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("  "))
	require.ErrorIs(t, DecodeJSON(req, &dst), ErrEmptyBody)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":1}{"quantity":2}`))
	require.EqualError(t, DecodeJSON(req, &dst), "request body must contain a single JSON object")

	big := `{"quantity":1,"pad":"` + strings.Repeat("x", MaxBodyBytes) + `"}`
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	require.Error(t, DecodeJSON(req, &dst))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{\"quantity\":5}\n"))
	require.NoError(t, DecodeJSON(req, &dst))
	require.Equal(t, 5, dst.Quantity)
}
