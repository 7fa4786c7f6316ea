package ledger

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/snackline/snackline/internal/shared"
)

func mountedHandler(t *testing.T) (*fixture, http.Handler) {
	t.Helper()
	fx := newFixture(t, "0")
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), fx.svc, nil)
	r := chi.NewRouter()
	r.Route("/recoveries", h.MountRecoveryRoutes)
	r.Route("/distribution", h.MountDistributionRoutes)
	return fx, r
}

func doAs(t *testing.T, h http.Handler, p shared.Principal, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), p))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatsRoutesRespond(t *testing.T) {
	_, h := mountedHandler(t)

	rec := doAs(t, h, admin(), http.MethodGet, "/distribution/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"stats"`)

	rec = doAs(t, h, admin(), http.MethodGet, "/recoveries/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"stats"`)
}
