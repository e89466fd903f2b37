package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/autoaid/auth"
	"github.com/kilianp07/autoaid/core/model"
)

func identityServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var lookups atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"svc","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/mechanics/{id}", func(w http.ResponseWriter, r *http.Request) {
		lookups.Add(1)
		if r.Header.Get("Authorization") != "Bearer svc" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch r.PathValue("id") {
		case "m1":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"m1","rating":4.8,"total_jobs":12,"specializations":["FLAT_TIRE","SOS_TOWING"]}`))
		case "broken":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &lookups
}

func TestHTTPDirectory_Lookup(t *testing.T) {
	srv, lookups := identityServer(t)
	d, err := NewHTTPDirectory(Config{
		BaseURL: srv.URL + "/",
		Auth:    auth.Conf{ClientID: "dispatch", ClientSecret: "x", AuthURL: srv.URL + "/token"},
	})
	require.NoError(t, err)
	ctx := context.Background()

	p, err := d.Lookup(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 4.8, p.Rating)
	assert.Equal(t, 12, p.TotalJobs)
	assert.ElementsMatch(t, []model.ServiceType{model.ServiceFlatTire, model.ServiceSOSTowing}, p.Specializations)

	_, err = d.Lookup(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), lookups.Load(), "second lookup is served from cache")

	d.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = d.Lookup(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), lookups.Load(), "expired entries are fetched again")

	_, err = d.Lookup(ctx, "ghost")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = d.Lookup(ctx, "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrNotFound)
}

func TestConfigValidate(t *testing.T) {
	_, err := NewHTTPDirectory(Config{})
	assert.Error(t, err)
}
