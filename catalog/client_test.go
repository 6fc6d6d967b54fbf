package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"washday/api/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newCatalogServer(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/services" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]models.Service{
			{ID: 1, Slug: "wash-and-fold", Name: "Wash & Fold", Position: 1},
			{ID: 2, Slug: "ironing", Name: "Ironing", Position: 2},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient("  ", nil)
	require.Error(t, err)

	t.Setenv("CATALOG_URL", "")
	t.Setenv("ANALYTICS_COLLECTOR_URL", "")
	_, err = NewClientFromEnv()
	require.Error(t, err)

	t.Setenv("ANALYTICS_COLLECTOR_URL", "http://collector.local/")
	c, err := NewClientFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://collector.local", c.baseURL)
}

func TestListServices(t *testing.T) {
	srv, _ := newCatalogServer(t, http.StatusOK)
	c, err := NewClient(srv.URL, srv.Client())
	require.NoError(t, err)
	defer c.CloseIdleConnections()

	services, err := c.ListServices(context.Background())
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.Equal(t, "ironing", services[1].Slug)
}

func TestListServicesStatusError(t *testing.T) {
	srv, _ := newCatalogServer(t, http.StatusServiceUnavailable)
	c, err := NewClient(srv.URL, srv.Client())
	require.NoError(t, err)
	defer c.CloseIdleConnections()

	_, err = c.ListServices(context.Background())
	require.ErrorContains(t, err, "503")
}

func TestCacheFetchesOnce(t *testing.T) {
	srv, hits := newCatalogServer(t, http.StatusOK)
	c, err := NewClient(srv.URL, srv.Client())
	require.NoError(t, err)
	defer c.CloseIdleConnections()

	cache := NewCache(c)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			services, err := cache.Get(context.Background())
			assert.NoError(t, err)
			assert.Len(t, services, 2)
		}()
	}
	wg.Wait()

	_, err = cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
	assert.True(t, cache.Loaded())
}
