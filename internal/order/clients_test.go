package order

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newProductServer serves /api/products/{id} from a fixed body map.
func newProductServer(t *testing.T, bodies map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id == "boom" {
			http.Error(w, `{"error":"db down"}`, http.StatusInternalServerError)
			return
		}
		body, ok := bodies[id]
		if !ok {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPCatalogResolve(t *testing.T) {
	srv := newProductServer(t, map[string]string{
		"7":  `{"id":"7","name":"Ao","slug":"ao","thumbnail":"/a.png","price":150000,"salePrice":"120000.50"}`,
		"8":  `{"id":"8","name":"Non","price":"50000","salePrice":null}`,
		"42": `{"id":"42","name":"Tui","price":"not-a-number"}`,
	})
	c := NewHTTPCatalog(srv.URL + "/")
	ctx := context.Background()

	p, err := c.ResolveProduct(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "Ao", p.Name)
	assert.Equal(t, "/a.png", p.Thumbnail)
	assert.True(t, p.EffectivePrice().Equal(dec("120000.50")))

	p, err = c.ResolveProduct(ctx, "8")
	require.NoError(t, err)
	assert.False(t, p.SalePrice.Valid)
	assert.True(t, p.EffectivePrice().Equal(dec("50000")))

	_, err = c.ResolveProduct(ctx, "9")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.ResolveProduct(ctx, "boom")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = c.ResolveProduct(ctx, "42")
	assert.Error(t, err)
}
