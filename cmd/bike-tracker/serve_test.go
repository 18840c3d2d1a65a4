package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/bike-tracker/internal/config"
	"github.com/i474232898/bike-tracker/internal/store"
	"github.com/i474232898/bike-tracker/internal/tracking"
)

func TestAppServesBootstrapReading(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore(0)
	svc := tracking.NewService(st, st, 0, nil)
	require.NoError(t, svc.Bootstrap(ctx))

	app := newApp(svc, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/readings", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var got struct {
		Readings []tracking.Reading `json:"readings"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, []tracking.Reading{tracking.BootstrapReading}, got.Readings)
}

func TestAppErrorHandler(t *testing.T) {
	app := newApp(tracking.NewService(store.NewMemoryStore(0), store.NewMemoryStore(0), 0, nil), nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/readings/history?limit=-3", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["error"])
}

func TestOpenBackendDefaultsToMemory(t *testing.T) {
	cfg := config.Defaults()
	b, err := openBackend(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer b.Close()
	_, ok := b.(*store.MemoryStore)
	assert.True(t, ok)
}
