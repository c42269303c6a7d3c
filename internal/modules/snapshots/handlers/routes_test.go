package handlers

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRoutes_Paths(t *testing.T) {
	handler := setupTestHandler(t)

	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	var routes []string
	err := chi.Walk(router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, method+" "+route)
		return nil
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"GET /snapshots/",
		"GET /snapshots/stats",
	}, routes)
}
