// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package consent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealgate/platform/shared/identity"
)

func newTestHandler(t *testing.T) (*mux.Router, *MockRepository) {
	t.Helper()
	service, repo, _ := newTestService(t)
	router := mux.NewRouter()
	NewHandler(service).RegisterRoutes(router)
	return router, repo
}

func doConsent(router *mux.Router, method, path, body string, caller *identity.Identity) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if caller != nil {
		req = req.WithContext(identity.WithIdentity(req.Context(), caller))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestGrantHandler_RequiresIdentity(t *testing.T) {
	router, _ := newTestHandler(t)
	rr := doConsent(router, "POST", "/api/ai-consent/grant", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGrantHandler_FeatureToggleKeys(t *testing.T) {
	caller := &identity.Identity{UserID: "user-1", OrganizationID: "org-1"}

	t.Run("allowDealParsing false persists", func(t *testing.T) {
		router, repo := newTestHandler(t)
		rr := doConsent(router, "POST", "/api/ai-consent/grant",
			`{"allowDealParsing": false}`, caller)
		require.Equal(t, http.StatusOK, rr.Code)

		rec, err := repo.GetRecord(context.Background(), "user-1")
		require.NoError(t, err)
		assert.False(t, rec.AllowDealParsing)
		assert.True(t, rec.AllowChatAssistant)
		assert.True(t, rec.AllowDocumentAnalysis)
		assert.True(t, rec.AllowInsights)
	})

	t.Run("all documented keys decode", func(t *testing.T) {
		router, repo := newTestHandler(t)
		rr := doConsent(router, "POST", "/api/ai-consent/grant",
			`{"allowDealParsing": true, "allowChatAssistant": false, "allowDocumentAnalysis": false, "allowInsights": false}`,
			caller)
		require.Equal(t, http.StatusOK, rr.Code)

		rec, err := repo.GetRecord(context.Background(), "user-1")
		require.NoError(t, err)
		assert.True(t, rec.AllowDealParsing)
		assert.False(t, rec.AllowChatAssistant)
		assert.False(t, rec.AllowDocumentAnalysis)
		assert.False(t, rec.AllowInsights)
	})

	t.Run("empty body defaults all toggles true", func(t *testing.T) {
		router, repo := newTestHandler(t)
		rr := doConsent(router, "POST", "/api/ai-consent/grant", "", caller)
		require.Equal(t, http.StatusOK, rr.Code)

		rec, err := repo.GetRecord(context.Background(), "user-1")
		require.NoError(t, err)
		assert.True(t, rec.AllowDealParsing)
		assert.True(t, rec.AllowChatAssistant)
	})
}

func TestGrantHandler_ResponseEchoesRecord(t *testing.T) {
	router, _ := newTestHandler(t)
	caller := &identity.Identity{UserID: "user-1", OrganizationID: "org-1"}

	rr := doConsent(router, "POST", "/api/ai-consent/grant",
		`{"allowInsights": false}`, caller)
	require.Equal(t, http.StatusOK, rr.Code)

	var rec Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.True(t, rec.ConsentGiven)
	assert.False(t, rec.AllowInsights)
}
