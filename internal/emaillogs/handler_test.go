package emaillogs_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-platform/sponsorships/internal/emaillogs"
	"github.com/aura-platform/sponsorships/internal/models"
	"github.com/aura-platform/sponsorships/pkg/response"
)

type memStore struct {
	logs      []*models.EmailLog
	lastLimit int
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (*models.EmailLog, error) {
	for _, el := range m.logs {
		if el.ID == id {
			return el, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListByRecipient(_ context.Context, email string, limit int) ([]*models.EmailLog, error) {
	m.lastLimit = limit
	var out []*models.EmailLog
	for _, el := range m.logs {
		if el.RecipientEmail == email {
			out = append(out, el)
		}
	}
	return out, nil
}

func serve(t *testing.T, store *memStore, path string) (*httptest.ResponseRecorder, response.Body) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := emaillogs.NewHandler(store, nil)
	r := gin.New()
	r.GET("/email-logs", h.ListByRecipient)
	r.GET("/email-logs/:id", h.Get)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body response.Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestListByRecipient(t *testing.T) {
	sent := &models.EmailLog{ID: uuid.New(), EmailType: models.EmailTypeSponsorshipOffer, RecipientEmail: "family@x.com", Status: models.EmailLogStatusSent}
	store := &memStore{logs: []*models.EmailLog{sent, {ID: uuid.New(), RecipientEmail: "other@x.com"}}}

	w, body := serve(t, store, "/email-logs?email=family@x.com")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body.Data, 1)
	assert.Equal(t, 50, store.lastLimit)

	w, _ = serve(t, store, "/email-logs?email=family@x.com&limit=10000")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 500, store.lastLimit)

	w, body = serve(t, store, "/email-logs?email=nobody@x.com")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, body.Data)

	w, _ = serve(t, store, "/email-logs")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = serve(t, store, "/email-logs?email=a@b.com&limit=-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetEmailLog(t *testing.T) {
	el := &models.EmailLog{ID: uuid.New(), RecipientEmail: "family@x.com"}
	store := &memStore{logs: []*models.EmailLog{el}}

	w, _ := serve(t, store, "/email-logs/"+el.ID.String())
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = serve(t, store, "/email-logs/"+uuid.NewString())
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = serve(t, store, "/email-logs/nope")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
