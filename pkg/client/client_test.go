package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exgen-nl/exgen-api/pkg/dto"
	"github.com/exgen-nl/exgen-api/pkg/models"
)

type tokenProviderStub struct {
	mu     sync.Mutex
	tokens []string
	calls  int
	forced int
	err    error
}

func (p *tokenProviderStub) Token(ctx context.Context, force bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	if force {
		p.forced++
	}
	token := p.tokens[0]
	if len(p.tokens) > 1 {
		p.tokens = p.tokens[1:]
	}
	p.calls++
	return token, nil
}

func writeEnvelope(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func TestTokenCachedAcrossCalls(t *testing.T) {
	provider := &tokenProviderStub{tokens: []string{"tok-1"}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		data, _ := json.Marshal(map[string]bool{"purchased": true})
		writeEnvelope(w, http.StatusOK, envelope{Data: data})
	}))
	defer server.Close()

	c := New(server.URL, provider)
	for i := 0; i < 3; i++ {
		_, err := c.HasPurchased(context.Background(), "prod-1")
		require.NoError(t, err)
	}

	assert.Equal(t, 1, provider.calls, "token is cached between calls")
}

func TestUnauthorizedRefreshesAndRetriesOnce(t *testing.T) {
	provider := &tokenProviderStub{tokens: []string{"stale", "fresh"}}

	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Header.Get("Authorization") == "Bearer stale" {
			writeEnvelope(w, http.StatusUnauthorized, envelope{Error: &APIError{Code: "UNAUTHORIZED"}})
			return
		}
		data, _ := json.Marshal(dto.CreditBalance{Credits: 10})
		writeEnvelope(w, http.StatusOK, envelope{Data: data})
	}))
	defer server.Close()

	c := New(server.URL, provider)
	balance, err := c.Balance(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 10, balance.Credits)
	assert.Equal(t, 2, requests)
	assert.Equal(t, 1, provider.forced, "retry fetches the token with force")
}

func TestSecondUnauthorizedIsFinal(t *testing.T) {
	provider := &tokenProviderStub{tokens: []string{"bad"}}

	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := New(server.URL, provider)
	_, err := c.Balance(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, 2, requests, "exactly one retry")
}

func TestServerErrorEnvelopeIsDecoded(t *testing.T) {
	provider := &tokenProviderStub{tokens: []string{"tok"}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"code":"INSUFFICIENT_CREDITS","message":"saldo te laag, 6 nodig","status":402}}`))
	}))
	defer server.Close()

	c := New(server.URL, provider)
	_, err := c.Purchase(context.Background(), dto.PurchaseRequest{ProductID: "prod-1", AcceptedTerms: true})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusPaymentRequired, apiErr.Status)
	assert.Equal(t, "INSUFFICIENT_CREDITS", apiErr.Code)
	assert.Contains(t, apiErr.Detail, "6 nodig")
}

func TestNetworkFailureMapsToAPIError(t *testing.T) {
	provider := &tokenProviderStub{tokens: []string{"tok"}}
	c := New("http://127.0.0.1:1", provider)

	_, err := c.Balance(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 0, apiErr.Status)
	assert.Equal(t, "NETWORK", apiErr.Code)
}

func TestTokenProviderFailureMapsToAPIError(t *testing.T) {
	provider := &tokenProviderStub{err: assert.AnError}
	c := New("http://127.0.0.1:1", provider)

	_, err := c.Balance(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "NETWORK", apiErr.Code)
}

func TestListProductsDecodesPaginationAndMeta(t *testing.T) {
	provider := &tokenProviderStub{tokens: []string{"tok"}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "beschikbaar", r.URL.Query().Get("filter"))

		data, _ := json.Marshal([]models.ExamProduct{{ID: "prod-1", Code: "BWI-2026"}})
		writeEnvelope(w, http.StatusOK, envelope{
			Data:       data,
			Pagination: &models.Pagination{Page: 2, PageSize: 25, TotalCount: 60},
			Meta:       map[string]interface{}{"cached": true},
		})
	}))
	defer server.Close()

	c := New(server.URL, provider)
	page, err := c.ListProducts(context.Background(), dto.CatalogQuery{Page: 2, Limit: 25, Filter: "beschikbaar"})

	require.NoError(t, err)
	require.Len(t, page.Products, 1)
	assert.Equal(t, "BWI-2026", page.Products[0].Code)
	require.NotNil(t, page.Pagination)
	assert.Equal(t, 60, page.Pagination.TotalCount)
	assert.True(t, page.Cached)
}

func TestUploadDocumentSendsMultipart(t *testing.T) {
	provider := &tokenProviderStub{tokens: []string{"tok"}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "examen.pdf", header.Filename)

		data, _ := json.Marshal(models.Document{ID: "doc-1", Name: "examen.pdf"})
		writeEnvelope(w, http.StatusCreated, envelope{Data: data})
	}))
	defer server.Close()

	c := New(server.URL, provider)
	doc, err := c.UploadDocument(context.Background(), "ver-1", "examen.pdf", strings.NewReader("%PDF-1.4"))

	require.NoError(t, err)
	assert.Equal(t, "doc-1", doc.ID)
}
