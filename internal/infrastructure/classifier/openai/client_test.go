package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"berryBot/internal/domain"
)

func fullScores(hate float64) map[string]float64 {
	scores := make(map[string]float64)
	for _, c := range domain.Categories {
		scores[string(c)] = 0.001
	}
	scores[string(domain.CategoryHate)] = hate
	return scores
}

func moderationHandler(t *testing.T, status int, scores map[string]float64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req moderationRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "some chat text", req.Input)

		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "modr-1",
			"model": "omni-moderation-latest",
			"results": []map[string]any{{
				"flagged":         false,
				"category_scores": scores,
			}},
		})
	}
}

func TestClassifyReturnsEveryCategory(t *testing.T) {
	srv := httptest.NewServer(moderationHandler(t, http.StatusOK, fullScores(0.99)))
	defer srv.Close()

	client := NewClient(Config{APIKey: "sk-test", Endpoint: srv.URL}, zerolog.Nop())
	scores, err := client.Classify(context.Background(), "some chat text")
	require.NoError(t, err)
	assert.Len(t, scores, len(domain.Categories))
	assert.Equal(t, 0.99, scores[domain.CategoryHate])
	assert.Empty(t, scores.Missing())
}

func TestClassifyRejectsIncompleteScores(t *testing.T) {
	scores := fullScores(0.1)
	delete(scores, string(domain.CategoryViolenceGraphic))
	srv := httptest.NewServer(moderationHandler(t, http.StatusOK, scores))
	defer srv.Close()

	_, err := NewClient(Config{APIKey: "sk-test", Endpoint: srv.URL}, zerolog.Nop()).Classify(context.Background(), "some chat text")
	require.ErrorIs(t, err, domain.ErrClassifierResponse)
	assert.ErrorIs(t, err, domain.ErrClassifier)
	assert.Contains(t, err.Error(), "violence/graphic")
}

func TestClassifyRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(moderationHandler(t, http.StatusTooManyRequests, fullScores(0)))
	defer srv.Close()

	_, err := NewClient(Config{APIKey: "sk-test", Endpoint: srv.URL}, zerolog.Nop()).Classify(context.Background(), "some chat text")
	require.ErrorIs(t, err, domain.ErrClassifierResponse)
	assert.Contains(t, err.Error(), "429")
}

func TestClassifyRejectsUndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>")
	}))
	defer srv.Close()

	_, err := NewClient(Config{Endpoint: srv.URL}, zerolog.Nop()).Classify(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrClassifierResponse)
}

func TestClassifyRejectsEmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"x","model":"m","results":[]}`)
	}))
	defer srv.Close()

	_, err := NewClient(Config{Endpoint: srv.URL}, zerolog.Nop()).Classify(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrClassifierResponse)
}

func TestClassifyReportsUnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(Config{Endpoint: url}, zerolog.Nop()).Classify(context.Background(), "x")
	require.ErrorIs(t, err, domain.ErrClassifierConnection)
	assert.False(t, strings.Contains(err.Error(), "malformed"))
}

func TestZeroClassifier(t *testing.T) {
	scores, err := ZeroClassifier{}.Classify(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, scores.Missing())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ZeroClassifier{}.Classify(ctx, "anything")
	assert.ErrorIs(t, err, domain.ErrClassifier)
}
