package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createPoll(t *testing.T, router *gin.Engine, b *browser, question string, options ...string) string {
	t.Helper()
	w := b.do(router, http.MethodPost, "/api/polls", gin.H{
		"question": question,
		"options":  options,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decodeBody(t, w)
	poll := body["poll"].(map[string]interface{})
	return poll["poll_code"].(string)
}

func TestCreatePollEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	b := &browser{ip: "10.0.0.1"}

	w := b.do(router, http.MethodPost, "/api/polls", gin.H{
		"question": "Favorite language?",
		"options":  []string{"Go", "Python", "Rust"},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])

	poll := body["poll"].(map[string]interface{})
	assert.Equal(t, "Favorite language?", poll["question"])
	assert.Len(t, poll["poll_code"].(string), 8)
	assert.Len(t, poll["options"].([]interface{}), 3)
}

func TestCreatePollEndpointValidation(t *testing.T) {
	router, _ := newTestRouter(t)
	b := &browser{ip: "10.0.0.1"}

	// Malformed body
	w := b.do(router, http.MethodPost, "/api/polls", gin.H{"question": "No options"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Business validation failure surfaces the reason
	w = b.do(router, http.MethodPost, "/api/polls", gin.H{
		"question": "Only one option",
		"options":  []string{"A"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "options are required")
}

func TestGetPollEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	creator := &browser{ip: "10.0.0.1"}
	code := createPoll(t, router, creator, "Pick one", "A", "B")

	visitor := &browser{ip: "10.0.0.2"}
	w := visitor.do(router, http.MethodGet, "/api/polls/"+strings.ToLower(code), nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["has_voted"])

	results := body["results"].(map[string]interface{})
	assert.Equal(t, code, results["poll_code"])
	assert.Equal(t, float64(0), results["total_votes"])

	// A browser token cookie is issued on first contact.
	require.NotEmpty(t, visitor.cookies)
	assert.Equal(t, "browser_token", visitor.cookies[0].Name)
	assert.NotEmpty(t, visitor.cookies[0].Value)

	w = visitor.do(router, http.MethodGet, "/api/polls/NOPE9999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// Full voting round-trip: two visitors, duplicate attempt rejected,
// percentages move as votes land.
func TestVoteEndpointScenario(t *testing.T) {
	router, _ := newTestRouter(t)
	creator := &browser{ip: "10.0.0.1"}
	code := createPoll(t, router, creator, "Pick one", "A", "B")

	votePath := fmt.Sprintf("/api/polls/%s/vote", code)

	// Resolve option IDs from the poll endpoint.
	visitorX := &browser{ip: "10.0.0.2"}
	w := visitorX.do(router, http.MethodGet, "/api/polls/"+code, nil)
	require.Equal(t, http.StatusOK, w.Code)
	poll := decodeBody(t, w)["poll"].(map[string]interface{})
	options := poll["options"].([]interface{})
	optionA := uint(options[0].(map[string]interface{})["id"].(float64))
	optionB := uint(options[1].(map[string]interface{})["id"].(float64))

	// X votes for A and immediately sees 100%.
	w = visitorX.do(router, http.MethodPost, votePath, gin.H{"option_id": optionA})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	results := decodeBody(t, w)["results"].(map[string]interface{})
	assert.Equal(t, float64(1), results["total_votes"])
	assert.Equal(t, 100.0, results["options"].([]interface{})[0].(map[string]interface{})["percentage"])

	// X tries to switch to B: rejected, tallies untouched.
	w = visitorX.do(router, http.MethodPost, votePath, gin.H{"option_id": optionB})
	require.Equal(t, http.StatusConflict, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["already_voted"])

	// Y votes for B: split becomes 50/50.
	visitorY := &browser{ip: "10.0.0.3"}
	w = visitorY.do(router, http.MethodPost, votePath, gin.H{"option_id": optionB})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	results = decodeBody(t, w)["results"].(map[string]interface{})
	assert.Equal(t, float64(2), results["total_votes"])
	opts := results["options"].([]interface{})
	assert.Equal(t, 50.0, opts[0].(map[string]interface{})["percentage"])
	assert.Equal(t, 50.0, opts[1].(map[string]interface{})["percentage"])

	// X revisits the poll and sees their recorded choice.
	w = visitorX.do(router, http.MethodGet, "/api/polls/"+code, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Equal(t, true, body["has_voted"])
	assert.Equal(t, float64(optionA), body["voted_option_id"])
}

func TestVoteEndpointErrors(t *testing.T) {
	router, _ := newTestRouter(t)
	creator := &browser{ip: "10.0.0.1"}
	code := createPoll(t, router, creator, "Pick one", "A", "B")

	b := &browser{ip: "10.0.0.2"}

	// Missing option_id
	w := b.do(router, http.MethodPost, "/api/polls/"+code+"/vote", gin.H{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeBody(t, w)["error"], "select an option")

	// Option from nowhere
	w = b.do(router, http.MethodPost, "/api/polls/"+code+"/vote", gin.H{"option_id": 99999})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown poll
	w = b.do(router, http.MethodPost, "/api/polls/NOPE9999/vote", gin.H{"option_id": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResultsEndpoint(t *testing.T) {
	router, svc := newTestRouter(t)
	creator := &browser{ip: "10.0.0.1"}
	code := createPoll(t, router, creator, "Pick one", "A", "B", "C")

	b := &browser{ip: "10.0.0.2"}
	w := b.do(router, http.MethodGet, "/api/polls/"+code, nil)
	require.Equal(t, http.StatusOK, w.Code)
	poll := decodeBody(t, w)["poll"].(map[string]interface{})
	optionA := uint(poll["options"].([]interface{})[0].(map[string]interface{})["id"].(float64))

	w = b.do(router, http.MethodPost, "/api/polls/"+code+"/vote", gin.H{"option_id": optionA})
	require.Equal(t, http.StatusOK, w.Code)

	// Results endpoint serves the bare snapshot.
	w = b.do(router, http.MethodGet, "/api/polls/"+code+"/results", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snapshot := decodeBody(t, w)
	assert.Equal(t, code, snapshot["poll_code"])
	assert.Equal(t, "Pick one", snapshot["question"])
	assert.Equal(t, float64(1), snapshot["total_votes"])

	// Snapshot agrees with the service-level view.
	got, err := svc.GetResults(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.TotalVotes)

	w = b.do(router, http.MethodGet, "/api/polls/NOPE9999/results", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
