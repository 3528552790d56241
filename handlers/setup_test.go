package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"realtime-poll-backend/cache"
	"realtime-poll-backend/config"
	"realtime-poll-backend/database"
	"realtime-poll-backend/limiter"
	"realtime-poll-backend/service"
)

var testDBSeq int64

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestRouter wires the real service against an in-memory SQLite
// database and registers the poll routes the way the server does.
func newTestRouter(t *testing.T) (*gin.Engine, *service.PollService) {
	t.Helper()

	dsn := fmt.Sprintf("file:handlertest%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	cfg := &config.Config{
		MinOptions:        2,
		MaxOptions:        10,
		MaxQuestionLength: 500,
		MaxOptionLength:   200,
	}

	svc := service.NewPollService(
		db,
		cfg,
		limiter.NewSlidingWindow(1000, time.Minute),
		cache.NewSnapshotCache(nil, 10*time.Second),
		nil,
	)

	h := NewPollHandler(svc)
	router := gin.New()
	router.POST("/api/polls", h.CreatePoll)
	router.GET("/api/polls/:code", h.GetPoll)
	router.POST("/api/polls/:code/vote", h.SubmitVote)
	router.GET("/api/polls/:code/results", h.GetResults)

	return router, svc
}

// browser simulates one visitor: a fixed remote IP plus the cookies
// the server has issued to it so far.
type browser struct {
	ip      string
	cookies []*http.Cookie
}

func (b *browser) do(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = b.ip + ":51234"
	for _, c := range b.cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// Remember cookies the server set, like a real browser would.
	for _, c := range w.Result().Cookies() {
		b.cookies = append(b.cookies, c)
	}
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}
