package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	applog "itemhub/pkg/log"

	"github.com/gin-gonic/gin"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	applog.Init("error", "console", "")
	code := m.Run()
	os.Exit(code)
}

func newRouter() *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), RequestLogger())
	r.POST("/echo", func(c *gin.Context) {
		var body map[string]interface{}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": body, "request_id": c.GetString(RequestIDHeader)})
	})
	return r
}

// RequestLogger 读取请求体后需要把它放回去，后续 handler 仍能正常绑定。
func TestRequestLogger_BodyStillReadable(t *testing.T) {
	r := newRouter()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"title":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expect 200, got %d, body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"title":"hello"`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestRequestID_GeneratedWhenMissing(t *testing.T) {
	r := newRouter()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{}`))
	r.ServeHTTP(w, req)

	id := w.Header().Get(RequestIDHeader)
	if len(id) != 36 {
		t.Fatalf("expect generated uuid, got %q", id)
	}
	if !strings.Contains(w.Body.String(), id) {
		t.Fatalf("expect request id in context, body=%s", w.Body.String())
	}
}

func TestRequestID_KeepsClientValue(t *testing.T) {
	r := newRouter()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{}`))
	req.Header.Set(RequestIDHeader, "trace-123")
	r.ServeHTTP(w, req)

	if got := w.Header().Get(RequestIDHeader); got != "trace-123" {
		t.Fatalf("expect client request id, got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("a", maxLoggedBody+10)
	got := truncate([]byte(long))
	if !strings.HasSuffix(got, "...(truncated)") || len(got) != maxLoggedBody+len("...(truncated)") {
		t.Fatalf("unexpected truncate result length %d", len(got))
	}
	if truncate([]byte("short")) != "short" {
		t.Fatalf("short body should be kept")
	}
}
