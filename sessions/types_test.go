package sessions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/streamline-ai/streamline/models"
)

func TestSSEWriterReportsClientDisconnect(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	ctx, cancel := context.WithCancel(context.Background())
	c.Request = httptest.NewRequest(http.MethodPost, "/chat", nil).WithContext(ctx)

	w := NewSSEWriter(c, testLogger())
	if err := w.WriteFrame(models.TextFrame("hello")); err != nil {
		t.Fatalf("write to a live client failed: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "hello") {
		t.Errorf("frame should reach the response body, got %q", rec.Body.String())
	}

	cancel()
	if err := w.WriteFrame(models.TextFrame("more")); err == nil {
		t.Errorf("write after the request context is cancelled should error")
	}
}
