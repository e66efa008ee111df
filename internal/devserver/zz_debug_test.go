package devserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func TestZZDebugRealtime(t *testing.T) {
	gin.SetMode(gin.TestMode)
	storage, err := OpenStorage(filepath.Join(t.TempDir(), "remote.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer storage.Close()
	tokens := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("test-signing-secret")})
	dispatcher := NewDispatcher()
	logger, _ := zap.NewDevelopment()
	handler, err := NewHTTPHandler(Dependencies{Tokens: tokens, Storage: storage, Dispatcher: dispatcher, Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	server := httptest.NewServer(handler)
	defer server.Close()

	token, _, err := tokens.Issue("owner-1")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/realtime"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	time.Sleep(100 * time.Millisecond)
	dispatcher.mu.RLock()
	n := len(dispatcher.subscribers["owner-1"])
	dispatcher.mu.RUnlock()
	t.Logf("subscribers for owner-1: %d", n)
	buf := make([]byte, 1<<20)
	t.Logf("stacks:\n%s", buf[:runtime.Stack(buf, true)])
}
