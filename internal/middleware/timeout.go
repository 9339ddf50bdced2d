package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// timeoutWriter discards handler writes that land after the middleware has
// already answered with a 504. The handler goroutine keeps running until it
// observes the context deadline; this keeps it from corrupting the response.
type timeoutWriter struct {
	gin.ResponseWriter
	mu       sync.Mutex
	timedOut bool
}

func (w *timeoutWriter) WriteHeader(code int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timedOut {
		return
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *timeoutWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timedOut {
		return len(b), nil
	}
	return w.ResponseWriter.Write(b)
}

func (w *timeoutWriter) WriteString(s string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timedOut {
		return len(s), nil
	}
	return w.ResponseWriter.WriteString(s)
}

// timeout writes the 504 through the underlying writer, unless the handler
// already produced a response, and shuts out any later handler writes.
func (w *timeoutWriter) timeout(body []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timedOut {
		return
	}
	w.timedOut = true
	if w.ResponseWriter.Written() {
		return
	}
	w.ResponseWriter.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.ResponseWriter.WriteHeader(http.StatusGatewayTimeout)
	w.ResponseWriter.Write(body)
}

// Timeout bounds request handling. Handlers observe the deadline through
// the request context; a request that blows it gets a 504, and anything the
// handler writes afterwards is dropped.
func Timeout(duration time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), duration)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		tw := &timeoutWriter{ResponseWriter: c.Writer}
		c.Writer = tw

		// Read before spawning; context keys are not safe to touch once
		// the handler goroutine is running.
		requestID := c.GetString(ContextRequestID)

		done := make(chan struct{})
		go func() {
			c.Next()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				body, _ := json.Marshal(ErrorResponse{
					Code:      http.StatusGatewayTimeout,
					Message:   "request timeout",
					RequestID: requestID,
				})
				tw.timeout(body)
			}
		}
	}
}
