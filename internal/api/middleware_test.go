package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/playhall/game-room-gateway/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestErrorHandler_PanicRecovery(t *testing.T) {
	buf := &bytes.Buffer{}
	app := &GameRoomApp{
		log: testutil.TestLogger(t),
	}
	app.log.SetOutput(buf)

	// handler that panics
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("test panic"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := app.errorHandler(panicHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code, "expected 500 after panic")
	assert.Equal(t, "close", rr.Header().Get("Connection"), "expected connection close header")
	assert.Contains(t, buf.String(), "panic: test panic", "expected panic logged")

	var body ApiError
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&body), "expected json error body")
	assert.Equal(t, http.StatusInternalServerError, body.StatusCode, "expected status code in body")
}

func Test_errorHandler_NoPanic(t *testing.T) {
	app := &GameRoomApp{
		log: testutil.TestLogger(t),
	}

	called := false
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := app.errorHandler(okHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, "expected handler status")
	assert.Equal(t, "ok", rr.Body.String(), "expected handler body")
	assert.True(t, called, "expected handler to be called")
}
