package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/hupe1980/reviewmesh"
	"github.com/hupe1980/reviewmesh/engine"
)

func TestInFlightLimiter(t *testing.T) {
	l := newInFlightLimiter(2)
	assert.True(t, l.acquire())
	assert.True(t, l.acquire())
	assert.False(t, l.acquire())
	assert.Equal(t, 0, l.Remaining())

	l.release()
	assert.Equal(t, 1, l.InFlight())
	assert.True(t, l.acquire())

	unlimited := newInFlightLimiter(0)
	for range 100 {
		assert.True(t, unlimited.acquire())
	}
	assert.Equal(t, -1, unlimited.Remaining())
}

func TestServer_RejectsWhenFull(t *testing.T) {
	entered := make(chan struct{})
	unblock := make(chan struct{})

	svc := &mockService{}
	svc.On("Ask", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(entered)
			<-unblock
		}).
		Return(engine.Result{Answer: "ok"}, nil).Once()
	svc.On("Analyze", mock.Anything, mock.Anything).Return(reviewmesh.Analysis{}, nil).Maybe()

	h := New(svc, func(o *Options) { o.MaxInFlight = 1 }).Handler()

	done := make(chan int)
	go func() {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"question":"q"}`)).WithContext(context.Background()))
		done <- rec.Code
	}()
	<-entered

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	close(unblock)
	assert.Equal(t, http.StatusOK, <-done)
}
