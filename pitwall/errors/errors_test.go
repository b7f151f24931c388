package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		err    *APIError
		code   ErrorCode
		status int
	}{
		{NewInvalidRequest("bad season"), ErrInvalidRequest, http.StatusBadRequest},
		{NewNotFound("round 30"), ErrNotFound, http.StatusNotFound},
		{NewRateLimited(), ErrRateLimited, http.StatusTooManyRequests},
		{NewUpstream(stderrors.New("503")), ErrUpstream, http.StatusBadGateway},
		{NewTimeout("slow"), ErrTimeout, http.StatusGatewayTimeout},
		{NewInternal(nil), ErrInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.Status)
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}

func TestIs_Wrapped(t *testing.T) {
	err := fmt.Errorf("resource: %w", NewTimeout("load timed out"))
	assert.True(t, Is(err, ErrTimeout))
	assert.False(t, Is(err, ErrNotFound))
	assert.False(t, Is(stderrors.New("plain"), ErrTimeout))
}

func TestBody(t *testing.T) {
	body := NewTimeout("Data loading timed out").Body()
	assert.Equal(t, "Data loading timed out", body["error"])
	assert.Equal(t, true, body["timeout"])
	assert.Equal(t, ErrTimeout, body["code"])
}
