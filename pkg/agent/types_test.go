package agent

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkerStatusString(t *testing.T) {
	tests := []struct {
		status WorkerStatus
		want   string
	}{
		{WorkerStatusAvailable, "available"},
		{WorkerStatusFull, "full"},
		{WorkerStatus(42), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestErrorFormat(t *testing.T) {
	err := &Error{Code: "SOMETHING_BROKE", Message: "something broke"}
	assert.Equal(t, "SOMETHING_BROKE: something broke", err.Error())
}

func TestSentinelErrors(t *testing.T) {
	wrapped := fmt.Errorf("start worker: %w", ErrRegistrationRejected)

	assert.ErrorIs(t, wrapped, ErrRegistrationRejected)
	assert.NotErrorIs(t, wrapped, ErrRegistrationTimeout)
	assert.True(t, errors.Is(ErrNotConnected, ErrNotConnected))
	assert.Equal(t, "NOT_CONNECTED: worker is not connected", ErrNotConnected.Error())
}
