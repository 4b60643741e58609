package forwarder_test

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yeisme/folderrelay/pkg/forwarder"
)

func TestClassify(t *testing.T) {
	p := forwarder.Policy{MaxRetries: 2}

	tests := []struct {
		name string
		in   forwarder.Outcome
		want forwarder.State
	}{
		{"200", forwarder.Outcome{Status: http.StatusOK}, forwarder.Success},
		{"204", forwarder.Outcome{Status: http.StatusNoContent}, forwarder.Success},
		{"302", forwarder.Outcome{Status: http.StatusFound}, forwarder.PermanentFailure},
		{"400", forwarder.Outcome{Status: http.StatusBadRequest}, forwarder.PermanentFailure},
		{"404", forwarder.Outcome{Status: http.StatusNotFound}, forwarder.PermanentFailure},
		{"429", forwarder.Outcome{Status: http.StatusTooManyRequests}, forwarder.PermanentFailure},
		{"500", forwarder.Outcome{Status: http.StatusInternalServerError}, forwarder.Attempting},
		{"503", forwarder.Outcome{Status: http.StatusServiceUnavailable}, forwarder.Attempting},
		{"transport error", forwarder.Outcome{Err: errors.New("connection refused")}, forwarder.Attempting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Classify(tt.in))
		})
	}
}

func TestNextBoundsAttempts(t *testing.T) {
	p := forwarder.Policy{MaxRetries: 2, Backoff: []time.Duration{500 * time.Millisecond, 1500 * time.Millisecond}}
	fail := forwarder.Outcome{Status: http.StatusBadGateway}

	state, delay := p.Next(0, fail)
	assert.Equal(t, forwarder.Attempting, state)
	assert.Equal(t, 500*time.Millisecond, delay)

	state, delay = p.Next(1, fail)
	assert.Equal(t, forwarder.Attempting, state)
	assert.Equal(t, 1500*time.Millisecond, delay)

	state, _ = p.Next(2, fail)
	assert.Equal(t, forwarder.Exhausted, state)
	assert.Equal(t, 3, p.MaxAttempts())

	state, _ = p.Next(0, forwarder.Outcome{Status: http.StatusBadRequest})
	assert.Equal(t, forwarder.PermanentFailure, state)

	state, _ = p.Next(1, forwarder.Outcome{Status: http.StatusOK})
	assert.Equal(t, forwarder.Success, state)
}

func TestNoRetries(t *testing.T) {
	p := forwarder.Policy{MaxRetries: 0}

	state, _ := p.Next(0, forwarder.Outcome{Status: http.StatusInternalServerError})
	assert.Equal(t, forwarder.Exhausted, state)
}

func TestDelayUsesLastEntryAndJitter(t *testing.T) {
	p := forwarder.Policy{Backoff: []time.Duration{100 * time.Millisecond, 300 * time.Millisecond}}

	assert.Equal(t, 100*time.Millisecond, p.Delay(0))
	assert.Equal(t, 300*time.Millisecond, p.Delay(1))
	assert.Equal(t, 300*time.Millisecond, p.Delay(7))
	assert.Equal(t, time.Duration(0), forwarder.Policy{}.Delay(3))

	p.Jitter = 0.5
	for range 50 {
		d := p.Delay(1)
		assert.GreaterOrEqual(t, d, 300*time.Millisecond)
		assert.LessOrEqual(t, d, 450*time.Millisecond)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "permanent_failure", forwarder.PermanentFailure.String())
	assert.True(t, forwarder.Exhausted.Terminal())
	assert.False(t, forwarder.Attempting.Terminal())
}
