package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPipelineErrorMessage(t *testing.T) {
	err := NewNetwork("amazon", "fetch failed", fmt.Errorf("connection reset"))
	assert.Equal(t, "[network] amazon: fetch failed - connection reset", err.Error())

	err = NewPlausibility("flipkart", "price missing")
	assert.Equal(t, "[plausibility] flipkart: price missing", err.Error())
}

func TestIsRetryable(t *testing.T) {
	testCases := []struct {
		err      error
		expected bool
	}{
		{NewNetwork("amazon", "timeout", nil), true},
		{NewParsing("amazon", "bad html", nil), true},
		{NewPlausibility("amazon", "title missing"), true},
		{NewRateLimit("amazon", 30*time.Second), false},
		{NewConversion("amazon", "bad url", nil), false},
		{NewConfiguration("missing", nil), false},
		{fmt.Errorf("wrapped: %w", NewNetwork("myntra", "503", nil)), true},
		{fmt.Errorf("plain error"), true},
		{nil, false},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, IsRetryable(tc.err), "%v", tc.err)
	}
}

func TestTypeOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewRateLimit("amazon", time.Minute))
	assert.Equal(t, ErrorTypeRateLimit, TypeOf(err))
	assert.Equal(t, ErrorType(""), TypeOf(fmt.Errorf("plain")))
}
