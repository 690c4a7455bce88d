package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/samirrijal/houselocator/internal/core/domain"
)

func TestDescribeAcquireError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"abandoned", fmt.Errorf("acquire: %w", domain.ErrAbandoned), "location capture abandoned"},
		{"denied", &domain.LocationError{Kind: domain.PermissionDenied, Attempt: 1}, "allow positioning"},
		{"unavailable", &domain.LocationError{Kind: domain.PositionUnavailable, Attempt: 2}, "open area"},
		{"timeout", &domain.LocationError{Kind: domain.Timeout, Attempt: 1}, "no position in time"},
		{"unsupported", &domain.LocationError{Kind: domain.Unsupported, Attempt: 1}, "capture simulate"},
		{"busy", domain.ErrBusy, "already in progress"},
		{"other", errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, describeAcquireError(tt.err).Error(), tt.want)
		})
	}
}

func TestDescribeAcquireError_KeepsCause(t *testing.T) {
	le := &domain.LocationError{Kind: domain.Timeout, Attempt: 3}
	var got *domain.LocationError
	assert.True(t, errors.As(describeAcquireError(le), &got))
	assert.Equal(t, 3, got.Attempt)
}
