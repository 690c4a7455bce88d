package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/samirrijal/houselocator/internal/core/domain"
	"github.com/samirrijal/houselocator/internal/core/usecases"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		in   string
		want usecases.Decision
		ok   bool
	}{
		{"r", usecases.DecisionRetry, true},
		{" Retry ", usecases.DecisionRetry, true},
		{"k", usecases.DecisionKeep, true},
		{"KEEP", usecases.DecisionKeep, true},
		{"a", usecases.DecisionAbandon, true},
		{"q", usecases.DecisionAbandon, true},
		{"", 0, false},
		{"maybe", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseDecision(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.in)
		}
	}
}

func testPrompt() usecases.RetryPrompt {
	return usecases.RetryPrompt{
		Fix:         domain.GeoFix{Latitude: 43.26, Longitude: -2.93, AccuracyMeters: 42},
		Attempt:     1,
		RetriesLeft: 2,
		Threshold:   10,
		Band:        domain.ClassifyAccuracy(42),
		Guidance:    []string{"Move to an open area"},
	}
}

func TestPromptDecider(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  usecases.Decision
	}{
		{"keep after bad input", "x\nk\n", usecases.DecisionKeep},
		{"retry", "r\n", usecases.DecisionRetry},
		{"end of input abandons", "", usecases.DecisionAbandon},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			decide := promptDecider(strings.NewReader(tt.input), &out)

			got := decide(context.Background(), testPrompt())
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "42.0m")
			assert.Contains(t, out.String(), "Move to an open area")
		})
	}
}

func TestPromptDecider_AsksAgainOnUnknownInput(t *testing.T) {
	var out bytes.Buffer
	decide := promptDecider(strings.NewReader("what\nnope\na\n"), &out)

	assert.Equal(t, usecases.DecisionAbandon, decide(context.Background(), testPrompt()))
	assert.Equal(t, 3, strings.Count(out.String(), "[r]etry"))
}

func TestPromptDecider_CancelledContextAbandons(t *testing.T) {
	// a reader that never yields a line
	r, w := io.Pipe()
	t.Cleanup(func() { _ = w.Close() })
	decide := promptDecider(r, &bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, usecases.DecisionAbandon, decide(ctx, testPrompt()))
}

func TestKeepDecider(t *testing.T) {
	assert.Equal(t, usecases.DecisionKeep, keepDecider(context.Background(), testPrompt()))
}
