package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/samirrijal/houselocator/internal/core/usecases"
)

// promptDecider asks the operator what to do with an inaccurate fix.
// End of input abandons the acquisition.
func promptDecider(in io.Reader, out io.Writer) usecases.DecideFunc {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	return func(ctx context.Context, p usecases.RetryPrompt) usecases.Decision {
		fmt.Fprintf(out, "\nFix is %s (%.1fm, attempt %d, %d retries left)\n", p.Band, p.Fix.AccuracyMeters, p.Attempt, p.RetriesLeft)
		for _, g := range p.Guidance {
			fmt.Fprintf(out, "  - %s\n", g)
		}
		for {
			fmt.Fprint(out, "[r]etry, [k]eep this fix, or [a]bandon? ")
			select {
			case <-ctx.Done():
				return usecases.DecisionAbandon
			case line, ok := <-lines:
				if !ok {
					return usecases.DecisionAbandon
				}
				if d, ok := parseDecision(line); ok {
					return d
				}
			}
		}
	}
}

func parseDecision(s string) (usecases.Decision, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "r", "retry":
		return usecases.DecisionRetry, true
	case "k", "keep":
		return usecases.DecisionKeep, true
	case "a", "abandon", "q":
		return usecases.DecisionAbandon, true
	}
	return 0, false
}

// keepDecider accepts every fix without asking.
func keepDecider(context.Context, usecases.RetryPrompt) usecases.Decision {
	return usecases.DecisionKeep
}
