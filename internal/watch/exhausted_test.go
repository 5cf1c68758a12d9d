// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestWatcherExhausted(t *testing.T) {
	t.Parallel()

	if len(exhaustedErrnos) == 0 {
		t.Fatal("no exhaustion errnos registered for this platform")
	}

	for _, errno := range exhaustedErrnos {
		t.Run(errno.Error(), func(t *testing.T) {
			t.Parallel()
			if !watcherExhausted(errno) {
				t.Errorf("watcherExhausted(%v) = false", errno)
			}
			if !watcherExhausted(fmt.Errorf("collection watch: %w", errno)) {
				t.Errorf("watcherExhausted(wrapped %v) = false", errno)
			}
		})
	}

	for _, err := range []error{syscall.EACCES, errors.New("step dir renamed"), nil} {
		if watcherExhausted(err) {
			t.Errorf("watcherExhausted(%v) = true, want false", err)
		}
	}
}
