// SPDX-License-Identifier: MPL-2.0

package watch

import "errors"

// watcherExhausted reports whether err leaves the fsnotify watcher unable to
// deliver further events. Anything else is logged and watching continues.
func watcherExhausted(err error) bool {
	for _, errno := range exhaustedErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
