// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package watch

import "syscall"

// inotify cannot recover once the watch table or descriptor budget is spent.
var exhaustedErrnos = []syscall.Errno{
	syscall.ENOSPC, // fs.inotify.max_user_watches
	syscall.EMFILE,
	syscall.ENFILE,
}
