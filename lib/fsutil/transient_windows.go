// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package fsutil

import (
	"errors"

	"golang.org/x/sys/windows"
)

// IsTransient reports whether err is a file system error that may
// succeed when retried. On Windows, sharing and lock violations come
// from other processes holding the file open; access denied is also
// returned while a deleted file still has open handles.
func IsTransient(err error) bool {
	var errno windows.Errno
	if !errors.As(err, &errno) {
		return false
	}
	switch errno {
	case windows.ERROR_SHARING_VIOLATION, windows.ERROR_LOCK_VIOLATION, windows.ERROR_ACCESS_DENIED:
		return true
	}
	return false
}

func isCrossDevice(err error) bool {
	return errors.Is(err, windows.ERROR_NOT_SAME_DEVICE)
}
