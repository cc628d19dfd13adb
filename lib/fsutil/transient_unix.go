// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package fsutil

import (
	"errors"

	"golang.org/x/sys/unix"
)

// IsTransient reports whether err is a file system error that may
// succeed when retried: the file is busy, in use as a running
// executable, or the call was interrupted.
func IsTransient(err error) bool {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return false
	}
	switch errno {
	case unix.EBUSY, unix.ETXTBSY, unix.EAGAIN, unix.EINTR:
		return true
	}
	return false
}

func isCrossDevice(err error) bool {
	return errors.Is(err, unix.EXDEV)
}
