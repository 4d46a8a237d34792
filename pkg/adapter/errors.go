package adapter

import "errors"

var (
	// ErrNotifyUnsupported is returned by Listen/Notify on adapters with
	// no native pub/sub primitive (MySQL, SQLite). It is not itself an
	// error condition for the caller: it signals "fall back to polling."
	ErrNotifyUnsupported = errors.New("adapter: listen/notify not supported")

	// ErrClosed is returned by any operation called after Close.
	ErrClosed = errors.New("adapter: closed")
)
