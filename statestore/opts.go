package statestore

/*
 * Licensed under LGPL-3.0.
 *
 * You can get a copy of the LGPL-3.0 License at
 *
 * https://www.gnu.org/licenses/lgpl-3.0.en.html
 *
 * @wcgcyx - https://github.com/wcgcyx
 */

import "time"

// Opts is the options for the badger backed state store.
type Opts struct {
	// Path to the data store
	Path string

	// Value log GC period, defaults to 30 minutes
	GCPeriod time.Duration

	// Max badger table size in bytes, defaults to 64MiB
	MaxTableSize int64

	// The IO Timeout
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}
