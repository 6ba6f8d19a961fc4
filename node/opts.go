package node

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

// Opts is the options for node.
type Opts struct {
	// The period at which queued transactions are sealed into a block.
	// Zero seals a block on every submission.
	SealPeriod time.Duration

	// The max number of transactions waiting in the queue.
	MaxQueuedTxs int
}
