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

import "errors"

var (
	ErrAlreadyKnown    = errors.New("already known")
	ErrQueueFull       = errors.New("transaction queue is full")
	ErrInvalidSender   = errors.New("invalid sender")
	ErrInvalidChainID  = errors.New("invalid chain id")
	ErrTxDropped       = errors.New("transaction dropped by sealer")
	ErrNodeClosed      = errors.New("node closed")
	ErrUnsupportedNet  = errors.New("unsupported chain")
	ErrTxTypeNotSealed = errors.New("transaction type not supported")
)
