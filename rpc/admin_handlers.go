package rpc

/*
 * Licensed under LGPL-3.0.
 *
 * You can get a copy of the LGPL-3.0 License at
 *
 * https://www.gnu.org/licenses/lgpl-3.0.en.html
 *
 * @wcgcyx - https://github.com/wcgcyx
 */

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/wcgcyx/callsim/node"
)

// adminAPIHandler is used to handle admin API.
type adminAPIHandler struct {
	node *node.Node
}

// Pause pauses the periodic sealing.
func (h *adminAPIHandler) Pause() error {
	defer observe("admin_pause", time.Now(), nil)
	h.node.Pause()
	return nil
}

// Unpause resumes the periodic sealing.
func (h *adminAPIHandler) Unpause() error {
	defer observe("admin_unpause", time.Now(), nil)
	h.node.Unpause()
	return nil
}

// Seal seals all queued transactions into a new block and returns its number.
func (h *adminAPIHandler) Seal(ctx context.Context) (res hexutil.Uint64, err error) {
	defer observe("admin_seal", time.Now(), &err)
	blk, err := h.node.Seal(ctx)
	if err != nil {
		return 0, err
	}
	return hexutil.Uint64(blk.NumberU64()), nil
}
