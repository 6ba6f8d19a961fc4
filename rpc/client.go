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
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/filecoin-project/go-jsonrpc"
)

// adminAPI is the client side of the admin api, methods are called as admin.<Name>.
type adminAPI struct {
	Pause   func(ctx context.Context) error
	Unpause func(ctx context.Context) error
	Seal    func(ctx context.Context) (hexutil.Uint64, error)
}

// AdminClient is the client of the admin API.
type AdminClient struct {
	api    adminAPI
	closer jsonrpc.ClientCloser
}

// NewAdminClient dials the admin API of the node listening on the given port.
func NewAdminClient(ctx context.Context, host string, port uint64) (*AdminClient, error) {
	c := &AdminClient{}
	closer, err := jsonrpc.NewClient(ctx, fmt.Sprintf("http://%v:%v%v", host, port, adminPath), "admin", &c.api, http.Header{})
	if err != nil {
		return nil, err
	}
	c.closer = closer
	return c, nil
}

// Pause pauses the periodic sealing.
func (c *AdminClient) Pause(ctx context.Context) error {
	return c.api.Pause(ctx)
}

// Unpause resumes the periodic sealing.
func (c *AdminClient) Unpause(ctx context.Context) error {
	return c.api.Unpause(ctx)
}

// Seal seals the queued transactions and returns the new block number.
func (c *AdminClient) Seal(ctx context.Context) (uint64, error) {
	res, err := c.api.Seal(ctx)
	return uint64(res), err
}

// Close closes the client.
func (c *AdminClient) Close() {
	c.closer()
}
