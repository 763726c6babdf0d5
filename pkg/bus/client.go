package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/cluster-gateway/pkg/jsonrpc"
)

const clientLogPrefix = "bus:client"

// defaultRequestTimeout bounds a remote call when the caller's context
// carries no deadline of its own.
const defaultRequestTimeout = 25 * time.Second

// Client performs remote calls against one bus service over a COMMS
// request/reply subject. Safe for concurrent use.
type Client struct {
	nc      *comms.Conn
	subject string
	timeout time.Duration
}

// NewClient creates a Client for the given subject. A zero timeout uses
// the default.
func NewClient(nc *comms.Conn, subject string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{nc: nc, subject: subject, timeout: timeout}
}

// Request sends a positional-parameter call and waits for the correlated
// response. A structured error from the remote side is returned as a
// *RemoteProcedureCallError; transport failures are returned as-is.
func (c *Client) Request(ctx context.Context, method string, params []interface{}) (interface{}, error) {
	req := &jsonrpc.Request{
		ID:     jsonrpc.NewID(),
		Method: method,
		Params: params,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%s - encode request: %w", clientLogPrefix, err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	slog.Debug(fmt.Sprintf("%s - request method=%s id=%s subject=%s",
		clientLogPrefix, method, req.ID, c.subject))

	msg, err := c.nc.RequestWithContext(ctx, c.subject, data)
	if err != nil {
		return nil, fmt.Errorf("%s - request %s on %s: %w",
			clientLogPrefix, method, c.subject, err)
	}

	var resp jsonrpc.Response
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("%s - decode response for %s: %w",
			clientLogPrefix, method, err)
	}
	if resp.Error != nil {
		return nil, &RemoteProcedureCallError{
			Code:    resp.Error.Code,
			Message: resp.Error.Message,
			Data:    resp.Error.Data,
		}
	}
	return resp.Result, nil
}

// Storage returns a storage-typed view over this client.
func (c *Client) Storage() *StorageClient {
	return &StorageClient{caller: c}
}
