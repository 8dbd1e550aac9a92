package ddhcp

import (
	"errors"
	"net"
	"os"

	"go.uber.org/zap"

	"github.com/ddhcp-project/ddhcpd/core"
)

// ctlSocket is the UNIX stream control channel for one Node. Each
// accepted connection receives the CSV status dump and is then
// closed; there is no further protocol.
type ctlSocket struct {
	listener net.Listener
	table    *core.Table
	logger   *zap.Logger
}

// listenCtlSocket removes any stale socket file at path and starts
// listening on a fresh UNIX stream socket.
func listenCtlSocket(path string, table *core.Table, logger *zap.Logger) (*ctlSocket, error) {
	_ = os.Remove(path)

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}

	return &ctlSocket{listener: listener, table: table, logger: logger}, nil
}

// Serve accepts connections until the listener is closed, writing the
// status dump to each and closing it. Panics from a single connection
// handler are contained so one bad client cannot take down the node.
func (c *ctlSocket) Serve() {
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			c.logger.Warn("control socket accept failed", zap.Error(err))
			return
		}
		go c.handle(conn)
	}
}

func (c *ctlSocket) handle(conn net.Conn) {
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("control socket connection handler panicked", zap.Any("recover", r))
		}
	}()

	if err := c.table.WriteStatus(conn); err != nil {
		c.logger.Warn("failed to write status", zap.Error(err))
	}
}

// Close stops accepting new connections.
func (c *ctlSocket) Close() error {
	return c.listener.Close()
}
