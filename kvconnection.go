/*
Copyright 2023-Present Couchbase, Inc.

Use of this software is governed by the Business Source License included in
the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
file, in accordance with the Business Source License, use of this software will
be governed by the Apache License, Version 2.0, included in the file
licenses/APL2.txt.
*/

package couchbase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tomap/couchbase-net-client/memd"
	"github.com/tomap/couchbase-net-client/operations"
)

// ConnState is the authentication state of a connection.
type ConnState int32

const (
	ConnStateUnauthenticated ConnState = iota
	ConnStateAuthenticating
	ConnStateReady
	ConnStateFailed
	ConnStateClosed
)

const (
	defaultConnectTimeout   = 10 * time.Second
	defaultOperationTimeout = 2500 * time.Millisecond
)

type KvConnectionOptions struct {
	Address       string
	BucketName    string
	Authenticator Authenticator
	Logger        *zap.Logger

	ConnectTimeout   time.Duration
	OperationTimeout time.Duration

	// Dialer overrides the transport, for tests.
	Dialer func(ctx context.Context, address string) (net.Conn, error)
}

type pendingResp struct {
	pak *memd.Packet
	err error
}

// KvConnection is one authenticated connection to a data node.  Concurrent
// sends share the connection through opaque correlation: every request
// registers a waiter keyed by its opaque and the read loop routes each
// response to its owner.  A response nobody owns means the stream is
// desynchronized and kills the connection.
type KvConnection struct {
	logger           *zap.Logger
	address          string
	bucketName       string
	operationTimeout time.Duration
	clientID         string

	conn     net.Conn
	memdConn *memd.Conn

	state atomic.Int32

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[uint32]chan pendingResp
	dead      bool

	opaqueCtr atomic.Uint32
}

// dont log when this is a 'generally expected' closing of the connection
func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, net.ErrClosed)
}

// NewKvConnection dials a node and completes the bootstrap sequence
// (HELLO, SASL, optional bucket selection) before returning.  The returned
// connection is Ready; a failed handshake returns an error and no
// connection.
func NewKvConnection(ctx context.Context, opts *KvConnectionOptions) (*KvConnection, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	connectTimeout := opts.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = defaultConnectTimeout
	}
	operationTimeout := opts.OperationTimeout
	if operationTimeout == 0 {
		operationTimeout = defaultOperationTimeout
	}

	dialer := opts.Dialer
	if dialer == nil {
		netDialer := &net.Dialer{Timeout: connectTimeout}
		dialer = func(ctx context.Context, address string) (net.Conn, error) {
			return netDialer.DialContext(ctx, "tcp", address)
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, err := dialer(dialCtx, opts.Address)
	if err != nil {
		return nil, err
	}

	c := &KvConnection{
		logger:           logger,
		address:          opts.Address,
		bucketName:       opts.BucketName,
		operationTimeout: operationTimeout,
		clientID:         uuid.NewString()[:8],
		conn:             conn,
		memdConn:         memd.NewConn(conn),
		pending:          make(map[uint32]chan pendingResp),
	}

	go c.readThread()

	if err := c.bootstrap(ctx, opts.Authenticator); err != nil {
		c.shutdown(err)
		return nil, err
	}

	c.state.Store(int32(ConnStateReady))
	return c, nil
}

// Address returns the node address this connection is bound to.
func (c *KvConnection) Address() string {
	return c.address
}

// State returns the current authentication state.
func (c *KvConnection) State() ConnState {
	return ConnState(c.state.Load())
}

// IsReady reports whether keyed operations may be dispatched.
func (c *KvConnection) IsReady() bool {
	return c.State() == ConnStateReady
}

func (c *KvConnection) bootstrap(ctx context.Context, authenticator Authenticator) error {
	c.state.Store(int32(ConnStateAuthenticating))

	helloOp := operations.NewHello(
		fmt.Sprintf("couchbase-net-client/%s", c.clientID),
		[]operations.HelloFeature{
			operations.FeatureDatatype,
			operations.FeatureXerror,
			operations.FeatureSnappy,
			operations.FeatureJSON,
		})
	if err := c.dispatch(ctx, helloOp); err != nil {
		return err
	}
	if !helloOp.Result.Success {
		// pre-HELLO servers answer unknown-command; anything else is fatal
		if helloOp.Result.Status != memd.StatusUnknownCommand {
			return fmt.Errorf("hello rejected: %s", helloOp.Result.Status)
		}
	}

	if authenticator != nil {
		if err := authenticator.Authenticate(ctx, authClient{c}); err != nil {
			c.state.Store(int32(ConnStateFailed))
			return err
		}
	}

	if c.bucketName != "" {
		selectOp := operations.NewSelectBucket(c.bucketName)
		if err := c.dispatch(ctx, selectOp); err != nil {
			return err
		}
		if !selectOp.Result.Success && selectOp.Result.Status != memd.StatusUnknownCommand {
			c.state.Store(int32(ConnStateFailed))
			return fmt.Errorf("%w: select bucket %q refused: %s",
				ErrAuthenticationFailed, c.bucketName, selectOp.Result.Status)
		}
	}

	return nil
}

// authClient narrows the connection to the capability the authenticator
// needs, without exposing keyed dispatch on an unauthenticated connection.
type authClient struct {
	c *KvConnection
}

func (a authClient) SendAuthOp(ctx context.Context, op operations.Operation) error {
	return a.c.dispatch(ctx, op)
}

// Execute dispatches one keyed operation and blocks until its correlated
// response is decoded into the operation's result.
func (c *KvConnection) Execute(ctx context.Context, op operations.Operation) error {
	if !c.IsReady() {
		return ErrConnectionNotReady
	}
	return c.dispatch(ctx, op)
}

// Ping round-trips a NOOP to confirm the connection is responsive.
func (c *KvConnection) Ping(ctx context.Context) error {
	if !c.IsReady() {
		return ErrConnectionNotReady
	}

	op := operations.NewNoop()
	if err := c.dispatch(ctx, op); err != nil {
		return err
	}
	if !op.Result.Success {
		return fmt.Errorf("noop rejected: %s", op.Result.Status)
	}
	return nil
}

func (c *KvConnection) dispatch(ctx context.Context, op operations.Operation) error {
	opaque := c.opaqueCtr.Add(1)

	pak, err := op.Encode(opaque)
	if err != nil {
		return err
	}

	waiterCh := make(chan pendingResp, 1)

	c.pendingMu.Lock()
	if c.dead {
		c.pendingMu.Unlock()
		return ErrConnectionClosed
	}
	c.pending[opaque] = waiterCh
	c.pendingMu.Unlock()

	c.writeMu.Lock()
	err = c.memdConn.WritePacket(pak)
	c.writeMu.Unlock()
	if err != nil {
		c.shutdown(err)
		return err
	}

	timeoutTimer := time.NewTimer(c.operationTimeout)
	defer timeoutTimer.Stop()

	select {
	case resp := <-waiterCh:
		if resp.err != nil {
			return resp.err
		}

		if err := op.Decode(resp.pak); err != nil {
			if errors.Is(err, memd.ErrProtocolDecode) {
				// the stream cannot be trusted after a decode failure
				c.shutdown(err)
			}
			return err
		}
		return nil

	case <-ctx.Done():
		// an unread response would desynchronize later correlation, so
		// the connection cannot be reused
		c.shutdown(ctx.Err())
		return ctx.Err()

	case <-timeoutTimer.C:
		c.shutdown(ErrOperationTimeout)
		return fmt.Errorf("%w: %s after %s", ErrOperationTimeout,
			op.Command().Name(), c.operationTimeout)
	}
}

func (c *KvConnection) readThread() {
	for {
		pak, err := c.memdConn.ReadPacket()
		if err != nil {
			if !isClosedErr(err) {
				c.logger.Warn("unexpected read error",
					zap.Error(err),
					zap.String("address", c.address))
			}
			c.shutdown(err)
			return
		}

		c.logger.Debug("received packet",
			zap.Stringer("packet", memd.PacketStringer{Packet: pak}),
			zap.String("address", c.address))

		if pak.Magic != memd.CmdMagicRes {
			c.shutdown(fmt.Errorf("%w: unexpected request magic from server",
				memd.ErrProtocolDecode))
			return
		}

		c.pendingMu.Lock()
		waiterCh, ok := c.pending[pak.Opaque]
		if ok {
			delete(c.pending, pak.Opaque)
		}
		c.pendingMu.Unlock()

		if !ok {
			c.logger.Error("response correlation mismatch, closing connection",
				zap.Uint32("opaque", pak.Opaque),
				zap.String("address", c.address))
			c.shutdown(ErrCorrelationMismatch)
			return
		}

		waiterCh <- pendingResp{pak: pak}
	}
}

// shutdown closes the transport and fails every in-flight operation with
// the given error.  Safe to call multiple times; only the first error
// wins.
func (c *KvConnection) shutdown(err error) {
	c.pendingMu.Lock()
	if c.dead {
		c.pendingMu.Unlock()
		return
	}
	c.dead = true
	abandoned := c.pending
	c.pending = nil
	c.pendingMu.Unlock()

	if c.State() != ConnStateFailed {
		c.state.Store(int32(ConnStateClosed))
	}

	if closeErr := c.conn.Close(); closeErr != nil && !isClosedErr(closeErr) {
		c.logger.Debug("failed to close connection", zap.Error(closeErr))
	}

	if err == nil {
		err = ErrConnectionClosed
	}
	for _, waiterCh := range abandoned {
		waiterCh <- pendingResp{err: err}
	}
}

// Close shuts the connection down.  In-flight operations fail with
// ErrConnectionClosed.
func (c *KvConnection) Close() error {
	c.shutdown(ErrConnectionClosed)
	return nil
}
