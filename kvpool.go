package couchbase

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

type KvPoolOptions struct {
	BucketName    string
	Authenticator Authenticator
	Logger        *zap.Logger

	ConnectTimeout   time.Duration
	OperationTimeout time.Duration

	Dialer func(ctx context.Context, address string) (net.Conn, error)
}

// KvPool owns the connections of one bucket, keyed by node address.
// Connections are dialed and authenticated lazily; only Ready connections
// are handed out.  Connections invalidated by timeouts or correlation
// failures are replaced on the next request.
type KvPool struct {
	logger *zap.Logger
	opts   KvPoolOptions

	mu     sync.Mutex
	conns  map[string]*KvConnection
	closed bool
}

func NewKvPool(opts KvPoolOptions) *KvPool {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &KvPool{
		logger: logger,
		opts:   opts,
		conns:  make(map[string]*KvConnection),
	}
}

// GetConnection returns a Ready connection to the given node, dialing one
// if necessary.  Transient dial failures are retried with exponential
// backoff until the context expires; authentication failures are terminal.
func (p *KvPool) GetConnection(ctx context.Context, address string) (*KvConnection, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrConnectionClosed
	}

	existing := p.conns[address]
	if existing != nil {
		if existing.IsReady() {
			p.mu.Unlock()
			return existing, nil
		}

		// a dead connection stays in the map until someone needs the
		// node again; replace it now
		delete(p.conns, address)
		p.mu.Unlock()
		_ = existing.Close()
		p.mu.Lock()
	}
	p.mu.Unlock()

	var conn *KvConnection
	dialOne := func() error {
		newConn, err := NewKvConnection(ctx, &KvConnectionOptions{
			Address:          address,
			BucketName:       p.opts.BucketName,
			Authenticator:    p.opts.Authenticator,
			Logger:           p.logger,
			ConnectTimeout:   p.opts.ConnectTimeout,
			OperationTimeout: p.opts.OperationTimeout,
			Dialer:           p.opts.Dialer,
		})
		if err != nil {
			if errors.Is(err, ErrAuthenticationFailed) {
				// bad credentials will not improve with retrying
				return backoff.Permanent(err)
			}

			p.logger.Warn("failed to connect to node",
				zap.Error(err),
				zap.String("address", address))
			return err
		}

		conn = newConn
		return nil
	}

	b := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	if err := backoff.Retry(dialOne, b); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		_ = conn.Close()
		return nil, ErrConnectionClosed
	}

	if racedConn := p.conns[address]; racedConn != nil && racedConn.IsReady() {
		// someone else dialed the same node while we were connecting
		_ = conn.Close()
		return racedConn, nil
	}

	p.conns[address] = conn
	return conn, nil
}

// Close shuts down every owned connection.  The pool is unusable
// afterwards.
func (p *KvPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	conns := p.conns
	p.conns = nil
	p.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
	return nil
}
