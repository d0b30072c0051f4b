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
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tomap/couchbase-net-client/operations"
)

// Counter defaults applied by the no-argument Increment and Decrement
// forms.
const (
	DefaultCounterDelta   uint64 = 1
	DefaultCounterInitial uint64 = 1
	DefaultCounterExpiry  uint32 = 0
)

// dispatcher is the slice of KvConnection that Bucket needs.
type dispatcher interface {
	Execute(ctx context.Context, op operations.Operation) error
}

// connectionProvider is the slice of KvPool that Bucket needs.
type connectionProvider interface {
	GetConnection(ctx context.Context, address string) (dispatcher, error)
	Close() error
}

// poolProvider adapts KvPool's concrete return type to the provider
// interface.
type poolProvider struct {
	pool *KvPool
}

func (p poolProvider) GetConnection(ctx context.Context, address string) (dispatcher, error) {
	return p.pool.GetConnection(ctx, address)
}

func (p poolProvider) Close() error {
	return p.pool.Close()
}

// bucketOwner is how a Bucket unregisters itself on disposal.
type bucketOwner interface {
	unregisterBucket(b *Bucket)
}

// routeSnapshot pairs a config with the mapper derived from it so a
// request observes one consistent view of the topology.
type routeSnapshot struct {
	config *ClusterConfig
	mapper *KeyMapper
}

// Bucket is the public key-value surface over one named bucket.  Every
// keyed call resolves the owning node from the current topology snapshot
// and dispatches on a Ready connection to that node.  Operations this
// client variant does not support fail fast with ErrUnsupportedOperation.
type Bucket struct {
	logger  *zap.Logger
	name    string
	owner   bucketOwner
	pool    connectionProvider
	metrics *Metrics

	routing   atomic.Pointer[routeSnapshot]
	readyCh   chan struct{}
	readyOnce sync.Once

	watchDoneCh chan struct{}

	disposed    atomic.Bool
	disposeOnce sync.Once
}

type bucketOptions struct {
	Name      string
	Owner     bucketOwner
	Pool      connectionProvider
	ConfigMgr *ConfigManager
	Logger    *zap.Logger
}

func newBucket(opts bucketOptions) *Bucket {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Bucket{
		logger:      logger,
		name:        opts.Name,
		owner:       opts.Owner,
		pool:        opts.Pool,
		metrics:     GetMetrics(),
		readyCh:     make(chan struct{}),
		watchDoneCh: make(chan struct{}),
	}

	if opts.ConfigMgr != nil {
		if config := opts.ConfigMgr.Current(); config != nil {
			b.applyRouting(config)
		}
		go b.watchThread(opts.ConfigMgr.Watch())
	} else {
		close(b.watchDoneCh)
	}

	return b
}

// Name returns the bucket name.
func (b *Bucket) Name() string {
	return b.name
}

func (b *Bucket) applyRouting(config *ClusterConfig) {
	b.routing.Store(&routeSnapshot{
		config: config,
		mapper: NewKeyMapper(config),
	})
	b.readyOnce.Do(func() {
		close(b.readyCh)
	})

	b.logger.Debug("bucket routing updated",
		zap.String("bucket", b.name),
		zap.Stringer("revision", config.Revision),
		zap.Int("numNodes", len(config.Nodes)))
}

func (b *Bucket) watchThread(configCh <-chan *ClusterConfig) {
	defer close(b.watchDoneCh)

	for config := range configCh {
		b.applyRouting(config)
	}
}

// WaitUntilReady blocks until a first topology snapshot arrives, after
// which keys can be routed.
func (b *Bucket) WaitUntilReady(ctx context.Context) error {
	select {
	case <-b.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// execute routes one keyed operation: snapshot the topology, map the key,
// dispatch on the primary node.  If no Ready connection to the primary can
// be obtained, the ring's fallback nodes are tried in order.
func (b *Bucket) execute(ctx context.Context, key []byte, op operations.Operation) error {
	if b.disposed.Load() {
		return ErrBucketClosed
	}

	snapshot := b.routing.Load()
	if snapshot == nil {
		return ErrTopologyUnavailable
	}

	primary, fallbacks, err := snapshot.mapper.MapKey(key)
	if err != nil {
		return err
	}

	start := time.Now()
	err = b.executeOn(ctx, primary, fallbacks, op)

	status := "ok"
	if err != nil {
		status = "error"
	}
	opName := op.Command().Name()
	b.metrics.IncOperation(opName, status)
	b.metrics.ObserveOperationDuration(opName, time.Since(start).Seconds())

	return err
}

func (b *Bucket) executeOn(ctx context.Context, primary Node, fallbacks []Node, op operations.Operation) error {
	conn, err := b.pool.GetConnection(ctx, primary.Address)
	if err == nil {
		return conn.Execute(ctx, op)
	}

	for _, node := range fallbacks {
		b.logger.Debug("primary node unavailable, trying fallback",
			zap.String("bucket", b.name),
			zap.String("primary", primary.Address),
			zap.String("fallback", node.Address))

		conn, fbErr := b.pool.GetConnection(ctx, node.Address)
		if fbErr != nil {
			continue
		}
		return conn.Execute(ctx, op)
	}

	// report the primary's failure, not the last fallback's
	return err
}

// Get fetches a document.
func (b *Bucket) Get(ctx context.Context, key string) (operations.OperationResult[operations.GetValue], error) {
	op := operations.NewGet([]byte(key))
	if err := b.execute(ctx, op.Key, op); err != nil {
		return operations.OperationResult[operations.GetValue]{}, err
	}

	if op.Result.Success {
		content, datatype, err := MaybeDecompressValue(op.Result.Value.Content, op.Result.Value.Datatype)
		if err != nil {
			return operations.OperationResult[operations.GetValue]{}, err
		}
		op.Result.Value.Content = content
		op.Result.Value.Datatype = datatype
	}

	return op.Result, nil
}

// Upsert stores a document whether or not it already exists.
func (b *Bucket) Upsert(ctx context.Context, key string, value []byte, flags, expiry uint32) (operations.OperationResult[struct{}], error) {
	op := operations.NewSet([]byte(key), nil, flags, expiry)
	op.Value, op.Datatype = MaybeCompressValue(value, 0)
	if err := b.execute(ctx, op.Key, op); err != nil {
		return operations.OperationResult[struct{}]{}, err
	}
	return op.Result, nil
}

// Insert stores a document only if the key does not exist; an existing key
// yields a key-exists result.
func (b *Bucket) Insert(ctx context.Context, key string, value []byte, flags, expiry uint32) (operations.OperationResult[struct{}], error) {
	op := operations.NewAdd([]byte(key), nil, flags, expiry)
	op.Value, op.Datatype = MaybeCompressValue(value, 0)
	if err := b.execute(ctx, op.Key, op); err != nil {
		return operations.OperationResult[struct{}]{}, err
	}
	return op.Result, nil
}

// Replace stores a document only if the key exists.  A non-zero cas
// additionally requires the stored document to be unchanged.
func (b *Bucket) Replace(ctx context.Context, key string, value []byte, flags, expiry uint32, cas uint64) (operations.OperationResult[struct{}], error) {
	op := operations.NewReplace([]byte(key), nil, flags, expiry, cas)
	op.Value, op.Datatype = MaybeCompressValue(value, 0)
	if err := b.execute(ctx, op.Key, op); err != nil {
		return operations.OperationResult[struct{}]{}, err
	}
	return op.Result, nil
}

// Remove deletes a document.
func (b *Bucket) Remove(ctx context.Context, key string, cas uint64) (operations.OperationResult[struct{}], error) {
	op := operations.NewDelete([]byte(key), cas)
	if err := b.execute(ctx, op.Key, op); err != nil {
		return operations.OperationResult[struct{}]{}, err
	}
	return op.Result, nil
}

// Touch updates a document's expiry without touching its value.
func (b *Bucket) Touch(ctx context.Context, key string, expiry uint32) (operations.OperationResult[struct{}], error) {
	op := operations.NewTouch([]byte(key), expiry)
	if err := b.execute(ctx, op.Key, op); err != nil {
		return operations.OperationResult[struct{}]{}, err
	}
	return op.Result, nil
}

// Append concatenates raw bytes after an existing document's value.
func (b *Bucket) Append(ctx context.Context, key string, value []byte, cas uint64) (operations.OperationResult[struct{}], error) {
	op := operations.NewAppend([]byte(key), value, cas)
	if err := b.execute(ctx, op.Key, op); err != nil {
		return operations.OperationResult[struct{}]{}, err
	}
	return op.Result, nil
}

// Prepend concatenates raw bytes before an existing document's value.
func (b *Bucket) Prepend(ctx context.Context, key string, value []byte, cas uint64) (operations.OperationResult[struct{}], error) {
	op := operations.NewPrepend([]byte(key), value, cas)
	if err := b.execute(ctx, op.Key, op); err != nil {
		return operations.OperationResult[struct{}]{}, err
	}
	return op.Result, nil
}

// IncrementBy adds delta to a counter.  A missing key is seeded with
// initial, not initial plus delta, unless expiry is
// operations.NoCreateExpiry.
func (b *Bucket) IncrementBy(ctx context.Context, key string, delta, initial uint64, expiry uint32) (operations.OperationResult[uint64], error) {
	op := operations.NewIncrement([]byte(key), delta, initial, expiry)
	if err := b.execute(ctx, op.Key, op); err != nil {
		return operations.OperationResult[uint64]{}, err
	}
	return op.Result, nil
}

// Increment is IncrementBy with delta 1, initial 1 and no expiry.
func (b *Bucket) Increment(ctx context.Context, key string) (operations.OperationResult[uint64], error) {
	return b.IncrementBy(ctx, key, DefaultCounterDelta, DefaultCounterInitial, DefaultCounterExpiry)
}

// DecrementBy subtracts delta from a counter; the server floors the result
// at zero.
func (b *Bucket) DecrementBy(ctx context.Context, key string, delta, initial uint64, expiry uint32) (operations.OperationResult[uint64], error) {
	op := operations.NewDecrement([]byte(key), delta, initial, expiry)
	if err := b.execute(ctx, op.Key, op); err != nil {
		return operations.OperationResult[uint64]{}, err
	}
	return op.Result, nil
}

// Decrement is DecrementBy with delta 1, initial 1 and no expiry.
func (b *Bucket) Decrement(ctx context.Context, key string) (operations.OperationResult[uint64], error) {
	return b.DecrementBy(ctx, key, DefaultCounterDelta, DefaultCounterInitial, DefaultCounterExpiry)
}

// ViewQuery is not supported by this client variant.
func (b *Bucket) ViewQuery(ctx context.Context, designDoc, viewName string) error {
	return ErrUnsupportedOperation
}

// Query is not supported by this client variant.
func (b *Bucket) Query(ctx context.Context, statement string) error {
	return ErrUnsupportedOperation
}

// Dispose releases the bucket: it unregisters from the owning cluster
// exactly once, detaches the config subscription and closes the
// connection pool.  Safe to call repeatedly.
func (b *Bucket) Dispose() {
	b.disposeOnce.Do(func() {
		b.disposed.Store(true)
		if b.owner != nil {
			b.owner.unregisterBucket(b)
		}
		if err := b.pool.Close(); err != nil {
			b.logger.Debug("failed to close connection pool", zap.Error(err))
		}
	})
}
