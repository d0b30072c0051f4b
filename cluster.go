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
	"fmt"
	"sync"
	"time"

	"github.com/couchbaselabs/gocbconnstr"
	"go.uber.org/zap"

	"github.com/tomap/couchbase-net-client/cbconfig"
)

type ClusterOptions struct {
	Username string
	Password string
	Logger   *zap.Logger

	ConnectTimeout     time.Duration
	OperationTimeout   time.Duration
	ConfigPollInterval time.Duration
}

type bucketEntry struct {
	bucket     *Bucket
	watcher    *cbconfig.Watcher
	configMgr  *ConfigManager
	feedDoneCh chan struct{}
}

// Cluster owns the set of open buckets of one logical cluster.  Opening a
// bucket starts its config subscription and connection pool; disposing the
// bucket tears both down and unregisters it here.
type Cluster struct {
	logger *zap.Logger
	opts   ClusterOptions

	mgmtHosts []string

	mu      sync.Mutex
	buckets map[string]*bucketEntry
	closed  bool
}

// Connect parses and resolves a connection string ("couchbase://host1,host2")
// and returns a cluster handle.  No network traffic happens until a bucket
// is opened.
func Connect(connStr string, opts ClusterOptions) (*Cluster, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	spec, err := gocbconnstr.Parse(connStr)
	if err != nil {
		return nil, err
	}

	resolved, err := gocbconnstr.Resolve(spec)
	if err != nil {
		return nil, err
	}

	scheme := "http"
	if resolved.UseSsl {
		scheme = "https"
	}

	var mgmtHosts []string
	for _, address := range resolved.HttpHosts {
		mgmtHosts = append(mgmtHosts, fmt.Sprintf("%s://%s:%d", scheme, address.Host, address.Port))
	}
	if len(mgmtHosts) == 0 {
		return nil, fmt.Errorf("connection string %q resolved to no hosts", connStr)
	}

	opts.Logger = logger
	return &Cluster{
		logger:    logger,
		opts:      opts,
		mgmtHosts: mgmtHosts,
		buckets:   make(map[string]*bucketEntry),
	}, nil
}

// Bucket opens the named bucket, or returns the already-open handle.
func (c *Cluster) Bucket(bucketName string) (*Bucket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClusterClosed
	}

	if entry, ok := c.buckets[bucketName]; ok {
		return entry.bucket, nil
	}

	fetcher := cbconfig.NewFetcher(cbconfig.FetcherOptions{
		Host:     c.mgmtHosts[0],
		Username: c.opts.Username,
		Password: c.opts.Password,
		Logger:   c.logger,
	})

	watcher := cbconfig.NewWatcher(cbconfig.WatcherOptions{
		Fetcher:      fetcher,
		BucketName:   bucketName,
		PollInterval: c.opts.ConfigPollInterval,
		Logger:       c.logger,
	})

	configMgr := NewConfigManager(ConfigManagerOptions{
		Logger: c.logger,
	})

	pool := NewKvPool(KvPoolOptions{
		BucketName: bucketName,
		Authenticator: &PasswordAuthenticator{
			Username: c.opts.Username,
			Password: c.opts.Password,
		},
		Logger:           c.logger,
		ConnectTimeout:   c.opts.ConnectTimeout,
		OperationTimeout: c.opts.OperationTimeout,
	})

	entry := &bucketEntry{
		watcher:    watcher,
		configMgr:  configMgr,
		feedDoneCh: make(chan struct{}),
	}

	go c.feedThread(entry)

	entry.bucket = newBucket(bucketOptions{
		Name:      bucketName,
		Owner:     c,
		Pool:      poolProvider{pool: pool},
		ConfigMgr: configMgr,
		Logger:    c.logger,
	})

	c.buckets[bucketName] = entry
	return entry.bucket, nil
}

// feedThread translates fetched terse configs into snapshots and pushes
// them through the revision gate.
func (c *Cluster) feedThread(entry *bucketEntry) {
	defer close(entry.feedDoneCh)

	metrics := GetMetrics()
	for terseConfig := range entry.watcher.Configs() {
		config, err := ConfigFromTerseJson(terseConfig)
		if err != nil {
			c.logger.Warn("failed to translate fetched config", zap.Error(err))
			continue
		}

		accepted := entry.configMgr.ApplyConfig(config)
		metrics.IncConfigUpdate(accepted)
	}
}

func (c *Cluster) unregisterBucket(b *Bucket) {
	c.mu.Lock()
	entry, ok := c.buckets[b.Name()]
	if ok && entry.bucket == b {
		delete(c.buckets, b.Name())
	} else {
		entry = nil
	}
	c.mu.Unlock()

	if entry == nil {
		return
	}

	entry.watcher.Close()
	<-entry.feedDoneCh
	entry.configMgr.Close()
}

// Close disposes every open bucket.  The cluster handle is unusable
// afterwards.
func (c *Cluster) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	entries := make([]*bucketEntry, 0, len(c.buckets))
	for _, entry := range c.buckets {
		entries = append(entries, entry)
	}
	c.mu.Unlock()

	for _, entry := range entries {
		entry.bucket.Dispose()
	}
	return nil
}
