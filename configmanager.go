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
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tomap/couchbase-net-client/utils/latestonlychannel"
)

type ConfigManagerOptions struct {
	Logger *zap.Logger
}

// ConfigManager holds the current ClusterConfig snapshot.  Reads are a
// single atomic load and never block; publication is serialized under a
// mutex and gated on a strictly greater revision, so a stale push can
// never displace a newer snapshot regardless of delivery order.
type ConfigManager struct {
	logger *zap.Logger

	currentConfig atomic.Pointer[ClusterConfig]

	publishMu sync.Mutex
	watchers  []chan *ClusterConfig
	closed    bool
}

func NewConfigManager(opts ConfigManagerOptions) *ConfigManager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ConfigManager{
		logger: logger,
	}
}

// Current returns the held snapshot, or nil before the first accepted
// push.  Safe for concurrent use alongside ApplyConfig.
func (m *ConfigManager) Current() *ClusterConfig {
	return m.currentConfig.Load()
}

// ApplyConfig publishes a new snapshot if its revision is strictly greater
// than the held one.  Returns whether the push was accepted; a stale push
// is an expected no-op, not an error.
func (m *ConfigManager) ApplyConfig(config *ClusterConfig) bool {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	if m.closed {
		return false
	}

	oldConfig := m.currentConfig.Load()
	if oldConfig != nil && config.Revision.Compare(oldConfig.Revision) <= 0 {
		m.logger.Debug("discarding stale config push",
			zap.Stringer("pushedRevision", config.Revision),
			zap.Stringer("heldRevision", oldConfig.Revision))
		return false
	}

	m.currentConfig.Store(config)

	m.logger.Debug("applied new cluster config",
		zap.Stringer("revision", config.Revision),
		zap.Int("numNodes", len(config.Nodes)))

	for _, watchCh := range m.watchers {
		watchCh <- config
	}

	return true
}

// Watch subscribes to accepted snapshots.  Delivery is latest-only: a slow
// consumer observes the newest snapshot rather than a backlog.  The
// returned channel closes when the manager closes.
func (m *ConfigManager) Watch() <-chan *ClusterConfig {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	watchCh := make(chan *ClusterConfig)
	outputCh := latestonlychannel.Wrap(watchCh)

	if m.closed {
		close(watchCh)
		return outputCh
	}

	m.watchers = append(m.watchers, watchCh)
	return outputCh
}

// Close releases all watcher channels.  Current remains readable with the
// last held snapshot.
func (m *ConfigManager) Close() {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	if m.closed {
		return
	}
	m.closed = true

	for _, watchCh := range m.watchers {
		close(watchCh)
	}
	m.watchers = nil
}
