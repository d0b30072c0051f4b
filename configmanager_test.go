package couchbase

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(epoch, rev uint64, addresses ...string) *ClusterConfig {
	nodes := make([]Node, 0, len(addresses))
	for _, address := range addresses {
		nodes = append(nodes, Node{Address: address})
	}

	return &ClusterConfig{
		Revision:   Revision{Epoch: epoch, Rev: rev},
		BucketName: "default",
		Nodes:      nodes,
	}
}

func TestConfigManagerAppliesNewerConfig(t *testing.T) {
	mgr := NewConfigManager(ConfigManagerOptions{})
	defer mgr.Close()

	assert.Nil(t, mgr.Current())

	assert.True(t, mgr.ApplyConfig(testConfig(1, 1, "a:11210")))
	require.NotNil(t, mgr.Current())
	assert.Equal(t, Revision{Epoch: 1, Rev: 1}, mgr.Current().Revision)

	assert.True(t, mgr.ApplyConfig(testConfig(1, 2, "a:11210", "b:11210")))
	assert.Equal(t, Revision{Epoch: 1, Rev: 2}, mgr.Current().Revision)
}

func TestConfigManagerRejectsStaleConfig(t *testing.T) {
	mgr := NewConfigManager(ConfigManagerOptions{})
	defer mgr.Close()

	require.True(t, mgr.ApplyConfig(testConfig(1, 5, "a:11210", "b:11210")))

	// delivered out of order, must not displace the newer snapshot
	assert.False(t, mgr.ApplyConfig(testConfig(1, 4, "a:11210")))
	assert.False(t, mgr.ApplyConfig(testConfig(1, 5, "a:11210")))

	assert.Equal(t, Revision{Epoch: 1, Rev: 5}, mgr.Current().Revision)
	assert.Len(t, mgr.Current().Nodes, 2)

	// an epoch bump wins even with a lower rev
	assert.True(t, mgr.ApplyConfig(testConfig(2, 1, "c:11210")))
	assert.Equal(t, Revision{Epoch: 2, Rev: 1}, mgr.Current().Revision)
}

func TestConfigManagerWatch(t *testing.T) {
	mgr := NewConfigManager(ConfigManagerOptions{})
	defer mgr.Close()

	watchCh := mgr.Watch()

	require.True(t, mgr.ApplyConfig(testConfig(1, 1, "a:11210")))

	select {
	case config := <-watchCh:
		assert.Equal(t, Revision{Epoch: 1, Rev: 1}, config.Revision)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for config")
	}
}

func TestConfigManagerWatchDropsOvertakenConfigs(t *testing.T) {
	mgr := NewConfigManager(ConfigManagerOptions{})
	defer mgr.Close()

	watchCh := mgr.Watch()

	// the subscriber is not reading yet, so later pushes overtake earlier
	// ones
	for rev := uint64(1); rev <= 5; rev++ {
		require.True(t, mgr.ApplyConfig(testConfig(1, rev, "a:11210")))
	}

	var lastSeen *ClusterConfig
	deadline := time.After(time.Second)
	for lastSeen == nil || lastSeen.Revision.Rev != 5 {
		select {
		case config := <-watchCh:
			if lastSeen != nil {
				assert.Equal(t, 1, config.Revision.Compare(lastSeen.Revision))
			}
			lastSeen = config
		case <-deadline:
			t.Fatal("timed out waiting for final config")
		}
	}
}

func TestConfigManagerConcurrentReaders(t *testing.T) {
	mgr := NewConfigManager(ConfigManagerOptions{})
	defer mgr.Close()

	require.True(t, mgr.ApplyConfig(testConfig(1, 1, "a:11210")))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				config := mgr.Current()
				require.NotNil(t, config)
				require.NotEmpty(t, config.Nodes)
			}
		}()
	}

	for rev := uint64(2); rev <= 50; rev++ {
		mgr.ApplyConfig(testConfig(1, rev, "a:11210", "b:11210"))
	}
	wg.Wait()
}

func TestConfigManagerWatchAfterClose(t *testing.T) {
	mgr := NewConfigManager(ConfigManagerOptions{})
	mgr.Close()

	watchCh := mgr.Watch()
	select {
	case _, ok := <-watchCh:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("expected a closed channel")
	}
}
