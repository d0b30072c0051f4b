package couchbase

import (
	"fmt"

	"github.com/tomap/couchbase-net-client/cbconfig"
)

// Revision identifies a configuration snapshot.  The epoch resets the rev
// counter when a cluster is rebuilt, so comparison is epoch-major.
type Revision struct {
	Epoch uint64
	Rev   uint64
}

// Compare returns 0 if r == o, -1 if r < o, and +1 if r > o.
func (r Revision) Compare(o Revision) int {
	if r.Epoch != o.Epoch {
		if r.Epoch < o.Epoch {
			return -1
		}
		return 1
	}
	if r.Rev != o.Rev {
		if r.Rev < o.Rev {
			return -1
		}
		return 1
	}
	return 0
}

func (r Revision) String() string {
	return fmt.Sprintf("%d:%d", r.Epoch, r.Rev)
}

// Node describes one data node of the cluster.
type Node struct {
	// Address is the host:port of the node's data service.
	Address string
	// UUID identifies the node across address changes, when known.
	UUID string
}

// ClusterConfig is an immutable topology snapshot.  It is replaced
// wholesale on every accepted push and must never be mutated in place;
// every reader holding a pointer may assume it is frozen.
type ClusterConfig struct {
	Revision   Revision
	BucketName string
	Nodes      []Node
}

// ConfigFromTerseJson converts a fetched terse configuration into a
// snapshot, keeping only nodes which run the data service.
func ConfigFromTerseJson(config *cbconfig.TerseConfigJson) (*ClusterConfig, error) {
	var nodes []Node
	for _, nodeJson := range config.NodesExt {
		kvPort, ok := nodeJson.Services["kv"]
		if !ok {
			continue
		}

		nodes = append(nodes, Node{
			Address: fmt.Sprintf("%s:%d", nodeJson.Hostname, kvPort),
			UUID:    nodeJson.UUID,
		})
	}

	return &ClusterConfig{
		Revision: Revision{
			Epoch: config.RevEpoch,
			Rev:   config.Rev,
		},
		BucketName: config.Name,
		Nodes:      nodes,
	}, nil
}
