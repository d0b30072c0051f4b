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
	"sort"

	"github.com/cespare/xxhash/v2"
)

// ringPointsPerNode spreads every node across the ring for an even key
// distribution.  Changing this value remaps keys, so it is fixed.
const ringPointsPerNode = 160

type ringPoint struct {
	hash    uint64
	nodeIdx int
}

// KeyMapper deterministically routes keys to nodes for one configuration
// snapshot.  It is a pure function of (key, config): no hidden state, no
// randomness, so two mappers built from equal configs agree on every key.
// Mapping uses a ketama-style consistent ring of xxhash64 points, which
// also keeps most keys in place across topology changes.
type KeyMapper struct {
	nodes []Node
	ring  []ringPoint
}

func NewKeyMapper(config *ClusterConfig) *KeyMapper {
	ring := make([]ringPoint, 0, len(config.Nodes)*ringPointsPerNode)
	for nodeIdx, node := range config.Nodes {
		for pointIdx := 0; pointIdx < ringPointsPerNode; pointIdx++ {
			pointHash := xxhash.Sum64String(fmt.Sprintf("%s#%d", node.Address, pointIdx))
			ring = append(ring, ringPoint{
				hash:    pointHash,
				nodeIdx: nodeIdx,
			})
		}
	}

	sort.Slice(ring, func(i, j int) bool {
		if ring[i].hash != ring[j].hash {
			return ring[i].hash < ring[j].hash
		}
		// identical point hashes are possible in principle; order by node
		// so the ring stays deterministic
		return ring[i].nodeIdx < ring[j].nodeIdx
	})

	return &KeyMapper{
		nodes: config.Nodes,
		ring:  ring,
	}
}

// MapKey resolves the primary node for a key plus a fallback ordering of
// the remaining distinct nodes walking the ring clockwise.
func (m *KeyMapper) MapKey(key []byte) (Node, []Node, error) {
	if len(m.nodes) == 0 {
		return Node{}, nil, ErrTopologyUnavailable
	}

	keyHash := xxhash.Sum64(key)

	startIdx := sort.Search(len(m.ring), func(i int) bool {
		return m.ring[i].hash >= keyHash
	})
	if startIdx == len(m.ring) {
		startIdx = 0
	}

	primary := m.nodes[m.ring[startIdx].nodeIdx]

	seen := make(map[int]struct{}, len(m.nodes))
	seen[m.ring[startIdx].nodeIdx] = struct{}{}

	var fallbacks []Node
	for i := 1; i < len(m.ring) && len(seen) < len(m.nodes); i++ {
		point := m.ring[(startIdx+i)%len(m.ring)]
		if _, ok := seen[point.nodeIdx]; ok {
			continue
		}
		seen[point.nodeIdx] = struct{}{}
		fallbacks = append(fallbacks, m.nodes[point.nodeIdx])
	}

	return primary, fallbacks, nil
}
