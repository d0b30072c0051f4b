package couchbase

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectRejectsBadConnStr(t *testing.T) {
	_, err := Connect("foobar://somewhere", ClusterOptions{})
	assert.Error(t, err)
}

func TestClusterBucketRegistry(t *testing.T) {
	cluster, err := Connect("http://127.0.0.1:8091", ClusterOptions{})
	require.NoError(t, err)
	defer func() {
		_ = cluster.Close()
	}()

	bucketA, err := cluster.Bucket("default")
	require.NoError(t, err)

	// a second open returns the same handle
	bucketB, err := cluster.Bucket("default")
	require.NoError(t, err)
	assert.Same(t, bucketA, bucketB)

	bucketOther, err := cluster.Bucket("other")
	require.NoError(t, err)
	assert.NotSame(t, bucketA, bucketOther)

	bucketA.Dispose()

	// disposal unregisters, so the next open is a fresh handle
	bucketC, err := cluster.Bucket("default")
	require.NoError(t, err)
	assert.NotSame(t, bucketA, bucketC)
}

func TestClusterClosed(t *testing.T) {
	cluster, err := Connect("http://127.0.0.1:8091", ClusterOptions{})
	require.NoError(t, err)

	bucket, err := cluster.Bucket("default")
	require.NoError(t, err)

	require.NoError(t, cluster.Close())

	_, err = cluster.Bucket("default")
	assert.ErrorIs(t, err, ErrClusterClosed)

	_, err = bucket.Get(context.Background(), "some-key")
	assert.ErrorIs(t, err, ErrBucketClosed)
}

func TestClusterFeedsConfigToBucket(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/pools/default/b/default", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "someuser", user)
		require.Equal(t, "somepass", pass)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"rev": 3,
			"revEpoch": 1,
			"name": "default",
			"nodeLocator": "ketama",
			"nodesExt": [
				{"hostname": "$HOST", "services": {"kv": 11210, "mgmt": 8091}}
			]
		}`)
	}))
	defer server.Close()

	cluster, err := Connect(server.URL, ClusterOptions{
		Username: "someuser",
		Password: "somepass",
	})
	require.NoError(t, err)
	defer func() {
		_ = cluster.Close()
	}()

	bucket, err := cluster.Bucket("default")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, bucket.WaitUntilReady(ctx))

	snapshot := bucket.routing.Load()
	require.NotNil(t, snapshot)
	assert.Equal(t, Revision{Epoch: 1, Rev: 3}, snapshot.config.Revision)
	require.Len(t, snapshot.config.Nodes, 1)
	assert.Equal(t, "127.0.0.1:11210", snapshot.config.Nodes[0].Address)
}
