/*
Copyright 2023-Present Couchbase, Inc.

Use of this software is governed by the Business Source License included in
the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
file, in accordance with the Business Source License, use of this software will
be governed by the Apache License, Version 2.0, included in the file
licenses/APL2.txt.
*/

// Package couchbase implements a client for memcached buckets: binary
// protocol dispatch, SASL authentication, and revision-gated cluster
// configuration management with deterministic key routing.
package couchbase

import "errors"

var (
	// ErrTopologyUnavailable indicates no node could be resolved from the
	// current configuration.
	ErrTopologyUnavailable = errors.New("topology unavailable")

	// ErrCorrelationMismatch indicates a response arrived whose opaque
	// matches no in-flight request.  The connection is desynchronized and
	// must not be reused.
	ErrCorrelationMismatch = errors.New("response correlation mismatch")

	// ErrAuthenticationFailed indicates a terminal SASL failure.  The
	// connection is unusable until a fresh handshake succeeds.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrOperationTimeout indicates no correlated response arrived within
	// the operation deadline.  The connection is treated as suspect since
	// an unread response would desynchronize later correlation.
	ErrOperationTimeout = errors.New("operation timed out")

	// ErrUnsupportedOperation indicates a capability this client variant
	// does not offer, such as view or query requests against a memcached
	// bucket.
	ErrUnsupportedOperation = errors.New("operation not supported by this bucket type")

	// ErrConnectionNotReady indicates a keyed operation was dispatched on
	// a connection which has not completed authentication.
	ErrConnectionNotReady = errors.New("connection is not ready")

	// ErrConnectionClosed indicates the connection was shut down while
	// operations were in flight.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrBucketClosed indicates use of a bucket after Dispose.
	ErrBucketClosed = errors.New("bucket has been closed")

	// ErrClusterClosed indicates use of a cluster after Close.
	ErrClusterClosed = errors.New("cluster has been closed")
)
