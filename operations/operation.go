/*
Copyright 2023-Present Couchbase, Inc.

Use of this software is governed by the Business Source License included in
the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
file, in accordance with the Business Source License, use of this software will
be governed by the Apache License, Version 2.0, included in the file
licenses/APL2.txt.
*/

// Package operations maps protocol verbs onto encodable requests and typed
// decodable results.  Operations are created per call and must not be
// reused once dispatched.
package operations

import (
	"fmt"

	"github.com/tomap/couchbase-net-client/memd"
)

// Operation is a single protocol exchange.  Encode produces the request
// packet for a given opaque, Decode populates the operation's result from
// the correlated response.
type Operation interface {
	Command() memd.CmdCode
	Encode(opaque uint32) (*memd.Packet, error)
	Decode(resp *memd.Packet) error
}

// OperationResult carries the outcome of an exchange.  Success implies the
// status indicates no error and, for reads, that Value is populated.
// Expected server-side conditions such as key-not-found are represented
// here rather than as dispatch errors.
type OperationResult[T any] struct {
	Success bool
	Status  memd.StatusCode
	Cas     uint64
	Value   T
	Message string
}

func (r *OperationResult[T]) readStatus(resp *memd.Packet) {
	r.Status = resp.Status
	r.Cas = resp.Cas
	r.Success = resp.Status == memd.StatusSuccess

	if !r.Success && len(resp.Value) > 0 {
		// the server reports error details in the value segment
		r.Message = string(resp.Value)
	}
}

func checkResponse(cmd memd.CmdCode, resp *memd.Packet) error {
	if resp.Magic != memd.CmdMagicRes {
		return fmt.Errorf("%w: expected response magic, got 0x%02x",
			memd.ErrProtocolDecode, uint8(resp.Magic))
	}
	if resp.Command != cmd {
		return fmt.Errorf("%w: response command %s does not match request %s",
			memd.ErrProtocolDecode, resp.Command.Name(), cmd.Name())
	}
	return nil
}
