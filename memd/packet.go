/*
Copyright 2023-Present Couchbase, Inc.

Use of this software is governed by the Business Source License included in
the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
file, in accordance with the Business Source License, use of this software will
be governed by the Apache License, Version 2.0, included in the file
licenses/APL2.txt.
*/

// Package memd implements the framing layer of the memcached binary
// protocol.  The header layout is a compatibility contract with the server
// and must not change.
package memd

import "fmt"

// CmdMagic identifies the direction of a packet.
type CmdMagic uint8

const (
	CmdMagicReq CmdMagic = 0x80
	CmdMagicRes CmdMagic = 0x81
)

// CmdCode identifies a protocol verb.
type CmdCode uint8

const (
	CmdGet              CmdCode = 0x00
	CmdSet              CmdCode = 0x01
	CmdAdd              CmdCode = 0x02
	CmdReplace          CmdCode = 0x03
	CmdDelete           CmdCode = 0x04
	CmdIncrement        CmdCode = 0x05
	CmdDecrement        CmdCode = 0x06
	CmdNoop             CmdCode = 0x0a
	CmdAppend           CmdCode = 0x0e
	CmdPrepend          CmdCode = 0x0f
	CmdTouch            CmdCode = 0x1c
	CmdHello            CmdCode = 0x1f
	CmdSASLListMechs    CmdCode = 0x20
	CmdSASLAuth         CmdCode = 0x21
	CmdSASLStep         CmdCode = 0x22
	CmdSelectBucket     CmdCode = 0x89
	CmdGetClusterConfig CmdCode = 0xb5
)

func (c CmdCode) Name() string {
	switch c {
	case CmdGet:
		return "GET"
	case CmdSet:
		return "SET"
	case CmdAdd:
		return "ADD"
	case CmdReplace:
		return "REPLACE"
	case CmdDelete:
		return "DELETE"
	case CmdIncrement:
		return "INCREMENT"
	case CmdDecrement:
		return "DECREMENT"
	case CmdNoop:
		return "NOOP"
	case CmdAppend:
		return "APPEND"
	case CmdPrepend:
		return "PREPEND"
	case CmdTouch:
		return "TOUCH"
	case CmdHello:
		return "HELLO"
	case CmdSASLListMechs:
		return "SASL_LIST_MECHS"
	case CmdSASLAuth:
		return "SASL_AUTH"
	case CmdSASLStep:
		return "SASL_STEP"
	case CmdSelectBucket:
		return "SELECT_BUCKET"
	case CmdGetClusterConfig:
		return "GET_CLUSTER_CONFIG"
	}
	return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(c))
}

// DatatypeFlag describes the encoding of a packet value.
type DatatypeFlag uint8

const (
	DatatypeFlagJSON       DatatypeFlag = 0x01
	DatatypeFlagCompressed DatatypeFlag = 0x02
)

// Packet is a single protocol frame.  Vbucket is only meaningful on
// requests and Status only on responses; they share the same header bytes.
type Packet struct {
	Magic    CmdMagic
	Command  CmdCode
	Datatype uint8
	Status   StatusCode
	Vbucket  uint16
	Opaque   uint32
	Cas      uint64
	Key      []byte
	Extras   []byte
	Value    []byte
}

func (p *Packet) String() string {
	return fmt.Sprintf(
		"memd.Packet{Magic:%02x, Command:%02x(%s), Datatype:%02x, Status:%04x(%s), Opaque:%08x, Cas:%016x, KeyLen:%d, ExtrasLen:%d, ValueLen:%d}",
		uint8(p.Magic),
		uint8(p.Command),
		p.Command.Name(),
		p.Datatype,
		uint16(p.Status),
		p.Status.String(),
		p.Opaque,
		p.Cas,
		len(p.Key),
		len(p.Extras),
		len(p.Value))
}
