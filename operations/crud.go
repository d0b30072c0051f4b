package operations

import (
	"encoding/binary"
	"fmt"

	"github.com/tomap/couchbase-net-client/memd"
)

// GetValue is the payload of a successful read.
type GetValue struct {
	Content  []byte
	Flags    uint32
	Datatype memd.DatatypeFlag
}

type GetOperation struct {
	Key []byte

	Result OperationResult[GetValue]
}

func NewGet(key []byte) *GetOperation {
	return &GetOperation{Key: key}
}

func (o *GetOperation) Command() memd.CmdCode { return memd.CmdGet }

func (o *GetOperation) Encode(opaque uint32) (*memd.Packet, error) {
	return &memd.Packet{
		Magic:   memd.CmdMagicReq,
		Command: memd.CmdGet,
		Opaque:  opaque,
		Key:     o.Key,
	}, nil
}

func (o *GetOperation) Decode(resp *memd.Packet) error {
	if err := checkResponse(memd.CmdGet, resp); err != nil {
		return err
	}

	o.Result.readStatus(resp)
	if !o.Result.Success {
		return nil
	}

	if len(resp.Extras) < 4 {
		return fmt.Errorf("%w: get response missing flags extras", memd.ErrProtocolDecode)
	}

	o.Result.Value = GetValue{
		Content:  resp.Value,
		Flags:    binary.BigEndian.Uint32(resp.Extras[0:]),
		Datatype: memd.DatatypeFlag(resp.Datatype),
	}
	return nil
}

// StoreOperation covers the Set, Add, Replace, Append and Prepend verbs.
// The verbs differ only in command code and whether flags/expiry extras are
// carried, so they share one representation rather than a type hierarchy.
type StoreOperation struct {
	command  memd.CmdCode
	Key      []byte
	Value    []byte
	Flags    uint32
	Expiry   uint32
	Cas      uint64
	Datatype memd.DatatypeFlag

	Result OperationResult[struct{}]
}

func NewSet(key, value []byte, flags, expiry uint32) *StoreOperation {
	return &StoreOperation{command: memd.CmdSet, Key: key, Value: value, Flags: flags, Expiry: expiry}
}

func NewAdd(key, value []byte, flags, expiry uint32) *StoreOperation {
	return &StoreOperation{command: memd.CmdAdd, Key: key, Value: value, Flags: flags, Expiry: expiry}
}

func NewReplace(key, value []byte, flags, expiry uint32, cas uint64) *StoreOperation {
	return &StoreOperation{command: memd.CmdReplace, Key: key, Value: value, Flags: flags, Expiry: expiry, Cas: cas}
}

func NewAppend(key, value []byte, cas uint64) *StoreOperation {
	return &StoreOperation{command: memd.CmdAppend, Key: key, Value: value, Cas: cas}
}

func NewPrepend(key, value []byte, cas uint64) *StoreOperation {
	return &StoreOperation{command: memd.CmdPrepend, Key: key, Value: value, Cas: cas}
}

func (o *StoreOperation) Command() memd.CmdCode { return o.command }

func (o *StoreOperation) hasExtras() bool {
	return o.command != memd.CmdAppend && o.command != memd.CmdPrepend
}

func (o *StoreOperation) Encode(opaque uint32) (*memd.Packet, error) {
	pak := &memd.Packet{
		Magic:    memd.CmdMagicReq,
		Command:  o.command,
		Datatype: uint8(o.Datatype),
		Opaque:   opaque,
		Cas:      o.Cas,
		Key:      o.Key,
		Value:    o.Value,
	}

	if o.hasExtras() {
		extras := make([]byte, 8)
		binary.BigEndian.PutUint32(extras[0:], o.Flags)
		binary.BigEndian.PutUint32(extras[4:], o.Expiry)
		pak.Extras = extras
	}

	return pak, nil
}

func (o *StoreOperation) Decode(resp *memd.Packet) error {
	if err := checkResponse(o.command, resp); err != nil {
		return err
	}

	o.Result.readStatus(resp)
	return nil
}

type DeleteOperation struct {
	Key []byte
	Cas uint64

	Result OperationResult[struct{}]
}

func NewDelete(key []byte, cas uint64) *DeleteOperation {
	return &DeleteOperation{Key: key, Cas: cas}
}

func (o *DeleteOperation) Command() memd.CmdCode { return memd.CmdDelete }

func (o *DeleteOperation) Encode(opaque uint32) (*memd.Packet, error) {
	return &memd.Packet{
		Magic:   memd.CmdMagicReq,
		Command: memd.CmdDelete,
		Opaque:  opaque,
		Cas:     o.Cas,
		Key:     o.Key,
	}, nil
}

func (o *DeleteOperation) Decode(resp *memd.Packet) error {
	if err := checkResponse(memd.CmdDelete, resp); err != nil {
		return err
	}

	o.Result.readStatus(resp)
	return nil
}

type TouchOperation struct {
	Key    []byte
	Expiry uint32

	Result OperationResult[struct{}]
}

func NewTouch(key []byte, expiry uint32) *TouchOperation {
	return &TouchOperation{Key: key, Expiry: expiry}
}

func (o *TouchOperation) Command() memd.CmdCode { return memd.CmdTouch }

func (o *TouchOperation) Encode(opaque uint32) (*memd.Packet, error) {
	extras := make([]byte, 4)
	binary.BigEndian.PutUint32(extras, o.Expiry)

	return &memd.Packet{
		Magic:   memd.CmdMagicReq,
		Command: memd.CmdTouch,
		Opaque:  opaque,
		Key:     o.Key,
		Extras:  extras,
	}, nil
}

func (o *TouchOperation) Decode(resp *memd.Packet) error {
	if err := checkResponse(memd.CmdTouch, resp); err != nil {
		return err
	}

	o.Result.readStatus(resp)
	return nil
}
