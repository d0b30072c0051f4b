package operations

import (
	"encoding/binary"
	"fmt"

	"github.com/tomap/couchbase-net-client/memd"
)

// NoCreateExpiry is the sentinel expiry which instructs the server not to
// seed a missing counter.  Distinct from 0, which stores the initial value
// with no TTL.
const NoCreateExpiry uint32 = 0xffffffff

// CounterOperation covers Increment and Decrement.  The server seeds a
// missing key with Initial (not Initial plus Delta) unless Expiry is
// NoCreateExpiry, and decrements floor at zero server-side.
type CounterOperation struct {
	command memd.CmdCode
	Key     []byte
	Delta   uint64
	Initial uint64
	Expiry  uint32

	Result OperationResult[uint64]
}

func NewIncrement(key []byte, delta, initial uint64, expiry uint32) *CounterOperation {
	return &CounterOperation{command: memd.CmdIncrement, Key: key, Delta: delta, Initial: initial, Expiry: expiry}
}

func NewDecrement(key []byte, delta, initial uint64, expiry uint32) *CounterOperation {
	return &CounterOperation{command: memd.CmdDecrement, Key: key, Delta: delta, Initial: initial, Expiry: expiry}
}

func (o *CounterOperation) Command() memd.CmdCode { return o.command }

func (o *CounterOperation) Encode(opaque uint32) (*memd.Packet, error) {
	extras := make([]byte, 20)
	binary.BigEndian.PutUint64(extras[0:], o.Delta)
	binary.BigEndian.PutUint64(extras[8:], o.Initial)
	binary.BigEndian.PutUint32(extras[16:], o.Expiry)

	return &memd.Packet{
		Magic:   memd.CmdMagicReq,
		Command: o.command,
		Opaque:  opaque,
		Key:     o.Key,
		Extras:  extras,
	}, nil
}

func (o *CounterOperation) Decode(resp *memd.Packet) error {
	if err := checkResponse(o.command, resp); err != nil {
		return err
	}

	o.Result.readStatus(resp)
	if !o.Result.Success {
		return nil
	}

	if len(resp.Value) != 8 {
		return fmt.Errorf("%w: counter response value must be 8 bytes, got %d",
			memd.ErrProtocolDecode, len(resp.Value))
	}

	o.Result.Value = binary.BigEndian.Uint64(resp.Value)
	return nil
}
