package operations

import (
	"strings"

	"github.com/tomap/couchbase-net-client/memd"
)

type SaslListMechsOperation struct {
	Result OperationResult[[]string]
}

func NewSaslListMechs() *SaslListMechsOperation {
	return &SaslListMechsOperation{}
}

func (o *SaslListMechsOperation) Command() memd.CmdCode { return memd.CmdSASLListMechs }

func (o *SaslListMechsOperation) Encode(opaque uint32) (*memd.Packet, error) {
	return &memd.Packet{
		Magic:   memd.CmdMagicReq,
		Command: memd.CmdSASLListMechs,
		Opaque:  opaque,
	}, nil
}

func (o *SaslListMechsOperation) Decode(resp *memd.Packet) error {
	if err := checkResponse(memd.CmdSASLListMechs, resp); err != nil {
		return err
	}

	o.Result.readStatus(resp)
	if !o.Result.Success {
		return nil
	}

	o.Result.Value = strings.Fields(string(resp.Value))
	return nil
}

// SaslExchangeOperation covers both SASL_AUTH and SASL_STEP.  The verbs
// share a frame shape (mechanism in the key, payload in the value) and only
// the command code differs, so a single representation carries both ends of
// the challenge/response loop.
type SaslExchangeOperation struct {
	command memd.CmdCode
	Mech    string
	Payload []byte

	// Result.Value holds the server challenge when the status is
	// auth-continue, or the server-final data on success.
	Result OperationResult[[]byte]
}

func NewSaslAuth(mech string, payload []byte) *SaslExchangeOperation {
	return &SaslExchangeOperation{command: memd.CmdSASLAuth, Mech: mech, Payload: payload}
}

func NewSaslStep(mech string, payload []byte) *SaslExchangeOperation {
	return &SaslExchangeOperation{command: memd.CmdSASLStep, Mech: mech, Payload: payload}
}

func (o *SaslExchangeOperation) Command() memd.CmdCode { return o.command }

func (o *SaslExchangeOperation) Encode(opaque uint32) (*memd.Packet, error) {
	return &memd.Packet{
		Magic:   memd.CmdMagicReq,
		Command: o.command,
		Opaque:  opaque,
		Key:     []byte(o.Mech),
		Value:   o.Payload,
	}, nil
}

func (o *SaslExchangeOperation) Decode(resp *memd.Packet) error {
	if err := checkResponse(o.command, resp); err != nil {
		return err
	}

	o.Result.readStatus(resp)

	// auth-continue and success both carry server data in the value
	if o.Result.Status == memd.StatusSuccess || o.Result.Status == memd.StatusAuthContinue {
		o.Result.Value = resp.Value
		o.Result.Message = ""
	}
	return nil
}

// NeedsMore indicates the server expects another SASL_STEP round.
func (o *SaslExchangeOperation) NeedsMore() bool {
	return o.Result.Status == memd.StatusAuthContinue
}
