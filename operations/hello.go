package operations

import (
	"encoding/binary"
	"fmt"

	"github.com/tomap/couchbase-net-client/memd"
)

// HelloFeature is a negotiable connection capability.
type HelloFeature uint16

const (
	FeatureDatatype   HelloFeature = 0x01
	FeatureTCPNoDelay HelloFeature = 0x03
	FeatureXattr      HelloFeature = 0x06
	FeatureXerror     HelloFeature = 0x07
	FeatureSnappy     HelloFeature = 0x0a
	FeatureJSON       HelloFeature = 0x0b
)

// HelloOperation negotiates connection features.  The client name is an
// identifier string echoed in server logs; the result carries the subset of
// requested features the server agreed to.
type HelloOperation struct {
	ClientName string
	Features   []HelloFeature

	Result OperationResult[[]HelloFeature]
}

func NewHello(clientName string, features []HelloFeature) *HelloOperation {
	return &HelloOperation{ClientName: clientName, Features: features}
}

func (o *HelloOperation) Command() memd.CmdCode { return memd.CmdHello }

func (o *HelloOperation) Encode(opaque uint32) (*memd.Packet, error) {
	value := make([]byte, 2*len(o.Features))
	for i, feat := range o.Features {
		binary.BigEndian.PutUint16(value[i*2:], uint16(feat))
	}

	return &memd.Packet{
		Magic:   memd.CmdMagicReq,
		Command: memd.CmdHello,
		Opaque:  opaque,
		Key:     []byte(o.ClientName),
		Value:   value,
	}, nil
}

func (o *HelloOperation) Decode(resp *memd.Packet) error {
	if err := checkResponse(memd.CmdHello, resp); err != nil {
		return err
	}

	o.Result.readStatus(resp)
	if !o.Result.Success {
		return nil
	}

	if len(resp.Value)%2 != 0 {
		return fmt.Errorf("%w: hello response must be a list of 16-bit features",
			memd.ErrProtocolDecode)
	}

	features := make([]HelloFeature, 0, len(resp.Value)/2)
	for i := 0; i < len(resp.Value); i += 2 {
		features = append(features, HelloFeature(binary.BigEndian.Uint16(resp.Value[i:])))
	}
	o.Result.Value = features
	return nil
}

type SelectBucketOperation struct {
	BucketName string

	Result OperationResult[struct{}]
}

func NewSelectBucket(bucketName string) *SelectBucketOperation {
	return &SelectBucketOperation{BucketName: bucketName}
}

func (o *SelectBucketOperation) Command() memd.CmdCode { return memd.CmdSelectBucket }

func (o *SelectBucketOperation) Encode(opaque uint32) (*memd.Packet, error) {
	return &memd.Packet{
		Magic:   memd.CmdMagicReq,
		Command: memd.CmdSelectBucket,
		Opaque:  opaque,
		Key:     []byte(o.BucketName),
	}, nil
}

func (o *SelectBucketOperation) Decode(resp *memd.Packet) error {
	if err := checkResponse(memd.CmdSelectBucket, resp); err != nil {
		return err
	}

	o.Result.readStatus(resp)
	return nil
}

// NoopOperation is used as a connection liveness probe.
type NoopOperation struct {
	Result OperationResult[struct{}]
}

func NewNoop() *NoopOperation {
	return &NoopOperation{}
}

func (o *NoopOperation) Command() memd.CmdCode { return memd.CmdNoop }

func (o *NoopOperation) Encode(opaque uint32) (*memd.Packet, error) {
	return &memd.Packet{
		Magic:   memd.CmdMagicReq,
		Command: memd.CmdNoop,
		Opaque:  opaque,
	}, nil
}

func (o *NoopOperation) Decode(resp *memd.Packet) error {
	if err := checkResponse(memd.CmdNoop, resp); err != nil {
		return err
	}

	o.Result.readStatus(resp)
	return nil
}
