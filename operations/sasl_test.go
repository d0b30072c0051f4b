package operations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomap/couchbase-net-client/memd"
)

func TestSaslListMechsDecode(t *testing.T) {
	op := NewSaslListMechs()

	pak, err := op.Encode(1)
	require.NoError(t, err)
	assert.Equal(t, memd.CmdSASLListMechs, pak.Command)

	err = op.Decode(&memd.Packet{
		Magic:   memd.CmdMagicRes,
		Command: memd.CmdSASLListMechs,
		Status:  memd.StatusSuccess,
		Value:   []byte("PLAIN SCRAM-SHA1 SCRAM-SHA256 SCRAM-SHA512"),
	})
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"PLAIN", "SCRAM-SHA1", "SCRAM-SHA256", "SCRAM-SHA512"},
		op.Result.Value)
}

func TestSaslAuthContinue(t *testing.T) {
	op := NewSaslAuth("SCRAM-SHA256", []byte("n,,n=user,r=abc"))

	pak, err := op.Encode(1)
	require.NoError(t, err)
	assert.Equal(t, memd.CmdSASLAuth, pak.Command)
	assert.Equal(t, []byte("SCRAM-SHA256"), pak.Key)
	assert.Equal(t, []byte("n,,n=user,r=abc"), pak.Value)

	err = op.Decode(&memd.Packet{
		Magic:   memd.CmdMagicRes,
		Command: memd.CmdSASLAuth,
		Status:  memd.StatusAuthContinue,
		Value:   []byte("r=abcdef,s=salt,i=4096"),
	})
	require.NoError(t, err)

	assert.True(t, op.NeedsMore())
	assert.False(t, op.Result.Success)
	assert.Equal(t, []byte("r=abcdef,s=salt,i=4096"), op.Result.Value)
}

func TestSaslStepSuccess(t *testing.T) {
	op := NewSaslStep("SCRAM-SHA256", []byte("c=biws,r=abcdef,p=proof"))

	pak, err := op.Encode(2)
	require.NoError(t, err)
	assert.Equal(t, memd.CmdSASLStep, pak.Command)

	err = op.Decode(&memd.Packet{
		Magic:   memd.CmdMagicRes,
		Command: memd.CmdSASLStep,
		Status:  memd.StatusSuccess,
		Value:   []byte("v=signature"),
	})
	require.NoError(t, err)

	assert.False(t, op.NeedsMore())
	assert.True(t, op.Result.Success)
	assert.Equal(t, []byte("v=signature"), op.Result.Value)
}

func TestSaslAuthError(t *testing.T) {
	op := NewSaslAuth("PLAIN", []byte("\x00user\x00wrong"))

	err := op.Decode(&memd.Packet{
		Magic:   memd.CmdMagicRes,
		Command: memd.CmdSASLAuth,
		Status:  memd.StatusAuthError,
		Value:   []byte("Auth failure"),
	})
	require.NoError(t, err)

	assert.False(t, op.NeedsMore())
	assert.False(t, op.Result.Success)
	assert.Equal(t, memd.StatusAuthError, op.Result.Status)
	assert.Equal(t, "Auth failure", op.Result.Message)
}

func TestHelloFeatureRoundTrip(t *testing.T) {
	op := NewHello("cbkv/abc123", []HelloFeature{FeatureDatatype, FeatureSnappy})

	pak, err := op.Encode(1)
	require.NoError(t, err)
	assert.Equal(t, []byte("cbkv/abc123"), pak.Key)
	assert.Equal(t, []byte{0x00, 0x01, 0x00, 0x0a}, pak.Value)

	err = op.Decode(&memd.Packet{
		Magic:   memd.CmdMagicRes,
		Command: memd.CmdHello,
		Status:  memd.StatusSuccess,
		Value:   []byte{0x00, 0x0a},
	})
	require.NoError(t, err)
	assert.Equal(t, []HelloFeature{FeatureSnappy}, op.Result.Value)
}
