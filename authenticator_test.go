package couchbase

import (
	"bytes"
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomap/couchbase-net-client/memd"
	"github.com/tomap/couchbase-net-client/operations"
)

// scriptedSaslClient answers auth operations from a handler instead of a
// live connection.
type scriptedSaslClient struct {
	handler func(op operations.Operation) error
}

func (c *scriptedSaslClient) SendAuthOp(ctx context.Context, op operations.Operation) error {
	return c.handler(op)
}

func answerListMechs(op *operations.SaslListMechsOperation, mechs string) {
	op.Result.Success = true
	op.Result.Status = memd.StatusSuccess
	op.Result.Value = splitMechs(mechs)
}

func splitMechs(mechs string) []string {
	if mechs == "" {
		return nil
	}
	var out []string
	for _, mech := range bytes.Fields([]byte(mechs)) {
		out = append(out, string(mech))
	}
	return out
}

func TestAuthenticatePlain(t *testing.T) {
	auth := &PasswordAuthenticator{
		Username: "someuser",
		Password: "somepass",
	}

	var sawPayload []byte
	client := &scriptedSaslClient{
		handler: func(op operations.Operation) error {
			switch op := op.(type) {
			case *operations.SaslListMechsOperation:
				answerListMechs(op, "PLAIN")
			case *operations.SaslExchangeOperation:
				require.Equal(t, memd.CmdSASLAuth, op.Command())
				require.Equal(t, "PLAIN", op.Mech)
				sawPayload = op.Payload
				op.Result.Success = true
				op.Result.Status = memd.StatusSuccess
			default:
				t.Fatalf("unexpected operation %T", op)
			}
			return nil
		},
	}

	err := auth.Authenticate(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x00someuser\x00somepass"), sawPayload)
}

func TestAuthenticatePlainRejected(t *testing.T) {
	auth := &PasswordAuthenticator{
		Username: "someuser",
		Password: "wrongpass",
	}

	client := &scriptedSaslClient{
		handler: func(op operations.Operation) error {
			switch op := op.(type) {
			case *operations.SaslListMechsOperation:
				answerListMechs(op, "PLAIN")
			case *operations.SaslExchangeOperation:
				op.Result.Success = false
				op.Result.Status = memd.StatusAuthError
			}
			return nil
		},
	}

	err := auth.Authenticate(context.Background(), client)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestAuthenticatePrefersStrongestMech(t *testing.T) {
	auth := &PasswordAuthenticator{
		Username:     "someuser",
		Password:     "somepass",
		AllowedMechs: []string{"PLAIN"},
	}

	var sawMech string
	client := &scriptedSaslClient{
		handler: func(op operations.Operation) error {
			switch op := op.(type) {
			case *operations.SaslListMechsOperation:
				answerListMechs(op, "SCRAM-SHA512 SCRAM-SHA256 SCRAM-SHA1 PLAIN")
			case *operations.SaslExchangeOperation:
				sawMech = op.Mech
				op.Result.Success = true
				op.Result.Status = memd.StatusSuccess
			}
			return nil
		},
	}

	// restricted to PLAIN even though stronger mechanisms are offered
	err := auth.Authenticate(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, "PLAIN", sawMech)
}

func TestAuthenticateNoCommonMech(t *testing.T) {
	auth := &PasswordAuthenticator{
		Username: "someuser",
		Password: "somepass",
	}

	client := &scriptedSaslClient{
		handler: func(op operations.Operation) error {
			if op, ok := op.(*operations.SaslListMechsOperation); ok {
				answerListMechs(op, "GSSAPI EXTERNAL")
			} else {
				t.Fatalf("unexpected operation %T", op)
			}
			return nil
		},
	}

	err := auth.Authenticate(context.Background(), client)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

// rfc5802NonceSource replays the nonce randomness of the RFC 5802 example
// exchange so the whole SCRAM conversation is reproducible.
func rfc5802NonceSource(t *testing.T) *bytes.Reader {
	nonceBytes, err := base64.StdEncoding.DecodeString("fyko+d2lbbFgONRv9qkxdawL")
	require.NoError(t, err)
	return bytes.NewReader(nonceBytes)
}

func TestAuthenticateScramSha1(t *testing.T) {
	auth := &PasswordAuthenticator{
		Username:    "user",
		Password:    "pencil",
		NonceSource: rfc5802NonceSource(t),
	}

	const (
		expectedClientFirst = "n,,n=user,r=fyko+d2lbbFgONRv9qkxdawL"
		serverFirst         = "r=fyko+d2lbbFgONRv9qkxdawL3rfcNHYJY1ZVvWVs7j,s=QSXCR+Q6sek8bf92,i=4096"
		expectedClientFinal = "c=biws,r=fyko+d2lbbFgONRv9qkxdawL3rfcNHYJY1ZVvWVs7j,p=v0X8v3Bz2T0CJGbJQyF0X+HI4Ts="
		serverFinal         = "v=rmF9pqV8S7suAoZWja4dJRkFsKQ="
	)

	client := &scriptedSaslClient{
		handler: func(op operations.Operation) error {
			switch op := op.(type) {
			case *operations.SaslListMechsOperation:
				answerListMechs(op, "SCRAM-SHA1 PLAIN")
			case *operations.SaslExchangeOperation:
				switch op.Command() {
				case memd.CmdSASLAuth:
					require.Equal(t, "SCRAM-SHA1", op.Mech)
					require.Equal(t, expectedClientFirst, string(op.Payload))
					op.Result.Success = false
					op.Result.Status = memd.StatusAuthContinue
					op.Result.Value = []byte(serverFirst)
				case memd.CmdSASLStep:
					require.Equal(t, expectedClientFinal, string(op.Payload))
					op.Result.Success = true
					op.Result.Status = memd.StatusSuccess
					op.Result.Value = []byte(serverFinal)
				}
			}
			return nil
		},
	}

	err := auth.Authenticate(context.Background(), client)
	assert.NoError(t, err)
}

func TestAuthenticateScramBadServerSignature(t *testing.T) {
	auth := &PasswordAuthenticator{
		Username:    "user",
		Password:    "pencil",
		NonceSource: rfc5802NonceSource(t),
	}

	client := &scriptedSaslClient{
		handler: func(op operations.Operation) error {
			switch op := op.(type) {
			case *operations.SaslListMechsOperation:
				answerListMechs(op, "SCRAM-SHA1")
			case *operations.SaslExchangeOperation:
				switch op.Command() {
				case memd.CmdSASLAuth:
					op.Result.Success = false
					op.Result.Status = memd.StatusAuthContinue
					op.Result.Value = []byte("r=fyko+d2lbbFgONRv9qkxdawL3rfcNHYJY1ZVvWVs7j,s=QSXCR+Q6sek8bf92,i=4096")
				case memd.CmdSASLStep:
					// success status with a forged signature must still fail
					op.Result.Success = true
					op.Result.Status = memd.StatusSuccess
					op.Result.Value = []byte("v=AAAAAAAAAAAAAAAAAAAAAAAAAAA=")
				}
			}
			return nil
		},
	}

	err := auth.Authenticate(context.Background(), client)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestAuthenticateScramWithoutChallenge(t *testing.T) {
	auth := &PasswordAuthenticator{
		Username: "user",
		Password: "pencil",
	}

	client := &scriptedSaslClient{
		handler: func(op operations.Operation) error {
			switch op := op.(type) {
			case *operations.SaslListMechsOperation:
				answerListMechs(op, "SCRAM-SHA256")
			case *operations.SaslExchangeOperation:
				// a server skipping the challenge round never proved itself
				op.Result.Success = true
				op.Result.Status = memd.StatusSuccess
			}
			return nil
		},
	}

	err := auth.Authenticate(context.Background(), client)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestAuthenticateEmptyMechListFallsBackToPlain(t *testing.T) {
	auth := &PasswordAuthenticator{
		Username: "someuser",
		Password: "somepass",
	}

	var sawMech string
	client := &scriptedSaslClient{
		handler: func(op operations.Operation) error {
			switch op := op.(type) {
			case *operations.SaslListMechsOperation:
				op.Result.Success = false
				op.Result.Status = memd.StatusUnknownCommand
			case *operations.SaslExchangeOperation:
				sawMech = op.Mech
				op.Result.Success = true
				op.Result.Status = memd.StatusSuccess
			}
			return nil
		},
	}

	err := auth.Authenticate(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, "PLAIN", sawMech)
}
