// Package scramclient is a client implementation of SCRAM auth (RFC 5802)
// for the SCRAM-SHA1, SCRAM-SHA256 and SCRAM-SHA512 mechanisms used by the
// memcached SASL commands.
package scramclient

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"io"
	"strconv"
	"strings"
)

var b64 = base64.StdEncoding

const defaultNonceLen = 18

// Options tunes nonce generation.  A fixed NonceSource makes the whole
// exchange reproducible, which the tests rely on.
type Options struct {
	NonceSource io.Reader
	NonceLen    int
}

// ScramClient drives one SCRAM exchange.  StepOne, Step and Verify must be
// called in that order, once each.
type ScramClient struct {
	hashFn             func() hash.Hash
	username           string
	password           string
	clientNonce        []byte
	clientFirstMsgBare []byte
	serverSignature    []byte
}

func parseHashFn(mech string) (func() hash.Hash, error) {
	switch mech {
	case "SCRAM-SHA512":
		return sha512.New, nil
	case "SCRAM-SHA256":
		return sha256.New, nil
	case "SCRAM-SHA1":
		return sha1.New, nil
	}
	return nil, fmt.Errorf("unknown hash function: %s", mech)
}

func New(mech, username, password string, opts *Options) (*ScramClient, error) {
	if opts == nil {
		opts = &Options{}
	}
	nonceSource := opts.NonceSource
	if nonceSource == nil {
		nonceSource = rand.Reader
	}
	nonceLen := opts.NonceLen
	if nonceLen == 0 {
		nonceLen = defaultNonceLen
	}

	hashFn, err := parseHashFn(mech)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, nonceLen+b64.EncodedLen(nonceLen))
	if _, err := io.ReadFull(nonceSource, buf[:nonceLen]); err != nil {
		return nil, fmt.Errorf("cannot read nonce randomness: %v", err)
	}
	n := buf[nonceLen:]
	b64.Encode(n, buf[:nonceLen])

	return &ScramClient{
		hashFn:      hashFn,
		username:    username,
		password:    password,
		clientNonce: n,
	}, nil
}

// saslname escaping per RFC 5802: "=" -> "=3D", "," -> "=2C".
func escapeUsername(username string) string {
	username = strings.ReplaceAll(username, "=", "=3D")
	return strings.ReplaceAll(username, ",", "=2C")
}

// StepOne produces the client-first-message.
func (s *ScramClient) StepOne() []byte {
	var bare bytes.Buffer
	bare.Grow(256)
	bare.WriteString("n=")
	bare.WriteString(escapeUsername(s.username))
	bare.WriteString(",r=")
	bare.Write(s.clientNonce)

	s.clientFirstMsgBare = make([]byte, bare.Len())
	copy(s.clientFirstMsgBare, bare.Bytes())

	var out bytes.Buffer
	out.WriteString("n,,")
	out.Write(s.clientFirstMsgBare)
	return out.Bytes()
}

// Step consumes the server-first-message and produces the
// client-final-message carrying the proof.
func (s *ScramClient) Step(serverFirst []byte) ([]byte, error) {
	if s.clientFirstMsgBare == nil {
		return nil, errors.New("scram must be started first")
	}

	fields := bytes.Split(serverFirst, []byte(","))
	if len(fields) < 3 {
		return nil, fmt.Errorf("expected at least 3 fields in server-first message, got %d: %q",
			len(fields), serverFirst)
	}
	if !bytes.HasPrefix(fields[0], []byte("r=")) || len(fields[0]) < 4 {
		return nil, fmt.Errorf("server sent an invalid nonce: %q", fields[0])
	}
	if !bytes.HasPrefix(fields[1], []byte("s=")) || len(fields[1]) < 4 {
		return nil, fmt.Errorf("server sent an invalid salt: %q", fields[1])
	}
	if !bytes.HasPrefix(fields[2], []byte("i=")) || len(fields[2]) < 3 {
		return nil, fmt.Errorf("server sent an invalid iteration count: %q", fields[2])
	}

	serverNonce := fields[0][2:]
	if !bytes.HasPrefix(serverNonce, s.clientNonce) {
		return nil, fmt.Errorf("server nonce does not extend our nonce: %q", serverNonce)
	}

	salt, err := b64.DecodeString(string(fields[1][2:]))
	if err != nil {
		return nil, fmt.Errorf("server sent an undecodable salt: %q", fields[1])
	}

	iterCount, err := strconv.Atoi(string(fields[2][2:]))
	if err != nil || iterCount < 1 {
		return nil, fmt.Errorf("server sent an invalid iteration count: %q", fields[2])
	}

	saltedPassword := s.saltPassword([]byte(s.password), salt, iterCount)

	var withoutProof bytes.Buffer
	withoutProof.Grow(256)
	withoutProof.WriteString("c=biws,r=")
	withoutProof.Write(serverNonce)

	var authMsg bytes.Buffer
	authMsg.Grow(512)
	authMsg.Write(s.clientFirstMsgBare)
	authMsg.WriteString(",")
	authMsg.Write(serverFirst)
	authMsg.WriteString(",")
	authMsg.Write(withoutProof.Bytes())

	proof := s.clientProof(saltedPassword, authMsg.Bytes())
	s.serverSignature = s.computeServerSignature(saltedPassword, authMsg.Bytes())

	withoutProof.WriteString(",p=")
	withoutProof.Write(proof)
	return withoutProof.Bytes(), nil
}

// Verify checks the server-final-message signature against the one derived
// during Step.  A mismatch means the server never knew the password.
func (s *ScramClient) Verify(serverFinal []byte) error {
	if s.serverSignature == nil {
		return errors.New("scram must be stepped first")
	}

	if bytes.HasPrefix(serverFinal, []byte("e=")) {
		return fmt.Errorf("server reported an error: %s", serverFinal[2:])
	}
	if !bytes.HasPrefix(serverFinal, []byte("v=")) {
		return fmt.Errorf("server sent an invalid final message: %q", serverFinal)
	}

	if !hmac.Equal(serverFinal[2:], s.serverSignature) {
		return errors.New("server signature did not match")
	}
	return nil
}

func (s *ScramClient) clientProof(saltedPassword, authMsg []byte) []byte {
	mac := hmac.New(s.hashFn, saltedPassword)
	mac.Write([]byte("Client Key"))
	clientKey := mac.Sum(nil)

	h := s.hashFn()
	h.Write(clientKey)
	storedKey := h.Sum(nil)

	mac = hmac.New(s.hashFn, storedKey)
	mac.Write(authMsg)
	clientProof := mac.Sum(nil)
	for i, b := range clientKey {
		clientProof[i] ^= b
	}

	clientProof64 := make([]byte, b64.EncodedLen(len(clientProof)))
	b64.Encode(clientProof64, clientProof)
	return clientProof64
}

func (s *ScramClient) computeServerSignature(saltedPassword, authMsg []byte) []byte {
	mac := hmac.New(s.hashFn, saltedPassword)
	mac.Write([]byte("Server Key"))
	serverKey := mac.Sum(nil)

	mac = hmac.New(s.hashFn, serverKey)
	mac.Write(authMsg)
	serverSignature := mac.Sum(nil)

	encoded := make([]byte, b64.EncodedLen(len(serverSignature)))
	b64.Encode(encoded, serverSignature)
	return encoded
}

// Hi() from RFC 5802, i.e. PBKDF2 with a single block.
func (s *ScramClient) saltPassword(password, salt []byte, iterCount int) []byte {
	mac := hmac.New(s.hashFn, password)
	mac.Write(salt)
	mac.Write([]byte{0, 0, 0, 1})
	u := mac.Sum(nil)

	hi := make([]byte, len(u))
	copy(hi, u)
	for i := 1; i < iterCount; i++ {
		mac = hmac.New(s.hashFn, password)
		mac.Write(u)
		u = mac.Sum(nil)
		for j, b := range u {
			hi[j] ^= b
		}
	}
	return hi
}
