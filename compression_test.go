package couchbase

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomap/couchbase-net-client/memd"
)

func TestMaybeCompressValueRoundTrip(t *testing.T) {
	value := bytes.Repeat([]byte("abcdefgh"), 512)

	compressed, datatype := MaybeCompressValue(value, memd.DatatypeFlagJSON)
	require.NotEqual(t, value, compressed)
	assert.Less(t, len(compressed), len(value))
	assert.Equal(t, memd.DatatypeFlagJSON|memd.DatatypeFlagCompressed, datatype)

	decoded, decodedType, err := MaybeDecompressValue(compressed, datatype)
	require.NoError(t, err)
	assert.Equal(t, value, decoded)
	assert.Equal(t, memd.DatatypeFlagJSON, decodedType)
}

func TestMaybeCompressValueSkipsSmallValues(t *testing.T) {
	value := []byte("tiny")

	out, datatype := MaybeCompressValue(value, 0)
	assert.Equal(t, value, out)
	assert.Equal(t, memd.DatatypeFlag(0), datatype)
}

func TestMaybeCompressValueSkipsIncompressible(t *testing.T) {
	// high-entropy input does not shrink under snappy
	value := make([]byte, 256)
	state := uint32(0x9e3779b9)
	for i := range value {
		state = state*1664525 + 1013904223
		value[i] = byte(state >> 24)
	}

	out, datatype := MaybeCompressValue(value, 0)
	assert.Equal(t, value, out)
	assert.Equal(t, memd.DatatypeFlag(0), datatype)
}

func TestMaybeCompressValueRespectsExistingFlag(t *testing.T) {
	value := bytes.Repeat([]byte("x"), 1024)

	out, datatype := MaybeCompressValue(value, memd.DatatypeFlagCompressed)
	assert.Equal(t, value, out)
	assert.Equal(t, memd.DatatypeFlagCompressed, datatype)
}

func TestMaybeDecompressValuePassthrough(t *testing.T) {
	value := []byte("not compressed")

	out, datatype, err := MaybeDecompressValue(value, memd.DatatypeFlagJSON)
	require.NoError(t, err)
	assert.Equal(t, value, out)
	assert.Equal(t, memd.DatatypeFlagJSON, datatype)
}

func TestMaybeDecompressValueCorrupt(t *testing.T) {
	_, _, err := MaybeDecompressValue([]byte{0xff, 0xfe, 0xfd}, memd.DatatypeFlagCompressed)
	assert.Error(t, err)
}
