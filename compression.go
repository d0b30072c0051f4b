package couchbase

import (
	"github.com/golang/snappy"

	"github.com/tomap/couchbase-net-client/memd"
)

// minCompressSize is the smallest value worth compressing; tiny values
// usually grow under snappy framing.
const minCompressSize = 32

// MaybeCompressValue snappy-compresses a value when it pays off, returning
// the possibly-compressed bytes and the datatype to send.  Values that are
// too small, or that do not shrink, go out unchanged.
func MaybeCompressValue(value []byte, datatype memd.DatatypeFlag) ([]byte, memd.DatatypeFlag) {
	if datatype&memd.DatatypeFlagCompressed != 0 {
		// caller already compressed it
		return value, datatype
	}
	if len(value) < minCompressSize {
		return value, datatype
	}

	compressed := snappy.Encode(nil, value)
	if len(compressed) >= len(value) {
		return value, datatype
	}

	return compressed, datatype | memd.DatatypeFlagCompressed
}

// MaybeDecompressValue reverses MaybeCompressValue on received values,
// clearing the compressed flag from the datatype.
func MaybeDecompressValue(value []byte, datatype memd.DatatypeFlag) ([]byte, memd.DatatypeFlag, error) {
	if datatype&memd.DatatypeFlagCompressed == 0 {
		return value, datatype, nil
	}

	decoded, err := snappy.Decode(nil, value)
	if err != nil {
		return nil, datatype, err
	}

	return decoded, datatype &^ memd.DatatypeFlagCompressed, nil
}
