/*
Copyright 2023-Present Couchbase, Inc.

Use of this software is governed by the Business Source License included in
the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
file, in accordance with the Business Source License, use of this software will
be governed by the Apache License, Version 2.0, included in the file
licenses/APL2.txt.
*/

package memd

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrProtocolDecode indicates a frame which could not be parsed.  The
// stream is no longer in a known state once this occurs.
var ErrProtocolDecode = errors.New("protocol decode error")

const headerLen = 24

// maxBodyLen bounds the total body length we will accept from a peer.
const maxBodyLen = 20 * 1024 * 1024

// Conn reads and writes packets over an underlying stream.  Reads and
// writes are independently safe to perform from one goroutine each, but
// neither side supports multiple concurrent callers.
type Conn struct {
	reader *bufio.Reader
	writer io.Writer

	hdrBuf [headerLen]byte
}

func NewConn(stream io.ReadWriter) *Conn {
	return &Conn{
		reader: bufio.NewReader(stream),
		writer: stream,
	}
}

// WritePacket encodes a packet and writes it to the stream.
func (c *Conn) WritePacket(pak *Packet) error {
	keyLen := len(pak.Key)
	extLen := len(pak.Extras)
	valueLen := len(pak.Value)

	if keyLen > 0xffff {
		return fmt.Errorf("%w: key exceeds maximum length", ErrProtocolDecode)
	}
	if extLen > 0xff {
		return fmt.Errorf("%w: extras exceed maximum length", ErrProtocolDecode)
	}

	bodyLen := extLen + keyLen + valueLen
	buf := make([]byte, headerLen+bodyLen)

	buf[0] = uint8(pak.Magic)
	buf[1] = uint8(pak.Command)
	binary.BigEndian.PutUint16(buf[2:], uint16(keyLen))
	buf[4] = uint8(extLen)
	buf[5] = pak.Datatype
	if pak.Magic == CmdMagicRes {
		binary.BigEndian.PutUint16(buf[6:], uint16(pak.Status))
	} else {
		binary.BigEndian.PutUint16(buf[6:], pak.Vbucket)
	}
	binary.BigEndian.PutUint32(buf[8:], uint32(bodyLen))
	binary.BigEndian.PutUint32(buf[12:], pak.Opaque)
	binary.BigEndian.PutUint64(buf[16:], pak.Cas)

	copy(buf[headerLen:], pak.Extras)
	copy(buf[headerLen+extLen:], pak.Key)
	copy(buf[headerLen+extLen+keyLen:], pak.Value)

	_, err := c.writer.Write(buf)
	return err
}

// ReadPacket reads a single packet from the stream.  A malformed header
// yields ErrProtocolDecode; i/o failures are returned as-is.
func (c *Conn) ReadPacket() (*Packet, error) {
	hdr := c.hdrBuf[:]
	_, err := io.ReadFull(c.reader, hdr)
	if err != nil {
		return nil, err
	}

	magic := CmdMagic(hdr[0])
	if magic != CmdMagicReq && magic != CmdMagicRes {
		return nil, fmt.Errorf("%w: invalid magic 0x%02x", ErrProtocolDecode, hdr[0])
	}

	keyLen := int(binary.BigEndian.Uint16(hdr[2:]))
	extLen := int(hdr[4])
	bodyLen := int(binary.BigEndian.Uint32(hdr[8:]))

	if bodyLen > maxBodyLen {
		return nil, fmt.Errorf("%w: body length %d exceeds limit", ErrProtocolDecode, bodyLen)
	}
	if extLen+keyLen > bodyLen {
		return nil, fmt.Errorf("%w: segment lengths exceed body length", ErrProtocolDecode)
	}

	pak := &Packet{
		Magic:    magic,
		Command:  CmdCode(hdr[1]),
		Datatype: hdr[5],
		Opaque:   binary.BigEndian.Uint32(hdr[12:]),
		Cas:      binary.BigEndian.Uint64(hdr[16:]),
	}
	if magic == CmdMagicRes {
		pak.Status = StatusCode(binary.BigEndian.Uint16(hdr[6:]))
	} else {
		pak.Vbucket = binary.BigEndian.Uint16(hdr[6:])
	}

	if bodyLen > 0 {
		body := make([]byte, bodyLen)
		_, err := io.ReadFull(c.reader, body)
		if err != nil {
			return nil, err
		}

		if extLen > 0 {
			pak.Extras = body[:extLen]
		}
		if keyLen > 0 {
			pak.Key = body[extLen : extLen+keyLen]
		}
		if bodyLen > extLen+keyLen {
			pak.Value = body[extLen+keyLen:]
		}
	}

	return pak, nil
}
