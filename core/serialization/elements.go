// Copyright (c) 2017-2018 The nox developers
package serialization

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/noxproject/dposd/common/hash"
)

// ProtocolVersion is passed to the wire varint helpers.  The encodings used
// here do not vary by protocol version.
const ProtocolVersion uint32 = 0

// MaxVarBytes bounds any single variable length byte field read from disk or
// from the network.
const MaxVarBytes = 4 * 1024 * 1024

var littleEndian = binary.LittleEndian

// Uint32Time represents a unix timestamp encoded with a uint32.
type Uint32Time time.Time

// ReadElements reads multiple items from r.  It is equivalent to multiple
// calls to readElement.
func ReadElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		err := readElement(r, element)
		if err != nil {
			return err
		}
	}
	return nil
}

// readElement reads the next sequence of bytes from r using little endian
// depending on the concrete type of element pointed to.
func readElement(r io.Reader, element interface{}) error {
	var buf [8]byte
	switch e := element.(type) {
	case *uint8:
		if _, err := io.ReadFull(r, buf[:1]); err != nil {
			return err
		}
		*e = buf[0]
		return nil

	case *bool:
		if _, err := io.ReadFull(r, buf[:1]); err != nil {
			return err
		}
		*e = buf[0] != 0
		return nil

	case *uint16:
		if _, err := io.ReadFull(r, buf[:2]); err != nil {
			return err
		}
		*e = littleEndian.Uint16(buf[:2])
		return nil

	case *int32:
		if _, err := io.ReadFull(r, buf[:4]); err != nil {
			return err
		}
		*e = int32(littleEndian.Uint32(buf[:4]))
		return nil

	case *uint32:
		if _, err := io.ReadFull(r, buf[:4]); err != nil {
			return err
		}
		*e = littleEndian.Uint32(buf[:4])
		return nil

	case *int64:
		if _, err := io.ReadFull(r, buf[:8]); err != nil {
			return err
		}
		*e = int64(littleEndian.Uint64(buf[:8]))
		return nil

	case *uint64:
		if _, err := io.ReadFull(r, buf[:8]); err != nil {
			return err
		}
		*e = littleEndian.Uint64(buf[:8])
		return nil

	// Unix timestamp encoded as a uint32.
	case *Uint32Time:
		if _, err := io.ReadFull(r, buf[:4]); err != nil {
			return err
		}
		*e = Uint32Time(time.Unix(int64(littleEndian.Uint32(buf[:4])), 0))
		return nil

	case *hash.Hash:
		_, err := io.ReadFull(r, e[:])
		return err

	case *[]byte:
		b, err := wire.ReadVarBytes(r, ProtocolVersion, MaxVarBytes, "bytes")
		if err != nil {
			return err
		}
		*e = b
		return nil

	case *string:
		b, err := wire.ReadVarBytes(r, ProtocolVersion, MaxVarBytes, "string")
		if err != nil {
			return err
		}
		*e = string(b)
		return nil
	}

	return fmt.Errorf("readElement: unsupported type %T", element)
}

// WriteElements writes multiple items to w.  It is equivalent to multiple
// calls to writeElement.
func WriteElements(w io.Writer, elements ...interface{}) error {
	for _, element := range elements {
		err := writeElement(w, element)
		if err != nil {
			return err
		}
	}
	return nil
}

// writeElement writes the little endian representation of element to w.
func writeElement(w io.Writer, element interface{}) error {
	var buf [8]byte
	switch e := element.(type) {
	case uint8:
		buf[0] = e
		_, err := w.Write(buf[:1])
		return err

	case bool:
		if e {
			buf[0] = 1
		}
		_, err := w.Write(buf[:1])
		return err

	case uint16:
		littleEndian.PutUint16(buf[:2], e)
		_, err := w.Write(buf[:2])
		return err

	case int32:
		littleEndian.PutUint32(buf[:4], uint32(e))
		_, err := w.Write(buf[:4])
		return err

	case uint32:
		littleEndian.PutUint32(buf[:4], e)
		_, err := w.Write(buf[:4])
		return err

	case int64:
		littleEndian.PutUint64(buf[:8], uint64(e))
		_, err := w.Write(buf[:8])
		return err

	case uint64:
		littleEndian.PutUint64(buf[:8], e)
		_, err := w.Write(buf[:8])
		return err

	case Uint32Time:
		littleEndian.PutUint32(buf[:4], uint32(time.Time(e).Unix()))
		_, err := w.Write(buf[:4])
		return err

	case hash.Hash:
		_, err := w.Write(e[:])
		return err

	case *hash.Hash:
		_, err := w.Write(e[:])
		return err

	case []byte:
		return wire.WriteVarBytes(w, ProtocolVersion, e)

	case string:
		return wire.WriteVarString(w, ProtocolVersion, e)
	}

	return fmt.Errorf("writeElement: unsupported type %T", element)
}

// ReadVarInt reads a variable length integer.
func ReadVarInt(r io.Reader) (uint64, error) {
	return wire.ReadVarInt(r, ProtocolVersion)
}

// WriteVarInt writes a variable length integer.
func WriteVarInt(w io.Writer, val uint64) error {
	return wire.WriteVarInt(w, ProtocolVersion, val)
}

// VarIntSerializeSize returns the number of bytes it would take to serialize
// val as a variable length integer.
func VarIntSerializeSize(val uint64) int {
	return wire.VarIntSerializeSize(val)
}

// VarBytesSerializeSize returns the serialized size of a length prefixed
// byte slice.
func VarBytesSerializeSize(b []byte) int {
	return wire.VarIntSerializeSize(uint64(len(b))) + len(b)
}
