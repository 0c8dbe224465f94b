package types

import (
	"encoding/binary"
	"errors"
	"fmt"

	"otoledger/crypto"
)

var (
	// ErrRecordNotFound is returned when no record exists at an address.
	ErrRecordNotFound = errors.New("types: record not found")
	// ErrRecordExists is returned when creating a record at an occupied address.
	ErrRecordExists = errors.New("types: record already exists")
	// ErrRecordKind is returned when the stored discriminator names another record kind.
	ErrRecordKind = errors.New("types: record kind mismatch")
	// ErrRecordLayout is returned for truncated or trailing bytes.
	ErrRecordLayout = errors.New("types: malformed record layout")
)

// DiscriminatorLength is the size of the kind tag prefixed to every record.
const DiscriminatorLength = 8

// Record is a fixed-layout ledger record. Fields are written in declaration
// order, little endian, with no padding.
type Record interface {
	Kind() string
	encodeLayout(w *layoutWriter)
	decodeLayout(r *layoutReader)
}

// Discriminator returns the 8-byte tag identifying records of the given kind.
func Discriminator(kind string) [DiscriminatorLength]byte {
	digest := crypto.Keccak256([]byte("account:" + kind))
	var out [DiscriminatorLength]byte
	copy(out[:], digest[:DiscriminatorLength])
	return out
}

// EncodeRecord serialises rec behind its discriminator.
func EncodeRecord(rec Record) []byte {
	w := &layoutWriter{}
	disc := Discriminator(rec.Kind())
	w.raw(disc[:])
	rec.encodeLayout(w)
	return w.buf
}

// DecodeRecord checks the discriminator and fills rec from data.
func DecodeRecord(data []byte, rec Record) error {
	if len(data) < DiscriminatorLength {
		return ErrRecordLayout
	}
	disc := Discriminator(rec.Kind())
	if string(data[:DiscriminatorLength]) != string(disc[:]) {
		return fmt.Errorf("%w: want %s", ErrRecordKind, rec.Kind())
	}
	r := &layoutReader{buf: data[DiscriminatorLength:]}
	rec.decodeLayout(r)
	if r.err != nil {
		return r.err
	}
	if len(r.buf) != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrRecordLayout, len(r.buf))
	}
	return nil
}

type layoutWriter struct {
	buf []byte
}

func (w *layoutWriter) raw(b []byte) { w.buf = append(w.buf, b...) }

func (w *layoutWriter) u8(v uint8) { w.buf = append(w.buf, v) }

func (w *layoutWriter) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

func (w *layoutWriter) u64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

func (w *layoutWriter) address(a crypto.Address) { w.raw(a[:]) }

// str writes a u32 length prefix followed by the bytes.
func (w *layoutWriter) str(s string) {
	w.u32(uint32(len(s)))
	w.raw([]byte(s))
}

type layoutReader struct {
	buf []byte
	err error
}

func (r *layoutReader) take(n int) []byte {
	if r.err != nil {
		return make([]byte, n)
	}
	if len(r.buf) < n {
		r.err = ErrRecordLayout
		return make([]byte, n)
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out
}

func (r *layoutReader) u8() uint8 { return r.take(1)[0] }

func (r *layoutReader) u32() uint32 { return binary.LittleEndian.Uint32(r.take(4)) }

func (r *layoutReader) u64() uint64 { return binary.LittleEndian.Uint64(r.take(8)) }

func (r *layoutReader) address() crypto.Address {
	var a crypto.Address
	copy(a[:], r.take(crypto.AddressLength))
	return a
}

func (r *layoutReader) fixed(dst []byte) { copy(dst, r.take(len(dst))) }

func (r *layoutReader) str(max int) string {
	n := int(r.u32())
	if r.err == nil && n > max {
		r.err = fmt.Errorf("%w: string length %d exceeds %d", ErrRecordLayout, n, max)
		return ""
	}
	return string(r.take(n))
}
