// Package tcframe parses and builds CCSDS TC transfer frames (CCSDS
// 232.0-B) together with the SDLS security header/trailer layered on
// top (CCSDS 355.0-B). The security header/trailer widths are driven
// entirely by per-SA fields; nothing here hardcodes a width.
package tcframe

import (
	"encoding/binary"
	"errors"
)

// PrimaryHeaderLen is the fixed 5-byte TC primary header size.
const PrimaryHeaderLen = 5

// SegmentHeaderLen is the optional 1-byte segment header size.
const SegmentHeaderLen = 1

// FECFLen is the 2-byte CRC-16 frame error control field.
const FECFLen = 2

// SPIFieldLen is the SPI field at the start of every SDLS security
// header.
const SPIFieldLen = 2

var ErrShortBuffer = errors.New("tcframe: buffer too short")

// PrimaryHeader is the 5-byte TC primary header:
// tfvn:2 | bypass:1 | cc:1 | spare:2 | scid:10 | vcid:6 | frame_len:10 | fsn:8
type PrimaryHeader struct {
	TFVN       uint8
	Bypass     bool
	CtrlCmd    bool
	SCID       uint16
	VCID       uint8
	FrameLen   uint16
	FrameSeqNo uint8
}

// ParsePrimaryHeader decodes the first 5 bytes of a TC frame.
func ParsePrimaryHeader(b []byte) (PrimaryHeader, error) {
	if len(b) < PrimaryHeaderLen {
		return PrimaryHeader{}, ErrShortBuffer
	}
	v := uint64(b[0])<<32 | uint64(b[1])<<24 | uint64(b[2])<<16 | uint64(b[3])<<8 | uint64(b[4])

	fsn := uint8(v & 0xFF)
	v >>= 8
	frameLen := uint16(v & 0x3FF)
	v >>= 10
	vcid := uint8(v & 0x3F)
	v >>= 6
	scid := uint16(v & 0x3FF)
	v >>= 10
	v >>= 2 // spare
	cc := v&0x1 == 1
	v >>= 1
	bypass := v&0x1 == 1
	v >>= 1
	tfvn := uint8(v & 0x3)

	return PrimaryHeader{
		TFVN:       tfvn,
		Bypass:     bypass,
		CtrlCmd:    cc,
		SCID:       scid,
		VCID:       vcid,
		FrameLen:   frameLen,
		FrameSeqNo: fsn,
	}, nil
}

// Build encodes h back into its 5-byte wire form.
func (h PrimaryHeader) Build() []byte {
	var v uint64
	v |= uint64(h.TFVN & 0x3)
	v <<= 1
	if h.Bypass {
		v |= 1
	}
	v <<= 1
	if h.CtrlCmd {
		v |= 1
	}
	v <<= 2 // spare
	v <<= 10
	v |= uint64(h.SCID & 0x3FF)
	v <<= 6
	v |= uint64(h.VCID & 0x3F)
	v <<= 10
	v |= uint64(h.FrameLen & 0x3FF)
	v <<= 8
	v |= uint64(h.FrameSeqNo)

	out := make([]byte, PrimaryHeaderLen)
	out[0] = byte(v >> 32)
	out[1] = byte(v >> 24)
	out[2] = byte(v >> 16)
	out[3] = byte(v >> 8)
	out[4] = byte(v)
	return out
}

// SegmentHeader is the optional 1-byte segment header:
// seq_flags:2 | mapid:6.
type SegmentHeader struct {
	SeqFlags uint8
	MAPID    uint8
}

func ParseSegmentHeader(b byte) SegmentHeader {
	return SegmentHeader{
		SeqFlags: (b >> 6) & 0x3,
		MAPID:    b & 0x3F,
	}
}

func (s SegmentHeader) Build() byte {
	return (s.SeqFlags&0x3)<<6 | (s.MAPID & 0x3F)
}

// SecurityHeader is the SDLS header inserted after the (optional)
// segment header: a 2-byte SPI followed by per-SA-width IV, ARSN, and
// pad-length fields.
type SecurityHeader struct {
	SPI       uint16
	IV        []byte
	ARSN      []byte
	PadLength []byte
}

// HeaderLen returns the total encoded size of a security header with
// the given per-SA field widths.
func HeaderLen(shivfLen, shsnfLen, shplfLen uint8) int {
	return SPIFieldLen + int(shivfLen) + int(shsnfLen) + int(shplfLen)
}

// ParseSPI reads the SPI field only, which is all a receiver needs
// before it can look up the owning SA and learn the remaining field
// widths.
func ParseSPI(b []byte) (uint16, error) {
	if len(b) < SPIFieldLen {
		return 0, ErrShortBuffer
	}
	return binary.BigEndian.Uint16(b), nil
}

// ParseSecurityHeader decodes a full security header once the SA's
// field widths are known. Returns the header and bytes consumed.
func ParseSecurityHeader(b []byte, shivfLen, shsnfLen, shplfLen uint8) (SecurityHeader, int, error) {
	total := HeaderLen(shivfLen, shsnfLen, shplfLen)
	if len(b) < total {
		return SecurityHeader{}, 0, ErrShortBuffer
	}
	spi := binary.BigEndian.Uint16(b[0:2])
	offset := SPIFieldLen
	iv := append([]byte(nil), b[offset:offset+int(shivfLen)]...)
	offset += int(shivfLen)
	arsn := append([]byte(nil), b[offset:offset+int(shsnfLen)]...)
	offset += int(shsnfLen)
	pad := append([]byte(nil), b[offset:offset+int(shplfLen)]...)
	offset += int(shplfLen)
	return SecurityHeader{SPI: spi, IV: iv, ARSN: arsn, PadLength: pad}, offset, nil
}

// Build encodes h. Caller is responsible for ensuring IV/ARSN/PadLength
// already match the SA's configured widths.
func (h SecurityHeader) Build() []byte {
	out := make([]byte, 0, SPIFieldLen+len(h.IV)+len(h.ARSN)+len(h.PadLength))
	spiBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(spiBuf, h.SPI)
	out = append(out, spiBuf...)
	out = append(out, h.IV...)
	out = append(out, h.ARSN...)
	out = append(out, h.PadLength...)
	return out
}

// IncrementBigEndian treats b as a big-endian unsigned integer and
// increments it by one in place, returning true if the increment
// wrapped (overflowed back to all-zero).
func IncrementBigEndian(b []byte) (wrapped bool) {
	for i := len(b) - 1; i >= 0; i-- {
		b[i]++
		if b[i] != 0 {
			return false
		}
	}
	return true
}

// CompareBigEndian returns -1, 0, or 1 comparing a and b as big-endian
// unsigned integers of equal length.
func CompareBigEndian(a, b []byte) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// DistanceBigEndian returns (b - a) mod 2^(8*len(a)), i.e. how far
// forward b sits from a on the counter's wraparound ring. Fields wider
// than 8 bytes compare on their low-order 64 bits.
func DistanceBigEndian(a, b []byte) uint64 {
	width := len(a)
	if width > 8 {
		width = 8
	}
	av := beToUint64(a)
	bv := beToUint64(b)
	mod := uint64(1) << (8 * uint(width))
	if mod == 0 { // width == 8: 1<<64 overflows to 0, meaning "no wrap mask"
		return bv - av
	}
	return (bv - av + mod) % mod
}

func beToUint64(b []byte) uint64 {
	if len(b) > 8 {
		b = b[len(b)-8:]
	}
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}
