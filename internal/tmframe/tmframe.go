// Package tmframe builds and parses parts of CCSDS TM transfer frames
// (CCSDS 132.0-B): the fixed 6-byte primary header and the CLCW carried
// in the operational control field (OCF), plus the OCF and FECF
// lengths. It does not build the SDLS security header/trailer or the
// FECF; the TM pipeline assembles those.
package tmframe

import (
	"encoding/binary"
	"errors"
)

const (
	PrimaryHeaderLen = 6
	OCFLen           = 4
	FECFLen          = 2
)

var ErrShortBuffer = errors.New("tmframe: buffer too short")

// PrimaryHeader is the 6-byte TM transfer frame primary header.
type PrimaryHeader struct {
	TFVN    uint8
	SCID    uint16
	VCID    uint8
	OCFFlag bool

	MCFrameCount uint8
	VCFrameCount uint8

	SecondaryHeaderFlag bool
	SyncFlag            bool
	PacketOrderFlag     bool
	SegmentLengthID     uint8  // 2 bits
	FirstHeaderPointer  uint16 // 11 bits
}

func ParsePrimaryHeader(b []byte) (PrimaryHeader, error) {
	if len(b) < PrimaryHeaderLen {
		return PrimaryHeader{}, ErrShortBuffer
	}
	word0 := binary.BigEndian.Uint16(b[0:2])
	tfvn := uint8(word0 >> 14)
	scid := (word0 >> 4) & 0x3FF
	vcid := uint8((word0 >> 1) & 0x7)
	ocf := word0&0x1 == 1

	mc := b[2]
	vc := b[3]

	word1 := binary.BigEndian.Uint16(b[4:6])
	secHdr := word1&0x8000 != 0
	sync := word1&0x4000 != 0
	order := word1&0x2000 != 0
	segLen := uint8((word1 >> 11) & 0x3)
	fhp := word1 & 0x7FF

	return PrimaryHeader{
		TFVN:                tfvn,
		SCID:                scid,
		VCID:                vcid,
		OCFFlag:             ocf,
		MCFrameCount:        mc,
		VCFrameCount:        vc,
		SecondaryHeaderFlag: secHdr,
		SyncFlag:            sync,
		PacketOrderFlag:     order,
		SegmentLengthID:     segLen,
		FirstHeaderPointer:  fhp,
	}, nil
}

func (h PrimaryHeader) Build() []byte {
	var word0 uint16
	word0 |= uint16(h.TFVN&0x3) << 14
	word0 |= (h.SCID & 0x3FF) << 4
	word0 |= uint16(h.VCID&0x7) << 1
	if h.OCFFlag {
		word0 |= 1
	}

	var word1 uint16
	if h.SecondaryHeaderFlag {
		word1 |= 0x8000
	}
	if h.SyncFlag {
		word1 |= 0x4000
	}
	if h.PacketOrderFlag {
		word1 |= 0x2000
	}
	word1 |= uint16(h.SegmentLengthID&0x3) << 11
	word1 |= h.FirstHeaderPointer & 0x7FF

	out := make([]byte, PrimaryHeaderLen)
	binary.BigEndian.PutUint16(out[0:2], word0)
	out[2] = h.MCFrameCount
	out[3] = h.VCFrameCount
	binary.BigEndian.PutUint16(out[4:6], word1)
	return out
}

// CLCW is the Command Link Control Word: the fixed 32-bit COP status
// word carried in a TM frame's OCF.
type CLCW struct {
	ControlWordType uint8 // 1 bit, 0 for CLCW
	Version         uint8 // 2 bits
	StatusField     uint8 // 3 bits
	COPInEffect     uint8 // 2 bits
	VCID            uint8 // 6 bits
	NoRFAvailable   bool
	NoBitLock       bool
	Lockout         bool
	Wait            bool
	Retransmit      bool
	FARMBCounter    uint8 // 2 bits
	ReportValue     uint8
}

func ParseCLCW(b []byte) (CLCW, error) {
	if len(b) < OCFLen {
		return CLCW{}, ErrShortBuffer
	}
	v := binary.BigEndian.Uint32(b)
	return CLCW{
		ControlWordType: uint8(v >> 31),
		Version:         uint8((v >> 29) & 0x3),
		StatusField:     uint8((v >> 26) & 0x7),
		COPInEffect:     uint8((v >> 24) & 0x3),
		VCID:            uint8((v >> 18) & 0x3F),
		NoRFAvailable:   (v>>15)&0x1 == 1,
		NoBitLock:       (v>>14)&0x1 == 1,
		Lockout:         (v>>13)&0x1 == 1,
		Wait:            (v>>12)&0x1 == 1,
		Retransmit:      (v>>11)&0x1 == 1,
		FARMBCounter:    uint8((v >> 9) & 0x3),
		ReportValue:     uint8(v),
	}, nil
}

func (c CLCW) Build() []byte {
	var v uint32
	v |= uint32(c.ControlWordType&0x1) << 31
	v |= uint32(c.Version&0x3) << 29
	v |= uint32(c.StatusField&0x7) << 26
	v |= uint32(c.COPInEffect&0x3) << 24
	v |= uint32(c.VCID&0x3F) << 18
	if c.NoRFAvailable {
		v |= 1 << 15
	}
	if c.NoBitLock {
		v |= 1 << 14
	}
	if c.Lockout {
		v |= 1 << 13
	}
	if c.Wait {
		v |= 1 << 12
	}
	if c.Retransmit {
		v |= 1 << 11
	}
	v |= uint32(c.FARMBCounter&0x3) << 9
	v |= uint32(c.ReportValue)

	out := make([]byte, OCFLen)
	binary.BigEndian.PutUint32(out, v)
	return out
}
