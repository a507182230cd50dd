// Package sdlspdu implements the SDLS PDU Handler (C10): the command
// protocol that lets an authenticated peer start, stop, rekey, expire,
// create, delete, and query Security Associations, replying with a
// Frame Security Report for every mutating command.
package sdlspdu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/nasa-itc/sdls/internal/sa"
)

// PDUHeaderLen is the fixed 6-byte SDLS command header:
// type:8 | uf:8 | sg:8 | pid:8 | pdu_len:16.
const PDUHeaderLen = 6

// PID identifies which SDLS command a PDU carries.
type PID uint8

const (
	PIDSAStart PID = iota + 1
	PIDSAStop
	PIDSARekey
	PIDSAExpire
	PIDSACreate
	PIDSASetARSN
	PIDSASetARSNW
	PIDSADelete
	PIDSAStatus
)

func (p PID) String() string {
	names := map[PID]string{
		PIDSAStart: "SA_START", PIDSAStop: "SA_STOP", PIDSARekey: "SA_REKEY",
		PIDSAExpire: "SA_EXPIRE", PIDSACreate: "SA_CREATE", PIDSASetARSN: "SA_SET_ARSN",
		PIDSASetARSNW: "SA_SET_ARSNW", PIDSADelete: "SA_DELETE", PIDSAStatus: "SA_STATUS",
	}
	if n, ok := names[p]; ok {
		return n
	}
	return fmt.Sprintf("PID(%d)", uint8(p))
}

var (
	ErrMalformed  = errors.New("sdlspdu: malformed PDU")
	ErrUnknownPID = errors.New("sdlspdu: unknown PID")
	ErrThrottled  = errors.New("sdlspdu: command rate exceeded for this SPI")
)

// Header is the 6-byte SDLS command header.
type Header struct {
	Type     uint8
	UserFlag uint8
	SegFlag  uint8
	PID      PID
	PDULen   uint16
}

func ParseHeader(b []byte) (Header, error) {
	if len(b) < PDUHeaderLen {
		return Header{}, ErrMalformed
	}
	return Header{
		Type:     b[0],
		UserFlag: b[1],
		SegFlag:  b[2],
		PID:      PID(b[3]),
		PDULen:   binary.BigEndian.Uint16(b[4:6]),
	}, nil
}

func (h Header) Build() []byte {
	out := make([]byte, PDUHeaderLen)
	out[0], out[1], out[2], out[3] = h.Type, h.UserFlag, h.SegFlag, uint8(h.PID)
	binary.BigEndian.PutUint16(out[4:6], h.PDULen)
	return out
}

// FSR is the Frame Security Report: the out-of-band status reply
// emitted after every processed command or rejected frame.
type FSR struct {
	LastSPI   uint16
	BadSPI    bool // ispif
	BadSeqNum bool // bsnf
	BadMAC    bool // bmacf
	Alarm     bool // set whenever a requested transition or frame was rejected
}

// Build encodes the FSR as a 32-bit word: lspi:16 | bsnf:1 | bmacf:1 |
// ispif:1 | alarm:1 | spare:12.
func (f FSR) Build() []byte {
	var v uint32
	v |= uint32(f.LastSPI) << 16
	if f.BadSeqNum {
		v |= 1 << 15
	}
	if f.BadMAC {
		v |= 1 << 14
	}
	if f.BadSPI {
		v |= 1 << 13
	}
	if f.Alarm {
		v |= 1 << 12
	}
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, v)
	return out
}

func ParseFSR(b []byte) (FSR, error) {
	if len(b) < 4 {
		return FSR{}, ErrMalformed
	}
	v := binary.BigEndian.Uint32(b)
	return FSR{
		LastSPI:   uint16(v >> 16),
		BadSeqNum: (v>>15)&0x1 == 1,
		BadMAC:    (v>>14)&0x1 == 1,
		BadSPI:    (v>>13)&0x1 == 1,
		Alarm:     (v>>12)&0x1 == 1,
	}, nil
}

// CreateParams is the SA_CREATE command body: enough of the SA's
// static shape to allocate it in Unkeyed state. Header/trailer widths
// are set here; keys are assigned later by SA_REKEY, and state
// advances only via subsequent SA_REKEY/SA_START.
type CreateParams struct {
	SPI       uint16
	GVCID     sa.GVCID
	HasMAPID  bool
	MAPID     uint8
	EST, AST  bool
	SHIVFLen  uint8
	SHSNFLen  uint8
	SHPLFLen  uint8
	STMACFLen uint8
	ECSLen    uint8
	ECS       [4]byte
	ACSLen    uint8
	ACS       uint8
	ARCWLen   uint8
	ARCW      uint16
	ABM       []byte
}

// decodeCreateParams reads the SA_CREATE payload. Fixed-width fields
// come first; abm occupies the remainder of the PDU.
func decodeCreateParams(body []byte) (CreateParams, error) {
	const fixedLen = 2 + 1 + 2 + 1 + 1 + 1 + 1 + 1 + 1 + 1 + 1 + 1 + 4 + 1 + 1 + 1 + 2
	if len(body) < fixedLen {
		return CreateParams{}, ErrMalformed
	}
	p := CreateParams{}
	off := 0
	p.SPI = binary.BigEndian.Uint16(body[off:])
	off += 2
	p.GVCID.TFVN = body[off]
	off++
	p.GVCID.SCID = binary.BigEndian.Uint16(body[off:])
	off += 2
	p.GVCID.VCID = body[off]
	off++
	hasMapid := body[off]
	off++
	p.HasMAPID = hasMapid != 0
	p.MAPID = body[off]
	off++
	flags := body[off]
	off++
	p.EST = flags&0x1 != 0
	p.AST = flags&0x2 != 0
	p.SHIVFLen = body[off]
	off++
	p.SHSNFLen = body[off]
	off++
	p.SHPLFLen = body[off]
	off++
	p.STMACFLen = body[off]
	off++
	p.ECSLen = body[off]
	off++
	copy(p.ECS[:], body[off:off+4])
	off += 4
	p.ACSLen = body[off]
	off++
	p.ACS = body[off]
	off++
	p.ARCWLen = body[off]
	off++
	p.ARCW = binary.BigEndian.Uint16(body[off:])
	off += 2
	p.ABM = append([]byte(nil), body[off:]...)
	return p, nil
}

// Handler dispatches SDLS command PDUs against a Store, rate-limiting
// commands per target SPI so a compromised or buggy peer cannot hammer
// the store (golang.org/x/time/rate token buckets, one per SPI).
type Handler struct {
	store sa.Store

	mu       sync.Mutex
	limiters map[uint16]*rate.Limiter
	rateHz   rate.Limit
	burst    int
}

// NewHandler returns a Handler. ratePerSec/burst bound how many
// commands per second a single SPI may receive; pass 0 for
// unrestricted (useful in tests).
func NewHandler(store sa.Store, ratePerSec float64, burst int) *Handler {
	return &Handler{
		store:    store,
		limiters: make(map[uint16]*rate.Limiter),
		rateHz:   rate.Limit(ratePerSec),
		burst:    burst,
	}
}

func (h *Handler) allow(spi uint16) bool {
	if h.rateHz == 0 {
		return true
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	lim, ok := h.limiters[spi]
	if !ok {
		lim = rate.NewLimiter(h.rateHz, h.burst)
		h.limiters[spi] = lim
	}
	return lim.Allow()
}

// Result is the outcome of dispatching one SDLS command PDU. Every PID
// produces an FSR; PID 9 (SA_STATUS) additionally carries the status
// payload spec.md documents as that command's distinct reply (section
// 4.4: "status payload", not an FSR).
type Result struct {
	FSR    FSR
	Status *StatusReply
}

// Handle parses and executes a single SDLS command PDU, returning the
// Result reply. Malformed headers are rejected before any SA is
// touched.
func (h *Handler) Handle(pdu []byte) (Result, error) {
	hdr, err := ParseHeader(pdu)
	if err != nil {
		return Result{FSR: FSR{Alarm: true}}, err
	}
	body := pdu[PDUHeaderLen:]

	if hdr.PID == PIDSAStatus {
		return h.handleStatus(body)
	}
	if hdr.PID == PIDSACreate {
		fsr, err := h.handleCreate(body)
		return Result{FSR: fsr}, err
	}

	if len(body) < 2 {
		return Result{FSR: FSR{Alarm: true}}, ErrMalformed
	}
	spi := binary.BigEndian.Uint16(body)
	if !h.allow(spi) {
		return Result{FSR: FSR{LastSPI: spi, Alarm: true}}, ErrThrottled
	}

	switch hdr.PID {
	case PIDSAStart:
		fsr, err := h.transition(spi, sa.Operational)
		return Result{FSR: fsr}, err
	case PIDSAStop:
		fsr, err := h.transition(spi, sa.Keyed)
		return Result{FSR: fsr}, err
	case PIDSARekey:
		if len(body) < 6 {
			return Result{FSR: FSR{LastSPI: spi, Alarm: true}}, ErrMalformed
		}
		ekid := binary.BigEndian.Uint16(body[2:4])
		akid := binary.BigEndian.Uint16(body[4:6])
		if err := h.store.Rekey(spi, ekid, akid); err != nil {
			return Result{FSR: FSR{LastSPI: spi, Alarm: true}}, err
		}
		return Result{FSR: FSR{LastSPI: spi}}, nil
	case PIDSAExpire:
		if err := h.store.Expire(spi); err != nil {
			return Result{FSR: FSR{LastSPI: spi, Alarm: true}}, err
		}
		return Result{FSR: FSR{LastSPI: spi}}, nil
	case PIDSASetARSN:
		arc := append([]byte(nil), body[2:]...)
		if err := h.store.SetARSN(spi, arc); err != nil {
			return Result{FSR: FSR{LastSPI: spi, Alarm: true}}, err
		}
		return Result{FSR: FSR{LastSPI: spi}}, nil
	case PIDSASetARSNW:
		if len(body) < 4 {
			return Result{FSR: FSR{LastSPI: spi, Alarm: true}}, ErrMalformed
		}
		arcw := binary.BigEndian.Uint16(body[2:4])
		if err := h.store.SetARSNW(spi, arcw); err != nil {
			return Result{FSR: FSR{LastSPI: spi, Alarm: true}}, err
		}
		return Result{FSR: FSR{LastSPI: spi}}, nil
	case PIDSADelete:
		if err := h.store.Delete(spi); err != nil {
			return Result{FSR: FSR{LastSPI: spi, Alarm: true}}, err
		}
		return Result{FSR: FSR{LastSPI: spi}}, nil
	default:
		return Result{FSR: FSR{LastSPI: spi, Alarm: true}}, ErrUnknownPID
	}
}

func (h *Handler) transition(spi uint16, newState sa.State) (FSR, error) {
	if err := h.store.SetState(spi, newState); err != nil {
		return FSR{LastSPI: spi, Alarm: true}, err
	}
	return FSR{LastSPI: spi}, nil
}

func (h *Handler) handleCreate(body []byte) (FSR, error) {
	p, err := decodeCreateParams(body)
	if err != nil {
		return FSR{Alarm: true}, err
	}
	if !h.allow(p.SPI) {
		return FSR{LastSPI: p.SPI, Alarm: true}, ErrThrottled
	}
	newSA := &sa.SecurityAssociation{
		SPI:       p.SPI,
		GVCIDTC:   p.GVCID,
		State:     sa.Unkeyed,
		EST:       p.EST,
		AST:       p.AST,
		SHIVFLen:  p.SHIVFLen,
		SHSNFLen:  p.SHSNFLen,
		SHPLFLen:  p.SHPLFLen,
		STMACFLen: p.STMACFLen,
		ECSLen:    p.ECSLen,
		ECS:       p.ECS,
		ACSLen:    p.ACSLen,
		ACS:       p.ACS,
		IV:        make([]byte, p.SHIVFLen),
		ARC:       make([]byte, p.SHSNFLen),
		ARCW:      p.ARCW,
		ARCWLen:   p.ARCWLen,
		ABM:       p.ABM,
	}
	if p.HasMAPID {
		m := p.MAPID
		newSA.MAPID = &m
	}
	if err := h.store.Create(newSA); err != nil {
		return FSR{LastSPI: p.SPI, Alarm: true}, err
	}
	return FSR{LastSPI: p.SPI}, nil
}

// StatusReply is the SA_STATUS response payload: the requested SA
// verbatim, or the full table when no SPI was given.
type StatusReply struct {
	SAs []*sa.SecurityAssociation
}

// handleStatus answers PID 9 (SA_STATUS): the SA named by the request
// body's SPI, or the full table when no SPI is given.
func (h *Handler) handleStatus(body []byte) (Result, error) {
	if len(body) >= 2 {
		spi := binary.BigEndian.Uint16(body)
		s, err := h.store.GetBySPI(spi)
		if err != nil {
			return Result{FSR: FSR{LastSPI: spi, BadSPI: true, Alarm: true}}, err
		}
		return Result{FSR: FSR{LastSPI: spi}, Status: &StatusReply{SAs: []*sa.SecurityAssociation{s}}}, nil
	}
	status, err := h.Status()
	if err != nil {
		return Result{FSR: FSR{Alarm: true}}, err
	}
	return Result{FSR: FSR{}, Status: &status}, nil
}

// Status returns the full SA table for an unqualified SA_STATUS query.
func (h *Handler) Status() (StatusReply, error) {
	all, err := h.store.List()
	if err != nil {
		return StatusReply{}, err
	}
	return StatusReply{SAs: all}, nil
}
