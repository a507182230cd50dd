// Package pipeline implements the TC Apply (C7), TC Process (C8), and
// TM Apply (C9) pipelines: the state machines that turn a plaintext
// frame into an SDLS-protected one and back, consulting the Managed
// Parameter table and SA Store and invoking the Crypto Provider.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/nasa-itc/sdls/internal/aead"
	"github.com/nasa-itc/sdls/internal/crc"
	"github.com/nasa-itc/sdls/internal/keyring"
	"github.com/nasa-itc/sdls/internal/mparams"
	"github.com/nasa-itc/sdls/internal/sa"
	"github.com/nasa-itc/sdls/internal/tcframe"
	"github.com/nasa-itc/sdls/internal/tmframe"
)

// Sentinel errors. The facade maps these to sdls.Code values without
// this package needing to know about the root error taxonomy.
var (
	ErrManagedParamNotFound = errors.New("pipeline: no managed parameter for this gvcid")
	ErrNoOperationalSA      = errors.New("pipeline: no operational SA for this gvcid/mapid")
	ErrSANotOperational     = errors.New("pipeline: sa is not in the Operational state")
	ErrKeyStateInvalid      = errors.New("pipeline: ekid/akid does not resolve to an Active key")
	ErrIVRollover           = errors.New("pipeline: iv counter would roll over")
	ErrAntiReplay           = errors.New("pipeline: sequence number outside the anti-replay window")
	ErrBadMAC               = errors.New("pipeline: authentication failed")
	ErrBadFECF              = errors.New("pipeline: frame error control field mismatch")
	ErrSPINotFound          = errors.New("pipeline: spi in security header not found in sa store")
	ErrNullBuffer           = errors.New("pipeline: empty or undersized frame buffer")
)

// IVRolloverPolicy selects what happens when a per-SA IV counter wraps.
type IVRolloverPolicy int

const (
	// IVRolloverWrap matches the original source: wrap silently to
	// zero and continue. This is the default (Design Note, spec
	// section 9: "the source increments silently").
	IVRolloverWrap IVRolloverPolicy = iota
	// IVRolloverReject aborts the apply with ErrIVRollover instead.
	IVRolloverReject
)

// Config carries the process-wide policy knobs from the Config
// Registry (C6) that shape pipeline behavior.
type Config struct {
	IgnoreSAState    bool
	IgnoreAntiReplay bool
	ProcessSDLSPDUs  bool
	CheckFECF        bool
	CreateFECF       bool
	IVRollover       IVRolloverPolicy

	// VCIDBitmask masks the VCID bits this instance handles before the
	// managed-parameter lookup; SA lookups use the unmasked VCID. Zero
	// means "all six bits".
	VCIDBitmask uint8
}

func (c Config) vcidMask() uint8 {
	if c.VCIDBitmask == 0 {
		return 0x3F
	}
	return c.VCIDBitmask
}

// Deps bundles the collaborators a Pipeline needs: the Managed
// Parameter table, the SA Store, the Key Ring, and the Crypto
// Provider, plus policy Config.
type Deps struct {
	Params *mparams.Table
	Store  sa.Store
	Keys   *keyring.KeyRing
	Crypto aead.Provider
	Config Config
}

// Pipeline implements ApplyTC, ProcessTC, and ApplyTM over a fixed set
// of Deps.
type Pipeline struct {
	d Deps
}

func New(d Deps) *Pipeline {
	return &Pipeline{d: d}
}

// Report accompanies a ProcessTC call. On success IsSDLSPDU is true
// only when the frame's primary header carries the Control Command
// flag (the CCSDS-designated marker for an SDLS command PDU, as
// opposed to mission data) and process_sdls_pdus is enabled. On
// rejection the Report is still returned once the SPI is known, so
// the caller can record lspiu in its Frame Security Report event.
type Report struct {
	SPI       uint16
	IsSDLSPDU bool
}

func keyActive(keys *keyring.KeyRing, id uint16) bool {
	k, ok := keys.Get(id)
	return ok && k.State == keyring.Active
}

func applyABM(covered, abm []byte) []byte {
	aad := make([]byte, len(abm))
	for i := range abm {
		if i < len(covered) {
			aad[i] = covered[i] & abm[i]
		}
	}
	return aad
}

// ApplyTC transforms a plaintext TC frame into an SDLS-protected one,
// per spec section 4.2's eight-step sequence.
func (p *Pipeline) ApplyTC(plain []byte, gvcid sa.GVCID, mapid *uint8) ([]byte, error) {
	if len(plain) < tcframe.PrimaryHeaderLen {
		return nil, ErrNullBuffer
	}
	hdr, err := tcframe.ParsePrimaryHeader(plain)
	if err != nil {
		return nil, err
	}

	vcid := gvcid.VCID & p.d.Config.vcidMask()
	param, ok := p.d.Params.Lookup(gvcid.TFVN, gvcid.SCID, vcid)
	if !ok {
		return nil, fmt.Errorf("%w: tfvn=%d scid=%d vcid=%d", ErrManagedParamNotFound, gvcid.TFVN, gvcid.SCID, vcid)
	}

	offset := tcframe.PrimaryHeaderLen
	if param.HasSegmentHdrs {
		if len(plain) < offset+tcframe.SegmentHeaderLen {
			return nil, ErrNullBuffer
		}
		offset += tcframe.SegmentHeaderLen
	}
	payload := plain[offset:]

	target, err := p.d.Store.GetOperational(gvcid, mapid)
	if errors.Is(err, sa.ErrNotFound) && p.d.Config.IgnoreSAState {
		target, err = p.d.Store.GetAnyForGVCID(gvcid)
	}
	if err != nil {
		if errors.Is(err, sa.ErrNotFound) {
			return nil, ErrNoOperationalSA
		}
		return nil, err
	}
	if !p.d.Config.IgnoreSAState {
		if target.State != sa.Operational {
			return nil, ErrSANotOperational
		}
		if !keyActive(p.d.Keys, target.EKID) || !keyActive(p.d.Keys, target.AKID) {
			return nil, ErrKeyStateInvalid
		}
	}

	newIV := append([]byte(nil), target.IV...)
	if wrapped := tcframe.IncrementBigEndian(newIV); wrapped && p.d.Config.IVRollover == IVRolloverReject {
		return nil, ErrIVRollover
	}
	newARC := append([]byte(nil), target.ARC...)
	tcframe.IncrementBigEndian(newARC)
	padLen := make([]byte, target.SHPLFLen)

	secHdr := tcframe.SecurityHeader{SPI: target.SPI, IV: newIV, ARSN: newARC, PadLength: padLen}
	secHdrBytes := secHdr.Build()

	// The transmitted primary header carries the final frame length, so
	// it must be rewritten before the AAD is taken: the receiver builds
	// its AAD from the bytes on the wire.
	tagLen := 0
	if target.EST || target.AST {
		tagLen = int(target.STMACFLen)
	}
	finalHdr := hdr
	finalHdr.FrameLen = uint16(offset + len(secHdrBytes) + len(payload) + tagLen)

	covered := make([]byte, 0, offset+len(secHdrBytes))
	covered = append(covered, finalHdr.Build()...)
	covered = append(covered, plain[tcframe.PrimaryHeaderLen:offset]...)
	covered = append(covered, secHdrBytes...)
	aad := applyABM(covered, target.ABM)

	var ciphertext, tag []byte
	suite := aead.Suite(target.ECS[0])
	if target.EST {
		ekey, _ := p.d.Keys.Get(target.EKID)
		ciphertext, tag, err = p.d.Crypto.AEADEncrypt(suite, ekey.Value[:], newIV, aad, payload)
	} else if target.AST {
		akey, _ := p.d.Keys.Get(target.AKID)
		ciphertext = payload
		tag, err = p.d.Crypto.AEADAuthenticate(aead.Suite(target.ACS), akey.Value[:], newIV, aad)
	} else {
		ciphertext = payload
	}
	if err != nil {
		return nil, err
	}
	if len(tag) > int(target.STMACFLen) {
		tag = tag[:target.STMACFLen]
	}

	out := make([]byte, 0, len(covered)+len(ciphertext)+len(tag)+tcframe.FECFLen)
	out = append(out, covered...)
	out = append(out, ciphertext...)
	out = append(out, tag...)

	if param.HasFECF && p.d.Config.CreateFECF {
		crcVal := crc.CRC16(out)
		out = append(out, byte(crcVal>>8), byte(crcVal))
	}

	target.IV = newIV
	target.ARC = newARC
	if err := p.d.Store.Save(target); err != nil {
		return nil, err
	}
	return out, nil
}

// ProcessTC validates and strips protection from a received TC frame,
// per spec section 4.3's seven-step sequence.
func (p *Pipeline) ProcessTC(protected []byte) ([]byte, *Report, error) {
	if len(protected) < tcframe.PrimaryHeaderLen {
		return nil, nil, ErrNullBuffer
	}
	hdr, err := tcframe.ParsePrimaryHeader(protected)
	if err != nil {
		return nil, nil, err
	}

	vcid := hdr.VCID & p.d.Config.vcidMask()
	param, ok := p.d.Params.Lookup(hdr.TFVN, hdr.SCID, vcid)
	if !ok {
		return nil, nil, fmt.Errorf("%w: tfvn=%d scid=%d vcid=%d", ErrManagedParamNotFound, hdr.TFVN, hdr.SCID, vcid)
	}

	offset := tcframe.PrimaryHeaderLen
	if param.HasSegmentHdrs {
		offset += tcframe.SegmentHeaderLen
	}

	if param.HasFECF {
		if len(protected) < offset+tcframe.FECFLen {
			return nil, nil, ErrNullBuffer
		}
		body := protected[:len(protected)-tcframe.FECFLen]
		if p.d.Config.CheckFECF {
			want := uint16(protected[len(protected)-2])<<8 | uint16(protected[len(protected)-1])
			if crc.CRC16(body) != want {
				return nil, nil, ErrBadFECF
			}
		}
		protected = body
	}

	if len(protected) < offset+tcframe.SPIFieldLen {
		return nil, nil, ErrNullBuffer
	}
	spi, err := tcframe.ParseSPI(protected[offset:])
	if err != nil {
		return nil, nil, err
	}
	report := &Report{SPI: spi}
	target, err := p.d.Store.GetBySPI(spi)
	if err != nil {
		if errors.Is(err, sa.ErrNotFound) {
			return nil, report, fmt.Errorf("%w: spi=%d", ErrSPINotFound, spi)
		}
		return nil, report, err
	}
	if !p.d.Config.IgnoreSAState && target.State != sa.Operational {
		return nil, report, ErrSANotOperational
	}

	secHdr, n, err := tcframe.ParseSecurityHeader(protected[offset:], target.SHIVFLen, target.SHSNFLen, target.SHPLFLen)
	if err != nil {
		return nil, report, err
	}
	ciphertextStart := offset + n
	trailerLen := int(target.STMACFLen)
	if len(protected) < ciphertextStart+trailerLen {
		return nil, report, ErrNullBuffer
	}
	ciphertextEnd := len(protected) - trailerLen
	ciphertext := protected[ciphertextStart:ciphertextEnd]
	tag := protected[ciphertextEnd:]

	// An SA with no sequence-number field carries nothing to window-
	// check; replay protection for such SAs rides on the IV instead.
	if !p.d.Config.IgnoreAntiReplay && len(secHdr.ARSN) > 0 {
		dist := tcframe.DistanceBigEndian(target.ARC, secHdr.ARSN)
		if dist == 0 || dist > uint64(target.ARCW) {
			return nil, report, ErrAntiReplay
		}
	}

	covered := protected[:ciphertextStart]
	aad := applyABM(covered, target.ABM)

	var plaintext []byte
	if target.EST {
		ekey, _ := p.d.Keys.Get(target.EKID)
		plaintext, err = p.d.Crypto.AEADDecrypt(aead.Suite(target.ECS[0]), ekey.Value[:], secHdr.IV, aad, ciphertext, tag)
	} else if target.AST {
		akey, _ := p.d.Keys.Get(target.AKID)
		err = p.d.Crypto.AEADVerify(aead.Suite(target.ACS), akey.Value[:], secHdr.IV, aad, tag)
		plaintext = ciphertext
	} else {
		plaintext = ciphertext
	}
	if err != nil {
		return nil, report, ErrBadMAC
	}

	target.ARC = append([]byte(nil), secHdr.ARSN...)
	if err := p.d.Store.Save(target); err != nil {
		return nil, report, err
	}

	report.IsSDLSPDU = p.d.Config.ProcessSDLSPDUs && hdr.CtrlCmd
	return plaintext, report, nil
}

// ApplyTM frames a TM payload with the TM security header/trailer
// (C9). It reuses the TC SA's crypto material since the spec's SA
// model has no separate TM association; real deployments typically
// bind one SA per (gvcid, direction) and this mirrors that.
func (p *Pipeline) ApplyTM(plain []byte, gvcid sa.GVCID, mc, vc uint8) ([]byte, error) {
	vcid := gvcid.VCID & p.d.Config.vcidMask()
	param, ok := p.d.Params.Lookup(gvcid.TFVN, gvcid.SCID, vcid)
	if !ok {
		return nil, fmt.Errorf("%w: tfvn=%d scid=%d vcid=%d", ErrManagedParamNotFound, gvcid.TFVN, gvcid.SCID, vcid)
	}

	target, err := p.d.Store.GetOperational(gvcid, nil)
	if err != nil {
		if errors.Is(err, sa.ErrNotFound) {
			return nil, ErrNoOperationalSA
		}
		return nil, err
	}
	if target.State != sa.Operational {
		return nil, ErrSANotOperational
	}

	newIV := append([]byte(nil), target.IV...)
	tcframe.IncrementBigEndian(newIV)
	newARC := append([]byte(nil), target.ARC...)
	tcframe.IncrementBigEndian(newARC)

	primary := tmframe.PrimaryHeader{
		TFVN:         gvcid.TFVN,
		SCID:         gvcid.SCID,
		VCID:         gvcid.VCID,
		OCFFlag:      true,
		MCFrameCount: mc,
		VCFrameCount: vc,
	}
	primaryBytes := primary.Build()

	secHdr := tcframe.SecurityHeader{
		SPI:       target.SPI,
		IV:        newIV,
		ARSN:      newARC,
		PadLength: make([]byte, target.SHPLFLen),
	}
	secHdrBytes := secHdr.Build()

	covered := append(append([]byte(nil), primaryBytes...), secHdrBytes...)
	aad := applyABM(covered, target.ABM)

	var ciphertext, tag []byte
	if target.EST {
		ekey, _ := p.d.Keys.Get(target.EKID)
		ciphertext, tag, err = p.d.Crypto.AEADEncrypt(aead.Suite(target.ECS[0]), ekey.Value[:], newIV, aad, plain)
	} else if target.AST {
		akey, _ := p.d.Keys.Get(target.AKID)
		ciphertext = plain
		tag, err = p.d.Crypto.AEADAuthenticate(aead.Suite(target.ACS), akey.Value[:], newIV, aad)
	} else {
		ciphertext = plain
	}
	if err != nil {
		return nil, err
	}
	if len(tag) > int(target.STMACFLen) {
		tag = tag[:target.STMACFLen]
	}

	out := append(covered, ciphertext...)
	out = append(out, tag...)
	out = append(out, tmframe.CLCW{VCID: gvcid.VCID & 0x3F}.Build()...)

	if param.HasFECF && p.d.Config.CreateFECF {
		crcVal := crc.CRC16(out)
		out = append(out, byte(crcVal>>8), byte(crcVal))
	}

	target.IV = newIV
	target.ARC = newARC
	if err := p.d.Store.Save(target); err != nil {
		return nil, err
	}
	return out, nil
}
