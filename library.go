// SPDX-License-Identifier: Apache 2.0

// Package sdls is the Facade (C11): the single entry point that binds
// the Config Registry, Managed Parameter table, Key Ring, SA Store,
// and Crypto Provider into one process-wide Library context, per the
// source's "re-architect global process state as a single context"
// design note.
package sdls

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/viper"

	"github.com/nasa-itc/sdls/internal/aead"
	"github.com/nasa-itc/sdls/internal/config"
	"github.com/nasa-itc/sdls/internal/keyring"
	"github.com/nasa-itc/sdls/internal/mparams"
	"github.com/nasa-itc/sdls/internal/pipeline"
	"github.com/nasa-itc/sdls/internal/sa"
	"github.com/nasa-itc/sdls/internal/sa/memstore"
	"github.com/nasa-itc/sdls/internal/sa/sqlstore"
	"github.com/nasa-itc/sdls/internal/sdlspdu"
	"github.com/nasa-itc/sdls/internal/tcframe"
)

// Library is the process-wide context owning every shared resource:
// Config, ManagedParams, KeyRing, SA Store, and Crypto Provider.
// Callers SHOULD NOT reconfigure a Library during active use; Init
// establishes the single-initialization lifecycle, Shutdown tears it
// down and leaves the Library legal to Init again.
type Library struct {
	mu sync.Mutex

	cfg    *config.Config
	params *mparams.Table
	keys   *keyring.KeyRing
	store  sa.Store
	sqlDB  *sqlstore.Store // non-nil only when store is SQL-backed; closed on Shutdown
	crypto aead.Provider

	pipe *pipeline.Pipeline
	pdu  *sdlspdu.Handler

	ready bool
}

// NewLibrary returns an unconfigured Library. Configure (directly or
// via ConfigureFromViper) and Init must run before any apply/process
// call.
func NewLibrary() *Library {
	return &Library{}
}

// Configure installs cfg and rebuilds the Managed Parameter table from
// its seed list. It does not touch the SA Store or Key Ring -- those
// are established by Init.
func (l *Library) Configure(cfg *config.Config) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cfg == nil {
		return Wrap(CodeConfigurationNotComplete, "configure", errors.New("nil config"))
	}
	l.cfg = cfg
	l.params = mparams.NewTable()
	for i, mp := range cfg.ManagedParameters {
		if err := l.params.Add(mp.TFVN, mp.SCID, mp.VCID, mp.HasFECF, mp.HasSegmentHdrs); err != nil {
			return Wrap(CodeManagedParamNotComplete, fmt.Sprintf("managed_parameters[%d]", i), err)
		}
	}
	return nil
}

// ConfigureFromViper is a convenience wrapper combining config.Load
// and Configure, for embedders that hold a bound *viper.Viper and
// have no need to inspect the decoded Config before building the
// Library.
func (l *Library) ConfigureFromViper(v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return Wrap(CodeConfigurationNotComplete, "load", err)
	}
	return l.Configure(cfg)
}

// AddManagedParameter registers one more (tfvn, scid, vcid) managed
// parameter after Configure, before Init.
func (l *Library) AddManagedParameter(tfvn uint8, scid uint16, vcid uint8, hasFECF, hasSegmentHdrs bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.params == nil {
		return NewError(CodeConfigurationNotComplete, "add_managed_parameter called before configure")
	}
	if err := l.params.Add(tfvn, scid, vcid, hasFECF, hasSegmentHdrs); err != nil {
		return Wrap(CodeManagedParamNotComplete, "add_managed_parameter", err)
	}
	return nil
}

// Init establishes the SA Store (in-memory or SQL, per cfg.SADBType),
// the Key Ring (seeded with the demo key set), and the Crypto Provider,
// loads any configured seed SAs into the SA Store, then wires the TC/TM pipelines and
// SDLS PDU handler. A connection failure against the SQL backend
// surfaces as CodeSadbBackendUnavailable without partially installing
// any component.
func (l *Library) Init() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cfg == nil || l.params == nil {
		return NewError(CodeConfigurationNotComplete, "init called before configure")
	}

	switch l.cfg.SADBType {
	case config.SADBInMemory:
		store := memstore.New()
		store.SetUniqueSAPerMAPID(l.cfg.UniqueSAPerMAPID)
		l.store = store
	case config.SADBSql:
		db, err := sqlstore.Open(sqlstore.Config{
			Dialect: sqlstore.DialectPostgres,
			DSN:     l.cfg.SQL.DSN(),
		})
		if err != nil {
			return Wrap(CodeSadbBackendUnavailable, "sql connect", err)
		}
		db.SetUniqueSAPerMAPID(l.cfg.UniqueSAPerMAPID)
		l.sqlDB = db
		l.store = db
	default:
		return NewError(CodeSadbInvalidType, string(l.cfg.SADBType))
	}

	l.keys = keyring.New()
	l.keys.SeedDemoKeys()

	for _, seed := range l.cfg.SeedSAs {
		newSA := &sa.SecurityAssociation{
			SPI:       seed.SPI,
			GVCIDTC:   sa.GVCID{TFVN: seed.TFVN, SCID: seed.SCID, VCID: seed.VCID},
			EKID:      seed.EKID,
			AKID:      seed.AKID,
			State:     parseSeedState(seed.State),
			EST:       seed.EST,
			AST:       seed.AST,
			SHIVFLen:  seed.SHIVFLen,
			SHSNFLen:  seed.SHSNFLen,
			SHPLFLen:  seed.SHPLFLen,
			STMACFLen: seed.STMACFLen,
			ECSLen:    seed.ECSLen,
			ECS:       [4]byte{seed.ECS, 0, 0, 0},
			ACSLen:    seed.ACSLen,
			ACS:       seed.ACS,
			IV:        make([]byte, seed.SHIVFLen),
			ARC:       make([]byte, seed.SHSNFLen),
			ARCW:      seed.ARCW,
			ARCWLen:   seed.ARCWLen,
			ABM:       make([]byte, 0),
		}
		if seed.HasMAPID {
			m := seed.MAPID
			newSA.MAPID = &m
		}
		if err := l.store.Create(newSA); err != nil {
			return Wrap(CodeSadbBackendUnavailable, fmt.Sprintf("seeding spi=%d", seed.SPI), err)
		}
	}

	l.crypto = aead.NewDispatcher()
	l.pipe = pipeline.New(pipeline.Deps{
		Params: l.params,
		Store:  l.store,
		Keys:   l.keys,
		Crypto: l.crypto,
		Config: pipeline.Config{
			IgnoreSAState:    l.cfg.IgnoreSAState,
			IgnoreAntiReplay: l.cfg.IgnoreAntiReplay,
			ProcessSDLSPDUs:  l.cfg.ProcessSDLSPDUs,
			CheckFECF:        l.cfg.CheckFECF,
			CreateFECF:       l.cfg.CreateFECF,
			IVRollover:       ivRolloverPolicy(l.cfg.IVRolloverRejectRaw),
			VCIDBitmask:      l.cfg.VCIDBitmask,
		},
	})
	l.pdu = sdlspdu.NewHandler(l.store, 50, 10)

	l.ready = true
	slog.Info("sdls library initialized", "sadb_type", l.cfg.SADBType, "managed_parameters", l.params.Len())
	return nil
}

func parseSeedState(s string) sa.State {
	switch s {
	case "keyed":
		return sa.Keyed
	case "operational":
		return sa.Operational
	default:
		return sa.Unkeyed
	}
}

func ivRolloverPolicy(reject bool) pipeline.IVRolloverPolicy {
	if reject {
		return pipeline.IVRolloverReject
	}
	return pipeline.IVRolloverWrap
}

// Shutdown releases every resource Init allocated (the SQL connection
// if one was opened) and resets the Library to its pre-Init state so
// a later Init call is legal, per the source's target behavior of
// freeing everything it allocated.
func (l *Library) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sqlDB != nil {
		_ = l.sqlDB.Close()
		l.sqlDB = nil
	}
	l.store = nil
	l.keys = nil
	l.crypto = nil
	l.pipe = nil
	l.pdu = nil
	l.ready = false
	return nil
}

func (l *Library) requireReady() error {
	if !l.ready {
		return NewError(CodeConfigurationNotComplete, "library not initialized")
	}
	return nil
}

// ApplySecurityTC transforms a plaintext TC frame into an SDLS-
// protected one (spec section 4.2).
func (l *Library) ApplySecurityTC(plain []byte, gvcid sa.GVCID, mapid *uint8) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.requireReady(); err != nil {
		return nil, err
	}
	out, err := l.pipe.ApplyTC(plain, gvcid, mapid)
	if err != nil {
		return nil, translatePipelineErr(err)
	}
	return out, nil
}

// Report accompanies a ProcessSecurityTC call. On a rejected frame FSR
// carries the Frame Security Report event for that rejection (bsnf,
// bmacf, or ispif set, lspiu recording the offending SPI). On success
// FSR is set only when the decrypted payload was an SDLS command PDU
// and was dispatched to the SDLS PDU Handler; Status is additionally
// set when that command was SA_STATUS.
type Report struct {
	SPI    uint16
	FSR    *sdlspdu.FSR
	Status *sdlspdu.StatusReply
}

// rejectionFSR composes the Frame Security Report event for a frame
// the process pipeline rejected (spec section 4.3: every rejection
// sets the matching flag and records lspiu).
func rejectionFSR(spi uint16, err error) *sdlspdu.FSR {
	fsr := &sdlspdu.FSR{LastSPI: spi, Alarm: true}
	switch {
	case errors.Is(err, pipeline.ErrAntiReplay):
		fsr.BadSeqNum = true
	case errors.Is(err, pipeline.ErrBadMAC):
		fsr.BadMAC = true
	case errors.Is(err, pipeline.ErrSPINotFound):
		fsr.BadSPI = true
	}
	return fsr
}

// ProcessSecurityTC validates and strips protection from a received TC
// frame (spec section 4.3), dispatching the plaintext to the SDLS PDU
// Handler when process_sdls_pdus is enabled, the frame's control-command
// flag is set, and the plaintext is at least one PDU header long. A PDU
// the handler rejects is returned as an error.
func (l *Library) ProcessSecurityTC(protected []byte) ([]byte, *Report, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.requireReady(); err != nil {
		return nil, nil, err
	}
	plain, pr, err := l.pipe.ProcessTC(protected)
	if err != nil {
		report := &Report{}
		if pr != nil {
			report.SPI = pr.SPI
		}
		report.FSR = rejectionFSR(report.SPI, err)
		slog.Debug("tc process rejected", "spi", report.SPI, "error", err)
		return nil, report, translatePipelineErr(err)
	}
	report := &Report{SPI: pr.SPI}
	if pr.IsSDLSPDU && len(plain) >= sdlspdu.PDUHeaderLen {
		result, pduErr := l.pdu.Handle(plain)
		report.FSR = &result.FSR
		report.Status = result.Status
		if pduErr != nil {
			return nil, report, translateSDLSPDUErr(pduErr)
		}
	}
	return plain, report, nil
}

// ApplySecurityTM frames a TM payload with the TM security
// header/trailer (spec section 2, C9).
func (l *Library) ApplySecurityTM(plain []byte, gvcid sa.GVCID, mcFrameCount, vcFrameCount uint8) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.requireReady(); err != nil {
		return nil, err
	}
	out, err := l.pipe.ApplyTM(plain, gvcid, mcFrameCount, vcFrameCount)
	if err != nil {
		return nil, translatePipelineErr(err)
	}
	return out, nil
}

// HandleSDLSPDU runs a raw SDLS command PDU directly against the SA
// Store, bypassing the TC process pipeline -- used by the sdls-pdu CLI
// command and the /sdls-pdu HTTP endpoint for out-of-band SA
// management traffic. The returned Result carries an FSR for every
// PID and, for SA_STATUS (PID 9), the status payload spec.md documents
// as that command's distinct reply.
func (l *Library) HandleSDLSPDU(pdu []byte) (sdlspdu.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.requireReady(); err != nil {
		return sdlspdu.Result{}, err
	}
	result, err := l.pdu.Handle(pdu)
	if err != nil {
		return result, translateSDLSPDUErr(err)
	}
	return result, nil
}

// SAStatus returns one Security Association by SPI, the same record an
// SA_STATUS SDLS PDU addressed at that SPI would report -- used by the
// GET /sa/{spi} demonstration endpoint.
func (l *Library) SAStatus(spi uint16) (*sa.SecurityAssociation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.requireReady(); err != nil {
		return nil, err
	}
	s, err := l.store.GetBySPI(spi)
	if err != nil {
		return nil, translateSDLSPDUErr(err)
	}
	return s, nil
}

// ListSAs returns every Security Association currently in the store,
// the unqualified SA_STATUS reply -- used by the GET /sa demonstration
// endpoint.
func (l *Library) ListSAs() ([]*sa.SecurityAssociation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.requireReady(); err != nil {
		return nil, err
	}
	all, err := l.store.List()
	if err != nil {
		return nil, translateSDLSPDUErr(err)
	}
	return all, nil
}

func translatePipelineErr(err error) error {
	switch {
	case errors.Is(err, pipeline.ErrManagedParamNotFound):
		return Wrap(CodeManagedParamNotFound, "apply/process", err)
	case errors.Is(err, pipeline.ErrNoOperationalSA):
		return Wrap(CodeSANotFound, "apply/process", err)
	case errors.Is(err, pipeline.ErrSANotOperational):
		return Wrap(CodeSANotOperational, "apply/process", err)
	case errors.Is(err, pipeline.ErrKeyStateInvalid):
		return Wrap(CodeKeyStateInvalid, "apply/process", err)
	case errors.Is(err, pipeline.ErrIVRollover):
		return Wrap(CodeIVRollover, "apply", err)
	case errors.Is(err, pipeline.ErrAntiReplay):
		return Wrap(CodeAntiReplayReject, "process", err)
	case errors.Is(err, pipeline.ErrBadMAC):
		return Wrap(CodeBadMAC, "process", err)
	case errors.Is(err, pipeline.ErrBadFECF):
		return Wrap(CodeBadFECF, "process", err)
	case errors.Is(err, pipeline.ErrSPINotFound):
		return Wrap(CodeSPIInvalid, "process", err)
	case errors.Is(err, pipeline.ErrNullBuffer):
		return Wrap(CodeNullBuffer, "apply/process", err)
	case errors.Is(err, sa.ErrStoreUnavailable):
		return Wrap(CodeSadbBackendUnavailable, "apply/process", err)
	case errors.Is(err, aead.ErrUnknownSuite), errors.Is(err, aead.ErrCryptoBackend):
		return Wrap(CodeCryptoBackendError, "apply/process", err)
	case errors.Is(err, tcframe.ErrShortBuffer):
		return Wrap(CodeNullBuffer, "apply/process", err)
	default:
		return Wrap(CodeCryptoBackendError, "apply/process", err)
	}
}

func translateSDLSPDUErr(err error) error {
	switch {
	case errors.Is(err, sdlspdu.ErrMalformed):
		return Wrap(CodeSDLSPDUMalformed, "sdls pdu", err)
	case errors.Is(err, sdlspdu.ErrUnknownPID):
		return Wrap(CodeSDLSPDUMalformed, "sdls pdu", err)
	case errors.Is(err, sdlspdu.ErrThrottled):
		return Wrap(CodeThrottled, "sdls pdu", err)
	case errors.Is(err, sa.ErrNotFound):
		return Wrap(CodeSANotFound, "sdls pdu", err)
	case errors.Is(err, sa.ErrInvalidTransition):
		return Wrap(CodeInvalidTransition, "sdls pdu", err)
	case errors.Is(err, sa.ErrDuplicate):
		return Wrap(CodeDuplicate, "sdls pdu", err)
	case errors.Is(err, sa.ErrStoreUnavailable):
		return Wrap(CodeSadbBackendUnavailable, "sdls pdu", err)
	default:
		return Wrap(CodeSDLSPDUMalformed, "sdls pdu", err)
	}
}
