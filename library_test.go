// SPDX-License-Identifier: Apache 2.0

package sdls

import (
	"encoding/binary"
	"testing"

	"github.com/nasa-itc/sdls/internal/config"
	"github.com/nasa-itc/sdls/internal/sa"
	"github.com/nasa-itc/sdls/internal/tcframe"
)

func newTestConfig() *config.Config {
	return &config.Config{
		SADBType:        config.SADBInMemory,
		ProcessSDLSPDUs: true,
		CheckFECF:       true,
		CreateFECF:      true,
		ManagedParameters: []config.ManagedParameterEntry{
			{TFVN: 0, SCID: 3, VCID: 0, HasFECF: true},
		},
		SeedSAs: []config.SeedSA{
			{
				SPI: 1, TFVN: 0, SCID: 3, VCID: 0,
				EKID: 130, AKID: 130, State: "operational",
				EST: true, AST: true,
				SHIVFLen: 12, SHSNFLen: 2, SHPLFLen: 0, STMACFLen: 16,
				ECSLen: 1, ECS: 0x01, ACSLen: 1, ACS: 0x01,
				ARCWLen: 2, ARCW: 5,
			},
		},
	}
}

func newReadyLibrary(t *testing.T) *Library {
	t.Helper()
	lib := NewLibrary()
	if err := lib.Configure(newTestConfig()); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := lib.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = lib.Shutdown() })
	return lib
}

// newLinkedLibraries models a ground/spacecraft pair: two libraries
// seeded from the same config, one applying, the other processing.
func newLinkedLibraries(t *testing.T) (tx, rx *Library) {
	t.Helper()
	return newReadyLibrary(t), newReadyLibrary(t)
}

func dataFrame(payload []byte) ([]byte, sa.GVCID) {
	hdr := tcframe.PrimaryHeader{TFVN: 0, SCID: 3, VCID: 0, FrameLen: uint16(5 + len(payload)), FrameSeqNo: 1}
	return append(hdr.Build(), payload...), sa.GVCID{TFVN: 0, SCID: 3, VCID: 0}
}

func TestLibrary_ApplyProcessRoundTrip(t *testing.T) {
	tx, rx := newLinkedLibraries(t)
	plain, gvcid := dataFrame([]byte("hello telecommand"))

	protected, err := tx.ApplySecurityTC(plain, gvcid, nil)
	if err != nil {
		t.Fatalf("ApplySecurityTC: %v", err)
	}

	out, report, err := rx.ProcessSecurityTC(protected)
	if err != nil {
		t.Fatalf("ProcessSecurityTC: %v", err)
	}
	if string(out) != "hello telecommand" {
		t.Errorf("round trip payload = %q", out)
	}
	if report.SPI != 1 {
		t.Errorf("report.SPI = %d, want 1", report.SPI)
	}
	if report.FSR != nil {
		t.Errorf("non-command data frame should not dispatch to the SDLS PDU handler, got FSR %+v", report.FSR)
	}
}

func TestLibrary_ProcessRejectsBeforeInit(t *testing.T) {
	lib := NewLibrary()
	if _, _, err := lib.ProcessSecurityTC([]byte{0, 0, 0, 0, 0}); CodeOf(err) != CodeConfigurationNotComplete {
		t.Errorf("expected CodeConfigurationNotComplete, got %v", CodeOf(err))
	}
}

func TestLibrary_ApplyUnknownGVCID(t *testing.T) {
	lib := newReadyLibrary(t)
	hdr := tcframe.PrimaryHeader{TFVN: 1, SCID: 99, VCID: 7, FrameLen: 5, FrameSeqNo: 1}
	_, err := lib.ApplySecurityTC(hdr.Build(), sa.GVCID{TFVN: 1, SCID: 99, VCID: 7}, nil)
	if CodeOf(err) != CodeManagedParamNotFound {
		t.Errorf("expected CodeManagedParamNotFound, got %v", CodeOf(err))
	}
}

func TestLibrary_ProcessCorruptedTrailerRejectedWithFSR(t *testing.T) {
	tx, rx := newLinkedLibraries(t)
	plain, gvcid := dataFrame([]byte("payload"))
	protected, err := tx.ApplySecurityTC(plain, gvcid, nil)
	if err != nil {
		t.Fatalf("ApplySecurityTC: %v", err)
	}

	flipped := append([]byte(nil), protected...)
	flipped[len(flipped)-1] ^= 0xFF // corrupt the trailing FECF byte

	_, report, err := rx.ProcessSecurityTC(flipped)
	if CodeOf(err) != CodeBadFECF && CodeOf(err) != CodeBadMAC {
		t.Errorf("expected CodeBadFECF or CodeBadMAC for a corrupted trailing byte, got %v", CodeOf(err))
	}
	if report == nil || report.FSR == nil || !report.FSR.Alarm {
		t.Errorf("expected a rejection to carry an FSR event with the alarm bit set, got %+v", report)
	}
}

func TestLibrary_HandleSDLSPDU_Status(t *testing.T) {
	lib := newReadyLibrary(t)
	body := make([]byte, 2)
	binary.BigEndian.PutUint16(body, 1)
	pdu := append([]byte{0, 0, 0, 9, 0, 2}, body...) // pid=9 (SA_STATUS)

	result, err := lib.HandleSDLSPDU(pdu)
	if err != nil {
		t.Fatalf("HandleSDLSPDU: %v", err)
	}
	if result.FSR.LastSPI != 1 {
		t.Errorf("fsr.LastSPI = %d, want 1", result.FSR.LastSPI)
	}
	if result.Status == nil || len(result.Status.SAs) != 1 || result.Status.SAs[0].SPI != 1 {
		t.Errorf("expected Result.Status to carry SA spi=1, got %+v", result.Status)
	}
}

func TestLibrary_ProcessDispatchesControlCommandToPDUHandler(t *testing.T) {
	tx, rx := newLinkedLibraries(t)

	body := make([]byte, 2)
	binary.BigEndian.PutUint16(body, 1)
	pdu := append([]byte{0, 0, 0, 9, 0, 2}, body...) // SA_STATUS, addressed at spi=1

	hdr := tcframe.PrimaryHeader{TFVN: 0, SCID: 3, VCID: 0, CtrlCmd: true, FrameLen: uint16(5 + len(pdu)), FrameSeqNo: 2}
	plain := append(hdr.Build(), pdu...)

	protected, err := tx.ApplySecurityTC(plain, sa.GVCID{TFVN: 0, SCID: 3, VCID: 0}, nil)
	if err != nil {
		t.Fatalf("ApplySecurityTC: %v", err)
	}
	_, report, err := rx.ProcessSecurityTC(protected)
	if err != nil {
		t.Fatalf("ProcessSecurityTC: %v", err)
	}
	if report.FSR == nil {
		t.Fatal("expected a control-command frame to dispatch to the SDLS PDU handler and return an FSR")
	}
	if report.FSR.LastSPI != 1 {
		t.Errorf("fsr.LastSPI = %d, want 1", report.FSR.LastSPI)
	}
	if report.Status == nil || len(report.Status.SAs) != 1 || report.Status.SAs[0].SPI != 1 {
		t.Errorf("expected Report.Status to carry SA spi=1, got %+v", report.Status)
	}
}

func TestLibrary_ShutdownThenReinit(t *testing.T) {
	lib := NewLibrary()
	if err := lib.Configure(newTestConfig()); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := lib.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := lib.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, _, err := lib.ProcessSecurityTC([]byte{0, 0, 0, 0, 0}); CodeOf(err) != CodeConfigurationNotComplete {
		t.Errorf("expected operations to fail after shutdown, got %v", CodeOf(err))
	}
	// Re-Init is legal without re-Configure: Configure already installed
	// cfg/params, and Shutdown only tears down Init-allocated state.
	if err := lib.Init(); err != nil {
		t.Fatalf("re-Init after shutdown: %v", err)
	}
	_ = lib.Shutdown()
}
