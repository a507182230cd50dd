// SPDX-License-Identifier: Apache 2.0

package handlers

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nasa-itc/sdls"
	"github.com/nasa-itc/sdls/internal/config"
	"github.com/nasa-itc/sdls/internal/tcframe"
)

// newTestLibrary builds an in-memory Library seeded with one
// Operational SA on (tfvn=0, scid=3, vcid=0), mirroring the
// conformance suite's sample SA so the handler tests exercise a real
// apply/process round trip instead of a mock.
func newTestLibrary(t *testing.T) *sdls.Library {
	t.Helper()
	cfg := &config.Config{
		SADBType:        config.SADBInMemory,
		ProcessSDLSPDUs: true,
		CheckFECF:       true,
		CreateFECF:      true,
		ManagedParameters: []config.ManagedParameterEntry{
			{TFVN: 0, SCID: 3, VCID: 0, HasFECF: true, HasSegmentHdrs: false},
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
	lib := sdls.NewLibrary()
	if err := lib.Configure(cfg); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := lib.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = lib.Shutdown() })
	return lib
}

func TestHealthHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	HealthHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "OK" {
		t.Errorf("expected status OK, got %q", resp.Status)
	}
}

func TestHealthHandler_MethodNotAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rec := httptest.NewRecorder()

	HealthHandler(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestApplyProcessTCHandlers_RoundTrip(t *testing.T) {
	// Two libraries model the ground/spacecraft pair: the applying
	// side's SA advances its counters on apply, so the processing side
	// needs its own store still at the pre-transmit position.
	txLib := newTestLibrary(t)
	rxLib := newTestLibrary(t)

	payload := []byte("hello telecommand")
	hdr := tcframe.PrimaryHeader{TFVN: 0, SCID: 3, VCID: 0, FrameLen: uint16(5 + len(payload)), FrameSeqNo: 1}
	plain := append(hdr.Build(), payload...)
	body, err := json.Marshal(frameRequest{Frame: hex.EncodeToString(plain), TFVN: 0, SCID: 3, VCID: 0})
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/tc/apply", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	ApplyTCHandler(txLib)(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("apply: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var applyResp frameResponse
	if err := json.NewDecoder(rec.Body).Decode(&applyResp); err != nil {
		t.Fatalf("decode apply response: %v", err)
	}

	procBody, err := json.Marshal(frameRequest{Frame: applyResp.Frame})
	if err != nil {
		t.Fatal(err)
	}
	req2 := httptest.NewRequest(http.MethodPost, "/tc/process", bytes.NewReader(procBody))
	rec2 := httptest.NewRecorder()
	ProcessTCHandler(rxLib)(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("process: expected 200, got %d: %s", rec2.Code, rec2.Body.String())
	}
	var procResp processResponse
	if err := json.NewDecoder(rec2.Body).Decode(&procResp); err != nil {
		t.Fatalf("decode process response: %v", err)
	}
	got, err := hex.DecodeString(procResp.Frame)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("round trip mismatch: got %q want %q", got, payload)
	}
}

func TestApplyTCHandler_MethodNotAllowed(t *testing.T) {
	lib := newTestLibrary(t)
	req := httptest.NewRequest(http.MethodGet, "/tc/apply", nil)
	rec := httptest.NewRecorder()
	ApplyTCHandler(lib)(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestApplyTCHandler_BadRequest(t *testing.T) {
	lib := newTestLibrary(t)
	req := httptest.NewRequest(http.MethodPost, "/tc/apply", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	ApplyTCHandler(lib)(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestApplyTCHandler_NoManagedParam(t *testing.T) {
	lib := newTestLibrary(t)
	hdr := tcframe.PrimaryHeader{TFVN: 1, SCID: 99, VCID: 5, FrameLen: 5, FrameSeqNo: 1}
	body, _ := json.Marshal(frameRequest{Frame: hex.EncodeToString(hdr.Build()), TFVN: 1, SCID: 99, VCID: 5})
	req := httptest.NewRequest(http.MethodPost, "/tc/apply", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	ApplyTCHandler(lib)(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown managed parameter, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSDLSPDUHandler_BadPDUEncoding(t *testing.T) {
	lib := newTestLibrary(t)
	body, _ := json.Marshal(sdlsPDURequest{PDU: "not-hex"})
	req := httptest.NewRequest(http.MethodPost, "/sdls-pdu", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	SDLSPDUHandler(lib)(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSAStatusHandler_List(t *testing.T) {
	lib := newTestLibrary(t)
	req := httptest.NewRequest(http.MethodGet, "/sa", nil)
	rec := httptest.NewRecorder()
	SAStatusHandler(lib)(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var views []saView
	if err := json.NewDecoder(rec.Body).Decode(&views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 1 || views[0].SPI != 1 {
		t.Errorf("expected one SA with spi=1, got %+v", views)
	}
}

func TestSAStatusHandler_BySPI(t *testing.T) {
	lib := newTestLibrary(t)
	req := httptest.NewRequest(http.MethodGet, "/sa/1", nil)
	rec := httptest.NewRecorder()
	SAStatusHandler(lib)(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var view saView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.SPI != 1 || view.State != "Operational" {
		t.Errorf("expected spi=1 Operational, got %+v", view)
	}
}

func TestSAStatusHandler_UnknownSPI(t *testing.T) {
	lib := newTestLibrary(t)
	req := httptest.NewRequest(http.MethodGet, "/sa/99", nil)
	rec := httptest.NewRecorder()
	SAStatusHandler(lib)(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSDLSPDUHandler_Status(t *testing.T) {
	lib := newTestLibrary(t)
	// SA_STATUS (pid=9): hdr{type=0,uf=0,sg=0,pid=9,pdu_len=0} + spi=1 body.
	pdu := []byte{0x00, 0x00, 0x00, 0x09, 0x00, 0x00, 0x00, 0x01}
	body, _ := json.Marshal(sdlsPDURequest{PDU: hex.EncodeToString(pdu)})
	req := httptest.NewRequest(http.MethodPost, "/sdls-pdu", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	SDLSPDUHandler(lib)(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp sdlsPDUResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.SAs) != 1 || resp.SAs[0].SPI != 1 {
		t.Errorf("expected SA_STATUS reply to carry spi=1, got %+v", resp.SAs)
	}
}
