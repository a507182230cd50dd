package tmframe

import "testing"

func TestPrimaryHeaderRoundTrip(t *testing.T) {
	want := PrimaryHeader{
		TFVN:                0,
		SCID:                0x0003,
		VCID:                2,
		OCFFlag:             true,
		MCFrameCount:        10,
		VCFrameCount:        20,
		SecondaryHeaderFlag: false,
		SyncFlag:            true,
		PacketOrderFlag:     false,
		SegmentLengthID:     3,
		FirstHeaderPointer:  0x123,
	}
	got, err := ParsePrimaryHeader(want.Build())
	if err != nil {
		t.Fatalf("ParsePrimaryHeader: %v", err)
	}
	if got != want {
		t.Errorf("round trip mismatch: got %+v want %+v", got, want)
	}
}

func TestParsePrimaryHeaderShortBuffer(t *testing.T) {
	if _, err := ParsePrimaryHeader([]byte{1, 2, 3}); err != ErrShortBuffer {
		t.Errorf("expected ErrShortBuffer, got %v", err)
	}
}

func TestCLCWRoundTrip(t *testing.T) {
	want := CLCW{
		Version:      0,
		StatusField:  2,
		COPInEffect:  1,
		VCID:         5,
		NoBitLock:    true,
		Wait:         true,
		FARMBCounter: 3,
		ReportValue:  42,
	}
	got, err := ParseCLCW(want.Build())
	if err != nil {
		t.Fatalf("ParseCLCW: %v", err)
	}
	if got != want {
		t.Errorf("round trip mismatch: got %+v want %+v", got, want)
	}
}

func TestParseCLCWShortBuffer(t *testing.T) {
	if _, err := ParseCLCW([]byte{1, 2}); err != ErrShortBuffer {
		t.Errorf("expected ErrShortBuffer, got %v", err)
	}
}
