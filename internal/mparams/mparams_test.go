package mparams

import "testing"

func TestAddAndLookup(t *testing.T) {
	tbl := NewTable()
	if err := tbl.Add(0, 0x0003, 0, true, true); err != nil {
		t.Fatalf("Add: %v", err)
	}
	p, ok := tbl.Lookup(0, 0x0003, 0)
	if !ok {
		t.Fatal("expected lookup to find the inserted parameter")
	}
	if !p.HasFECF || !p.HasSegmentHdrs {
		t.Errorf("unexpected flags: %+v", p)
	}
}

func TestAddDuplicateRejected(t *testing.T) {
	tbl := NewTable()
	if err := tbl.Add(0, 0x0003, 1, true, false); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := tbl.Add(0, 0x0003, 1, false, false); err == nil {
		t.Fatal("expected duplicate triple to be rejected")
	}
}

func TestLookupMissing(t *testing.T) {
	tbl := NewTable()
	if _, ok := tbl.Lookup(0, 0xFFFF, 9); ok {
		t.Fatal("expected lookup miss for unregistered triple")
	}
}

func TestAllPreservesInsertionOrder(t *testing.T) {
	tbl := NewTable()
	_ = tbl.Add(0, 1, 0, true, true)
	_ = tbl.Add(0, 1, 1, true, true)
	_ = tbl.Add(0, 2, 0, false, false)
	all := tbl.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(all))
	}
	if all[1].VCID != 1 || all[2].SCID != 2 {
		t.Errorf("unexpected order: %+v", all)
	}
	if tbl.Len() != 3 {
		t.Errorf("Len() = %d, want 3", tbl.Len())
	}
}
