package keyring

import "testing"

func TestSeedDemoKeysActiveStates(t *testing.T) {
	kr := New()
	kr.SeedDemoKeys()

	for _, id := range []uint16{0, 1, 2, 128, 129, 130, 131, 133} {
		if !kr.IsActive(id) {
			t.Errorf("expected key %d to be Active", id)
		}
	}

	k132, ok := kr.Get(132)
	if !ok || k132.State != PreActive {
		t.Errorf("expected key 132 to be PreActive, got %v", k132.State)
	}
}

func TestSeedDemoKeysResolvesIntendedTypoTarget(t *testing.T) {
	kr := New()
	kr.SeedDemoKeys()

	k135, _ := kr.Get(135)
	k136, _ := kr.Get(136)
	if k135.State != Deactivated {
		t.Errorf("key 135 should be Deactivated, got %v", k135.State)
	}
	if k136.State != Deactivated {
		t.Errorf("key 136 should be Deactivated per the spec's stated intent, got %v", k136.State)
	}
	var zero [32]byte
	if k136.Value == zero {
		t.Error("key 136 should carry the NIST GCM test-vector value, not the zero value")
	}
}

func TestIsActiveOutOfRange(t *testing.T) {
	kr := New()
	if kr.IsActive(9999) {
		t.Error("out-of-range id should not be Active")
	}
}

func TestIsUsableForVerifyAcceptsDeactivated(t *testing.T) {
	kr := New()
	kr.SeedDemoKeys()
	if !kr.IsUsableForVerify(134) {
		t.Error("a Deactivated key should still be usable to verify prior traffic")
	}
	if kr.IsActive(134) {
		t.Error("a Deactivated key must not be reported Active")
	}
}

func TestSetRejectsOutOfRange(t *testing.T) {
	kr := New()
	if err := kr.Set(Capacity, [32]byte{}, Active); err == nil {
		t.Error("expected error setting a key beyond capacity")
	}
}
