// Package satest holds the Store conformance suite shared by
// memstore and sqlstore (Design Note 3: "The in-memory variant MUST
// pass the same test suite as the SQL variant"). It lives outside
// _test.go files so both backend packages' tests can import it.
package satest

import (
	"errors"
	"testing"

	"github.com/nasa-itc/sdls/internal/sa"
)

func u8(v uint8) *uint8 { return &v }

func sampleSA(spi uint16) *sa.SecurityAssociation {
	return &sa.SecurityAssociation{
		SPI:       spi,
		GVCIDTC:   sa.GVCID{TFVN: 0, SCID: 0x0003, VCID: 0},
		MAPID:     u8(0),
		EKID:      130,
		AKID:      130,
		State:     sa.Unkeyed,
		EST:       true,
		AST:       true,
		SHIVFLen:  12,
		SHSNFLen:  2,
		SHPLFLen:  0,
		STMACFLen: 16,
		ECSLen:    1,
		ACSLen:    1,
		ECS:       [4]byte{0x01, 0, 0, 0},
		ACS:       0x01,
		IV:        make([]byte, 12),
		ARC:       make([]byte, 2),
		ARCW:      5,
		ARCWLen:   2,
		ABM:       make([]byte, 22),
	}
}

// RunConformance exercises every Store method against a freshly
// constructed backend. fresh must return an empty, ready-to-use store.
func RunConformance(t *testing.T, fresh func(t *testing.T) sa.Store) {
	t.Run("CreateAndGetBySPI", func(t *testing.T) {
		store := fresh(t)
		want := sampleSA(1)
		if err := store.Create(want); err != nil {
			t.Fatalf("Create: %v", err)
		}
		got, err := store.GetBySPI(1)
		if err != nil {
			t.Fatalf("GetBySPI: %v", err)
		}
		if got.SPI != 1 || got.EKID != 130 {
			t.Errorf("unexpected SA: %+v", got)
		}
	})

	t.Run("GetBySPIMissing", func(t *testing.T) {
		store := fresh(t)
		if _, err := store.GetBySPI(999); !errors.Is(err, sa.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("CreateDuplicateRejected", func(t *testing.T) {
		store := fresh(t)
		if err := store.Create(sampleSA(5)); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := store.Create(sampleSA(5)); !errors.Is(err, sa.ErrDuplicate) {
			t.Errorf("expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("AtMostOneOperationalPerGVCID", func(t *testing.T) {
		store := fresh(t)
		a := sampleSA(10)
		b := sampleSA(11)
		if err := store.Create(a); err != nil {
			t.Fatalf("Create a: %v", err)
		}
		if err := store.Create(b); err != nil {
			t.Fatalf("Create b: %v", err)
		}
		if err := store.SetState(10, sa.Operational); err != nil {
			t.Fatalf("SetState a operational: %v", err)
		}
		if err := store.SetState(11, sa.Operational); !errors.Is(err, sa.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition for second Operational SA, got %v", err)
		}
	})

	t.Run("GetOperationalFindsUniqueMatch", func(t *testing.T) {
		store := fresh(t)
		want := sampleSA(20)
		if err := store.Create(want); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := store.SetState(20, sa.Operational); err != nil {
			t.Fatalf("SetState: %v", err)
		}
		got, err := store.GetOperational(want.GVCIDTC, want.MAPID)
		if err != nil {
			t.Fatalf("GetOperational: %v", err)
		}
		if got.SPI != 20 {
			t.Errorf("GetOperational returned spi %d, want 20", got.SPI)
		}
	})

	t.Run("GetOperationalMissing", func(t *testing.T) {
		store := fresh(t)
		if _, err := store.GetOperational(sa.GVCID{TFVN: 9, SCID: 9, VCID: 9}, nil); !errors.Is(err, sa.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SaveMutatesOnlyIVAndARC", func(t *testing.T) {
		store := fresh(t)
		want := sampleSA(30)
		if err := store.Create(want); err != nil {
			t.Fatalf("Create: %v", err)
		}
		got, _ := store.GetBySPI(30)
		got.IV = []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}
		got.ARC = []byte{0, 1}
		got.EKID = 999 // Save must not persist this
		if err := store.Save(got); err != nil {
			t.Fatalf("Save: %v", err)
		}
		reloaded, _ := store.GetBySPI(30)
		if reloaded.ARC[1] != 1 {
			t.Errorf("expected arc to be persisted, got %v", reloaded.ARC)
		}
		if reloaded.EKID == 999 {
			t.Errorf("Save must not persist ekid changes")
		}
	})

	t.Run("RekeyUpdatesKeysAndState", func(t *testing.T) {
		store := fresh(t)
		if err := store.Create(sampleSA(40)); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := store.Rekey(40, 200, 201); err != nil {
			t.Fatalf("Rekey: %v", err)
		}
		got, _ := store.GetBySPI(40)
		if got.EKID != 200 || got.AKID != 201 || got.State != sa.Keyed {
			t.Errorf("unexpected SA after rekey: %+v", got)
		}
	})

	t.Run("ExpireClearsKeysAndState", func(t *testing.T) {
		store := fresh(t)
		if err := store.Create(sampleSA(50)); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := store.Expire(50); err != nil {
			t.Fatalf("Expire: %v", err)
		}
		got, _ := store.GetBySPI(50)
		if got.State != sa.Unkeyed {
			t.Errorf("expected Unkeyed after expire, got %v", got.State)
		}
	})

	t.Run("DeleteRemovesSA", func(t *testing.T) {
		store := fresh(t)
		if err := store.Create(sampleSA(60)); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := store.Delete(60); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := store.GetBySPI(60); !errors.Is(err, sa.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("SetARSNAndARSNW", func(t *testing.T) {
		store := fresh(t)
		if err := store.Create(sampleSA(70)); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := store.SetARSN(70, []byte{0xAB, 0xCD}); err != nil {
			t.Fatalf("SetARSN: %v", err)
		}
		if err := store.SetARSNW(70, 16); err != nil {
			t.Fatalf("SetARSNW: %v", err)
		}
		got, _ := store.GetBySPI(70)
		if got.ARC[0] != 0xAB || got.ARCW != 16 {
			t.Errorf("unexpected SA after ARSN updates: %+v", got)
		}
	})

	t.Run("List", func(t *testing.T) {
		store := fresh(t)
		_ = store.Create(sampleSA(80))
		_ = store.Create(sampleSA(81))
		all, err := store.List()
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(all) != 2 {
			t.Errorf("List returned %d SAs, want 2", len(all))
		}
	})
}
