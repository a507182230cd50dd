// Package keyring implements the fixed-capacity key store (C3):
// 256 slots, each holding a 256-bit key value and a lifecycle state.
// Real deployments load key material from a provisioned HSM/keystore;
// this package only implements the lookup contract plus the small set
// of demonstration keys the original CryptoLib wires in for its own
// test scaffolding.
package keyring

import "fmt"

// KeyState is the lifecycle state of a key.
type KeyState int

const (
	PreActive KeyState = iota
	Active
	Deactivated
	Destroyed
	Corrupted
)

func (s KeyState) String() string {
	switch s {
	case PreActive:
		return "PreActive"
	case Active:
		return "Active"
	case Deactivated:
		return "Deactivated"
	case Destroyed:
		return "Destroyed"
	case Corrupted:
		return "Corrupted"
	default:
		return fmt.Sprintf("KeyState(%d)", int(s))
	}
}

// Capacity is the fixed number of slots in a KeyRing.
const Capacity = 256

// Key is a single key-ring entry.
type Key struct {
	ID    uint16
	Value [32]byte
	State KeyState
}

// KeyRing is a fixed-capacity, index-addressed key store. The zero
// value is a ring of Capacity empty, PreActive slots.
type KeyRing struct {
	slots [Capacity]Key
}

// New returns an empty key ring with every slot pre-active.
func New() *KeyRing {
	kr := &KeyRing{}
	for i := range kr.slots {
		kr.slots[i].ID = uint16(i)
	}
	return kr
}

// Get returns the key at the given id.
func (kr *KeyRing) Get(id uint16) (Key, bool) {
	if int(id) >= len(kr.slots) {
		return Key{}, false
	}
	return kr.slots[id], true
}

// Set installs a key value and state at the given id.
func (kr *KeyRing) Set(id uint16, value [32]byte, state KeyState) error {
	if int(id) >= len(kr.slots) {
		return fmt.Errorf("keyring: id %d out of range (capacity %d)", id, Capacity)
	}
	kr.slots[id] = Key{ID: id, Value: value, State: state}
	return nil
}

// SetState changes only the lifecycle state of an existing slot.
func (kr *KeyRing) SetState(id uint16, state KeyState) error {
	if int(id) >= len(kr.slots) {
		return fmt.Errorf("keyring: id %d out of range (capacity %d)", id, Capacity)
	}
	kr.slots[id].State = state
	return nil
}

// IsActive reports whether id resolves to a slot in the Active state.
func (kr *KeyRing) IsActive(id uint16) bool {
	k, ok := kr.Get(id)
	return ok && k.State == Active
}

// IsUsableForVerify reports whether id may still authenticate
// previously-sent traffic: Active or Deactivated keys qualify.
func (kr *KeyRing) IsUsableForVerify(id uint16) bool {
	k, ok := kr.Get(id)
	return ok && (k.State == Active || k.State == Deactivated)
}

func hexKey(pattern ...byte) [32]byte {
	var v [32]byte
	for i := range v {
		v[i] = pattern[i%len(pattern)]
	}
	return v
}

// SeedDemoKeys installs the small set of well-known demonstration keys
// the original CryptoLib hardwires into ek_ring[0..136]. This is
// test/demo scaffolding only: it exists so the facade has something to
// resolve out of the box, not as a substitute for real key
// provisioning.
func (kr *KeyRing) SeedDemoKeys() {
	// Master keys 0-2: repeating 16-byte counting pattern, Active.
	for i, start := range []byte{0x00, 0x10, 0x20} {
		var v [32]byte
		for j := 0; j < 16; j++ {
			v[j] = start + byte(j)
			v[j+16] = start + byte(j)
		}
		_ = kr.Set(uint16(i), v, Active)
	}

	// Session keys 128-135, mirroring the original's AES test vectors.
	_ = kr.Set(128, hexKey(0x01, 0x23, 0x45, 0x67, 0x89, 0xAB, 0xCD, 0xEF), Active)
	_ = kr.Set(129, hexKey(0xAB, 0xCD, 0xEF, 0x01, 0x23, 0x45, 0x67, 0x89), Active)
	_ = kr.Set(130, hexKey(0xFE, 0xDC, 0xBA, 0x98, 0x76, 0x54, 0x32, 0x10), Active)
	_ = kr.Set(131, hexKey(0x98, 0x76, 0x54, 0x32, 0x10, 0xFE, 0xDC, 0xBA), Active)
	_ = kr.Set(132, hexKey(0x01, 0x23, 0x45, 0x67, 0x89, 0xAB, 0xCD, 0xEF, 0xAB, 0xCD, 0xEF, 0x01, 0x23, 0x45, 0x67, 0x89), PreActive)
	_ = kr.Set(133, hexKey(0xAB, 0xCD, 0xEF, 0x01, 0x23, 0x45, 0x67, 0x89, 0x01, 0x23, 0x45, 0x67, 0x89, 0xAB, 0xCD, 0xEF), Active)
	_ = kr.Set(134, hexKey(0xAB, 0xCD, 0xEF, 0x01, 0x23, 0x45, 0x67, 0x89, 0xFE, 0xDC, 0xBA, 0x98, 0x76, 0x54, 0x32, 0x10), Deactivated)
	_ = kr.Set(135, [32]byte{}, Deactivated)

	// 136: NIST GCM test-vector key. The original source writes this
	// value into ek_ring[136] but then marks ek_ring[135].key_state
	// deactivated a second time -- a copy/paste slip. The spec directs
	// implementers to follow the intent, so 136 is the slot marked
	// deactivated here, not a repeat write to 135.
	_ = kr.Set(136, hexKey(
		0xff, 0x9f, 0x92, 0x84, 0xcf, 0x59, 0x9e, 0xac, 0x3b, 0x11, 0x99, 0x05, 0xa7, 0xd1, 0x88, 0x51,
		0xe7, 0xe3, 0x74, 0xcf, 0x63, 0xae, 0xa0, 0x43, 0x58, 0x58, 0x6b, 0x0f, 0x75, 0x76, 0x70, 0xf9,
	), Deactivated)
}
