// Package mparams holds the managed-parameter table (C4): the
// per-(TFVN,SCID,VCID) flags that shape how a transfer frame on that
// virtual channel is built. The original CryptoLib keeps these in an
// intrusive linked list; this is re-architected as a flat,
// insertion-ordered slice with uniqueness enforced on insert, per the
// spec's design note -- no recursion required.
package mparams

import "fmt"

// Key identifies one managed-parameter record.
type Key struct {
	TFVN uint8
	SCID uint16
	VCID uint8
}

// Parameter is the per-VC flag set.
type Parameter struct {
	Key
	HasFECF        bool
	HasSegmentHdrs bool
}

// Table is an ordered, uniqueness-enforced set of managed parameters.
type Table struct {
	byKey map[Key]int
	rows  []Parameter
}

// NewTable returns an empty managed-parameter table.
func NewTable() *Table {
	return &Table{byKey: make(map[Key]int)}
}

// Add inserts a new managed parameter. It is an error to add a
// duplicate (TFVN, SCID, VCID) triple.
func (t *Table) Add(tfvn uint8, scid uint16, vcid uint8, hasFECF, hasSegmentHdrs bool) error {
	key := Key{TFVN: tfvn, SCID: scid, VCID: vcid}
	if _, exists := t.byKey[key]; exists {
		return fmt.Errorf("mparams: duplicate managed parameter for tfvn=%d scid=%d vcid=%d", tfvn, scid, vcid)
	}
	t.byKey[key] = len(t.rows)
	t.rows = append(t.rows, Parameter{Key: key, HasFECF: hasFECF, HasSegmentHdrs: hasSegmentHdrs})
	return nil
}

// Lookup returns the managed parameter for the given triple.
func (t *Table) Lookup(tfvn uint8, scid uint16, vcid uint8) (Parameter, bool) {
	idx, ok := t.byKey[Key{TFVN: tfvn, SCID: scid, VCID: vcid}]
	if !ok {
		return Parameter{}, false
	}
	return t.rows[idx], true
}

// All returns every managed parameter in insertion order. The caller
// must not mutate the returned slice's backing array.
func (t *Table) All() []Parameter {
	return t.rows
}

// Len reports how many managed parameters are registered.
func (t *Table) Len() int {
	return len(t.rows)
}
