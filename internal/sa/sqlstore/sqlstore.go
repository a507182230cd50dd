// Package sqlstore is the external-SQL Store backend (C5). It mirrors
// the original CryptoLib MariaDB routine's security_associations
// table and query set, but binds binary columns (iv, arc, abm, ecs)
// directly as []byte rather than round-tripping through hex strings --
// the hex encoding in the original is an artifact of its C MySQL
// client, not a semantic requirement (Design Note 4).
//
// Two gorm dialects are supported: postgres for production deployments
// and sqlite so this backend's own test suite (and local development)
// needs no live database server.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	internalsa "github.com/nasa-itc/sdls/internal/sa"
)

// Dialect selects which gorm driver backs the store.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// TLSMode names a TLS posture for the SQL backend connection. Config
// does not carry a TLSMode, and Open does not read one.
type TLSMode int

const (
	TLSNone TLSMode = iota
	TLSServer
	TLSMutual
)

// Config configures the SQL backend: dialect, DSN and query timeout.
type Config struct {
	Dialect Dialect
	DSN     string

	// Timeout bounds every query; exceeding it surfaces as
	// sa.ErrStoreUnavailable, per spec section 5 ("timeouts apply only
	// to the SQL backend and surface as StoreUnavailable").
	Timeout time.Duration
}

// row is the gorm model for the security_associations table. Column
// names match the SQL schema in spec section 6 field-for-field.
type row struct {
	SPI uint16 `gorm:"column:spi;primaryKey"`

	EKID    uint16 `gorm:"column:ekid"`
	AKID    uint16 `gorm:"column:akid"`
	SAState int    `gorm:"column:sa_state"`

	TFVN  uint8  `gorm:"column:tfvn;index:idx_gvcid"`
	SCID  uint16 `gorm:"column:scid;index:idx_gvcid"`
	VCID  uint8  `gorm:"column:vcid;index:idx_gvcid"`
	MapID *uint8 `gorm:"column:mapid;index:idx_gvcid"`
	LPID  uint8  `gorm:"column:lpid"`

	EST bool `gorm:"column:est"`
	AST bool `gorm:"column:ast"`

	SHIVFLen  uint8 `gorm:"column:shivf_len"`
	SHSNFLen  uint8 `gorm:"column:shsnf_len"`
	SHPLFLen  uint8 `gorm:"column:shplf_len"`
	STMACFLen uint8 `gorm:"column:stmacf_len"`

	ECSLen uint8  `gorm:"column:ecs_len"`
	ECS    []byte `gorm:"column:ecs"`

	IVLen uint8  `gorm:"column:iv_len"`
	IV    []byte `gorm:"column:iv"`

	ACSLen uint8 `gorm:"column:acs_len"`
	ACS    uint8 `gorm:"column:acs"`

	ABMLen uint8  `gorm:"column:abm_len"`
	ABM    []byte `gorm:"column:abm"`

	ARCLen uint8  `gorm:"column:arc_len"`
	ARC    []byte `gorm:"column:arc"`

	ARCWLen uint8  `gorm:"column:arcw_len"`
	ARCW    uint16 `gorm:"column:arcw"`
}

func (row) TableName() string { return "security_associations" }

func toRow(s *internalsa.SecurityAssociation) *row {
	ecs := append([]byte(nil), s.ECS[:]...)
	return &row{
		SPI:       s.SPI,
		EKID:      s.EKID,
		AKID:      s.AKID,
		SAState:   int(s.State),
		TFVN:      s.GVCIDTC.TFVN,
		SCID:      s.GVCIDTC.SCID,
		VCID:      s.GVCIDTC.VCID,
		MapID:     s.MAPID,
		LPID:      s.LPID,
		EST:       s.EST,
		AST:       s.AST,
		SHIVFLen:  s.SHIVFLen,
		SHSNFLen:  s.SHSNFLen,
		SHPLFLen:  s.SHPLFLen,
		STMACFLen: s.STMACFLen,
		ECSLen:    s.ECSLen,
		ECS:       ecs,
		IVLen:     uint8(len(s.IV)),
		IV:        append([]byte(nil), s.IV...),
		ACSLen:    s.ACSLen,
		ACS:       s.ACS,
		ABMLen:    uint8(len(s.ABM)),
		ABM:       append([]byte(nil), s.ABM...),
		ARCLen:    uint8(len(s.ARC)),
		ARC:       append([]byte(nil), s.ARC...),
		ARCWLen:   s.ARCWLen,
		ARCW:      s.ARCW,
	}
}

func fromRow(r *row) *internalsa.SecurityAssociation {
	out := &internalsa.SecurityAssociation{
		SPI:       r.SPI,
		GVCIDTC:   internalsa.GVCID{TFVN: r.TFVN, SCID: r.SCID, VCID: r.VCID},
		MAPID:     r.MapID,
		LPID:      r.LPID,
		EKID:      r.EKID,
		AKID:      r.AKID,
		State:     internalsa.State(r.SAState),
		EST:       r.EST,
		AST:       r.AST,
		SHIVFLen:  r.SHIVFLen,
		SHSNFLen:  r.SHSNFLen,
		SHPLFLen:  r.SHPLFLen,
		STMACFLen: r.STMACFLen,
		ECSLen:    r.ECSLen,
		ACSLen:    r.ACSLen,
		ACS:       r.ACS,
		IV:        append([]byte(nil), r.IV...),
		ARC:       append([]byte(nil), r.ARC...),
		ARCW:      r.ARCW,
		ARCWLen:   r.ARCWLen,
		ABM:       append([]byte(nil), r.ABM...),
	}
	copy(out.ECS[:], r.ECS)
	return out
}

// Store is the gorm-backed SA store.
type Store struct {
	db             *gorm.DB
	timeout        time.Duration
	uniquePerMAPID bool
}

// SetUniqueSAPerMAPID controls whether MAPID participates in the
// Operational-uniqueness scope (gvcid_tc, mapid) checked by SetState.
// When false, the scope narrows to gvcid_tc alone, so at most one
// Operational SA may exist per GVCID regardless of MAPID. Defaults to
// true, matching the behavior before this flag existed.
func (s *Store) SetUniqueSAPerMAPID(unique bool) {
	s.uniquePerMAPID = unique
}

// Open connects to the configured SQL backend and ensures the
// security_associations table exists. A connection failure is
// reported as sa.ErrStoreUnavailable, which the facade's Init reports
// as CodeSadbBackendUnavailable.
func Open(cfg Config) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Dialect {
	case DialectPostgres:
		dialector = postgres.Open(cfg.DSN)
	case DialectSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("sqlstore: unknown dialect %d", cfg.Dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalsa.ErrStoreUnavailable, err)
	}
	if err := db.AutoMigrate(&row{}); err != nil {
		return nil, fmt.Errorf("%w: %v", internalsa.ErrStoreUnavailable, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Store{db: db, timeout: timeout, uniquePerMAPID: true}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return nil
	}
	return sqlDB.Close()
}

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func sameMapID(a, b *uint8) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func wrapQueryErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return internalsa.ErrNotFound
	}
	return fmt.Errorf("%w: %v", internalsa.ErrStoreUnavailable, err)
}

func (s *Store) GetBySPI(spi uint16) (*internalsa.SecurityAssociation, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	var r row
	err := s.db.WithContext(ctx).First(&r, "spi = ?", spi).Error
	if err != nil {
		return nil, wrapQueryErr(err)
	}
	return fromRow(&r), nil
}

func (s *Store) GetOperational(gvcid internalsa.GVCID, mapid *uint8) (*internalsa.SecurityAssociation, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	q := s.db.WithContext(ctx).
		Where("tfvn = ? AND scid = ? AND vcid = ? AND sa_state = ?", gvcid.TFVN, gvcid.SCID, gvcid.VCID, int(internalsa.Operational))
	if mapid != nil {
		q = q.Where("mapid = ?", *mapid)
	} else {
		q = q.Where("mapid IS NULL")
	}
	var r row
	if err := q.First(&r).Error; err != nil {
		return nil, wrapQueryErr(err)
	}
	return fromRow(&r), nil
}

func (s *Store) GetAnyForGVCID(gvcid internalsa.GVCID) (*internalsa.SecurityAssociation, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	var r row
	err := s.db.WithContext(ctx).
		Where("tfvn = ? AND scid = ? AND vcid = ?", gvcid.TFVN, gvcid.SCID, gvcid.VCID).
		First(&r).Error
	if err != nil {
		return nil, wrapQueryErr(err)
	}
	return fromRow(&r), nil
}

// Save persists only iv and arc, per spec section 4.1.
func (s *Store) Save(update *internalsa.SecurityAssociation) error {
	ctx, cancel := s.ctx()
	defer cancel()
	res := s.db.WithContext(ctx).Model(&row{}).Where("spi = ?", update.SPI).
		Updates(map[string]interface{}{
			"iv":      append([]byte(nil), update.IV...),
			"iv_len":  len(update.IV),
			"arc":     append([]byte(nil), update.ARC...),
			"arc_len": len(update.ARC),
		})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", internalsa.ErrStoreUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return internalsa.ErrNotFound
	}
	return nil
}

func (s *Store) Create(newSA *internalsa.SecurityAssociation) error {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing row
		err := tx.First(&existing, "spi = ?", newSA.SPI).Error
		if err == nil {
			return internalsa.ErrDuplicate
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %v", internalsa.ErrStoreUnavailable, err)
		}
		if err := tx.Create(toRow(newSA)).Error; err != nil {
			return fmt.Errorf("%w: %v", internalsa.ErrStoreUnavailable, err)
		}
		return nil
	})
}

func (s *Store) Delete(spi uint16) error {
	ctx, cancel := s.ctx()
	defer cancel()
	res := s.db.WithContext(ctx).Delete(&row{}, "spi = ?", spi)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", internalsa.ErrStoreUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return internalsa.ErrNotFound
	}
	return nil
}

func (s *Store) SetState(spi uint16, newState internalsa.State) error {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target row
		if err := tx.First(&target, "spi = ?", spi).Error; err != nil {
			return wrapQueryErr(err)
		}
		if newState == internalsa.Operational {
			// MAPID equality (including both-NULL) is checked in Go
			// rather than SQL so sqlite and postgres share one NULL
			// semantics.
			var conflicts []row
			err := tx.Where("tfvn = ? AND scid = ? AND vcid = ? AND sa_state = ? AND spi <> ?",
				target.TFVN, target.SCID, target.VCID, int(internalsa.Operational), spi).
				Find(&conflicts).Error
			if err != nil {
				return fmt.Errorf("%w: %v", internalsa.ErrStoreUnavailable, err)
			}
			for i := range conflicts {
				if !s.uniquePerMAPID || sameMapID(conflicts[i].MapID, target.MapID) {
					return internalsa.ErrInvalidTransition
				}
			}
		}
		return tx.Model(&row{}).Where("spi = ?", spi).Update("sa_state", int(newState)).Error
	})
}

func (s *Store) SetARSN(spi uint16, arc []byte) error {
	ctx, cancel := s.ctx()
	defer cancel()
	res := s.db.WithContext(ctx).Model(&row{}).Where("spi = ?", spi).
		Updates(map[string]interface{}{"arc": append([]byte(nil), arc...), "arc_len": len(arc)})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", internalsa.ErrStoreUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return internalsa.ErrNotFound
	}
	return nil
}

func (s *Store) SetARSNW(spi uint16, arcw uint16) error {
	ctx, cancel := s.ctx()
	defer cancel()
	res := s.db.WithContext(ctx).Model(&row{}).Where("spi = ?", spi).Update("arcw", arcw)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", internalsa.ErrStoreUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return internalsa.ErrNotFound
	}
	return nil
}

func (s *Store) Rekey(spi uint16, ekid, akid uint16) error {
	ctx, cancel := s.ctx()
	defer cancel()
	res := s.db.WithContext(ctx).Model(&row{}).Where("spi = ?", spi).
		Updates(map[string]interface{}{"ekid": ekid, "akid": akid, "sa_state": int(internalsa.Keyed)})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", internalsa.ErrStoreUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return internalsa.ErrNotFound
	}
	return nil
}

func (s *Store) Expire(spi uint16) error {
	ctx, cancel := s.ctx()
	defer cancel()
	res := s.db.WithContext(ctx).Model(&row{}).Where("spi = ?", spi).
		Updates(map[string]interface{}{"ekid": 0, "akid": 0, "sa_state": int(internalsa.Unkeyed)})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", internalsa.ErrStoreUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return internalsa.ErrNotFound
	}
	return nil
}

func (s *Store) List() ([]*internalsa.SecurityAssociation, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	var rows []row
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", internalsa.ErrStoreUnavailable, err)
	}
	out := make([]*internalsa.SecurityAssociation, 0, len(rows))
	for i := range rows {
		out = append(out, fromRow(&rows[i]))
	}
	return out, nil
}
