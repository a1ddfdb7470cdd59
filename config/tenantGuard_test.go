package config

import (
	"context"
	"errors"
	"testing"

	"github.com/davidprivate500/gonthia-crm-sub001/appctx"
	"gorm.io/gorm"
)

type guardedNote struct {
	ID       uint `gorm:"primaryKey"`
	TenantID string
	Body     string
}

type globalSetting struct {
	ID    uint `gorm:"primaryKey"`
	Key   string
	Value string
}

func newGuardedDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := db.Use(NewTenantGuardPlugin()); err != nil {
		t.Fatalf("Use: %v", err)
	}
	if err := db.AutoMigrate(&guardedNote{}, &globalSetting{}); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	system := appctx.Set(context.Background(), appctx.ContextKeySkipTenantScope, true)
	notes := []guardedNote{{TenantID: "t1", Body: "a"}, {TenantID: "t1", Body: "b"}, {TenantID: "t2", Body: "c"}}
	if err := db.WithContext(system).Create(&notes).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := db.WithContext(system).Create(&globalSetting{Key: "k", Value: "v"}).Error; err != nil {
		t.Fatalf("seed setting: %v", err)
	}
	return db
}

func tenantCtx(id string) context.Context {
	return appctx.Set(context.Background(), appctx.ContextKeyTenantId, id)
}

func TestTenantGuardScopesReads(t *testing.T) {
	db := newGuardedDB(t)

	var notes []guardedNote
	if err := db.WithContext(tenantCtx("t1")).Find(&notes).Error; err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("tenant t1 sees %d notes, want 2", len(notes))
	}

	admin := appctx.Set(tenantCtx("t1"), appctx.ContextKeyIsAdmin, true)
	if err := db.WithContext(admin).Find(&notes).Error; err != nil || len(notes) != 3 {
		t.Fatalf("admin sees %d notes (%v), want 3", len(notes), err)
	}

	// An explicit tenant filter is left alone.
	if err := db.WithContext(tenantCtx("t1")).Where("tenant_id = ?", "t2").Find(&notes).Error; err != nil || len(notes) != 1 {
		t.Fatalf("explicit filter returned %d notes (%v)", len(notes), err)
	}

	var settings []globalSetting
	if err := db.WithContext(tenantCtx("t1")).Find(&settings).Error; err != nil || len(settings) != 1 {
		t.Fatalf("untenanted table returned %d rows (%v)", len(settings), err)
	}
}

func TestTenantGuardScopesWrites(t *testing.T) {
	db := newGuardedDB(t)
	ctx := tenantCtx("t1")

	res := db.WithContext(ctx).Model(&guardedNote{}).Where("body <> ?", "").Update("body", "x")
	if res.Error != nil || res.RowsAffected != 2 {
		t.Fatalf("update affected %d rows (%v), want 2", res.RowsAffected, res.Error)
	}
	res = db.WithContext(ctx).Where("1 = 1").Delete(&guardedNote{})
	if res.Error != nil || res.RowsAffected != 2 {
		t.Fatalf("delete affected %d rows (%v), want 2", res.RowsAffected, res.Error)
	}

	var left []guardedNote
	system := appctx.Set(context.Background(), appctx.ContextKeySkipTenantScope, true)
	if err := db.WithContext(system).Find(&left).Error; err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(left) != 1 || left[0].TenantID != "t2" || left[0].Body != "c" {
		t.Fatalf("other tenant touched: %+v", left)
	}
}

func TestTenantGuardRejectsCrossTenantCreate(t *testing.T) {
	db := newGuardedDB(t)
	ctx := tenantCtx("t1")

	err := db.WithContext(ctx).Create(&guardedNote{TenantID: "t2", Body: "sneaky"}).Error
	if !errors.Is(err, ErrCrossTenantWrite) {
		t.Fatalf("cross-tenant create error = %v", err)
	}
	batch := []guardedNote{{TenantID: "t1", Body: "ok"}, {TenantID: "t2", Body: "no"}}
	if err := db.WithContext(ctx).Create(&batch).Error; !errors.Is(err, ErrCrossTenantWrite) {
		t.Fatalf("mixed batch error = %v", err)
	}
	if err := db.WithContext(ctx).Create(&guardedNote{TenantID: "t1", Body: "mine"}).Error; err != nil {
		t.Fatalf("own create: %v", err)
	}
}

func TestIsDuplicateKeyErr(t *testing.T) {
	db := newGuardedDB(t)
	system := appctx.Set(context.Background(), appctx.ContextKeySkipTenantScope, true)
	err := db.WithContext(system).Create(&guardedNote{ID: 1, TenantID: "t1"}).Error
	if !IsDuplicateKeyErr(err) {
		t.Fatalf("IsDuplicateKeyErr(%v) = false", err)
	}
	if IsDuplicateKeyErr(nil) || IsDuplicateKeyErr(errors.New("boom")) {
		t.Fatalf("false positive")
	}
}
