package config

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/davidprivate500/gonthia-crm-sub001/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const tenantColumn = "tenant_id"

// ErrCrossTenantWrite is returned when a create carries a tenant_id other than the
// tenant bound to the context.
var ErrCrossTenantWrite = errors.New("tenant guard: row belongs to another tenant")

// TenantGuardPlugin scopes reads, updates and deletes on tenant-owned tables to the
// tenant bound to the context, and rejects creates into another tenant.
//
// Raw SQL is not rewritten. Jobs that work across tenants (the demo generator, the
// dispatcher) opt out with utils.SystemContext; internal admin requests opt out with the
// admin flag.
type TenantGuardPlugin struct{}

func NewTenantGuardPlugin() *TenantGuardPlugin { return &TenantGuardPlugin{} }

func (p *TenantGuardPlugin) Name() string { return "tenant_guard" }

func (p *TenantGuardPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		name     string
		register func(name string, fn func(*gorm.DB)) error
	}{
		{"tenant_guard:query", cb.Query().Before("gorm:query").Register},
		{"tenant_guard:row", cb.Row().Before("gorm:row").Register},
		{"tenant_guard:update", cb.Update().Before("gorm:update").Register},
		{"tenant_guard:delete", cb.Delete().Before("gorm:delete").Register},
	}
	for _, h := range hooks {
		if err := h.register(h.name, scopeToTenant); err != nil {
			return err
		}
	}
	return cb.Create().Before("gorm:create").Register("tenant_guard:create", checkCreateTenant)
}

// guardedTenant returns the tenant the statement must be limited to, or "" when the
// statement is unguarded.
func guardedTenant(db *gorm.DB) string {
	if db == nil || db.Statement == nil || db.Statement.Context == nil || db.Statement.Schema == nil {
		return ""
	}
	ctx := db.Statement.Context
	if bypassTenantScope(ctx) {
		return ""
	}
	if db.Statement.Schema.LookUpField(tenantColumn) == nil {
		return ""
	}
	tenantID, _ := appctx.Value[string](ctx, appctx.ContextKeyTenantId)
	return tenantID
}

func bypassTenantScope(ctx context.Context) bool {
	if skip, _ := appctx.Value[bool](ctx, appctx.ContextKeySkipTenantScope); skip {
		return true
	}
	admin, _ := appctx.Value[bool](ctx, appctx.ContextKeyIsAdmin)
	return admin
}

func scopeToTenant(db *gorm.DB) {
	tenantID := guardedTenant(db)
	if tenantID == "" {
		return
	}
	if where, ok := db.Statement.Clauses["WHERE"].Expression.(clause.Where); ok && mentionsTenant(where.Exprs...) {
		return
	}
	db.Statement.AddClause(clause.Where{Exprs: []clause.Expression{
		clause.Eq{Column: clause.Column{Table: db.Statement.Table, Name: tenantColumn}, Value: tenantID},
	}})
}

func checkCreateTenant(db *gorm.DB) {
	tenantID := guardedTenant(db)
	if tenantID == "" {
		return
	}
	field := db.Statement.Schema.LookUpField(tenantColumn)
	rv := db.Statement.ReflectValue
	check := func(row reflect.Value) {
		v, zero := field.ValueOf(db.Statement.Context, row)
		if zero {
			return
		}
		if got := fmt.Sprint(v); got != tenantID {
			_ = db.AddError(fmt.Errorf("%w: %s", ErrCrossTenantWrite, got))
		}
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			check(reflect.Indirect(rv.Index(i)))
		}
	case reflect.Struct:
		check(rv)
	}
}

// mentionsTenant reports whether an explicit tenant_id condition is already present.
func mentionsTenant(exprs ...clause.Expression) bool {
	for _, e := range exprs {
		var col any
		switch v := e.(type) {
		case clause.Eq:
			col = v.Column
		case clause.Neq:
			col = v.Column
		case clause.IN:
			col = v.Column
		case clause.AndConditions:
			if mentionsTenant(v.Exprs...) {
				return true
			}
		case clause.OrConditions:
			if mentionsTenant(v.Exprs...) {
				return true
			}
		case clause.Expr:
			if strings.Contains(strings.ToLower(v.SQL), tenantColumn) {
				return true
			}
		case clause.NamedExpr:
			if strings.Contains(strings.ToLower(v.SQL), tenantColumn) {
				return true
			}
		}
		switch c := col.(type) {
		case string:
			if strings.EqualFold(c, tenantColumn) {
				return true
			}
		case clause.Column:
			if strings.EqualFold(c.Name, tenantColumn) {
				return true
			}
		}
	}
	return false
}
