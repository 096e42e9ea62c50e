package config

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/brewery_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const ownerColumn = "creator_id"

// OwnerGuardPlugin scopes queries/updates/deletes to the request's user when
// the model has a creator_id column.
//
// NOTE:
//   - This does NOT apply to Raw SQL or db.Table(...) queries without a model.
//     The sequence store relies on that: code existence checks are global.
//   - Public pages bypass explicitly via appctx.ContextKeySkipOwnerScope.
type OwnerGuardPlugin struct{}

func NewOwnerGuardPlugin() *OwnerGuardPlugin { return &OwnerGuardPlugin{} }

func (p *OwnerGuardPlugin) Name() string { return "owner_guard" }

func (p *OwnerGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("owner_guard:query", ownerGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("owner_guard:row", ownerGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("owner_guard:update", ownerGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("owner_guard:delete", ownerGuardCallback); err != nil {
		return err
	}
	return nil
}

func ownerGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	if shouldBypassOwnerScope(ctx) {
		return
	}
	userId, ok := ownerIdFromContext(ctx)
	if !ok {
		return
	}

	if db.Statement.Schema == nil {
		return
	}
	if db.Statement.Schema.LookUpField(ownerColumn) == nil {
		return
	}

	// Don't duplicate an explicit owner filter.
	if whereHasOwner(db.Statement.Clauses["WHERE"]) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: ownerColumn},
				Value:  userId,
			},
		},
	})
}

func ownerIdFromContext(ctx context.Context) (int, bool) {
	if v, ok := appctx.GetInt(ctx, appctx.ContextKeyUserId); ok && v > 0 {
		return v, true
	}
	return 0, false
}

func shouldBypassOwnerScope(ctx context.Context) bool {
	v, ok := appctx.GetBool(ctx, appctx.ContextKeySkipOwnerScope)
	return ok && v
}

func whereHasOwner(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasOwner(e) {
			return true
		}
	}
	return false
}

func exprHasOwner(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsOwner(v.Column)
	case clause.Neq:
		return colIsOwner(v.Column)
	case clause.IN:
		return colIsOwner(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasOwner(x) {
				return true
			}
		}
		return false
	case clause.OrConditions:
		for _, x := range v.Exprs {
			if exprHasOwner(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		// Best-effort for raw expressions.
		return strings.Contains(strings.ToLower(v.SQL), ownerColumn)
	case clause.NamedExpr:
		return strings.Contains(strings.ToLower(v.SQL), ownerColumn)
	default:
		return false
	}
}

func colIsOwner(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, ownerColumn)
	case clause.Column:
		return strings.EqualFold(c.Name, ownerColumn)
	default:
		return false
	}
}
