package graph

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/davidprivate500/gonthia-crm-sub001/models"
	"github.com/graph-gophers/dataloader/v7"
)

type ctxKey string

const (
	loadersKey = ctxKey("dataloaders")
)

// Loaders batch the lookups object fields make while one request is resolved.
type Loaders struct {
	tenantLoader *dataloader.Loader[string, *models.Tenant]
}

type tenantBatchReader struct {
	tenants TenantReader
}

func (r *tenantBatchReader) getTenants(ctx context.Context, ids []string) []*dataloader.Result[*models.Tenant] {
	rows, err := r.tenants.ListTenants(ctx, ids)
	if err != nil {
		return handleError[*models.Tenant](len(ids), err)
	}
	byID := make(map[string]*models.Tenant, len(rows))
	for i := range rows {
		byID[rows[i].ID] = &rows[i]
	}
	results := make([]*dataloader.Result[*models.Tenant], 0, len(ids))
	for _, id := range ids {
		results = append(results, &dataloader.Result[*models.Tenant]{Data: byID[id]})
	}
	return results
}

func NewLoaders(tenants TenantReader) *Loaders {
	tenantReader := &tenantBatchReader{tenants: tenants}
	return &Loaders{
		tenantLoader: dataloader.NewBatchedLoader(tenantReader.getTenants, dataloader.WithWait[string, *models.Tenant](time.Millisecond)),
	}
}

// LoaderMiddleware gives every request fresh loaders so cached rows never outlive it.
func LoaderMiddleware(tenants TenantReader, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := context.WithValue(req.Context(), loadersKey, NewLoaders(tenants))
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

func For(ctx context.Context) *Loaders {
	loaders, _ := ctx.Value(loadersKey).(*Loaders)
	return loaders
}

// GetTenant returns nil without error for an unknown id.
func GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	loaders := For(ctx)
	if loaders == nil {
		return nil, errors.New("dataloaders missing from request context")
	}
	return loaders.tenantLoader.Load(ctx, id)()
}

// handleError repeats err for every requested key.
func handleError[T any](itemsLength int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], itemsLength)
	for i := 0; i < itemsLength; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}
