package graph

import (
	"context"
	_ "embed"
	"errors"
	"net/http"

	"github.com/99designs/gqlgen/graphql"
	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/handler/extension"
	"github.com/99designs/gqlgen/graphql/handler/transport"
	"github.com/99designs/gqlgen/graphql/introspection"
	"github.com/ravilushqa/otelgqlgen"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"go.opentelemetry.io/otel"
)

//go:embed schema.graphqls
var schemaSDL string

var errIntrospection = errors.New("introspection disabled")

// SchemaSDL returns the schema source served to tooling.
func SchemaSDL() string {
	return schemaSDL
}

func NewExecutableSchema(r *Resolver) graphql.ExecutableSchema {
	schema := gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphqls", Input: schemaSDL})
	queries := r.queries()
	queries["__schema"] = func(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
		if graphql.GetOperationContext(ctx).DisableIntrospection {
			return nil, errIntrospection
		}
		return introspection.WrapSchema(schema), nil
	}
	queries["__type"] = func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		if graphql.GetOperationContext(ctx).DisableIntrospection {
			return nil, errIntrospection
		}
		def := schema.Types[stringArg(args, "name")]
		if def == nil {
			return nil, nil
		}
		return introspection.WrapTypeFromDef(schema, def), nil
	}
	return &executableSchema{
		schema: schema,
		roots: map[ast.Operation]map[string]rootFunc{
			ast.Query:    queries,
			ast.Mutation: r.mutations(),
		},
		fields: r.objectFields(),
	}
}

// NewHandler serves the demo schema over POST. cache enables automatic persisted
// queries; introspect turns on schema introspection.
func NewHandler(r *Resolver, cache graphql.Cache, introspect bool) http.Handler {
	if r.Tracer == nil {
		r.Tracer = otel.Tracer("gonthia-crm/graph")
	}
	h := handler.New(NewExecutableSchema(r))
	h.AddTransport(transport.Options{})
	h.AddTransport(transport.POST{})
	if introspect {
		h.Use(extension.Introspection{})
	}
	h.Use(otelgqlgen.Middleware())
	if cache != nil {
		h.Use(extension.AutomaticPersistedQuery{Cache: cache})
	}
	return LoaderMiddleware(r.Tenants, h)
}
