package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/99designs/gqlgen/graphql"
	"github.com/davidprivate500/gonthia-crm-sub001/demogen"
	"github.com/davidprivate500/gonthia-crm-sub001/models"
	"github.com/davidprivate500/gonthia-crm-sub001/models/reports"
	"github.com/davidprivate500/gonthia-crm-sub001/utils"
	"github.com/sirupsen/logrus"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Error codes set on extensions.code.
const (
	CodeBadInput   = "BAD_USER_INPUT"
	CodeValidation = "VALIDATION_FAILED"
	CodeNotFound   = "NOT_FOUND"
	CodeConflict   = "CONFLICT"
	CodeInternal   = "INTERNAL"
)

// TenantReader batch-loads tenants for the tenant field of jobs and patches.
type TenantReader interface {
	ListTenants(ctx context.Context, ids []string) ([]models.Tenant, error)
}

// Resolver holds what the demo operations delegate to.
type Resolver struct {
	Tracer    trace.Tracer
	Generator *demogen.Generator
	Patches   *demogen.PatchEngine
	Metrics   *reports.DemoMetricsReader
	Tenants   TenantReader
	Logger    *logrus.Logger
}

func (r *Resolver) queries() map[string]rootFunc {
	return map[string]rootFunc{
		"demoPreview":       r.demoPreview,
		"demoJob":           r.demoJob,
		"demoPatch":         r.demoPatch,
		"demoTenantMetrics": r.demoTenantMetrics,
	}
}

func (r *Resolver) mutations() map[string]rootFunc {
	return map[string]rootFunc{
		"createDemoJob":    r.createDemoJob,
		"startDemoJob":     r.step("start"),
		"continueDemoJob":  r.step("continue"),
		"retryDemoJob":     r.step("retry"),
		"deleteDemoTenant": r.deleteDemoTenant,
		"createDemoPatch":  r.createDemoPatch,
		"runDemoPatch":     r.runDemoPatch,
	}
}

func (r *Resolver) objectFields() map[string]map[string]fieldFunc {
	return map[string]map[string]fieldFunc{
		"DemoGenerationJob": {"tenant": r.jobTenant},
		"DemoPatchJob":      {"tenant": r.patchTenant},
	}
}

/* queries */

func (r *Resolver) demoPreview(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var cfg models.JobConfig
	if err := decodeArg(args, "config", &cfg); err != nil {
		return nil, err
	}
	preview, err := r.Generator.Preview(cfg)
	if err != nil {
		return nil, r.present(ctx, err)
	}
	return preview, nil
}

func (r *Resolver) demoJob(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	job, err := r.Generator.Status(ctx, stringArg(args, "id"))
	if err != nil {
		return nil, r.present(ctx, err)
	}
	return job, nil
}

func (r *Resolver) demoPatch(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	job, err := r.Patches.Status(ctx, stringArg(args, "id"))
	if err != nil {
		return nil, r.present(ctx, err)
	}
	return job, nil
}

// demoTenantMetrics reads the reporting view for from..to; to defaults to from.
func (r *Resolver) demoTenantMetrics(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	tenantID := stringArg(args, "tenantId")
	from, to := stringArg(args, "from"), stringArg(args, "to")
	if to == "" {
		to = from
	}
	months, err := models.MonthRange(from, to)
	if err != nil {
		return nil, badInput(err)
	}
	ctx = utils.SetTenantIdInContext(ctx, tenantID)
	metrics, err := r.Metrics.PeriodMetrics(ctx, tenantID, months)
	if err != nil {
		return nil, r.present(ctx, err)
	}
	return metrics, nil
}

/* mutations */

func (r *Resolver) createDemoJob(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var req demogen.CreateJobRequest
	if err := decodeArg(args, "input", &req); err != nil {
		return nil, err
	}
	job, err := r.Generator.CreateJob(ctx, req)
	if err != nil {
		return nil, r.present(ctx, err)
	}
	return job, nil
}

func (r *Resolver) step(action string) rootFunc {
	return func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		id := stringArg(args, "id")
		ctx, span := r.Tracer.Start(ctx, "demo."+action, trace.WithAttributes(attribute.String("job.id", id)))
		defer span.End()

		var (
			res *demogen.StepResult
			err error
		)
		switch action {
		case "start":
			res, err = r.Generator.Start(ctx, id)
		case "continue":
			res, err = r.Generator.Continue(ctx, id)
		default:
			res, err = r.Generator.Retry(ctx, id)
		}
		if err != nil {
			span.RecordError(err)
			return nil, r.present(ctx, err)
		}
		return res, nil
	}
}

func (r *Resolver) deleteDemoTenant(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if err := r.Generator.DeleteTenant(ctx, stringArg(args, "id")); err != nil {
		return nil, r.present(ctx, err)
	}
	return true, nil
}

func (r *Resolver) createDemoPatch(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var req demogen.PatchRequest
	if err := decodeArg(args, "input", &req); err != nil {
		return nil, err
	}
	if req.RequestedBy == "" {
		req.RequestedBy = RequestedByFromContext(ctx)
	}
	job, err := r.Patches.CreatePatch(ctx, req)
	if err != nil {
		return nil, r.present(ctx, err)
	}
	return job, nil
}

func (r *Resolver) runDemoPatch(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	id := stringArg(args, "id")
	ctx, span := r.Tracer.Start(ctx, "demo.patch.run", trace.WithAttributes(attribute.String("patch.id", id)))
	defer span.End()
	res, err := r.Patches.Run(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, r.present(ctx, err)
	}
	return res, nil
}

/* object fields */

func (r *Resolver) jobTenant(ctx context.Context, parent interface{}) (interface{}, error) {
	job, ok := parent.(models.GenerationJob)
	if !ok || job.CreatedTenantId == nil {
		return nil, nil
	}
	return GetTenant(ctx, *job.CreatedTenantId)
}

func (r *Resolver) patchTenant(ctx context.Context, parent interface{}) (interface{}, error) {
	job, ok := parent.(models.DemoPatchJob)
	if !ok {
		return nil, nil
	}
	return GetTenant(ctx, job.TenantId)
}

// present maps generator errors onto coded GraphQL errors. Unknown errors are logged
// and hidden behind a generic message.
func (r *Resolver) present(ctx context.Context, err error) error {
	var (
		verr *demogen.ValidationError
		gerr *gqlerror.Error
	)
	switch {
	case errors.As(err, &gerr):
		return gerr
	case errors.As(err, &verr):
		return &gqlerror.Error{
			Message:    "validation failed",
			Extensions: map[string]interface{}{"code": CodeValidation, "issues": verr.Issues},
		}
	case errors.Is(err, demogen.ErrJobNotFound), errors.Is(err, demogen.ErrPatchNotFound), errors.Is(err, demogen.ErrTenantNotFound):
		return coded(CodeNotFound, err)
	case errors.Is(err, demogen.ErrJobFailed), errors.Is(err, demogen.ErrJobNotFailed),
		errors.Is(err, demogen.ErrJobNotStarted), errors.Is(err, demogen.ErrNotDemoTenant):
		return coded(CodeConflict, err)
	}
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	entry := r.Logger.WithFields(logrus.Fields{"field": "graph", "correlation_id": cid})
	if fc := graphql.GetFieldContext(ctx); fc != nil {
		entry = entry.WithField("path", fc.Path().String())
	}
	entry.WithError(err).Error("demo operation failed")
	return &gqlerror.Error{Message: "internal error", Extensions: map[string]interface{}{"code": CodeInternal}}
}

func coded(code string, err error) *gqlerror.Error {
	return &gqlerror.Error{Message: err.Error(), Extensions: map[string]interface{}{"code": code}}
}

func badInput(err error) error {
	return coded(CodeBadInput, err)
}

// decodeArg copies args[key] into dst through JSON, so request structs keep their
// json tags and validation.
func decodeArg(args map[string]interface{}, key string, dst interface{}) error {
	raw, err := json.Marshal(args[key])
	if err != nil {
		return badInput(fmt.Errorf("%s: %w", key, err))
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return badInput(fmt.Errorf("%s: %w", key, err))
	}
	return nil
}

func stringArg(args map[string]interface{}, key string) string {
	switch v := args[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

type requestedByKey struct{}

// WithRequestedBy records the caller named by the X-Requested-By header.
func WithRequestedBy(ctx context.Context, who string) context.Context {
	return context.WithValue(ctx, requestedByKey{}, who)
}

func RequestedByFromContext(ctx context.Context) string {
	who, _ := ctx.Value(requestedByKey{}).(string)
	return who
}
