package main

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/davidprivate500/gonthia-crm-sub001/config"
	"github.com/davidprivate500/gonthia-crm-sub001/demogen"
	"github.com/davidprivate500/gonthia-crm-sub001/graph"
	"github.com/davidprivate500/gonthia-crm-sub001/models"
	"github.com/davidprivate500/gonthia-crm-sub001/models/reports"
	"github.com/davidprivate500/gonthia-crm-sub001/utils"
	"github.com/davidprivate500/gonthia-crm-sub001/workflow"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const internalTokenHeader = "X-Internal-Token"

// demoService bundles the generator pieces the handlers and the dispatcher share.
type demoService struct {
	Generator *demogen.Generator
	Patches   *demogen.PatchEngine
	Metrics   *reports.DemoMetricsReader
	Logger    *logrus.Logger
	Graph     http.Handler
}

var demoSvc atomic.Pointer[demoService]

func currentDemoService() *demoService { return demoSvc.Load() }

func setDemoService(s *demoService) { demoSvc.Store(s) }

func newDemoService(db *gorm.DB, logger *logrus.Logger) *demoService {
	metrics := reports.NewDemoMetricsReader(db, logger)
	g := demogen.NewGenerator(models.NewDemoStore(db), config.LoadDemoSettings(), logger)
	g.Metrics = metrics
	g.Locker = workflow.NewRedisLocker(config.GetRedisLock())
	g.AllowedCountries = config.DemoAllowedCountries()
	svc := &demoService{
		Generator: g,
		Patches:   demogen.NewPatchEngine(g, metrics),
		Metrics:   metrics,
		Logger:    logger,
	}
	svc.Graph = graph.NewHandler(&graph.Resolver{
		Tracer:    tracer,
		Generator: svc.Generator,
		Patches:   svc.Patches,
		Metrics:   metrics,
		Tenants:   models.NewDemoStore(db),
		Logger:    logger,
	}, graph.NewCache(config.GetRedisDB, 24*time.Hour), !isProduction())
	return svc
}

// internalAuth guards the demo endpoints with a shared token when DEMO_INTERNAL_TOKEN is set.
func internalAuth() gin.HandlerFunc {
	want := strings.TrimSpace(os.Getenv("DEMO_INTERNAL_TOKEN"))
	return func(c *gin.Context) {
		if want != "" {
			got := c.GetHeader(internalTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
		}
		c.Request = c.Request.WithContext(utils.SetIsAdminInContext(c.Request.Context(), true))
		c.Next()
	}
}

// registerDemoRoutes mounts the GraphQL endpoint. Only the xlsx downloads stay plain HTTP.
func registerDemoRoutes(rg *gin.RouterGroup) {
	rg.POST("/query", graphqlHandler)
	rg.GET("/schema.graphql", schemaHandler)
	if !isProduction() {
		rg.GET("/playground", playgroundHandler())
	}
	rg.GET("/jobs/:id/report.xlsx", jobReportHandler)
	rg.GET("/patches/:id/diff.xlsx", patchDiffHandler)
}

func graphqlHandler(c *gin.Context) {
	ctx := graph.WithRequestedBy(c.Request.Context(), c.GetHeader("X-Requested-By"))
	currentDemoService().Graph.ServeHTTP(c.Writer, c.Request.WithContext(ctx))
}

func schemaHandler(c *gin.Context) {
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(graph.SchemaSDL()))
}

func playgroundHandler() gin.HandlerFunc {
	h := playground.Handler("Demo generator", "/internal/demo/query")
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// respondError answers a failed download; GraphQL operations report errors in the body.
func respondError(c *gin.Context, err error) {
	if errors.Is(err, demogen.ErrJobNotFound) || errors.Is(err, demogen.ErrPatchNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func jobReportHandler(c *gin.Context) {
	job, err := currentDemoService().Generator.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	report := job.VerificationReport.Data()
	if report == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "job has no verification report yet"})
		return
	}
	f, err := reports.ExportVerificationExcel(report)
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()
	writeXlsx(c, "verification-"+job.ID+".xlsx", f.Write)
}

func patchDiffHandler(c *gin.Context) {
	job, err := currentDemoService().Patches.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	diff := job.Diff.Data()
	if diff == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "patch has no diff yet"})
		return
	}
	f, err := reports.ExportPatchDiffExcel(diff)
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()
	writeXlsx(c, "patch-diff-"+job.ID+".xlsx", f.Write)
}

func writeXlsx(c *gin.Context, name string, write func(w io.Writer, opts ...excelize.Options) error) {
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Status(http.StatusOK)
	if err := write(c.Writer); err != nil {
		_ = c.Error(err)
	}
}
