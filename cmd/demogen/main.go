// demogen drives the demo tenant generator from a shell, without the HTTP server.
//
// Usage (from backend directory):
//
//	DB_DRIVER=sqlite DB_PATH=demo.db REDIS_OPTIONAL=true go run ./cmd/demogen create --config plan.json --run
//	go run ./cmd/demogen status <job-id>
//	go run ./cmd/demogen report <job-id> --xlsx report.xlsx
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/davidprivate500/gonthia-crm-sub001/config"
	"github.com/davidprivate500/gonthia-crm-sub001/demogen"
	"github.com/davidprivate500/gonthia-crm-sub001/models"
	"github.com/davidprivate500/gonthia-crm-sub001/models/reports"
	"github.com/davidprivate500/gonthia-crm-sub001/utils"
	"github.com/davidprivate500/gonthia-crm-sub001/workflow"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var rootCmd = &cobra.Command{
	Use:          "demogen",
	Short:        "Demo tenant generator",
	Long:         "demogen creates, advances, patches and tears down synthetic demo tenants.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations["offline"] == "true" {
			return nil
		}
		return connect(cmd)
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// service is built once per invocation by connect.
type service struct {
	DB        *gorm.DB
	Logger    *logrus.Logger
	Generator *demogen.Generator
	Patches   *demogen.PatchEngine
	Metrics   *reports.DemoMetricsReader
}

var svc *service

func connect(cmd *cobra.Command) error {
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized; set DB_* env vars")
	}
	if migrate, _ := cmd.Flags().GetBool("migrate"); migrate {
		if err := models.Migrate(db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	config.ConnectRedisWithRetry()

	logger := config.GetLogger()
	metrics := reports.NewDemoMetricsReader(db, logger)
	g := demogen.NewGenerator(models.NewDemoStore(db), config.LoadDemoSettings(), logger)
	g.Metrics = metrics
	g.Locker = workflow.NewRedisLocker(config.GetRedisLock())
	g.AllowedCountries = config.DemoAllowedCountries()
	svc = &service{
		DB:        db,
		Logger:    logger,
		Generator: g,
		Patches:   demogen.NewPatchEngine(g, metrics),
		Metrics:   metrics,
	}
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return utils.SetCorrelationIdInContext(ctx, "cli:"+cmd.Name())
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	return utils.MarshalToPrint(os.Stdout, v)
}

// readJSONFile decodes path into out; "-" reads stdin.
func readJSONFile[T any](path string, out *T) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := utils.UnmarshalFromJSON(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func init() {
	cobra.EnableCommandSorting = false

	rootCmd.PersistentFlags().Bool("migrate", false, "Run AutoMigrate before the command")
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(continueCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(patchCmd)
	rootCmd.AddCommand(teardownCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(dispatchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var verr *demogen.ValidationError
		if errors.As(err, &verr) {
			_ = printJSON(verr.Issues)
		}
		os.Exit(1)
	}
}
