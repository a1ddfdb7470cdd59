package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/davidprivate500/gonthia-crm-sub001/demogen"
	"github.com/davidprivate500/gonthia-crm-sub001/models/reports"
	"github.com/davidprivate500/gonthia-crm-sub001/workflow"
	"github.com/spf13/cobra"
)

var patchCmd = &cobra.Command{
	Use:   "patch",
	Short: "Create a patch job for a demo tenant and run it",
	Long: "demogen patch --request patch.json [--no-run]\n\n" +
		"The request names the tenant, mode (additive, reconcile, metrics-only), plan type (targets, deltas)\n" +
		"and the months. The patch is run until it completes unless --no-run is given.",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("request")
		noRun, _ := cmd.Flags().GetBool("no-run")
		var req demogen.PatchRequest
		if err := readJSONFile(path, &req); err != nil {
			return err
		}
		ctx := commandContext(cmd)
		job, err := svc.Patches.CreatePatch(ctx, req)
		if err != nil {
			return err
		}
		fmt.Printf("Patch: %s (%s, %s %s..%s)\n", job.ID, job.Mode, job.PlanType, job.RangeStart, job.RangeEnd)
		if noRun {
			return nil
		}
		for {
			res, err := svc.Patches.Run(ctx, job.ID)
			if err != nil {
				return err
			}
			printStep(res)
			if res.Done() {
				break
			}
			if res.Skipped {
				time.Sleep(time.Second)
			}
		}
		done, err := svc.Patches.Status(ctx, job.ID)
		if err != nil {
			return err
		}
		return printJSON(done.Diff.Data())
	},
}

var teardownCmd = &cobra.Command{
	Use:   "teardown [tenant-id]",
	Short: "Delete a demo tenant and everything it owns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := svc.Generator.DeleteTenant(commandContext(cmd), args[0]); err != nil {
			return err
		}
		fmt.Printf("Tenant %s deleted\n", args[0])
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report [job-id]",
	Short: "Print the verification report of a job",
	Long:  "demogen report <job-id> [--xlsx file.xlsx]\n\nPrints the verification report as JSON, or writes it as a workbook.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := svc.Generator.Status(commandContext(cmd), args[0])
		if err != nil {
			return err
		}
		report := job.VerificationReport.Data()
		if report == nil {
			return fmt.Errorf("job %s has no verification report yet (status %s)", job.ID, job.Status)
		}
		out, _ := cmd.Flags().GetString("xlsx")
		if out == "" {
			return printJSON(report)
		}
		f, err := reports.ExportVerificationExcel(report)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := f.SaveAs(out); err != nil {
			return fmt.Errorf("save %s: %w", out, err)
		}
		fmt.Printf("Report written to %s\n", out)
		return nil
	},
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run the continuation dispatcher",
	Long:  "demogen dispatch [--once]\n\nPolls for runnable generation and patch jobs and advances them until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		once, _ := cmd.Flags().GetBool("once")
		interval, _ := cmd.Flags().GetDuration("interval")

		d := workflow.NewDemoDispatcher(svc.DB, svc.Logger, svc.Generator, svc.Patches)
		if interval > 0 {
			d.PollInterval = interval
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if once {
			fmt.Printf("Dispatched %d step(s)\n", d.DispatchOnce(ctx))
			return nil
		}
		d.Run(ctx)
		return nil
	},
}

func init() {
	patchCmd.Flags().String("request", "-", "Patch request JSON file (- for stdin)")
	patchCmd.Flags().Bool("no-run", false, "Only create the patch job")

	reportCmd.Flags().String("xlsx", "", "Write the report to this workbook instead of stdout")

	dispatchCmd.Flags().Bool("once", false, "Run a single poll and exit")
	dispatchCmd.Flags().Duration("interval", 0, "Poll interval (default 2s)")
}
