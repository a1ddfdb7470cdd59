package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/davidprivate500/gonthia-crm-sub001/config"
	"github.com/davidprivate500/gonthia-crm-sub001/demogen"
	"github.com/davidprivate500/gonthia-crm-sub001/models"
	"github.com/spf13/cobra"
)

var previewCmd = &cobra.Command{
	Use:         "preview",
	Short:       "Show the monthly targets and estimates of a job config",
	Long:        "demogen preview --config job.json\n\nValidates the config and prints the monthly plan without touching the database.",
	Annotations: map[string]string{"offline": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		var cfg models.JobConfig
		if err := readJSONFile(path, &cfg); err != nil {
			return err
		}
		g := demogen.NewGenerator(nil, config.LoadDemoSettings(), config.GetLogger())
		g.AllowedCountries = config.DemoAllowedCountries()
		preview, err := g.Preview(cfg)
		if err != nil {
			return err
		}
		return printJSON(preview)
	},
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a generation job",
	Long:  "demogen create --config job.json [--seed s] [--run]\n\nStores a pending job; --run also starts it and drives it to the end.",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		seed, _ := cmd.Flags().GetString("seed")
		run, _ := cmd.Flags().GetBool("run")

		var req demogen.CreateJobRequest
		if err := readJSONFile(path, &req.Config); err != nil {
			return err
		}
		req.Seed = seed
		ctx := commandContext(cmd)
		job, err := svc.Generator.CreateJob(ctx, req)
		if err != nil {
			return err
		}
		fmt.Printf("Job:   %s\n", job.ID)
		fmt.Printf("Seed:  %s\n", job.Seed)
		if !run {
			return nil
		}
		res, err := svc.Generator.Start(ctx, job.ID)
		if err != nil {
			return err
		}
		printStep(res)
		return driveJob(cmd, job.ID, res)
	},
}

var continueCmd = &cobra.Command{
	Use:   "continue [job-id]",
	Short: "Run one continuation of a job",
	Long:  "demogen continue <job-id> [--until-done]\n\nWith --until-done the job is continued the way the scheduler would, until it completes or fails.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := svc.Generator.Continue(commandContext(cmd), args[0])
		if err != nil {
			return err
		}
		printStep(res)
		if until, _ := cmd.Flags().GetBool("until-done"); until {
			return driveJob(cmd, args[0], res)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Show a generation job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := svc.Generator.Status(commandContext(cmd), args[0])
		if err != nil {
			return err
		}
		if output, _ := cmd.Flags().GetString("output"); output == "json" {
			return printJSON(job)
		}
		fmt.Println("Job Details")
		fmt.Println("───────────")
		fmt.Printf("Job ID:    %s\n", job.ID)
		fmt.Printf("Status:    %s\n", job.Status)
		fmt.Printf("Mode:      %s\n", job.Mode)
		fmt.Printf("Phase:     %s\n", job.GenerationPhase)
		fmt.Printf("Progress:  %d%%\n", job.Progress)
		fmt.Printf("Step:      %s\n", job.CurrentStep)
		if job.CreatedTenantId != nil {
			fmt.Printf("Tenant:    %s\n", *job.CreatedTenantId)
		}
		if job.VerificationPassed != nil {
			fmt.Printf("Verified:  %t\n", *job.VerificationPassed)
		}
		if job.ErrorMessage != nil {
			fmt.Printf("Error:     %s\n", *job.ErrorMessage)
		}
		return nil
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry [job-id]",
	Short: "Resume a failed job from its saved phase",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := svc.Generator.Retry(commandContext(cmd), args[0])
		if err != nil {
			return err
		}
		printStep(res)
		if until, _ := cmd.Flags().GetBool("until-done"); until {
			return driveJob(cmd, args[0], res)
		}
		return nil
	},
}

// driveJob keeps continuing a job until it reaches a terminal status.
func driveJob(cmd *cobra.Command, jobID string, res *demogen.StepResult) error {
	ctx := commandContext(cmd)
	for !res.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if res.Skipped {
			// another worker holds the lease
			time.Sleep(time.Second)
		}
		next, err := svc.Generator.Continue(ctx, jobID)
		if err != nil {
			if errors.Is(err, demogen.ErrJobFailed) {
				return fmt.Errorf("job %s failed; run `demogen retry %s`", jobID, jobID)
			}
			return err
		}
		res = next
		printStep(res)
	}
	if res.Status == models.GenerationStatusFailed {
		return fmt.Errorf("job %s failed", jobID)
	}
	return nil
}

func printStep(res *demogen.StepResult) {
	line := fmt.Sprintf("%-9s %-12s %3d%%  rows=%-6d %s", res.Status, res.Phase, res.Progress, res.RowsWritten, res.CurrentStep)
	if res.Skipped {
		line += " (skipped: held elsewhere)"
	}
	fmt.Println(line)
}

func init() {
	previewCmd.Flags().String("config", "-", "Job config JSON file (- for stdin)")

	createCmd.Flags().String("config", "-", "Job config JSON file (- for stdin)")
	createCmd.Flags().String("seed", "", "Seed; random when empty")
	createCmd.Flags().Bool("run", false, "Start the job and run it to completion")

	continueCmd.Flags().Bool("until-done", false, "Keep continuing until the job completes or fails")
	retryCmd.Flags().Bool("until-done", false, "Keep continuing until the job completes or fails")

	statusCmd.Flags().String("output", "", "Output format: json")
}
