package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/latticefs/core/pkg/catalog"
	"github.com/latticefs/core/pkg/jobs"
	"github.com/latticefs/core/pkg/types"
	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and control jobs in the catalog",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, optionally filtered by state",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, stop, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer stop()

		stateFlag, _ := cmd.Flags().GetString("state")
		states := allJobStates
		if stateFlag != "" {
			s, err := parseJobState(stateFlag)
			if err != nil {
				return err
			}
			states = []types.JobState{s}
		}

		recs, err := e.Store.ListJobsByState(states...)
		if err != nil {
			return fmt.Errorf("list jobs: %w", err)
		}
		for _, rec := range recs {
			fmt.Printf("%s  %-10s %-12s %d/%d  %s\n", rec.ID, rec.Name, rec.State, rec.CompletedTaskCount, rec.TaskCount, rec.Message)
		}
		return nil
	},
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a running job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid job id: %w", err)
		}
		e, stop, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer stop()
		return e.Runtime.Cancel(id)
	},
}

var jobsPauseCmd = &cobra.Command{
	Use:   "pause <job-id>",
	Short: "Pause a running job at its next step boundary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid job id: %w", err)
		}
		e, stop, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer stop()
		return e.Runtime.Pause(id)
	},
}

var jobsResumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Resume a paused job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid job id: %w", err)
		}
		e, stop, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer stop()
		return e.Runtime.Resume(id)
	},
}

func init() {
	jobsListCmd.Flags().String("state", "", "Filter by state (queued, running, paused, completed, failed, canceled)")
	jobsCmd.AddCommand(jobsListCmd, jobsCancelCmd, jobsPauseCmd, jobsResumeCmd)
}

var allJobStates = []types.JobState{
	types.JobQueued, types.JobRunning, types.JobPaused,
	types.JobCompleted, types.JobFailed, types.JobCanceled,
}

func parseJobState(s string) (types.JobState, error) {
	for _, st := range allJobStates {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown job state %q", s)
}

// submitAndWait submits kind with init through runtime, polls store until
// the job reaches a terminal state, and prints a one-line summary.
func submitAndWait(runtime *jobs.Runtime, store catalog.Store, kind jobs.Kind, init any, force bool) error {
	rec, err := runtime.Submit(kind, init, force)
	if err != nil {
		return err
	}
	fmt.Printf("submitted job %s (%s)\n", rec.ID, kind)

	for {
		cur, err := store.GetJob(rec.ID)
		if err != nil {
			return fmt.Errorf("poll job: %w", err)
		}
		switch cur.State {
		case types.JobCompleted:
			fmt.Printf("job %s completed: %s\n", cur.ID, cur.Data)
			return nil
		case types.JobFailed:
			return fmt.Errorf("job %s failed: %s", cur.ID, cur.Message)
		case types.JobCanceled:
			return fmt.Errorf("job %s was canceled", cur.ID)
		}
		time.Sleep(100 * time.Millisecond)
	}
}
