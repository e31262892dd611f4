package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/book-expert/podcast-service/internal/config"
	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/jobstore"
)

var errUnknownState = errors.New("unknown job state")

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a queued or running job and its artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := ctx.openLogger(cliLogFile)
			if err != nil {
				return err
			}

			defer func() { _ = log.Close() }()

			return ctx.withStore(func(_ *config.Config, store *jobstore.Store) error {
				runner, err := newDispatchRunner(cfg, store, nil, log)
				if err != nil {
					return err
				}

				job, err := runner.Cancel(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %s job %s (artifact %s)\n", job.Kind, job.ID, job.ArtifactID)

				return nil
			})
		},
	}
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var (
		artifactID string
		states     []string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := buildListFilter(artifactID, states, limit)
			if err != nil {
				return err
			}

			return ctx.withStore(func(_ *config.Config, store *jobstore.Store) error {
				jobs, err := store.ListJobs(cmd.Context(), filter)
				if err != nil {
					return err
				}

				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs found")

					return nil
				}

				fmt.Fprintln(cmd.OutOrStdout(), renderJobTable(jobs))

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&artifactID, "artifact", "", "Only jobs of this artifact")
	cmd.Flags().StringSliceVar(&states, "state", nil, "Only jobs in these states (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows (default 50)")

	return cmd
}

func buildListFilter(artifactID string, states []string, limit int) (jobstore.ListFilter, error) {
	filter := jobstore.ListFilter{
		ArtifactID: strings.TrimSpace(artifactID),
		States:     make([]core.JobState, 0, len(states)),
		Limit:      limit,
	}

	for _, value := range states {
		state, ok := core.ParseJobState(value)
		if !ok {
			return jobstore.ListFilter{}, fmt.Errorf("%w: %s", errUnknownState, value)
		}

		filter.States = append(filter.States, state)
	}

	return filter, nil
}
