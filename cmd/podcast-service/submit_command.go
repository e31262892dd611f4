package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/book-expert/podcast-service/internal/config"
	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/jobstore"
)

const cliLogFile = "podcast-cli.log"

var errUnknownVoice = errors.New("unknown voice preference")

type submitFlags struct {
	topics         []string
	categories     []string
	authors        []string
	paperIDs       []string
	title          string
	technicalLevel string
	voice          string
	sortBy         string
	minutes        int
	maxResults     int
	daysBack       int
	noEnqueue      bool
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var flags submitFlags

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Create a podcast artifact and queue its script job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			request, err := flags.request()
			if err != nil {
				return err
			}

			cfg, log, err := ctx.openLogger(cliLogFile)
			if err != nil {
				return err
			}

			defer func() { _ = log.Close() }()

			return ctx.withStore(func(_ *config.Config, store *jobstore.Store) error {
				var natsConnection *nats.Conn

				if !flags.noEnqueue {
					conn, connErr := connectNATS(cfg)
					if connErr != nil {
						return connErr
					}

					natsConnection = conn

					defer natsConnection.Close()
				}

				runner, err := newDispatchRunner(cfg, store, natsConnection, log)
				if err != nil {
					return err
				}

				job, err := runner.Submit(cmd.Context(), request)
				if job != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Artifact %s: script job %s queued\n", job.ArtifactID, job.ID)
				}

				return err
			})
		},
	}

	cmd.Flags().StringSliceVar(&flags.topics, "topic", nil, "Search topic (repeatable)")
	cmd.Flags().StringSliceVar(&flags.categories, "category", nil, "arXiv category such as cs.AI (repeatable)")
	cmd.Flags().StringSliceVar(&flags.authors, "author", nil, "Author name (repeatable)")
	cmd.Flags().StringSliceVar(&flags.paperIDs, "paper-id", nil, "Explicit arXiv id (repeatable)")
	cmd.Flags().StringVar(&flags.title, "title", "", "Episode title (defaults to one derived from the papers)")
	cmd.Flags().StringVar(&flags.technicalLevel, "level", "", "Technical level: beginner, intermediate or advanced")
	cmd.Flags().StringVar(&flags.voice, "voice", "", "Voice preference: male, female, mixed or auto")
	cmd.Flags().StringVar(&flags.sortBy, "sort", string(core.SortSubmittedDate), "Search order: relevance, submitted_date or last_updated_date")
	cmd.Flags().IntVar(&flags.minutes, "minutes", 0, "Target episode length in minutes")
	cmd.Flags().IntVar(&flags.maxResults, "max-results", 0, "Maximum papers to search for")
	cmd.Flags().IntVar(&flags.daysBack, "days-back", 0, "Only papers submitted within this many days")
	cmd.Flags().BoolVar(&flags.noEnqueue, "no-enqueue", false, "Record the job without publishing it; the next worker start picks it up")

	return cmd
}

func (f *submitFlags) request() (core.GenerationRequest, error) {
	var voice core.VoicePreference

	if f.voice != "" {
		parsed, ok := core.ParseVoicePreference(f.voice)
		if !ok {
			return core.GenerationRequest{}, fmt.Errorf("%w: %s", errUnknownVoice, f.voice)
		}

		voice = parsed
	}

	var criteria *core.SearchCriteria

	if len(f.topics)+len(f.categories)+len(f.authors) > 0 {
		criteria = &core.SearchCriteria{
			SortBy:     core.SortOrder(f.sortBy),
			Topics:     trimAll(f.topics),
			Categories: trimAll(f.categories),
			Authors:    trimAll(f.authors),
			MaxResults: f.maxResults,
			DaysBack:   f.daysBack,
		}
	}

	return core.GenerationRequest{
		Criteria:            criteria,
		Title:               strings.TrimSpace(f.title),
		TechnicalLevel:      strings.TrimSpace(f.technicalLevel),
		VoicePreference:     voice,
		PaperIDs:            trimAll(f.paperIDs),
		TargetLengthMinutes: f.minutes,
	}, nil
}

func trimAll(values []string) []string {
	trimmed := lo.Map(values, func(value string, _ int) string { return strings.TrimSpace(value) })

	return lo.Compact(trimmed)
}
