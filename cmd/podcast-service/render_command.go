package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/tts"
	"github.com/book-expert/podcast-service/internal/tts/ttsutils"
)

const (
	renderLogFile      = "podcast-render.log"
	healthCheckTimeout = 10 * time.Second
	outputPermissions  = 0o644
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var (
		scriptPath string
		outputPath string
		voice      string
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a script JSON file to an audio file without the job pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pref, ok := core.ParseVoicePreference(voice)
			if !ok {
				return fmt.Errorf("%w: %s", errUnknownVoice, voice)
			}

			cfg, log, err := ctx.openLogger(renderLogFile)
			if err != nil {
				return err
			}

			defer func() { _ = log.Close() }()

			script, err := tts.LoadScript(scriptPath)
			if err != nil {
				return err
			}

			assembler, err := newAssembler(cfg, log, nil)
			if err != nil {
				return err
			}

			log.Info("Rendering '%s' to %s", script.Title, outputPath)

			result, err := assembler.Render(cmd.Context(), script, pref, nil)
			if err != nil {
				log.Error("Render failed: %v", err)

				return err
			}

			err = ttsutils.EnsureDir(filepath.Dir(outputPath))
			if err != nil {
				return err
			}

			err = os.WriteFile(outputPath, result.Audio, outputPermissions)
			if err != nil {
				return fmt.Errorf("failed to write %s: %w", outputPath, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Generated: %s (%s, %s, %d/%d segments)\n",
				outputPath,
				ttsutils.FormatDuration(result.Duration),
				ttsutils.FormatFileSize(int64(len(result.Audio))),
				result.SegmentsRendered,
				result.SegmentsTotal,
			)

			return nil
		},
	}

	cmd.Flags().StringVar(&scriptPath, "script", "", "Script JSON file to render")
	cmd.Flags().StringVar(&outputPath, "output", "episode.wav", "Output audio file")
	cmd.Flags().StringVar(&voice, "voice", string(core.VoicePreferenceAuto), "Voice preference: male, female, mixed or auto")
	_ = cmd.MarkFlagRequired("script")

	return cmd
}

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the TTS service is reachable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			checkCtx, cancel := context.WithTimeout(cmd.Context(), healthCheckTimeout)
			defer cancel()

			client := tts.NewHTTPClient(cfg.TTS.URL, healthCheckTimeout, cfg.TTS.SampleRate)

			err = client.HealthCheck(checkCtx)
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "TTS service is not healthy: %v\n", err)

				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "TTS service is healthy")

			return nil
		},
	}
}
