package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-classroom/internal/llm"
	"github.com/stemsi/exstem-classroom/internal/repository"
	"github.com/stemsi/exstem-classroom/internal/service"
	"github.com/stemsi/exstem-classroom/internal/worker"
)

func regenerateFeedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regenerate-feedback",
		Short: "Re-queue feedback for submitted attempts that have none",
		RunE:  runRegenerateFeedback,
	}
	f := cmd.Flags()
	f.StringSlice("exam-id", nil, "Limit to these exams (repeatable; default all)")
	f.Bool("inline", false, "Generate here instead of queueing for the server's workers")
	f.Bool("dry-run", false, "List the attempts without queueing anything")
	return cmd
}

func runRegenerateFeedback(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	e, err := connect(ctx, true)
	if err != nil {
		return err
	}
	defer e.close()

	attempts := repository.NewAttemptRepository(e.docs)
	exams := repository.NewExamRepository(e.docs, e.rdb, e.cfg.ExamCacheTTL, e.log)
	llmClient := llm.New(e.cfg.LLMBaseURL, e.cfg.LLMAPIKey, e.cfg.LLMModel, e.log)
	feedback := service.NewFeedbackService(e.rdb, exams, attempts, llmClient, e.log)

	missing, err := attempts.ListMissingFeedback(ctx, v.GetStringSlice("exam-id")...)
	if err != nil {
		return fmt.Errorf("list attempts: %w", err)
	}

	out := cmd.OutOrStdout()
	var failed int
	for i := range missing {
		a := &missing[i]
		req := service.RequestFor(a)

		switch {
		case v.GetBool("dry-run"):
			fmt.Fprintf(out, "%s\t%s\t%s\n", a.ExamID, a.ID, a.StudentEmail)
			continue
		case v.GetBool("inline"):
			genCtx, cancel := context.WithTimeout(ctx, worker.FeedbackTimeout)
			_, err = feedback.Generate(genCtx, req)
			cancel()
		default:
			err = feedback.Dispatch(ctx, req)
		}
		if err != nil {
			failed++
			e.log.Error().Err(err).Str("attempt_id", a.ID).Msg("Feedback not regenerated")
		}
	}

	fmt.Fprintf(out, "%d attempts without feedback, %d failed\n", len(missing), failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d attempts failed", failed, len(missing))
	}
	return nil
}
