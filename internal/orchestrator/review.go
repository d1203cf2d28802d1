package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dusk-indust/tsgdraft/internal/tsg"
)

// reviewLoop validates, repairs, and reviews the draft until it converges.
// It runs at most 1+StructureRetries rounds and always returns some draft
// unless a stage call fails outright or the run is cancelled.
func (x *execution) reviewLoop(ctx context.Context, draft, research, writeToken string) (string, *tsg.Review, error) {
	rounds := 1 + x.cfg.StructureRetries
	var review *tsg.Review

	for round := 0; round < rounds; round++ {
		if err := checkpoint(ctx, x.req.Cancel); err != nil {
			return "", review, err
		}
		x.result.RetryCount = round
		last := round == rounds-1
		log := x.log.With(zap.Int("attempt", round+1))

		v := x.validator.Validate(draft)
		if !v.Valid {
			if last {
				log.Warn("draft still has structure issues, accepting", zap.Strings("issues", v.Issues))
				x.status(StageReview, "⚠️", fmt.Sprintf("⚠️ Review: Structure issues remain after %d attempts; accepting draft", rounds), v.Issues)
				return draft, review, nil
			}
			log.Info("draft has structure issues, requesting repair", zap.Int("issues", len(v.Issues)))
			x.status(StageReview, "🔧",
				fmt.Sprintf("🔧 Review: Fixing structure issues (attempt %d/%d)...", round+1, rounds-1), v.Issues)

			prompt := tsg.RepairPrompt(tsg.RepairInput{
				Issues:   v.Issues,
				Notes:    x.req.Notes,
				Research: research,
				Draft:    draft,
			})
			out, err := x.retry.run(ctx, StageWrite, func(ctx context.Context) (StageOutcome, error) {
				return x.runner.RunStage(ctx, x.cfg.Agents.Writer, StageWrite, prompt, writeToken)
			})
			if err != nil {
				return "", review, err
			}
			x.capture(fmt.Sprintf("repair_%d", round+1), StageCapture{Prompt: prompt, RawResponse: out.Text})
			draft = out.Text
			continue
		}

		x.status(StageReview, StageReview.Icon(), "🔎 Review: Structure valid, checking accuracy...", nil)
		prompt := tsg.ReviewPrompt(tsg.ReviewInput{
			Draft:       draft,
			Research:    research,
			Notes:       x.req.Notes,
			PriorReview: x.req.PriorReview,
			UserAnswers: x.req.UserAnswers,
		})
		out, err := x.retry.run(ctx, StageReview, func(ctx context.Context) (StageOutcome, error) {
			return x.runner.RunStage(ctx, x.cfg.Agents.Reviewer, StageReview, prompt, "")
		})
		if err != nil {
			return "", review, err
		}

		parsed, perr := tsg.ParseReview(out.Text)
		x.capture("review", StageCapture{Prompt: prompt, RawResponse: out.Text, Review: parsed})
		if perr != nil {
			log.Warn("reviewer output unparsable, accepting draft", zap.Error(perr))
			x.status(StageReview, "⚠️", "⚠️ Review: Could not parse reviewer output; accepting current draft", nil)
			return draft, review, nil
		}
		review = parsed

		switch {
		case parsed.Approved:
			x.status(StageReview, "✅", "✅ Review: Approved", nil)
			return draft, parsed, nil

		case parsed.HasCorrection():
			corrected := withMarkers(*parsed.CorrectedTSG, draft)
			if last {
				log.Warn("accepting reviewer correction without re-validation", zap.Strings("issues", parsed.Issues()))
				x.status(StageReview, "⚠️", "⚠️ Review: Accepting corrected draft with warnings", parsed.Issues())
				return corrected, parsed, nil
			}
			x.status(StageReview, "📝", "📝 Review: Applying reviewer corrections...", parsed.Issues())
			draft = corrected

		default:
			x.status(StageReview, "⚠️", "⚠️ Review: Issues reported without a correction; accepting current draft", parsed.Issues())
			return draft, parsed, nil
		}
	}
	return draft, review, nil
}

// withMarkers wraps a bare corrected document in the document markers and
// carries over the current draft's questions block.
func withMarkers(corrected, current string) string {
	if strings.Contains(corrected, tsg.TSGBegin) {
		return corrected
	}
	questions, ok := tsg.Between(current, tsg.QuestionsBegin, tsg.QuestionsEnd)
	if !ok {
		questions = tsg.NoMissing
	}
	var b strings.Builder
	b.WriteString(tsg.TSGBegin + "\n")
	b.WriteString(strings.TrimSpace(corrected))
	b.WriteString("\n" + tsg.TSGEnd + "\n\n")
	b.WriteString(tsg.QuestionsBegin + "\n")
	b.WriteString(questions)
	b.WriteString("\n" + tsg.QuestionsEnd + "\n")
	return b.String()
}
