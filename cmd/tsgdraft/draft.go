package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dusk-indust/tsgdraft/internal/config"
	"github.com/dusk-indust/tsgdraft/internal/export"
	"github.com/dusk-indust/tsgdraft/internal/orchestrator"
)

// errCancelled is returned when the user interrupted the run.
var errCancelled = errors.New("generation cancelled")

type draftFlags struct {
	notesFile     string
	outFile       string
	researchOut   string
	jsonOut       string
	diagnosticOut string
}

func (f *draftFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.outFile, "out", "o", "", "write the TSG to this file instead of stdout")
	cmd.Flags().StringVar(&f.researchOut, "research-out", "", "write the research report to this file for later answers")
	cmd.Flags().StringVar(&f.jsonOut, "json-out", "", "write the run as structured JSON (sections, questions, audit trail) to this file")
	cmd.Flags().StringVar(&f.diagnosticOut, "diagnostic-out", "", "write per-stage prompts and responses as JSON to this file")
}

func newDraftCmd(root *rootOptions) *cobra.Command {
	var f draftFlags

	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Draft a TSG from troubleshooting notes",
		Long: `Draft runs research, write, and review for the notes in --notes-file.

The document goes to --out (or stdout). Progress goes to stderr. Press Ctrl-C
once to stop at the next stage boundary, twice to abort immediately.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			notes, err := readRequired(f.notesFile, "--notes-file")
			if err != nil {
				return err
			}
			return execute(cmd, root, orchestrator.RunRequest{Notes: notes}, f)
		},
	}

	cmd.Flags().StringVar(&f.notesFile, "notes-file", "", "file containing the troubleshooting notes (- for stdin)")
	f.register(cmd)
	_ = cmd.MarkFlagRequired("notes-file")
	return cmd
}

func newAnswerCmd(root *rootOptions) *cobra.Command {
	var (
		f             draftFlags
		threadID      string
		answersFile   string
		priorTSGFile  string
		priorResearch string
	)

	cmd := &cobra.Command{
		Use:   "answer",
		Short: "Answer the follow-up questions of an earlier draft",
		Long: `Answer continues the writer conversation identified by --thread-id with the
answers in --answers-file. Research is skipped: the report from --prior-research
is reused when given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			answers, err := readRequired(answersFile, "--answers-file")
			if err != nil {
				return err
			}
			priorTSG, err := readRequired(priorTSGFile, "--prior-tsg")
			if err != nil {
				return err
			}
			req := orchestrator.RunRequest{
				ContinuationToken: threadID,
				PriorTSG:          priorTSG,
				UserAnswers:       answers,
			}
			if req.PriorResearch, err = readOptional(priorResearch); err != nil {
				return err
			}
			if req.Notes, err = readOptional(f.notesFile); err != nil {
				return err
			}
			return execute(cmd, root, req, f)
		},
	}

	cmd.Flags().StringVar(&threadID, "thread-id", "", "thread id printed by the earlier draft")
	cmd.Flags().StringVar(&answersFile, "answers-file", "", "file containing the answers")
	cmd.Flags().StringVar(&priorTSGFile, "prior-tsg", "", "file containing the earlier TSG")
	cmd.Flags().StringVar(&priorResearch, "prior-research", "", "file containing the earlier research report")
	cmd.Flags().StringVar(&f.notesFile, "notes-file", "", "file containing the original notes")
	f.register(cmd)
	_ = cmd.MarkFlagRequired("thread-id")
	_ = cmd.MarkFlagRequired("answers-file")
	_ = cmd.MarkFlagRequired("prior-tsg")
	return cmd
}

// execute runs one pipeline with progress on stderr and writes its outputs.
func execute(cmd *cobra.Command, root *rootOptions, req orchestrator.RunRequest, f draftFlags) error {
	a, err := root.setup(func(c *config.Config) {
		if f.diagnosticOut != "" {
			c.Diagnostic = true
		}
	})
	if err != nil {
		return err
	}
	defer a.log.Sync() //nolint:errcheck

	return drive(cmd.Context(), a, req, f, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// drive starts the run, relays progress, and handles interrupts. The first
// interrupt requests a cooperative stop; the second aborts the context.
func drive(ctx context.Context, a *app, req orchestrator.RunRequest, f draftFlags, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	run := orchestrator.Start(ctx, a.pipeline, req, a.cfg.ProgressBuffer)
	a.log.Debug("run started", zap.String("run_id", run.ID))

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		interrupts := 0
		for {
			select {
			case <-sigs:
				interrupts++
				if interrupts == 1 {
					fmt.Fprintln(stderr, warnStyle.Render("Stopping after the current stage. Press Ctrl-C again to abort."))
					run.Cancel()
				} else {
					run.Abort()
				}
			case <-run.Done():
				return
			}
		}
	}()

	printer := progressPrinter{w: stderr}
	for ev := range run.Events() {
		printer.Print(ev)
	}
	res := run.Wait()
	return writeResult(res, f, stdout, stderr)
}

// writeResult emits the document and diagnostics and maps the outcome to an
// exit error.
func writeResult(res *orchestrator.PipelineResult, f draftFlags, stdout, stderr io.Writer) error {
	if f.diagnosticOut != "" && len(res.StageCaptures) > 0 {
		if err := export.WriteJSON(f.diagnosticOut, res.StageCaptures); err != nil {
			return err
		}
	}
	if f.jsonOut != "" {
		if err := export.WriteJSON(f.jsonOut, export.ExportRun(res)); err != nil {
			return err
		}
	}

	if res.Cancelled {
		return errCancelled
	}
	if !res.Success {
		if res.Error == "" {
			return errors.New("generation failed")
		}
		return errors.New(res.Error)
	}

	if f.researchOut != "" && res.ResearchReport != "" {
		if err := os.WriteFile(f.researchOut, []byte(res.ResearchReport+"\n"), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", f.researchOut, err)
		}
	}
	if f.outFile != "" {
		if err := os.WriteFile(f.outFile, []byte(res.TSGContent+"\n"), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", f.outFile, err)
		}
		fmt.Fprintf(stderr, "  wrote %s\n", f.outFile)
	} else {
		fmt.Fprintln(stdout, res.TSGContent)
	}
	printSummary(stderr, res)
	return nil
}

// readRequired reads a file named by flag, or stdin for "-".
func readRequired(path, flag string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%s is required", flag)
	}
	text, err := readOptional(path)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s: %s is empty", flag, path)
	}
	return text, nil
}

func readOptional(path string) (string, error) {
	if path == "" {
		return "", nil
	}
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
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}
