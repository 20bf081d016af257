package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/pflag"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/internal/service"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
)

const (
	exitOK       = 0
	exitInvalid  = 1
	exitConflict = 2
	exitFailure  = 3
)

var errUsage = errors.New("usage")

type reportCardRunner interface {
	Generate(ctx context.Context, req service.GenerateReportCardsRequest) (*service.GenerateReportCardsSummary, error)
	Archive(ctx context.Context, termID string) (int64, error)
}

type rankRunner interface {
	Recompute(ctx context.Context, examID string) (*service.RecomputeSummary, error)
}

type attemptSweeper interface {
	Sweep(ctx context.Context) (*service.SweepSummary, error)
}

type outboxStore interface {
	ListUndelivered(ctx context.Context, limit int) ([]models.OutboxRecord, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
}

type commandLine struct {
	cards    reportCardRunner
	ranks    rankRunner
	attempts attemptSweeper
	outbox   outboxStore
	out      io.Writer
	now      func() time.Time
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage: examctl <command> [flags]")
	fmt.Fprintln(cli.out, "  regenerate-report-cards --term ID [--class ID ...]")
	fmt.Fprintln(cli.out, "  archive-report-cards --term ID")
	fmt.Fprintln(cli.out, "  recompute-ranks --exam ID")
	fmt.Fprintln(cli.out, "  grade-pending-attempts")
	fmt.Fprintln(cli.out, "  outbox [--limit N] [--mark]")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		cli.printUsage()
		return errUsage
	}
	switch args[0] {
	case "regenerate-report-cards":
		return cli.regenerate(ctx, args[1:])
	case "archive-report-cards":
		return cli.archive(ctx, args[1:])
	case "recompute-ranks":
		return cli.recompute(ctx, args[1:])
	case "grade-pending-attempts":
		return cli.sweep(ctx)
	case "outbox":
		return cli.relayOutbox(ctx, args[1:])
	default:
		cli.printUsage()
		return errUsage
	}
}

func (cli *commandLine) flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) regenerate(ctx context.Context, args []string) error {
	fs := cli.flags("regenerate-report-cards")
	term := fs.String("term", "", "term ID")
	classes := fs.StringSlice("class", nil, "restrict to these class IDs")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *term == "" {
		fs.Usage()
		return errUsage
	}
	summary, err := cli.cards.Generate(ctx, service.GenerateReportCardsRequest{TermID: *term, ClassIDs: *classes})
	if err != nil {
		return err
	}
	cli.table([]string{"Term", "Status", "Classes", "Generated", "Skipped (archived)", "Low performance"},
		[][]string{{
			summary.TermID,
			string(summary.Status),
			strconv.Itoa(summary.Classes),
			strconv.Itoa(summary.Generated),
			strconv.Itoa(summary.SkippedArchive),
			strconv.Itoa(summary.LowPerformance),
		}})
	return nil
}

func (cli *commandLine) archive(ctx context.Context, args []string) error {
	fs := cli.flags("archive-report-cards")
	term := fs.String("term", "", "term ID")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *term == "" {
		fs.Usage()
		return errUsage
	}
	archived, err := cli.cards.Archive(ctx, *term)
	if err != nil {
		return err
	}
	cli.table([]string{"Term", "Archived"}, [][]string{{*term, strconv.FormatInt(archived, 10)}})
	return nil
}

func (cli *commandLine) recompute(ctx context.Context, args []string) error {
	fs := cli.flags("recompute-ranks")
	exam := fs.String("exam", "", "exam ID")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *exam == "" {
		fs.Usage()
		return errUsage
	}
	summary, err := cli.ranks.Recompute(ctx, *exam)
	if err != nil {
		return err
	}
	cli.table([]string{"Exam", "Schedules", "Grade groups", "Results"},
		[][]string{{summary.ExamID, strconv.Itoa(summary.Schedules), strconv.Itoa(summary.GradeGroups), strconv.Itoa(summary.Results)}})
	return nil
}

func (cli *commandLine) sweep(ctx context.Context) error {
	summary, err := cli.attempts.Sweep(ctx)
	if err != nil {
		return err
	}
	cli.table([]string{"Timed out", "Finalized", "Failed"},
		[][]string{{strconv.Itoa(summary.TimedOut), strconv.Itoa(summary.Finalized), strconv.Itoa(summary.Failed)}})
	if summary.Failed > 0 {
		return appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("%d attempts could not be processed", summary.Failed))
	}
	return nil
}

// relayOutbox prints undelivered notification events and optionally marks them delivered.
func (cli *commandLine) relayOutbox(ctx context.Context, args []string) error {
	fs := cli.flags("outbox")
	limit := fs.Int("limit", 50, "maximum events to list")
	mark := fs.Bool("mark", false, "mark listed events as delivered")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	records, err := cli.outbox.ListUndelivered(ctx, *limit)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{rec.ID, rec.EventType, rec.EntityType, rec.EntityID, rec.OccurredAt.UTC().Format(time.RFC3339)})
		if *mark {
			if err := cli.outbox.MarkDelivered(ctx, rec.ID, cli.now()); err != nil {
				return err
			}
		}
	}
	cli.table([]string{"ID", "Event", "Entity", "Entity ID", "Occurred"}, rows)
	return nil
}

func (cli *commandLine) table(header []string, rows [][]string) {
	table := tablewriter.NewTable(cli.out, tablewriter.WithConfig(tablewriter.Config{
		Row: tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignLeft}},
	}))
	table.Header(toAny(header)...)
	for _, row := range rows {
		_ = table.Append(toAny(row)...)
	}
	_ = table.Render()
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// exitCode maps a command error onto the process exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, errUsage) {
		return exitInvalid
	}
	switch appErrors.FromError(err).Code {
	case appErrors.ErrValidation.Code, appErrors.ErrNotFound.Code, appErrors.ErrState.Code, appErrors.ErrLimit.Code:
		return exitInvalid
	case appErrors.ErrConflict.Code:
		return exitConflict
	default:
		return exitFailure
	}
}
