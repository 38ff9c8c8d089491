package main

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/session"
)

var (
	isTerminalFunc = term.IsTerminal // mockable

	errHelp        = errors.New("help provided")
	errAborted     = errors.New("aborted")
	errNeedsYes    = errors.New("-yes is required when stdin is not a terminal")
	errBadSchedule = errors.New("-at must be an RFC 3339 date, e.g. 2026-03-02T18:30:00Z")
)

type commandLine struct {
	db           *sql.DB
	sessionSvc   *session.Service
	orchestrator *session.Orchestrator
	stdin        io.Reader
	stdout       io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose command (up, down, status, ...) against the embedded migrations")
	fmt.Println("  addsession -title TITLE -link LINK -at RFC3339 -duration MINUTES [-actual MINUTES] - create a session")
	fmt.Println("  detect -id ID - detect the attendance cliff of a session")
	fmt.Println("  apply -id ID -minutes MINUTES [-yes] - apply a formal end and recompute attendance")
	fmt.Println("  dismiss -id ID - dismiss the detected cliff and recompute attendance")
	fmt.Println("  reopen -id ID - undo a dismissal")
	fmt.Println("  batch [-timeout DURATION] - detect cliffs for every eligible session")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addSessionCmd := flag.NewFlagSet("addsession", flag.ExitOnError)
	addSessionTitle := addSessionCmd.String("title", "", "The session's title.")
	addSessionLink := addSessionCmd.String("link", "", "The meeting id or join link.")
	addSessionAt := addSessionCmd.String("at", "", "The scheduled start (RFC 3339).")
	addSessionDuration := addSessionCmd.Int("duration", 0, "The scheduled duration in minutes.")
	addSessionActual := addSessionCmd.Int("actual", 0, "The actual duration in minutes, if known.")

	detectCmd := flag.NewFlagSet("detect", flag.ExitOnError)
	detectID := detectCmd.Int("id", 0, "The session id.")

	applyCmd := flag.NewFlagSet("apply", flag.ExitOnError)
	applyID := applyCmd.Int("id", 0, "The session id.")
	applyMinutes := applyCmd.Int("minutes", 0, "The formal end, in minutes from the meeting start.")
	applyYes := applyCmd.Bool("yes", false, "Do not ask for confirmation.")

	dismissCmd := flag.NewFlagSet("dismiss", flag.ExitOnError)
	dismissID := dismissCmd.Int("id", 0, "The session id.")

	reopenCmd := flag.NewFlagSet("reopen", flag.ExitOnError)
	reopenID := reopenCmd.Int("id", 0, "The session id.")

	batchCmd := flag.NewFlagSet("batch", flag.ExitOnError)
	batchTimeout := batchCmd.Duration("timeout", 0, "Stop the batch after this long (0: no limit).")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "addsession":
		if err := addSessionCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addSessionTitle == "" || *addSessionAt == "" || *addSessionDuration <= 0 {
			addSessionCmd.Usage()
			return errHelp
		}
		at, err := time.Parse(time.RFC3339, *addSessionAt)
		if err != nil {
			return errBadSchedule
		}
		var actual *int
		if *addSessionActual > 0 {
			actual = addSessionActual
		}
		return cli.addSession(session.NewSession{
			Title:                    *addSessionTitle,
			MeetingLink:              *addSessionLink,
			ScheduledAt:              at,
			ScheduledDurationMinutes: *addSessionDuration,
			ActualDurationMinutes:    actual,
		})
	case "detect":
		if err := detectCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *detectID <= 0 {
			detectCmd.Usage()
			return errHelp
		}
		return cli.detect(*detectID)
	case "apply":
		if err := applyCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *applyID <= 0 || *applyMinutes <= 0 {
			applyCmd.Usage()
			return errHelp
		}
		if !*applyYes {
			if err := cli.confirm(fmt.Sprintf("Apply a formal end of %d minutes to session %d?", *applyMinutes, *applyID)); err != nil {
				return err
			}
		}
		return cli.apply(*applyID, *applyMinutes)
	case "dismiss":
		if err := dismissCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *dismissID <= 0 {
			dismissCmd.Usage()
			return errHelp
		}
		return cli.dismiss(*dismissID)
	case "reopen":
		if err := reopenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *reopenID <= 0 {
			reopenCmd.Usage()
			return errHelp
		}
		return cli.reopen(*reopenID)
	case "batch":
		if err := batchCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.batch(*batchTimeout)
	default:
		cli.printUsage()
		return errHelp
	}
}

// confirm asks a y/N question on the terminal.
func (cli *commandLine) confirm(question string) error {
	if !isTerminalFunc(int(os.Stdin.Fd())) {
		return errNeedsYes
	}
	fmt.Fprintf(cli.stdout, "%s [y/N] ", question)
	answer, err := bufio.NewReader(cli.stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return nil
	}
	return errAborted
}

func (cli *commandLine) print(v interface{}) error {
	enc := json.NewEncoder(cli.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
