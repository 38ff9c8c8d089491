package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/session"
)

func (cli *commandLine) addSession(ns session.NewSession) error {
	sess, err := cli.sessionSvc.Create(context.Background(), ns)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.stdout, "session %d created\n", sess.ID)
	return nil
}

// reportPersistence prints the result of an action whose write failed, then returns the error.
func (cli *commandLine) reportPersistence(v interface{}, err error) error {
	if session.IsPersistenceError(err) {
		if pErr := cli.print(v); pErr != nil {
			return pErr
		}
		fmt.Fprintln(cli.stdout, "warning: the result above was NOT saved")
	}
	return err
}

func (cli *commandLine) detect(id int) error {
	res, err := cli.sessionSvc.Detect(context.Background(), id)
	if err != nil {
		return cli.reportPersistence(res, err)
	}
	return cli.print(res)
}

func (cli *commandLine) apply(id, minutes int) error {
	out, err := cli.sessionSvc.Apply(context.Background(), id, minutes)
	if err != nil {
		return cli.reportPersistence(out, err)
	}
	return cli.print(out)
}

func (cli *commandLine) dismiss(id int) error {
	out, err := cli.sessionSvc.Dismiss(context.Background(), id)
	if err != nil {
		return cli.reportPersistence(out, err)
	}
	return cli.print(out)
}

func (cli *commandLine) reopen(id int) error {
	det, err := cli.sessionSvc.Reopen(context.Background(), id)
	if err != nil {
		return cli.reportPersistence(det, err)
	}
	return cli.print(det)
}

func (cli *commandLine) batch(timeout time.Duration) error {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	summary, err := cli.orchestrator.RunBatch(ctx)
	if pErr := cli.print(summary); pErr != nil {
		return pErr
	}
	return err
}
