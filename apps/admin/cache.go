package main

import (
	"context"
	"fmt"
	"io"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-offline/core"
	"github.com/trezcool/masomo-offline/core/offline"
)

var (
	syncTimeout = 2 * time.Minute

	errNotConfirmed = errors.New("not a terminal: pass -yes to confirm")
	errOffline      = errors.New("school API unreachable, try again once online")
)

func (cli *commandLine) status() error {
	return cli.printJSON(cli.cache.GetSyncStatus())
}

func (cli *commandLine) showStudent(id string) error {
	rec := cli.cache.GetCachedStudentData(id)
	if rec == nil {
		return errors.Wrapf(offline.ErrNotFound, "student %s", id)
	}
	return cli.printJSON(rec)
}

func (cli *commandLine) showChild(id string) error {
	rec := cli.cache.GetCachedChildData(id)
	if rec == nil {
		return errors.Wrapf(offline.ErrNotFound, "child %s", id)
	}
	return cli.printJSON(rec)
}

func (cli *commandLine) showParent() error {
	rec := cli.cache.GetCachedParentData()
	if rec == nil {
		return errors.Wrap(offline.ErrNotFound, "parent")
	}
	return cli.printJSON(rec)
}

// clear asks for confirmation on a terminal; elsewhere -yes is required.
func (cli *commandLine) clear(yes bool) error {
	if !yes {
		if !isTerminalFunc(int(syscall.Stdin)) {
			return errNotConfirmed
		}
		fmt.Fprint(cli.out, "Delete all offline data? [y/N] ")
		answer, err := cli.in.ReadString('\n')
		if err != nil && err != io.EOF {
			return errors.Wrap(err, "reading answer")
		}
		if a := core.CleanString(answer, true /* lower */); a != "y" && a != "yes" {
			fmt.Fprintln(cli.out, "aborted")
			return nil
		}
	}
	cli.cache.ClearOfflineData()
	fmt.Fprintln(cli.out, "offline data cleared")
	return nil
}

func (cli *commandLine) sync() error {
	if !cli.cache.GetSyncStatus().IsOnline {
		return errOffline
	}

	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	if cli.sender != nil {
		n, err := cli.queue.Replay(ctx, cli.sender)
		fmt.Fprintf(cli.out, "%d action(s) replayed\n", n)
		if err != nil {
			return err
		}
	}
	if err := cli.cache.ForceSync(ctx); err != nil {
		return err
	}
	return cli.status()
}
