package main

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/masomo-offline/core/offline"
	"github.com/trezcool/masomo-offline/core/queue"
)

var (
	isTerminalFunc = term.IsTerminal // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db     *sql.DB // only with the postgres engine
	cache  *offline.Service
	queue  *queue.Queue
	sender queue.Sender
	in     *bufio.Reader
	out    io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  status - print the sync status")
	fmt.Fprintln(cli.out, "  show -student ID | -parent | -child ID - print a cached record")
	fmt.Fprintln(cli.out, "  clear [-yes] - delete all offline data (asks for confirmation)")
	fmt.Fprintln(cli.out, "  sync - replay the queued actions, then refetch the cached data")
	fmt.Fprintln(cli.out, "  queue list|clear - list or drop the queued offline actions")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command against the postgres storage")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	showCmd := flag.NewFlagSet("show", flag.ContinueOnError)
	showCmd.SetOutput(cli.out)
	showStudent := showCmd.String("student", "", "The id of a cached student.")
	showChild := showCmd.String("child", "", "The id of a child in the cached parent data.")
	showParent := showCmd.Bool("parent", false, "Print the cached parent data.")

	clearCmd := flag.NewFlagSet("clear", flag.ContinueOnError)
	clearCmd.SetOutput(cli.out)
	clearYes := clearCmd.Bool("yes", false, "Do not ask for confirmation.")

	switch args[1] {
	case "status":
		return cli.status()

	case "show":
		if err := parse(showCmd, args[2:]); err != nil {
			return err
		}
		switch {
		case *showStudent != "":
			return cli.showStudent(*showStudent)
		case *showChild != "":
			return cli.showChild(*showChild)
		case *showParent:
			return cli.showParent()
		}
		showCmd.Usage()
		return errHelp

	case "clear":
		if err := parse(clearCmd, args[2:]); err != nil {
			return err
		}
		return cli.clear(*clearYes)

	case "sync":
		return cli.sync()

	case "queue":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		switch args[2] {
		case "list":
			return cli.listQueue()
		case "clear":
			return cli.clearQueue()
		}
		cli.printUsage()
		return errHelp

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	default:
		cli.printUsage()
		return errHelp
	}
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return errHelp
		}
		return err
	}
	return nil
}

func (cli *commandLine) printJSON(v interface{}) error {
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(v), "encoding output")
}
