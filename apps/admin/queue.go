package main

import (
	"fmt"

	"github.com/trezcool/masomo-offline/core/queue"
)

func (cli *commandLine) listQueue() error {
	actions := cli.queue.List()
	if actions == nil {
		actions = []queue.Action{}
	}
	return cli.printJSON(actions)
}

func (cli *commandLine) clearQueue() error {
	if err := cli.queue.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(cli.out, "queue cleared")
	return nil
}
