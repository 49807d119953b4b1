package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"

	"github.com/luinbytes/media-deduplicator/cmd"
)

const version = "4.0.0"

func main() {
	root := cmd.NewRootCmd()

	// fang turns SIGINT into context cancellation, which stops hashing and
	// closes an organize session as ABORTED.
	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, os.Kill),
	); err != nil {
		os.Exit(1)
	}
}
