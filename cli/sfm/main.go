// Package main is the sfm command itself.
package main

import (
	"os"

	"go.viam.com/sfm/cli"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		//nolint:errcheck
		app.ErrWriter.Write([]byte(err.Error() + "\n"))
		os.Exit(1)
	}
}
