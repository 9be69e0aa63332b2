// Package main is a command line tool for listing, configuring and recording depth cameras.
package main

import (
	"context"

	goutils "go.viam.com/utils"

	"go.viam.com/k4a/logging"
)

func main() {
	goutils.ContextualMain(mainWithArgs, logging.NewLogger("k4a"))
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	return newApp(logger).RunContext(ctx, args)
}
