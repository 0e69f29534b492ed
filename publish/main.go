package main

import (
	"context"
	"errors"
	"os"

	"github.com/sandrolain/blogkit/pkg/common"
	"github.com/sandrolain/blogkit/pkg/publish"
	toolutil "github.com/sandrolain/blogkit/pkg/toolutil"
)

func main() {
	ctx, cancel := common.SetupGracefulShutdown(context.Background())
	err := newRootCommand(publish.ExecRunner{}).ExecuteContext(ctx)
	cancel()

	if err != nil {
		toolutil.PrintError("%v", err)
	}
	os.Exit(exitCode(err))
}

// exitCode maps a command error to the process status. A failed step exits
// with the status of the child that failed.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var se *publish.StepError
	if errors.As(err, &se) && se.ExitCode != 0 {
		return se.ExitCode
	}
	return 1
}
