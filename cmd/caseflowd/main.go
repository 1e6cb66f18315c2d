// Command caseflowd runs the caseflow daemon in the foreground, for process
// supervisors that manage the lifecycle themselves.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
