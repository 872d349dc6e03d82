// Command kpiboard maintains a workspace of facility, asset and lease KPIs and
// renders weekly progress reports from it.
package main

import (
	"fmt"
	"os"
)

const appName = "kpiboard"

func main() {
	a := newApp(os.Stdout, os.Stderr)
	err := newRootCmd(a).Execute()
	// post-run hooks are skipped when a command fails
	a.teardown()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
