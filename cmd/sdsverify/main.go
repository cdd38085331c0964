// Command sdsverify runs end-to-end verifications of SDS ingestion
// pipelines.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/sdsverify/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sdsverify:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
