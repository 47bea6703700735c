// Command lingmo-menu runs and administers the menu application data service.
package main

import (
	"fmt"
	"os"

	"github.com/LingmoOS/lingmo-menu/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
