package main

import (
	"context"
	"fmt"
	"os"

	"github.com/maximcoj/teleblog/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "teleblog:", err)
		os.Exit(1)
	}
}
