package main

import (
	"fmt"
	"os"

	"github.com/fyerfyer/poli-golly/cmd/poligolly/commands"
)

// 版本信息，构建时通过 -ldflags 注入
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersion(version, commit, date)

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
