package main

import (
	"fmt"
	"os"

	"github.com/ternarybob/quaero-index/internal/common"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "-version", "--version", "-v":
		fmt.Printf("quaero-index version %s\n", common.GetVersion())
		os.Exit(0)
	case "fetch":
		os.Exit(runFetch(os.Args[2:]))
	case "embed":
		os.Exit(runEmbed(os.Args[2:]))
	case "-h", "--help", "help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: quaero-index <fetch|embed> [flags]")
	fmt.Fprintln(os.Stderr, "       quaero-index -version")
}

// configPaths is a custom flag type that allows multiple -config flags.
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

// loadConfig implements the startup sequence's first step (REQUIRED
// ORDER, mirrored from the teacher's main.go): auto-discover a config file
// when none was given on the command line, then load defaults -> file1 ->
// ... -> env.
func loadConfig(configFiles configPaths) (*common.Config, error) {
	if len(configFiles) == 0 {
		if _, err := os.Stat("quaero-index.toml"); err == nil {
			configFiles = append(configFiles, "quaero-index.toml")
		} else if _, err := os.Stat("deployments/local/quaero-index.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/quaero-index.toml")
		}
	}
	return common.LoadFromFiles(configFiles...)
}
