// Command tradectl is the operator CLI for a running autotrader server.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"

	"github.com/aristath/autotrader/internal/cli"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))

	server := flag.String("server", envOr("TRADECTL_SERVER", "http://localhost:8001"), "Base URL of the autotrader server.")

	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	for _, c := range cli.Commands {
		commander.Register(c, "")
	}

	flag.Parse()

	env := &cli.Env{
		Client: cli.NewClient(*server),
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	}
	os.Exit(int(commander.Execute(context.Background(), env)))
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
