package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/tgifai/tgflow/internal/pkg/logs"
)

func main() {
	cmd := &cli.Command{
		Name:  "tgflow",
		Usage: "Receive, normalize and dispatch Telegram bot updates",
		Commands: []*cli.Command{
			runHwd.cmd(),
			intentsHwd.cmd(),
			onboardHwd.cmd(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logs.Error("Command execution failed: %v", err)
		os.Exit(1)
	}
}
