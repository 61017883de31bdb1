package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/tgifai/tgflow/internal/intent"
)

var intentsHwd = &IntentsRunner{}

type IntentsRunner struct{}

func (r *IntentsRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:  "intents",
		Usage: "Convert between intent names and masks",
		Commands: []*cli.Command{
			{
				Name:      "encode",
				Usage:     "Print the mask for names or masks, e.g. \"message callback_query 16384\"",
				ArgsUsage: "<intent>...",
				Action:    r.encode,
			},
			{
				Name:      "decode",
				Usage:     "Print the allowed_updates names for masks or names",
				ArgsUsage: "<mask>...",
				Action:    r.decode,
			},
		},
	}
}

func (r *IntentsRunner) parse(cmd *cli.Command) (*intent.Filter, error) {
	args := cmd.Args().Slice()
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one intent is required")
	}
	values := make([]any, 0, len(args))
	for _, a := range args {
		values = append(values, a)
	}
	return intent.Parse(values)
}

func (r *IntentsRunner) encode(_ context.Context, cmd *cli.Command) error {
	f, err := r.parse(cmd)
	if err != nil {
		return err
	}
	fmt.Println(uint32(f.Mask()))
	return nil
}

func (r *IntentsRunner) decode(_ context.Context, cmd *cli.Command) error {
	f, err := r.parse(cmd)
	if err != nil {
		return err
	}
	fmt.Println(strings.Join(intent.Decode(f), ","))
	return nil
}
