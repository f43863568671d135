// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dalyn98/Albion-Beacon-Ver3/cmd/beacon/cli"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/control"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/process"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/settings"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/version"
)

// callTimeout bounds a single control socket or API call.
const callTimeout = 10 * time.Second

func main() {
	streams := cli.StandardIO()
	if err := rootCommand(streams).Execute(os.Args[1:], streams.Err); err != nil {
		process.Fatal(err)
	}
}

func rootCommand(streams cli.IO) *cli.Command {
	return &cli.Command{
		Name:        "beacon",
		Description: "Operate a beacon-agent and inspect region data.",
		Subcommands: []*cli.Command{
			statusCommand(streams),
			identityCommand(streams),
			labelCommand(streams),
			verifyCommand(streams),
			submitCommand(streams),
			relayCommand(streams),
			regionsCommand(streams),
			apiCommand(streams),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func([]string) error {
					_, err := fmt.Fprintf(streams.Out, "beacon %s\n", version.Info())
					return err
				},
			},
		},
	}
}

// agentParams is embedded by every command that talks to the agent.
type agentParams struct {
	cli.JSONOutput
	cli.SocketFlag
}

func newAgentParams() agentParams {
	return agentParams{SocketFlag: cli.SocketFlag{DefaultSocket: settings.Default().ControlSocket}}
}

func (p *agentParams) client() *control.Client {
	return control.NewClient(p.Socket)
}

func callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), callTimeout)
}
