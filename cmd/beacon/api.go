// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/dalyn98/Albion-Beacon-Ver3/cmd/beacon/cli"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/beaconapi"
)

// ServerEnv names the environment variable holding the default API URL.
const ServerEnv = "BEACON_SERVER_URL"

type serverParams struct {
	cli.JSONOutput
	Server string `flag:"server" desc:"Beacon API base URL (env BEACON_SERVER_URL)"`
}

func (p *serverParams) client(lookup func(string) string) (*beaconapi.Client, error) {
	server := p.Server
	if server == "" {
		server = lookup(ServerEnv)
	}
	if server == "" {
		return nil, errors.New("--server is required")
	}
	return beaconapi.NewClient(server, &http.Client{Timeout: callTimeout})
}

func apiCommand(streams cli.IO) *cli.Command {
	return &cli.Command{
		Name:    "api",
		Summary: "Query a Beacon API server directly",
		Subcommands: []*cli.Command{
			apiHealthCommand(streams),
			apiNearbyCommand(streams),
		},
	}
}

func apiHealthCommand(streams cli.IO) *cli.Command {
	var params serverParams
	return &cli.Command{
		Name:    "health",
		Summary: "Check that the server is up",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("health", &params) },
		Run: func([]string) error {
			client, err := params.client(streams.Env)
			if err != nil {
				return err
			}
			ctx, cancel := callContext()
			defer cancel()
			health, err := client.Health(ctx)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(streams.Out, health); done {
				return err
			}
			renderRows(streams.Out, "server", []statusRow{
				{"ok", fmt.Sprint(health.OK)},
				{"time", time.Unix(health.Timestamp, 0).UTC().Format(time.RFC3339)},
			})
			if !health.OK {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

func apiNearbyCommand(streams cli.IO) *cli.Command {
	params := struct {
		serverParams
		Hop int `flag:"hop" desc:"search radius in hops (default 8)"`
	}{}
	return &cli.Command{
		Name:    "nearby",
		Summary: "List players the server reports nearby",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("nearby", &params) },
		Run: func([]string) error {
			client, err := params.client(streams.Env)
			if err != nil {
				return err
			}
			ctx, cancel := callContext()
			defer cancel()
			events, err := client.Nearby(ctx, params.Hop)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(streams.Out, events); done {
				return err
			}
			tw := tabwriter.NewWriter(streams.Out, 2, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "LABEL\tDIST\tREGION\tPOSITION")
			for _, event := range events {
				position := "-"
				if event.Position != nil {
					position = fmt.Sprintf("%.3f, %.3f", event.Position.X, event.Position.Y)
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", event.Label, event.Distance, orDash(event.Region), position)
			}
			return tw.Flush()
		},
	}
}
