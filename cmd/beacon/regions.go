// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/dalyn98/Albion-Beacon-Ver3/cmd/beacon/cli"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/candidates"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/region"
)

func regionsCommand(streams cli.IO) *cli.Command {
	return &cli.Command{
		Name:    "regions",
		Summary: "Inspect region tables and capture logs",
		Subcommands: []*cli.Command{
			regionsListCommand(streams),
			regionsLookupCommand(streams),
			regionsCandidatesCommand(streams),
		},
	}
}

type tableParams struct {
	cli.JSONOutput
	Table string `flag:"table,t" desc:"region table file (JSON, JSONC or YAML)"`
}

func (p *tableParams) load() (*region.Table, error) {
	if p.Table == "" {
		return nil, errors.New("--table is required")
	}
	return region.LoadTable(p.Table)
}

type tableRow struct {
	Prefix string `json:"prefix"`
	Region string `json:"region"`
}

func regionsListCommand(streams cli.IO) *cli.Command {
	var params tableParams
	return &cli.Command{
		Name:    "list",
		Summary: "Print a region table in match order",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("list", &params) },
		Run: func([]string) error {
			table, err := params.load()
			if err != nil {
				return err
			}
			entries := table.Entries()
			rows := make([]tableRow, len(entries))
			for i, entry := range entries {
				rows[i] = tableRow{Prefix: entry.Prefix.String(), Region: entry.Label}
			}
			if done, err := params.EmitJSON(streams.Out, rows); done {
				return err
			}
			tw := tabwriter.NewWriter(streams.Out, 2, 0, 2, ' ', 0)
			for _, row := range rows {
				fmt.Fprintf(tw, "%s\t%s\n", row.Prefix, row.Region)
			}
			return tw.Flush()
		},
	}
}

type lookupResult struct {
	Address string `json:"address"`
	Region  string `json:"region,omitempty"`
	Matched bool   `json:"matched"`
}

func regionsLookupCommand(streams cli.IO) *cli.Command {
	var params tableParams
	return &cli.Command{
		Name:    "lookup",
		Summary: "Resolve addresses against a region table",
		Usage:   "beacon regions lookup --table <file> <address>... [flags]",
		Examples: []cli.Example{{
			Command: "beacon regions lookup --table regions.yaml 52.76.10.1 18.197.3.4:5056",
		}},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("lookup", &params) },
		Run: func(args []string) error {
			if len(args) == 0 {
				return errors.New("at least one address is required")
			}
			table, err := params.load()
			if err != nil {
				return err
			}
			results := make([]lookupResult, len(args))
			for i, address := range args {
				host := address
				if split, _, err := net.SplitHostPort(address); err == nil {
					host = split
				}
				label, ok := table.GuessRegion(host)
				results[i] = lookupResult{Address: address, Region: label, Matched: ok}
			}
			if done, err := params.EmitJSON(streams.Out, results); done {
				return err
			}
			tw := tabwriter.NewWriter(streams.Out, 2, 0, 2, ' ', 0)
			for _, result := range results {
				fmt.Fprintf(tw, "%s\t%s\n", result.Address, orDash(result.Region))
			}
			return tw.Flush()
		},
	}
}

func regionsCandidatesCommand(streams cli.IO) *cli.Command {
	params := struct {
		cli.JSONOutput
		Top int `flag:"top,n" default:"30" desc:"number of busiest public destinations to keep"`
	}{}
	return &cli.Command{
		Name:    "candidates",
		Summary: "Suggest region table prefixes from a capture log",
		Description: `Count public destination addresses in a capture log and aggregate
the busiest into /24 and /16 prefixes, as candidates for a region
table. Accepts JSONL logs (plain, .zst or .lz4) and pcap files.`,
		Usage: "beacon regions candidates <capture-file> [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("candidates", &params) },
		Run: func(args []string) error {
			if len(args) != 1 {
				return errors.New("exactly one capture file is required")
			}
			report, err := candidates.AnalyzeFile(context.Background(), args[0], params.Top)
			if err != nil {
				return err
			}
			cli.NewCommandLogger(streams.Err).Info("analyzed capture log",
				"path", args[0],
				"addresses", len(report.Top),
				"slash24", len(report.Slash24),
				"slash16", len(report.Slash16),
			)
			if done, err := params.EmitJSON(streams.Out, report); done {
				return err
			}
			return report.WriteText(streams.Out)
		},
	}
}
