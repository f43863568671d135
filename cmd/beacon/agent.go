// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/dalyn98/Albion-Beacon-Ver3/cmd/beacon/cli"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/control"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/identity"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/region"
)

func statusCommand(streams cli.IO) *cli.Command {
	params := newAgentParams()
	return &cli.Command{
		Name:    "status",
		Summary: "Show identity, region and relay state",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("status", &params) },
		Run: func([]string) error {
			ctx, cancel := callContext()
			defer cancel()
			status, err := params.client().Status(ctx)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(streams.Out, status); done {
				return err
			}
			renderStatus(streams.Out, status)
			return nil
		},
	}
}

func identityCommand(streams cli.IO) *cli.Command {
	params := newAgentParams()
	return &cli.Command{
		Name:    "identity",
		Summary: "Show the current label and verification state",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("identity", &params) },
		Run: func([]string) error {
			ctx, cancel := callContext()
			defer cancel()
			snapshot, err := params.client().Identity(ctx)
			if err != nil {
				return err
			}
			return emitIdentity(streams, &params, snapshot, false)
		},
	}
}

func labelCommand(streams cli.IO) *cli.Command {
	params := newAgentParams()
	return &cli.Command{
		Name:    "label",
		Summary: "Declare the label to share under",
		Description: `Declare the label to share under. Declaring a label, even the same
one again, discards any prior verification; sharing stops until the
label is verified again. Run with no argument to clear the label.`,
		Usage: "beacon label [<label>] [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("label", &params) },
		Run: func(args []string) error {
			if len(args) > 1 {
				return fmt.Errorf("label takes one argument, got %d (quote labels containing spaces)", len(args))
			}
			var label string
			if len(args) == 1 {
				label = args[0]
			}
			ctx, cancel := callContext()
			defer cancel()
			snapshot, err := params.client().SetLabel(ctx, label)
			if err != nil {
				return err
			}
			return emitIdentity(streams, &params, snapshot, false)
		},
	}
}

func verifyCommand(streams cli.IO) *cli.Command {
	return &cli.Command{
		Name:    "verify",
		Summary: "Prove the declared label",
		Description: `Prove the declared label. Each subcommand exits 1 when the label is
still unverified afterwards.`,
		Subcommands: []*cli.Command{
			verifyManualCommand(streams),
			verifyOCRCommand(streams),
			verifyServerCommand(streams),
		},
	}
}

func verifyManualCommand(streams cli.IO) *cli.Command {
	params := struct {
		agentParams
		Reject bool `flag:"reject" desc:"send a negative confirmation, leaving the gate unchanged"`
	}{agentParams: newAgentParams()}
	return &cli.Command{
		Name:    "manual",
		Summary: "Confirm the label by hand",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("manual", &params) },
		Run: func([]string) error {
			ctx, cancel := callContext()
			defer cancel()
			snapshot, err := params.client().VerifyManual(ctx, !params.Reject)
			if err != nil {
				return err
			}
			return emitIdentity(streams, &params.agentParams, snapshot, true)
		},
	}
}

func verifyOCRCommand(streams cli.IO) *cli.Command {
	params := newAgentParams()
	return &cli.Command{
		Name:    "ocr",
		Summary: "Verify against text recognized from the game screen",
		Usage:   "beacon verify ocr <text>... [flags]",
		Examples: []cli.Example{{
			Description: "The label appears anywhere in the text, ignoring case",
			Command:     `beacon verify ocr "[Guild] HYUNA has joined the party"`,
		}},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("ocr", &params) },
		Run: func(args []string) error {
			if len(args) == 0 {
				return errors.New("recognized text is required")
			}
			ctx, cancel := callContext()
			defer cancel()
			snapshot, err := params.client().VerifyOCR(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return emitIdentity(streams, &params, snapshot, true)
		},
	}
}

func verifyServerCommand(streams cli.IO) *cli.Command {
	params := struct {
		agentParams
		Verdict string `flag:"verdict" desc:"record an explicit verdict (accept or reject) instead of asking the API"`
	}{agentParams: newAgentParams()}
	return &cli.Command{
		Name:    "server",
		Summary: "Verify through the Beacon API auth gate",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("server", &params) },
		Run: func([]string) error {
			var verdict *bool
			switch params.Verdict {
			case "":
			case "accept":
				accepted := true
				verdict = &accepted
			case "reject":
				accepted := false
				verdict = &accepted
			default:
				return fmt.Errorf("--verdict must be accept or reject, got %q", params.Verdict)
			}
			ctx, cancel := callContext()
			defer cancel()
			snapshot, err := params.client().VerifyServer(ctx, verdict)
			if err != nil {
				return err
			}
			return emitIdentity(streams, &params.agentParams, snapshot, true)
		},
	}
}

// emitIdentity prints snapshot. With requireVerified, an unverified
// result exits 1 after printing.
func emitIdentity(streams cli.IO, params *agentParams, snapshot identity.Snapshot, requireVerified bool) error {
	if done, err := params.EmitJSON(streams.Out, snapshot); done {
		if err != nil {
			return err
		}
	} else {
		renderIdentity(streams.Out, snapshot)
	}
	if requireVerified && !snapshot.Verified {
		return &cli.ExitError{Code: 1}
	}
	return nil
}

func submitCommand(streams cli.IO) *cli.Command {
	params := struct {
		agentParams
		Label  string  `flag:"label" desc:"expected label; the agent rejects a label other than its verified one"`
		Region string  `flag:"region" desc:"region label (default: the agent's current region)"`
		X      float64 `flag:"x" desc:"horizontal map position, 0..1"`
		Y      float64 `flag:"y" desc:"vertical map position, 0..1"`
		Party  int     `flag:"party" desc:"party size, 1..20"`
	}{agentParams: newAgentParams()}
	var flagSet *pflag.FlagSet
	return &cli.Command{
		Name:    "submit",
		Summary: "Place a snapshot in the relay mailbox",
		Description: `Place a snapshot in the relay mailbox, replacing whatever is pending.
Position and party size are sent only when given. The agent keeps the
report and resends it in place of heartbeats until the label changes.
Submitting fails while sharing is not permitted.`,
		Examples: []cli.Example{{
			Description: "Share a position with a party of five",
			Command:     "beacon submit --x 0.41 --y 0.63 --party 5",
		}},
		Flags: func() *pflag.FlagSet {
			flagSet = cli.FlagsFromParams("submit", &params)
			return flagSet
		},
		Run: func([]string) error {
			request := control.SubmitRequest{Label: params.Label, Region: params.Region}
			switch xSet, ySet := flagSet.Changed("x"), flagSet.Changed("y"); {
			case xSet && ySet:
				request.Position = &region.Position{X: params.X, Y: params.Y}
			case xSet || ySet:
				return errors.New("--x and --y must be given together")
			}
			if flagSet.Changed("party") {
				party := params.Party
				request.PartySize = &party
			}

			ctx, cancel := callContext()
			defer cancel()
			snapshot, err := params.client().Submit(ctx, request)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(streams.Out, snapshot); done {
				return err
			}
			rows := []statusRow{
				{"label", orDash(snapshot.Label)},
				{"region", snapshot.Region},
			}
			if snapshot.Position != nil {
				rows = append(rows, statusRow{"position", fmt.Sprintf("%.4f, %.4f", snapshot.Position.X, snapshot.Position.Y)})
			}
			if snapshot.PartySize != nil {
				rows = append(rows, statusRow{"party", fmt.Sprint(*snapshot.PartySize)})
			}
			renderRows(streams.Out, "submitted", rows)
			return nil
		},
	}
}

func relayCommand(streams cli.IO) *cli.Command {
	toggle := func(name, summary string, enabled bool) *cli.Command {
		params := newAgentParams()
		return &cli.Command{
			Name:    name,
			Summary: summary,
			Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams(name, &params) },
			Run: func([]string) error {
				ctx, cancel := callContext()
				defer cancel()
				response, err := params.client().SetRelay(ctx, enabled)
				if err != nil {
					return err
				}
				if done, err := params.EmitJSON(streams.Out, response); done {
					return err
				}
				renderRows(streams.Out, "relay", []statusRow{
					{"upload", onOff(response.UploadEnabled)},
					{"sharing", onOff(response.Sharing)},
				})
				return nil
			},
		}
	}
	return &cli.Command{
		Name:    "relay",
		Summary: "Turn sharing on or off",
		Subcommands: []*cli.Command{
			toggle("enable", "Enable uploads and restart the relay if permitted", true),
			toggle("disable", "Disable uploads and stop the relay", false),
		},
	}
}
