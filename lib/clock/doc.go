// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time source used by the relay
// engine, the agent and their tests.
//
// Production code holds a Clock field set to Real(). Tests use Fake(),
// whose time only moves when Advance is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	engine := share.New(share.Config{Clock: c, ...})
//	engine.Start(ctx)
//	c.WaitForTimers(1)          // the poll loop has created its ticker
//	c.Advance(200 * time.Millisecond)
//
// WaitForTimers closes the race between a goroutine registering a
// ticker or sleep and the test advancing the clock past it.
package clock
