// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package service

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// sameUserPeer rejects Unix socket peers whose UID differs from ours.
// Root is always allowed.
func sameUserPeer(conn net.Conn) error {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil
	}
	uid, err := peerUID(unixConn)
	if err != nil {
		return err
	}
	if uid != 0 && uid != uint32(os.Getuid()) {
		return fmt.Errorf("peer uid %d does not match server uid %d", uid, os.Getuid())
	}
	return nil
}

func peerUID(conn *net.UnixConn) (uint32, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, fmt.Errorf("peer credentials: %w", err)
	}
	var credentials *unix.Ucred
	var credentialsErr error
	if err := raw.Control(func(fd uintptr) {
		credentials, credentialsErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return 0, fmt.Errorf("peer credentials: %w", err)
	}
	if credentialsErr != nil {
		return 0, fmt.Errorf("SO_PEERCRED: %w", credentialsErr)
	}
	return credentials.Uid, nil
}
