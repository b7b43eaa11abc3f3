// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build !linux && !darwin

package eventloop

import (
	"github.com/joeycumines/go-reactor/errkind"
)

var errUnsupportedPlatform = errkind.New(errkind.NotSupported, "eventloop: unsupported platform", nil)

func newPoller(PollType, bool, int) (poller, PollType, error) {
	return nil, 0, errUnsupportedPlatform
}

func createWakeFd() (int, int, error) {
	return -1, -1, errUnsupportedPlatform
}

func closeFD(int) error { return errUnsupportedPlatform }

func readFD(int, []byte) (int, error) { return 0, errUnsupportedPlatform }

func writeFD(int, []byte) (int, error) { return 0, errUnsupportedPlatform }
