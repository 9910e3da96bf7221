//go:build !linux

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
)

var errEncoderUnsupported = errors.New("evdev encoder input requires linux")

func openEncoderDevices(paths []string, logger *slog.Logger) ([]*os.File, error) {
	return nil, errEncoderUnsupported
}

func runEncoderEpoll(ctx context.Context, files []*os.File, filter edgeFilter, onEdge func(uint64)) error {
	return errEncoderUnsupported
}
