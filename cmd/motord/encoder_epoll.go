//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// EVIOCSCLOCKID = _IOW('E', 0xa0, int): select the clock used for event timestamps.
const evioCSClockID = 0x400445a0

const (
	epollMaxEvents    = 32  // Ready descriptors handled per epoll_wait call
	epollTimeoutMS    = 250 // Wake up this often to notice cancellation
	eventsPerReadCall = 64  // input_event records read per syscall
)

// openEncoderDevices opens the evdev devices and switches their timestamps to
// CLOCK_MONOTONIC so wall-clock adjustments never reach the EdgeTimer.
func openEncoderDevices(paths []string, logger *slog.Logger) ([]*os.File, error) {
	files := make([]*os.File, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			for _, o := range files {
				o.Close()
			}
			return nil, fmt.Errorf("open %s: %w", p, err)
		}
		if err := unix.IoctlSetPointerInt(int(f.Fd()), evioCSClockID, unix.CLOCK_MONOTONIC); err != nil {
			logger.Warn("could not select monotonic event clock", "device", p, "error", err)
		}
		files = append(files, f)
	}
	return files, nil
}

// runEncoderEpoll reads encoder edges from all devices with a single epoll loop
// and calls onEdge for each one, in the reader goroutine. It returns nil when
// ctx is canceled.
func runEncoderEpoll(ctx context.Context, files []*os.File, filter edgeFilter, onEdge func(uint64)) error {
	if len(files) == 0 {
		return errors.New("no encoder devices provided")
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	fdToFile := make(map[int]*os.File, len(files))
	for _, f := range files {
		fd := int(f.Fd())
		fdToFile[fd] = f

		event := unix.EpollEvent{
			Events: unix.EPOLLIN,
			Fd:     int32(fd),
		}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
			return fmt.Errorf("epoll_ctl_add fd=%d: %w", fd, err)
		}
	}

	epollEvents := make([]unix.EpollEvent, epollMaxEvents)
	buf := make([]byte, inputEventSize*eventsPerReadCall)

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := unix.EpollWait(epfd, epollEvents, epollTimeoutMS)
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(epollEvents[i].Fd)
			f := fdToFile[fd]

			if epollEvents[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				return fmt.Errorf("device error/hangup: %s (fd=%d)", f.Name(), fd)
			}

			// evdev only ever returns whole records.
			got, err := unix.Read(fd, buf)
			if err != nil {
				if errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN) {
					continue
				}
				return fmt.Errorf("read from %s: %w", f.Name(), err)
			}
			decodeEdges(buf[:got], filter, onEdge)
		}
	}
}
