//go:build linux

package can

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// SocketCAN is a Transport over a Linux raw CAN socket bound to one interface.
type SocketCAN struct {
	fd     int
	ifname string
	closed atomic.Bool
}

var _ Transport = (*SocketCAN)(nil)

// DialSocketCAN opens a raw CAN socket bound to the interface ifname (e.g. "can0").
//
// Reads and writes use SO_RCVTIMEO/SO_SNDTIMEO of PollInterval so that context
// cancellation is observed without closing the socket.
func DialSocketCAN(ifname string) (*SocketCAN, error) {
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("can: lookup interface %q: %w", ifname, err)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("can: open raw socket: %w", err)
	}

	tv := unix.NsecToTimeval(PollInterval.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("can: set receive timeout: %w", err)
	}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("can: set send timeout: %w", err)
	}

	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: iface.Index}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("can: bind %q: %w", ifname, err)
	}

	return &SocketCAN{fd: fd, ifname: ifname}, nil
}

// Name returns the bound interface name.
func (s *SocketCAN) Name() string { return s.ifname }

func (s *SocketCAN) ReadFrame(ctx context.Context) (Frame, error) {
	var buf [socketCANFrameSize]byte
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}

		n, err := unix.Read(s.fd, buf[:])
		if err != nil {
			if isTemporary(err) {
				continue
			}
			if s.closed.Load() {
				return Frame{}, ErrClosed
			}
			return Frame{}, fmt.Errorf("can: read %s: %w", s.ifname, err)
		}

		f, ok, err := unmarshalSocketCAN(buf[:n])
		if err != nil {
			return Frame{}, err
		}
		if ok {
			return f, nil
		}
	}
}

func (s *SocketCAN) WriteFrame(ctx context.Context, f Frame) error {
	var buf [socketCANFrameSize]byte
	marshalSocketCAN(f, buf[:])

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		_, err := unix.Write(s.fd, buf[:])
		if err == nil {
			return nil
		}
		// ENOBUFS means the interface tx queue is full; retry until ctx expires.
		if isTemporary(err) || errors.Is(err, unix.ENOBUFS) {
			continue
		}
		if s.closed.Load() {
			return ErrClosed
		}

		return fmt.Errorf("can: write %s: %w", s.ifname, err)
	}
}

func (s *SocketCAN) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Close(s.fd)
}

func isTemporary(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR)
}
