package can

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
)

// SLCAN bitrate setup codes ("S0".."S8").
var slcanBitrates = map[int]byte{
	10_000:    '0',
	20_000:    '1',
	50_000:    '2',
	100_000:   '3',
	125_000:   '4',
	250_000:   '5',
	500_000:   '6',
	800_000:   '7',
	1_000_000: '8',
}

const (
	slcanCR   = '\r'
	slcanBell = '\a'

	DefaultSLCANBaudRate = 115200
	DefaultSLCANBitrate  = 500_000

	// slcanReplyTimeout bounds the wait for the reply to a setup command.
	slcanReplyTimeout = 200 * time.Millisecond
)

var (
	// ErrSLCANRejected is returned by OpenSLCAN when the adapter answers a
	// setup command with BELL.
	ErrSLCANRejected = errors.New("can: slcan adapter rejected command")
	// ErrSLCANNoReply is returned by OpenSLCAN when the adapter does not answer
	// a setup command in time.
	ErrSLCANNoReply = errors.New("can: slcan adapter did not reply")
)

// serialPort is the subset of serial.Port used by SLCAN, so tests can
// substitute an in-memory port.
type serialPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	Close() error
}

// SLCANConfig configures an SLCAN adapter.
type SLCANConfig struct {
	// BaudRate of the USB-serial link. Most adapters ignore it. Default 115200.
	BaudRate int
	// Bitrate of the CAN bus in bit/s. Must be one of the standard SLCAN rates.
	// Default 500000.
	Bitrate int
}

// SLCAN is a Transport speaking the Lawicel ASCII protocol over a serial port.
type SLCAN struct {
	port    serialPort
	wmu     sync.Mutex
	pending []byte
	closed  atomic.Bool
	// commands refused with BELL after setup, such as a transmit while the
	// adapter buffer is full
	rejected atomic.Uint64
}

var _ Transport = (*SLCAN)(nil)

// OpenSLCAN opens the serial device portName and brings the CAN channel up.
func OpenSLCAN(portName string, cfg SLCANConfig) (*SLCAN, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultSLCANBaudRate
	}

	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("can: open serial port %q: %w", portName, err)
	}

	s, err := newSLCAN(port, cfg.Bitrate)
	if err != nil {
		_ = port.Close()
		return nil, err
	}

	return s, nil
}

func newSLCAN(port serialPort, bitrate int) (*SLCAN, error) {
	if bitrate == 0 {
		bitrate = DefaultSLCANBitrate
	}
	code, ok := slcanBitrates[bitrate]
	if !ok {
		return nil, fmt.Errorf("can: unsupported slcan bitrate %d", bitrate)
	}

	if err := port.SetReadTimeout(PollInterval); err != nil {
		return nil, fmt.Errorf("can: set serial read timeout: %w", err)
	}

	s := &SLCAN{port: port}

	// Close first in case a previous run left the channel open. An adapter
	// whose channel is already closed answers it with BELL, so its reply only
	// has to be drained.
	if err := s.command([]byte{'C', slcanCR}); err != nil &&
		!errors.Is(err, ErrSLCANRejected) && !errors.Is(err, ErrSLCANNoReply) {
		return nil, err
	}
	for _, cmd := range [][]byte{{'S', code, slcanCR}, {'O', slcanCR}} {
		if err := s.command(cmd); err != nil {
			return nil, fmt.Errorf("can: slcan setup %q: %w", cmd[:len(cmd)-1], err)
		}
	}

	return s, nil
}

// command writes a setup command and consumes its reply, a bare CR on
// success or BELL on refusal. Frame records received meanwhile are dropped.
func (s *SLCAN) command(cmd []byte) error {
	if err := s.write(cmd); err != nil {
		return err
	}

	deadline := time.Now().Add(slcanReplyTimeout)
	buf := make([]byte, 64)
	for {
		for {
			line, ok := s.nextLine()
			if !ok {
				break
			}
			switch {
			case line[len(line)-1] == slcanBell:
				return ErrSLCANRejected
			case len(line) == 1:
				return nil
			}
		}

		if time.Now().After(deadline) {
			return ErrSLCANNoReply
		}

		n, err := s.port.Read(buf)
		if err != nil {
			return fmt.Errorf("can: slcan read: %w", err)
		}
		s.pending = append(s.pending, buf[:n]...)
	}
}

// Rejected reports how many commands the adapter refused with BELL since
// the channel was opened.
func (s *SLCAN) Rejected() uint64 {
	return s.rejected.Load()
}

func (s *SLCAN) ReadFrame(ctx context.Context) (Frame, error) {
	buf := make([]byte, 64)
	for {
		for {
			line, ok := s.nextLine()
			if !ok {
				break
			}
			f, isFrame, err := parseSLCAN(line)
			if errors.Is(err, ErrSLCANRejected) {
				// the refused command was a transmit; the bus itself is still up
				s.rejected.Add(1)
				continue
			}
			// malformed records are line noise; resync on the next terminator
			if isFrame {
				return f, nil
			}
		}

		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}

		n, err := s.port.Read(buf)
		if err != nil {
			if s.closed.Load() {
				return Frame{}, ErrClosed
			}
			return Frame{}, fmt.Errorf("can: slcan read: %w", err)
		}
		// n == 0 is a read timeout
		s.pending = append(s.pending, buf[:n]...)
	}
}

func (s *SLCAN) WriteFrame(ctx context.Context, f Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.write(formatSLCAN(f))
}

// Close closes the CAN channel and the serial port.
func (s *SLCAN) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	_ = s.write([]byte{'C', slcanCR})

	return s.port.Close()
}

func (s *SLCAN) write(b []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	for len(b) > 0 {
		n, err := s.port.Write(b)
		if err != nil {
			if s.closed.Load() {
				return ErrClosed
			}
			return fmt.Errorf("can: slcan write: %w", err)
		}
		b = b[n:]
	}

	return nil
}

// nextLine pops one CR or BELL terminated record off the pending buffer.
// The terminator is kept so BELL can be told apart from an empty ack.
func (s *SLCAN) nextLine() ([]byte, bool) {
	i := bytes.IndexAny(s.pending, "\r\a")
	if i < 0 {
		return nil, false
	}

	line := make([]byte, i+1)
	copy(line, s.pending[:i+1])
	s.pending = s.pending[i+1:]

	return line, true
}

// formatSLCAN renders f as "tIIILDD..\r" or "TIIIIIIIILDD..\r".
func formatSLCAN(f Frame) []byte {
	out := make([]byte, 0, 1+8+1+2*MaxDataLen+1)
	if f.ID.Extended {
		out = append(out, 'T')
		out = fmt.Appendf(out, "%08X", f.ID.Value&MaxExtendedID)
	} else {
		out = append(out, 't')
		out = fmt.Appendf(out, "%03X", f.ID.Value&MaxStandardID)
	}
	out = append(out, '0'+f.Len)
	out = append(out, bytes.ToUpper([]byte(hex.EncodeToString(f.Payload())))...)

	return append(out, slcanCR)
}

// parseSLCAN decodes one record. isFrame is false for acks and remote frames.
func parseSLCAN(line []byte) (f Frame, isFrame bool, err error) {
	if len(line) == 0 {
		return Frame{}, false, nil
	}
	if line[len(line)-1] == slcanBell {
		return Frame{}, false, ErrSLCANRejected
	}
	line = bytes.TrimSuffix(line, []byte{slcanCR})
	if len(line) == 0 {
		return Frame{}, false, nil
	}

	var idLen int
	switch line[0] {
	case 't':
		idLen = 3
	case 'T':
		idLen = 8
		f.ID.Extended = true
	default:
		// z/Z transmit acks, r/R remote frames, version replies
		return Frame{}, false, nil
	}

	if len(line) < 1+idLen+1 {
		return Frame{}, false, fmt.Errorf("can: malformed slcan frame %q", line)
	}

	id, err := strconv.ParseUint(string(line[1:1+idLen]), 16, 32)
	if err != nil {
		return Frame{}, false, fmt.Errorf("can: malformed slcan id %q: %w", line, err)
	}
	f.ID.Value = uint32(id)
	if !f.ID.Valid() {
		return Frame{}, false, fmt.Errorf("%w: %q", ErrInvalidID, line)
	}

	dlc := int(line[1+idLen] - '0')
	if dlc < 0 || dlc > MaxDataLen {
		return Frame{}, false, fmt.Errorf("can: malformed slcan length %q", line)
	}

	data := line[2+idLen:]
	// a trailing 4-digit timestamp may follow the data when enabled on the adapter
	if len(data) < 2*dlc {
		return Frame{}, false, fmt.Errorf("can: truncated slcan frame %q", line)
	}
	if _, err := hex.Decode(f.Data[:dlc], data[:2*dlc]); err != nil {
		return Frame{}, false, fmt.Errorf("can: malformed slcan data %q: %w", line, err)
	}
	f.Len = uint8(dlc) //nolint:gosec // bounded above

	return f, true, nil
}
