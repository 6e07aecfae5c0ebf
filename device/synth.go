// Package device talks to a synthesizer over a pair of MIDI ports.
package device

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"synthmcp/sysex"
)

// SysExBufferSize fits the largest dump either family sends in one message.
const SysExBufferSize = 16384

// ErrTimeout is returned by Request when no matching reply arrives in time.
var ErrTimeout = errors.New("timed out waiting for reply")

// Synth is an open output port plus an optional input port. Every SysEx
// message received on the input is handed to each listener.
type Synth struct {
	// Debug dumps every message sent and received to stderr.
	Debug bool

	out  drivers.Out
	in   drivers.In
	stop func()

	mu   sync.Mutex
	subs map[int]func([]byte)
	next int
}

// FindOutPort returns the number of the first output whose name contains
// nameFragment, ignoring case.
func FindOutPort(nameFragment string) (int, error) {
	outs := midi.GetOutPorts()
	if len(outs) == 0 {
		return -1, fmt.Errorf("no MIDI outputs available")
	}

	lower := strings.ToLower(nameFragment)
	for _, out := range outs {
		if strings.Contains(strings.ToLower(out.String()), lower) {
			return out.Number(), nil
		}
	}

	return -1, fmt.Errorf("no MIDI output contains %q", nameFragment)
}

// FindInPort is FindOutPort for inputs.
func FindInPort(nameFragment string) (int, error) {
	ins := midi.GetInPorts()
	if len(ins) == 0 {
		return -1, fmt.Errorf("no MIDI inputs available")
	}

	lower := strings.ToLower(nameFragment)
	for _, in := range ins {
		if strings.Contains(strings.ToLower(in.String()), lower) {
			return in.Number(), nil
		}
	}

	return -1, fmt.Errorf("no MIDI input contains %q", nameFragment)
}

// Open opens output outIndex and, when inIndex is not negative, starts
// listening on input inIndex. The returned closer releases both ports and
// the driver.
func Open(outIndex, inIndex int) (*Synth, func(), error) {
	outs, err := drivers.Outs()
	if err != nil {
		return nil, nil, err
	}
	if outIndex < 0 || outIndex >= len(outs) {
		return nil, nil, fmt.Errorf("output port index %d out of range", outIndex)
	}

	out := outs[outIndex]
	if err := out.Open(); err != nil {
		return nil, nil, err
	}
	s := &Synth{out: out}
	log.Println("Opened MIDI output port", out.String())

	if inIndex >= 0 {
		ins, err := drivers.Ins()
		if err != nil {
			_ = out.Close()
			return nil, nil, err
		}
		if inIndex >= len(ins) {
			_ = out.Close()
			return nil, nil, fmt.Errorf("input port index %d out of range", inIndex)
		}
		s.in = ins[inIndex]
		stop, err := midi.ListenTo(s.in, func(msg midi.Message, _ int32) {
			s.dispatch(msg)
		}, midi.UseSysEx(), midi.SysExBufferSize(SysExBufferSize))
		if err != nil {
			_ = out.Close()
			return nil, nil, fmt.Errorf("failed to listen on %s: %w", s.in.String(), err)
		}
		s.stop = stop
		log.Println("Listening on MIDI input port", s.in.String())
	}

	closer := func() {
		if s.stop != nil {
			s.stop()
		}
		_ = out.Close()
		drivers.Close()
	}
	return s, closer, nil
}

// Send transmits a MIDI message, reopening the output if it was closed.
func (s *Synth) Send(msg midi.Message) error {
	if !s.out.IsOpen() {
		if err := s.out.Open(); err != nil {
			return err
		}
	}
	return s.out.Send(msg.Bytes())
}

// SendSysEx transmits a raw SysEx payload.
func (s *Synth) SendSysEx(data []byte) error {
	if s.Debug {
		sysex.Dump(os.Stderr, data, "sent sysex")
	}
	return s.Send(midi.Message(data))
}

// SelectPatch sends a program change on channel (0-based).
func (s *Synth) SelectPatch(channel, program uint8) error {
	if channel > 15 {
		return fmt.Errorf("channel must be in range 0–15, got %d", channel)
	}
	if program > 127 {
		return fmt.Errorf("program must be in range 0–127, got %d", program)
	}
	return s.Send(midi.ProgramChange(channel, program))
}

// SelectBank sends bank select (controller 0) on channel.
func (s *Synth) SelectBank(channel, bank uint8) error {
	if channel > 15 {
		return fmt.Errorf("channel must be in range 0–15, got %d", channel)
	}
	if bank > 127 {
		return fmt.Errorf("bank must be in range 0–127, got %d", bank)
	}
	return s.Send(midi.ControlChange(channel, 0, bank))
}

// Listen registers fn for every SysEx message received. fn runs on the
// driver's goroutine and must not block. The returned func unregisters it.
func (s *Synth) Listen(fn func([]byte)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[int]func([]byte))
	}
	id := s.next
	s.next++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Request sends req and waits for the first received message match accepts.
func (s *Synth) Request(req []byte, match func([]byte) bool, timeout time.Duration) ([]byte, error) {
	if s.in == nil {
		return nil, errors.New("no MIDI input open")
	}
	w := newWaiter(match)
	remove := s.Listen(w.offer)
	defer remove()

	log.Println("Sending SysEx request")
	if err := s.SendSysEx(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return w.wait(timeout)
}

func (s *Synth) dispatch(msg []byte) {
	if len(msg) == 0 || msg[0] != sysex.Start {
		return
	}
	if s.Debug {
		sysex.Dump(os.Stderr, msg, "received sysex")
	}
	s.mu.Lock()
	fns := make([]func([]byte), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		c := make([]byte, len(msg))
		copy(c, msg)
		fn(c)
	}
}

// waiter keeps the first message accepted by match.
type waiter struct {
	match func([]byte) bool
	ch    chan []byte
}

func newWaiter(match func([]byte) bool) *waiter {
	return &waiter{match: match, ch: make(chan []byte, 1)}
}

func (w *waiter) offer(msg []byte) {
	if w.match != nil && !w.match(msg) {
		return
	}
	select {
	case w.ch <- msg:
	default:
	}
}

func (w *waiter) wait(timeout time.Duration) ([]byte, error) {
	select {
	case msg := <-w.ch:
		log.Println("Received SysEx message")
		return msg, nil
	case <-time.After(timeout):
		log.Println("Timed out waiting for reply")
	}
	return nil, ErrTimeout
}
