package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cast"
	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"synthmcp/codec"
	"synthmcp/config"
	"synthmcp/device"
	"synthmcp/k2000"
	"synthmcp/k4"
	"synthmcp/resolve"
)

const usage = `usage: synthmcp <command> [args]

  get <bank> <number>       print a patch from the device as JSON
  set [bank number]         send a JSON patch read from stdin
  select <bank> <number>    switch the device to a patch
  play [notes]              play test notes, e.g. "C4 E4 G4"
  encode <out.syx>          write a JSON patch from stdin as a .syx file
  dump <file.syx>           print every message in a file and decode it
  scan <dir>                decode every .syx file in a directory
  mcp                       serve the MCP tools on stdio`

// app carries the configured codec and, when a device is connected, the
// open ports.
type app struct {
	cfg   *config.Config
	synth *device.Synth
	codec codec.Codec
}

func main() {
	path, err := config.DefaultPath()
	if err != nil {
		log.Fatalf("could not locate config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if len(os.Args) < 2 {
		log.Println("exiting: no command specified")
		fmt.Fprintln(os.Stderr, usage)
		return
	}

	// Commands that never touch MIDI.
	switch os.Args[1] {
	case "encode":
		a := newApp(cfg, nil)
		if err := a.encodeFile(argAt(2)); err != nil {
			log.Fatalf("encode failed: %v", err)
		}
		return
	case "dump":
		if err := dumpFile(cfg, argAt(2)); err != nil {
			log.Fatalf("dump failed: %v", err)
		}
		return
	case "scan":
		if err := scanDir(cfg, argAt(2)); err != nil {
			log.Fatalf("scan failed: %v", err)
		}
		return
	}

	synth, closer, err := openSynth(cfg)
	if err != nil {
		if os.Args[1] != "mcp" {
			log.Fatalf("failed to open %s: %v", cfg.Port, err)
		}
		log.Printf("running without a device: %v", err)
	} else {
		defer closer()
	}
	a := newApp(cfg, synth)

	switch os.Args[1] {
	case "get":
		bank, number := a.location(argAt(2), argAt(3))
		a.getPatch(bank, number)
	case "set":
		a.setPatch(os.Args[2:])
	case "select":
		bank, number := a.location(argAt(2), argAt(3))
		if err := a.selectPatch(bank, number); err != nil {
			log.Fatalf("failed to select patch: %v", err)
		}
	case "play":
		if err := a.play(strings.Join(os.Args[2:], " ")); err != nil {
			log.Fatalf("failed to play notes: %v", err)
		}
	case "mcp":
		runMCP(a)
	default:
		log.Fatalf("unknown command %q\n%s", os.Args[1], usage)
	}
}

func argAt(i int) string {
	if i < len(os.Args) {
		return os.Args[i]
	}
	return ""
}

func openSynth(cfg *config.Config) (*device.Synth, func(), error) {
	log.Println("Available MIDI outputs:")
	log.Print(midi.GetOutPorts().String())

	portIdx, err := device.FindOutPort(cfg.Port)
	if err != nil {
		return nil, nil, fmt.Errorf("could not find MIDI out port: %w", err)
	}
	inPortIdx, err := device.FindInPort(cfg.Port)
	if err != nil {
		log.Printf("no MIDI in port, replies are unavailable: %v", err)
		inPortIdx = -1
	}

	synth, closer, err := device.Open(portIdx, inPortIdx)
	if err != nil {
		return nil, nil, err
	}
	synth.Debug = cfg.Debug
	log.Printf("Connected to %s on port index %d (channel %d).\n", cfg.Family, portIdx, cfg.Channel)
	return synth, closer, nil
}

// newApp builds the codec for the configured family. A K2000 codec fetches
// studios and presets through synth and is fed every SysEx it receives.
func newApp(cfg *config.Config, synth *device.Synth) *app {
	a := &app{cfg: cfg, synth: synth}
	switch cfg.Family {
	case config.FamilyK2000:
		var req resolve.Requester = offlineRequester
		if synth != nil {
			req = k2000.NewRequester(synth.SendSysEx, byte(cfg.DeviceID), cfg.FormByte())
		}
		c := k2000.New(byte(cfg.DeviceID), cfg.FormByte(), req, cfg.DependencyTimeout)
		if synth != nil {
			synth.Listen(func(msg []byte) {
				if _, err := c.Receive(msg); err != nil && !errors.Is(err, codec.ErrUnrecognized) {
					log.Printf("[k2000] %v", err)
				}
			})
		}
		a.codec = c
	default:
		a.codec = k4.New(cfg.MIDIChannel())
	}
	return a
}

var offlineRequester = resolve.RequesterFunc(func(typ, id int) error {
	return fmt.Errorf("no device connected to fetch %s", codec.ObjectKey{Type: typ, ID: id})
})

// location parses CLI bank and number arguments, exiting on error.
func (a *app) location(bank, number string) (int, int) {
	b, err := parseBank(a.cfg.Family, bank)
	if err != nil {
		log.Fatalf("invalid bank: %v", err)
	}
	n, err := cast.ToIntE(number)
	if err != nil {
		log.Fatalf("invalid number %q: %v", number, err)
	}
	return b, n
}

// parseBank accepts a bank index, or for the K4 a panel name such as
// "I-A" or "E-D".
func parseBank(family, bank string) (int, error) {
	if bank == "" {
		return 0, errors.New("bank must not be empty")
	}
	if n, err := cast.ToIntE(bank); err == nil {
		return n, nil
	}
	if family != config.FamilyK4 {
		return 0, fmt.Errorf("bank must be a number, got %q", bank)
	}

	s := strings.ToUpper(bank)
	base := 0
	switch {
	case strings.HasPrefix(s, "I-"):
		s = s[2:]
	case strings.HasPrefix(s, "E-"):
		s, base = s[2:], k4.Banks/2
	}
	if len(s) != 1 || s[0] < 'A' || s[0] > 'D' {
		return 0, fmt.Errorf("bank must be A–D, I-A–I-D or E-A–E-D, got %q", bank)
	}
	return base + int(s[0]-'A'), nil
}
