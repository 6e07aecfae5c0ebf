package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cast"

	"synthmcp/codec"
	"synthmcp/config"
	"synthmcp/device"
	"synthmcp/k2000"
	"synthmcp/k4"
	"synthmcp/param"
)

var errNoDevice = errors.New("no device connected")

func (a *app) getPatch(bank, number int) {
	doc, err := a.fetch(context.Background(), bank, number)
	if err != nil {
		log.Fatalf("failed to read patch: %v", err)
	}
	log.Println("Patch name", doc.Name)

	asJson, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal patch to JSON: %v", err)
	}

	fmt.Println(string(asJson))
}

// setPatch reads a JSON patch from stdin and sends it. args, when given,
// override the bank and number stored in the JSON.
func (a *app) setPatch(args []string) {
	asJson, err := io.ReadAll(os.Stdin)
	if err != nil {
		log.Fatalf("failed to read patch JSON from stdin: %v", err)
	}

	m, err := a.importPatch(asJson)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if len(args) >= 2 {
		m.Bank, m.Number = a.location(args[0], args[1])
	}

	if err := a.send(m, false); err != nil {
		log.Fatalf("failed to send patch: %v", err)
	}
}

// encodeFile writes a JSON patch from stdin to path as a .syx file.
func (a *app) encodeFile(path string) error {
	if path == "" {
		return errors.New("missing output file")
	}
	asJson, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("failed to read patch JSON from stdin: %w", err)
	}
	c, m, err := a.importFor(asJson)
	if err != nil {
		return err
	}
	msg, err := c.Emit(m, false, true)
	if err != nil {
		return err
	}
	return os.WriteFile(path, msg, 0644)
}

// importPatch applies a JSON document onto a new model of the configured
// family.
func (a *app) importPatch(data []byte) (*param.Model, error) {
	m := a.codec.NewModel()
	family, err := param.Import(data, m)
	if err != nil {
		return nil, err
	}
	if family != "" && family != a.codec.Family() {
		return nil, fmt.Errorf("patch is for %s, device is %s", family, a.codec.Family())
	}
	return m, nil
}

// importFor picks the codec named by the document's family, falling back
// to the configured one.
func (a *app) importFor(data []byte) (codec.Codec, *param.Model, error) {
	var head struct {
		Family string `json:"family"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal patch JSON: %w", err)
	}
	c := a.codec
	if head.Family != "" {
		var err error
		if c, err = codecFor(a.cfg, head.Family); err != nil {
			return nil, nil, err
		}
	}
	m := c.NewModel()
	if _, err := param.Import(data, m); err != nil {
		return nil, nil, err
	}
	return c, m, nil
}

// fetch requests the patch at bank and number and decodes it, waiting for
// any objects it depends on.
func (a *app) fetch(ctx context.Context, bank, number int) (*param.Document, error) {
	if a.synth == nil {
		return nil, errNoDevice
	}

	var req []byte
	var match func([]byte) bool
	var err error
	switch c := a.codec.(type) {
	case *k4.Codec:
		req, err = c.RequestSingle(bank, number)
		match = func(msg []byte) bool { return len(msg) == k4.SingleSize }
	case *k2000.Codec:
		req, err = c.RequestProgram(bank, number)
		match = isProgramWrite
	default:
		err = fmt.Errorf("family %s cannot fetch patches", a.codec.Family())
	}
	if err != nil {
		return nil, err
	}

	msg, err := a.synth.Request(req, match, a.cfg.ReplyTimeout)
	if err != nil {
		return nil, err
	}
	res, err := a.codec.Parse(msg)
	if err != nil {
		return nil, err
	}

	m := res.Model
	if res.Status == codec.Awaiting {
		c := a.codec.(*k2000.Codec)
		log.Printf("Waiting for %d objects", len(res.Pending))
		if m, err = c.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if m == nil {
		return nil, fmt.Errorf("unexpected decode status %s", res.Status)
	}
	return param.Export(m, a.codec.Family(), a.codec.Reachable(m)), nil
}

func isProgramWrite(msg []byte) bool {
	obj, err := k2000.DecodeWrite(msg)
	return !errors.Is(err, codec.ErrUnrecognized) && obj.Type == k2000.TypeProgram
}

// send emits m to the device and reports whether the device refused it.
func (a *app) send(m *param.Model, toWorkingMemory bool) error {
	if a.synth == nil {
		return errNoDevice
	}
	msg, err := a.codec.Emit(m, toWorkingMemory, false)
	if err != nil {
		return fmt.Errorf("failed to build payload: %w", err)
	}
	log.Printf("Sending %q to bank %d number %d", m.Name, m.Bank, m.Number)

	switch a.codec.(type) {
	case *k4.Codec:
		reply, err := a.synth.Request(msg, func(r []byte) bool { return len(r) == k4.WriteStatusSize }, a.cfg.ReplyTimeout)
		if errors.Is(err, device.ErrTimeout) {
			// Edit buffer writes are not acknowledged.
			return nil
		}
		if err != nil {
			return err
		}
		return k4.ParseWriteStatus(reply)
	case *k2000.Codec:
		raw, err := a.synth.Request(msg, isProgramReply, a.cfg.ReplyTimeout)
		if err != nil {
			return err
		}
		reply, err := k2000.DecodeReply(raw)
		if err != nil {
			return err
		}
		return reply.Err()
	}
	return a.synth.SendSysEx(msg)
}

// isProgramReply matches the DACK or DNAK answering a program write.
func isProgramReply(msg []byte) bool {
	reply, err := k2000.DecodeReply(msg)
	return err == nil && reply.Key.Type == k2000.TypeProgram
}

// selectPatch switches the device to bank and number.
func (a *app) selectPatch(bank, number int) error {
	if a.synth == nil {
		return errNoDevice
	}
	ch := a.cfg.MIDIChannel()
	switch a.cfg.Family {
	case config.FamilyK2000:
		if err := k2000.ValidLocation(bank, number); err != nil {
			return err
		}
		if err := a.synth.SelectBank(ch, uint8(bank)); err != nil {
			return err
		}
		return a.synth.SelectPatch(ch, uint8(number))
	default:
		if err := k4.ValidLocation(bank, number); err != nil {
			return err
		}
		// Program change reaches the internal singles only.
		if bank >= k4.Banks/2 {
			return fmt.Errorf("bank %s cannot be selected by program change", k4.BankName(bank))
		}
		return a.synth.SelectPatch(ch, k4.AddressOf(bank, number))
	}
}

// parseLocation reads bank and number from loosely typed tool arguments.
func parseLocation(family string, bank, number any) (int, int, error) {
	b, err := parseBank(family, cast.ToString(bank))
	if err != nil {
		return 0, 0, err
	}
	n, err := cast.ToIntE(number)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid number: %w", err)
	}
	return b, n, nil
}
