package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	_ "embed"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"synthmcp/config"
	"synthmcp/k2000"
	"synthmcp/k4"
	"synthmcp/sysex"
)

//go:embed formats.txt
var formatsDoc string

func runMCP(a *app) {

	s := server.NewMCPServer(
		"Synth MCP",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	docTool := mcp.NewTool("synth_describe-formats",
		mcp.WithDescription("Describes the SysEx formats and the JSON patch document understood by this server."),
	)
	s.AddTool(docTool, docToolHandler)

	getPatchTool := mcp.NewTool("synth_get-patch",
		mcp.WithDescription("Retrieves a patch from the connected synthesizer as JSON."),
		mcp.WithString("bank", mcp.Required(), mcp.Description("The bank: 0-7 or I-A..E-D on a K4, 0-9 on a K2000.")),
		mcp.WithNumber("number", mcp.Required(), mcp.Description("The patch number within the bank (K4 0-15, K2000 0-99).")),
	)
	s.AddTool(getPatchTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		log.Println("[mcp] Handling get patch request.")

		bank, number, err := locationArgs(a, request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		doc, err := a.fetch(ctx, bank, number)
		if err != nil {
			return nil, fmt.Errorf("failed to read patch: %v", err)
		}

		asJson, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal patch to JSON: %v", err)
		}

		return mcp.NewToolResultText(string(asJson)), nil
	})

	sendPatchTool := mcp.NewTool("synth_send-patch",
		mcp.WithDescription("Sends a JSON patch to the connected synthesizer."),
		mcp.WithString("patch-json", mcp.Required(), mcp.Description("The patch document, as returned by synth_get-patch.")),
		mcp.WithBoolean("working-memory", mcp.Description("Send to the edit buffer instead of the bank and number in the patch.")),
	)
	s.AddTool(sendPatchTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		log.Println("[mcp] Handling send patch request.")

		patchJson, err := request.RequireString("patch-json")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		toWorkingMemory := request.GetBool("working-memory", false)

		m, err := a.importPatch([]byte(patchJson))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := a.send(m, toWorkingMemory); err != nil {
			return nil, fmt.Errorf("failed to send patch: %v", err)
		}

		return mcp.NewToolResultText("Patch sent successfully."), nil
	})

	decodeTool := mcp.NewTool("synth_decode-sysex",
		mcp.WithDescription("Decodes SysEx bytes given as hex into JSON patches. Works without a device; K2000 studio and FX preset objects must be part of the same input."),
		mcp.WithString("hex", mcp.Required(), mcp.Description("The SysEx bytes in hex, spaces allowed.")),
	)
	s.AddTool(decodeTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		log.Println("[mcp] Handling decode request.")

		text, err := request.RequireString("hex")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		data, err := sysex.ParseHex(text)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		msgs := sysex.Split(data)
		if len(msgs) == 0 {
			return mcp.NewToolResultError("no complete SysEx message in input"), nil
		}

		asJson, err := json.MarshalIndent(decodeStream(a.cfg, msgs), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal patches to JSON: %v", err)
		}
		return mcp.NewToolResultText(string(asJson)), nil
	})

	encodeTool := mcp.NewTool("synth_encode-patch",
		mcp.WithDescription("Encodes a JSON patch as SysEx hex suitable for a .syx file."),
		mcp.WithString("patch-json", mcp.Required(), mcp.Description("The patch document; its family field selects the format.")),
	)
	s.AddTool(encodeTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		log.Println("[mcp] Handling encode request.")

		patchJson, err := request.RequireString("patch-json")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		c, m, err := a.importFor([]byte(patchJson))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		msg, err := c.Emit(m, false, true)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(sysex.Hex(msg)), nil
	})

	addressTool := mcp.NewTool("synth_address",
		mcp.WithDescription("Shows how a bank and number are addressed on the wire."),
		mcp.WithString("bank", mcp.Required(), mcp.Description("The bank.")),
		mcp.WithNumber("number", mcp.Required(), mcp.Description("The patch number within the bank.")),
	)
	s.AddTool(addressTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		log.Println("[mcp] Handling address request.")

		bank, number, err := locationArgs(a, request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		text, err := describeAddress(a.cfg.Family, bank, number)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(text), nil
	})

	selectTool := mcp.NewTool("synth_select-patch",
		mcp.WithDescription("Switches the connected synthesizer to a patch."),
		mcp.WithString("bank", mcp.Required(), mcp.Description("The bank.")),
		mcp.WithNumber("number", mcp.Required(), mcp.Description("The patch number within the bank.")),
	)
	s.AddTool(selectTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		log.Println("[mcp] Handling select request.")

		bank, number, err := locationArgs(a, request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := a.selectPatch(bank, number); err != nil {
			return nil, fmt.Errorf("failed to select patch: %v", err)
		}
		return mcp.NewToolResultText("Patch selected."), nil
	})

	playTool := mcp.NewTool("synth_play-notes",
		mcp.WithDescription("Plays a short note sequence to audition the current patch."),
		mcp.WithString("notes", mcp.Description(`Notes such as "C4 E4 G4"; "r" is a rest.`)),
	)
	s.AddTool(playTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := a.play(request.GetString("notes", "")); err != nil {
			return nil, fmt.Errorf("failed to play notes: %v", err)
		}
		return mcp.NewToolResultText("Notes played successfully."), nil
	})

	log.Println("Starting Synth MCP server...")

	if err := server.ServeStdio(s); err != nil {
		fmt.Printf("Server error: %v\n", err)
	}

}

func docToolHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	log.Println("[mcp] Handling formats documentation request.")

	return mcp.NewToolResultText(formatsDoc), nil
}

func locationArgs(a *app, request mcp.CallToolRequest) (int, int, error) {
	bank, err := request.RequireString("bank")
	if err != nil {
		return 0, 0, err
	}
	number, err := request.RequireInt("number")
	if err != nil {
		return 0, 0, err
	}
	return parseLocation(a.cfg.Family, bank, number)
}

// describeAddress reports the wire address of a location as JSON.
func describeAddress(family string, bank, number int) (string, error) {
	var out map[string]any
	switch family {
	case config.FamilyK2000:
		if err := k2000.ValidLocation(bank, number); err != nil {
			return "", err
		}
		id := k2000.ObjectID(bank, number)
		b, n := k2000.Location(id)
		out = map[string]any{"family": family, "bank": b, "number": n, "object_id": id}
	default:
		if err := k4.ValidLocation(bank, number); err != nil {
			return "", err
		}
		addr := k4.AddressOf(bank, number)
		b, n := k4.LocationOf(addr)
		out = map[string]any{
			"family":    family,
			"bank":      b,
			"bank_name": k4.BankName(b),
			"number":    n,
			"address":   fmt.Sprintf("0x%02X", addr),
		}
	}
	asJson, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(asJson), nil
}
