package main

import (
	"context"
	"encoding/json"

	"github.com/devtab-sh/secure-dev-manager/internal/dispatch"
	"github.com/devtab-sh/secure-dev-manager/internal/inspect"
)

// requestLine is the stdio transport's envelope: an operation name (or its
// documented alias) and an operation-specific JSON payload.
type requestLine struct {
	Operation string          `json:"operation"`
	Payload   json.RawMessage `json:"payload"`
}

func handleRequestLine(ctx context.Context, d *dispatch.Dispatcher, line []byte) dispatch.Envelope {
	var req requestLine
	if err := json.Unmarshal(line, &req); err != nil {
		return badRequestEnvelope("malformed request line: " + err.Error())
	}

	switch req.Operation {
	case "find_process", "ps":
		var p struct {
			Name            string `json:"name"`
			Mode            string `json:"mode"`
			IncludeArgs     bool   `json:"include_args"`
			ShowFullCmdline bool   `json:"show_full_cmdline"`
		}
		if err := decodeOrDefault(req.Payload, &p); err != nil {
			return badRequestEnvelope(err.Error())
		}
		mode := inspect.Smart
		if p.Mode != "" {
			mode = inspect.Tier(p.Mode)
		}
		return d.FindProcess(dispatch.FindProcessRequest{
			Name:            p.Name,
			Mode:            mode,
			IncludeArgs:     p.IncludeArgs,
			ShowFullCmdline: p.ShowFullCmdline,
		})

	case "kill_process", "kill":
		var p struct {
			PID      int32 `json:"pid"`
			Force    bool  `json:"force"`
			Override bool  `json:"override"`
			DryRun   bool  `json:"dry_run"`
		}
		if err := decodeOrDefault(req.Payload, &p); err != nil {
			return badRequestEnvelope(err.Error())
		}
		return d.KillProcess(dispatch.KillProcessRequest{
			PID:      p.PID,
			Force:    p.Force,
			Override: p.Override,
			DryRun:   p.DryRun,
		})

	case "kill_process_tree", "killall":
		var p struct {
			PID    int32 `json:"pid"`
			Force  bool  `json:"force"`
			DryRun bool  `json:"dry_run"`
		}
		if err := decodeOrDefault(req.Payload, &p); err != nil {
			return badRequestEnvelope(err.Error())
		}
		return d.KillProcessTree(dispatch.KillProcessTreeRequest{PID: p.PID, Force: p.Force, DryRun: p.DryRun})

	case "check_ports", "netstat":
		var p struct {
			Port *int `json:"port"`
		}
		if err := decodeOrDefault(req.Payload, &p); err != nil {
			return badRequestEnvelope(err.Error())
		}
		return d.CheckPorts(ctx, p.Port)

	case "dev_status", "status":
		return d.DevStatus(ctx)

	case "server_status":
		return d.ServerStatus(ctx)

	case "find_process_by_port":
		var p struct {
			Port int `json:"port"`
		}
		if err := decodeOrDefault(req.Payload, &p); err != nil {
			return badRequestEnvelope(err.Error())
		}
		return d.FindProcessByPort(ctx, p.Port)

	case "cleanup_user_processes":
		var p struct {
			Confirm bool `json:"confirm"`
		}
		if err := decodeOrDefault(req.Payload, &p); err != nil {
			return badRequestEnvelope(err.Error())
		}
		return d.CleanupUserProcesses(p.Confirm)

	case "execute_command":
		var p struct {
			Command    string `json:"command"`
			Cwd        string `json:"cwd"`
			Background bool   `json:"background"`
		}
		if err := decodeOrDefault(req.Payload, &p); err != nil {
			return badRequestEnvelope(err.Error())
		}
		return d.ExecuteCommand(ctx, dispatch.ExecuteCommandRequest{Command: p.Command, WorkDir: p.Cwd, Background: p.Background})

	default:
		return badRequestEnvelope("unknown operation: " + req.Operation)
	}
}

func decodeOrDefault(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func badRequestEnvelope(message string) dispatch.Envelope {
	return dispatch.Envelope{
		Success: false,
		Error: &dispatch.ErrorBody{
			Error:         "InvalidArgument",
			Suggestion:    "send a well-formed {operation, payload} request line",
			DeveloperHint: message,
		},
	}
}
