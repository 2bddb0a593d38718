package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/go-dap"
)

// SetBreakpoints implements the delete-then-insert contract: every
// previously-owned id for this source path is deleted before the new
// set is inserted, and `verified` reflects whether GDB actually
// returned a numeric id.
func (s *Session) SetBreakpoints(ctx context.Context, req *dap.SetBreakpointsRequest) *dap.SetBreakpointsResponse {
	resp := &dap.SetBreakpointsResponse{Response: newResponse(req.Seq, req.Command)}
	path := req.Arguments.Source.Path

	for _, id := range s.bps.OwnedForSource(path) {
		_, _ = s.sendMi(ctx, fmt.Sprintf("-break-delete %d", id))
	}

	var ids []int
	results := make([]dap.Breakpoint, 0, len(req.Arguments.Breakpoints))
	for _, bp := range req.Arguments.Breakpoints {
		args := fmt.Sprintf(`-f "%s:%d"`, path, bp.Line)
		if bp.Condition != "" {
			args = fmt.Sprintf(`-c "%s" %s`, escapeMi(bp.Condition), args)
		}
		reply, err := s.sendMi(ctx, "-break-insert "+args)
		if err != nil {
			results = append(results, dap.Breakpoint{Verified: false, Message: err.Error(), Line: bp.Line, Source: &req.Arguments.Source})
			continue
		}
		id, ok := bkptNumber(reply)
		if !ok {
			results = append(results, dap.Breakpoint{Verified: false, Message: "gdb did not return a breakpoint id", Line: bp.Line, Source: &req.Arguments.Source})
			continue
		}
		ids = append(ids, id)
		results = append(results, dap.Breakpoint{Id: id, Verified: true, Line: bp.Line, Source: &req.Arguments.Source})
	}

	s.bps.SetSource(path, ids)
	resp.Body.Breakpoints = results
	return resp
}

// SetInstructionBreakpoints uses hardware breakpoints. When the launch
// config advertises a hardware breakpoint limit, extras beyond it are
// marked unverified with a descriptive message rather than silently
// dropped.
func (s *Session) SetInstructionBreakpoints(ctx context.Context, req *dap.SetInstructionBreakpointsRequest) *dap.SetInstructionBreakpointsResponse {
	resp := &dap.SetInstructionBreakpointsResponse{Response: newResponse(req.Seq, req.Command)}

	for _, id := range s.bps.ReplaceInstruction(nil) {
		_, _ = s.sendMi(ctx, fmt.Sprintf("-break-delete %d", id))
	}

	limit := s.cfg.ServerCapabilities.HwBreakpointLimit
	var ids []int
	results := make([]dap.Breakpoint, 0, len(req.Arguments.Breakpoints))
	for i, bp := range req.Arguments.Breakpoints {
		if limit > 0 && i >= limit {
			results = append(results, dap.Breakpoint{Verified: false, Message: verifiedMessage(limit)})
			continue
		}
		args := fmt.Sprintf(`-h -f *%s`, bp.InstructionReference)
		if bp.Condition != "" {
			args = fmt.Sprintf(`-h -c "%s" -f *%s`, escapeMi(bp.Condition), bp.InstructionReference)
		}
		reply, err := s.sendMi(ctx, "-break-insert "+args)
		if err != nil {
			results = append(results, dap.Breakpoint{Verified: false, Message: err.Error()})
			continue
		}
		id, ok := bkptNumber(reply)
		if !ok {
			results = append(results, dap.Breakpoint{Verified: false, Message: "gdb did not return a breakpoint id"})
			continue
		}
		ids = append(ids, id)
		results = append(results, dap.Breakpoint{Id: id, Verified: true})
	}

	s.bps.ReplaceInstruction(ids)
	resp.Body.Breakpoints = results
	return resp
}

// SetDataBreakpoints translates to -break-watch with the access-type
// flag implied by each DataBreakpoint's AccessType (-r, -a, or none for
// a plain write watchpoint).
func (s *Session) SetDataBreakpoints(ctx context.Context, req *dap.SetDataBreakpointsRequest) *dap.SetDataBreakpointsResponse {
	resp := &dap.SetDataBreakpointsResponse{Response: newResponse(req.Seq, req.Command)}

	for _, id := range s.bps.ReplaceWatch(nil) {
		_, _ = s.sendMi(ctx, fmt.Sprintf("-break-delete %d", id))
	}

	var ids []int
	results := make([]dap.Breakpoint, 0, len(req.Arguments.Breakpoints))
	for _, bp := range req.Arguments.Breakpoints {
		flag := watchAccessFlag(string(bp.AccessType))
		command := fmt.Sprintf("-break-watch %s%s", flag, bp.DataId)
		reply, err := s.sendMi(ctx, command)
		if err != nil {
			results = append(results, dap.Breakpoint{Verified: false, Message: err.Error()})
			continue
		}
		id, ok := watchpointNumber(reply)
		if !ok {
			results = append(results, dap.Breakpoint{Verified: false, Message: "gdb did not return a watchpoint id"})
			continue
		}
		ids = append(ids, id)
		results = append(results, dap.Breakpoint{Id: id, Verified: true})
	}

	s.bps.ReplaceWatch(ids)
	resp.Body.Breakpoints = results
	return resp
}

func watchAccessFlag(accessType string) string {
	switch accessType {
	case "read":
		return "-r "
	case "readWrite":
		return "-a "
	default:
		return ""
	}
}

// DataBreakpointInfo answers what expression a variablesReference/name
// pair resolves to for a subsequent setDataBreakpoints call. Watch
// support is advertised via the launch config's server capabilities.
func (s *Session) DataBreakpointInfo(req *dap.DataBreakpointInfoRequest) *dap.DataBreakpointInfoResponse {
	resp := &dap.DataBreakpointInfoResponse{Response: newResponse(req.Seq, req.Command)}
	if !s.cfg.ServerCapabilities.SupportsWatchpoints {
		resp.Body.Description = "data breakpoints are not supported by this target"
		return resp
	}
	resp.Body.DataId = req.Arguments.Name
	resp.Body.Description = req.Arguments.Name
	resp.Body.AccessTypes = []dap.DataBreakpointAccessType{"read", "write", "readWrite"}
	resp.Body.CanPersist = false
	return resp
}

func bkptNumber(results map[string]interface{}) (int, bool) {
	bkpt, ok := results["bkpt"].(map[string]interface{})
	if !ok {
		return 0, false
	}
	numStr, ok := bkpt["number"].(string)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(numStr)
	return n, err == nil
}

func watchpointNumber(results map[string]interface{}) (int, bool) {
	wpt, ok := results["wpt"].(map[string]interface{})
	if !ok {
		return 0, false
	}
	numStr, ok := wpt["number"].(string)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(numStr)
	return n, err == nil
}

// verifiedMessage is the descriptive text SetInstructionBreakpoints
// attaches to each breakpoint beyond the hardware breakpoint limit.
func verifiedMessage(limit int) string {
	return fmt.Sprintf("hardware breakpoint limit (%d) exceeded", limit)
}
