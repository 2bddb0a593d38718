package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/go-dap"

	"github.com/mikro-design/rv32sim-dap-adapter/internal/varref"
)

const runningPlaceholder = "<running>"

// Threads answers either the fixed default thread or, when the server
// capabilities advertise multi-thread support, the live -thread-info
// result.
func (s *Session) Threads(ctx context.Context, req *dap.ThreadsRequest) *dap.ThreadsResponse {
	resp := &dap.ThreadsResponse{Response: newResponse(req.Seq, req.Command)}

	if !s.cfg.ServerCapabilities.SupportsMultiThread || s.machine.MustAnswerFromCache() {
		resp.Body.Threads = []dap.Thread{{Id: 1, Name: "main"}}
		return resp
	}

	results, err := s.sendMi(ctx, "-thread-info")
	if err != nil {
		resp.Body.Threads = []dap.Thread{{Id: 1, Name: "main"}}
		return resp
	}
	threads := asTupleList(results["threads"])
	out := make([]dap.Thread, 0, len(threads))
	for _, th := range threads {
		id, _ := strconv.Atoi(str(th["id"]))
		name := str(th["target-id"])
		if name == "" {
			name = "main"
		}
		out = append(out, dap.Thread{Id: id, Name: name})
	}
	if len(out) == 0 {
		out = []dap.Thread{{Id: 1, Name: "main"}}
	}
	resp.Body.Threads = out
	return resp
}

// StackTrace short-circuits to the frame cache while Running/SyntheticStop,
// otherwise fetches fresh frames and refreshes the cache.
func (s *Session) StackTrace(ctx context.Context, req *dap.StackTraceRequest) *dap.StackTraceResponse {
	resp := &dap.StackTraceResponse{Response: newResponse(req.Seq, req.Command)}

	if s.machine.MustAnswerFromCache() {
		s.mu.Lock()
		frames := append([]dap.StackFrame(nil), s.frameCache...)
		s.mu.Unlock()
		resp.Body.StackFrames = frames
		resp.Body.TotalFrames = len(frames)
		return resp
	}

	results, err := s.sendMi(ctx, "-stack-list-frames")
	if err != nil {
		resp.Body.StackFrames = nil
		return resp
	}

	frames := make([]dap.StackFrame, 0)
	for _, item := range unwrapSingleton(results["stack"], "frame") {
		line, _ := strconv.Atoi(str(item["line"]))
		level, _ := strconv.Atoi(str(item["level"]))
		frames = append(frames, dap.StackFrame{
			Id:     level,
			Name:   str(item["func"]),
			Line:   line,
			Column: 1,
			Source: &dap.Source{Path: str(item["fullname"]), Name: str(item["file"])},
		})
	}

	s.mu.Lock()
	s.frameCache = frames
	s.mu.Unlock()

	resp.Body.StackFrames = frames
	resp.Body.TotalFrames = len(frames)
	return resp
}

// Scopes exposes Locals (scoped to the requested frame) and Registers as
// varref-table handles.
func (s *Session) Scopes(req *dap.ScopesRequest) *dap.ScopesResponse {
	resp := &dap.ScopesResponse{Response: newResponse(req.Seq, req.Command)}
	localsRef := s.vars.Alloc(varref.Descriptor{Kind: varref.Locals, FrameID: req.Arguments.FrameId})
	regsRef := s.vars.Alloc(varref.Descriptor{Kind: varref.Registers})
	resp.Body.Scopes = []dap.Scope{
		{Name: "Locals", VariablesReference: localsRef},
		{Name: "Registers", VariablesReference: regsRef},
	}
	return resp
}

// Variables resolves a varref handle. A stale handle resolves to the
// empty list rather than an error. Reads short-circuit to cache or the
// <running> placeholder while Running/SyntheticStop.
func (s *Session) Variables(ctx context.Context, req *dap.VariablesRequest) *dap.VariablesResponse {
	resp := &dap.VariablesResponse{Response: newResponse(req.Seq, req.Command)}
	resp.Body.Variables = []dap.Variable{}

	desc, ok := s.vars.Lookup(req.Arguments.VariablesReference)
	if !ok {
		return resp
	}

	if s.machine.MustAnswerFromCache() {
		switch desc.Kind {
		case varref.Registers:
			resp.Body.Variables = s.registersFromCache()
		default:
			resp.Body.Variables = []dap.Variable{{Name: "(state)", Value: runningPlaceholder}}
		}
		return resp
	}

	switch desc.Kind {
	case varref.Locals:
		resp.Body.Variables = s.fetchLocals(ctx, desc.FrameID)
	case varref.Registers:
		resp.Body.Variables = s.fetchRegisters(ctx)
	case varref.MemoryWindow:
		resp.Body.Variables = []dap.Variable{{Name: "memory", Value: fmt.Sprintf("%s+%d", desc.Address, desc.Length)}}
	}
	return resp
}

func (s *Session) fetchLocals(ctx context.Context, frameID int) []dap.Variable {
	if _, err := s.sendMi(ctx, fmt.Sprintf("-stack-select-frame %d", frameID)); err != nil {
		return []dap.Variable{}
	}
	results, err := s.sendMi(ctx, "-stack-list-variables --simple-values")
	if err != nil {
		return []dap.Variable{}
	}
	out := make([]dap.Variable, 0)
	for _, item := range asTupleList(results["variables"]) {
		out = append(out, dap.Variable{Name: str(item["name"]), Value: str(item["value"])})
	}
	return out
}

func (s *Session) fetchRegisters(ctx context.Context) []dap.Variable {
	names, err := s.sendMi(ctx, "-data-list-register-names")
	if err != nil {
		return []dap.Variable{}
	}
	values, err := s.sendMi(ctx, "-data-list-register-values x")
	if err != nil {
		return []dap.Variable{}
	}

	nameList := names["register-names"]
	nameArr, _ := nameList.([]interface{})

	pairs := make([]registerPair, 0, len(nameArr))
	out := make([]dap.Variable, 0, len(nameArr))
	for _, item := range asTupleList(values["register-values"]) {
		idx, _ := strconv.Atoi(str(item["number"]))
		name := ""
		if idx >= 0 && idx < len(nameArr) {
			name, _ = nameArr[idx].(string)
		}
		if name == "" {
			continue
		}
		val := str(item["value"])
		pairs = append(pairs, registerPair{Name: name, Value: val})
		out = append(out, dap.Variable{Name: name, Value: val})
	}

	s.mu.Lock()
	s.regCache = pairs
	s.mu.Unlock()

	return out
}

func (s *Session) registersFromCache() []dap.Variable {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]dap.Variable, 0, len(s.regCache))
	for _, p := range s.regCache {
		out = append(out, dap.Variable{Name: p.Name, Value: p.Value})
	}
	return out
}

// ReadMemory short-circuits to an empty/unreadable result while running
// and otherwise issues -data-read-memory-bytes.
func (s *Session) ReadMemory(ctx context.Context, req *dap.ReadMemoryRequest) *dap.ReadMemoryResponse {
	resp := &dap.ReadMemoryResponse{Response: newResponse(req.Seq, req.Command)}
	resp.Body.Address = req.Arguments.MemoryReference

	if s.machine.MustAnswerFromCache() {
		resp.Body.UnreadableBytes = req.Arguments.Count
		return resp
	}

	count := req.Arguments.Count
	if req.Arguments.Offset != 0 {
		count += req.Arguments.Offset
	}
	results, err := s.sendMi(ctx, fmt.Sprintf("-data-read-memory-bytes %s %d", req.Arguments.MemoryReference, count))
	if err != nil {
		resp.Body.UnreadableBytes = req.Arguments.Count
		return resp
	}

	chunks := asTupleList(results["memory"])
	if len(chunks) == 0 {
		resp.Body.UnreadableBytes = req.Arguments.Count
		return resp
	}
	hexContents := str(chunks[0]["contents"])
	resp.Body.Data = hexToBase64ish(hexContents)
	return resp
}

// Disassemble short-circuits while running and otherwise issues
// -data-disassemble.
func (s *Session) Disassemble(ctx context.Context, req *dap.DisassembleRequest) *dap.DisassembleResponse {
	resp := &dap.DisassembleResponse{Response: newResponse(req.Seq, req.Command)}

	if s.machine.MustAnswerFromCache() {
		resp.Body.Instructions = []dap.DisassembledInstruction{}
		return resp
	}

	count := req.Arguments.InstructionCount
	command := fmt.Sprintf(`-data-disassemble -s %s -e "%s + %d" -- 0`, req.Arguments.MemoryReference, req.Arguments.MemoryReference, count*4)
	results, err := s.sendMi(ctx, command)
	if err != nil {
		resp.Body.Instructions = []dap.DisassembledInstruction{}
		return resp
	}

	insns := make([]dap.DisassembledInstruction, 0)
	for _, item := range asTupleList(results["asm_insns"]) {
		insns = append(insns, dap.DisassembledInstruction{
			Address:          str(item["address"]),
			Instruction:      str(item["inst"]),
			InstructionBytes: str(item["opcodes"]),
		})
	}
	resp.Body.Instructions = insns
	return resp
}

// Evaluate recognizes raw MI passthrough (leading "-") and "monitor "
// passthrough in repl context; everything else forwards to
// -data-evaluate-expression, short-circuiting to the placeholder while
// running.
func (s *Session) Evaluate(ctx context.Context, req *dap.EvaluateRequest) *dap.EvaluateResponse {
	resp := &dap.EvaluateResponse{Response: newResponse(req.Seq, req.Command)}
	expr := strings.TrimSpace(req.Arguments.Expression)

	if req.Arguments.Context == "repl" {
		switch {
		case strings.HasPrefix(expr, "-"):
			results, err := s.sendMi(ctx, expr)
			resp.Body.Result = formatReplResult(results, err)
			return resp
		case strings.HasPrefix(expr, "monitor "):
			results, err := s.sendMi(ctx, `-interpreter-exec console "`+escapeMi(expr)+`"`)
			resp.Body.Result = formatReplResult(results, err)
			return resp
		}
	}

	if s.machine.MustAnswerFromCache() {
		resp.Body.Result = runningPlaceholder
		return resp
	}

	results, err := s.sendMi(ctx, fmt.Sprintf(`-data-evaluate-expression "%s"`, escapeMi(expr)))
	if err != nil {
		resp.Body.Result = err.Error()
		return resp
	}
	resp.Body.Result = str(results["value"])
	return resp
}

func formatReplResult(results map[string]interface{}, err error) string {
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("%v", results)
}

// --- MI result shape helpers ---

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

// asTupleList converts a []interface{} whose items are already
// map[string]interface{} tuples (e.g. variables=[{name=...,value=...}]).
func asTupleList(v interface{}) []map[string]interface{} {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(arr))
	for _, item := range arr {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

// unwrapSingleton converts a []interface{} whose items are singleton
// tuples keyed by key (e.g. stack=[frame={...},frame={...}], an MI
// grammar quirk) into the inner tuples.
func unwrapSingleton(v interface{}, key string) []map[string]interface{} {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(arr))
	for _, item := range arr {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if inner, ok := m[key].(map[string]interface{}); ok {
			out = append(out, inner)
		}
	}
	return out
}

// hexToBase64ish keeps the wire-level detail simple: DAP's readMemory
// data field is base64, but rv32sim's MI stub returns raw hex digit
// pairs for -data-read-memory-bytes; re-encode hex -> bytes -> base64.
func hexToBase64ish(hexDigits string) string {
	hexDigits = strings.TrimSpace(hexDigits)
	if len(hexDigits)%2 != 0 {
		return ""
	}
	raw := make([]byte, 0, len(hexDigits)/2)
	for i := 0; i < len(hexDigits); i += 2 {
		var b byte
		_, err := fmt.Sscanf(hexDigits[i:i+2], "%02x", &b)
		if err != nil {
			return ""
		}
		raw = append(raw, b)
	}
	return base64.StdEncoding.EncodeToString(raw)
}
