package engine

import (
	"context"
	"encoding/json"

	"github.com/google/go-dap"

	"github.com/mikro-design/rv32sim-dap-adapter/internal/execstate"
)

func unmarshalArguments(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// HandleRequest dispatches one DAP request to completion before returning.
// The caller's read loop is expected to call this once per incoming
// message and only then read the next one, so two requests are never in
// flight against GDB at the same time.
func (s *Session) HandleRequest(ctx context.Context, req dap.Message) {
	switch r := req.(type) {

	case *dap.InitializeRequest:
		s.sendDAP(s.initialize(r))
		s.sendEvent("initialized", struct{}{})

	case *dap.LaunchRequest:
		s.handleLaunch(ctx, r)

	case *dap.ConfigurationDoneRequest:
		resp := &dap.ConfigurationDoneResponse{Response: newResponse(r.Seq, r.Command)}
		s.sendDAP(resp)

	case *dap.SetBreakpointsRequest:
		s.sendDAP(s.SetBreakpoints(ctx, r))

	case *dap.SetExceptionBreakpointsRequest:
		resp := &dap.SetExceptionBreakpointsResponse{Response: newResponse(r.Seq, r.Command)}
		resp.Body.Breakpoints = []dap.Breakpoint{}
		s.sendDAP(resp)

	case *dap.SetInstructionBreakpointsRequest:
		s.sendDAP(s.SetInstructionBreakpoints(ctx, r))

	case *dap.SetDataBreakpointsRequest:
		s.sendDAP(s.SetDataBreakpoints(ctx, r))

	case *dap.DataBreakpointInfoRequest:
		s.sendDAP(s.DataBreakpointInfo(r))

	case *dap.DisassembleRequest:
		s.sendDAP(s.Disassemble(ctx, r))

	case *dap.ThreadsRequest:
		s.sendDAP(s.Threads(ctx, r))

	case *dap.StackTraceRequest:
		s.sendDAP(s.StackTrace(ctx, r))

	case *dap.ScopesRequest:
		s.sendDAP(s.Scopes(r))

	case *dap.VariablesRequest:
		s.sendDAP(s.Variables(ctx, r))

	case *dap.ReadMemoryRequest:
		s.sendDAP(s.ReadMemory(ctx, r))

	case *dap.ContinueRequest:
		resp := &dap.ContinueResponse{Response: newResponse(r.Seq, r.Command)}
		if err := s.Continue(ctx); err != nil {
			s.sendErrorResponse(r.Seq, r.Command, err.Error())
			return
		}
		s.sendDAP(resp)

	case *dap.PauseRequest:
		resp := &dap.PauseResponse{Response: newResponse(r.Seq, r.Command)}
		if err := s.Pause(ctx); err != nil {
			s.sendErrorResponse(r.Seq, r.Command, err.Error())
			return
		}
		s.sendDAP(resp)

	case *dap.NextRequest:
		resp := &dap.NextResponse{Response: newResponse(r.Seq, r.Command)}
		if err := s.Next(ctx); err != nil {
			s.sendErrorResponse(r.Seq, r.Command, err.Error())
			return
		}
		s.sendDAP(resp)

	case *dap.StepInRequest:
		resp := &dap.StepInResponse{Response: newResponse(r.Seq, r.Command)}
		if err := s.StepIn(ctx); err != nil {
			s.sendErrorResponse(r.Seq, r.Command, err.Error())
			return
		}
		s.sendDAP(resp)

	case *dap.StepOutRequest:
		resp := &dap.StepOutResponse{Response: newResponse(r.Seq, r.Command)}
		if err := s.StepOut(ctx); err != nil {
			s.sendErrorResponse(r.Seq, r.Command, err.Error())
			return
		}
		s.sendDAP(resp)

	case *dap.EvaluateRequest:
		s.sendDAP(s.Evaluate(ctx, r))

	case *dap.DisconnectRequest:
		s.handleDisconnect(ctx, r)

	case *dap.TerminateRequest:
		s.handleTerminate(ctx, r)

	default:
		s.handleVendorExtension(ctx, req)
	}
}

// handleLaunch clears the variable-reference table, then runs
// Spawn/Handshake/RunEntryProtocol in sequence. A Spawn or Handshake
// failure is answered with a launch error response; an entry-protocol
// error comes after the launch response and is reported as a stderr
// output event.
func (s *Session) handleLaunch(ctx context.Context, r *dap.LaunchRequest) {
	var cfg LaunchConfig
	if err := unmarshalArguments(r.Arguments, &cfg); err != nil {
		s.sendErrorResponse(r.Seq, r.Command, "invalid launch arguments: "+err.Error())
		return
	}

	s.vars.Reset()

	if err := s.Spawn(cfg); err != nil {
		s.sendErrorResponse(r.Seq, r.Command, err.Error())
		return
	}

	if err := s.Handshake(ctx); err != nil {
		s.sendErrorResponse(r.Seq, r.Command, err.Error())
		return
	}

	resp := &dap.LaunchResponse{Response: newResponse(r.Seq, r.Command)}
	s.sendDAP(resp)

	if err := s.RunEntryProtocol(ctx); err != nil {
		s.output("stderr", "entry protocol: "+err.Error()+"\n")
	}
}

func (s *Session) handleDisconnect(ctx context.Context, r *dap.DisconnectRequest) {
	resp := &dap.DisconnectResponse{Response: newResponse(r.Seq, r.Command)}
	s.Shutdown(ctx)
	s.sendDAP(resp)
}

func (s *Session) handleTerminate(ctx context.Context, r *dap.TerminateRequest) {
	resp := &dap.TerminateResponse{Response: newResponse(r.Seq, r.Command)}
	s.Shutdown(ctx)
	s.sendDAP(resp)
}

// handleVendorExtension answers the `mikro.getRegisters` custom request
// and otherwise reports an unrecognized-command error rather than
// silently dropping it.
func (s *Session) handleVendorExtension(ctx context.Context, req dap.Message) {
	rm, ok := req.(dap.RequestMessage)
	if !ok {
		return
	}
	r := rm.GetRequest()
	switch r.Command {
	case "mikro.getRegisters":
		vars := s.fetchRegistersForVendorRequest(ctx)
		current := s.machine.Current()
		s.sendDAP(&getRegistersResponse{
			Response: newResponse(r.Seq, r.Command),
			Body: getRegistersBody{
				Running:       current == execstate.Running,
				SyntheticStop: current == execstate.SyntheticStop,
				Count:         len(vars),
				Registers:     vars,
			},
		})
	default:
		s.sendErrorResponse(r.Seq, r.Command, "unrecognized request: "+r.Command)
	}
}

func (s *Session) fetchRegistersForVendorRequest(ctx context.Context) []dap.Variable {
	if s.machine.MustAnswerFromCache() {
		return s.registersFromCache()
	}
	return s.fetchRegisters(ctx)
}

// getRegistersResponse is the wire shape of the `mikro.getRegisters`
// vendor extension: a plain dap.Response with a custom body, since
// go-dap has no built-in type for it.
type getRegistersResponse struct {
	dap.Response
	Body getRegistersBody `json:"body"`
}

type getRegistersBody struct {
	Running       bool           `json:"running"`
	SyntheticStop bool           `json:"syntheticStop"`
	Count         int            `json:"count"`
	Registers     []dap.Variable `json:"registers"`
}
