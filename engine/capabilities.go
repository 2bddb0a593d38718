package engine

import "github.com/google/go-dap"

// initialize answers the `initialize` handshake with the capability set
// this adapter actually implements. Capabilities that depend on the
// target's _serverCapabilities (hardware breakpoint count, watchpoints)
// aren't known yet at this point in the handshake — they're resolved
// later in Spawn/Handshake — so this only advertises what the protocol
// surface itself supports regardless of target. The caller is
// responsible for sending this response before firing the `initialized`
// event.
func (s *Session) initialize(req *dap.InitializeRequest) *dap.InitializeResponse {
	resp := &dap.InitializeResponse{Response: newResponse(req.Seq, req.Command)}
	resp.Body.SupportsConfigurationDoneRequest = true
	resp.Body.SupportsFunctionBreakpoints = false
	resp.Body.SupportsConditionalBreakpoints = true
	resp.Body.SupportsHitConditionalBreakpoints = false
	resp.Body.SupportsEvaluateForHovers = true
	resp.Body.SupportsStepBack = false
	resp.Body.SupportsSetVariable = false
	resp.Body.SupportsRestartFrame = false
	resp.Body.SupportsGotoTargetsRequest = false
	resp.Body.SupportsStepInTargetsRequest = false
	resp.Body.SupportsCompletionsRequest = false
	resp.Body.SupportsModulesRequest = false
	resp.Body.SupportsRestartRequest = false
	resp.Body.SupportsExceptionOptions = false
	resp.Body.SupportsValueFormattingOptions = false
	resp.Body.SupportsExceptionInfoRequest = false
	resp.Body.SupportTerminateDebuggee = true
	resp.Body.SupportsDelayedStackTraceLoading = false
	resp.Body.SupportsLoadedSourcesRequest = false
	resp.Body.SupportsDataBreakpoints = true
	resp.Body.SupportsReadMemoryRequest = true
	resp.Body.SupportsDisassembleRequest = true
	resp.Body.SupportsInstructionBreakpoints = true
	resp.Body.SupportsSteppingGranularity = false
	resp.Body.ExceptionBreakpointFilters = []dap.ExceptionBreakpointsFilter{}

	return resp
}
