// Copyright © 2016 Sidharth Kshatriya
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package engine is the DAP<->GDB/MI mediator itself: it wires the leaf
// internal/ packages (mi, dapframe, assertio, execstate, recovery,
// varref, breakreg) into one adapter Session and implements the DAP
// request surface — a process-lifecycle layer, a sendGdbCommand-style
// logging wrapper, panicIf/fatalIf for programmer errors, and a
// Verbose* family gated on a package-level flag.
package engine

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/fatih/color"
)

// VerboseFlag gates the Verbose*/sendGdbCommand narration this package
// writes to stderr.
var VerboseFlag bool

// ShowGdbNotifications, when set, dumps every raw line of GDB output to
// stderr before the MI pipeline consumes it. Useful when diagnosing
// rv32sim remote-stub quirks around stop/async notification timing.
var ShowGdbNotifications bool

func logGdbSend(command string) {
	if VerboseFlag {
		color.New(color.FgGreen).Fprintf(os.Stderr, "adapter -> gdb: %v\n", command)
	}
}

func logGdbReply(results map[string]interface{}, err error) {
	if !VerboseFlag {
		return
	}
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "gdb -> adapter: error: %v\n", err)
		return
	}
	text := fmt.Sprintf("%v", results)
	continued := ""
	if len(text) > 300 {
		continued = "..."
	}
	color.New(color.FgCyan).Fprintf(os.Stderr, "gdb -> adapter: %.300v%v\n", text, continued)
}

// CheckGdbExecutable resolves gdb on PATH and checks its --version
// banner against a minimum semver constraint, generalized to a
// caller-supplied constraint so the same helper also preflights
// rv32sim (CheckSimExecutable below).
func CheckGdbExecutable(gdbPath string, minVersion string) (string, error) {
	return checkVersionedExecutable(gdbPath, minVersion, "gdb")
}

// CheckSimExecutable preflights the rv32sim binary the same way. rv32sim
// is an opaque child process, so only its --version banner is consulted,
// never its protocol internals.
func CheckSimExecutable(simPath string, minVersion string) (string, error) {
	return checkVersionedExecutable(simPath, minVersion, "rv32sim")
}

func checkVersionedExecutable(execPath, minVersion, label string) (string, error) {
	resolved, err := exec.LookPath(execPath)
	if err != nil {
		return "", fmt.Errorf("could not find %s: %w", label, err)
	}

	out, err := exec.Command(resolved, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("could not run %s --version: %w", label, err)
	}

	firstLine := strings.Split(string(out), "\n")[0]
	fields := strings.Fields(firstLine)
	if len(fields) == 0 {
		return "", fmt.Errorf("%s --version produced no output", label)
	}
	versionString := fields[len(fields)-1]

	ver, err := semver.NewVersion(versionString)
	if err != nil {
		return "", fmt.Errorf("%s: could not parse version %q: %w", label, versionString, err)
	}

	constraint, err := semver.NewConstraint(minVersion)
	if err != nil {
		return "", fmt.Errorf("bad version constraint %q: %w", minVersion, err)
	}

	if !constraint.Check(ver) {
		return "", fmt.Errorf("%s: need %s, found %s", label, minVersion, versionString)
	}

	return resolved, nil
}

// Verboseln prints to stderr when VerboseFlag is set.
func Verboseln(a ...interface{}) {
	if VerboseFlag {
		fmt.Fprintln(os.Stderr, a...)
	}
}

func Verbosef(format string, a ...interface{}) {
	if VerboseFlag {
		fmt.Fprintf(os.Stderr, format, a...)
	}
}

// panicIf/panicWith/fatalIf are for programmer-error invariants
// (malformed internal state the adapter itself produced). Recoverable
// protocol errors — malformed DAP/MI input, GDB error replies,
// deadlines — use ordinary Go errors and the typed error kinds in
// internal/mi instead; they never reach these.
func panicIf(err error) {
	if err != nil {
		panic(fmt.Sprintf("adapter: panic: %v\n%s\n", err, debug.Stack()))
	}
}

func panicWith(errStr string) {
	if errStr != "" {
		panic(fmt.Sprintf("adapter: panic: %v\n%s\n", errStr, debug.Stack()))
	}
}

func fatalIf(err error) {
	if err != nil {
		_, file, line, ok := runtime.Caller(1)
		if !ok {
			log.Panic(err)
		}
		log.Fatalf("%v:%v: %v\n", path.Base(file), line, err)
	}
}
