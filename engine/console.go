package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os/user"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
)

const consoleHelpText = `
-<mi command>      send a raw GDB/MI command and print the result
#<expression>      evaluate an expression via -data-evaluate-expression
a <response>       answer the pending MMIO assert prompt
v                   toggle verbose adapter<->gdb narration
n                   toggle raw gdb notification echo
q                   quit the console
h                   this help text
`

// RunConsole is a developer console: a side channel for poking the live
// session with raw MI commands or assert responses while a real IDE is
// (or isn't) attached over the DAP stdio stream.
func (s *Session) RunConsole(ctx context.Context) {
	historyFile := ""
	if u, err := user.Current(); err == nil {
		historyFile = u.HomeDir + "/.rv32sim-dap-adapter.history"
	}

	rdline, err := readline.NewEx(&readline.Config{
		Prompt:      "(rv32sim-dap) ",
		HistoryFile: historyFile,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer rdline.Close()

	color.Yellow("h <enter> for help")
	for {
		line, err := rdline.Readline()
		if err == io.EOF || err == readline.ErrInterrupt {
			color.Yellow("Exiting console.")
			return
		} else if err != nil {
			log.Fatal(err)
		}

		switch {
		case strings.HasPrefix(line, "-"):
			command := strings.TrimSpace(line)
			result, err := s.sendMi(ctx, command)
			printConsoleResult(result, err)

		case strings.HasPrefix(line, "#"):
			expr := strings.TrimSpace(line[1:])
			result, err := s.sendMi(ctx, `-data-evaluate-expression "`+escapeMi(expr)+`"`)
			printConsoleResult(result, err)

		case strings.HasPrefix(line, "a "):
			if err := s.RespondAssert(strings.TrimPrefix(line, "a ")); err != nil {
				color.Red("assert respond: %v", err)
			}

		case line == "v":
			VerboseFlag = !VerboseFlag
			toggleColor("Verbose mode", "Quiet mode", VerboseFlag)

		case line == "n":
			ShowGdbNotifications = !ShowGdbNotifications
			toggleColor("Will show gdb notifications", "Wont show gdb notifications", ShowGdbNotifications)

		case line == "q":
			color.Yellow("Exiting console.")
			return

		case line == "h", line == "":
			if line == "h" {
				color.Cyan(consoleHelpText)
			}

		default:
			color.Red("unrecognized console command, h for help")
		}
	}
}

func printConsoleResult(result map[string]interface{}, err error) {
	if err != nil {
		color.Red("error: %v", err)
		return
	}
	out, marshalErr := json.MarshalIndent(result, "", "  ")
	if marshalErr != nil {
		color.Red("error formatting result: %v", marshalErr)
		return
	}
	fmt.Println(string(out))
}

func toggleColor(onMsg, offMsg string, on bool) {
	if on {
		color.Red(onMsg)
	} else {
		color.Green(offMsg)
	}
}
