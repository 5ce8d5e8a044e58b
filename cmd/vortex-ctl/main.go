package main

import (
	"fmt"
	"os"
	"strings"

	cli "github.com/spf13/pflag"

	"vortex/internal/ipc"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: vortex-ctl [flags] <command>

Commands:
  trigger           simulate a wake phrase
  status            show pipeline stage and security state
  timeline          show recent events
  say <text>        speak text through the assistant
  reset-camera      clear a degraded camera after fixing the device
  shutdown          stop the daemon

Flags:
%s`, cli.CommandLine.FlagUsages())
}

func main() {
	socket := cli.StringP("socket", "s", "", "Control socket path")
	cli.Usage = usage
	cli.Parse()

	args := cli.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	req := ipc.Request{Verb: args[0]}
	switch args[0] {
	case ipc.VerbTrigger, ipc.VerbStatus, ipc.VerbTimeline, ipc.VerbResetCamera, ipc.VerbShutdown:
	case ipc.VerbSay:
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "say requires text")
			os.Exit(2)
		}
		req.Text = strings.Join(args[1:], " ")
	default:
		usage()
		os.Exit(2)
	}

	resp, err := ipc.Send(*socket, req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "vortexd not reachable:", err)
		os.Exit(1)
	}
	if !resp.OK {
		fmt.Fprintln(os.Stderr, "error:", resp.Error)
		os.Exit(1)
	}

	switch req.Verb {
	case ipc.VerbStatus:
		st := resp.Status
		fmt.Printf("stage:    %s\n", st.Stage)
		fmt.Printf("security: %s", st.Security.Level)
		if st.Security.Reason != "" {
			fmt.Printf(" (%s)", st.Security.Reason)
		}
		fmt.Println()
		fmt.Printf("camera:   blocked=%v\n", st.CameraBlocked)
		if st.SessionID != "" {
			fmt.Printf("session:  %s\n", st.SessionID)
		}
	case ipc.VerbTimeline:
		for _, e := range resp.Timeline {
			fmt.Printf("%s  %-8s  %s\n", e.At.Format("15:04:05"), e.Kind, e.Text)
		}
	default:
		fmt.Println("ok")
	}
}
