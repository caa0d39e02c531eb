package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/matheus3301/offsync/internal/client"
	"github.com/matheus3301/offsync/internal/session"
)

func main() {
	userFlag := flag.String("user", "", "user id (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	timeoutFlag := flag.Duration("timeout", 30*time.Second, "request timeout")
	flag.Parse()

	userID := session.Resolve(*userFlag)
	if err := session.ValidateName(userID); err != nil {
		fatalf("%v", err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c, err := client.New(session.SocketPath(userID))
	if err != nil {
		fatalf("cannot connect to daemon for user %q: %v", userID, err)
	}
	defer func() { _ = c.Close() }()

	if args[0] == "watch" {
		cmdWatch(c, *jsonFlag)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	switch args[0] {
	case "add":
		cmdAdd(ctx, c, args[1:])
	case "remove":
		if len(args) != 2 {
			fatalf("usage: offsyncctl remove <entry-id>")
		}
		check(c.Remove(ctx, args[1]))
		fmt.Printf("Removed %s\n", args[1])
	case "sync":
		cmdSync(ctx, c, *jsonFlag)
	case "status":
		cmdStatus(ctx, c, *jsonFlag, false)
	case "pending":
		cmdStatus(ctx, c, *jsonFlag, true)
	case "clear":
		check(c.Clear(ctx))
		fmt.Println("Queue cleared")
	case "online", "offline":
		check(c.SetOnline(ctx, args[0] == "online"))
		fmt.Printf("Connectivity pinned %s\n", args[0])
	case "auto":
		res, err := c.Probe(ctx)
		check(err)
		fmt.Printf("Connectivity: %s\n", res.Connectivity)
	case "history":
		cmdHistory(ctx, c, args[1:], *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: offsyncctl [--user <id>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  add <type> [json|-]   Queue a record (journal, chat, clarity, safety_plan)")
	fmt.Fprintln(os.Stderr, "  remove <entry-id>     Drop a queued entry")
	fmt.Fprintln(os.Stderr, "  sync                  Run a sync pass now")
	fmt.Fprintln(os.Stderr, "  status                Show queue and connectivity state")
	fmt.Fprintln(os.Stderr, "  pending               List entries still to be synced")
	fmt.Fprintln(os.Stderr, "  clear                 Drop every queued entry")
	fmt.Fprintln(os.Stderr, "  online | offline      Pin connectivity")
	fmt.Fprintln(os.Stderr, "  auto                  Unpin connectivity and probe the remote")
	fmt.Fprintln(os.Stderr, "  history [n]           Show the last n sync passes")
	fmt.Fprintln(os.Stderr, "  watch                 Stream queue and sync events")
}

func cmdAdd(ctx context.Context, c *client.Client, args []string) {
	if len(args) < 1 || len(args) > 2 {
		fatalf("usage: offsyncctl add <type> [json|-]")
	}
	payload := []byte("{}")
	if len(args) == 2 {
		payload = []byte(args[1])
		if args[1] == "-" {
			data, err := io.ReadAll(os.Stdin)
			check(err)
			payload = data
		}
	}
	id, err := c.Enqueue(ctx, args[0], payload)
	check(err)
	fmt.Println(id)
}

func cmdSync(ctx context.Context, c *client.Client, jsonOut bool) {
	res, err := c.Sync(ctx)
	check(err)
	if jsonOut {
		outputJSON(res)
		return
	}
	switch res.Outcome {
	case "already_syncing":
		fmt.Println("A sync pass is already running")
		return
	case "offline":
		fmt.Println("Offline, nothing sent")
		return
	}
	fmt.Printf("Synced: %d  Failed: %d  Dropped: %d\n", res.Synced, res.Failed, res.Dropped)
	for _, e := range res.Errors {
		mark := ""
		if e.Dropped {
			mark = " (dropped)"
		}
		fmt.Printf("  %s %-12s %s%s\n", e.EntryID, e.Type, e.Message, mark)
	}
}

func cmdStatus(ctx context.Context, c *client.Client, jsonOut, pendingOnly bool) {
	st, err := c.Status(ctx)
	check(err)
	if pendingOnly {
		kept := st.Entries[:0]
		for _, e := range st.Entries {
			if e.Status == "pending" || e.Status == "failed" {
				kept = append(kept, e)
			}
		}
		st.Entries = kept
	}
	if jsonOut {
		if pendingOnly {
			outputJSON(st.Entries)
		} else {
			outputJSON(st)
		}
		return
	}
	if !pendingOnly {
		last := st.LastSyncAt
		if last == "" {
			last = "never"
		}
		conn := st.Connectivity
		if st.Forced {
			conn += " (pinned)"
		}
		fmt.Printf("User:         %s\n", st.UserID)
		fmt.Printf("Connectivity: %s\n", conn)
		fmt.Printf("Pending:      %d\n", st.Pending)
		fmt.Printf("Syncing:      %v\n", st.IsSyncing)
		fmt.Printf("Last sync:    %s\n", last)
		if len(st.Entries) > 0 {
			fmt.Println()
		}
	}
	if len(st.Entries) == 0 && pendingOnly {
		fmt.Println("No pending entries.")
		return
	}
	for _, e := range st.Entries {
		line := fmt.Sprintf("%-30s %-12s %-8s retries=%d", e.ID, e.Type, e.Status, e.RetryCount)
		if e.LastError != "" {
			line += "  " + e.LastError
		}
		fmt.Println(line)
	}
}

func cmdHistory(ctx context.Context, c *client.Client, args []string, jsonOut bool) {
	limit := 10
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			fatalf("history: invalid count %q", args[0])
		}
		limit = n
	}
	passes, err := c.History(ctx, limit)
	check(err)
	if jsonOut {
		outputJSON(passes)
		return
	}
	if len(passes) == 0 {
		fmt.Println("No sync passes recorded.")
		return
	}
	for _, p := range passes {
		fmt.Printf("%s  synced=%d failed=%d dropped=%d\n", p.FinishedAt, p.Synced, p.Failed, p.Dropped)
	}
}

func cmdWatch(c *client.Client, jsonOut bool) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := c.Watch(ctx, func(e client.Event) {
		if jsonOut {
			outputJSON(e)
			return
		}
		payload := strings.TrimSpace(string(e.Payload))
		fmt.Printf("%s  %-22s %s\n", e.OccurredAt, e.Kind, payload)
	})
	check(err)
}

func check(err error) {
	if err != nil {
		fatalf("%v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
