package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
)

// Run is the CLI entrypoint used by cmd/talkwire.
// It returns an error instead of calling os.Exit to keep defers effective.
func Run(args []string) error {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	cmd, rest := "run", args
	if len(args) > 0 {
		cmd, rest = args[0], args[1:]
	}

	switch cmd {
	case "run":
		return a.Run(ctx)
	case "login":
		return a.Login(ctx, os.Stdin, os.Stdout)
	case "logout":
		return a.Logout(ctx)
	case "send":
		if len(rest) < 2 {
			return errors.New("usage: talkwire send <target> <text>")
		}
		return a.Send(ctx, rest[0], strings.Join(rest[1:], " "))
	case "sendfile":
		if len(rest) < 2 {
			return errors.New("usage: talkwire sendfile <target> <path> [caption]")
		}
		return a.SendFile(ctx, rest[0], rest[1], strings.Join(rest[2:], " "))
	case "history":
		if len(rest) < 1 {
			return errors.New("usage: talkwire history <target> [limit]")
		}
		limit := 50
		if len(rest) > 1 {
			if n, err := strconv.Atoi(rest[1]); err == nil {
				limit = n
			}
		}
		return a.History(ctx, rest[0], limit, os.Stdout)
	case "pair":
		if len(rest) != 2 || rest[0] != "approve" {
			return errors.New("usage: talkwire pair approve <code>")
		}
		return a.PairApprove(ctx, rest[1], os.Stdout)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
