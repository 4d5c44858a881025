package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"pkt.systems/termdock/core"
	"pkt.systems/termdock/internal/eventbus"
	"pkt.systems/termdock/internal/exitlog"
	"pkt.systems/termdock/internal/logx"
	"pkt.systems/termdock/internal/version"
	"pkt.systems/termdock/schema"
)

// PubKeyStore manages SSH login public keys per user.
type PubKeyStore interface {
	AddPubKey(username, pubKey string) (int, error)
	ListPubKeys(username string) ([]string, error)
	RemovePubKey(username string, index int) error
}

// ExitLog resolves the last persisted exit capture per session.
type ExitLog interface {
	Load(name schema.SessionName) (exitlog.Record, bool, error)
}

// HandlerConfig configures control command behavior.
type HandlerConfig struct {
	PubKeyStore         PubKeyStore
	Bus                 *eventbus.Bus
	ExitLog             ExitLog
	DisableAuditLogging bool
}

// Handler routes control commands to controller operations. Output is
// written to the caller's stream; errors are returned for the transport
// to render.
type Handler struct {
	ctrl core.Controller
	cfg  HandlerConfig
}

// NewHandler constructs a command handler.
func NewHandler(ctrl core.Controller, cfg HandlerConfig) *Handler {
	return &Handler{ctrl: ctrl, cfg: cfg}
}

// Handle parses and executes one control line for the authenticated
// user. The boolean reports whether the input was recognized as a
// command at all.
func (h *Handler) Handle(ctx context.Context, username string, out io.Writer, input string) (bool, error) {
	if ctx == nil {
		return false, errors.New("missing context")
	}
	cmd, ok := Parse(input)
	if !ok {
		return false, nil
	}
	log := logx.Ctx(ctx).With("user", username, "command", cmd.Name, "args", len(cmd.Args))
	if !h.cfg.DisableAuditLogging {
		log.Debug("audit command", "input", strings.TrimSpace(input))
	}
	log.Info("command request")
	switch cmd.Name {
	case "toggle":
		return true, h.handleToggle(ctx, out, cmd)
	case "list", "ls":
		return true, h.handleList(ctx, out)
	case "hide-all", "hideall":
		return true, h.handleHideAll(ctx, out)
	case "watch":
		return true, h.handleWatch(ctx, out)
	case "last":
		return true, h.handleLast(out, cmd)
	case "pubkey":
		return true, h.handlePubKey(ctx, username, out, cmd)
	case "version":
		return true, h.handleVersion(out)
	case "help":
		return true, h.handleHelp(out)
	default:
		log.Warn("command rejected", "reason", "unknown")
		return true, fmt.Errorf("unknown command: %s", cmd.Name)
	}
}

func (h *Handler) handleToggle(ctx context.Context, out io.Writer, cmd Command) error {
	if len(cmd.Args) != 1 {
		return fmt.Errorf("usage: toggle <session>")
	}
	name := schema.SessionName(cmd.Args[0])
	resp, err := h.ctrl.Toggle(ctx, schema.ToggleRequest{Name: name})
	if err != nil {
		return err
	}
	switch {
	case resp.Launched:
		fmt.Fprintf(out, "%s launched and shown\n", name)
	case resp.Session.State == schema.StateVisible:
		fmt.Fprintf(out, "%s shown\n", name)
	case resp.Session.State == schema.StateHidden:
		fmt.Fprintf(out, "%s hidden\n", name)
	default:
		fmt.Fprintf(out, "%s has no command, nothing launched\n", name)
	}
	return nil
}

func (h *Handler) handleList(ctx context.Context, out io.Writer) error {
	resp, err := h.ctrl.List(ctx, schema.ListSessionsRequest{})
	if err != nil {
		return err
	}
	for _, sess := range resp.Sessions {
		fmt.Fprintf(out, "%-20s %s\n", sess.Name, sess.State)
	}
	return nil
}

func (h *Handler) handleHideAll(ctx context.Context, out io.Writer) error {
	resp, err := h.ctrl.HideAll(ctx, schema.HideAllRequest{})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d session(s) hidden\n", resp.Hidden)
	return nil
}

// handleWatch streams session events until the connection or context
// ends.
func (h *Handler) handleWatch(ctx context.Context, out io.Writer) error {
	if h.cfg.Bus == nil {
		return errors.New("event bus not configured")
	}
	events, cancel := h.cfg.Bus.Subscribe()
	defer cancel()
	fmt.Fprintln(out, "watching session events (interrupt to stop)")
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			switch event.Type {
			case eventbus.EventSession:
				fmt.Fprintf(out, "%s %s\n", event.Session.Session.Name, event.Session.Type)
			case eventbus.EventExitOutput:
				fmt.Fprintf(out, "%s exited with %d line(s) of output\n", event.ExitOutput.Name, len(event.ExitOutput.Lines))
			}
		}
	}
}

// handleLast prints the last persisted exit capture for a session.
func (h *Handler) handleLast(out io.Writer, cmd Command) error {
	if h.cfg.ExitLog == nil {
		return errors.New("exit log not configured")
	}
	if len(cmd.Args) != 1 {
		return fmt.Errorf("usage: last <session>")
	}
	record, ok, err := h.cfg.ExitLog.Load(schema.SessionName(cmd.Args[0]))
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(out, "no exit capture for %s\n", cmd.Args[0])
		return nil
	}
	fmt.Fprintf(out, "%s exited at %s\n", record.Name, record.CapturedAt.Format(time.RFC3339))
	for _, line := range record.Lines {
		fmt.Fprintln(out, line)
	}
	return nil
}

func (h *Handler) handlePubKey(ctx context.Context, username string, out io.Writer, cmd Command) error {
	log := logx.Ctx(ctx).With("user", username)
	if h.cfg.PubKeyStore == nil {
		return errors.New("pubkey store not configured")
	}
	if len(cmd.Args) == 0 {
		return fmt.Errorf("usage: pubkey <add|list|rm> ...")
	}
	switch cmd.Args[0] {
	case "add":
		key := strings.TrimSpace(remainderAfterTokens(cmd.Raw, 2))
		if key == "" {
			return fmt.Errorf("usage: pubkey add <authorized-key-line>")
		}
		id, err := h.cfg.PubKeyStore.AddPubKey(username, key)
		if err != nil {
			log.Warn("command pubkey add failed", "err", err)
			return err
		}
		fmt.Fprintf(out, "pubkey added (id %d)\n", id)
		return nil
	case "list":
		keys, err := h.cfg.PubKeyStore.ListPubKeys(username)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			fmt.Fprintln(out, "no pubkeys")
			return nil
		}
		for i, key := range keys {
			fmt.Fprintf(out, "%d) %s\n", i+1, strings.TrimSpace(key))
		}
		return nil
	case "rm":
		if len(cmd.Args) != 2 {
			return fmt.Errorf("usage: pubkey rm <id>")
		}
		id, err := strconv.Atoi(cmd.Args[1])
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid pubkey id")
		}
		if err := h.cfg.PubKeyStore.RemovePubKey(username, id); err != nil {
			log.Warn("command pubkey rm failed", "err", err)
			return err
		}
		fmt.Fprintf(out, "pubkey removed (id %d)\n", id)
		return nil
	default:
		return fmt.Errorf("usage: pubkey <add|list|rm> ...")
	}
}

func (h *Handler) handleVersion(out io.Writer) error {
	fmt.Fprintf(out, "%s %s\n", version.Module(), version.Current())
	return nil
}

func (h *Handler) handleHelp(out io.Writer) error {
	for _, line := range []string{
		"toggle <session>   show the session, hiding any other; hide it if visible",
		"list               list sessions and their states",
		"hide-all           hide every visible session",
		"watch              stream session lifecycle events",
		"last <session>     show the last captured exit output",
		"pubkey add <key>   authorize an SSH public key",
		"pubkey list        list authorized keys",
		"pubkey rm <id>     remove an authorized key",
		"version            show version information",
		"help               show this help",
	} {
		fmt.Fprintln(out, line)
	}
	return nil
}
