package sshserver

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"pkt.systems/termdock/internal/command"
)

// repl is the interactive control prompt. With a pty it runs a raw key
// loop with echo and history; without one it degrades to plain line
// reading so piped input still works.
type repl struct {
	rw      io.ReadWriter
	handler *command.Handler
	user    string
	prompt  string
	pty     bool

	editor       lineEditor
	history      []string
	historyIndex int
	draft        string
}

func newREPL(rw io.ReadWriter, handler *command.Handler, user, prompt string, pty bool) *repl {
	return &repl{
		rw:           rw,
		handler:      handler,
		user:         user,
		prompt:       prompt,
		pty:          pty,
		historyIndex: -1,
	}
}

func (r *repl) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !r.pty {
		return r.runPlain(ctx)
	}
	return r.runRaw(ctx)
}

func (r *repl) runPlain(ctx context.Context) error {
	scanner := bufio.NewScanner(r.rw)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if done := r.execute(ctx, r.rw, scanner.Text()); done {
			return nil
		}
	}
	return scanner.Err()
}

func (r *repl) runRaw(ctx context.Context) error {
	out := &crlfWriter{w: r.rw}
	keys := make(chan key, 16)
	go readKeys(r.rw, keys)

	r.redraw(out)
	for {
		select {
		case <-ctx.Done():
			return nil
		case k, ok := <-keys:
			if !ok {
				return nil
			}
			if done := r.handleKey(ctx, out, k); done {
				return nil
			}
		}
	}
}

func (r *repl) handleKey(ctx context.Context, out io.Writer, k key) bool {
	switch k.kind {
	case keyRune:
		r.editor.InsertRune(k.r)
	case keyEnter:
		line := r.editor.String()
		r.editor.Clear()
		r.historyIndex = -1
		r.draft = ""
		_, _ = io.WriteString(out, "\n")
		if done := r.execute(ctx, out, line); done {
			return true
		}
	case keyBackspace:
		r.editor.Backspace()
	case keyDelete:
		r.editor.Delete()
	case keyLeft:
		r.editor.MoveLeft()
	case keyRight:
		r.editor.MoveRight()
	case keyHome, keyCtrlA:
		r.editor.MoveStart()
	case keyEnd, keyCtrlE:
		r.editor.MoveEnd()
	case keyAltB:
		r.editor.MoveWordLeft()
	case keyAltF:
		r.editor.MoveWordRight()
	case keyCtrlW:
		r.editor.DeleteWordBackward()
	case keyCtrlU:
		r.editor.KillToStart()
	case keyCtrlK:
		r.editor.KillToEnd()
	case keyUp:
		r.historyUp()
	case keyDown:
		r.historyDown()
	case keyCtrlC:
		_, _ = io.WriteString(out, "^C\n")
		r.editor.Clear()
		r.historyIndex = -1
	case keyCtrlD:
		if r.editor.Len() == 0 {
			_, _ = io.WriteString(out, "\n")
			return true
		}
		r.editor.Delete()
	}
	r.redraw(out)
	return false
}

// execute runs one line and reports whether the prompt should close.
func (r *repl) execute(ctx context.Context, out io.Writer, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		r.redraw(out)
		return false
	}
	if line == "exit" || line == "quit" {
		return true
	}
	r.remember(line)
	handled, err := r.handler.Handle(ctx, r.user, out, line)
	if handled && err != nil {
		_, _ = fmt.Fprintf(out, "error: %v\n", err)
	}
	r.redraw(out)
	return false
}

func (r *repl) remember(line string) {
	if n := len(r.history); n > 0 && r.history[n-1] == line {
		return
	}
	r.history = append(r.history, line)
}

func (r *repl) historyUp() {
	if len(r.history) == 0 {
		return
	}
	if r.historyIndex == -1 {
		r.draft = r.editor.String()
		r.historyIndex = len(r.history) - 1
	} else if r.historyIndex > 0 {
		r.historyIndex--
	}
	r.editor.SetString(r.history[r.historyIndex])
}

func (r *repl) historyDown() {
	if r.historyIndex == -1 {
		return
	}
	if r.historyIndex < len(r.history)-1 {
		r.historyIndex++
		r.editor.SetString(r.history[r.historyIndex])
		return
	}
	r.historyIndex = -1
	r.editor.SetString(r.draft)
}

// redraw repaints the prompt line and positions the cursor. Only used
// in raw mode.
func (r *repl) redraw(w io.Writer) {
	if !r.pty {
		return
	}
	var b strings.Builder
	b.WriteString("\r\x1b[K")
	b.WriteString(r.prompt)
	b.WriteString(r.editor.String())
	if back := r.editor.Len() - r.editor.cursor; back > 0 {
		fmt.Fprintf(&b, "\x1b[%dD", back)
	}
	_, _ = io.WriteString(r.rw, b.String())
}

// crlfWriter rewrites bare newlines to CRLF for raw pty output.
type crlfWriter struct {
	w io.Writer
}

func (c *crlfWriter) Write(p []byte) (int, error) {
	if !bytes.Contains(p, []byte{'\n'}) {
		return c.w.Write(p)
	}
	replaced := bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))
	if _, err := c.w.Write(replaced); err != nil {
		return 0, err
	}
	return len(p), nil
}
