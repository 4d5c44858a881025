// Package exitlog persists the last captured exit output per session so
// it can be inspected after the view is gone.
package exitlog

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"pkt.systems/pslog"
	"pkt.systems/termdock/schema"
)

// Record is one persisted exit capture.
type Record struct {
	Name       schema.SessionName `json:"name"`
	Lines      []string           `json:"lines"`
	CapturedAt time.Time          `json:"captured_at"`
}

// Store persists exit captures to disk, one file per session.
type Store struct {
	dir string
	log pslog.Logger
}

// NewStore constructs a store rooted at dir.
func NewStore(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("exit log directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("exit_log_dir", dir)
	}
	return &Store{dir: dir, log: logger}, nil
}

// OnSessionEvent satisfies core.EventSink; lifecycle events are not
// persisted.
func (s *Store) OnSessionEvent(schema.SessionEvent) {}

// OnExitOutput persists the capture, replacing any earlier record for
// the session. Failures are logged and swallowed; losing a capture
// must not disturb teardown.
func (s *Store) OnExitOutput(event schema.ExitOutputEvent) {
	record := Record{
		Name:       event.Name,
		Lines:      event.Lines,
		CapturedAt: time.Now().UTC(),
	}
	if err := s.save(record); err != nil {
		if s.log != nil {
			s.log.Warn("exit log save failed", "session", event.Name, "err", err)
		}
		return
	}
	if s.log != nil {
		s.log.Debug("exit log save ok", "session", event.Name, "lines", len(event.Lines))
	}
}

// Load returns the last capture for the session, if any.
func (s *Store) Load(name schema.SessionName) (Record, bool, error) {
	data, err := os.ReadFile(s.pathFor(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, false, err
	}
	return record, true, nil
}

func (s *Store) save(record Record) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	path := s.pathFor(record.Name)
	tmp, err := os.CreateTemp(s.dir, "exit-*.json")
	if err != nil {
		return err
	}
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

func (s *Store) pathFor(name schema.SessionName) string {
	file := sanitize(string(name))
	if file == "" {
		file = "unknown"
	}
	return filepath.Join(s.dir, file+".json")
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}
