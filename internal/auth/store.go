// Package auth manages control-channel user accounts: bcrypt password
// hashes, TOTP secrets, and authorized SSH public keys, persisted as a
// JSON file that may be edited out-of-band.
package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/ssh"

	"pkt.systems/pslog"
	"pkt.systems/termdock/internal/appconfig"
)

// ErrInvalidCredentials is returned for any failed credential check. The
// message never says which factor failed.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrUserNotFound is returned when the named user does not exist.
var ErrUserNotFound = errors.New("user not found")

var usernameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,63}$`)

// User represents a stored user account.
type User struct {
	Username     string   `json:"username"`
	PasswordHash string   `json:"password_hash"`
	TOTPSecret   string   `json:"totp_secret"`
	PubKeys      []string `json:"pubkeys,omitempty"`
}

// Store manages users stored on disk. External edits to the file are
// picked up on the next operation.
type Store struct {
	path      string
	mu        sync.RWMutex
	users     map[string]User
	fileState fileState
	log       pslog.Logger
}

// NewStore loads the user store, seeding the file if it does not exist.
func NewStore(path string, seeds []appconfig.SeedUser, logger pslog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("user file path is required")
	}
	if logger != nil {
		logger = logger.With("user_file", path)
	}
	store := &Store{path: path, users: make(map[string]User), log: logger}
	if err := store.ensureFile(seeds); err != nil {
		return nil, err
	}
	if err := store.loadFromDisk(); err != nil {
		return nil, err
	}
	return store, nil
}

// Authenticate verifies username, password, and TOTP code.
func (s *Store) Authenticate(username, password, totpCode string) error {
	user, err := s.lookup(username)
	if err != nil {
		return ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return ErrInvalidCredentials
	}
	if !totp.Validate(totpCode, user.TOTPSecret) {
		return ErrInvalidCredentials
	}
	return nil
}

// ValidateTOTP verifies a TOTP code against the user's stored secret.
func (s *Store) ValidateTOTP(username, totpCode string) error {
	user, err := s.lookup(username)
	if err != nil {
		return ErrInvalidCredentials
	}
	if !totp.Validate(totpCode, user.TOTPSecret) {
		return ErrInvalidCredentials
	}
	return nil
}

// HasPubKey reports whether the key is authorized for the user.
func (s *Store) HasPubKey(username string, key ssh.PublicKey) (bool, error) {
	user, err := s.lookup(username)
	if err != nil {
		return false, err
	}
	for _, raw := range user.PubKeys {
		if keyEqual(raw, key) {
			return true, nil
		}
	}
	return false, nil
}

// AddPubKey authorizes a public key for the user and returns its 1-based
// index.
func (s *Store) AddPubKey(username, pubKey string) (int, error) {
	normalized, parsed, err := parsePubKey(pubKey)
	if err != nil {
		return 0, err
	}
	index := 0
	err = s.mutate(username, func(user *User) error {
		for _, existing := range user.PubKeys {
			if keyEqual(existing, parsed) {
				return errors.New("pubkey already exists")
			}
		}
		user.PubKeys = append(user.PubKeys, normalized)
		index = len(user.PubKeys)
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.info("auth pubkey added", "user", username, "id", index)
	return index, nil
}

// RemovePubKey removes the key at the provided 1-based index.
func (s *Store) RemovePubKey(username string, index int) error {
	if index <= 0 {
		return errors.New("pubkey id must be positive")
	}
	err := s.mutate(username, func(user *User) error {
		if index > len(user.PubKeys) {
			return errors.New("pubkey id out of range")
		}
		user.PubKeys = append(user.PubKeys[:index-1], user.PubKeys[index:]...)
		return nil
	})
	if err != nil {
		return err
	}
	s.info("auth pubkey removed", "user", username, "id", index)
	return nil
}

// ListPubKeys returns the user's authorized keys.
func (s *Store) ListPubKeys(username string) ([]string, error) {
	user, err := s.lookup(username)
	if err != nil {
		return nil, err
	}
	return append([]string{}, user.PubKeys...), nil
}

// AddUser inserts a new user and persists the store.
func (s *Store) AddUser(user User) error {
	username, err := validateUsername(user.Username)
	if err != nil {
		return err
	}
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return errors.New("user already exists")
	}
	user.Username = username
	s.users[username] = user
	if err := s.saveLocked(); err != nil {
		return err
	}
	s.info("auth user added", "user", username)
	return nil
}

// DeleteUser removes a user.
func (s *Store) DeleteUser(username string) error {
	normalized, err := validateUsername(username)
	if err != nil {
		return err
	}
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[normalized]; !ok {
		return ErrUserNotFound
	}
	delete(s.users, normalized)
	if err := s.saveLocked(); err != nil {
		return err
	}
	s.info("auth user deleted", "user", normalized)
	return nil
}

// SetPassword replaces the stored password hash.
func (s *Store) SetPassword(username, passwordHash string) error {
	if strings.TrimSpace(passwordHash) == "" {
		return errors.New("password hash is required")
	}
	if err := s.mutate(username, func(user *User) error {
		user.PasswordHash = passwordHash
		return nil
	}); err != nil {
		return err
	}
	s.info("auth password updated", "user", username)
	return nil
}

// SetTOTP replaces the stored TOTP secret.
func (s *Store) SetTOTP(username, secret string) error {
	if strings.TrimSpace(secret) == "" {
		return errors.New("totp secret is required")
	}
	if err := s.mutate(username, func(user *User) error {
		user.TOTPSecret = secret
		return nil
	}); err != nil {
		return err
	}
	s.info("auth totp updated", "user", username)
	return nil
}

// Users returns a snapshot of all users sorted by username.
func (s *Store) Users() []User {
	if err := s.refreshIfNeeded(); err != nil {
		s.warn("auth store refresh failed", "err", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users
}

// mutate runs fn against the named user's record and persists the result.
func (s *Store) mutate(username string, fn func(*User) error) error {
	normalized, err := validateUsername(username)
	if err != nil {
		return err
	}
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[normalized]
	if !ok {
		return ErrUserNotFound
	}
	if err := fn(&user); err != nil {
		return err
	}
	s.users[normalized] = user
	return s.saveLocked()
}

func (s *Store) lookup(username string) (User, error) {
	normalized, err := validateUsername(username)
	if err != nil {
		return User{}, err
	}
	if err := s.refreshIfNeeded(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[normalized]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (s *Store) ensureFile(seeds []appconfig.SeedUser) error {
	if _, statErr := os.Stat(s.path); statErr == nil {
		return nil
	} else if !os.IsNotExist(statErr) {
		return statErr
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	users := make([]User, 0, len(seeds))
	for _, seed := range seeds {
		if _, err := validateUsername(seed.Username); err != nil {
			return err
		}
		users = append(users, User{
			Username:     seed.Username,
			PasswordHash: seed.PasswordHash,
			TOTPSecret:   seed.TOTPSecret,
		})
	}
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return err
	}
	s.info("auth store initialized", "users", len(users))
	return nil
}

// saveLocked writes the store atomically: temp file, fsync, rename.
func (s *Store) saveLocked() error {
	users := make([]User, 0, len(s.users))
	names := make([]string, 0, len(s.users))
	for name := range s.users {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		users = append(users, s.users[name])
	}
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "users-*.json")
	if err != nil {
		return err
	}
	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		s.warn("auth store save failed", "err", err)
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return err
	}
	if info, err := os.Stat(s.path); err == nil {
		s.fileState = fileStateFromInfo(info)
	}
	return nil
}

func (s *Store) refreshIfNeeded() error {
	info, err := os.Stat(s.path)
	if err != nil {
		return err
	}
	latest := fileStateFromInfo(info)
	s.mu.RLock()
	current := s.fileState
	s.mu.RUnlock()
	if current.equal(latest) {
		return nil
	}
	return s.loadFromDisk()
}

func (s *Store) loadFromDisk() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var users []User
	if err := json.Unmarshal(data, &users); err != nil {
		return err
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return err
	}
	next := make(map[string]User, len(users))
	for _, user := range users {
		if _, err := validateUsername(user.Username); err != nil {
			return err
		}
		next[user.Username] = user
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = next
	s.fileState = fileStateFromInfo(info)
	if s.log != nil {
		s.log.Debug("auth store load ok", "users", len(users))
	}
	return nil
}

func (s *Store) info(msg string, kv ...any) {
	if s.log != nil {
		s.log.Info(msg, kv...)
	}
}

func (s *Store) warn(msg string, kv ...any) {
	if s.log != nil {
		s.log.Warn(msg, kv...)
	}
}

// fileState fingerprints the on-disk file so external edits are detected.
type fileState struct {
	modTime time.Time
	size    int64
	inode   uint64
	dev     uint64
}

func fileStateFromInfo(info os.FileInfo) fileState {
	state := fileState{modTime: info.ModTime(), size: info.Size()}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		state.inode = stat.Ino
		state.dev = stat.Dev
	}
	return state
}

func (s fileState) equal(other fileState) bool {
	return s.size == other.size &&
		s.modTime.Equal(other.modTime) &&
		s.inode == other.inode &&
		s.dev == other.dev
}

// ValidateUsername reports whether username is acceptable for accounts.
func ValidateUsername(username string) error {
	_, err := validateUsername(username)
	return err
}

func validateUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if !usernameRe.MatchString(username) {
		return "", errors.New("invalid username")
	}
	return username, nil
}

func parsePubKey(raw string) (string, ssh.PublicKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil, errors.New("pubkey is required")
	}
	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(trimmed))
	if err != nil {
		return "", nil, errors.New("invalid pubkey")
	}
	return trimmed, key, nil
}

func keyEqual(raw string, key ssh.PublicKey) bool {
	parsed, _, _, _, err := ssh.ParseAuthorizedKey([]byte(strings.TrimSpace(raw)))
	if err != nil {
		return false
	}
	return bytes.Equal(parsed.Marshal(), key.Marshal())
}
