package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/meetscribe/meetscribe/logger"
	"github.com/meetscribe/meetscribe/paths"
	"github.com/meetscribe/meetscribe/process"
)

const (
	sessionFileName = "recording_state.json"
	jobsFileName    = "processing_state.json"

	// Lock acquisition backs off from lockInitialDelay, doubling up to
	// lockMaxDelay per try, until the budget is spent. A lock whose holder
	// is dead, or older than lockStaleAfter, is broken.
	lockInitialDelay = 20 * time.Millisecond
	lockMaxDelay     = 100 * time.Millisecond
	lockBudget       = 1500 * time.Millisecond
	lockStaleAfter   = 10 * time.Second
)

// ErrLockBusy is returned when the lock cannot be acquired within the
// backoff budget and the holder is still alive.
var ErrLockBusy = errors.New("state document is locked by another invocation")

// Store persists the session and job-registry documents under one
// directory.
type Store struct {
	dir   string
	alive func(pid int) bool
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir, alive: process.Alive}
}

// Default returns the Store at the standard state directory.
func Default() (*Store, error) {
	dir, err := paths.StateDir()
	if err != nil {
		return nil, err
	}
	return NewStore(dir), nil
}

// SetAliveCheck overrides the PID liveness probe used for stale-lock
// detection. Tests use this to simulate dead lock holders.
func (s *Store) SetAliveCheck(alive func(pid int) bool) {
	s.alive = alive
}

func (s *Store) sessionPath() string { return filepath.Join(s.dir, sessionFileName) }
func (s *Store) jobsPath() string    { return filepath.Join(s.dir, jobsFileName) }

// LoadSession reads the session document. Missing or corrupt documents fail
// soft: the zero (idle) session is returned and the problem is logged.
func (s *Store) LoadSession() Session {
	var session Session
	s.loadSoft(s.sessionPath(), &session)
	return session
}

// LoadJobs reads the registry document. Missing or corrupt documents fail
// soft with an empty registry.
func (s *Store) LoadJobs() map[string]Job {
	var doc jobsDocument
	s.loadSoft(s.jobsPath(), &doc)
	if doc.Jobs == nil {
		doc.Jobs = map[string]Job{}
	}
	return doc.Jobs
}

// UpdateSession applies fn to the session document under the store lock.
// fn sees the current document and mutates it in place; returning an error
// aborts the update without writing. Setting the session to its zero value
// removes the document.
func (s *Store) UpdateSession(fn func(*Session) error) error {
	path := s.sessionPath()
	return s.withLock(path, func() error {
		var session Session
		s.loadSoft(path, &session)
		if err := fn(&session); err != nil {
			return err
		}
		if !session.Active && session.Phase == "" {
			return removeIfExists(path)
		}
		return atomicWriteJSON(path, &session)
	})
}

// UpdateJobs applies fn to the registry document under the store lock.
func (s *Store) UpdateJobs(fn func(map[string]Job) error) error {
	path := s.jobsPath()
	return s.withLock(path, func() error {
		var doc jobsDocument
		s.loadSoft(path, &doc)
		if doc.Jobs == nil {
			doc.Jobs = map[string]Job{}
		}
		if err := fn(doc.Jobs); err != nil {
			return err
		}
		return atomicWriteJSON(path, &doc)
	})
}

// Reset force-clears both documents. This is the recovery path when state
// is stuck; it does not touch job spec or marker files.
func (s *Store) Reset() error {
	if err := removeIfExists(s.sessionPath()); err != nil {
		return err
	}
	return removeIfExists(s.jobsPath())
}

// loadSoft unmarshals path into v. Missing files are silent; unreadable or
// corrupt ones are logged and treated as absent, never fatal.
func (s *Store) loadSoft(path string, v any) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return
	}
	log := logger.WithComponent("state")
	if err != nil {
		log.Warn("state document unreadable, treating as empty", "path", path, "error", err)
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn("state document corrupt, treating as empty", "path", path, "error", err)
	}
}

// withLock runs fn while holding the lock file next to path.
func (s *Store) withLock(path string, fn func() error) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}
	lockPath := path + ".lock"
	if err := s.acquireLock(lockPath); err != nil {
		return err
	}
	defer os.Remove(lockPath)
	return fn()
}

// acquireLock creates the lock file exclusively, backing off while another
// live invocation holds it and breaking locks whose holder is gone.
func (s *Store) acquireLock(lockPath string) error {
	delay := lockInitialDelay
	deadline := time.Now().Add(lockBudget)

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("failed to create lock %s: %w", lockPath, err)
		}

		if s.lockIsStale(lockPath) {
			logger.WithComponent("state").Warn("breaking stale state lock", "path", lockPath)
			os.Remove(lockPath)
			continue
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("%w: %s", ErrLockBusy, lockPath)
		}
		// Never sleep past the deadline; retries continue until the budget
		// is actually spent.
		if delay > remaining {
			delay = remaining
		}
		time.Sleep(delay)
		if delay *= 2; delay > lockMaxDelay {
			delay = lockMaxDelay
		}
	}
}

// lockIsStale reports whether the lock's holder is dead or the lock is
// older than the stale threshold. A crashed invocation must never wedge
// the store.
func (s *Store) lockIsStale(lockPath string) bool {
	info, err := os.Stat(lockPath)
	if err != nil {
		// Gone already; the create loop will retry.
		return false
	}
	if time.Since(info.ModTime()) > lockStaleAfter {
		return true
	}
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(string(trimNewline(data)))
	if err != nil || pid <= 0 {
		// Unparseable holder; only age can break it.
		return false
	}
	if pid == os.Getpid() {
		return false
	}
	return !s.alive(pid)
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

// atomicWriteJSON writes v as indented JSON via a temp file in the same
// directory, fsyncs, and renames into place.
func atomicWriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
