package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"botrelay/internal/model"
)

// Memory keeps sessions in maps and, when StateFile is set, mirrors every
// change into a JSON snapshot that is reloaded on start.
type Memory struct {
	mu sync.RWMutex

	stateFile string
	persistMu sync.Mutex
	// snapshotSeq is bumped under mu for every snapshot; writtenSeq is the
	// newest one on disk, guarded by persistMu.
	snapshotSeq uint64
	writtenSeq  uint64

	sessionsByID          map[string]model.Session
	sessionIDByCredential map[string]string
}

type MemoryOptions struct {
	StateFile string
}

func NewMemory(opts MemoryOptions) *Memory {
	m := &Memory{
		stateFile:             opts.StateFile,
		sessionsByID:          make(map[string]model.Session),
		sessionIDByCredential: make(map[string]string),
	}

	if m.stateFile != "" {
		if err := m.loadFromFile(m.stateFile); err != nil {
			log.Warn().Err(err).Str("component", "store").Str("path", m.stateFile).Msg("sessions persistence: load failed")
		}
	}
	return m
}

const persistedSessionsVersion = 1

type persistedSessionsFile struct {
	Version  int             `json:"version"`
	Sessions []model.Session `json:"sessions"`
	SavedAt  int64           `json:"savedAt"`
}

func (m *Memory) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var file persistedSessionsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return errors.Wrap(err, "decode sessions state")
	}
	if file.Version != persistedSessionsVersion {
		return errors.New("unsupported sessions state version")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sess := range file.Sessions {
		if sess.ID == "" || sess.CredentialRef == "" {
			continue
		}
		m.sessionsByID[sess.ID] = sess
		m.sessionIDByCredential[sess.CredentialRef] = sess.ID
	}
	return nil
}

func (m *Memory) snapshotLocked() []model.Session {
	result := make([]model.Session, 0, len(m.sessionsByID))
	for _, sess := range m.sessionsByID {
		result = append(result, sess)
	}
	sortNewestFirst(result)
	return result
}

// persist writes a snapshot taken at seq. Snapshots older than the one
// already on disk are dropped so the file never moves backwards.
func (m *Memory) persist(seq uint64, sessions []model.Session) {
	path := m.stateFile
	if path == "" {
		return
	}

	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	if seq <= m.writtenSeq {
		return
	}

	logger := log.With().Str("component", "store").Str("path", path).Logger()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		logger.Error().Err(err).Msg("sessions persistence: mkdir failed")
		return
	}

	file := persistedSessionsFile{Version: persistedSessionsVersion, Sessions: sessions, SavedAt: time.Now().UnixMilli()}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		logger.Error().Err(err).Msg("sessions persistence: marshal failed")
		return
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		logger.Error().Err(err).Msg("sessions persistence: create temp failed")
		return
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		logger.Error().Err(err).Msg("sessions persistence: chmod temp failed")
		return
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		logger.Error().Err(err).Msg("sessions persistence: write temp failed")
		return
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		logger.Error().Err(err).Msg("sessions persistence: sync temp failed")
		return
	}
	if err := tmp.Close(); err != nil {
		logger.Error().Err(err).Msg("sessions persistence: close temp failed")
		return
	}
	if err := os.Rename(tmpName, path); err != nil {
		logger.Error().Err(err).Msg("sessions persistence: rename failed")
		return
	}
	m.writtenSeq = seq
}

func (m *Memory) Get(_ context.Context, id string) (model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessionsByID[id]
	if !ok {
		return model.Session{}, model.ErrNotFound
	}
	return sess, nil
}

func (m *Memory) FindByCredential(_ context.Context, credentialRef string) (model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.sessionIDByCredential[credentialRef]
	if !ok {
		return model.Session{}, model.ErrNotFound
	}
	return m.sessionsByID[id], nil
}

func (m *Memory) Put(_ context.Context, sess model.Session) error {
	if sess.ID == "" {
		return errors.New("missing session id")
	}

	m.mu.Lock()
	if owner, ok := m.sessionIDByCredential[sess.CredentialRef]; ok && owner != sess.ID {
		m.mu.Unlock()
		return model.ErrDuplicateCredential
	}
	if prev, ok := m.sessionsByID[sess.ID]; ok && prev.CredentialRef != sess.CredentialRef {
		delete(m.sessionIDByCredential, prev.CredentialRef)
	}
	m.sessionsByID[sess.ID] = sess
	m.sessionIDByCredential[sess.CredentialRef] = sess.ID

	var (
		snapshot []model.Session
		seq      uint64
	)
	if m.stateFile != "" {
		m.snapshotSeq++
		seq = m.snapshotSeq
		snapshot = m.snapshotLocked()
	}
	m.mu.Unlock()

	if snapshot != nil {
		m.persist(seq, snapshot)
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	sess, ok := m.sessionsByID[id]
	if !ok {
		m.mu.Unlock()
		return model.ErrNotFound
	}
	delete(m.sessionsByID, id)
	if m.sessionIDByCredential[sess.CredentialRef] == id {
		delete(m.sessionIDByCredential, sess.CredentialRef)
	}

	var (
		snapshot []model.Session
		seq      uint64
	)
	if m.stateFile != "" {
		m.snapshotSeq++
		seq = m.snapshotSeq
		snapshot = m.snapshotLocked()
	}
	m.mu.Unlock()

	if snapshot != nil {
		m.persist(seq, snapshot)
	}
	return nil
}

func (m *Memory) List(_ context.Context) ([]model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked(), nil
}

func (m *Memory) ListExpired(_ context.Context, now time.Time) ([]model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]model.Session, 0)
	for _, sess := range m.sessionsByID {
		if sess.Lapsed(now) {
			result = append(result, sess)
		}
	}
	sortNewestFirst(result)
	return result, nil
}

func (m *Memory) Close() error {
	return nil
}
