// Package session persists authenticated browser sessions and their
// discovered endpoint maps on disk, with retention rotation.
package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/talentops/bgvsync/internal/model"
)

const (
	sessionPrefix = "session_"
	mapPrefix     = "apimap_"
)

// Store keeps one JSON file per session and one per endpoint map under a
// single directory, both named by session id.
type Store struct {
	dir string
	log *zap.Logger
}

// Entry describes one persisted session, newest first when listed.
type Entry struct {
	ID      string
	SavedAt time.Time
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "session: create state dir %s", dir)
	}
	return &Store{
		dir: dir,
		log: zap.L().With(zap.String("component", "session")),
	}, nil
}

func (s *Store) sessionPath(id string) string {
	return filepath.Join(s.dir, sessionPrefix+id+".json")
}

func (s *Store) mapPath(id string) string {
	return filepath.Join(s.dir, mapPrefix+id+".json")
}

// SessionPath returns the file the session state for an id is stored at.
func (s *Store) SessionPath(id string) string { return s.sessionPath(id) }

// MapPath returns the file the endpoint map for a session id is stored at.
func (s *Store) MapPath(id string) string { return s.mapPath(id) }

// SaveSession writes the session state JSON, replacing any previous state
// for the same id.
func (s *Store) SaveSession(sess *model.Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return eris.Wrap(err, "session: marshal session")
	}
	if err := os.WriteFile(s.sessionPath(sess.ID), data, 0o600); err != nil {
		return eris.Wrapf(err, "session: write session %s", sess.ID)
	}
	s.log.Info("session saved",
		zap.String("session_id", sess.ID),
		zap.Int("cookies", len(sess.StorageState.Cookies)))
	return nil
}

// LoadSession returns the stored session, or nil if none exists for the id.
func (s *Store) LoadSession(id string) (*model.Session, error) {
	data, err := os.ReadFile(s.sessionPath(id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "session: read session %s", id)
	}
	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, eris.Wrapf(err, "session: decode session %s", id)
	}
	return &sess, nil
}

// SaveEndpointMap writes the endpoint map for its session. A map file is
// written exactly once: a second write for the same session id fails rather
// than overwrite, since maps are immutable once persisted.
func (s *Store) SaveEndpointMap(m *model.EndpointMap) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return eris.Wrap(err, "session: marshal endpoint map")
	}
	path := s.mapPath(m.SessionID)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return eris.Errorf("session: endpoint map already persisted: %s", path)
		}
		return eris.Wrapf(err, "session: create endpoint map %s", path)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return eris.Wrapf(err, "session: write endpoint map %s", path)
	}
	s.log.Info("endpoint map saved",
		zap.String("session_id", m.SessionID),
		zap.Int("endpoints", m.Total()))
	return nil
}

// LoadEndpointMap returns the stored map, or nil if none exists for the id.
func (s *Store) LoadEndpointMap(sessionID string) (*model.EndpointMap, error) {
	data, err := os.ReadFile(s.mapPath(sessionID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "session: read endpoint map %s", sessionID)
	}
	var m model.EndpointMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "session: decode endpoint map %s", sessionID)
	}
	return &m, nil
}

// Sessions lists persisted sessions, newest first by file mtime.
func (s *Store) Sessions() ([]Entry, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, eris.Wrapf(err, "session: read state dir %s", s.dir)
	}
	var entries []Entry
	for _, de := range dirents {
		name := de.Name()
		if de.IsDir() || !strings.HasPrefix(name, sessionPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, sessionPrefix), ".json")
		entries = append(entries, Entry{ID: id, SavedAt: info.ModTime()})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].SavedAt.After(entries[j].SavedAt)
	})
	return entries, nil
}

// Latest returns the newest persisted session, or nil when none exist.
func (s *Store) Latest() (*model.Session, error) {
	entries, err := s.Sessions()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return s.LoadSession(entries[0].ID)
}

// Rotate removes all but the keep newest sessions along with their endpoint
// maps, and returns the removed ids. keep <= 0 disables rotation.
func (s *Store) Rotate(keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	entries, err := s.Sessions()
	if err != nil {
		return nil, err
	}
	if len(entries) <= keep {
		return nil, nil
	}

	var removed []string
	for _, e := range entries[keep:] {
		if err := os.Remove(s.sessionPath(e.ID)); err != nil && !os.IsNotExist(err) {
			return removed, eris.Wrapf(err, "session: remove session %s", e.ID)
		}
		if err := os.Remove(s.mapPath(e.ID)); err != nil && !os.IsNotExist(err) {
			return removed, eris.Wrapf(err, "session: remove endpoint map %s", e.ID)
		}
		removed = append(removed, e.ID)
	}
	s.log.Info("sessions rotated",
		zap.Int("kept", keep),
		zap.Strings("removed", removed))
	return removed, nil
}
