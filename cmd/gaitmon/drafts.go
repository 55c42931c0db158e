package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/gaitmon/internal/draftstore"
)

const lastSessionKey = "last-session"

// sessionDraft is the remembered setup of the last monitoring run.
type sessionDraft struct {
	SessionName string   `json:"session_name,omitempty"`
	SubjectID   string   `json:"subject_id,omitempty"`
	DeviceIDs   []string `json:"device_ids"`
	StartedAt   int64    `json:"started_at"`
}

// openDraftStore opens the draft store under dir, defaulting to the user
// config directory when dir is empty.
func openDraftStore(dir string, logger *logrus.Logger) (*draftstore.Store, error) {
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(base, "gaitmon", "drafts")
	}
	return draftstore.New(dir, logger)
}

// saveSessionDraft remembers this run's setup so a future invocation can
// offer it back. Best-effort: a failed save never blocks monitoring.
func saveSessionDraft(dir string, draft sessionDraft, logger *logrus.Logger) {
	store, err := openDraftStore(dir, logger)
	if err != nil {
		logger.WithError(err).Warn("Failed to open draft store, skipping session draft")
		return
	}
	draft.StartedAt = time.Now().UnixMilli()
	if err := store.Save(lastSessionKey, draft); err != nil {
		logger.WithError(err).Warn("Failed to save session draft")
	}
}

// loadSessionDraft retrieves the previous run's setup. Absence is normal
// and reported as ok=false.
func loadSessionDraft(dir string, logger *logrus.Logger) (sessionDraft, bool) {
	store, err := openDraftStore(dir, logger)
	if err != nil {
		logger.WithError(err).Warn("Failed to open draft store")
		return sessionDraft{}, false
	}

	var draft sessionDraft
	found, err := store.Load(lastSessionKey, &draft)
	if err != nil || !found {
		if keys, kerr := store.Keys(); kerr == nil && len(keys) > 0 {
			logger.WithField("drafts", keys).Debug("No last-session draft, other drafts present")
		}
		return sessionDraft{}, false
	}
	return draft, true
}
