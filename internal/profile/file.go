package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrNoProfile is returned when the profile file does not exist.
var ErrNoProfile = errors.New("profile: no profile file")

type fileRecord struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	ProlificID string `json:"prolific_id"`
}

// FileStore keeps the profile as a small JSON file with the password rotated.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

func (s *FileStore) Load(_ context.Context) (User, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return User{}, ErrNoProfile
	}
	if err != nil {
		return User{}, fmt.Errorf("read profile: %w", err)
	}
	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return User{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	u := User{
		Email:         rec.Email,
		Password:      Rotate(rec.Password, passwordShift, true),
		ParticipantID: rec.ProlificID,
	}
	if err := u.Validate(); err != nil {
		return User{}, fmt.Errorf("profile %s: %w", s.path, err)
	}
	return u, nil
}

func (s *FileStore) Save(_ context.Context, u User) error {
	data, err := json.MarshalIndent(fileRecord{
		Email:      u.Email,
		Password:   Rotate(u.Password, passwordShift, false),
		ProlificID: u.ParticipantID,
	}, "", "    ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}
