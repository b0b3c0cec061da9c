package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/slotclaim/slotclaim/internal/store"
	"github.com/slotclaim/slotclaim/pkg/model"
)

// ErrNoSession is returned by a CookieStore that holds no cookies.
var ErrNoSession = errors.New("session: no stored cookies")

// CookieStore persists the harvested browser cookies between runs.
type CookieStore interface {
	Load(ctx context.Context) (model.Cookies, error)
	Save(ctx context.Context, cookies model.Cookies) error
	Delete(ctx context.Context) error
}

// FileCookieStore keeps cookies as an indented JSON array at a fixed path.
type FileCookieStore struct {
	path string
}

func NewFileCookieStore(path string) *FileCookieStore {
	return &FileCookieStore{path: path}
}

func (s *FileCookieStore) Path() string { return s.path }

func (s *FileCookieStore) Load(_ context.Context) (model.Cookies, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	var cookies model.Cookies
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if len(cookies) == 0 {
		return nil, ErrNoSession
	}
	return cookies, nil
}

// Save writes through a temp file so a crash never leaves a truncated file behind.
func (s *FileCookieStore) Save(_ context.Context, cookies model.Cookies) error {
	data, err := json.MarshalIndent(cookies, "", "    ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".cookies-*.json")
	if err != nil {
		return fmt.Errorf("write cookies: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write cookies: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("write cookies: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write cookies: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *FileCookieStore) Delete(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// RedisCookieStore keeps one JSON value per profile key with a TTL.
type RedisCookieStore struct {
	kv  store.Store
	key string
	ttl time.Duration
}

// NewRedisCookieStore stores cookies under "slotclaim:cookies:<profile>".
func NewRedisCookieStore(kv store.Store, profile string, ttl time.Duration) *RedisCookieStore {
	return &RedisCookieStore{
		kv:  kv,
		key: "slotclaim:cookies:" + profile,
		ttl: ttl,
	}
}

func (s *RedisCookieStore) Key() string { return s.key }

func (s *RedisCookieStore) Load(ctx context.Context) (model.Cookies, error) {
	var cookies model.Cookies
	err := s.kv.GetJSON(ctx, s.key, &cookies)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	if len(cookies) == 0 {
		return nil, ErrNoSession
	}
	return cookies, nil
}

func (s *RedisCookieStore) Save(ctx context.Context, cookies model.Cookies) error {
	return s.kv.SetJSON(ctx, s.key, cookies, s.ttl)
}

func (s *RedisCookieStore) Delete(ctx context.Context) error {
	return s.kv.Delete(ctx, s.key)
}
