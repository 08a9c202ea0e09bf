package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/iurnickita/paybot/internal/model"
)

const (
	accountsFile = "users.json"
	plansFile    = "plans.json"
)

// fileStore keeps each collection in one JSON file. Writes go to a temp file in the same
// directory and are renamed over the old one, so a crash leaves either snapshot intact.
type fileStore struct {
	mu  sync.Mutex
	dir string
}

func newFileStore(dir string) (*fileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileStore{dir: dir}, nil
}

func (s *fileStore) LoadAccounts(_ context.Context) (map[string]*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := map[string]*model.Account{}
	if err := s.read(accountsFile, &accounts); err != nil {
		return nil, err
	}
	for key, acc := range accounts {
		if acc == nil {
			delete(accounts, key)
			continue
		}
		acc.Key = key
		acc.Normalize()
	}
	return accounts, nil
}

func (s *fileStore) SaveAccounts(ctx context.Context, accounts map[string]*model.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(accountsFile, accounts)
}

func (s *fileStore) LoadPlans(_ context.Context) (map[string]model.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plans := map[string]model.Plan{}
	if err := s.read(plansFile, &plans); err != nil {
		return nil, err
	}
	return clonePlans(plans), nil
}

func (s *fileStore) SavePlans(ctx context.Context, plans map[string]model.Plan) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(plansFile, plans)
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) read(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func (s *fileStore) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(s.dir, name))
}
