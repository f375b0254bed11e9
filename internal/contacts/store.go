// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package contacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/jinjernot/eloqua/internal/models"
)

// Store persists the whole cache as one unit.
type Store interface {
	Load() (map[string]models.ContactRecord, error)
	Save(entries map[string]models.ContactRecord) error
}

// FileStore keeps the cache as a gzip-compressed JSON object keyed by
// contact id. LegacyPath, when set, is an uncompressed JSON cache from
// older releases that is migrated on first load.
type FileStore struct {
	Path       string
	LegacyPath string
}

// Load reads the cache. A missing file yields an empty cache.
func (s *FileStore) Load() (map[string]models.ContactRecord, error) {
	entries, err := readGzipJSON(s.Path)
	switch {
	case err == nil:
		slog.Info("contact cache loaded", "path", s.Path, "contacts", len(entries))
		return entries, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	if s.LegacyPath != "" {
		legacy, err := readPlainJSON(s.LegacyPath)
		switch {
		case err == nil:
			slog.Info("migrating uncompressed contact cache", "from", s.LegacyPath, "to", s.Path, "contacts", len(legacy))
			if err := s.Save(legacy); err != nil {
				return nil, fmt.Errorf("migrate legacy cache: %w", err)
			}
			return legacy, nil
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}
	}

	slog.Info("no contact cache found, starting empty", "path", s.Path)
	return map[string]models.ContactRecord{}, nil
}

// Save rewrites the whole cache atomically.
func (s *FileStore) Save(entries map[string]models.ContactRecord) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".contact-cache-*")
	if err != nil {
		return fmt.Errorf("create temp cache: %w", err)
	}
	defer os.Remove(tmp.Name())

	data, err := json.Marshal(entries)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("encode cache: %w", err)
	}

	zw := gzip.NewWriter(tmp)
	if _, err := zw.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write cache: %w", err)
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("compress cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("replace cache: %w", err)
	}
	return nil
}

func readGzipJSON(path string) (map[string]models.ContactRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open compressed cache %s: %w", path, err)
	}
	defer zr.Close()

	return decodeEntries(zr, path)
}

func readPlainJSON(path string) (map[string]models.ContactRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeEntries(f, path)
}

func decodeEntries(r io.Reader, path string) (map[string]models.ContactRecord, error) {
	entries := map[string]models.ContactRecord{}
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode cache %s: %w", path, err)
	}
	for id, rec := range entries {
		if rec.ContactID == "" {
			rec.ContactID = id
			entries[id] = rec
		}
	}
	return entries, nil
}
