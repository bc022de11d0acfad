package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store persists conversations between runs.
type Store interface {
	Save(conv *Conversation) error
	Load(id string) (*Conversation, error)
	List() ([]*Conversation, error)
	Delete(id string) error
}

// FileStore keeps one JSON file per conversation in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversation store: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(id string) string {
	// Ids are uuids we generate, but never trust them as path components.
	safe := strings.ReplaceAll(id, string(filepath.Separator), "_")
	return filepath.Join(s.dir, safe+".json")
}

// Save writes the conversation atomically via a temp file rename.
func (s *FileStore) Save(conv *Conversation) error {
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal conversation %s: %w", conv.ID, err)
	}
	tmp := s.path(conv.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write conversation %s: %w", conv.ID, err)
	}
	if err := os.Rename(tmp, s.path(conv.ID)); err != nil {
		return fmt.Errorf("rename conversation %s: %w", conv.ID, err)
	}
	return nil
}

// Load reads one conversation by id.
func (s *FileStore) Load(id string) (*Conversation, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("read conversation %s: %w", id, err)
	}
	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("parse conversation %s: %w", id, err)
	}
	return &conv, nil
}

// List loads every stored conversation, skipping unreadable files.
func (s *FileStore) List() ([]*Conversation, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list conversation store: %w", err)
	}
	var convs []*Conversation
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var conv Conversation
		if err := json.Unmarshal(data, &conv); err != nil {
			continue
		}
		if conv.ID == "" {
			continue
		}
		convs = append(convs, &conv)
	}
	return convs, nil
}

// Delete removes a conversation file. Missing files are not an error.
func (s *FileStore) Delete(id string) error {
	err := os.Remove(s.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	return nil
}
