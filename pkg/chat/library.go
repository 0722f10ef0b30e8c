package chat

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tylxr59/prattle/pkg/logging"
)

// Library is the durable store of conversations. Each conversation is a
// YAML document under the base directory; conversations in a folder live in
// a subdirectory named after it. Writes are atomic via a temporary file.
type Library struct {
	baseDir string
	logger  *logging.Logger

	mu     sync.RWMutex
	loaded map[string]*Conversation
}

// NewLibrary opens a library rooted at baseDir, creating it if needed.
func NewLibrary(baseDir string) (*Library, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("chat: init library directory %s: %w", baseDir, err)
	}
	logger, _ := logging.NewLogger("library")
	return &Library{
		baseDir: baseDir,
		logger:  logger,
		loaded:  make(map[string]*Conversation),
	}, nil
}

// BaseDir returns the library's root directory.
func (l *Library) BaseDir() string {
	return l.baseDir
}

func (l *Library) pathFor(c *Conversation) (string, error) {
	return l.pathForIDFolder(c.ID, c.Folder)
}

func (l *Library) pathForIDFolder(id, folder string) (string, error) {
	if id == "" || strings.ContainsAny(id, "/\\") {
		return "", fmt.Errorf("chat: invalid conversation id %q", id)
	}
	dir := l.baseDir
	if folder != "" {
		if strings.ContainsAny(folder, "/\\") || folder == "." || folder == ".." {
			return "", fmt.Errorf("chat: invalid folder %q", folder)
		}
		dir = filepath.Join(dir, folder)
	}
	return filepath.Join(dir, id+".yaml"), nil
}

// Save persists the conversation to disk, creating its folder directory if
// needed. The write goes to a temporary file first so a crash never leaves
// a truncated document behind.
func (l *Library) Save(c *Conversation) error {
	path, err := l.pathFor(c)
	if err != nil {
		return err
	}
	data, err := Serialize(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("chat: create folder for %s: %w", c.ID, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("chat: write temp file for %s: %w", c.ID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("chat: atomic rename %s: %w", path, err)
	}

	l.mu.Lock()
	l.loaded[c.ID] = c
	l.mu.Unlock()
	return nil
}

// Load returns the conversation with the given id, reading it from disk if
// it is not already resident.
func (l *Library) Load(id string) (*Conversation, error) {
	l.mu.RLock()
	if c, ok := l.loaded[id]; ok {
		l.mu.RUnlock()
		return c, nil
	}
	l.mu.RUnlock()

	path, folder, err := l.find(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("chat: read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	c.Folder = folder

	l.mu.Lock()
	l.loaded[c.ID] = c
	l.mu.Unlock()
	return c, nil
}

// find locates a conversation file by id across the base directory and its
// folder subdirectories.
func (l *Library) find(id string) (path, folder string, err error) {
	p, err := l.pathForIDFolder(id, "")
	if err != nil {
		return "", "", err
	}
	if _, statErr := os.Stat(p); statErr == nil {
		return p, "", nil
	}
	folders, err := l.Folders()
	if err != nil {
		return "", "", err
	}
	for _, f := range folders {
		p, err := l.pathForIDFolder(id, f)
		if err != nil {
			return "", "", err
		}
		if _, statErr := os.Stat(p); statErr == nil {
			return p, f, nil
		}
	}
	return "", "", fmt.Errorf("%w: %s", ErrNotFound, id)
}

// ConversationInfo is a listing entry. Listing parses each document rather
// than keeping a separate index file, so the directory is the source of
// truth.
type ConversationInfo struct {
	ID        string
	Title     string
	Model     string
	Folder    string
	UpdatedAt time.Time
}

// List returns all conversations on disk, newest first. Corrupt or
// unreadable files are skipped with a log line rather than failing the
// whole listing.
func (l *Library) List() ([]*ConversationInfo, error) {
	var out []*ConversationInfo
	if err := l.listDir(l.baseDir, "", &out); err != nil {
		return nil, err
	}
	folders, err := l.Folders()
	if err != nil {
		return nil, err
	}
	for _, f := range folders {
		if err := l.listDir(filepath.Join(l.baseDir, f), f, &out); err != nil {
			return nil, err
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (l *Library) listDir(dir, folder string, out *[]*ConversationInfo) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("chat: list %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			l.logger.Warnf("skipping unreadable conversation file %s: %v", path, err)
			continue
		}
		c, err := Parse(data)
		if err != nil {
			l.logger.Warnf("skipping corrupt conversation file %s: %v", path, err)
			continue
		}
		*out = append(*out, &ConversationInfo{
			ID:        c.ID,
			Title:     c.Title,
			Model:     c.Model,
			Folder:    folder,
			UpdatedAt: c.UpdatedAt,
		})
	}
	return nil
}

// Folders returns the folder names present in the library, sorted.
func (l *Library) Folders() ([]string, error) {
	entries, err := os.ReadDir(l.baseDir)
	if err != nil {
		return nil, fmt.Errorf("chat: list folders: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Move relocates a conversation to a different folder. An empty folder
// moves it to the library root.
func (l *Library) Move(id, folder string) error {
	c, err := l.Load(id)
	if err != nil {
		return err
	}
	oldPath, _, err := l.find(id)
	if err != nil {
		return err
	}
	c.SetFolder(folder)
	if err := l.Save(c); err != nil {
		return err
	}
	newPath, err := l.pathFor(c)
	if err != nil {
		return err
	}
	if oldPath != newPath {
		if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("chat: remove old file %s: %w", oldPath, err)
		}
	}
	return nil
}

// Delete removes a conversation from disk and from the resident cache.
func (l *Library) Delete(id string) error {
	path, _, err := l.find(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("chat: delete %s: %w", path, err)
	}
	l.mu.Lock()
	delete(l.loaded, id)
	l.mu.Unlock()
	return nil
}
