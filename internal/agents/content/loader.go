// Package content loads tutoring material from JSON files.
//
// Two files are read from the content directory:
//
//	calculus_content.json  [{"id": "1", "content": "..."}]
//	calculus_example.json  [{"content_id": "1", "example": "..."}]
//
// Ids may be JSON strings or numbers.
package content

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

const (
	ContentFile = "calculus_content.json"
	ExampleFile = "calculus_example.json"
)

// ErrNotFound is returned when no entry matches the requested id.
var ErrNotFound = errors.New("content not found")

//go:embed data/*.json
var builtin embed.FS

// ID accepts both "1" and 1 in JSON.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if _, err := strconv.Atoi(s); err != nil {
		return fmt.Errorf("invalid id %s", b)
	}
	*id = ID(s)
	return nil
}

type contentItem struct {
	ID      ID     `json:"id"`
	Content string `json:"content"`
}

type exampleItem struct {
	ContentID ID     `json:"content_id"`
	Example   string `json:"example"`
}

// Loader reads content files on every call, so edits show up without a restart.
type Loader struct {
	fsys fs.FS
}

// New returns a loader over dir. An empty dir uses the built-in calculus course.
func New(dir string) *Loader {
	if dir == "" {
		sub, _ := fs.Sub(builtin, "data")
		return &Loader{fsys: sub}
	}
	return &Loader{fsys: os.DirFS(dir)}
}

// NewFS returns a loader over an arbitrary filesystem.
func NewFS(fsys fs.FS) *Loader {
	return &Loader{fsys: fsys}
}

// Content returns the text of topic id.
func (l *Loader) Content(id int) (string, error) {
	var items []contentItem
	if err := l.read(ContentFile, &items); err != nil {
		return "", err
	}
	for _, it := range items {
		if it.ID == key(id) {
			return it.Content, nil
		}
	}
	return "", fmt.Errorf("%w: topic %d", ErrNotFound, id)
}

// Example returns the worked example of topic id.
func (l *Loader) Example(id int) (string, error) {
	var items []exampleItem
	if err := l.read(ExampleFile, &items); err != nil {
		return "", err
	}
	for _, it := range items {
		if it.ContentID == key(id) {
			return it.Example, nil
		}
	}
	return "", fmt.Errorf("%w: example for topic %d", ErrNotFound, id)
}

// Topics returns how many topics the content file holds.
func (l *Loader) Topics() (int, error) {
	var items []contentItem
	if err := l.read(ContentFile, &items); err != nil {
		return 0, err
	}
	return len(items), nil
}

func (l *Loader) read(name string, out any) error {
	data, err := fs.ReadFile(l.fsys, name)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

func key(id int) ID { return ID(strconv.Itoa(id)) }
