package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileSuffix is the file name suffix of schema documents in a directory.
const FileSuffix = ".schema.yaml"

// Info identifies an available schema.
type Info struct {
	ID   string
	Name string
}

// Source provides raw schema documents by id.
type Source interface {
	Document(ctx context.Context, id string) ([]byte, error)
	List(ctx context.Context) ([]Info, error)
}

// Open fetches the document for id from src and loads it.
func Open(ctx context.Context, src Source, id string) (*Schema, error) {
	data, err := src.Document(ctx, id)
	if err != nil {
		return nil, err
	}
	s, err := Load(id, data)
	if err != nil {
		return nil, fmt.Errorf("load schema %s: %w", id, err)
	}
	return s, nil
}

// Chain asks each source in turn. The first source holding a document for
// an id wins.
type Chain []Source

// Document implements Source.
func (c Chain) Document(ctx context.Context, id string) ([]byte, error) {
	for _, src := range c {
		data, err := src.Document(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return data, err
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// List implements Source. Ids listed by an earlier source hide the same ids
// further down the chain, and missing directories list nothing.
func (c Chain) List(ctx context.Context) ([]Info, error) {
	seen := make(map[string]bool)
	var out []Info
	for _, src := range c {
		list, err := src.List(ctx)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, info := range list {
			if !seen[info.ID] {
				seen[info.ID] = true
				out = append(out, info)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DirSource reads "<id>.schema.yaml" files from a directory.
type DirSource struct {
	Dir string
}

// Document implements Source.
func (d DirSource) Document(_ context.Context, id string) ([]byte, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	data, err := os.ReadFile(filepath.Join(d.Dir, id+FileSuffix))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", id, err)
	}
	return data, nil
}

// List implements Source. Unparseable files are skipped.
func (d DirSource) List(_ context.Context) ([]Info, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	var out []Info
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), FileSuffix) {
			continue
		}
		id := strings.TrimSuffix(e.Name(), FileSuffix)
		data, err := os.ReadFile(filepath.Join(d.Dir, e.Name()))
		if err != nil {
			continue
		}
		n, err := Parse(data)
		if err != nil {
			continue
		}
		out = append(out, Info{ID: id, Name: n.StringOr("schema/name", id)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Watch calls onChange with the schema id whenever a schema file in the
// directory is written. It returns when ctx is done.
func (d DirSource) Watch(ctx context.Context, log *slog.Logger, onChange func(id string)) error {
	if log == nil {
		log = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(d.Dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		const debounceDelay = 100 * time.Millisecond
		timers := make(map[string]*time.Timer)
		for {
			select {
			case <-ctx.Done():
				for _, t := range timers {
					t.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				name := filepath.Base(event.Name)
				if !strings.HasSuffix(name, FileSuffix) || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				id := strings.TrimSuffix(name, FileSuffix)
				if t, ok := timers[id]; ok {
					t.Stop()
				}
				timers[id] = time.AfterFunc(debounceDelay, func() { onChange(id) })
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("schema watch error", "dir", d.Dir, "error", err)
			}
		}
	}()
	return nil
}
