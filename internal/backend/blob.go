package backend

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// BlobStore holds binary objects such as gallery images and avatars.
type BlobStore interface {
	// Upload stores data at path and returns its public URL.
	Upload(ctx context.Context, path string, data []byte) (string, error)
	// List returns the URLs of all objects below prefix in path order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// FileBlobStore keeps blobs on a filesystem rooted at root and serves them
// from baseURL. Without a baseURL it hands out file:// URLs.
type FileBlobStore struct {
	fs      afero.Fs
	root    string
	baseURL string
}

func NewFileBlobStore(fsys afero.Fs, root, baseURL string) *FileBlobStore {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &FileBlobStore{fs: fsys, root: root, baseURL: strings.TrimRight(baseURL, "/")}
}

func (b *FileBlobStore) Upload(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, err := CleanPath(name)
	if err != nil {
		return "", err
	}
	full := filepath.Join(b.root, filepath.FromSlash(clean))
	if err := b.fs.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	if err := afero.WriteFile(b.fs, full, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob %s: %w", clean, err)
	}
	return b.url(clean)
}

func (b *FileBlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	clean, err := CleanPath(prefix)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(b.root, filepath.FromSlash(clean))
	names := make([]string, 0)
	err = afero.Walk(b.fs, dir, func(p string, info fs.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(b.root, p)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if exists, _ := afero.DirExists(b.fs, dir); !exists {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list blobs %s: %w", clean, err)
	}
	sort.Strings(names)
	urls := make([]string, 0, len(names))
	for _, name := range names {
		u, err := b.url(name)
		if err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, nil
}

func (b *FileBlobStore) url(name string) (string, error) {
	if b.baseURL == "" {
		abs := path.Join("/", filepath.ToSlash(b.root), name)
		return (&url.URL{Scheme: "file", Path: abs}).String(), nil
	}
	return url.JoinPath(b.baseURL, strings.Split(name, "/")...)
}
