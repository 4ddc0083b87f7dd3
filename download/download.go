// Package download fetches published exam exports from the open data portal.
package download

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/data-for-good-bg/semantic-schools/fetch"
)

// Resource is one line of a resource list.
type Resource struct {
	Name string
	ID   string
}

// FileName is where the resource is stored inside the download directory.
func (r Resource) FileName() string {
	return fmt.Sprintf("%s-%s.csv", r.Name, r.ID)
}

// ParseList reads "name,resource_id" lines. Blank lines and lines starting
// with # are ignored, as are lines without a resource id.
func ParseList(r io.Reader) ([]Resource, error) {
	var out []Resource
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, id, ok := strings.Cut(line, ",")
		if !ok || strings.Contains(id, ",") {
			return nil, fmt.Errorf("line %d: want name,resource_id, got %q", lineNo, line)
		}
		name, id = strings.TrimSpace(name), strings.TrimSpace(id)
		if id == "" {
			continue
		}
		out = append(out, Resource{Name: name, ID: id})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Result tells what happened to one resource.
type Result struct {
	Resource   Resource
	Path       string
	Downloaded bool
}

// Downloader saves resources into a directory.
type Downloader struct {
	client  *fetch.Client
	baseURL string
	dir     string
	force   bool
	logger  *slog.Logger
}

// NewDownloader creates a downloader. With force, existing files are fetched again.
func NewDownloader(client *fetch.Client, baseURL, dir string, force bool, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		dir:     dir,
		force:   force,
		logger:  logger,
	}
}

// URL is the CSV download address of a resource.
func (d *Downloader) URL(r Resource) string {
	return fmt.Sprintf("%s/resource/download/%s/csv", d.baseURL, r.ID)
}

// Download fetches every resource and stops at the first failure.
func (d *Downloader) Download(ctx context.Context, resources []Resource) ([]Result, error) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	results := make([]Result, 0, len(resources))
	for _, r := range resources {
		res, err := d.download(ctx, r)
		if err != nil {
			return results, fmt.Errorf("download %s: %w", r.Name, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (d *Downloader) download(ctx context.Context, r Resource) (Result, error) {
	target := filepath.Join(d.dir, r.FileName())
	res := Result{Resource: r, Path: target}

	if !d.force {
		_, err := os.Stat(target)
		if err == nil {
			d.logger.Info("Resource already downloaded", "resource", r.ID, "path", target)
			return res, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return res, err
		}
	}

	url := d.URL(r)
	d.logger.Info("Downloading", "url", url, "path", target)
	data, err := d.client.Get(ctx, url, nil)
	if err != nil {
		return res, err
	}
	if err := writeFile(target, data); err != nil {
		return res, err
	}
	res.Downloaded = true
	return res, nil
}

// writeFile writes through a temporary file so a failed download leaves nothing behind.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.part")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
