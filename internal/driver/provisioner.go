package driver

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// maxEntrySize bounds a single extracted file.
const maxEntrySize = 256 << 20

// Options locates the driver on disk and upstream.
type Options struct {
	Dir         string // install directory
	Name        string // executable name, e.g. "chromedriver"
	VersionURL  string // returns the latest version as plain text
	DownloadURL string // %s is replaced by the version
	Timeout     time.Duration
}

// Provisioner makes sure a browser automation driver is present locally.
type Provisioner struct {
	logger *zap.Logger
	http   *resty.Client
	opts   Options
}

func NewProvisioner(logger *zap.Logger, rt http.RoundTripper, opts Options) *Provisioner {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	client := resty.New()
	if rt != nil {
		client.SetTransport(rt)
	}
	client.SetTimeout(opts.Timeout)
	return &Provisioner{logger: logger, http: client, opts: opts}
}

// Path is where the executable lives once provisioned.
func (p *Provisioner) Path() string {
	return filepath.Join(p.opts.Dir, p.opts.Name)
}

// Ensure returns the executable path, downloading and unpacking the latest
// release first when it is missing.
func (p *Provisioner) Ensure(ctx context.Context) (string, error) {
	target := p.Path()
	if _, err := os.Stat(target); err == nil {
		return target, nil
	}

	version, err := p.LatestVersion(ctx)
	if err != nil {
		return "", err
	}
	p.logger.Info("driver.downloading", zap.String("version", version), zap.String("dir", p.opts.Dir))

	if err := os.MkdirAll(p.opts.Dir, 0o755); err != nil {
		return "", err
	}
	zipPath := target + ".zip"
	if err := p.download(ctx, fmt.Sprintf(p.opts.DownloadURL, version), zipPath); err != nil {
		return "", err
	}
	defer os.Remove(zipPath)

	extracted, err := Unzip(zipPath, p.opts.Dir)
	if err != nil {
		return "", fmt.Errorf("unzip driver: %w", err)
	}
	if err := p.place(extracted); err != nil {
		return "", err
	}
	if err := os.Chmod(target, 0o755); err != nil {
		return "", err
	}

	p.logger.Info("driver.ready", zap.String("path", target), zap.String("version", version))
	return target, nil
}

// LatestVersion reads the first whitespace-separated token of the version endpoint.
func (p *Provisioner) LatestVersion(ctx context.Context) (string, error) {
	res, err := p.http.R().
		SetContext(ctx).
		Get(p.opts.VersionURL)
	if err != nil {
		return "", fmt.Errorf("fetch driver version: %w", err)
	}
	if res.IsError() {
		return "", fmt.Errorf("fetch driver version: status %d", res.StatusCode())
	}
	fields := strings.Fields(string(res.Body()))
	if len(fields) == 0 {
		return "", errors.New("failed to retrieve the driver version: empty response")
	}
	return fields[0], nil
}

func (p *Provisioner) download(ctx context.Context, url, dest string) error {
	res, err := p.http.R().
		SetContext(ctx).
		SetOutput(dest).
		Get(url)
	if err != nil {
		os.Remove(dest)
		return fmt.Errorf("download driver: %w", err)
	}
	if res.IsError() {
		os.Remove(dest)
		return fmt.Errorf("download driver: status %d from %s", res.StatusCode(), url)
	}
	return nil
}

// place moves a nested executable (archives often wrap it in a folder) to Path.
func (p *Provisioner) place(extracted []string) error {
	target := p.Path()
	if _, err := os.Stat(target); err == nil {
		return nil
	}
	for _, f := range extracted {
		base := filepath.Base(f)
		if base == p.opts.Name || base == p.opts.Name+".exe" {
			return os.Rename(f, target)
		}
	}
	return fmt.Errorf("archive does not contain %s", p.opts.Name)
}

// Unzip extracts src into dir and returns the extracted file paths. Entries
// that would land outside dir are rejected.
func Unzip(src, dir string) ([]string, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, f := range r.File {
		name := path.Clean(strings.ReplaceAll(f.Name, `\`, "/"))
		dest := filepath.Join(root, filepath.FromSlash(name))
		if dest != root && !strings.HasPrefix(dest, root+string(os.PathSeparator)) {
			return nil, fmt.Errorf("illegal path in archive: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return nil, err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, err
		}
		if err := extractFile(f, dest); err != nil {
			return nil, err
		}
		files = append(files, dest)
	}
	return files, nil
}

func extractFile(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	n, err := io.Copy(out, io.LimitReader(rc, maxEntrySize+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > maxEntrySize {
		err = fmt.Errorf("%s exceeds %d bytes", f.Name, maxEntrySize)
	}
	return err
}
