// Package fetcher retrieves provider rate sheet files from remote drops.
package fetcher

import (
	"context"
	"io"
	"net"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fleetscore/ratesheet-cli/internal/config"
)

// RemoteFile describes one rate sheet available on the provider drop.
type RemoteFile struct {
	Name string
	Size uint64
	Time time.Time
}

// FTPFetcher pulls rate sheets from a provider's FTP drop directory.
type FTPFetcher struct {
	cfg config.FTPConfig
}

// NewFTP creates an FTPFetcher for the configured drop.
func NewFTP(cfg config.FTPConfig) (*FTPFetcher, error) {
	if cfg.Host == "" {
		return nil, eris.New("fetcher: ftp host not configured")
	}
	if cfg.TimeoutSecs <= 0 {
		cfg.TimeoutSecs = 30
	}
	return &FTPFetcher{cfg: cfg}, nil
}

// hostPort appends the default FTP port when the configured host has none.
func hostPort(host string) string {
	if _, _, err := net.SplitHostPort(host); err != nil {
		return net.JoinHostPort(host, "21")
	}
	return host
}

// isRateSheet reports whether a drop entry looks like a rate sheet file.
func isRateSheet(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv", ".xlsx":
		return true
	}
	return false
}

func (f *FTPFetcher) connect(ctx context.Context) (*ftp.ServerConn, error) {
	host := hostPort(f.cfg.Host)
	zap.L().Debug("ftp: connecting", zap.String("host", host), zap.String("dir", f.cfg.Dir))

	conn, err := ftp.Dial(host,
		ftp.DialWithTimeout(time.Duration(f.cfg.TimeoutSecs)*time.Second),
		ftp.DialWithContext(ctx),
	)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: ftp dial")
	}

	user, pass := f.cfg.User, f.cfg.Password
	if user == "" {
		user, pass = "anonymous", "anonymous@"
	}
	if err := conn.Login(user, pass); err != nil {
		conn.Quit()
		return nil, eris.Wrap(err, "fetcher: ftp login")
	}
	return conn, nil
}

// List returns the rate sheet files present in the drop directory, newest
// first.
func (f *FTPFetcher) List(ctx context.Context) ([]RemoteFile, error) {
	conn, err := f.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	entries, err := conn.List(f.cfg.Dir)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: ftp list %s", f.cfg.Dir)
	}

	var files []RemoteFile
	for _, e := range entries {
		if e.Type != ftp.EntryTypeFile || !isRateSheet(e.Name) {
			continue
		}
		files = append(files, RemoteFile{Name: e.Name, Size: e.Size, Time: e.Time})
	}
	sortNewestFirst(files)
	return files, nil
}

// Download retrieves one named rate sheet from the drop directory into
// memory. Rate sheets are bounded by upload limits elsewhere, so buffering
// the whole file is acceptable here.
func (f *FTPFetcher) Download(ctx context.Context, name string) ([]byte, error) {
	conn, err := f.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	full := path.Join(f.cfg.Dir, path.Base(name))
	resp, err := conn.Retr(full)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: ftp retrieve %s", full)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: ftp read %s", full)
	}
	zap.L().Info("ftp: downloaded", zap.String("file", name), zap.Int("bytes", len(data)))
	return data, nil
}

func sortNewestFirst(files []RemoteFile) {
	sort.Slice(files, func(i, j int) bool {
		return files[i].Time.After(files[j].Time)
	})
}
