package ingest

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/atlas-utilities/billing-cli/internal/model"
	"github.com/atlas-utilities/billing-cli/internal/resilience"
)

// FTPOptions configures the FTP puller.
type FTPOptions struct {
	Timeout    time.Duration
	RatePerSec int
	Retry      resilience.RetryConfig
}

// FTPPuller downloads crew sheet drops over FTP. Pulls are rate limited so a
// list of drops does not hammer the field office server, and retried on
// transient replies.
type FTPPuller struct {
	opts    FTPOptions
	limiter *rate.Limiter
}

// NewFTPPuller creates an FTPPuller with the given options.
func NewFTPPuller(opts FTPOptions) *FTPPuller {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 2
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	return &FTPPuller{
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.RatePerSec),
	}
}

// parseFTPURL extracts host (with port) and path from an FTP URL.
func parseFTPURL(rawURL string) (host string, path string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "ingest: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("ingest: expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	path = u.Path
	if path == "" {
		return "", "", eris.New("ingest: empty path in ftp url")
	}

	return host, path, nil
}

// ftpConnReader ties an FTP response to its connection so that closing the
// reader also disconnects from the server.
type ftpConnReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpConnReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpConnReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "ingest: close ftp response")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "ingest: quit ftp connection")
	}
	return nil
}

// Pull connects to the FTP server, retrieves the file, and returns a reader.
// The caller must close the returned ReadCloser to release the connection.
func (f *FTPPuller) Pull(ctx context.Context, ftpURL string) (io.ReadCloser, error) {
	host, path, err := parseFTPURL(ftpURL)
	if err != nil {
		return nil, err
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "ingest: rate limiter wait")
	}

	zap.L().Debug("ftp: connecting", zap.String("host", host), zap.String("path", path))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "ingest: ftp dial")
	}

	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		conn.Quit()
		return nil, eris.Wrap(err, "ingest: ftp login")
	}

	resp, err := conn.Retr(path)
	if err != nil {
		conn.Quit()
		return nil, eris.Wrap(err, "ingest: ftp retrieve")
	}

	return &ftpConnReader{resp: resp, conn: conn}, nil
}

// PullToFile downloads the FTP URL into dir, retrying transient failures,
// and returns the local path.
func (f *FTPPuller) PullToFile(ctx context.Context, ftpURL, dir string) (string, error) {
	_, remotePath, err := parseFTPURL(ftpURL)
	if err != nil {
		return "", err
	}
	local := filepath.Join(dir, filepath.Base(remotePath))

	retry := f.opts.Retry
	retry.OnRetry = resilience.RetryLogger("ftp", "pull_sheet")

	err = resilience.Do(ctx, retry, func(ctx context.Context) error {
		rc, err := f.Pull(ctx, ftpURL)
		if err != nil {
			return err
		}
		defer rc.Close() //nolint:errcheck

		file, err := os.Create(local)
		if err != nil {
			return eris.Wrap(err, "ingest: create local file")
		}
		defer file.Close() //nolint:errcheck

		if _, err := io.Copy(file, rc); err != nil {
			return eris.Wrap(err, "ingest: write local file")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return local, nil
}

// PullRows downloads an FTP drop into a scratch directory and parses it.
func (f *FTPPuller) PullRows(ctx context.Context, ftpURL string, opts Options) ([]model.RawRow, error) {
	dir, err := os.MkdirTemp("", "billing-ingest-*")
	if err != nil {
		return nil, eris.Wrap(err, "ingest: temp dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	local, err := f.PullToFile(ctx, ftpURL, dir)
	if err != nil {
		return nil, err
	}
	return ReadFile(local, opts)
}
