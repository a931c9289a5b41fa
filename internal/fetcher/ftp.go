package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures the FTP source.
type FTPOptions struct {
	Timeout time.Duration
}

// FTPSource downloads extracts from a DMS FTP drop.
type FTPSource struct {
	opts FTPOptions
}

// NewFTPSource creates a new FTPSource with the given options.
func NewFTPSource(opts FTPOptions) *FTPSource {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &FTPSource{opts: opts}
}

type ftpTarget struct {
	host     string
	path     string
	user     string
	password string
}

// parseFTPURL extracts host (with port), path, and credentials from an FTP URL.
// Without userinfo the login is anonymous.
func parseFTPURL(rawURL string) (ftpTarget, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ftpTarget{}, eris.Wrap(err, "parse ftp url")
	}
	if u.Scheme != "ftp" {
		return ftpTarget{}, eris.Errorf("expected ftp scheme, got %q", u.Scheme)
	}

	t := ftpTarget{
		host:     u.Host,
		path:     u.Path,
		user:     "anonymous",
		password: "anonymous@",
	}
	if _, _, splitErr := net.SplitHostPort(t.host); splitErr != nil {
		t.host = net.JoinHostPort(t.host, "21")
	}
	if t.path == "" {
		return ftpTarget{}, eris.New("empty path in ftp url")
	}
	if u.User != nil {
		t.user = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			t.password = pw
		}
	}

	return t, nil
}

// ftpConnReader wraps an FTP response and connection so that closing the reader
// also closes the FTP response and disconnects from the server.
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
		return eris.Wrap(respErr, "close ftp response")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "quit ftp connection")
	}
	return nil
}

// Open connects to the FTP server, retrieves the file, and returns a reader.
// The caller must close the returned ReadCloser to release the FTP connection.
func (f *FTPSource) Open(ctx context.Context, ftpURL string) (io.ReadCloser, error) {
	t, err := parseFTPURL(ftpURL)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("ftp: connecting",
		zap.String("host", t.host),
		zap.String("path", t.path),
		zap.String("user", t.user),
	)

	conn, err := ftp.Dial(t.host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "ftp dial")
	}

	if err := conn.Login(t.user, t.password); err != nil {
		conn.Quit() //nolint:errcheck
		return nil, eris.Wrap(err, "ftp login")
	}

	resp, err := conn.Retr(t.path)
	if err != nil {
		conn.Quit() //nolint:errcheck
		return nil, eris.Wrap(err, "ftp retrieve")
	}

	return &ftpConnReader{resp: resp, conn: conn}, nil
}

// DownloadToFile copies the extract at ftpURL to a local file, keeping a copy
// of what was ingested. Returns bytes written.
func (f *FTPSource) DownloadToFile(ctx context.Context, ftpURL string, path string) (int64, error) {
	rc, err := f.Open(ctx, ftpURL)
	if err != nil {
		return 0, err
	}
	defer rc.Close() //nolint:errcheck

	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, rc)
	if err != nil {
		return n, eris.Wrap(err, "write file")
	}

	return n, nil
}
