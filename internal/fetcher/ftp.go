package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"path"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPSource reads flyer images from a retail-partner FTP drop folder,
// e.g. ftp://flyers.example.com/incoming.
type FTPSource struct {
	host    string // host:port
	dir     string
	user    string
	pass    string
	timeout time.Duration
}

// FTPOptions configures an FTPSource.
type FTPOptions struct {
	User     string
	Password string
	Timeout  time.Duration
}

// NewFTPSource creates a source from an ftp:// URL pointing at a folder.
func NewFTPSource(rawURL string, opts FTPOptions) (*FTPSource, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return nil, eris.Errorf("fetcher: expected ftp scheme, got %q", u.Scheme)
	}

	host := u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	if opts.User == "" {
		opts.User = "anonymous"
		opts.Password = "anonymous@"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	return &FTPSource{
		host:    host,
		dir:     u.Path,
		user:    opts.User,
		pass:    opts.Password,
		timeout: opts.Timeout,
	}, nil
}

func (s *FTPSource) connect(ctx context.Context) (*ftp.ServerConn, error) {
	zap.L().Debug("ftp: connecting", zap.String("host", s.host), zap.String("dir", s.dir))

	conn, err := ftp.Dial(s.host, ftp.DialWithTimeout(s.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: ftp dial")
	}
	if err := conn.Login(s.user, s.pass); err != nil {
		conn.Quit()
		return nil, eris.Wrap(err, "fetcher: ftp login")
	}
	return conn, nil
}

// List returns the image filenames in the drop folder.
func (s *FTPSource) List(ctx context.Context) ([]string, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	entries, err := conn.List(s.dir)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: ftp list %s", s.dir)
	}

	var names []string
	for _, e := range entries {
		if e.Type != ftp.EntryTypeFile || !IsFlyerImage(e.Name) {
			continue
		}
		names = append(names, e.Name)
	}
	return names, nil
}

// ftpConnReader ties an FTP response to its connection so closing the
// reader also releases the server connection.
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
		return eris.Wrap(respErr, "fetcher: close ftp response")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "fetcher: quit ftp connection")
	}
	return nil
}

// Open retrieves one image by name. The caller must close the reader.
func (s *FTPSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := conn.Retr(path.Join(s.dir, name))
	if err != nil {
		conn.Quit()
		return nil, eris.Wrapf(err, "fetcher: ftp retrieve %s", name)
	}
	return &ftpConnReader{resp: resp, conn: conn}, nil
}
