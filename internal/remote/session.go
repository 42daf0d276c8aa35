package remote

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path"
	"time"

	"github.com/secsy/goftp"
)

// Options configures an anonymous read-only FTP session.
type Options struct {
	Host     string
	User     string
	Password string
	Timeout  time.Duration
}

// Session holds a single logged-in control connection. All LIST and RETR
// commands of a region go through it, one at a time.
type Session struct {
	client  *goftp.Client
	raw     goftp.RawConn
	timeout time.Duration
	logger  *slog.Logger
}

// Dial connects and logs in. The context bounds only the dial itself; goftp
// applies opts.Timeout to every subsequent control operation.
func Dial(ctx context.Context, opts Options, logger *slog.Logger) (*Session, error) {
	l := logger.With(slog.String("ftp_host", opts.Host))
	cfg := goftp.Config{
		User:               opts.User,
		Password:           opts.Password,
		ConnectionsPerHost: 1,
		Timeout:            opts.Timeout,
	}

	type dialResult struct {
		client *goftp.Client
		raw    goftp.RawConn
		err    error
	}
	done := make(chan dialResult, 1)
	go func() {
		client, err := goftp.DialConfig(cfg, opts.Host)
		if err != nil {
			done <- dialResult{err: err}
			return
		}
		raw, err := client.OpenRawConn()
		if err != nil {
			client.Close()
			done <- dialResult{err: err}
			return
		}
		done <- dialResult{client: client, raw: raw}
	}()

	select {
	case <-ctx.Done():
		// The dialing goroutine cleans up after itself once it returns.
		go func() {
			if r := <-done; r.err == nil {
				r.raw.Close()
				r.client.Close()
			}
		}()
		return nil, fmt.Errorf("dial %s: %w", opts.Host, ctx.Err())
	case r := <-done:
		if r.err != nil {
			l.Error("FTP login failed.", "error", r.err)
			return nil, fmt.Errorf("dial %s: %w", opts.Host, r.err)
		}
		l.Debug("FTP session opened.")
		return &Session{client: r.client, raw: r.raw, timeout: opts.Timeout, logger: l}, nil
	}
}

// List runs LIST on dir and parses the response.
func (s *Session) List(ctx context.Context, dir string) ([]Entry, error) {
	var buf bytes.Buffer
	if err := s.transfer(ctx, "A", "LIST", dir, &buf); err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var lines []string
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read listing of %s: %w", dir, err)
	}
	entries, err := ParseListing(lines)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	s.logger.Debug("Listed remote directory.", slog.String("dir", dir), slog.Int("entries", len(entries)))
	return entries, nil
}

// Retrieve downloads dir/name in binary mode.
func (s *Session) Retrieve(ctx context.Context, dir, name string) ([]byte, error) {
	full := path.Join(dir, name)
	var buf bytes.Buffer
	if err := s.transfer(ctx, "I", "RETR", full, &buf); err != nil {
		return nil, fmt.Errorf("retrieve %s: %w", full, err)
	}
	return buf.Bytes(), nil
}

// Close quits the control connection.
func (s *Session) Close() error {
	rawErr := s.raw.Close()
	clientErr := s.client.Close()
	if rawErr != nil {
		return rawErr
	}
	return clientErr
}

// transfer runs "verb arg" over a fresh passive data connection. The argument
// is passed as a format operand so paths containing '%' reach the server intact.
func (s *Session) transfer(ctx context.Context, mode, verb, arg string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.expect([]int{200}, "TYPE", mode); err != nil {
		return err
	}

	getConn, err := s.raw.PrepareDataConn()
	if err != nil {
		return fmt.Errorf("prepare data connection: %w", err)
	}
	code, msg, err := s.raw.SendCommand("%s %s", verb, arg)
	if err != nil {
		return err
	}
	if code != 125 && code != 150 {
		if dc, derr := getConn(); derr == nil {
			dc.Close()
		}
		return &ProtocolError{Line: fmt.Sprintf("%d %s", code, msg), Reason: "unexpected reply to " + verb}
	}

	dc, err := getConn()
	if err != nil {
		return fmt.Errorf("open data connection: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { dc.Close() })
	defer stop()

	copyErr := s.copyData(dc, w)
	dc.Close()

	code, msg, err = s.raw.ReadResponse()
	if copyErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read data connection: %w", copyErr)
	}
	if err != nil {
		return err
	}
	if code != 226 && code != 250 {
		return &ProtocolError{Line: fmt.Sprintf("%d %s", code, msg), Reason: "transfer not completed"}
	}
	return nil
}

// copyData drains the data connection, pushing the deadline forward on every
// read so that only stalls, not long transfers, hit the timeout.
func (s *Session) copyData(dc net.Conn, w io.Writer) error {
	buf := make([]byte, 64*1024)
	for {
		if s.timeout > 0 {
			dc.SetReadDeadline(time.Now().Add(s.timeout))
		}
		n, err := dc.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (s *Session) expect(codes []int, verb, arg string) error {
	code, msg, err := s.raw.SendCommand("%s %s", verb, arg)
	if err != nil {
		return err
	}
	for _, c := range codes {
		if code == c {
			return nil
		}
	}
	return &ProtocolError{Line: fmt.Sprintf("%d %s", code, msg), Reason: "unexpected reply to " + verb}
}
