// Package shell owns the server connection: line framing, registration,
// keepalive and channel joins. It hands raw lines to the caller and writes
// handler output back.
package shell

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/irc.v4"
)

// DefaultDialTimeout bounds connection establishment.
const DefaultDialTimeout = 30 * time.Second

// DefaultBacklog is the number of read lines buffered ahead of ReadLine.
const DefaultBacklog = 64

// Config describes the connection and the identity registered with it.
type Config struct {
	Address  string
	TLS      bool
	Password string
	Nick     string
	User     string
	RealName string
	Channels []string

	// TLSConfig overrides the TLS client configuration.
	TLSConfig *tls.Config

	// DialTimeout bounds Dial. Zero uses DefaultDialTimeout.
	DialTimeout time.Duration
}

// Shell is a line-oriented connection to the server.
//
// A background goroutine reads lines, answers PING and joins the configured
// channels once the server welcomes the client. Every line, including those
// it answered, is delivered through ReadLine.
type Shell struct {
	conn   net.Conn
	cfg    Config
	logger *zap.Logger

	wmu sync.Mutex
	w   *irc.Writer

	lines chan string
	done  chan struct{}

	closeOnce sync.Once
	errMu     sync.Mutex
	err       error

	nickMu sync.RWMutex
	nick   string
}

// Option configures a Shell.
type Option func(*Shell)

// WithLogger sets the shell logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Shell) {
		if l != nil {
			s.logger = l
		}
	}
}

// Dial connects to cfg.Address and registers cfg.Nick.
func Dial(ctx context.Context, cfg Config, opts ...Option) (*Shell, error) {
	if cfg.Address == "" {
		return nil, ErrNoAddress
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	dialer := &net.Dialer{Timeout: timeout}

	var conn net.Conn
	var err error
	if cfg.TLS {
		tlsCfg := cfg.TLSConfig
		if tlsCfg == nil {
			host, _, _ := net.SplitHostPort(cfg.Address)
			tlsCfg = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
		}
		td := &tls.Dialer{NetDialer: dialer, Config: tlsCfg}
		conn, err = td.DialContext(ctx, "tcp", cfg.Address)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", cfg.Address)
	}
	if err != nil {
		return nil, fmt.Errorf("shell: dial %s: %w", cfg.Address, err)
	}

	s := New(conn, cfg, opts...)
	if err := s.Register(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an established connection and starts reading from it.
func New(conn net.Conn, cfg Config, opts ...Option) *Shell {
	s := &Shell{
		conn:   conn,
		cfg:    cfg,
		logger: zap.NewNop(),
		w:      irc.NewWriter(conn),
		lines:  make(chan string, DefaultBacklog),
		done:   make(chan struct{}),
		nick:   cfg.Nick,
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.readLoop()
	return s
}

// Register sends PASS, NICK and USER.
func (s *Shell) Register() error {
	if s.cfg.Nick == "" {
		return ErrNoNick
	}
	user := s.cfg.User
	if user == "" {
		user = s.cfg.Nick
	}
	realName := s.cfg.RealName
	if realName == "" {
		realName = user
	}

	if s.cfg.Password != "" {
		if err := s.send(&irc.Message{Command: "PASS", Params: []string{s.cfg.Password}}); err != nil {
			return err
		}
	}
	if err := s.send(&irc.Message{Command: "NICK", Params: []string{s.cfg.Nick}}); err != nil {
		return err
	}
	return s.send(&irc.Message{Command: "USER", Params: []string{user, "0", "*", realName}})
}

// Nick returns the nick the server last confirmed for the client.
func (s *Shell) Nick() string {
	s.nickMu.RLock()
	defer s.nickMu.RUnlock()
	return s.nick
}

// ReadLine blocks until a line arrives, the connection closes or ctx is
// done. Lines have their terminator removed. Once Done is closed it returns
// Err, discarding lines still buffered.
func (s *Shell) ReadLine(ctx context.Context) (string, error) {
	if s.closed() {
		return "", s.Err()
	}
	select {
	case line, ok := <-s.lines:
		if !ok || s.closed() {
			return "", s.Err()
		}
		return line, nil
	case <-s.done:
		return "", s.Err()
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Shell) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// SendLine writes one raw line. Embedded CR and LF are removed.
func (s *Shell) SendLine(text string) error {
	text = sanitize(text)
	if text == "" {
		return nil
	}
	return s.write(func(w *irc.Writer) error {
		return w.Write(text)
	})
}

// Say sends a PRIVMSG, one message per line of text.
func (s *Shell) Say(target, text string) error {
	return s.each("PRIVMSG", target, text)
}

// Notice sends a NOTICE, one message per line of text.
func (s *Shell) Notice(target, text string) error {
	return s.each("NOTICE", target, text)
}

// Raw is SendLine.
func (s *Shell) Raw(line string) error {
	return s.SendLine(line)
}

// Join joins channels.
func (s *Shell) Join(channels ...string) error {
	for _, ch := range channels {
		if ch = sanitize(ch); ch == "" {
			continue
		}
		if err := s.send(&irc.Message{Command: "JOIN", Params: []string{ch}}); err != nil {
			return err
		}
	}
	return nil
}

// Quit sends QUIT and closes the connection.
func (s *Shell) Quit(reason string) error {
	err := s.send(&irc.Message{Command: "QUIT", Params: []string{sanitize(reason)}})
	s.Close()
	return err
}

// Done is closed when the connection is gone.
func (s *Shell) Done() <-chan struct{} {
	return s.done
}

// Err returns why the connection closed, or nil while it is open.
func (s *Shell) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close closes the connection. It is safe to call more than once.
func (s *Shell) Close() error {
	s.shutdown(ErrClosed)
	return nil
}

func (s *Shell) shutdown(cause error) {
	s.closeOnce.Do(func() {
		s.errMu.Lock()
		s.err = cause
		s.errMu.Unlock()

		_ = s.conn.Close()
		close(s.done)
	})
}

func (s *Shell) readLoop() {
	defer close(s.lines)

	r := bufio.NewReader(s.conn)
	for {
		line, err := r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line != "" {
			s.handle(line)
			select {
			case s.lines <- line:
			case <-s.done:
				return
			}
		}
		if err != nil {
			cause := ErrClosed
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
				cause = fmt.Errorf("%w: %v", ErrClosed, err)
				s.logger.Warn("read failed", zap.Error(err))
			}
			s.shutdown(cause)
			return
		}
	}
}

// handle reacts to the lines the connection itself must answer.
func (s *Shell) handle(line string) {
	msg, err := irc.ParseMessage(line)
	if err != nil {
		return
	}

	switch msg.Command {
	case "PING":
		reply := &irc.Message{Command: "PONG", Params: msg.Params}
		if err := s.send(reply); err != nil {
			s.logger.Warn("pong failed", zap.Error(err))
		}

	case "001":
		if nick := msg.Param(0); nick != "" {
			s.setNick(nick)
		}
		if err := s.Join(s.cfg.Channels...); err != nil {
			s.logger.Warn("join failed", zap.Error(err))
		}

	case "NICK":
		if msg.Prefix != nil && strings.EqualFold(msg.Prefix.Name, s.Nick()) {
			s.setNick(msg.Param(0))
		}
	}
}

func (s *Shell) setNick(nick string) {
	s.nickMu.Lock()
	defer s.nickMu.Unlock()
	s.nick = nick
}

func (s *Shell) each(command, target, text string) error {
	target = sanitize(target)
	if target == "" {
		return fmt.Errorf("shell: %s without target", command)
	}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r", ""), "\n") {
		if line == "" {
			continue
		}
		if err := s.send(&irc.Message{Command: command, Params: []string{target, line}}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Shell) send(msg *irc.Message) error {
	return s.write(func(w *irc.Writer) error {
		return w.WriteMessage(msg)
	})
}

func (s *Shell) write(fn func(w *irc.Writer) error) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := fn(s.w); err != nil {
		return fmt.Errorf("shell: write: %w", err)
	}
	return nil
}

func sanitize(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}
