package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/deft-reversi-go/pkg/reversidto"
)

// Stream exchanges newline-delimited JSON over a reader/writer pair, typically the
// stdio of an engine subprocess.
type Stream struct {
	w      io.Writer
	wmu    sync.Mutex
	lines  chan []byte
	logger *zap.Logger

	readErr  error
	closers  []func() error
	done     chan struct{}
	once     sync.Once
	closeErr error
}

// NewStream starts reading r. closers run on Close in order.
func NewStream(r io.Reader, w io.Writer, logger *zap.Logger, closers ...func() error) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Stream{
		w:       w,
		lines:   make(chan []byte, 16),
		logger:  logger,
		closers: closers,
		done:    make(chan struct{}),
	}
	go s.readLoop(bufio.NewReader(r))
	return s
}

// StartProcess launches an engine binary and speaks to it over stdin/stdout.
func StartProcess(ctx context.Context, path string, args []string, logger *zap.Logger) (*Stream, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	stop := func() error {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		err := cmd.Wait()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// killed on purpose
			return nil
		}
		return err
	}
	return NewStream(stdout, stdin, logger, stdin.Close, stop), nil
}

func (s *Stream) readLoop(br *bufio.Reader) {
	defer close(s.lines)
	for {
		line, err := br.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			select {
			case s.lines <- line:
			case <-s.done:
				return
			}
		}
		if err != nil {
			s.readErr = err
			return
		}
	}
}

func (s *Stream) Send(ctx context.Context, env reversidto.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	raw = append(raw, '\n')

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if _, err := s.w.Write(raw); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}
	return nil
}

func (s *Stream) Receive(ctx context.Context) (reversidto.Reply, error) {
	for {
		select {
		case <-ctx.Done():
			return reversidto.Reply{}, ctx.Err()
		case <-s.done:
			return reversidto.Reply{}, ErrClosed
		case line, ok := <-s.lines:
			if !ok {
				if s.readErr == nil || errors.Is(s.readErr, io.EOF) {
					return reversidto.Reply{}, ErrClosed
				}
				return reversidto.Reply{}, fmt.Errorf("read reply: %w", s.readErr)
			}
			var reply reversidto.Reply
			if err := json.Unmarshal(line, &reply); err != nil {
				s.logger.Warn("non-json line from engine", zap.ByteString("line", truncateBytes(line, 256)))
				continue
			}
			return reply, nil
		}
	}
}

func (s *Stream) Close() error {
	s.once.Do(func() {
		close(s.done)
		var errs []error
		for _, c := range s.closers {
			if err := c(); err != nil {
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// ServeStream answers newline-delimited envelopes from r on w until r ends.
// Calls run concurrently; replies are written whole, one per line.
func ServeStream(ctx context.Context, r io.Reader, w io.Writer, h Handler, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		wmu sync.Mutex
		wg  sync.WaitGroup
	)
	enc := json.NewEncoder(w)
	br := bufio.NewReader(r)
	defer wg.Wait()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := br.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			var env reversidto.Envelope
			if jerr := json.Unmarshal(line, &env); jerr != nil {
				logger.Warn("malformed envelope", zap.Error(jerr))
			} else {
				wg.Add(1)
				go func(env reversidto.Envelope) {
					defer wg.Done()
					reply := h.Handle(ctx, env)
					wmu.Lock()
					defer wmu.Unlock()
					if werr := enc.Encode(reply); werr != nil {
						logger.Warn("write reply failed", zap.String("id", env.ID), zap.Error(werr))
					}
				}(env)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read envelope: %w", err)
		}
	}
}

func truncateBytes(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
