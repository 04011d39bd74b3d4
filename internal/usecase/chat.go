package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"chat-client/internal/domain"
)

const defaultTimeout = 30 * time.Second

// Ordering decides when bot entries reach the transcript.
type Ordering string

const (
	// OrderSend releases replies in the order their messages were sent.
	OrderSend Ordering = "send"
	// OrderCompletion releases replies as soon as each request finishes.
	OrderCompletion Ordering = "completion"
)

func (o Ordering) Valid() bool {
	return o == OrderSend || o == OrderCompletion
}

type ChatSender interface {
	Send(ctx context.Context, message string) (domain.ChatReply, error)
}

type TranscriptAppender interface {
	Append(entries ...domain.Entry) ([]domain.Entry, error)
}

type ChatOptions struct {
	// Timeout bounds each request once it starts. Zero means 30s.
	Timeout time.Duration
	// Ordering defaults to OrderSend.
	Ordering Ordering
	// MaxInFlight caps concurrent requests; zero means no cap. Submissions
	// over the cap queue without blocking the caller.
	MaxInFlight int
	Logger      *zap.Logger
}

// ChatService is the chat client: it records what the user sends, posts it
// and records what comes back.
type ChatService struct {
	api      ChatSender
	out      TranscriptAppender
	log      *zap.Logger
	timeout  time.Duration
	ordering Ordering
	slots    *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	nextSeq  uint64
	released uint64
	pending  map[uint64][]domain.Entry
}

// NewChatService builds the chat client. Cancelling ctx abandons every
// outstanding exchange the same way Close does.
func NewChatService(ctx context.Context, api ChatSender, out TranscriptAppender, opts ChatOptions) (*ChatService, error) {
	if ctx == nil {
		return nil, errors.New("usecase: context must not be nil")
	}
	if api == nil {
		return nil, errors.New("usecase: chat sender must not be nil")
	}
	if out == nil {
		return nil, errors.New("usecase: transcript must not be nil")
	}
	if opts.Timeout < 0 {
		return nil, newError(ErrorInvalidInput, "negative_timeout", nil)
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Ordering == "" {
		opts.Ordering = OrderSend
	}
	if !opts.Ordering.Valid() {
		return nil, newError(ErrorInvalidInput, "unknown_ordering", fmt.Errorf("ordering %q", opts.Ordering))
	}
	if opts.MaxInFlight < 0 {
		return nil, newError(ErrorInvalidInput, "negative_max_in_flight", nil)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &ChatService{
		api:      api,
		out:      out,
		log:      opts.Logger,
		timeout:  opts.Timeout,
		ordering: opts.Ordering,
		ctx:      ctx,
		cancel:   cancel,
		pending:  make(map[uint64][]domain.Entry),
	}
	if opts.MaxInFlight > 0 {
		s.slots = semaphore.NewWeighted(int64(opts.MaxInFlight))
	}
	return s, nil
}

// Submit records input as a user entry and sends it in the background. It
// returns false, doing nothing, when the trimmed input is empty or the
// service is closed; callers clear their input field on true.
func (s *ChatService) Submit(input string) bool {
	message := strings.TrimSpace(input)
	if message == "" {
		return false
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	seq := s.nextSeq
	s.nextSeq++
	s.wg.Add(1)
	if _, err := s.out.Append(domain.Entry{Sender: domain.SenderUser, Content: domain.TextContent(message)}); err != nil {
		s.log.Error("append user entry", zap.Uint64("seq", seq), zap.Error(err))
	}
	s.mu.Unlock()

	s.log.Debug("chat message submitted", zap.Uint64("seq", seq), zap.Int("length", len(message)))
	go s.exchange(seq, message)
	return true
}

func (s *ChatService) exchange(seq uint64, message string) {
	defer s.wg.Done()

	if s.slots != nil {
		if err := s.slots.Acquire(s.ctx, 1); err != nil {
			s.deliver(seq, nil)
			return
		}
		defer s.slots.Release(1)
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	started := time.Now()
	reply, err := s.api.Send(ctx, message)
	elapsed := time.Since(started)

	if err != nil {
		s.deliver(seq, s.failure(seq, err, elapsed))
		return
	}

	entries, replyErr := onResponse(reply)
	if replyErr != nil {
		s.logReplyError(seq, replyErr)
	} else {
		s.log.Debug("chat reply received", zap.Uint64("seq", seq), zap.Int("entries", len(entries)), zap.Duration("elapsed", elapsed))
	}
	s.deliver(seq, entries)
}

func (s *ChatService) failure(seq uint64, err error, elapsed time.Duration) []domain.Entry {
	if s.ctx.Err() != nil {
		s.log.Debug("chat request abandoned on close", zap.Uint64("seq", seq))
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		msg := fmt.Sprintf("request timed out after %s", s.timeout)
		s.log.Warn("chat request failed",
			zap.Uint64("seq", seq),
			zap.String("code", string(ErrorTimeout)),
			zap.Duration("elapsed", elapsed),
			zap.Error(newError(ErrorTimeout, "deadline_exceeded", err)))
		return onTransportFailure(msg)
	}
	fields := []zap.Field{
		zap.Uint64("seq", seq),
		zap.String("code", string(ErrorTransport)),
		zap.Duration("elapsed", elapsed),
		zap.Error(newError(ErrorTransport, "send_failed", err)),
	}
	var body interface{ ResponseBody() string }
	if errors.As(err, &body) && body.ResponseBody() != "" {
		fields = append(fields, zap.String("response_body", body.ResponseBody()))
	}
	s.log.Warn("chat request failed", fields...)
	return onTransportFailure(err.Error())
}

func (s *ChatService) logReplyError(seq uint64, err error) {
	switch code := CodeOf(err); code {
	case "":
		s.log.Warn("chat reply rejected", zap.Uint64("seq", seq), zap.Error(err))
	case ErrorEmptyReply:
		s.log.Warn("chat reply had neither response nor error; nothing shown", zap.Uint64("seq", seq))
	default:
		s.log.Warn("chat reply reported an error", zap.Uint64("seq", seq), zap.String("code", string(code)), zap.Error(err))
	}
}

// deliver hands a finished exchange to the transcript. Under OrderSend it
// parks entries until every earlier exchange has been delivered.
func (s *ChatService) deliver(seq uint64, entries []domain.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ordering == OrderCompletion {
		s.appendLocked(seq, entries)
		return
	}

	s.pending[seq] = entries
	for {
		next, ok := s.pending[s.released]
		if !ok {
			return
		}
		delete(s.pending, s.released)
		s.appendLocked(s.released, next)
		s.released++
	}
}

func (s *ChatService) appendLocked(seq uint64, entries []domain.Entry) {
	if len(entries) == 0 {
		return
	}
	if _, err := s.out.Append(entries...); err != nil {
		s.log.Error("append bot entries", zap.Uint64("seq", seq), zap.Error(err))
	}
}

// Wait blocks until every submitted exchange has been delivered.
func (s *ChatService) Wait() {
	s.wg.Wait()
}

// Close stops accepting submissions, cancels outstanding requests and waits
// for them to finish. Cancelled exchanges add nothing to the transcript.
func (s *ChatService) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}
