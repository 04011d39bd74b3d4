package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"chat-client/internal/domain"
	"chat-client/internal/transcript"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubSender struct {
	mu    sync.Mutex
	calls []string
	fn    func(ctx context.Context, message string) (domain.ChatReply, error)
}

func (s *stubSender) Send(ctx context.Context, message string) (domain.ChatReply, error) {
	s.mu.Lock()
	s.calls = append(s.calls, message)
	s.mu.Unlock()
	return s.fn(ctx, message)
}

func (s *stubSender) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func replyWith(body string) func(context.Context, string) (domain.ChatReply, error) {
	return func(context.Context, string) (domain.ChatReply, error) {
		var r domain.ChatReply
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return domain.ChatReply{}, err
		}
		return r, nil
	}
}

func newService(t *testing.T, api ChatSender, opts ChatOptions) (*ChatService, *transcript.Transcript) {
	t.Helper()
	tr := transcript.New()
	s, err := NewChatService(context.Background(), api, tr, opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, tr
}

type view struct {
	Sender domain.Sender
	Text   string
}

func texts(entries []domain.Entry) []view {
	out := make([]view, 0, len(entries))
	for _, e := range entries {
		text := e.Content.Text
		if e.Content.Structured() {
			text = string(e.Content.JSON)
		}
		out = append(out, view{Sender: e.Sender, Text: text})
	}
	return out
}

// ---------------------------------------------------------------------------
// NewChatService
// ---------------------------------------------------------------------------

func TestNewChatService_ValidatesDependencies(t *testing.T) {
	var noCtx context.Context
	_, err := NewChatService(noCtx, &stubSender{}, transcript.New(), ChatOptions{})
	require.Error(t, err)

	_, err = NewChatService(context.Background(), nil, transcript.New(), ChatOptions{})
	require.Error(t, err)

	_, err = NewChatService(context.Background(), &stubSender{}, nil, ChatOptions{})
	require.Error(t, err)
}

func TestNewChatService_ValidatesOptions(t *testing.T) {
	cases := []struct {
		name   string
		opts   ChatOptions
		reason string
	}{
		{"negative timeout", ChatOptions{Timeout: -time.Second}, "negative_timeout"},
		{"unknown ordering", ChatOptions{Ordering: "random"}, "unknown_ordering"},
		{"negative in flight", ChatOptions{MaxInFlight: -1}, "negative_max_in_flight"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewChatService(context.Background(), &stubSender{}, transcript.New(), tc.opts)
			var ue *Error
			require.True(t, errors.As(err, &ue))
			require.Equal(t, ErrorInvalidInput, ue.Code)
			require.Equal(t, tc.reason, ue.Reason)
		})
	}
}

func TestNewChatService_Defaults(t *testing.T) {
	s, err := NewChatService(context.Background(), &stubSender{}, transcript.New(), ChatOptions{})
	require.NoError(t, err)
	defer s.Close()
	require.Equal(t, 30*time.Second, s.timeout)
	require.Equal(t, OrderSend, s.ordering)
	require.Nil(t, s.slots)
}

// ---------------------------------------------------------------------------
// Submit
// ---------------------------------------------------------------------------

func TestSubmit_AppendsTrimmedUserEntryAndReply(t *testing.T) {
	api := &stubSender{fn: replyWith(`{"response":"hi"}`)}
	s, tr := newService(t, api, ChatOptions{})

	require.True(t, s.Submit("  hello there \n"))
	snap := tr.Snapshot()
	require.Len(t, snap, 1, "the user entry is appended before the reply")
	require.Equal(t, view{domain.SenderUser, "hello there"}, texts(snap)[0])

	s.Wait()
	require.Equal(t, []view{
		{domain.SenderUser, "hello there"},
		{domain.SenderBot, "hi"},
	}, texts(tr.Snapshot()))
	require.Equal(t, []string{"hello there"}, api.Calls())
}

func TestSubmit_IgnoresBlankInput(t *testing.T) {
	for _, in := range []string{"", " ", "\t\n  "} {
		api := &stubSender{fn: replyWith(`{"response":"hi"}`)}
		s, tr := newService(t, api, ChatOptions{})

		require.False(t, s.Submit(in))
		s.Wait()
		require.Equal(t, 0, tr.Len())
		require.Empty(t, api.Calls())
	}
}

func TestSubmit_ResponseArrayInOrder(t *testing.T) {
	s, tr := newService(t, &stubSender{fn: replyWith(`{"response":["a","b"]}`)}, ChatOptions{})

	require.True(t, s.Submit("q"))
	s.Wait()
	require.Equal(t, []view{
		{domain.SenderUser, "q"},
		{domain.SenderBot, "a"},
		{domain.SenderBot, "b"},
	}, texts(tr.Snapshot()))
}

func TestSubmit_ServerError(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	s, tr := newService(t, &stubSender{fn: replyWith(`{"error":"bad input"}`)}, ChatOptions{Logger: zap.New(core)})

	require.True(t, s.Submit("q"))
	s.Wait()
	require.Equal(t, []view{
		{domain.SenderUser, "q"},
		{domain.SenderBot, "Error: bad input"},
	}, texts(tr.Snapshot()))
	require.Equal(t, 1, logs.FilterField(zap.String("code", string(ErrorServer))).Len())
}

func TestSubmit_TransportFailure(t *testing.T) {
	api := &stubSender{fn: func(context.Context, string) (domain.ChatReply, error) {
		return domain.ChatReply{}, errors.New("network down")
	}}
	s, tr := newService(t, api, ChatOptions{})

	require.True(t, s.Submit("q"))
	s.Wait()
	require.Equal(t, []view{
		{domain.SenderUser, "q"},
		{domain.SenderBot, "Error: network down"},
	}, texts(tr.Snapshot()))
}

type statusErr struct{ body string }

func (e *statusErr) Error() string        { return "unexpected status 403 Forbidden" }
func (e *statusErr) ResponseBody() string { return e.body }

func TestSubmit_StatusBodyIsLoggedNotShown(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	api := &stubSender{fn: func(context.Context, string) (domain.ChatReply, error) {
		return domain.ChatReply{}, fmt.Errorf("chatapi: request failed: %w", &statusErr{body: "<!DOCTYPE html><h1>Forbidden</h1>"})
	}}
	s, tr := newService(t, api, ChatOptions{Logger: zap.New(core)})

	require.True(t, s.Submit("q"))
	s.Wait()
	require.Equal(t, []view{
		{domain.SenderUser, "q"},
		{domain.SenderBot, "Error: chatapi: request failed: unexpected status 403 Forbidden"},
	}, texts(tr.Snapshot()))
	require.Equal(t, 1, logs.FilterField(zap.String("response_body", "<!DOCTYPE html><h1>Forbidden</h1>")).Len())
}

func TestSubmit_EmptyReplyIsLoggedNotShown(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	s, tr := newService(t, &stubSender{fn: replyWith(`{"status":"ok"}`)}, ChatOptions{Logger: zap.New(core)})

	require.True(t, s.Submit("q"))
	s.Wait()
	require.Equal(t, []view{{domain.SenderUser, "q"}}, texts(tr.Snapshot()))
	require.Equal(t, 1, logs.FilterMessageSnippet("neither response nor error").Len())
}

func TestSubmit_Timeout(t *testing.T) {
	api := &stubSender{fn: func(ctx context.Context, _ string) (domain.ChatReply, error) {
		<-ctx.Done()
		return domain.ChatReply{}, ctx.Err()
	}}
	s, tr := newService(t, api, ChatOptions{Timeout: 20 * time.Millisecond})

	require.True(t, s.Submit("q"))
	s.Wait()
	require.Equal(t, []view{
		{domain.SenderUser, "q"},
		{domain.SenderBot, "Error: request timed out after 20ms"},
	}, texts(tr.Snapshot()))
}

func TestSubmit_SendOrderingHoldsLaterReplies(t *testing.T) {
	release := make(chan struct{})
	api := &stubSender{fn: func(ctx context.Context, msg string) (domain.ChatReply, error) {
		if msg == "first" {
			select {
			case <-release:
			case <-ctx.Done():
				return domain.ChatReply{}, ctx.Err()
			}
		}
		return domain.ChatReply{Response: json.RawMessage(`"` + msg + `-reply"`)}, nil
	}}
	s, tr := newService(t, api, ChatOptions{Ordering: OrderSend})

	require.True(t, s.Submit("first"))
	require.True(t, s.Submit("second"))

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.pending) == 1
	}, time.Second, time.Millisecond, "second reply should be parked")
	require.Equal(t, 2, tr.Len())

	close(release)
	s.Wait()
	require.Equal(t, []view{
		{domain.SenderUser, "first"},
		{domain.SenderUser, "second"},
		{domain.SenderBot, "first-reply"},
		{domain.SenderBot, "second-reply"},
	}, texts(tr.Snapshot()))
}

func TestSubmit_CompletionOrdering(t *testing.T) {
	release := make(chan struct{})
	api := &stubSender{fn: func(ctx context.Context, msg string) (domain.ChatReply, error) {
		if msg == "first" {
			select {
			case <-release:
			case <-ctx.Done():
				return domain.ChatReply{}, ctx.Err()
			}
		}
		return domain.ChatReply{Response: json.RawMessage(`"` + msg + `-reply"`)}, nil
	}}
	s, tr := newService(t, api, ChatOptions{Ordering: OrderCompletion})

	require.True(t, s.Submit("first"))
	require.True(t, s.Submit("second"))
	require.Eventually(t, func() bool { return tr.Len() == 3 }, time.Second, time.Millisecond)

	close(release)
	s.Wait()
	require.Equal(t, []view{
		{domain.SenderUser, "first"},
		{domain.SenderUser, "second"},
		{domain.SenderBot, "second-reply"},
		{domain.SenderBot, "first-reply"},
	}, texts(tr.Snapshot()))
}

func TestSubmit_SendOrderingReleasesPastEmptyReplies(t *testing.T) {
	api := &stubSender{fn: func(_ context.Context, msg string) (domain.ChatReply, error) {
		if msg == "silent" {
			return domain.ChatReply{}, nil
		}
		return domain.ChatReply{Response: json.RawMessage(`"` + msg + `"`)}, nil
	}}
	s, tr := newService(t, api, ChatOptions{MaxInFlight: 1})

	require.True(t, s.Submit("silent"))
	require.True(t, s.Submit("loud"))
	s.Wait()
	require.Equal(t, []view{
		{domain.SenderUser, "silent"},
		{domain.SenderUser, "loud"},
		{domain.SenderBot, "loud"},
	}, texts(tr.Snapshot()))
}

func TestSubmit_MaxInFlightSerializes(t *testing.T) {
	var inFlight, peak int32
	api := &stubSender{fn: func(context.Context, string) (domain.ChatReply, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return domain.ChatReply{Response: json.RawMessage(`"ok"`)}, nil
	}}
	s, tr := newService(t, api, ChatOptions{MaxInFlight: 1})

	start := time.Now()
	for i := 0; i < 4; i++ {
		require.True(t, s.Submit("q"))
	}
	require.Less(t, time.Since(start), 5*time.Millisecond*4, "Submit must not block on the in-flight cap")

	s.Wait()
	require.Equal(t, int32(1), atomic.LoadInt32(&peak))
	require.Equal(t, 8, tr.Len())
}

func TestClose_CancelsOutstandingRequests(t *testing.T) {
	api := &stubSender{fn: func(ctx context.Context, _ string) (domain.ChatReply, error) {
		<-ctx.Done()
		return domain.ChatReply{}, ctx.Err()
	}}
	tr := transcript.New()
	s, err := NewChatService(context.Background(), api, tr, ChatOptions{Timeout: time.Minute, MaxInFlight: 1})
	require.NoError(t, err)

	require.True(t, s.Submit("one"))
	require.True(t, s.Submit("two"))
	s.Close()

	require.Equal(t, []view{
		{domain.SenderUser, "one"},
		{domain.SenderUser, "two"},
	}, texts(tr.Snapshot()))
	require.False(t, s.Submit("three"), "closed service must refuse submissions")
	require.Equal(t, 2, tr.Len())
}

func TestParentCancel_AbandonsOutstandingRequests(t *testing.T) {
	api := &stubSender{fn: func(ctx context.Context, _ string) (domain.ChatReply, error) {
		<-ctx.Done()
		return domain.ChatReply{}, ctx.Err()
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr := transcript.New()
	s, err := NewChatService(ctx, api, tr, ChatOptions{Timeout: time.Minute})
	require.NoError(t, err)
	defer s.Close()

	require.True(t, s.Submit("one"))
	require.Eventually(t, func() bool { return len(api.Calls()) == 1 }, time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after the parent context was cancelled")
	}
	require.Equal(t, []view{{domain.SenderUser, "one"}}, texts(tr.Snapshot()))
}

// ---------------------------------------------------------------------------
// onResponse
// ---------------------------------------------------------------------------

func TestOnResponse(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		want     []view
		wantCode ErrorCode
	}{
		{"scalar string", `{"response":"hi"}`, []view{{domain.SenderBot, "hi"}}, ""},
		{"array of strings", `{"response":["a","b"]}`, []view{{domain.SenderBot, "a"}, {domain.SenderBot, "b"}}, ""},
		{"rows", `{"response":[{"id":1,"name":"x"},{"id":2}]}`, []view{
			{domain.SenderBot, `{"id":1,"name":"x"}`},
			{domain.SenderBot, `{"id":2}`},
		}, ""},
		{"mixed array", `{"response":["s",3,null,true]}`, []view{
			{domain.SenderBot, "s"},
			{domain.SenderBot, "3"},
			{domain.SenderBot, "null"},
			{domain.SenderBot, "true"},
		}, ""},
		{"object", `{"response":{"count":3}}`, []view{{domain.SenderBot, `{"count":3}`}}, ""},
		{"number", `{"response":42}`, []view{{domain.SenderBot, "42"}}, ""},
		{"empty array shows nothing", `{"response":[]}`, []view{}, ""},
		{"response wins over error", `{"response":"ok","error":"ignored"}`, []view{{domain.SenderBot, "ok"}}, ""},
		{"error string", `{"error":"bad input"}`, []view{{domain.SenderBot, "Error: bad input"}}, ErrorServer},
		{"error object", `{"error":{"code": 7}}`, []view{{domain.SenderBot, `Error: {"code":7}`}}, ErrorServer},
		{"falsy response falls to error", `{"response":"","error":"x"}`, []view{{domain.SenderBot, "Error: x"}}, ErrorServer},
		{"zero response falls to error", `{"response":0,"error":"x"}`, []view{{domain.SenderBot, "Error: x"}}, ErrorServer},
		{"null response, no error", `{"response":null}`, []view{}, ErrorEmptyReply},
		{"false error", `{"error":false}`, []view{}, ErrorEmptyReply},
		{"neither", `{}`, []view{}, ErrorEmptyReply},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var reply domain.ChatReply
			require.NoError(t, json.Unmarshal([]byte(tc.body), &reply))

			entries, err := onResponse(reply)
			require.Equal(t, tc.want, texts(entries))
			for _, e := range entries {
				require.Equal(t, domain.SenderBot, e.Sender)
			}
			if tc.wantCode == "" {
				require.NoError(t, err)
				return
			}
			var ue *Error
			require.True(t, errors.As(err, &ue))
			require.Equal(t, tc.wantCode, ue.Code)
		})
	}
}

func TestOnResponse_StringElementsAreText(t *testing.T) {
	entries, err := onResponse(domain.ChatReply{Response: json.RawMessage(`["<b>x</b>",{"k":"v"}]`)})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.False(t, entries[0].Content.Structured())
	require.Equal(t, "<b>x</b>", entries[0].Content.Text)
	require.True(t, entries[1].Content.Structured())
}

func TestOnTransportFailure(t *testing.T) {
	require.Equal(t, []view{{domain.SenderBot, "Error: network down"}}, texts(onTransportFailure("network down")))
}

func TestPresent(t *testing.T) {
	for raw, want := range map[string]bool{
		``:        false,
		`null`:    false,
		`false`:   false,
		`""`:      false,
		`0`:       false,
		`-0.0`:    false,
		`1`:       true,
		`"0"`:     true,
		`[]`:      true,
		`{}`:      true,
		` "x" `:   true,
		`true`:    true,
		`0.00001`: true,
	} {
		require.Equal(t, want, present(json.RawMessage(raw)), "raw=%q", raw)
	}
}
