package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipe-chat/internal/history"
	"recipe-chat/internal/logger"
)

const turnHistory = `[{"role":"user","content":[{"type":"text","text":"omelette?"}]},` +
	`{"role":"assistant","content":[{"type":"text","text":"Mix eggs"}]}]`

func record(payload string) string {
	return "data: " + payload + "\n"
}

// successStream is the happy path: two deltas, history, function calls, done.
var successStream = []string{
	record(`{"delta":{"text":"Mix "}}`),
	record(`{"delta":{"text":"eggs"}}`) + record(`{"new_chat_history":`+turnHistory+`}`),
	record(`{"fn_calls":{"user_prompt":"omelette?","fn_calls":[{"type":"tool_use","id":"t1","name":"search","input":{"queries":["omelette"]}}]}}`),
	"data: [DONE]\n",
}

// chunkReader returns each chunk from a separate Read call.
type chunkReader struct {
	chunks []string
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	if n < len(r.chunks[0]) {
		r.chunks[0] = r.chunks[0][n:]
	} else {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

type fakeOpener struct {
	mu      sync.Mutex
	chunks  []string
	readErr error
	err     error
	prompts []string
	hists   [][]history.Entry
}

func (f *fakeOpener) OpenStream(_ context.Context, prompt string, hist []history.Entry) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.hists = append(f.hists, hist)
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(&chunkReader{chunks: slices.Clone(f.chunks), err: f.readErr}), nil
}

func (f *fakeOpener) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type fakeTab struct {
	tab       Tab
	snapshots []Tab
	statuses  []Status
}

func (f *fakeTab) Snapshot() Tab { return f.tab }

func (f *fakeTab) Update(fn func(*Tab)) {
	t := f.tab.clone()
	fn(&t)
	f.tab = t
	f.snapshots = append(f.snapshots, t)
}

func (f *fakeTab) SetStatus(st Status) { f.statuses = append(f.statuses, st) }

func newTestExecutor(opener StreamOpener) *Executor {
	e := NewExecutor(opener, logger.Discard())
	e.now = func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) }
	n := 0
	e.newID = func() string {
		n++
		return fmt.Sprintf("m%d", n)
	}
	return e
}

func committedTab() Tab {
	return Tab{
		ID: 3,
		Messages: []Message{
			{ID: "old-1", Speaker: SpeakerUser, Text: "hello", Timestamp: "09:00"},
			{ID: "old-2", Speaker: SpeakerAssistant, Text: "hi", Timestamp: "09:00"},
		},
		History: []history.Entry{
			{Role: history.RoleUser, Content: []history.ContentBlock{history.Text{Text: "hello"}}},
			{Role: history.RoleAssistant, Content: []history.ContentBlock{history.Text{Text: "hi"}}},
		},
		FunctionCallLog: []history.PromptFunctionCalls{{Prompt: "hello"}},
	}
}

func TestExecutor_Success(t *testing.T) {
	opener := &fakeOpener{chunks: successStream}
	tab := &fakeTab{tab: committedTab()}
	before := tab.tab

	result, err := newTestExecutor(opener).Execute(context.Background(), tab, "omelette?")
	require.NoError(t, err)

	// the request carried the committed history
	require.Len(t, opener.hists, 1)
	assert.Equal(t, before.History, opener.hists[0])
	assert.Equal(t, []string{"omelette?"}, opener.prompts)

	got := tab.tab
	require.Len(t, got.Messages, 4)
	assert.Equal(t, Message{ID: "m1", Speaker: SpeakerUser, Text: "omelette?", Timestamp: "09:30"}, got.Messages[2])
	assert.Equal(t, Message{ID: "m2", Speaker: SpeakerAssistant, Text: "Mix eggs", Timestamp: "09:30"}, got.Messages[3])
	_, pending := got.Pending()
	assert.False(t, pending)

	// history replaced wholesale, function-call log grew by one
	require.Len(t, got.History, 2)
	assert.Equal(t, history.Text{Text: "omelette?"}, got.History[0].Content[0])
	assert.Equal(t, result.History, got.History)
	assert.Equal(t, "Mix eggs", result.Text)
	require.Len(t, got.FunctionCallLog, 2)
	assert.Equal(t, "omelette?", got.FunctionCallLog[1].Prompt)
	require.Len(t, got.FunctionCallLog[1].Calls, 1)
	assert.Equal(t, "search", got.FunctionCallLog[1].Calls[0].(history.ToolInvocation).Name)

	assert.Equal(t, []Status{StatusStreaming}, tab.statuses)
}

func TestExecutor_DeltasUpdatePendingMessage(t *testing.T) {
	opener := &fakeOpener{chunks: successStream}
	tab := &fakeTab{}

	_, err := newTestExecutor(opener).Execute(context.Background(), tab, "omelette?")
	require.NoError(t, err)

	// append, one update per delta, commit
	require.Len(t, tab.snapshots, 4)
	texts := make([]string, 0, 3)
	for _, s := range tab.snapshots[:3] {
		m, ok := s.Pending()
		require.True(t, ok)
		texts = append(texts, m.Text)
		assert.Empty(t, s.History, "history must not change mid-stream")
		assert.Empty(t, s.FunctionCallLog)
	}
	assert.Equal(t, []string{"", "Mix ", "Mix eggs"}, texts)
}

func TestExecutor_ExtractsResultOnceAtEnd(t *testing.T) {
	opener := &fakeOpener{chunks: []string{
		record(`{"delta":{"text":"<thinking>skip</thinking>"}}`),
		record(`{"delta":{"text":"<result>Use 2 eggs</result>"}}`),
		"data: [DONE]\n",
	}}
	tab := &fakeTab{}

	_, err := newTestExecutor(opener).Execute(context.Background(), tab, "how many eggs?")
	require.NoError(t, err)

	mid, ok := tab.snapshots[2].Pending()
	require.True(t, ok)
	assert.Equal(t, "<thinking>skip</thinking><result>Use 2 eggs</result>", mid.Text)
	assert.Equal(t, "Use 2 eggs", tab.tab.Messages[1].Text)
}

func TestExecutor_WithoutHistoryKeepsContext(t *testing.T) {
	opener := &fakeOpener{chunks: []string{record(`{"delta":{"text":"ok"}}`), "data: [DONE]\n"}}
	tab := &fakeTab{tab: committedTab()}
	before := tab.tab

	result, err := newTestExecutor(opener).Execute(context.Background(), tab, "again")
	require.NoError(t, err)

	assert.Equal(t, before.History, tab.tab.History)
	assert.Equal(t, before.History, result.History)
	require.Len(t, tab.tab.FunctionCallLog, 2)
	assert.Equal(t, history.PromptFunctionCalls{Prompt: "again"}, tab.tab.FunctionCallLog[1])
}

func TestExecutor_Failures(t *testing.T) {
	boom := errors.New("connection reset by peer")

	tests := []struct {
		name       string
		opener     *fakeOpener
		wantTarget any
		wantErr    error
	}{
		{
			name:       "open fails",
			opener:     &fakeOpener{err: boom},
			wantTarget: new(*TransportError),
			wantErr:    boom,
		},
		{
			name: "backend error frame",
			opener: &fakeOpener{chunks: []string{
				record(`{"delta":{"text":"partial"}}`),
				record(`{"error":"rate limited"}`),
				"data: [DONE]\n",
			}},
			wantTarget: new(*ProtocolError),
		},
		{
			name: "malformed frame",
			opener: &fakeOpener{chunks: []string{
				record(`{"delta":{"text":"partial"}}`),
				"data: {\"delta\": nope}\n",
			}},
			wantTarget: new(*ProtocolError),
		},
		{
			name: "history arrives but stream breaks",
			opener: &fakeOpener{chunks: []string{
				record(`{"delta":{"text":"partial"}}`),
				record(`{"new_chat_history":` + turnHistory + `,"fn_calls":{"user_prompt":"x","fn_calls":[]}}`),
			}, readErr: boom},
			wantTarget: new(*TransportError),
			wantErr:    boom,
		},
		{
			name: "ends without done",
			opener: &fakeOpener{chunks: []string{
				record(`{"delta":{"text":"partial"}}`),
				record(`{"new_chat_history":` + turnHistory + `}`),
			}},
			wantTarget: new(*TransportError),
			wantErr:    ErrStreamIncomplete,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tab := &fakeTab{tab: committedTab()}
			before := committedTab()

			_, err := newTestExecutor(tc.opener).Execute(context.Background(), tab, "omelette?")
			require.Error(t, err)
			assert.True(t, errors.As(err, tc.wantTarget), "got %T", err)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}

			got := tab.tab
			assert.Equal(t, before.History, got.History)
			assert.Equal(t, before.FunctionCallLog, got.FunctionCallLog)

			require.Len(t, got.Messages, 4)
			assert.Equal(t, before.Messages, got.Messages[:2])
			assert.Equal(t, SpeakerUser, got.Messages[2].Speaker)
			assert.Equal(t, SpeakerSystem, got.Messages[3].Speaker)
			assert.Equal(t, FailureText, got.Messages[3].Text)
			_, pending := got.Pending()
			assert.False(t, pending)
		})
	}
}

func TestExecutor_CancelledContext(t *testing.T) {
	opener := &fakeOpener{chunks: successStream}
	tab := &fakeTab{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestExecutor(opener).Execute(ctx, tab, "omelette?")

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, SpeakerSystem, tab.tab.Messages[len(tab.tab.Messages)-1].Speaker)
	assert.Empty(t, tab.tab.History)
}

func TestExecutor_EmptyPrompt(t *testing.T) {
	opener := &fakeOpener{chunks: successStream}
	tab := &fakeTab{}

	_, err := newTestExecutor(opener).Execute(context.Background(), tab, " \n\t")

	assert.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Empty(t, tab.snapshots)
	assert.Zero(t, opener.calls())
}
