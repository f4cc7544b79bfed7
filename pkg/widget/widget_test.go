package widget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duochat/duochat/pkg/api"
	"github.com/duochat/duochat/pkg/attachment"
	"github.com/duochat/duochat/pkg/chat"
	"github.com/duochat/duochat/pkg/render"
)

type fakeBackend struct {
	mu    sync.Mutex
	lists map[chat.Channel][]chat.Message
	gets  []chat.Channel
	sends []api.SendRequest

	get     func(ctx context.Context, ch chat.Channel, call int) ([]chat.Message, error)
	result  api.SendResult
	sendErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{lists: make(map[chat.Channel][]chat.Message)}
}

func (b *fakeBackend) set(ch chat.Channel, msgs ...chat.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lists[ch] = msgs
}

func (b *fakeBackend) GetMessages(ctx context.Context, ch chat.Channel) ([]chat.Message, error) {
	b.mu.Lock()
	b.gets = append(b.gets, ch)
	call := len(b.gets)
	get := b.get
	list := append([]chat.Message(nil), b.lists[ch]...)
	b.mu.Unlock()

	if get != nil {
		return get(ctx, ch, call)
	}
	return list, nil
}

func (b *fakeBackend) SendMessage(_ context.Context, req api.SendRequest) (api.SendResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sends = append(b.sends, req)
	return b.result, b.sendErr
}

func (b *fakeBackend) getCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.gets)
}

func (b *fakeBackend) sendCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sends)
}

type recordingView struct {
	*MarkupView
	mu    sync.Mutex
	calls []string
}

func newRecordingView() *recordingView {
	return &recordingView{MarkupView: NewMarkupView()}
}

func (v *recordingView) record(call string) {
	v.mu.Lock()
	v.calls = append(v.calls, call)
	v.mu.Unlock()
}

func (v *recordingView) Replace(ins []render.Instruction) {
	v.record(fmt.Sprintf("replace:%d", len(ins)))
	v.MarkupView.Replace(ins)
}

func (v *recordingView) Clear() {
	v.record("clear")
	v.MarkupView.Clear()
}

func (v *recordingView) SetTyping(on bool) {
	v.record(fmt.Sprintf("typing:%t", on))
	v.MarkupView.SetTyping(on)
}

func (v *recordingView) count(prefix string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, c := range v.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

var renderOpts = render.Options{Location: time.UTC}

func testOptions() Options {
	return Options{
		Channel:      chat.ChannelAI,
		PollInterval: time.Hour,
		ReplyDelay:   10 * time.Millisecond,
		Render:       renderOpts,
		Now:          func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func msg(sender chat.Sender, content string) chat.Message {
	return chat.Message{Sender: sender, Content: content}
}

func newTestWidget(t *testing.T, b *fakeBackend, opts Options) (*Widget, *recordingView) {
	t.Helper()
	v := newRecordingView()
	w := New(b, v, opts)
	t.Cleanup(func() { w.Close() })
	return w, v
}

func TestStartRendersFullList(t *testing.T) {
	b := newFakeBackend()
	msgs := []chat.Message{
		msg(chat.SenderUser, "hi"),
		{Sender: chat.SenderAI, Content: "see $x^2$", FilePath: "users/a.png"},
		msg(chat.SenderUser, "thanks"),
	}
	b.set(chat.ChannelAI, msgs...)
	w, v := newTestWidget(t, b, testOptions())

	require.NoError(t, w.Start())

	snap := v.Snapshot()
	assert.Equal(t, chat.ChannelAI, snap.Channel)
	assert.Equal(t, 3, snap.Count)
	assert.Equal(t, render.MarkupAll(render.BuildAll(msgs, renderOpts)), snap.HTML)
	assert.Equal(t, 1, w.ActiveTimers())
}

func TestPollingPicksUpNewMessages(t *testing.T) {
	b := newFakeBackend()
	b.set(chat.ChannelAI, msg(chat.SenderUser, "one"))
	opts := testOptions()
	opts.PollInterval = 10 * time.Millisecond
	w, v := newTestWidget(t, b, opts)

	require.NoError(t, w.Start())
	require.Equal(t, 1, v.Count())

	b.set(chat.ChannelAI, msg(chat.SenderUser, "one"), msg(chat.SenderAI, "two"))
	require.Eventually(t, func() bool { return v.Count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, w.ActiveTimers())
}

func TestRepeatedPollsAreIdempotent(t *testing.T) {
	b := newFakeBackend()
	b.set(chat.ChannelAI, msg(chat.SenderUser, "a"), msg(chat.SenderAI, "b"))
	w, v := newTestWidget(t, b, testOptions())
	require.NoError(t, w.Start())

	first := v.Snapshot().HTML
	w.Refresh()
	w.Refresh()
	assert.Equal(t, first, v.Snapshot().HTML)
	assert.Equal(t, 3, v.count("replace"))
}

func TestSwitchChannelClearsAndRearms(t *testing.T) {
	b := newFakeBackend()
	b.set(chat.ChannelAI, msg(chat.SenderAI, "ai history"))
	b.set(chat.ChannelSupport, msg(chat.SenderSupport, "support history"))
	w, v := newTestWidget(t, b, testOptions())
	require.NoError(t, w.Start())

	for i := 0; i < 5; i++ {
		require.NoError(t, w.SwitchChannel(w.Active().Other()))
		assert.Equal(t, 1, w.ActiveTimers())
	}

	assert.Equal(t, chat.ChannelSupport, w.Active())
	snap := v.Snapshot()
	assert.Equal(t, chat.ChannelSupport, snap.Channel)
	assert.Contains(t, snap.HTML, "support history")
	assert.NotContains(t, snap.HTML, "ai history")
	assert.Equal(t, 5, v.count("clear"))
	assert.Equal(t, uint64(6), w.State().Generation)
}

func TestSwitchChannelRejectsUnknown(t *testing.T) {
	w, _ := newTestWidget(t, newFakeBackend(), testOptions())
	assert.Error(t, w.SwitchChannel(chat.Channel("sales")))
}

func TestResponseForInactiveChannelIsDiscarded(t *testing.T) {
	b := newFakeBackend()
	release := make(chan struct{})
	requested := make(chan struct{}, 1)
	b.get = func(ctx context.Context, ch chat.Channel, call int) ([]chat.Message, error) {
		if ch == chat.ChannelAI {
			requested <- struct{}{}
			<-release
			return []chat.Message{msg(chat.SenderAI, "late ai list")}, nil
		}
		return []chat.Message{msg(chat.SenderSupport, "support list")}, nil
	}
	opts := testOptions()
	opts.Channel = chat.ChannelSupport
	w, v := newTestWidget(t, b, opts)
	require.NoError(t, w.Start())

	switched := make(chan error, 1)
	go func() { switched <- w.SwitchChannel(chat.ChannelAI) }()
	<-requested

	require.NoError(t, w.SwitchChannel(chat.ChannelSupport))
	close(release)
	require.NoError(t, <-switched)

	snap := v.Snapshot()
	assert.Equal(t, chat.ChannelSupport, snap.Channel)
	assert.Contains(t, snap.HTML, "support list")
	assert.NotContains(t, snap.HTML, "late ai list")
}

func TestOlderResponseNeverOverwritesNewer(t *testing.T) {
	b := newFakeBackend()
	release := make(chan struct{})
	requested := make(chan struct{}, 1)
	b.get = func(ctx context.Context, ch chat.Channel, call int) ([]chat.Message, error) {
		if call == 1 {
			requested <- struct{}{}
			<-release
			return []chat.Message{msg(chat.SenderUser, "stale")}, nil
		}
		return []chat.Message{msg(chat.SenderUser, "fresh")}, nil
	}
	w, v := newTestWidget(t, b, testOptions())

	started := make(chan error, 1)
	go func() { started <- w.Start() }()
	<-requested

	w.Refresh()
	require.Contains(t, v.Snapshot().HTML, "fresh")

	close(release)
	require.NoError(t, <-started)

	html := v.Snapshot().HTML
	assert.Contains(t, html, "fresh")
	assert.NotContains(t, html, "stale")
	assert.Equal(t, uint64(2), w.State().Tokens[chat.ChannelAI])
}

func TestFailedPollLeavesViewUntouched(t *testing.T) {
	b := newFakeBackend()
	b.set(chat.ChannelAI, msg(chat.SenderUser, "kept"))
	w, v := newTestWidget(t, b, testOptions())
	require.NoError(t, w.Start())

	b.mu.Lock()
	b.get = func(context.Context, chat.Channel, int) ([]chat.Message, error) {
		return nil, errors.New("connection refused")
	}
	b.mu.Unlock()

	w.Refresh()
	assert.Equal(t, 1, v.count("replace"))
	assert.Contains(t, v.Snapshot().HTML, "kept")
}

func TestSendEmptyDraftIsRejected(t *testing.T) {
	b := newFakeBackend()
	w, v := newTestWidget(t, b, testOptions())
	require.NoError(t, w.Start())

	err := w.Send(context.Background(), Draft{Text: "   \n\t"})
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Equal(t, 0, b.sendCount())

	n := v.TakeNotice()
	require.NotNil(t, n)
	assert.Equal(t, LevelWarning, n.Level)
}

func TestSendRendersOptimisticallyAndReply(t *testing.T) {
	b := newFakeBackend()
	b.result = api.SendResult{Status: "success", AIResponse: "the answer"}
	w, v := newTestWidget(t, b, testOptions())
	require.NoError(t, w.Start())
	getsBefore := b.getCount()

	// The reconciling poll returns the stored user message.
	b.set(chat.ChannelAI, msg(chat.SenderUser, "question"))
	require.NoError(t, w.Send(context.Background(), Draft{Text: "  question  "}))

	require.Equal(t, 1, b.sendCount())
	assert.Equal(t, "question", b.sends[0].Content)
	assert.Equal(t, chat.ChannelAI, b.sends[0].Channel)
	assert.Equal(t, getsBefore+1, b.getCount())
	assert.Equal(t, 1, v.count("typing:true"))
	assert.Equal(t, 1, v.count("typing:false"))
	assert.False(t, v.Snapshot().Typing)

	require.Eventually(t, func() bool {
		return strings.Contains(v.Snapshot().HTML, "the answer")
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, v.Count())
}

func TestSendAttachmentGroup(t *testing.T) {
	b := newFakeBackend()
	b.result = api.SendResult{Status: "success"}
	w, _ := newTestWidget(t, b, testOptions())
	require.NoError(t, w.Start())

	group := attachment.GroupFor(attachment.File{Name: "clip.mp4", MIME: "video/mp4", Data: []byte{1}})
	require.NoError(t, w.Send(context.Background(), Draft{Attachments: group}))

	require.Equal(t, 1, b.sendCount())
	assert.Equal(t, chat.TypeVideo, b.sends[0].Type)
	assert.Len(t, b.sends[0].Files, 1)
}

func TestSendRejectedByServer(t *testing.T) {
	b := newFakeBackend()
	b.result = api.SendResult{Status: "error", Message: "Empty message"}
	w, v := newTestWidget(t, b, testOptions())
	require.NoError(t, w.Start())
	getsBefore := b.getCount()

	err := w.Send(context.Background(), Draft{Text: "x"})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, getsBefore+1, b.getCount())

	n := v.TakeNotice()
	require.NotNil(t, n)
	assert.Equal(t, LevelError, n.Level)
	assert.Equal(t, "Empty message", n.Text)
}

func TestSendTransportFailureKeepsOptimisticMessage(t *testing.T) {
	b := newFakeBackend()
	b.sendErr = fmt.Errorf("%w: dial tcp", api.ErrTransport)
	w, v := newTestWidget(t, b, testOptions())
	require.NoError(t, w.Start())

	err := w.Send(context.Background(), Draft{Text: "lost"})
	assert.ErrorIs(t, err, api.ErrTransport)

	snap := v.Snapshot()
	assert.False(t, snap.Typing)
	assert.Contains(t, snap.HTML, "lost")
	require.NotNil(t, snap.Notice)
	assert.Equal(t, LevelError, snap.Notice.Level)
}

func TestReplyDroppedAfterSwitch(t *testing.T) {
	b := newFakeBackend()
	b.result = api.SendResult{Status: "success", AIResponse: "late reply"}
	opts := testOptions()
	opts.ReplyDelay = 30 * time.Millisecond
	w, v := newTestWidget(t, b, opts)
	require.NoError(t, w.Start())

	require.NoError(t, w.Send(context.Background(), Draft{Text: "q"}))
	require.NoError(t, w.SwitchChannel(chat.ChannelSupport))

	assert.Never(t, func() bool {
		return strings.Contains(v.Snapshot().HTML, "late reply")
	}, 100*time.Millisecond, 5*time.Millisecond)
}

func TestCloseStopsEverything(t *testing.T) {
	b := newFakeBackend()
	opts := testOptions()
	opts.PollInterval = 5 * time.Millisecond
	w, _ := newTestWidget(t, b, opts)
	require.NoError(t, w.Start())
	require.Equal(t, 1, w.ActiveTimers())

	require.NoError(t, w.Close())
	assert.Equal(t, 0, w.ActiveTimers())

	gets := b.getCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, gets, b.getCount())
	assert.ErrorIs(t, w.SwitchChannel(chat.ChannelSupport), ErrClosed)
	assert.ErrorIs(t, w.Send(context.Background(), Draft{Text: "x"}), ErrClosed)
}

func TestMarkupViewTypesetsOnlyMath(t *testing.T) {
	v := NewMarkupView()
	var calls int
	v.Typeset = func(html string) string {
		calls++
		return html
	}

	v.Replace(render.BuildAll([]chat.Message{
		msg(chat.SenderUser, "plain"),
		msg(chat.SenderAI, "$\\pi$"),
	}, renderOpts))
	assert.Equal(t, 1, calls)

	v.Append(render.Build(msg(chat.SenderAI, "$$x$$"), renderOpts))
	assert.Equal(t, 2, calls)
	assert.Equal(t, 3, v.Count())
}
