package transfers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunedrift/tunedrift/internal/library"
	"github.com/tunedrift/tunedrift/internal/network"
	"github.com/tunedrift/tunedrift/internal/network/mock"
)

type fakeGate struct {
	loggedIn bool
}

func (g fakeGate) LoggedIn() bool   { return g.loggedIn }
func (g fakeGate) Username() string { return "me" }

type rescanRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *rescanRecorder) ScheduleRescan(delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, delay)
}

func newTestTracker(t *testing.T, loggedIn bool) (*Tracker, *mock.Client, *rescanRecorder) {
	t.Helper()
	client := mock.New("me")
	if loggedIn {
		require.NoError(t, client.Connect(context.Background()))
	}
	rescans := &rescanRecorder{}
	tracker := NewTracker(client, fakeGate{loggedIn: loggedIn}, rescans, nil, "/downloads", zerolog.Nop())
	return tracker, client, rescans
}

func TestMapStatusCoversEveryUpstreamCode(t *testing.T) {
	for _, code := range network.UpstreamStatuses() {
		state, msg := MapStatus(code)
		assert.NotEqual(t, StateNotStarted, state, "code %q", code)
		if state == StateFailed {
			assert.NotEmpty(t, msg, "failed code %q must carry a message", code)
			assert.Equal(t, "Download failed: "+string(code), msg)
		}
	}

	tests := []struct {
		code  network.UpstreamStatus
		state State
		msg   string
	}{
		{network.StatusQueued, StateQueued, ""},
		{network.StatusGettingStatus, StateQueued, ""},
		{network.StatusTransferring, StateTransferring, ""},
		{network.StatusFinished, StateFinished, ""},
		{network.StatusPaused, StatePaused, "Download has been paused"},
		{network.StatusCancelled, StateCancelled, "Download was cancelled"},
		{network.StatusFiltered, StateFiltered, "File was filtered based on your download filters settings"},
		{network.StatusUserLoggedOff, StateFailed, "Download failed: User logged off"},
		{"Something new", StateNotStarted, ""},
	}
	for _, tt := range tests {
		state, msg := MapStatus(tt.code)
		assert.Equal(t, tt.state, state, "code %q", tt.code)
		assert.Equal(t, tt.msg, msg, "code %q", tt.code)
	}
}

func TestTimeRemaining(t *testing.T) {
	left, ok := TimeRemaining(250, 1250, 100)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, left)

	_, ok = TimeRemaining(250, 1250, 0)
	assert.False(t, ok, "zero speed has no estimate")
}

func TestApplyFinishedPromotesHintAndSchedulesRescanOnce(t *testing.T) {
	tracker, _, rescans := newTestTracker(t, true)
	identity := network.Identity("peer", `Music\Artist - Song.flac`)
	tracker.Hints().byIdentity[identity] = library.Metadata{Title: "Song", Artist: "Artist"}

	tr := network.Transfer{Username: "peer", Path: `Music\Artist - Song.flac`, Status: network.StatusFinished, BytesTransferred: 10, Size: 10}
	tracker.Apply(tr)
	tracker.Apply(tr)

	assert.Equal(t, []time.Duration{RescanDelay}, rescans.delays)

	meta, ok := tracker.Hints().ForFile("/downloads/Artist - Song.flac")
	require.True(t, ok)
	assert.Equal(t, "Song", meta.Title)

	status := tracker.Status(identity)
	assert.Equal(t, StateFinished, status.State)
	assert.Equal(t, float64(100), status.Percent)
}

func TestApplyTransferringHasTimeRemaining(t *testing.T) {
	tracker, _, _ := newTestTracker(t, true)

	tracker.Apply(network.Transfer{Username: "peer", Path: "a.mp3", Status: network.StatusTransferring, BytesTransferred: 50, Size: 200, Speed: 50})
	status := tracker.Status("peer:a.mp3")
	assert.Equal(t, StateTransferring, status.State)
	assert.Equal(t, float64(25), status.Percent)
	require.NotNil(t, status.TimeRemaining)
	assert.Equal(t, float64(3), *status.TimeRemaining)

	tracker.Apply(network.Transfer{Username: "peer", Path: "a.mp3", Status: network.StatusTransferring, BytesTransferred: 60, Size: 200})
	assert.Nil(t, tracker.Status("peer:a.mp3").TimeRemaining)
}

func TestApplyQueuedWithSpeedHasTimeRemaining(t *testing.T) {
	tracker, _, _ := newTestTracker(t, true)

	tracker.Apply(network.Transfer{Username: "peer", Path: "b.mp3", Status: network.StatusQueued, BytesTransferred: 100, Size: 300, Speed: 100})
	status := tracker.Status("peer:b.mp3")
	assert.Equal(t, StateQueued, status.State)
	require.NotNil(t, status.TimeRemaining, "any state with a speed gets an estimate")
	assert.Equal(t, float64(2), *status.TimeRemaining)
}

func TestStatusUnknownIsNotStarted(t *testing.T) {
	tracker, _, _ := newTestTracker(t, true)
	assert.Equal(t, StateNotStarted, tracker.Status("peer:nothing.mp3").State)
}

func TestRequestRequiresLogin(t *testing.T) {
	tracker, client, _ := newTestTracker(t, false)

	_, err := tracker.Request(context.Background(), Request{Username: "peer", Path: "a.mp3", Size: 5})
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.Empty(t, tracker.Active())
	assert.Empty(t, client.Enqueued)
}

func TestRequestRecordsActiveDownload(t *testing.T) {
	tracker, client, _ := newTestTracker(t, true)
	ctx := context.Background()

	meta := &library.Metadata{Title: "First", Bitrate: nil}
	_, err := tracker.Request(ctx, Request{Username: "peer", Path: `x\first.mp3`, Size: 100, Metadata: meta})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = tracker.Request(ctx, Request{Username: "peer", Path: `x\second.mp3`, Size: 200})
	require.NoError(t, err)

	require.Len(t, client.Enqueued, 2)
	assert.Equal(t, "/downloads/first.mp3", client.Enqueued[0].LocalPath)

	views := tracker.Active()
	require.Len(t, views, 2)
	assert.Equal(t, `peer:x\second.mp3`, views[0].Identity, "newest first")
	assert.Equal(t, StateQueued, views[1].Status.State)
	assert.Equal(t, int64(100), views[1].Status.TotalBytes)

	hint, ok := tracker.Hints().ForFile("first.mp3")
	require.True(t, ok)
	assert.Equal(t, "First", hint.Title)

	sys := tracker.System()
	assert.Equal(t, "connected", sys.NetworkStatus)
	assert.Equal(t, 2, sys.ActiveDownloads)
}

func TestCancelIsIdempotent(t *testing.T) {
	tracker, client, _ := newTestTracker(t, true)
	ctx := context.Background()

	_, err := tracker.Request(ctx, Request{Username: "peer", Path: `Music\a:b.mp3`, Size: 10})
	require.NoError(t, err)
	identity := `peer:Music\a:b.mp3`

	require.NoError(t, tracker.Cancel(ctx, identity))
	require.NoError(t, tracker.Cancel(ctx, identity))
	assert.Empty(t, tracker.Active())

	require.Eventually(t, func() bool {
		for _, tr := range client.Transfers() {
			if tr.Identity() == identity && tr.Status == network.StatusCancelled {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, tracker.Cancel(ctx, "no-separator"), network.ErrMalformedIdentity)
}

func newDownloadsServer(t *testing.T, loggedIn bool) (*echo.Echo, *Tracker) {
	t.Helper()
	tracker, _, _ := newTestTracker(t, loggedIn)
	e := echo.New()
	NewHandlers(tracker).RegisterRoutes(e.Group("/api/v1/downloads"))
	return e, tracker
}

func TestHandlersRequestNotLoggedIn(t *testing.T) {
	e, tracker := newDownloadsServer(t, false)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/downloads", strings.NewReader(`{"username":"peer","path":"a.mp3","size":1}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, tracker.Active())
}

func TestHandlersStatusAndCancel(t *testing.T) {
	e, _ := newDownloadsServer(t, true)

	identity := url.PathEscape(`peer:Music\song.mp3`)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/downloads/status/"+identity, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"Not started"`)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/downloads/"+identity+"/cancel", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/downloads/malformed/cancel", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for _, bad := range []string{"malformed", url.PathEscape(":song.mp3"), url.PathEscape("peer:")} {
		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/downloads/status/"+bad, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "identity %q", bad)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/downloads/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"systemStatus"`)
}
