package net

import (
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fyne.io/fyne/v2"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CanvasBoard/internal/state"
	"CanvasBoard/internal/surface"
)

type captureFunc func(ctx context.Context) (image.Image, error)

func (f captureFunc) Capture(ctx context.Context) (image.Image, error) { return f(ctx) }

func startHub(t *testing.T, m *state.Model, c Capturer) (*Hub, string) {
	t.Helper()
	h := NewHub(m, c)
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return h, strings.TrimPrefix(srv.URL, "http://")
}

func dial(t *testing.T, addr string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestHubSendsSyncThenChanges(t *testing.T) {
	m := state.NewModel()
	first := m.Add(state.NewElement(state.NewText("hi"), fyne.NewPos(1, 2), state.DefaultTextSize))
	h, addr := startHub(t, m, nil)

	conn := dial(t, addr)
	var sync state.Change
	require.NoError(t, conn.ReadJSON(&sync))
	assert.Equal(t, state.ChangeSync, sync.Type)
	require.Len(t, sync.Elements, 1)
	assert.Equal(t, first.ID, sync.Elements[0].ID)
	assert.Equal(t, first.ID, sync.Selected)
	require.Eventually(t, func() bool { return h.Peers() == 1 }, time.Second, 5*time.Millisecond)

	_, err := m.Update(first.ID, state.Patch{X: state.Ptr[float32](40)})
	require.NoError(t, err)

	var upd state.Change
	require.NoError(t, conn.ReadJSON(&upd))
	assert.Equal(t, state.ChangeUpdate, upd.Type)
	assert.Greater(t, upd.Revision, sync.Revision)
	require.NotNil(t, upd.Element)
	assert.Equal(t, float32(40), upd.Element.Position.X)
	tc, ok := upd.Element.Text()
	require.True(t, ok)
	assert.Equal(t, "hi", tc.Text)
}

func TestHubDropsDisconnectedViewer(t *testing.T) {
	m := state.NewModel()
	h, addr := startHub(t, m, nil)
	conn := dial(t, addr)
	var sync state.Change
	require.NoError(t, conn.ReadJSON(&sync))
	require.Eventually(t, func() bool { return h.Peers() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return h.Peers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestFollowMirrorsHost(t *testing.T) {
	host := state.NewModel()
	a := host.Add(state.NewElement(state.ShapeContent{Shape: state.ShapeStar, Color: "red"}, fyne.NewPos(0, 0), state.DefaultShapeSize))
	h, addr := startHub(t, host, nil)

	follower := state.NewModel()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- Follow(ctx, addr, follower) }()

	require.Eventually(t, func() bool { return follower.Len() == 1 && h.Peers() == 1 }, 2*time.Second, 10*time.Millisecond)

	b := host.Add(state.NewElement(state.ImageContent{URI: "file:///x.png"}, fyne.NewPos(5, 5), state.DefaultImageSize))
	_, err := host.Update(a.ID, state.Patch{Rotation: state.Ptr[float32](1)})
	require.NoError(t, err)
	require.NoError(t, host.Remove(b.ID))

	require.Eventually(t, func() bool {
		e, ok := follower.Element(a.ID)
		return ok && e.Rotation == 1 && follower.Len() == 1 && follower.Revision() == host.Revision()
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, host.Elements(), follower.Elements())
	assert.Equal(t, host.Selected(), follower.Selected())

	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Follow did not return after cancel")
	}
}

func TestFollowUnreachableHost(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := Follow(ctx, "127.0.0.1:1", state.NewModel())
	assert.Error(t, err)
}

func TestSnapshotEndpoint(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 12, 7))
	_, addr := startHub(t, state.NewModel(), captureFunc(func(context.Context) (image.Image, error) {
		return img, nil
	}))

	resp, err := http.Get("http://" + addr + "/snapshot.png")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	got, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), got.Bounds())
}

func TestSnapshotEndpointErrors(t *testing.T) {
	tests := []struct {
		name string
		c    Capturer
		want int
	}{
		{"disabled", nil, http.StatusNotFound},
		{"busy", captureFunc(func(context.Context) (image.Image, error) {
			return nil, surface.ErrCaptureInProgress
		}), http.StatusServiceUnavailable},
		{"failed", captureFunc(func(context.Context) (image.Image, error) {
			return nil, errors.New("no surface")
		}), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, addr := startHub(t, state.NewModel(), tt.c)
			resp, err := http.Get("http://" + addr + "/snapshot.png")
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestShareLinkRoundTrip(t *testing.T) {
	link := ShareLink("192.168.1.20", 8888)
	assert.Equal(t, "canvasboard://192.168.1.20:8888", link)

	addr, err := ParseLink(link + "/")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.20:8888", addr)

	for _, bad := range []string{"http://x:1", "canvasboard://", "canvasboard://hostonly"} {
		_, err := ParseLink(bad)
		assert.ErrorIs(t, err, ErrBadLink, bad)
	}
}

func TestEntryAddr(t *testing.T) {
	assert.Equal(t, "", entryAddr(nil))
	assert.Equal(t, "", entryAddr(&mdns.ServiceEntry{Port: 80}))
	assert.Equal(t, "10.0.0.5:8888", entryAddr(&mdns.ServiceEntry{AddrV4: []byte{10, 0, 0, 5}, Port: 8888}))
}
