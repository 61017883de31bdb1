package webhook

import (
	"bytes"
	"context"
	"net"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tgconsts "github.com/tgifai/tgflow/internal/consts"
	"github.com/tgifai/tgflow/internal/dispatch"
	"github.com/tgifai/tgflow/internal/transport"
)

const pollUpdate = `{"update_id":10,"poll":{"id":"p"}}`

type sink struct {
	mu         sync.Mutex
	bodies     []string
	transports []string
}

func (s *sink) HandleRaw(ctx context.Context, raw []byte) error {
	name, _ := ctx.Value(tgconsts.CtxKeyTransport).(string)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies = append(s.bodies, string(raw))
	s.transports = append(s.transports, name)
	return nil
}

func post(tr *Transport, path, body string, headers ...ut.Header) *ut.ResponseRecorder {
	return ut.PerformRequest(tr.newServer(nil).Engine, consts.MethodPost, path,
		&ut.Body{Body: bytes.NewBufferString(body), Len: len(body)}, headers...)
}

func TestWebhook_SecretMismatchIsRejected(t *testing.T) {
	s := &sink{}
	tr := New(s, Options{Host: "127.0.0.1", Port: 0, Path: "/hook", SecretToken: "s3cret"})

	w := post(tr, "/hook", pollUpdate, ut.Header{Key: SecretHeader, Value: "wrong"})
	assert.Equal(t, consts.StatusUnauthorized, w.Result().StatusCode())

	w = post(tr, "/hook", pollUpdate)
	assert.Equal(t, consts.StatusUnauthorized, w.Result().StatusCode())

	assert.Empty(t, s.bodies)
}

func TestWebhook_SecretMatchDispatchesOnce(t *testing.T) {
	s := &sink{}
	tr := New(s, Options{Host: "127.0.0.1", Path: "/hook", SecretToken: "s3cret"})

	w := post(tr, "/hook", pollUpdate, ut.Header{Key: SecretHeader, Value: "s3cret"})
	assert.Equal(t, consts.StatusOK, w.Result().StatusCode())
	assert.Equal(t, []string{pollUpdate}, s.bodies)
	assert.Equal(t, []string{Name}, s.transports)
}

func TestWebhook_NoSecretConfigured(t *testing.T) {
	s := &sink{}
	tr := New(s, Options{Host: "127.0.0.1", Path: "/"})

	w := post(tr, "/", pollUpdate, ut.Header{Key: SecretHeader, Value: "anything"})
	assert.Equal(t, consts.StatusOK, w.Result().StatusCode())
	assert.Len(t, s.bodies, 1)
}

func TestWebhook_MethodAndBody(t *testing.T) {
	s := &sink{}
	tr := New(s, Options{Host: "127.0.0.1", Path: "/hook"})

	w := ut.PerformRequest(tr.newServer(nil).Engine, consts.MethodGet, "/hook", &ut.Body{Body: bytes.NewBufferString(""), Len: 0})
	assert.Equal(t, consts.StatusMethodNotAllowed, w.Result().StatusCode())

	w = post(tr, "/hook", "")
	assert.Equal(t, consts.StatusBadRequest, w.Result().StatusCode())

	w = post(tr, "/other", pollUpdate)
	assert.Equal(t, consts.StatusNotFound, w.Result().StatusCode())

	assert.Empty(t, s.bodies)
}

func TestWebhook_HandlerFailureStillAcks(t *testing.T) {
	bus := dispatch.NewBus()
	calls := 0
	bus.On("poll", func(context.Context, *dispatch.Context) error {
		calls++
		panic("handler exploded")
	})
	tr := New(dispatch.NewPipeline(bus, nil), Options{Host: "127.0.0.1", Path: "/hook"})

	w := post(tr, "/hook", pollUpdate)
	bus.Wait()
	assert.Equal(t, consts.StatusOK, w.Result().StatusCode())
	assert.Equal(t, 1, calls)
}

func TestWebhook_MalformedIsAcked(t *testing.T) {
	bus := dispatch.NewBus()
	tr := New(dispatch.NewPipeline(bus, nil), Options{Host: "127.0.0.1", Path: "/hook"})

	w := post(tr, "/hook", `{"update_id":1}`)
	require.Equal(t, consts.StatusOK, w.Result().StatusCode())
}

func TestWebhook_StopBeforeStart(t *testing.T) {
	tr := New(&sink{}, Options{Host: "127.0.0.1", Port: 0})
	require.NoError(t, tr.Stop(context.Background()))
	assert.Equal(t, transport.Stopped, tr.State())
	assert.NoError(t, tr.Start(context.Background()))
	assert.Equal(t, transport.Stopped, tr.State())
}

func TestWebhook_StopRightAfterStart(t *testing.T) {
	for i := 0; i < 20; i++ {
		tr := New(&sink{}, Options{Host: "127.0.0.1", Port: 0, ExitWait: time.Second})

		errCh := make(chan error, 1)
		go func() { errCh <- tr.Start(context.Background()) }()
		for tr.State() == transport.Idle {
			runtime.Gosched()
		}

		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		require.NoError(t, tr.Stop(stopCtx))
		cancel()

		select {
		case err := <-errCh:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("Start kept listening after Stop")
		}
		assert.Equal(t, transport.Stopped, tr.State())
	}
}

func TestWebhook_BindFailureFaults(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	tr := New(&sink{}, Options{Host: "127.0.0.1", Port: port})
	assert.Error(t, tr.Start(context.Background()))
	assert.Equal(t, transport.Faulted, tr.State())
	assert.NoError(t, tr.Stop(context.Background()))
}
