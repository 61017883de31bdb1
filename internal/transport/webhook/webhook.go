// Package webhook receives updates pushed by the platform over HTTP.
package webhook

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	hzServer "github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/network/standard"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	tgconsts "github.com/tgifai/tgflow/internal/consts"
	"github.com/tgifai/tgflow/internal/pkg/logs"
	"github.com/tgifai/tgflow/internal/pkg/metrics"
	"github.com/tgifai/tgflow/internal/transport"
)

const (
	Name = "webhook"

	// SecretHeader carries the secret_token given to setWebhook.
	SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

	defaultExitWait = 5 * time.Second
)

var (
	ErrUnauthorized   = errors.New("webhook secret token mismatch")
	ErrAlreadyStarted = errors.New("webhook transport already started")
)

type Options struct {
	Host        string
	Port        int
	Path        string
	SecretToken string

	// ExitWait bounds how long Stop waits for in-flight requests.
	ExitWait time.Duration
	// ServerOptions are appended to the hertz server options, e.g. a tracer.
	ServerOptions []config.Option
}

var _ transport.Transport = (*Transport)(nil)

type Transport struct {
	opts  Options
	sink  transport.Sink
	state transport.StateBox

	mu     sync.Mutex
	ln     net.Listener
	server *hzServer.Hertz
	served chan struct{}
}

func New(sink transport.Sink, opts Options) *Transport {
	if opts.Path == "" {
		opts.Path = "/"
	}
	if opts.ExitWait <= 0 {
		opts.ExitWait = defaultExitWait
	}
	return &Transport{opts: opts, sink: sink, served: make(chan struct{})}
}

// newServer builds the hertz server around ln. A nil ln leaves binding to
// hertz, which is only useful for driving the handler in-process.
//
// The go net transport is used because it returns from Serve when its
// listener is closed underneath it, where netpoll panics.
func (t *Transport) newServer(ln net.Listener) *hzServer.Hertz {
	serverOpts := []config.Option{hzServer.WithExitWaitTime(t.opts.ExitWait)}
	if ln != nil {
		serverOpts = append(serverOpts,
			hzServer.WithListener(ln),
			hzServer.WithTransport(standard.NewTransporter),
		)
	} else {
		serverOpts = append(serverOpts, hzServer.WithHostPorts(t.Addr()))
	}
	h := hzServer.Default(append(serverOpts, t.opts.ServerOptions...)...)
	h.Any(t.opts.Path, t.handle)
	return h
}

func (t *Transport) Name() string { return Name }

func (t *Transport) State() transport.State { return t.state.Load() }

// Addr is the host:port the listener binds.
func (t *Transport) Addr() string {
	return net.JoinHostPort(t.opts.Host, strconv.Itoa(t.opts.Port))
}

// Start listens until Stop is called. A bind failure faults the transport.
// Start on a stopped transport returns nil without listening.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	if !t.state.CompareAndSwap(transport.Idle, transport.Listening) {
		t.mu.Unlock()
		if t.State() == transport.Stopped {
			return nil
		}
		return ErrAlreadyStarted
	}
	ln, err := net.Listen("tcp", t.Addr())
	if err != nil {
		t.state.Store(transport.Faulted)
		t.mu.Unlock()
		close(t.served)
		logs.CtxError(ctx, "[webhook] bind failed: %v", err)
		return fmt.Errorf("webhook listen on %s: %w", t.Addr(), err)
	}
	t.ln = ln
	t.server = t.newServer(ln)
	t.mu.Unlock()
	defer close(t.served)

	logs.CtxInfo(ctx, "[webhook] listening on %s%s", ln.Addr(), t.opts.Path)
	err = t.server.Run()
	if t.State() == transport.Stopped {
		logs.CtxInfo(ctx, "[webhook] stopped")
		return nil
	}
	t.state.Store(transport.Faulted)
	if err == nil {
		err = errors.New("listener exited")
	}
	logs.CtxError(ctx, "[webhook] listener failed: %v", err)
	return fmt.Errorf("webhook listen on %s: %w", ln.Addr(), err)
}

// Stop closes the listener and waits up to ExitWait for in-flight requests,
// then until Start has returned or ctx is done.
func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	if t.state.CompareAndSwap(transport.Idle, transport.Stopped) {
		t.mu.Unlock()
		return nil
	}
	if !t.state.CompareAndSwap(transport.Listening, transport.Stopped) {
		t.mu.Unlock()
		return nil
	}
	ln, srv := t.ln, t.server
	t.mu.Unlock()

	var err error
	if srv.IsRunning() {
		if err = srv.Shutdown(ctx); err != nil {
			logs.CtxWarn(ctx, "[webhook] shutdown error: %v", err)
		}
	}
	// hertz may not be serving yet; a closed listener makes it exit as soon
	// as it tries.
	_ = ln.Close()

	select {
	case <-t.served:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) handle(ctx context.Context, c *app.RequestContext) {
	if string(c.Method()) != consts.MethodPost {
		metrics.WebhookRejected.WithLabelValues("method").Inc()
		c.JSON(consts.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if t.opts.SecretToken != "" {
		got := c.GetHeader(SecretHeader)
		if subtle.ConstantTimeCompare(got, []byte(t.opts.SecretToken)) != 1 {
			metrics.WebhookRejected.WithLabelValues("secret").Inc()
			logs.CtxWarn(ctx, "[webhook] reject request from %s: %v", c.ClientIP(), ErrUnauthorized)
			c.JSON(consts.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
	}

	body := c.GetRequest().Body()
	if len(body) == 0 {
		metrics.WebhookRejected.WithLabelValues("empty").Inc()
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "empty body"})
		return
	}
	// the request buffer is recycled once this handler returns
	raw := append([]byte(nil), body...)

	ctx = context.WithValue(ctx, tgconsts.CtxKeyTransport, Name)
	if err := t.sink.HandleRaw(ctx, raw); err != nil {
		logs.CtxDebug(ctx, "[webhook] sink rejected update: %v", err)
	}
	c.JSON(consts.StatusOK, map[string]bool{"ok": true})
}
