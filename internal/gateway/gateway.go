// Package gateway serves the admin endpoints next to a running bot.
package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	hzServer "github.com/cloudwego/hertz/pkg/app/server"
	hzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/go-telegram/bot/models"
	"gopkg.in/yaml.v3"

	"github.com/tgifai/tgflow/internal/config"
	"github.com/tgifai/tgflow/internal/pkg/logs"
	"github.com/tgifai/tgflow/internal/transport"
)

const (
	defaultBind = "127.0.0.1:8081"
	exitWait    = 5 * time.Second
)

// Status is the part of a bot the health endpoint reports on.
type Status interface {
	State() transport.State
	Me() *models.User
}

// ConfigFunc and HashFunc read the process-wide configuration snapshot.
type (
	ConfigFunc func() (*config.Config, error)
	HashFunc   func() (string, error)
)

type Gateway struct {
	status     Status
	httpServer *hzServer.Hertz
	started    time.Time

	getConfig  ConfigFunc
	configHash HashFunc

	stopOnce sync.Once
}

func NewGateway(bind string, status Status, opts ...hzconfig.Option) *Gateway {
	if bind == "" {
		bind = defaultBind
	}

	hzSvr := hzServer.Default(append([]hzconfig.Option{
		hzServer.WithHostPorts(bind),
		hzServer.WithReadTimeout(10 * time.Second),
		hzServer.WithWriteTimeout(10 * time.Second),
		hzServer.WithExitWaitTime(exitWait),
	}, opts...)...)

	gw := &Gateway{
		status:     status,
		httpServer: hzSvr,
		started:    time.Now(),
	}
	hzSvr.GET("/health", gw.health)
	return gw
}

// WithConfig publishes the loaded configuration: its hash on /health and a
// redacted copy on GET /config. Call it before Start.
func (gw *Gateway) WithConfig(get ConfigFunc, hash HashFunc) *Gateway {
	gw.getConfig, gw.configHash = get, hash
	gw.httpServer.GET("/config", gw.serveConfig)
	return gw
}

func (gw *Gateway) Start(ctx context.Context) error {
	go gw.httpServer.Spin()
	logs.CtxInfo(ctx, "[gateway] admin server starting")
	return nil
}

func (gw *Gateway) Stop(ctx context.Context) error {
	var err error
	gw.stopOnce.Do(func() {
		if err = gw.httpServer.Shutdown(ctx); err != nil {
			logs.CtxWarn(ctx, "[gateway] shutdown admin server error: %v", err)
		}
	})
	return err
}

// health answers 200 while the transport is receiving and 503 otherwise.
func (gw *Gateway) health(_ context.Context, c *app.RequestContext) {
	state := gw.status.State()
	body := utils.H{
		"state":  state.String(),
		"uptime": time.Since(gw.started).Round(time.Second).String(),
	}
	if me := gw.status.Me(); me != nil {
		body["username"] = me.Username
	}
	if gw.configHash != nil {
		if h, err := gw.configHash(); err == nil {
			body["config"] = h
		}
	}

	code := consts.StatusOK
	if state != transport.Running && state != transport.Listening {
		code = consts.StatusServiceUnavailable
	}
	c.JSON(code, body)
}

func (gw *Gateway) serveConfig(ctx context.Context, c *app.RequestContext) {
	cfg, err := gw.getConfig()
	if err != nil {
		c.JSON(consts.StatusServiceUnavailable, utils.H{"error": err.Error()})
		return
	}
	// cfg is a clone, so redacting it leaves the snapshot intact
	cfg.Bot.Token = redact(cfg.Bot.Token)
	if cfg.Webhook != nil {
		cfg.Webhook.SecretToken = redact(cfg.Webhook.SecretToken)
	}

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		logs.CtxError(ctx, "[gateway] marshal config error: %v", err)
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "marshal config"})
		return
	}
	c.Data(consts.StatusOK, "application/yaml; charset=utf-8", raw)
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}
