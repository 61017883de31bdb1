package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	hzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/urfave/cli/v3"

	"github.com/tgifai/tgflow/internal/bot"
	"github.com/tgifai/tgflow/internal/config"
	"github.com/tgifai/tgflow/internal/consts"
	"github.com/tgifai/tgflow/internal/dispatch"
	"github.com/tgifai/tgflow/internal/gateway"
	"github.com/tgifai/tgflow/internal/intent"
	"github.com/tgifai/tgflow/internal/pattern"
	"github.com/tgifai/tgflow/internal/pkg/logs"
	"github.com/tgifai/tgflow/internal/pkg/metrics"
	"github.com/tgifai/tgflow/internal/pkg/utils"
	"github.com/tgifai/tgflow/internal/stats"
)

const shutdownTimeout = 10 * time.Second

var runHwd = &RunRunner{}

type RunRunner struct{}

func (r *RunRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Log in with the configured transport and log every update",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the config file",
				Value:   consts.DefaultConfigPath(),
			},
		},
		Action: r.run,
	}
}

func (r *RunRunner) run(ctx context.Context, cmd *cli.Command) error {
	cfgPath := cmd.String("config")

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		fmt.Println("tgflow is not configured yet. Run \"tgflow onboard\" to get started.")
		return nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config error: %w", err)
	}

	if err = r.initLogger(cfg.Logging); err != nil {
		return fmt.Errorf("init logger error: %w", err)
	}
	hlog.SetLogger(logs.NewHlogLogger(logs.DefaultLogger()))
	defer logs.Flush()

	logs.CtxInfo(ctx, "booting tgflow, using config file: %s...", cfgPath)

	b, err := bot.New(cfg.Bot.Token,
		bot.WithIntents(cfg.IntentFilter()),
		bot.WithServerURL(cfg.Bot.APIURL),
	)
	if err != nil {
		return err
	}
	r.registerHandlers(b)

	loginOpts := bot.LoginOptionsFrom(cfg)
	var adminOpts []hzconfig.Option
	if cfg.Metrics.Enabled {
		// The tracer goes on whichever hertz server this process runs first.
		mopts := metrics.ServerOptions(cfg.Metrics.Addr, cfg.Metrics.Path)
		if loginOpts.Webhook != nil {
			loginOpts.Webhook.ServerOptions = mopts
		} else {
			adminOpts = mopts
		}
	}

	var gw *gateway.Gateway
	if cfg.Admin.Bind != "" || len(adminOpts) > 0 {
		gw = gateway.NewGateway(cfg.Admin.Bind, b, adminOpts...).WithConfig(config.Get, config.Hash)
		if err = gw.Start(ctx); err != nil {
			return fmt.Errorf("start admin server: %w", err)
		}
		defer func() { _ = gw.Stop(context.Background()) }()
	}

	if cfg.Stats.Schedule != "" {
		rep, err := stats.NewReporter(cfg.Stats.Schedule, b, metrics.GetRegistry())
		if err != nil {
			return err
		}
		rep.Start(ctx)
		defer rep.Stop(context.Background())
	}

	if err = b.Login(ctx, loginOpts); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	logs.CtxInfo(ctx, "ALL IS WELL!!! Press Ctrl+C to stop.")

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	reason := "shutdown"
	select {
	case sig := <-signalCh:
		logs.CtxInfo(ctx, "Received shutdown signal (%s). Stopping...", sig.String())
		reason = sig.String()
	case <-b.Done():
		if err = b.Err(); err != nil {
			logs.CtxError(ctx, "transport stopped with error: %v", err)
		}
		reason = "transport stopped"
	case <-ctx.Done():
		logs.CtxInfo(ctx, "Context canceled. Stopping...")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if stopErr := b.Disconnect(stopCtx, reason); stopErr != nil {
		logs.CtxError(ctx, "disconnect error: %v", stopErr)
	}

	logs.CtxInfo(ctx, "all stopped, good bye!")
	return err
}

// registerHandlers installs the diagnostics every deployment gets: lifecycle
// logging, an update trace at debug level and a /ping command.
func (r *RunRunner) registerHandlers(b *bot.Bot) {
	b.On(dispatch.KeyReady, func(ctx context.Context, c *dispatch.Context) error {
		logs.CtxInfo(ctx, "[run] ready as @%s", c.Me.Username)
		return nil
	})
	b.On(dispatch.KeyDisconnect, func(ctx context.Context, c *dispatch.Context) error {
		logs.CtxInfo(ctx, "[run] disconnected: %s", c.Reason)
		return nil
	})

	trace := func(ctx context.Context, c *dispatch.Context) error {
		u := c.Update
		logs.CtxDebug(ctx, "[run] %s update from chat %d: %s", u.Kind(), chatID(u.ChatID()), utils.Truncate80(u.Text()))
		return nil
	}
	kinds := b.Intents()
	if kinds == nil {
		kinds, _ = intent.New(intent.All)
	}
	for _, kind := range kinds.Names() {
		b.On(kind, trace)
	}

	b.Command(pattern.Lit("ping"), func(ctx context.Context, c *dispatch.Context) error {
		_, err := c.Reply(ctx, "pong")
		if errors.Is(err, dispatch.ErrUnsupported) {
			return nil
		}
		return err
	})
}

func chatID(id int64, ok bool) int64 {
	if !ok {
		return 0
	}
	return id
}

func (r *RunRunner) initLogger(cfg config.LoggingConfig) error {
	return logs.Init(logs.Options{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		File:       cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
	})
}
