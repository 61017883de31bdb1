package dispatch

import (
	"context"

	"github.com/tgifai/tgflow/internal/consts"
	"github.com/tgifai/tgflow/internal/pkg/logs"
	"github.com/tgifai/tgflow/internal/pkg/metrics"
	"github.com/tgifai/tgflow/internal/update"
)

// Pipeline is the path shared by both transports: normalize, build the
// Context, dispatch.
type Pipeline struct {
	bus  *Bus
	bind func(*Context)
}

// NewPipeline returns a pipeline emitting on bus. bind fills the bot-level
// fields of every new Context and may be nil.
func NewPipeline(bus *Bus, bind func(*Context)) *Pipeline {
	return &Pipeline{bus: bus, bind: bind}
}

// HandleRaw processes one raw update. A malformed update is logged, counted
// and returned as *update.MalformedUpdateError; it is never dispatched.
func (p *Pipeline) HandleRaw(ctx context.Context, raw []byte) error {
	transport, _ := ctx.Value(consts.CtxKeyTransport).(string)
	metrics.UpdatesReceived.WithLabelValues(transport).Inc()

	u, err := update.Normalize(raw)
	if err != nil {
		metrics.UpdatesMalformed.WithLabelValues(transport).Inc()
		logs.CtxWarn(ctx, "[bus] drop update from %s: %v", transport, err)
		return err
	}

	ctx = logs.WithUpdateID(logs.NewCtx(ctx), u.ID())
	if chatID, ok := u.ChatID(); ok {
		ctx = context.WithValue(ctx, consts.CtxKeyChatID, chatID)
	}

	c := &Context{Update: u}
	if p.bind != nil {
		p.bind(c)
	}

	metrics.UpdatesDispatched.WithLabelValues(u.Kind().String()).Inc()
	logs.CtxDebug(ctx, "[bus] dispatch %s", u.Kind())
	p.bus.Dispatch(ctx, c, Keys(u)...)
	return nil
}
