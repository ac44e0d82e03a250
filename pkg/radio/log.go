package radio

import (
	"context"
	"encoding/hex"

	"github.com/dbehnke/pwn-beacon/pkg/logger"
	"github.com/dbehnke/pwn-beacon/pkg/protocol"
)

// LogController logs advertising commands instead of sending them. It is
// used for dry runs on hosts without a controller.
type LogController struct {
	log *logger.Logger
}

// NewLogController creates a dry-run controller
func NewLogController(log *logger.Logger) *LogController {
	if log == nil {
		log = logger.Nop()
	}
	return &LogController{log: log.WithComponent("radio.dryrun")}
}

// SetAdvertisingParameters implements Controller
func (c *LogController) SetAdvertisingParameters(ctx context.Context, p AdvertisingParameters) error {
	params := p.Bytes()
	c.log.Info("Set advertising parameters",
		logger.Duration("interval", p.IntervalMin),
		logger.String("params", hex.EncodeToString(params[:])))
	return ctx.Err()
}

// SetAdvertisingData implements Controller
func (c *LogController) SetAdvertisingData(ctx context.Context, adv protocol.Advertisement) error {
	c.log.Info("Set advertising data",
		logger.Int("len", adv.Len()),
		logger.String("data", adv.String()))
	return ctx.Err()
}

// SetAdvertisingEnabled implements Controller
func (c *LogController) SetAdvertisingEnabled(ctx context.Context, enabled bool) error {
	c.log.Info("Set advertising enabled", logger.Bool("enabled", enabled))
	return ctx.Err()
}
