package radio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/dbehnke/pwn-beacon/pkg/logger"
	"github.com/dbehnke/pwn-beacon/pkg/protocol"
)

// LE controller command group and the OCFs used for legacy advertising
const (
	ogfLEController = 0x08

	ocfSetAdvertisingParameters = 0x0006
	ocfSetAdvertisingData       = 0x0008
	ocfSetAdvertiseEnable       = 0x000a
)

// Runner executes an external command and returns its combined output
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

// Run implements Runner
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// CommandError reports a command the controller rejected
type CommandError struct {
	Op     string
	OCF    uint16
	Status uint8
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: controller returned status 0x%02x for ocf 0x%04x", e.Op, e.Status, e.OCF)
}

// HCIToolConfig holds hcitool settings
type HCIToolConfig struct {
	Path    string        // hcitool binary
	Device  string        // e.g. hci0
	Timeout time.Duration // per command
}

// HCITool implements Controller by issuing raw HCI commands through hcitool
type HCITool struct {
	config HCIToolConfig
	runner Runner
	log    *logger.Logger
}

// NewHCITool creates an hcitool backed controller. A nil runner uses os/exec.
func NewHCITool(config HCIToolConfig, runner Runner, log *logger.Logger) *HCITool {
	if config.Path == "" {
		config.Path = "hcitool"
	}
	if config.Device == "" {
		config.Device = "hci0"
	}
	if config.Timeout <= 0 {
		config.Timeout = 3 * time.Second
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if log == nil {
		log = logger.Nop()
	}

	return &HCITool{
		config: config,
		runner: runner,
		log:    log.WithComponent("radio"),
	}
}

// SetAdvertisingParameters implements Controller
func (h *HCITool) SetAdvertisingParameters(ctx context.Context, p AdvertisingParameters) error {
	params := p.Bytes()
	return h.command(ctx, OpSetParameters, ocfSetAdvertisingParameters, params[:])
}

// SetAdvertisingData implements Controller
func (h *HCITool) SetAdvertisingData(ctx context.Context, adv protocol.Advertisement) error {
	return h.command(ctx, OpSetData, ocfSetAdvertisingData, adv.CommandParams())
}

// SetAdvertisingEnabled implements Controller
func (h *HCITool) SetAdvertisingEnabled(ctx context.Context, enabled bool) error {
	if enabled {
		return h.command(ctx, OpEnable, ocfSetAdvertiseEnable, []byte{0x01})
	}
	return h.command(ctx, OpDisable, ocfSetAdvertiseEnable, []byte{0x00})
}

// Args returns the hcitool argument list for one command
func (h *HCITool) Args(ocf uint16, params []byte) []string {
	args := make([]string, 0, 5+len(params))
	args = append(args,
		"-i", h.config.Device,
		"cmd",
		fmt.Sprintf("0x%02x", ogfLEController),
		fmt.Sprintf("0x%04x", ocf),
	)
	for _, b := range params {
		args = append(args, hex.EncodeToString([]byte{b}))
	}
	return args
}

func (h *HCITool) command(ctx context.Context, op string, ocf uint16, params []byte) error {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	args := h.Args(ocf, params)
	h.log.Debug("HCI command",
		logger.String("op", op),
		logger.String("device", h.config.Device),
		logger.Hex("params", params))

	out, err := h.runner.Run(ctx, h.config.Path, args...)
	if err != nil {
		return fmt.Errorf("%s: hcitool failed: %w (output: %s)", op, err, strings.TrimSpace(string(out)))
	}

	if status, ok := parseStatus(out); ok && status != 0 {
		return &CommandError{Op: op, OCF: ocf, Status: status}
	}
	return nil
}

// parseStatus extracts the status byte from hcitool's Command Complete dump:
//
//	> HCI Event: 0x0e plen 4
//	  01 08 20 00
//
// The parameters are num_packets, opcode (2) and status.
func parseStatus(out []byte) (uint8, bool) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	inEvent := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "> HCI Event: 0x0e") {
			inEvent = true
			continue
		}
		if !inEvent || line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 4 {
			return 0, false
		}
		b, err := hex.DecodeString(fields[3])
		if err != nil || len(b) != 1 {
			return 0, false
		}
		return b[0], true
	}
	return 0, false
}
