package scanner

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dbehnke/pwn-beacon/pkg/logger"
	"github.com/dbehnke/pwn-beacon/pkg/protocol"
)

// ManufacturerPrefix marks a line whose hex is the bare manufacturer payload
// rather than raw advertising data
const ManufacturerPrefix = "mfr:"

// ErrMalformedLine is returned by ParseLine for lines it cannot use
var ErrMalformedLine = errors.New("malformed advert line")

// ParseLine parses "ADDRESS RSSI HEX [NAME...]". HEX is either raw
// advertising data (AD structures) or "mfr:" followed by the manufacturer
// payload for companyID.
func ParseLine(line string, companyID uint16) (Advertisement, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return Advertisement{}, fmt.Errorf("%w: want ADDRESS RSSI HEX, got %d fields", ErrMalformedLine, len(fields))
	}

	rssi, err := strconv.Atoi(fields[1])
	if err != nil {
		return Advertisement{}, fmt.Errorf("%w: rssi %q", ErrMalformedLine, fields[1])
	}

	adv := Advertisement{
		Address:          NormalizeAddress(fields[0]),
		RSSI:             rssi,
		ManufacturerData: make(map[uint16][]byte),
	}
	if len(fields) > 3 {
		adv.Name = strings.Join(fields[3:], " ")
	}

	raw := fields[2]
	if strings.HasPrefix(strings.ToLower(raw), ManufacturerPrefix) {
		payload, err := hex.DecodeString(raw[len(ManufacturerPrefix):])
		if err != nil {
			return Advertisement{}, fmt.Errorf("%w: payload hex: %v", ErrMalformedLine, err)
		}
		adv.ManufacturerData[companyID] = payload
		return adv, nil
	}

	data, err := hex.DecodeString(raw)
	if err != nil {
		return Advertisement{}, fmt.Errorf("%w: advertising data hex: %v", ErrMalformedLine, err)
	}
	if payload, ok := protocol.ExtractManufacturerData(data, companyID); ok {
		adv.ManufacturerData[companyID] = payload
	}
	return adv, nil
}

// ReadLines feeds every line of r through p until EOF or ctx is done.
// Blank lines and lines starting with '#' are skipped; malformed lines are
// logged and skipped. Cancellation returns ctx.Err() even while a read on r
// is blocked; that read is abandoned.
func ReadLines(ctx context.Context, r io.Reader, p *Processor) error {
	sc := bufio.NewScanner(&ctxReader{ctx: ctx, r: r})
	lineNo := 0
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		lineNo++

		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		adv, err := ParseLine(line, p.config.CompanyID)
		if err != nil {
			p.log.Warn("Skipping advert line",
				logger.Int("line", lineNo),
				logger.Error(err))
			continue
		}
		adv.Timestamp = time.Now()

		p.Handle(adv)
	}

	if err := sc.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return ctxErr
		}
		return fmt.Errorf("read adverts: %w", err)
	}
	return nil
}

type readResult struct {
	n   int
	err error
}

// ctxReader runs each Read in its own goroutine so a reader that never
// returns (stdin) cannot outlive ctx
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	buf := make([]byte, len(p))
	done := make(chan readResult, 1)
	go func() {
		n, err := c.r.Read(buf)
		done <- readResult{n, err}
	}()
	select {
	case res := <-done:
		copy(p, buf[:res.n])
		return res.n, res.err
	case <-c.ctx.Done():
		return 0, c.ctx.Err()
	}
}
