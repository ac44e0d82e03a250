package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dbehnke/pwn-beacon/pkg/database"
	"github.com/dbehnke/pwn-beacon/pkg/logger"
	"github.com/dbehnke/pwn-beacon/pkg/metrics"
	"github.com/dbehnke/pwn-beacon/pkg/scanner"
	"github.com/gin-gonic/gin"
)

const (
	defaultPerPage    = 50
	maxPerPage        = 500
	defaultHistoryLen = 20
	maxHistoryLen     = 200
)

// DeviceSource provides the latest state per device
type DeviceSource interface {
	Devices() []scanner.Sighting
	Device(address string) (scanner.Sighting, bool)
	DeviceCount() int
}

// SightingStore provides stored sighting history
type SightingStore interface {
	GetRecentPaginated(page, perPage int) ([]database.Sighting, int64, error)
	GetByAddress(address string, limit int) ([]database.Sighting, error)
}

// API handles REST API endpoints
type API struct {
	devices DeviceSource
	store   SightingStore
	metrics *metrics.Collector
	hub     *WebSocketHub
	started time.Time
	logger  *logger.Logger
}

// NewAPI creates a new API instance. store may be nil when history is
// not kept.
func NewAPI(devices DeviceSource, store SightingStore, m *metrics.Collector, hub *WebSocketHub, log *logger.Logger) *API {
	if m == nil {
		m = metrics.NewCollector()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &API{
		devices: devices,
		store:   store,
		metrics: m,
		hub:     hub,
		started: time.Now(),
		logger:  log,
	}
}

// HandleStatus handles GET /api/status
func (a *API) HandleStatus(c *gin.Context) {
	deviceCount := 0
	if a.devices != nil {
		deviceCount = a.devices.DeviceCount()
	}
	clients := 0
	if a.hub != nil {
		clients = a.hub.GetClientCount()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            "running",
		"service":           "pwn-scanner",
		"build":             GetVersionInfo(),
		"uptime_seconds":    int64(time.Since(a.started).Seconds()),
		"devices":           deviceCount,
		"active_devices":    a.metrics.GetActiveDevices(),
		"adverts_received":  a.metrics.GetAdvertsReceived(),
		"frames_decoded":    a.metrics.GetFramesDecoded(),
		"frames_ignored":    a.metrics.GetFramesIgnored(),
		"websocket_clients": clients,
		"history_enabled":   a.store != nil,
	})
}

// HandleDevices handles GET /api/devices
func (a *API) HandleDevices(c *gin.Context) {
	devices := []scanner.Sighting{}
	if a.devices != nil {
		devices = append(devices, a.devices.Devices()...)
	}
	c.JSON(http.StatusOK, devices)
}

// HandleDevice handles GET /api/devices/:address with optional ?limit= of
// stored history
func (a *API) HandleDevice(c *gin.Context) {
	address := c.Param("address")
	if a.devices == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	latest, ok := a.devices.Device(address)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}

	resp := gin.H{"latest": latest}
	if a.store != nil {
		limit := queryInt(c, "limit", defaultHistoryLen, 1, maxHistoryLen)
		history, err := a.store.GetByAddress(address, limit)
		if err != nil {
			a.logger.Error("Failed to load device history",
				logger.String("address", latest.Address),
				logger.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
			return
		}
		resp["history"] = history
	}
	c.JSON(http.StatusOK, resp)
}

// HandleSightings handles GET /api/sightings?page=&per_page=
func (a *API) HandleSightings(c *gin.Context) {
	if a.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sighting history is disabled"})
		return
	}

	page := queryInt(c, "page", 1, 1, 1<<20)
	perPage := queryInt(c, "per_page", defaultPerPage, 1, maxPerPage)

	sightings, total, err := a.store.GetRecentPaginated(page, perPage)
	if err != nil {
		a.logger.Error("Failed to load sightings", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sightings"})
		return
	}
	if sightings == nil {
		sightings = []database.Sighting{}
	}

	c.JSON(http.StatusOK, gin.H{
		"sightings": sightings,
		"total":     total,
		"page":      page,
		"per_page":  perPage,
	})
}

// queryInt reads an integer query parameter, falling back to def when it is
// missing or invalid and clamping to [lo, hi]
func queryInt(c *gin.Context, key string, def, lo, hi int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
