package sim

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Collector resolves the batch of events accumulated for one key since the
// previous step into a state mutation. It receives the full batch in arrival
// order; a "keep latest" policy is expressed by only looking at the last
// element (see LatestEvent). Exactly one collector runs per key per drain.
// Multiple events for the same key routinely accumulate between two steps;
// how they collapse into one mutation is the collector's contract, not a
// scheduling accident.
type Collector func(events []PendingEvent, m *Microgrid) error

// APIRoutesFunc registers the SiL HTTP endpoints. External code defines
// arbitrary routes on the router; anything that writes simulation state must
// go through broker.SetEvent, never mutate the microgrid directly.
type APIRoutesFunc func(router *gin.Engine, broker *Broker, signals map[string]Signal)

// SilControllerConfig groups SilController construction parameters.
type SilControllerConfig struct {
	APIHost     string               // listen host (default 127.0.0.1)
	APIPort     int                  // listen port (default 8000)
	APIRoutes   APIRoutesFunc        // route registration hook (default DefaultAPIRoutes)
	Collectors  map[string]Collector // per-key event resolution policies
	GridSignals map[string]Signal    // read-only signals exposed to API handlers
}

// SilController is the software-in-the-loop bridge: it runs an HTTP API for
// external asynchronous writers and, once per simulation step, drains the
// Broker and resolves the accumulated events into microgrid state.
//
// Per step the controller moves through drain (exclusive access, brief) and
// resolve (collectors run on the simulation thread, may mutate the microgrid);
// between steps the API handlers are free to append further events.
type SilController struct {
	broker     *Broker
	collectors map[string]Collector
	signals    map[string]Signal
	routes     APIRoutesFunc
	addr       string
	server     *http.Server
}

// NewSilController creates the controller and its broker. The API server is
// not started until Start is called by the environment.
func NewSilController(cfg SilControllerConfig) *SilController {
	host := cfg.APIHost
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.APIPort
	if port == 0 {
		port = 8000
	}
	routes := cfg.APIRoutes
	if routes == nil {
		routes = DefaultAPIRoutes
	}
	collectors := cfg.Collectors
	if collectors == nil {
		collectors = map[string]Collector{}
	}
	return &SilController{
		broker:     NewBroker(),
		collectors: collectors,
		signals:    cfg.GridSignals,
		routes:     routes,
		addr:       fmt.Sprintf("%s:%d", host, port),
	}
}

// Broker returns the controller's broker, e.g. for tests or for wiring
// additional writers.
func (s *SilController) Broker() *Broker {
	return s.broker
}

func (s *SilController) Name() string {
	return "sil"
}

// Start implements Controller. It registers the API routes and launches the
// HTTP server on its own goroutine.
func (s *SilController) Start(m *Microgrid) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	s.routes(router, s.broker, s.signals)

	s.server = &http.Server{Addr: s.addr, Handler: router}
	go func() {
		logrus.Infof("SiL API listening on %s", s.addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("SiL API server: %v", err)
		}
	}()
	return nil
}

// Step implements Controller. It publishes the step's state snapshot for API
// readers, drains the broker, and resolves every drained key through its
// registered collector. Keys without a collector are logged and discarded;
// new keys the current configuration does not care about are not an error.
func (s *SilController) Step(now time.Time, res StepResult, m *Microgrid) error {
	state := GridState{
		Clock:       res.Clock,
		Time:        res.Time,
		TotalPower:  res.TotalPower,
		ActorPowers: res.ActorPowers,
	}
	if storage := m.Storage(); storage != nil {
		state.Soc = storage.Soc()
		state.ChargeLevel = storage.ChargeLevel()
		state.MinSoc = storage.MinSoc()
	}
	s.broker.PublishState(state)

	batch := s.broker.Drain()
	if len(batch) == 0 {
		return nil
	}
	// Resolve keys in sorted order so runs with identical event batches are
	// reproducible regardless of map iteration order.
	keys := make([]string, 0, len(batch))
	for key := range batch {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		collector, ok := s.collectors[key]
		if !ok {
			logrus.Warnf("no collector registered for event key %q, dropping %d event(s)", key, len(batch[key]))
			continue
		}
		logrus.Debugf("resolving %d event(s) for key %q", len(batch[key]), key)
		if err := collector(batch[key], m); err != nil {
			return fmt.Errorf("collector %q: %w", key, err)
		}
	}
	return nil
}

// Finalize implements Controller. It shuts the API server down.
func (s *SilController) Finalize() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		logrus.Warnf("SiL API shutdown: %v", err)
	}
}

// LatestEvent returns the value of the last event in a batch. The canonical
// "latest wins" resolution helper for collectors.
func LatestEvent(events []PendingEvent) any {
	return events[len(events)-1].Value
}

// eventFloat converts a collector event value written by an API handler.
func eventFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("expected numeric event value, got %T", v)
	}
}

// BatteryMinSocCollector applies the latest battery_min_soc event to the
// microgrid's storage.
func BatteryMinSocCollector(events []PendingEvent, m *Microgrid) error {
	storage := m.Storage()
	if storage == nil {
		return fmt.Errorf("microgrid has no storage")
	}
	v, err := eventFloat(LatestEvent(events))
	if err != nil {
		return err
	}
	return storage.SetMinSoc(v)
}

// GridChargeCollector applies the latest battery_grid_charge event to the
// microgrid's default policy, forcing grid (dis)charge at the given power.
func GridChargeCollector(events []PendingEvent, m *Microgrid) error {
	policy, ok := m.Policy().(*DefaultMicrogridPolicy)
	if !ok {
		return fmt.Errorf("grid charge requires the default microgrid policy, got %T", m.Policy())
	}
	v, err := eventFloat(LatestEvent(events))
	if err != nil {
		return err
	}
	policy.GridPower = v
	return nil
}

// batteryModel is the PUT /battery request body.
type batteryModel struct {
	MinSoc     *float64 `json:"min_soc"`
	GridCharge *float64 `json:"grid_charge"`
}

// DefaultAPIRoutes registers the stock SiL endpoints: state reads against the
// broker's published snapshot, signal reads, and battery writes routed through
// broker.SetEvent. Callers needing a different surface pass their own
// APIRoutesFunc; this set is a convenience, not a contract.
func DefaultAPIRoutes(router *gin.Engine, broker *Broker, signals map[string]Signal) {
	router.GET("/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, broker.State())
	})
	router.GET("/battery/soc", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"soc": broker.State().Soc})
	})
	router.GET("/grid-power", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"total_power": broker.State().TotalPower})
	})
	router.GET("/actors/:name/p", func(c *gin.Context) {
		state := broker.State()
		p, ok := state.ActorPowers[c.Param("name")]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown actor"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"p": p})
	})
	router.GET("/signals/:name", func(c *gin.Context) {
		signal, ok := signals[c.Param("name")]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown signal"})
			return
		}
		v, err := signal.At(broker.State().Time, c.Query("column"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"value": v})
	})
	router.PUT("/battery", func(c *gin.Context) {
		var body batteryModel
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if body.MinSoc != nil {
			broker.SetEvent("battery_min_soc", *body.MinSoc)
		}
		if body.GridCharge != nil {
			broker.SetEvent("battery_grid_charge", *body.GridCharge)
		}
		c.JSON(http.StatusOK, gin.H{"status": "accepted"})
	})
}
