package engine

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fleexa/device-sync/internal/api"
	"github.com/fleexa/device-sync/internal/command"
	"github.com/fleexa/device-sync/internal/infrastructure/config"
	"github.com/fleexa/device-sync/internal/infrastructure/database"
	"github.com/fleexa/device-sync/internal/infrastructure/influxdb"
	"github.com/fleexa/device-sync/internal/infrastructure/logging"
	"github.com/fleexa/device-sync/internal/infrastructure/mqtt"
	"github.com/fleexa/device-sync/internal/roster"
	"github.com/fleexa/device-sync/internal/state"
	"github.com/fleexa/device-sync/internal/stream"
	"github.com/fleexa/device-sync/internal/transport"
	"github.com/fleexa/device-sync/internal/upstream"
)

// Engine owns every component of the sync pipeline and wires them together:
// push channel -> normalizer -> store -> (facade, telemetry sink), plus the
// command and roster paths back upstream.
type Engine struct {
	cfg    *config.Config
	logger *logging.Logger

	store      *state.Store
	normalizer *stream.Normalizer
	session    *upstream.Session
	client     *upstream.Client
	dispatcher *command.Dispatcher
	rosterMgr  *roster.Manager
	conn       *transport.Conn
	server     *api.Server

	db         *database.DB
	mqttClient *mqtt.Client
	influx     *influxdb.Client

	unsubInflux func()
	cancel      context.CancelFunc
}

// New assembles the engine from configuration. No I/O happens until Start.
func New(cfg *config.Config, logger *logging.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("engine: config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("engine: logger is required")
	}

	e := &Engine{cfg: cfg, logger: logger}

	e.store = state.NewStore()
	e.store.SetLogger(logger.With("component", "state"))

	e.normalizer = stream.NewNormalizer()
	e.normalizer.SetLogger(logger.With("component", "stream"))

	httpClient := &http.Client{Timeout: cfg.GetRequestTimeout()}
	e.session = upstream.NewSession(httpClient, cfg.Upstream.BaseURL,
		cfg.Upstream.Auth.Username, cfg.Upstream.Auth.Password)
	e.session.SetLogger(logger.With("component", "upstream"))

	e.client = upstream.NewClient(cfg.Upstream.BaseURL, e.session, cfg.GetRequestTimeout())
	e.client.SetLogger(logger.With("component", "upstream"))

	e.dispatcher = command.NewDispatcher(e.store, e.client, cfg.GetRequestTimeout())
	e.dispatcher.SetLogger(logger.With("component", "command"))

	return e, nil
}

// Store exposes the state store, mainly for tests and the facade.
func (e *Engine) Store() *state.Store { return e.store }

// Start brings the engine up: roster cache, API facade, optional ingest and
// sink components, and finally the push channel.
func (e *Engine) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.startRoster(runCtx)

	if err := e.startServer(runCtx); err != nil {
		cancel()
		return err
	}

	e.startTransport(runCtx)
	e.startMQTT()
	e.startInflux()

	// First fetch of the authoritative listing happens on the first channel
	// open (see startTransport); kicking off the connection is the last step.
	e.conn.Retry(runCtx)

	e.logger.Info("engine started",
		"devices", e.store.Count(),
		"mqtt", e.cfg.MQTT.Enabled,
		"influxdb", e.cfg.InfluxDB.Enabled,
	)
	return nil
}

// startRoster opens the local cache, builds the manager, and warm-starts the
// store from cached identities. Cache failures never block startup.
func (e *Engine) startRoster(ctx context.Context) {
	var cache roster.Cache

	db, err := database.Open(ctx, database.Config{
		Path:        e.cfg.Database.Path,
		WALMode:     e.cfg.Database.WALMode,
		BusyTimeout: e.cfg.Database.BusyTimeout,
	})
	if err != nil {
		e.logger.Warn("roster cache unavailable, starting without warm start", "error", err)
	} else {
		e.db = db
		cache = roster.NewRepository(db)
	}

	e.rosterMgr = roster.NewManager(e.client, e.store, cache)
	e.rosterMgr.SetLogger(e.logger.With("component", "roster"))

	if seeded := e.rosterMgr.WarmStart(ctx); seeded > 0 {
		e.logger.Info("warm start from roster cache", "devices", seeded)
	}
}

// startServer builds and starts the local UI facade.
func (e *Engine) startServer(ctx context.Context) error {
	srv, err := api.New(api.Deps{
		Config:     e.cfg.API,
		WS:         e.cfg.WebSocket,
		Logger:     e.logger.With("component", "api"),
		Store:      e.store,
		Commander:  e.dispatcher,
		Roster:     e.rosterMgr,
		Connection: connReporter{e},
		Version:    Version,
	})
	if err != nil {
		return fmt.Errorf("building API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	e.server = srv
	return nil
}

// connReporter defers Status calls to the connection, which does not exist
// yet when the server is built.
type connReporter struct{ e *Engine }

func (r connReporter) Status() transport.Status {
	if r.e.conn == nil {
		return transport.Status{}
	}
	return r.e.conn.Status()
}

// startTransport builds the push channel and hooks it into the pipeline.
func (e *Engine) startTransport(ctx context.Context) {
	e.conn = transport.NewConn(transport.Options{
		URL:          e.cfg.PushURL(),
		Token:        e.session.Token,
		Handler:      ingest(e.normalizer, e.store),
		InitialDelay: e.cfg.GetInitialBackoff(),
		MaxDelay:     e.cfg.GetMaxBackoff(),
		MaxAttempts:  e.cfg.Transport.MaxAttempts,

		// Reconnection is only worth the traffic while something is
		// actually watching a device.
		ShouldReconnect: e.store.AnyObserved,

		OnOpen: func(first bool) {
			if !first {
				return
			}
			go func() {
				if err := e.rosterMgr.Refresh(ctx); err != nil {
					e.logger.Warn("initial roster refresh failed", "error", err)
				}
			}()
		},
		OnStateChange: func(status transport.Status) {
			e.server.NotifyConnectionState(status)
		},
		Logger: e.logger.With("component", "transport"),
	})

	// A device coming under observation restores a suppressed or terminal
	// connection.
	e.store.SetOnObserved(func() {
		e.conn.Retry(ctx)
	})
}

// startMQTT connects the optional direct telemetry ingest.
func (e *Engine) startMQTT() {
	if !e.cfg.MQTT.Enabled {
		return
	}

	client, err := mqtt.Connect(e.cfg.MQTT)
	if err != nil {
		e.logger.Warn("mqtt ingest unavailable", "error", err)
		return
	}
	client.SetLogger(e.logger.With("component", "mqtt"))
	e.mqttClient = client

	qos := byte(e.cfg.MQTT.QoS)
	if err := client.Subscribe(e.cfg.MQTT.Topic, qos, ingestEnvelope(e.normalizer, e.store)); err != nil {
		e.logger.Warn("mqtt subscribe failed", "topic", e.cfg.MQTT.Topic, "error", err)
	}
}

// startInflux connects the optional telemetry write-through sink and feeds it
// from the store firehose.
func (e *Engine) startInflux() {
	if !e.cfg.InfluxDB.Enabled {
		return
	}

	client, err := influxdb.Connect(e.cfg.InfluxDB)
	if err != nil {
		e.logger.Warn("influxdb sink unavailable", "error", err)
		return
	}
	client.SetOnError(func(err error) {
		e.logger.Warn("influxdb write error", "error", err)
	})
	e.influx = client

	e.unsubInflux = e.store.SubscribeAll(func(ls state.LiveState) {
		client.WriteLiveState(ls)
	})
}

// Close tears the engine down in reverse dependency order.
func (e *Engine) Close() error {
	if e.cancel != nil {
		e.cancel()
	}

	if e.conn != nil {
		e.conn.Disconnect()
	}
	if e.unsubInflux != nil {
		e.unsubInflux()
	}
	if e.influx != nil {
		if err := e.influx.Close(); err != nil {
			e.logger.Warn("closing influxdb sink", "error", err)
		}
	}
	if e.mqttClient != nil {
		if err := e.mqttClient.Close(); err != nil {
			e.logger.Warn("closing mqtt client", "error", err)
		}
	}

	var firstErr error
	if e.server != nil {
		if err := e.server.Close(); err != nil {
			firstErr = err
		}
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	e.logger.Info("engine stopped")
	return firstErr
}

// HealthCheck verifies the started components are responsive.
func (e *Engine) HealthCheck(ctx context.Context) error {
	if e.server != nil {
		if err := e.server.HealthCheck(ctx); err != nil {
			return err
		}
	}
	if e.db != nil {
		if err := e.db.HealthCheck(ctx); err != nil {
			return err
		}
	}
	if e.mqttClient != nil {
		if err := e.mqttClient.HealthCheck(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ingest adapts the normalizer+store pair into a frame handler for the push
// channel. Malformed frames are logged inside the normalizer and dropped;
// they never disturb the connection.
func ingest(normalizer *stream.Normalizer, store *state.Store) transport.FrameHandler {
	return func(raw []byte) {
		updates, err := normalizer.Normalize(raw)
		if err != nil {
			return
		}
		for _, u := range updates {
			store.Apply(u.DeviceID, u.Partial)
		}
	}
}

// ingestEnvelope adapts the normalizer+store pair into an MQTT message
// handler. Broker messages wrap the frame in a routing envelope; the inner
// payload uses the same shapes as the push channel.
func ingestEnvelope(normalizer *stream.Normalizer, store *state.Store) mqtt.MessageHandler {
	return func(_ string, payload []byte) error {
		env, err := mqtt.ParseEnvelope(payload)
		if err != nil {
			return err
		}
		updates, err := normalizer.Normalize(env.Payload)
		if err != nil {
			return fmt.Errorf("normalizing envelope payload for %s: %w", env.DeviceID, err)
		}
		for _, u := range updates {
			store.Apply(u.DeviceID, u.Partial)
		}
		return nil
	}
}

// Version is stamped at build time via -ldflags.
var Version = "dev"
