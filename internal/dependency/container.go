// Package dependency wires the mirror's services using go.uber.org/dig.
package dependency

import (
	"log/slog"

	"go.uber.org/dig"

	"github.com/crystaldolphin/tgmirror/internal/channels"
	"github.com/crystaldolphin/tgmirror/internal/config"
	"github.com/crystaldolphin/tgmirror/internal/delivery"
	"github.com/crystaldolphin/tgmirror/internal/filter"
	"github.com/crystaldolphin/tgmirror/internal/heartbeat"
	"github.com/crystaldolphin/tgmirror/internal/routing"
	"github.com/crystaldolphin/tgmirror/internal/schema"
	"github.com/crystaldolphin/tgmirror/internal/supervisor"
)

// Container holds the resolved service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	client     schema.MessagingClient
	resolver   *routing.Resolver
	mappings   Mappings
	filter     *filter.Filter
	supervisor *supervisor.Supervisor
	heartbeat  *heartbeat.Service
	stats      *delivery.Stats
}

func (c *Container) Client() schema.MessagingClient     { return c.client }
func (c *Container) Resolver() *routing.Resolver        { return c.resolver }
func (c *Container) Mappings() []routing.Mapping        { return c.mappings }
func (c *Container) Filter() *filter.Filter             { return c.filter }
func (c *Container) Supervisor() *supervisor.Supervisor { return c.supervisor }
func (c *Container) Heartbeat() *heartbeat.Service      { return c.heartbeat }
func (c *Container) Stats() *delivery.Stats             { return c.stats }

// Mappings is a named slice so dig can inject the configured entries.
type Mappings []routing.Mapping

// Option adjusts the container before wiring.
type Option func(*options)

type options struct {
	client schema.MessagingClient
}

// WithClient replaces the Telegram client, e.g. with a fake in tests.
func WithClient(c schema.MessagingClient) Option {
	return func(o *options) { o.client = c }
}

// New builds and wires all services from cfg. Nothing connects until the
// supervisor runs.
func New(cfg *config.Config, log *slog.Logger, opts ...Option) (*Container, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	d := dig.New()

	if err := d.Provide(func() *config.Config { return cfg }); err != nil {
		return nil, err
	}
	if err := d.Provide(func() *slog.Logger { return log }); err != nil {
		return nil, err
	}
	if o.client != nil {
		if err := d.Provide(func() schema.MessagingClient { return o.client }); err != nil {
			return nil, err
		}
	} else if err := d.Provide(newClient); err != nil {
		return nil, err
	}
	if err := d.Provide(newMappings); err != nil {
		return nil, err
	}
	if err := d.Provide(newResolver); err != nil {
		return nil, err
	}
	if err := d.Provide(newFilter); err != nil {
		return nil, err
	}
	if err := d.Provide(delivery.NewStats); err != nil {
		return nil, err
	}
	if err := d.Provide(newEngine); err != nil {
		return nil, err
	}
	if err := d.Provide(routing.NewSnapshot); err != nil {
		return nil, err
	}
	if err := d.Provide(newSupervisor); err != nil {
		return nil, err
	}
	if err := d.Provide(newHeartbeat); err != nil {
		return nil, err
	}

	var result *Container
	err := d.Invoke(func(
		client schema.MessagingClient,
		resolver *routing.Resolver,
		mappings Mappings,
		f *filter.Filter,
		sup *supervisor.Supervisor,
		hb *heartbeat.Service,
		stats *delivery.Stats,
	) {
		result = &Container{
			client:     client,
			resolver:   resolver,
			mappings:   mappings,
			filter:     f,
			supervisor: sup,
			heartbeat:  hb,
			stats:      stats,
		}
	})
	return result, err
}

func newClient(cfg *config.Config, log *slog.Logger) schema.MessagingClient {
	channels.RouteLibraryLogs(log)
	return channels.NewTelegramClient(channels.TelegramOptions{
		Token:       cfg.BotToken,
		Endpoint:    cfg.APIEndpoint,
		PollTimeout: cfg.PollTimeoutSeconds,
		Name:        cfg.SessionName,
	}, log)
}

func newMappings(cfg *config.Config) Mappings {
	return cfg.Mappings()
}

func newResolver(cfg *config.Config, client schema.MessagingClient, log *slog.Logger) *routing.Resolver {
	return routing.NewResolver(client, cfg.LookupTimeout(), log)
}

func newFilter(cfg *config.Config, log *slog.Logger) *filter.Filter {
	return filter.New(cfg.Keywords, log)
}

func newEngine(cfg *config.Config, client schema.MessagingClient, stats *delivery.Stats, log *slog.Logger) *delivery.Engine {
	return delivery.NewEngine(client, delivery.Options{
		Delay:           cfg.Delay(),
		RateLimitMargin: cfg.RateLimitMargin(),
	}, stats, log)
}

func newSupervisor(
	cfg *config.Config,
	client schema.MessagingClient,
	resolver *routing.Resolver,
	mappings Mappings,
	f *filter.Filter,
	engine *delivery.Engine,
	snapshot *routing.Snapshot,
	log *slog.Logger,
) *supervisor.Supervisor {
	return supervisor.New(supervisor.Params{
		Client:          client,
		Resolver:        resolver,
		Mappings:        mappings,
		Filter:          f,
		Engine:          engine,
		Snapshot:        snapshot,
		RetryDelay:      cfg.RetryDelay(),
		RateLimitMargin: cfg.RateLimitMargin(),
	}, log)
}

func newHeartbeat(cfg *config.Config, stats *delivery.Stats, sup *supervisor.Supervisor, log *slog.Logger) (*heartbeat.Service, error) {
	status := func() string { return sup.State().String() }
	return heartbeat.NewService(stats, status, cfg.StatsSchedule, log)
}
