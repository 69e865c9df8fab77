package dependency

import (
	"context"
	"testing"

	"github.com/crystaldolphin/tgmirror/internal/channels"
	"github.com/crystaldolphin/tgmirror/internal/config"
	"github.com/crystaldolphin/tgmirror/internal/routing"
	"github.com/crystaldolphin/tgmirror/internal/schema"
	"github.com/crystaldolphin/tgmirror/internal/supervisor"
)

type nopClient struct{}

func (nopClient) Connect(context.Context) error { return nil }
func (nopClient) Disconnect()                   {}
func (nopClient) Lookup(context.Context, string) (schema.ResolvedID, error) {
	return 0, nil
}
func (nopClient) Listen(context.Context, []schema.ResolvedID, schema.MessageHandler) error {
	return nil
}
func (nopClient) SendText(context.Context, schema.ResolvedID, string, bool) error { return nil }
func (nopClient) SendMedia(context.Context, schema.ResolvedID, schema.MediaRef, string) error {
	return nil
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BotToken = "123:abc"
	cfg.MappingEntries = []config.MappingConfig{
		{Source: routing.RawInt(555), Destinations: config.RawList{routing.RawInt(-100123)}},
	}
	return &cfg
}

func TestNew_WiresTelegramClient(t *testing.T) {
	c, err := New(testConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := c.Client().(*channels.TelegramClient); !ok {
		t.Errorf("Client() = %T, want *channels.TelegramClient", c.Client())
	}
	if len(c.Mappings()) != 1 {
		t.Errorf("Mappings() = %v", c.Mappings())
	}
	if c.Supervisor() == nil || c.Resolver() == nil || c.Stats() == nil {
		t.Fatal("missing services")
	}
	if c.Supervisor().State() != supervisor.StateDisconnected {
		t.Errorf("supervisor started early: %s", c.Supervisor().State())
	}
	if !c.Heartbeat().Enabled() {
		t.Error("default schedule should enable the heartbeat")
	}
}

func TestNew_FilterUsesConfiguredKeywords(t *testing.T) {
	cfg := testConfig()
	cfg.Keywords = []string{" Sale ", ""}
	c, err := New(cfg, nil, WithClient(nopClient{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if kw := c.Filter().Keywords(); len(kw) != 1 || kw[0] != "sale" {
		t.Errorf("Keywords() = %v, want [sale]", kw)
	}
}

func TestNew_WithClient(t *testing.T) {
	c, err := New(testConfig(), nil, WithClient(nopClient{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := c.Client().(nopClient); !ok {
		t.Errorf("Client() = %T, want nopClient", c.Client())
	}

	table := c.Resolver().Resolve(context.Background(), c.Mappings())
	if table.String() != "{555: [-100123]}" {
		t.Errorf("table = %s", table)
	}
}

func TestNew_InvalidSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.StatsSchedule = "not a schedule"
	if _, err := New(cfg, nil); err == nil {
		t.Fatal("expected error for invalid stats_schedule")
	}
}
