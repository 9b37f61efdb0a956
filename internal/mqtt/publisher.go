package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/daybreak/internal/briefing"
	"github.com/nugget/daybreak/internal/buildinfo"
	"github.com/nugget/daybreak/internal/config"
	"github.com/nugget/daybreak/internal/events"
)

// maxStateLength is the longest state Home Assistant accepts.
const maxStateLength = 255

const defaultPublishInterval = 5 * time.Minute

// Summarizer produces briefings. *briefing.Generator satisfies it.
type Summarizer interface {
	Generate(ctx context.Context, now time.Time, opts briefing.Options) briefing.SummaryResult
}

// publishClient is the subset of the connection manager the publisher
// writes through.
type publishClient interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

// Publisher manages the MQTT connection, publishes HA discovery config
// messages on (re-)connect, and pushes sensor states for every
// generated summary.
type Publisher struct {
	cfg        config.MQTTConfig
	instanceID string
	device     DeviceInfo
	summarizer Summarizer
	bus        *events.Bus
	tally      *DailyTally
	logger     *slog.Logger
	now        func() time.Time

	cm     *autopaho.ConnectionManager
	client publishClient
}

// New creates a Publisher but does not connect. Call [Publisher.Start]
// to begin the connection and publish loop. bus must be non-nil: the
// publisher learns about summaries from it.
func New(cfg config.MQTTConfig, instanceID string, summarizer Summarizer, bus *events.Bus, tally *DailyTally, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if tally == nil {
		tally = NewDailyTally(nil)
	}
	return &Publisher{
		cfg:        cfg,
		instanceID: instanceID,
		device:     NewDeviceInfo(instanceID, cfg.DeviceName),
		summarizer: summarizer,
		bus:        bus,
		tally:      tally,
		logger:     logger.With("component", "mqtt"),
		now:        time.Now,
	}
}

// Start connects to the MQTT broker and begins the periodic publish
// loop. It blocks until ctx is cancelled. On every (re-)connect it
// publishes discovery configs and a birth message.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   p.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
			p.publishDiscovery(ctx, cm)
			p.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "daybreak-" + p.cfg.DeviceName,
		},
	}

	// Enable TLS for mqtts:// or ssl:// schemes.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm
	p.client = cm

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	p.runLoop(ctx)
	return nil
}

// Stop publishes an "offline" availability message and disconnects.
// ctx bounds how long to wait for both.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	p.publishAvailability(ctx, p.cm, "offline")
	return p.cm.Disconnect(ctx)
}

// --- Topic helpers ---

func (p *Publisher) baseTopic() string {
	return "daybreak/" + p.cfg.DeviceName
}

func (p *Publisher) availabilityTopic() string {
	return p.baseTopic() + "/availability"
}

func (p *Publisher) stateTopic(entity string) string {
	return p.baseTopic() + "/" + entity + "/state"
}

func (p *Publisher) attributesTopic(entity string) string {
	return p.baseTopic() + "/" + entity + "/attributes"
}

func (p *Publisher) discoveryTopic(component, entity string) string {
	return p.cfg.DiscoveryPrefix + "/" + component + "/" + p.cfg.DeviceName + "/" + entity + "/config"
}

// --- Discovery ---

type sensorDef struct {
	entitySuffix string
	config       SensorConfig
}

func (p *Publisher) sensor(entity, name, icon string) SensorConfig {
	return SensorConfig{
		Name:              name,
		ObjectID:          entity,
		HasEntityName:     true,
		UniqueID:          p.instanceID + "_" + entity,
		StateTopic:        p.stateTopic(entity),
		AvailabilityTopic: p.availabilityTopic(),
		Device:            p.device,
		Icon:              icon,
	}
}

func (p *Publisher) sensorDefinitions() []sensorDef {
	greeting := p.sensor("greeting", "Greeting", "mdi:weather-sunset-up")

	summary := p.sensor("summary", "Summary", "mdi:text-box-outline")
	summary.JsonAttributesTopic = p.attributesTopic("summary")

	updated := p.sensor("last_updated", "Last Updated", "")
	updated.DeviceClass = "timestamp"

	strategy := p.sensor("strategy", "Strategy", "mdi:robot-outline")
	strategy.EntityCategory = "diagnostic"

	generations := p.sensor("generations_today", "Generations Today", "mdi:counter")
	generations.StateClass = "total_increasing"
	generations.EntityCategory = "diagnostic"

	tokens := p.sensor("tokens_today", "Tokens Today", "mdi:counter")
	tokens.StateClass = "total_increasing"
	tokens.UnitOfMeasurement = "tokens"
	tokens.EntityCategory = "diagnostic"

	version := p.sensor("version", "Version", "mdi:tag")
	version.EntityCategory = "diagnostic"

	return []sensorDef{
		{"greeting", greeting},
		{"summary", summary},
		{"last_updated", updated},
		{"strategy", strategy},
		{"generations_today", generations},
		{"tokens_today", tokens},
		{"version", version},
	}
}

func (p *Publisher) publishDiscovery(ctx context.Context, client publishClient) {
	for _, s := range p.sensorDefinitions() {
		topic := p.discoveryTopic("sensor", s.entitySuffix)
		payload, err := json.Marshal(s.config)
		if err != nil {
			p.logger.Error("mqtt marshal discovery payload",
				"entity", s.entitySuffix, "error", err)
			continue
		}

		if _, err := client.Publish(ctx, &paho.Publish{
			Topic:   topic,
			Payload: payload,
			QoS:     1,
			Retain:  true,
		}); err != nil {
			p.logger.Warn("mqtt discovery publish failed",
				"entity", s.entitySuffix, "topic", topic, "error", err)
		} else {
			p.logger.Debug("mqtt discovery published",
				"entity", s.entitySuffix, "topic", topic)
		}
	}
}

func (p *Publisher) publishAvailability(ctx context.Context, client publishClient, status string) {
	if _, err := client.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed",
			"status", status, "error", err)
	} else {
		p.logger.Info("mqtt availability published", "status", status)
	}
}

// --- Publish loop ---

// runLoop generates a summary on every tick and publishes states for
// every summary seen on the bus, including those requested over HTTP.
func (p *Publisher) runLoop(ctx context.Context) {
	ch := p.bus.Subscribe(16)
	defer p.bus.Unsubscribe(ch)

	interval := time.Duration(p.cfg.PublishIntervalSec) * time.Second
	if interval <= 0 {
		interval = defaultPublishInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.generate(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.generate(ctx)
		case e, ok := <-ch:
			if !ok {
				return
			}
			if e.Kind == events.KindGenerated {
				p.publishSummary(ctx, e)
			}
		}
	}
}

func (p *Publisher) generate(ctx context.Context) {
	if p.summarizer == nil {
		return
	}
	// The generator announces the result on the bus.
	p.summarizer.Generate(ctx, p.now(), briefing.Options{})
}

// summaryStates derives sensor states and the summary attributes from
// a generated event.
func summaryStates(e events.Event) (map[string]string, map[string]any) {
	str := func(k string) string {
		v, _ := e.Data[k].(string)
		return v
	}
	text := str("summary")
	states := map[string]string{
		"greeting":     str("greeting"),
		"summary":      truncateState(text, maxStateLength),
		"last_updated": str("last_updated"),
		"strategy":     str("strategy"),
	}
	attrs := map[string]any{
		"text":     text,
		"greeting": str("greeting"),
	}
	return states, attrs
}

func intData(e events.Event, key string) int {
	v, _ := e.Data[key].(int)
	return v
}

// truncateState shortens s to at most n runes, marking the cut.
func truncateState(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func (p *Publisher) publishSummary(ctx context.Context, e events.Event) {
	if p.client == nil {
		return
	}

	states, attrs := summaryStates(e)
	p.tally.Observe(states["strategy"] == briefing.StrategyAI,
		intData(e, "input_tokens")+intData(e, "output_tokens"))

	generations, _, tokens := p.tally.Snapshot()
	states["generations_today"] = strconv.FormatInt(generations, 10)
	states["tokens_today"] = strconv.FormatInt(tokens, 10)
	states["version"] = buildinfo.Version

	for entity, value := range states {
		p.publish(ctx, p.stateTopic(entity), []byte(value), entity)
	}

	if payload, err := json.Marshal(attrs); err != nil {
		p.logger.Error("mqtt marshal summary attributes", "error", err)
	} else {
		p.publish(ctx, p.attributesTopic("summary"), payload, "summary")
	}

	p.logger.Debug("mqtt sensor states published",
		"entities", len(states), "strategy", states["strategy"])
	p.bus.Emit(events.SourceMQTT, events.KindPublished, map[string]any{
		"strategy": states["strategy"],
	})
}

func (p *Publisher) publish(ctx context.Context, topic string, payload []byte, entity string) {
	if _, err := p.client.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     0,
		Retain:  true,
	}); err != nil {
		p.logger.Debug("mqtt state publish failed",
			"entity", entity, "error", err)
	}
}
