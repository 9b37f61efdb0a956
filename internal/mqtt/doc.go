// Package mqtt exposes the current briefing to Home Assistant over
// MQTT. Daybreak appears as a native HA device whose sensors carry the
// greeting, the summary text and the time it was generated, so
// HA-driven dashboards can show the briefing without polling the HTTP
// API.
//
// The publisher uses Eclipse Paho v2's [autopaho] package for
// connection management with automatic reconnection. On every
// (re-)connect it publishes retained discovery config payloads for
// each sensor entity and a birth message ("online") to the
// availability topic. A will message ensures the availability topic
// transitions to "offline" on unexpected disconnects.
//
// Sensor states follow the event bus: every generated summary, whether
// triggered by the publish interval or by an HTTP request, is pushed
// to the broker.
package mqtt
