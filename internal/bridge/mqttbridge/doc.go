// Package mqttbridge forwards fabric "keep" state to an MQTT broker as
// retained messages, so external dashboards and automations (Home
// Assistant among them) can observe a unit's durable state without
// speaking the fabric's own keyspace-notification protocol.
//
// It is strictly one-directional publish: writes to the fabric flow
// out to MQTT topics named muf/<unit>/<id>; nothing a subscriber
// publishes back flows into the fabric. A bridge that also accepted
// inbound MQTT writes would need to pick a unit identity to write as,
// and the request/response model has no notion of one for an anonymous
// external actor.
//
// The bridge uses Eclipse Paho v2's autopaho package for connection
// management with automatic reconnection, mirroring the pattern this
// module's ambient stack already uses for the store's own health
// supervision (connwatch).
package mqttbridge
