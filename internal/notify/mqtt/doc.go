// Package mqtt publishes detected tone pairs to an MQTT broker, for
// dispatch systems that do not speak the UDP alert protocol.
package mqtt
