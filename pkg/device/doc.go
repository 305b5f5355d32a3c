// Package device talks to the solar inverter behind the accessory.
//
// The inverter speaks a line-oriented query language: the accessory sends a
// short command such as QPIGS and receives a response that starts with '('
// followed by space separated fields. Package device parses the responses
// the accessory needs, provides a canned-response Simulator and runs the
// periodic telemetry Poller.
package device
