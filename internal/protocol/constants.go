// Package protocol defines constants used across the protocol.
package protocol

// MaxMessageBytes is the per-message payload limit enforced by the transport.
const MaxMessageBytes = 2 * 1024 * 1024
