package websocket

import (
	"time"

	"github.com/KevinKickass/et7000d/internal/devices"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Device-related messages
	MessageTypeDeviceSnapshot MessageType = "device_snapshot"
	MessageTypeDeviceOffline  MessageType = "device_offline"

	// System messages
	MessageTypeSystemStatus MessageType = "system_status"

	// Client messages
	MessageTypeSubscribe  MessageType = "subscribe"
	MessageTypeSubscribed MessageType = "subscribed"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`

	// device routes the message to subscribed clients only
	device []string
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// NewSnapshotMessage wraps a poll result; offline snapshots become
// device_offline messages.
func NewSnapshotMessage(s devices.Snapshot) Message {
	msgType := MessageTypeDeviceSnapshot
	if !s.Online {
		msgType = MessageTypeDeviceOffline
	}
	return Message{
		Type:      msgType,
		Timestamp: s.Timestamp,
		Data:      s,
		device:    []string{s.Name, s.DeviceID.String()},
	}
}

// SubscribeRequest is sent by clients to limit the devices they receive.
// An empty list subscribes to every device.
type SubscribeRequest struct {
	Type    MessageType `json:"type"`
	Devices []string    `json:"devices"`
}
