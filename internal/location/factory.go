package location

import (
	"fmt"
	"log/slog"

	"github.com/UnknownOlympus/lookout/internal/models"
	"github.com/benbjohnson/clock"
)

// SourceType selects a location source implementation.
type SourceType string

const (
	// SourceTypeSimulated walks a synthetic track.
	SourceTypeSimulated SourceType = "simulated"
	// SourceTypeNMEASerial reads a GPS receiver on a serial port.
	SourceTypeNMEASerial SourceType = "nmea-serial"
	// SourceTypeNMEAFile replays a recorded NMEA log.
	SourceTypeNMEAFile SourceType = "nmea-file"
	// SourceTypeMQTT subscribes to JSON fixes on an MQTT topic.
	SourceTypeMQTT SourceType = "mqtt"
)

// SourceConfig holds configuration for creating a location source.
type SourceConfig struct {
	Type         SourceType
	SerialPort   string
	BaudRate     uint
	ReplayFile   string
	MQTTBroker   string
	MQTTTopic    string
	MQTTClientID string
	SimStart     models.Coordinates
	SimAltitude  float64
	SimSpeed     float64
	SimBearing   float64
	SimRate      float64
	Logger       *slog.Logger
}

// NewSource creates the location source selected by config.Type.
func NewSource(config SourceConfig) (Source, error) {
	switch config.Type {
	case SourceTypeSimulated:
		if config.SimRate <= 0 {
			return nil, ErrInvalidRate
		}
		return NewSimulatedSource(
			config.SimStart, config.SimAltitude, config.SimSpeed, config.SimBearing, config.SimRate,
			config.Logger, clock.New(),
		), nil
	case SourceTypeNMEASerial:
		if config.SerialPort == "" {
			return nil, fmt.Errorf("serial port is required for %s source", config.Type)
		}
		return NewSerialNMEASource(config.SerialPort, config.BaudRate, config.Logger), nil
	case SourceTypeNMEAFile:
		if config.ReplayFile == "" {
			return nil, fmt.Errorf("replay file is required for %s source", config.Type)
		}
		return NewReplayNMEASource(config.ReplayFile, config.Logger), nil
	case SourceTypeMQTT:
		if config.MQTTBroker == "" || config.MQTTTopic == "" {
			return nil, fmt.Errorf("broker and topic are required for %s source", config.Type)
		}
		return NewMQTTSource(config.MQTTBroker, config.MQTTTopic, config.MQTTClientID, config.Logger), nil
	default:
		return nil, fmt.Errorf("unsupported location source type: %s", config.Type)
	}
}
