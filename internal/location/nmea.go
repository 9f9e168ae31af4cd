package location

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/UnknownOlympus/lookout/internal/models"
	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"
)

// knotsToMetersPerSecond converts NMEA speed over ground to the m/s samples carry.
const knotsToMetersPerSecond = 0.514444

// Opener opens the byte stream an NMEASource reads.
type Opener func() (io.ReadCloser, error)

// NMEASource reads NMEA 0183 sentences and emits one sample per valid RMC
// sentence. The most recent GGA sentence supplies the altitude.
type NMEASource struct {
	name  string
	open  Opener
	log  *slog.Logger
}

// NewNMEASource creates a source reading from whatever open returns.
// name identifies the stream in logs and errors.
func NewNMEASource(name string, open Opener, log *slog.Logger) *NMEASource {
	return &NMEASource{name: name, open: open, log: log}
}

// NewSerialNMEASource creates a source reading a GPS receiver on a serial port.
func NewSerialNMEASource(portName string, baudRate uint, log *slog.Logger) *NMEASource {
	options := serial.OpenOptions{
		PortName:        portName,
		BaudRate:        baudRate,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}

	return NewNMEASource(portName, func() (io.ReadCloser, error) {
		return serial.Open(options)
	}, log)
}

// NewReplayNMEASource creates a source replaying a recorded NMEA log as fast as it can be read.
func NewReplayNMEASource(path string, log *slog.Logger) *NMEASource {
	return NewNMEASource(path, func() (io.ReadCloser, error) {
		return os.Open(path)
	}, log)
}

// Start opens the stream and reads it until the stream ends or the subscription is stopped.
func (ns *NMEASource) Start(ctx context.Context, callback Callback) (Subscription, error) {
	stream, err := ns.open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrSensorUnavailable, ns.name, err)
	}

	ns.log.InfoContext(ctx, "NMEA stream opened", "stream", ns.name)

	sub := newSubscription(ctx, stream.Close)
	sub.run(func(ctx context.Context) {
		ns.read(ctx, stream, func(sample models.LocationSample) {
			sub.deliver(callback, sample)
		})
	})

	return sub, nil
}

func (ns *NMEASource) read(ctx context.Context, stream io.Reader, emit Callback) {
	reader := bufio.NewReader(stream)
	var altitude float64

	for {
		line, err := reader.ReadString('\n')
		if ctx.Err() != nil {
			return
		}
		if sample, ok := ns.parse(ctx, strings.TrimSpace(line), &altitude); ok {
			emit(sample)
		}
		if err != nil {
			if err == io.EOF {
				ns.log.InfoContext(ctx, "NMEA stream ended", "stream", ns.name)
			} else {
				ns.log.ErrorContext(ctx, "NMEA read error", "stream", ns.name, "error", err)
			}
			return
		}
	}
}

// parse handles one line. altitude carries the last GGA altitude between calls.
func (ns *NMEASource) parse(ctx context.Context, line string, altitude *float64) (models.LocationSample, bool) {
	if !strings.HasPrefix(line, "$") {
		return models.LocationSample{}, false
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		ns.log.DebugContext(ctx, "Skipping unparsable NMEA sentence", "line", line, "error", err)
		return models.LocationSample{}, false
	}

	switch sentence.DataType() {
	case nmea.TypeGGA:
		gga := sentence.(nmea.GGA)
		if gga.FixQuality != nmea.Invalid {
			*altitude = gga.Altitude
		}
	case nmea.TypeRMC:
		rmc := sentence.(nmea.RMC)
		if rmc.Validity != nmea.ValidRMC {
			return models.LocationSample{}, false
		}

		return models.LocationSample{
			Latitude:  rmc.Latitude,
			Longitude: rmc.Longitude,
			Altitude:  *altitude,
			Speed:     rmc.Speed * knotsToMetersPerSecond,
			Bearing:   rmc.Course,
			Timestamp: fixTime(rmc.Date, rmc.Time),
		}, true
	}

	return models.LocationSample{}, false
}

// fixTime returns the GPS UTC time of a fix, or the zero time when the
// receiver did not report a full date and time.
func fixTime(date nmea.Date, tod nmea.Time) time.Time {
	if !date.Valid || !tod.Valid {
		return time.Time{}
	}

	return time.Date(
		2000+date.YY, time.Month(date.MM), date.DD,
		tod.Hour, tod.Minute, tod.Second, tod.Millisecond*int(time.Millisecond),
		time.UTC,
	)
}
