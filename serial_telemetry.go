package flircapture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/multierr"
)

// ErrSerialReadEmpty is returned by the single-shot reader when the calibrator sends nothing.
var ErrSerialReadEmpty = errors.New("serial read returned an empty line")

// TelemetryRecord holds the raw fixed-width fields of one calibrator line.
type TelemetryRecord struct {
	ElapsedDeviceTime string
	TargetTemp        string
	IterationNumber   string
	CentralTemp       string
	BackHeatsinkTemp  string
	RingTemp          string
}

type telemetryField struct {
	column     string
	start, end int
}

// Byte offsets are fixed by the calibrator's output format.
var telemetryLayout = []telemetryField{
	{"Elapsed Time", 0, 8},
	{"Target Temp", 24, 28},
	{"Iteration", 34, 38},
	{"Central Temp", 39, 45},
	{"Back Heatsink Temp", 62, 68},
	{"Ring Temp", 75, 81},
}

// TelemetryColumns returns the column headers used for serial telemetry tables.
func TelemetryColumns() []string {
	cols := make([]string, len(telemetryLayout))
	for i, f := range telemetryLayout {
		cols[i] = f.column
	}
	return cols
}

// ParseTelemetryLine slices a calibrator line into its fields. Short lines
// produce truncated or empty fields rather than an error.
func ParseTelemetryLine(line []byte) TelemetryRecord {
	v := make([]string, len(telemetryLayout))
	for i, f := range telemetryLayout {
		start, end := min(f.start, len(line)), min(f.end, len(line))
		v[i] = string(line[start:end])
	}
	return TelemetryRecord{
		ElapsedDeviceTime: v[0],
		TargetTemp:        v[1],
		IterationNumber:   v[2],
		CentralTemp:       v[3],
		BackHeatsinkTemp:  v[4],
		RingTemp:          v[5],
	}
}

// Values returns the fields in TelemetryColumns order.
func (r TelemetryRecord) Values() []string {
	return []string{r.ElapsedDeviceTime, r.TargetTemp, r.IterationNumber, r.CentralTemp, r.BackHeatsinkTemp, r.RingTemp}
}

// SerialTelemetryDevice is an open calibrator connection.
type SerialTelemetryDevice interface {
	// ReadLine returns the next line including its terminator, or whatever
	// arrived before the read timeout (possibly nothing).
	ReadLine() ([]byte, error)
	Close() error
}

// SerialOpener opens a calibrator connection.
type SerialOpener func(port string, baud int, timeout time.Duration) (SerialTelemetryDevice, error)

// OpenSerialDevice opens a tty with go.bug.st/serial.
func OpenSerialDevice(port string, baud int, timeout time.Duration) (SerialTelemetryDevice, error) {
	p, err := serial.Open(port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("opening serial port %q: %w", port, err)
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		return nil, multierr.Append(fmt.Errorf("setting read timeout on %q: %w", port, err), p.Close())
	}
	return newLineReader(p), nil
}

// lineReader splits a timeout-based byte stream into lines. A zero-length
// read with no error means the port timed out.
type lineReader struct {
	port    io.ReadCloser
	pending []byte
	buf     [256]byte
}

func newLineReader(port io.ReadCloser) *lineReader {
	return &lineReader{port: port}
}

func (r *lineReader) ReadLine() ([]byte, error) {
	for {
		if i := bytes.IndexByte(r.pending, '\n'); i >= 0 {
			line := append([]byte(nil), r.pending[:i+1]...)
			r.pending = r.pending[i+1:]
			return line, nil
		}

		n, err := r.port.Read(r.buf[:])
		r.pending = append(r.pending, r.buf[:n]...)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if n == 0 || err != nil {
			line := r.pending
			r.pending = nil
			return line, nil
		}
	}
}

func (r *lineReader) Close() error {
	return r.port.Close()
}

// readTelemetrySample drops the first (possibly partial) line and returns the next one.
func readTelemetrySample(dev SerialTelemetryDevice) ([]byte, error) {
	if _, err := dev.ReadLine(); err != nil {
		return nil, fmt.Errorf("reading settling line: %w", err)
	}
	line, err := dev.ReadLine()
	if err != nil {
		return nil, fmt.Errorf("reading telemetry line: %w", err)
	}
	return line, nil
}

func isBlankLine(line []byte) bool {
	return len(bytes.TrimSpace(line)) == 0
}

// TelemetryTable is a column-labelled set of telemetry rows.
type TelemetryTable struct {
	Columns []string
	Rows    [][]string
}

// ReadTelemetryOnce performs a standalone read outside of a session. Unlike a
// session, an empty line is a failure here (ErrSerialReadEmpty). Cancelling
// ctx closes the port, which ends a read still waiting on the calibrator.
func ReadTelemetryOnce(ctx context.Context, open SerialOpener, port string, baud int, timeout time.Duration) (table TelemetryTable, err error) {
	if err := ctx.Err(); err != nil {
		return TelemetryTable{}, err
	}
	dev, err := open(port, baud, timeout)
	if err != nil {
		return TelemetryTable{}, err
	}

	var (
		closeOnce sync.Once
		closeErr  error
	)
	closeDev := func() {
		closeOnce.Do(func() { closeErr = dev.Close() })
	}
	stop := context.AfterFunc(ctx, closeDev)
	defer func() {
		stop()
		closeDev()
		err = multierr.Append(err, closeErr)
	}()

	line, err := readTelemetrySample(dev)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return TelemetryTable{}, ctxErr
		}
		return TelemetryTable{}, err
	}
	if isBlankLine(line) {
		return TelemetryTable{}, ErrSerialReadEmpty
	}

	rec := ParseTelemetryLine(line)
	return TelemetryTable{
		Columns: TelemetryColumns(),
		Rows:    [][]string{rec.Values()},
	}, nil
}
