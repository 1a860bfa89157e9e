package flircapture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"sync"
	"time"
)

// fakeCamera is its own handle; every open returns the same driver.
type fakeCamera struct {
	mu            sync.Mutex
	opens         int
	closes        int
	captures      int
	failCaptureAt int // 1-based capture that fails, 0 never
	tempBase      float64
}

func (f *fakeCamera) open(ctx context.Context) (CameraDriver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	return f, nil
}

func (f *fakeCamera) CaptureFrame(ctx context.Context) (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captures++
	if f.captures == f.failCaptureAt {
		return nil, errors.New("usb disconnected")
	}
	return image.NewGray(image.Rect(0, 0, 4, 4)), nil
}

func (f *fakeCamera) ReadSensorTemperature(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tempBase + float64(f.captures)*0.25, nil
}

func (f *fakeCamera) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

// fakeCalibrator hands out devices that emit a partial line then one sample line.
type fakeCalibrator struct {
	mu       sync.Mutex
	opens    int
	closes   int
	emptyAt  int // 1-based open whose sample line is blank, 0 never
	openErr  error
	closeErr error
	failAt   int  // 1-based open whose Close returns closeErr, 0 every open
	hang     bool // reads block until the device is closed
	port     string
	baud     int
	timeout  time.Duration
}

func (f *fakeCalibrator) open(port string, baud int, timeout time.Duration) (SerialTelemetryDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opens++
	f.port, f.baud, f.timeout = port, baud, timeout

	sample := sampleTelemetryLine()
	if f.opens == f.emptyAt {
		sample = nil
	}
	return &fakeSerialDevice{
		cal:    f,
		seq:    f.opens,
		lines:  [][]byte{[]byte("3.1 C\r\n"), sample},
		hang:   f.hang,
		closed: make(chan struct{}),
	}, nil
}

type fakeSerialDevice struct {
	cal    *fakeCalibrator
	seq    int
	lines  [][]byte
	hang   bool
	closed chan struct{}
	once   sync.Once
}

func (d *fakeSerialDevice) ReadLine() ([]byte, error) {
	if d.hang {
		<-d.closed
		return nil, errors.New("port closed")
	}
	if len(d.lines) == 0 {
		return nil, nil
	}
	line := d.lines[0]
	d.lines = d.lines[1:]
	return line, nil
}

func (d *fakeSerialDevice) Close() error {
	d.cal.mu.Lock()
	defer d.cal.mu.Unlock()
	d.cal.closes++
	d.once.Do(func() { close(d.closed) })
	if d.cal.failAt != 0 && d.cal.failAt != d.seq {
		return nil
	}
	return d.cal.closeErr
}

// telemetryLine lays fields out at the calibrator's offsets with filler in between.
func telemetryLine(elapsed, target, iteration, central, back, ring string) []byte {
	buf := bytes.Repeat([]byte{'#'}, 81)
	copy(buf[0:8], elapsed)
	copy(buf[24:28], target)
	copy(buf[34:38], iteration)
	copy(buf[39:45], central)
	copy(buf[62:68], back)
	copy(buf[75:81], ring)
	return append(buf, '\r', '\n')
}

func sampleTelemetryLine() []byte {
	return telemetryLine("00:01:05", "35.0", "0007", " 35.02", " 28.41", " 34.97")
}
