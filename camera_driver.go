package flircapture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/disintegration/imaging"
	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/utils"
)

// ErrAcquisition wraps camera and persistence failures that abort a session.
var ErrAcquisition = errors.New("acquisition failed")

// CameraDriver is an open handle on the thermal camera. Handles are opened
// for a single use and closed right after.
type CameraDriver interface {
	CaptureFrame(ctx context.Context) (image.Image, error)
	ReadSensorTemperature(ctx context.Context) (float64, error)
	Close(ctx context.Context) error
}

// CameraOpener acquires a CameraDriver.
type CameraOpener func(ctx context.Context) (CameraDriver, error)

// focalTempReader abstracts where the focal plane temperature comes from
type focalTempReader interface {
	ReadFocalTemp(ctx context.Context) (float64, error)
}

// readingsTempReader pulls a numeric key out of a readings-style map
type readingsTempReader struct {
	source string
	key    string
	read   func(ctx context.Context) (map[string]interface{}, error)
}

// newSensorTempReader reads the temperature from a Viam sensor's readings.
func newSensorTempReader(s sensor.Sensor, key string) *readingsTempReader {
	return &readingsTempReader{
		source: s.Name().ShortName(),
		key:    key,
		read: func(ctx context.Context) (map[string]interface{}, error) {
			return s.Readings(ctx, nil)
		},
	}
}

// newCameraTempReader asks the camera module itself for its FPA temperature.
func newCameraTempReader(cam camera.Camera, key string) *readingsTempReader {
	return &readingsTempReader{
		source: cam.Name().ShortName(),
		key:    key,
		read: func(ctx context.Context) (map[string]interface{}, error) {
			return cam.DoCommand(ctx, map[string]interface{}{"command": "get_fpa_temperature"})
		},
	}
}

func (r *readingsTempReader) ReadFocalTemp(ctx context.Context) (float64, error) {
	readings, err := r.read(ctx)
	if err != nil {
		return 0, err
	}

	val, ok := readings[r.key]
	if !ok {
		return 0, fmt.Errorf("%s readings missing %q key", r.source, r.key)
	}

	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%s reading %q is not numeric: %T", r.source, r.key, val)
	}
}

// viamCameraDriver captures frames from a Viam camera component.
type viamCameraDriver struct {
	cam  camera.Camera
	temp focalTempReader
}

func newViamCameraOpener(cam camera.Camera, temp focalTempReader) CameraOpener {
	return func(ctx context.Context) (CameraDriver, error) {
		return &viamCameraDriver{cam: cam, temp: temp}, nil
	}
}

func (d *viamCameraDriver) CaptureFrame(ctx context.Context) (image.Image, error) {
	data, _, err := d.cam.Image(ctx, utils.MimeTypePNG, nil)
	if err != nil {
		return nil, fmt.Errorf("grabbing frame: %w", err)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	return img, nil
}

func (d *viamCameraDriver) ReadSensorTemperature(ctx context.Context) (float64, error) {
	return d.temp.ReadFocalTemp(ctx)
}

// Close releases the handle only; the camera resource belongs to the robot.
func (d *viamCameraDriver) Close(context.Context) error {
	return nil
}

const (
	mockFrameWidth  = 320
	mockFrameHeight = 256
)

// mockBoson simulates a Boson core: a drifting gradient frame and a slowly warming FPA
type mockBoson struct {
	mu       sync.Mutex
	captures int
	closed   int
}

func newMockBoson() *mockBoson {
	return &mockBoson{}
}

func (m *mockBoson) Open(ctx context.Context) (CameraDriver, error) {
	return &mockBosonHandle{boson: m}, nil
}

type mockBosonHandle struct {
	boson *mockBoson
}

func (h *mockBosonHandle) CaptureFrame(ctx context.Context) (image.Image, error) {
	h.boson.mu.Lock()
	offset := h.boson.captures
	h.boson.captures++
	h.boson.mu.Unlock()

	img := image.NewGray16(image.Rect(0, 0, mockFrameWidth, mockFrameHeight))
	for y := 0; y < mockFrameHeight; y++ {
		for x := 0; x < mockFrameWidth; x++ {
			v := uint16((x + y + offset*8) * 97)
			img.SetGray16(x, y, color.Gray16{Y: v})
		}
	}
	return img, nil
}

func (h *mockBosonHandle) ReadSensorTemperature(ctx context.Context) (float64, error) {
	h.boson.mu.Lock()
	defer h.boson.mu.Unlock()
	// ~0.05C of warm-up per frame
	return 31.5 + float64(h.boson.captures)*0.05, nil
}

func (h *mockBosonHandle) Close(context.Context) error {
	h.boson.mu.Lock()
	defer h.boson.mu.Unlock()
	h.boson.closed++
	return nil
}
