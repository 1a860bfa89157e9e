package flircapture

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"go.viam.com/rdk/testutils/inject"
)

func TestSensorTempReader(t *testing.T) {
	t.Run("reads the configured key", func(t *testing.T) {
		s := inject.NewSensor("fpa")
		s.ReadingsFunc = func(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"fpa_temp": 33.5}, nil
		}

		temp, err := newSensorTempReader(s, "fpa_temp").ReadFocalTemp(context.Background())
		if err != nil {
			t.Fatalf("ReadFocalTemp failed: %v", err)
		}
		if temp != 33.5 {
			t.Errorf("expected 33.5, got %v", temp)
		}
	})

	t.Run("accepts integer readings", func(t *testing.T) {
		s := inject.NewSensor("fpa")
		s.ReadingsFunc = func(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"fpa_temp": 34}, nil
		}

		temp, err := newSensorTempReader(s, "fpa_temp").ReadFocalTemp(context.Background())
		if err != nil {
			t.Fatalf("ReadFocalTemp failed: %v", err)
		}
		if temp != 34.0 {
			t.Errorf("expected 34, got %v", temp)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		s := inject.NewSensor("fpa")
		s.ReadingsFunc = func(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"temp": 33.5}, nil
		}

		_, err := newSensorTempReader(s, "fpa_temp").ReadFocalTemp(context.Background())
		if err == nil || !strings.Contains(err.Error(), "fpa_temp") {
			t.Errorf("expected error naming fpa_temp, got %v", err)
		}
	})

	t.Run("non-numeric value", func(t *testing.T) {
		s := inject.NewSensor("fpa")
		s.ReadingsFunc = func(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"fpa_temp": "warm"}, nil
		}

		_, err := newSensorTempReader(s, "fpa_temp").ReadFocalTemp(context.Background())
		if err == nil {
			t.Error("expected error for non-numeric reading")
		}
	})

	t.Run("sensor error propagates", func(t *testing.T) {
		s := inject.NewSensor("fpa")
		s.ReadingsFunc = func(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
			return nil, errors.New("i2c timeout")
		}

		_, err := newSensorTempReader(s, "fpa_temp").ReadFocalTemp(context.Background())
		if err == nil || err.Error() != "i2c timeout" {
			t.Errorf("expected i2c timeout, got %v", err)
		}
	})
}

func TestMockBoson(t *testing.T) {
	boson := newMockBoson()
	ctx := context.Background()
	cam, err := boson.Open(ctx)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	img, err := cam.CaptureFrame(ctx)
	if err != nil {
		t.Fatalf("CaptureFrame failed: %v", err)
	}
	if b := img.Bounds(); b.Dx() != mockFrameWidth || b.Dy() != mockFrameHeight {
		t.Errorf("expected %dx%d frame, got %dx%d", mockFrameWidth, mockFrameHeight, b.Dx(), b.Dy())
	}

	first, err := cam.ReadSensorTemperature(ctx)
	if err != nil {
		t.Fatalf("ReadSensorTemperature failed: %v", err)
	}
	if _, err := cam.CaptureFrame(ctx); err != nil {
		t.Fatalf("CaptureFrame failed: %v", err)
	}
	second, err := cam.ReadSensorTemperature(ctx)
	if err != nil {
		t.Fatalf("ReadSensorTemperature failed: %v", err)
	}
	if second <= first {
		t.Errorf("expected focal plane to warm, got %v then %v", first, second)
	}

	if err := cam.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if boson.closed != 1 {
		t.Errorf("expected 1 close, got %d", boson.closed)
	}
}

func TestSwitchNotifier(t *testing.T) {
	t.Run("sets the completion position", func(t *testing.T) {
		var calls []uint32
		sw := inject.NewSwitch("stack-light")
		sw.SetPositionFunc = func(ctx context.Context, position uint32, extra map[string]interface{}) error {
			calls = append(calls, position)
			return nil
		}

		err := switchNotifier{sw: sw, position: 1}.NotifyCompletion(context.Background(), SessionSummary{})
		if err != nil {
			t.Fatalf("NotifyCompletion failed: %v", err)
		}
		if !slices.Equal(calls, []uint32{1}) {
			t.Errorf("expected one SetPosition(1), got %v", calls)
		}
	})

	t.Run("multi notifier stops at first failure", func(t *testing.T) {
		failing := inject.NewSwitch("broken")
		failing.SetPositionFunc = func(ctx context.Context, position uint32, extra map[string]interface{}) error {
			return errors.New("relay stuck")
		}
		rec := &recordingNotifier{}

		err := multiNotifier{switchNotifier{sw: failing}, rec}.NotifyCompletion(context.Background(), SessionSummary{})
		if err == nil {
			t.Error("expected relay error")
		}
		if len(rec.summaries) != 0 {
			t.Errorf("expected later notifiers skipped, got %d calls", len(rec.summaries))
		}
	})
}
