package flircapture

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"
)

// SessionState is the position of a session in its lifecycle.
type SessionState string

const (
	StateIdle            SessionState = "idle"
	StateValidating      SessionState = "validating"
	StateDirectorySetup  SessionState = "directory_setup"
	StateCapturing       SessionState = "capturing"
	StateWaiting         SessionState = "waiting"
	StateCompleted       SessionState = "completed"
	StateAborted         SessionState = "aborted"
	StateSerialEarlyStop SessionState = "serial_early_stop"
)

// SampleRecord is one completed loop iteration.
type SampleRecord struct {
	ElapsedSeconds    int
	FocalTemperatureC float64
	Serial            *TelemetryRecord
}

// SessionSummary reports a finished session.
//
// ImageCount is the number of frames on disk. After an early stop it includes
// the frame taken in the iteration the blank serial line ended, so it is one
// more than SampleCount, which counts completed iterations only.
type SessionSummary struct {
	ImageCount              int
	SampleCount             int
	ElapsedWallClockSeconds float64
	OutputPath              string
	EarlyStop               bool
}

// SessionProgress is a point-in-time view of a session for status reporting.
type SessionProgress struct {
	State          SessionState
	Folder         string
	ElapsedSeconds int
	SampleCount    int
	StartedAt      time.Time
}

// SessionDeps are the collaborators a Session drives. Only Camera is required.
type SessionDeps struct {
	Camera   CameraOpener
	Serial   SerialOpener
	Images   ImagePersistence
	Tables   TabularPersistence
	Notifier Notifier
	Clock    clock.Clock
}

// Session runs interval capture sessions one at a time.
type Session struct {
	logger logging.Logger
	limits Limits
	clock  clock.Clock

	openCamera CameraOpener
	openSerial SerialOpener
	images     ImagePersistence
	tables     TabularPersistence
	notifier   Notifier
	wait       func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	progress SessionProgress
}

// NewSession builds a session runner, filling unset collaborators with the
// tty opener, PNG/CSV writers, a log notifier and the wall clock.
func NewSession(logger logging.Logger, limits Limits, deps SessionDeps) *Session {
	s := &Session{
		logger:     logger,
		limits:     limits,
		clock:      deps.Clock,
		openCamera: deps.Camera,
		openSerial: deps.Serial,
		images:     deps.Images,
		tables:     deps.Tables,
		notifier:   deps.Notifier,
		progress:   SessionProgress{State: StateIdle},
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.openSerial == nil {
		s.openSerial = OpenSerialDevice
	}
	if s.images == nil {
		s.images = pngImageWriter{}
	}
	if s.tables == nil {
		s.tables = csvTableWriter{}
	}
	if s.notifier == nil {
		s.notifier = logNotifier{logger: logger}
	}
	s.wait = s.sleep
	return s
}

// Progress returns a snapshot of the current or most recent session.
func (s *Session) Progress() SessionProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.State = state
}

func (s *Session) update(fn func(p *SessionProgress)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.progress)
}

// Run validates cfg, then captures a frame and focal temperature every
// IntervalSeconds until TotalDurationSeconds is exceeded or the calibrator
// goes quiet. The series files are written once, after the loop.
func (s *Session) Run(ctx context.Context, cfg SessionConfig) (SessionSummary, error) {
	s.update(func(p *SessionProgress) {
		*p = SessionProgress{State: StateValidating}
	})
	if err := Validate(cfg, s.limits); err != nil {
		s.setState(StateIdle)
		return SessionSummary{}, err
	}

	s.setState(StateDirectorySetup)
	startedAt := s.clock.Now()
	folder, err := createSessionFolder(cfg.OutputDirectory, startedAt)
	if err != nil {
		s.setState(StateAborted)
		return SessionSummary{}, err
	}
	s.update(func(p *SessionProgress) {
		p.Folder = folder
		p.StartedAt = startedAt
	})
	s.logger.Infof("session started: %ds every %ds into %s (serial capture: %v)",
		cfg.TotalDurationSeconds, cfg.IntervalSeconds, folder, cfg.SerialCaptureEnabled)

	fail := func(err error) (SessionSummary, error) {
		s.setState(StateAborted)
		s.logger.Errorf("session aborted: %v", err)
		return SessionSummary{OutputPath: folder}, err
	}

	var samples []SampleRecord
	earlyStop := false
	t := 0
	for {
		s.setState(StateCapturing)

		sample, err := s.captureFrame(ctx, folder, t)
		if err != nil {
			return fail(err)
		}

		if cfg.SerialCaptureEnabled {
			rec, ok, err := s.readSerial(cfg.serialPort())
			if err != nil {
				return fail(err)
			}
			if !ok {
				s.logger.Warnf("calibrator returned an empty line at t=%ds, stopping early", t)
				earlyStop = true
				break
			}
			sample.Serial = rec
		}

		samples = append(samples, sample)
		s.update(func(p *SessionProgress) {
			p.ElapsedSeconds = t
			p.SampleCount = len(samples)
		})

		t += cfg.IntervalSeconds
		if t > cfg.TotalDurationSeconds {
			break
		}

		s.setState(StateWaiting)
		if err := s.wait(ctx, time.Duration(cfg.IntervalSeconds)*time.Second); err != nil {
			return fail(fmt.Errorf("session interrupted: %w", err))
		}
	}

	if err := s.tables.SaveSeries(filepath.Join(folder, seriesFileName), nil, timeTemperatureRows(samples)); err != nil {
		return fail(fmt.Errorf("writing time/temperature series: %w", err))
	}
	if cfg.SerialCaptureEnabled {
		path := filepath.Join(folder, serialFileName(startedAt))
		if err := s.tables.SaveSeries(path, TelemetryColumns(), serialTelemetryRows(samples)); err != nil {
			return fail(fmt.Errorf("writing serial telemetry: %w", err))
		}
	}
	if cfg.PlotSeries && len(samples) > 0 {
		if err := saveSeriesPlot(samples, filepath.Join(folder, seriesPlotFileName)); err != nil {
			s.logger.Warnf("failed to plot series: %v", err)
		}
	}

	imageCount, err := countImages(folder)
	if err != nil {
		return fail(err)
	}

	summary := SessionSummary{
		ImageCount:              imageCount,
		SampleCount:             len(samples),
		ElapsedWallClockSeconds: s.clock.Since(startedAt).Seconds(),
		OutputPath:              folder,
		EarlyStop:               earlyStop,
	}

	if err := s.notifier.NotifyCompletion(ctx, summary); err != nil {
		s.logger.Warnf("completion notification failed: %v", err)
	}

	if earlyStop {
		s.setState(StateSerialEarlyStop)
	} else {
		s.setState(StateCompleted)
	}
	return summary, nil
}

// captureFrame grabs and saves one frame and reads the focal plane
// temperature. The camera handle is closed on every path.
func (s *Session) captureFrame(ctx context.Context, folder string, t int) (sample SampleRecord, err error) {
	cam, err := s.openCamera(ctx)
	if err != nil {
		return SampleRecord{}, fmt.Errorf("%w: opening camera: %w", ErrAcquisition, err)
	}
	defer func() {
		if cerr := cam.Close(ctx); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("%w: closing camera: %w", ErrAcquisition, cerr))
		}
	}()

	img, err := cam.CaptureFrame(ctx)
	if err != nil {
		return SampleRecord{}, fmt.Errorf("%w: capturing frame at t=%ds: %w", ErrAcquisition, t, err)
	}

	path := filepath.Join(folder, imageFileName(t))
	if err := s.images.SaveImage(img, path); err != nil {
		return SampleRecord{}, fmt.Errorf("%w: %w", ErrAcquisition, err)
	}

	temp, err := cam.ReadSensorTemperature(ctx)
	if err != nil {
		return SampleRecord{}, fmt.Errorf("%w: reading focal temperature at t=%ds: %w", ErrAcquisition, t, err)
	}

	s.logger.Debugf("saved %s (focal plane %.2fC)", path, temp)
	return SampleRecord{ElapsedSeconds: t, FocalTemperatureC: temp}, nil
}

// readSerial opens the calibrator, takes one sample and closes it again.
// ok is false when the calibrator sent a blank line. A failed close after a
// blank line is only logged so the early stop still writes its files.
func (s *Session) readSerial(port string) (rec *TelemetryRecord, ok bool, err error) {
	dev, err := s.openSerial(port, s.limits.SerialBaud, s.limits.SerialReadTimeout)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrAcquisition, err)
	}

	line, err := readTelemetrySample(dev)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrAcquisition, err)
	}
	blank := err == nil && isBlankLine(line)

	if cerr := dev.Close(); cerr != nil {
		cerr = fmt.Errorf("%w: closing serial device: %w", ErrAcquisition, cerr)
		if blank {
			s.logger.Warnf("%v", cerr)
		} else {
			err = multierr.Append(err, cerr)
		}
	}
	if err != nil || blank {
		return nil, false, err
	}

	parsed := ParseTelemetryLine(line)
	return &parsed, true, nil
}

func (s *Session) sleep(ctx context.Context, d time.Duration) error {
	timer := s.clock.Timer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
