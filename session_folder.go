package flircapture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"
)

// ErrDirectoryCreation is returned when the session folder cannot be created.
var ErrDirectoryCreation = errors.New("cannot create session folder")

const (
	imagePrefix          = "FLIRIM_"
	seriesFileName       = "Time_Vs_FocalTemp.txt"
	seriesPlotFileName   = "Time_Vs_FocalTemp_Plot.png"
	serialFileNameSuffix = "_Serial_Data.csv"
)

// sessionFolderName is month_day_year_hour_minute in the clock's location, unpadded.
func sessionFolderName(t time.Time) string {
	return fmt.Sprintf("%d_%d_%d_%d_%d", int(t.Month()), t.Day(), t.Year(), t.Hour(), t.Minute())
}

func imageFileName(elapsedSec int) string {
	return fmt.Sprintf("%s%d.png", imagePrefix, elapsedSec)
}

func serialFileName(t time.Time) string {
	return fmt.Sprintf("%d_%d%s", int(t.Month()), t.Day(), serialFileNameSuffix)
}

// createSessionFolder makes the folder exactly once; an existing folder is an error.
func createSessionFolder(parent string, startedAt time.Time) (string, error) {
	path := filepath.Join(parent, sessionFolderName(startedAt))
	if err := os.Mkdir(path, 0o755); err != nil {
		return "", fmt.Errorf("%w %s: %w", ErrDirectoryCreation, path, err)
	}
	return path, nil
}

// countImages counts the captured frames in a session folder.
func countImages(folder string) (int, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return 0, fmt.Errorf("listing %s: %w", folder, err)
	}
	return lo.CountBy(entries, func(e os.DirEntry) bool {
		return !e.IsDir() && strings.HasPrefix(e.Name(), imagePrefix) && filepath.Ext(e.Name()) == ".png"
	}), nil
}
