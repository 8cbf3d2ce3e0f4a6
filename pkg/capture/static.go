package capture

import (
	"context"
	"fmt"
	"os"
)

// SourceConfig declares a capture source. Image fields are file paths.
type SourceConfig struct {
	ID        string `mapstructure:"id"`
	DisplayID string `mapstructure:"display_id"`
	Name      string `mapstructure:"name"`
	Thumbnail string `mapstructure:"thumbnail"`
	AppIcon   string `mapstructure:"app_icon"`
}

// DisplayConfig declares a display.
type DisplayConfig struct {
	ID     string `mapstructure:"id"`
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
}

// StaticEnumerator serves sources declared in configuration.
type StaticEnumerator struct {
	Sources  []SourceConfig
	Displays []DisplayConfig
}

// Enumerate reads image files on every call so edits are picked up on refresh.
func (e *StaticEnumerator) Enumerate(ctx context.Context) ([]Source, []Display, error) {
	sources := make([]Source, 0, len(e.Sources))
	for _, sc := range e.Sources {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if sc.ID == "" {
			return nil, nil, fmt.Errorf("source %q: missing id", sc.Name)
		}
		s := Source{ID: sc.ID, DisplayID: sc.DisplayID, Name: sc.Name}
		var err error
		if s.Thumbnail, err = readImage(sc.Thumbnail); err != nil {
			return nil, nil, fmt.Errorf("source %s thumbnail: %w", sc.ID, err)
		}
		if s.AppIcon, err = readImage(sc.AppIcon); err != nil {
			return nil, nil, fmt.Errorf("source %s app icon: %w", sc.ID, err)
		}
		sources = append(sources, s)
	}

	displays := make([]Display, 0, len(e.Displays))
	for _, dc := range e.Displays {
		displays = append(displays, Display{ID: dc.ID, Width: dc.Width, Height: dc.Height})
	}
	return sources, displays, nil
}

func readImage(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	return os.ReadFile(path)
}
