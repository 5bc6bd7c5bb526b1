package terrain

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EditorConfig holds the editor's tunable settings: default brush
// parameters, scatter profiles and LOD presets, and where asset packs come
// from. Stored as YAML next to the project, merged over defaults.
type EditorConfig struct {
	Brush    BrushConfig      `yaml:"brush"`
	Paint    PaintConfig      `yaml:"paint"`
	Profiles []ScatterProfile `yaml:"scatter_profiles"`
	Lod      []LodPreset      `yaml:"lod_presets"`
	Assets   AssetsConfig     `yaml:"assets"`
	Debug    bool             `yaml:"debug"`
}

type BrushConfig struct {
	Radius   float32 `yaml:"radius"`
	Strength float32 `yaml:"strength"`
	Shape    string  `yaml:"shape"`
}

type PaintConfig struct {
	WeightmapResolution int     `yaml:"weightmap_resolution"`
	Smoothness          float32 `yaml:"smoothness"`
}

type AssetsConfig struct {
	// PackURLs is handed to go-getter, so it accepts local paths, git
	// repos, http archives and the rest of its URL schemes.
	PackURLs []string `yaml:"pack_urls"`
	CacheDir string   `yaml:"cache_dir"`
}

func DefaultEditorConfig() *EditorConfig {
	return &EditorConfig{
		Brush: BrushConfig{Radius: 4, Strength: 1, Shape: "circle"},
		Paint: PaintConfig{WeightmapResolution: defaultWeightmapResolution, Smoothness: 0.5},
	}
}

// Reset restores the config to the built-in defaults in place, so an
// already-registered resource keeps its identity.
func (c *EditorConfig) Reset() {
	*c = *DefaultEditorConfig()
}

// LoadEditorConfig reads a YAML config file on top of the defaults. A
// missing file is not an error; the defaults come back as-is.
func LoadEditorConfig(path string) (*EditorConfig, error) {
	cfg := DefaultEditorConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading editor config from %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing editor config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveTo writes the config to a specific path, creating parent directories
// as needed.
func (c *EditorConfig) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Profile looks up a scatter profile by id.
func (c *EditorConfig) Profile(id string) (ScatterProfile, bool) {
	for _, p := range c.Profiles {
		if p.Id == id {
			return p, true
		}
	}
	return ScatterProfile{}, false
}

// LodPreset looks up a LOD preset by name.
func (c *EditorConfig) LodPreset(name string) (LodPreset, bool) {
	for _, p := range c.Lod {
		if p.Name == name {
			return p, true
		}
	}
	return LodPreset{}, false
}

func (c *EditorConfig) brushShape() BrushShape {
	switch c.Brush.Shape {
	case "square":
		return BrushSquare
	case "star":
		return BrushStar
	default:
		return BrushCircle
	}
}

// PresetsModule loads the editor config at install time and exposes it as a
// resource.
type PresetsModule struct {
	Path string
}

func (m PresetsModule) Install(app *App) {
	cfg, err := LoadEditorConfig(m.Path)
	if err != nil {
		app.Logger().Warnf("editor config: %v", err)
		cfg = DefaultEditorConfig()
	}
	app.AddResources(cfg)
}
