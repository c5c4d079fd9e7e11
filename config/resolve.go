package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/meetscribe/meetscribe/logger"
	"github.com/meetscribe/meetscribe/paths"
)

// projectConfigName is the project defaults file, searched in
// $MEETSCRIBE_PROJECT_CONFIG, the executable's directory, and the working
// directory, in that order.
const projectConfigName = "config.default.json"

// projectConfigEnv overrides the project defaults location.
const projectConfigEnv = "MEETSCRIBE_PROJECT_CONFIG"

// MergeError reports a config layer that cannot be parsed. Resolution fails
// fast with the offending file rather than silently merging a partial layer.
type MergeError struct {
	Path string
	Err  error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("config layer %s cannot be parsed: %v", e.Path, e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }

// Resolver merges the configuration layers. The zero value is not usable;
// construct with DefaultResolver or fill the paths explicitly (tests do).
type Resolver struct {
	ProjectFile string // project defaults; empty means search the usual places
	UserFile    string // user override file
	PackDir     string // directory of call-type YAML packs
}

// DefaultResolver returns a Resolver wired to the standard paths.
func DefaultResolver() (Resolver, error) {
	userFile, err := paths.SettingsFilePath()
	if err != nil {
		return Resolver{}, err
	}
	packDir, err := paths.CallTypesDir()
	if err != nil {
		return Resolver{}, err
	}
	return Resolver{
		ProjectFile: locateProjectFile(),
		UserFile:    userFile,
		PackDir:     packDir,
	}, nil
}

// ProjectConfigDir returns the directory holding the project defaults file,
// or "" when none is present. Bundled call-type context files live beside
// the project config.
func ProjectConfigDir() string {
	if file := locateProjectFile(); file != "" {
		return filepath.Dir(file)
	}
	return ""
}

// Resolve merges the standard layers into a fully-populated Config.
func Resolve() (*Config, error) {
	r, err := DefaultResolver()
	if err != nil {
		return nil, err
	}
	return r.Resolve()
}

// Resolve performs the three-layer merge plus call-type packs.
// A missing layer file is an empty layer; an unparseable one is a MergeError.
func (r Resolver) Resolve() (*Config, error) {
	log := logger.WithComponent("config")

	v := viper.New()
	if err := v.MergeConfigMap(defaultLayer()); err != nil {
		return nil, fmt.Errorf("failed to load built-in defaults: %w", err)
	}

	if r.ProjectFile != "" {
		layer, err := readJSONLayer(r.ProjectFile)
		if err != nil {
			return nil, err
		}
		if layer != nil {
			stripCommentKeys(layer)
			if err := v.MergeConfigMap(layer); err != nil {
				return nil, &MergeError{Path: r.ProjectFile, Err: err}
			}
			log.Debug("merged project defaults", "path", r.ProjectFile)
		}
	}

	if r.UserFile != "" {
		layer, err := readJSONLayer(r.UserFile)
		if err != nil {
			return nil, err
		}
		if layer != nil {
			migrated, changed := migrateLegacy(layer)
			if changed {
				if err := writeUserSettings(r.UserFile, migrated); err != nil {
					log.Warn("failed to re-save migrated settings", "path", r.UserFile, "error", err)
				} else {
					log.Info("migrated legacy settings format", "path", r.UserFile)
				}
			}
			if err := v.MergeConfigMap(migrated); err != nil {
				return nil, &MergeError{Path: r.UserFile, Err: err}
			}
			log.Debug("merged user overrides", "path", r.UserFile)
		}
	}

	if r.PackDir != "" {
		if err := mergeCallTypePacks(v, r.PackDir); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode merged config: %w", err)
	}
	if cfg.CallTypes == nil {
		cfg.CallTypes = map[string]CallType{}
	}
	if cfg.GDrive.TokenFile == "" {
		if tokenPath, err := paths.GDriveTokenPath(); err == nil {
			cfg.GDrive.TokenFile = tokenPath
		}
	}
	return &cfg, nil
}

// locateProjectFile returns the first existing project defaults file, or "".
func locateProjectFile() string {
	var candidates []string
	if env := os.Getenv(projectConfigEnv); env != "" {
		candidates = append(candidates, env)
	}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), projectConfigName))
	}
	if wd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(wd, projectConfigName))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

// readJSONLayer reads one JSON layer file. Missing file yields (nil, nil).
func readJSONLayer(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &MergeError{Path: path, Err: err}
	}
	var layer map[string]any
	if err := json.Unmarshal(data, &layer); err != nil {
		return nil, &MergeError{Path: path, Err: err}
	}
	return layer, nil
}

// stripCommentKeys drops top-level keys beginning with an underscore.
// The project defaults file uses them as inline documentation.
func stripCommentKeys(layer map[string]any) {
	for k := range layer {
		if strings.HasPrefix(k, "_") {
			delete(layer, k)
		}
	}
}

// mergeCallTypePacks merges every *.yaml file under dir into the call_types
// section, in filename order. A pack is either a document with a top-level
// call_types mapping or a bare id-to-definition mapping.
func mergeCallTypePacks(v *viper.Viper, dir string) error {
	log := logger.WithComponent("config")

	packs, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return err
	}
	for _, pack := range packs {
		data, err := os.ReadFile(pack)
		if err != nil {
			return &MergeError{Path: pack, Err: err}
		}
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return &MergeError{Path: pack, Err: err}
		}
		entries := doc
		if nested, ok := doc["call_types"].(map[string]any); ok {
			entries = nested
		}
		// Decode each entry up front so a malformed pack fails at resolve
		// time, not when a call type is first used.
		for id, raw := range entries {
			var ct CallType
			if err := mapstructure.Decode(raw, &ct); err != nil {
				return &MergeError{Path: pack, Err: fmt.Errorf("call type %q: %w", id, err)}
			}
		}
		if err := v.MergeConfigMap(map[string]any{"call_types": entries}); err != nil {
			return &MergeError{Path: pack, Err: err}
		}
		log.Debug("merged call-type pack", "path", pack, "types", len(entries))
	}
	return nil
}
