package configcat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// OverrideBehavior controls how locally supplied flag overrides interact
// with the config fetched from the CDN.
type OverrideBehavior int

const (
	// LocalOnly evaluates exclusively against the override source; the CDN
	// is never contacted.
	LocalOnly OverrideBehavior = iota
	// LocalOverRemote evaluates against the union of the fetched and
	// override settings, with the override version winning on key
	// collisions.
	LocalOverRemote
	// RemoteOverLocal evaluates against the union of the fetched and
	// override settings, with the fetched version winning on key
	// collisions.
	RemoteOverLocal
)

// OverrideDataSource supplies the settings a FlagOverrides merges into (or
// replaces) the fetched config.
type OverrideDataSource interface {
	Settings() map[string]*Setting
}

// FlagOverrides pairs an OverrideDataSource with the merge behavior a
// configService should apply.
type FlagOverrides struct {
	behavior OverrideBehavior
	source   OverrideDataSource
}

// NewFlagOverrides creates a FlagOverrides from a data source and the
// desired merge behavior.
func NewFlagOverrides(source OverrideDataSource, behavior OverrideBehavior) *FlagOverrides {
	return &FlagOverrides{source: source, behavior: behavior}
}

// MapDataSource is an OverrideDataSource backed by an in-memory map of Go
// native values.
type MapDataSource struct {
	settings map[string]*Setting
}

// NewMapDataSource converts a map of flag key to native Go value (bool,
// string, int, float64) into an OverrideDataSource.
func NewMapDataSource(values map[string]any) (*MapDataSource, error) {
	settings := make(map[string]*Setting, len(values))
	for key, val := range values {
		setting, err := settingFromNative(val)
		if err != nil {
			return nil, fmt.Errorf("value of override '%s' is invalid: %w", key, err)
		}
		settings[key] = setting
	}
	return &MapDataSource{settings: settings}, nil
}

func (m *MapDataSource) Settings() map[string]*Setting {
	return m.settings
}

func settingFromNative(val any) (*Setting, error) {
	switch v := val.(type) {
	case bool:
		return &Setting{Type: BoolSetting, Value: &SettingValue{BoolValue: boolPtr(v)}}, nil
	case string:
		return &Setting{Type: StringSetting, Value: &SettingValue{StringValue: strPtr(v)}}, nil
	case int:
		return &Setting{Type: IntSetting, Value: &SettingValue{IntValue: intPtr(v)}}, nil
	case int64:
		return &Setting{Type: IntSetting, Value: &SettingValue{IntValue: intPtr(int(v))}}, nil
	case float64:
		return &Setting{Type: FloatSetting, Value: &SettingValue{DoubleValue: f64Ptr(v)}}, nil
	case json.Number:
		// A JSON-decoded number from the simplified override shape: try the
		// integral reading first so "5" becomes an IntSetting rather than
		// always widening to FloatSetting, matching the int/float distinction
		// serde_json::Number::as_i64/as_f64 preserve in the original source.
		if i, err := v.Int64(); err == nil {
			return &Setting{Type: IntSetting, Value: &SettingValue{IntValue: intPtr(int(i))}}, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("unsupported override numeric value %q", v.String())
		}
		return &Setting{Type: FloatSetting, Value: &SettingValue{DoubleValue: f64Ptr(f)}}, nil
	default:
		return nil, fmt.Errorf("unsupported override value type %T", val)
	}
}

// FileDataSource is an OverrideDataSource backed by a JSON file. It
// accepts either the simplified "{"flags": {...}}" shape or a full config
// document, trying the simplified shape first. Reload re-reads the file,
// letting a caller pick up edits without rebuilding the Client.
type FileDataSource struct {
	filePath string

	mu       sync.RWMutex
	settings map[string]*Setting
}

// NewFileDataSource reads and parses filePath.
func NewFileDataSource(filePath string) (*FileDataSource, error) {
	f := &FileDataSource{filePath: filePath}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// Reload re-reads and re-parses the backing file, replacing the settings
// Settings returns. On a read or parse failure the previously loaded
// settings (if any) are left untouched.
func (f *FileDataSource) Reload() error {
	settings, err := parseOverrideFile(f.filePath)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.settings = settings
	f.mu.Unlock()
	return nil
}

func parseOverrideFile(filePath string) (map[string]*Setting, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var simple SimplifiedConfig
	if err := json.Unmarshal(content, &simple); err == nil && simple.Flags != nil {
		settings := make(map[string]*Setting, len(simple.Flags))
		for key, raw := range simple.Flags {
			var native any
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.UseNumber()
			if err := dec.Decode(&native); err != nil {
				return nil, fmt.Errorf("value of override '%s' is invalid", key)
			}
			setting, err := settingFromNative(native)
			if err != nil {
				return nil, fmt.Errorf("value of override '%s' is invalid: %w", key, err)
			}
			settings[key] = setting
		}
		return settings, nil
	}

	cfg, err := ParseConfig(content)
	if err != nil {
		return nil, err
	}
	return cfg.Settings, nil
}

func (f *FileDataSource) Settings() map[string]*Setting {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.settings
}
