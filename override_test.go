package configcat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapDataSourceFromNativeValues(t *testing.T) {
	src, err := NewMapDataSource(map[string]any{
		"b": true,
		"s": "hello",
		"i": 7,
		"f": 1.5,
	})
	require.NoError(t, err)
	settings := src.Settings()
	assert.Equal(t, BoolSetting, settings["b"].Type)
	assert.Equal(t, StringSetting, settings["s"].Type)
	assert.Equal(t, IntSetting, settings["i"].Type)
	assert.Equal(t, FloatSetting, settings["f"].Type)
	assert.True(t, *settings["b"].Value.BoolValue)
	assert.Equal(t, "hello", *settings["s"].Value.StringValue)
	assert.Equal(t, 7, *settings["i"].Value.IntValue)
	assert.Equal(t, 1.5, *settings["f"].Value.DoubleValue)
}

func TestMapDataSourceRejectsUnsupportedType(t *testing.T) {
	_, err := NewMapDataSource(map[string]any{"bad": []int{1, 2}})
	assert.Error(t, err)
}

func TestFileDataSourceSimplifiedShape(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flags.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"flags":{"flag":true,"name":"bob"}}`), 0o644))

	src, err := NewFileDataSource(path)
	require.NoError(t, err)
	settings := src.Settings()
	assert.True(t, *settings["flag"].Value.BoolValue)
	assert.Equal(t, "bob", *settings["name"].Value.StringValue)
}

func TestFileDataSourceSimplifiedShapeIntegerStaysAnInt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flags.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"flags":{"maxRetries":5,"discountRate":1.5}}`), 0o644))

	src, err := NewFileDataSource(path)
	require.NoError(t, err)
	settings := src.Settings()

	require.Equal(t, IntSetting, settings["maxRetries"].Type)
	assert.Equal(t, 5, *settings["maxRetries"].Value.IntValue)

	require.Equal(t, FloatSetting, settings["discountRate"].Type)
	assert.Equal(t, 1.5, *settings["discountRate"].Value.DoubleValue)
}

func TestFileDataSourceFullConfigShape(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"f":{"flag":{"t":0,"v":{"b":true}}},"s":[]}`), 0o644))

	src, err := NewFileDataSource(path)
	require.NoError(t, err)
	assert.True(t, *src.Settings()["flag"].Value.BoolValue)
}

func TestFileDataSourceReloadPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flags.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"flags":{"flag":false}}`), 0o644))

	src, err := NewFileDataSource(path)
	require.NoError(t, err)
	assert.False(t, *src.Settings()["flag"].Value.BoolValue)

	require.NoError(t, os.WriteFile(path, []byte(`{"flags":{"flag":true}}`), 0o644))
	require.NoError(t, src.Reload())
	assert.True(t, *src.Settings()["flag"].Value.BoolValue)
}

func TestFileDataSourceReloadLeavesPreviousSettingsOnParseFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flags.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"flags":{"flag":true}}`), 0o644))

	src, err := NewFileDataSource(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o644))
	assert.Error(t, src.Reload())
	assert.True(t, *src.Settings()["flag"].Value.BoolValue, "a failed reload must not clobber the previously loaded settings")
}

func TestNewFileDataSourceMissingFileErrors(t *testing.T) {
	_, err := NewFileDataSource(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestFlagOverridesPairsSourceAndBehavior(t *testing.T) {
	src, err := NewMapDataSource(map[string]any{"flag": true})
	require.NoError(t, err)
	overrides := NewFlagOverrides(src, LocalOnly)
	assert.Equal(t, LocalOnly, overrides.behavior)
	assert.Same(t, src, overrides.source.(*MapDataSource))
}
