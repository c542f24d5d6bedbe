package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 224, cfg.Analysis.ImageSize)
	assert.Equal(t, 5, cfg.Analysis.TextureWindow)
	assert.Equal(t, 0.5, cfg.Analysis.Thresholds.HealthyGreenMin)
	assert.Contains(t, cfg.Analysis.PlantKeywords, "capitulum")
	assert.Nil(t, cfg.Analysis.FallbackSeed)
	assert.Equal(t, 10*time.Second, cfg.InferenceTimeout())
}

func TestLoadMissingDefaultFileGivesDefaults(t *testing.T) {
	t.Setenv("CROPDOC_PORT", "")
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	cfg, err := Load(DefaultPath)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "cropdoc.yaml")

	seed := int64(7)
	cfg := Default()
	cfg.Server.Port = 9090
	cfg.Models.DiseaseModel = "models/disease.onnx"
	cfg.Models.DiseaseMetadata = "models/disease.json"
	cfg.Analysis.FallbackSeed = &seed
	cfg.Analysis.Thresholds.LateBlightRedMin = 0.6
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cropdoc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analysis:\n  thresholds:\n    pest_std_min: 0.3\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.3, cfg.Analysis.Thresholds.PestStdMin)
	assert.Equal(t, 0.5, cfg.Analysis.Thresholds.HealthyGreenMin)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CROPDOC_PORT", "7000")
	t.Setenv("CROPDOC_ORT_LIB", "/opt/ort/libonnxruntime.so")
	t.Setenv("CROPDOC_DISEASE_MODEL", "d.onnx")
	t.Setenv("CROPDOC_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "/opt/ort/libonnxruntime.so", cfg.Models.RuntimeLibrary)
	assert.Equal(t, "d.onnx", cfg.Models.DiseaseModel)
	assert.Equal(t, "debug", cfg.Logging.Level)

	t.Setenv("CROPDOC_PORT", "eighty")
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cropdoc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"upload", func(c *Config) { c.Server.MaxUploadBytes = 0 }},
		{"verifier", func(c *Config) { c.Models.VerifierModel = "" }},
		{"disease metadata", func(c *Config) { c.Models.DiseaseModel = "x.onnx" }},
		{"timeout", func(c *Config) { c.Models.InferenceTimeout = "soon" }},
		{"image size", func(c *Config) { c.Analysis.ImageSize = 0 }},
		{"texture window", func(c *Config) { c.Analysis.TextureWindow = 300 }},
		{"keywords", func(c *Config) { c.Analysis.PlantKeywords = nil }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"log max age", func(c *Config) { c.Logging.MaxAge = "a week" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLogMaxAge(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 168*time.Hour, cfg.LogMaxAge())
	cfg.Logging.MaxAge = "bogus"
	assert.Equal(t, 7*24*time.Hour, cfg.LogMaxAge())
}
