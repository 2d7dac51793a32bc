package service

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"gonum.org/v1/gonum/floats/scalar"
)

const (
	DefaultModelVersion  = "1.0.0"
	DefaultModelAccuracy = 0.0
	DefaultModelError    = 0.0
)

// Metadata describes the trained model as reported by the metrics artifact.
// Accuracy is R² and Error is the mean absolute error in minutes.
type Metadata struct {
	Version  string
	Accuracy float64
	Error    float64
}

func DefaultMetadata() Metadata {
	return Metadata{
		Version:  DefaultModelVersion,
		Accuracy: DefaultModelAccuracy,
		Error:    DefaultModelError,
	}
}

// LoadMetadata reads the metrics artifact at path. A missing or unreadable
// file yields the defaults; within a readable file each key falls back to its
// default on its own. Accuracy and error are rounded to two decimals.
func LoadMetadata(path string, logger *slog.Logger) Metadata {
	md := DefaultMetadata()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("metrics file not found, using default model metadata", slog.String("path", path))
		} else {
			logger.Warn("failed to read metrics file, using default model metadata",
				slog.String("path", path), slog.String("error", err.Error()))
		}
		return md
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		logger.Warn("malformed metrics file, using default model metadata",
			slog.String("path", path), slog.String("error", err.Error()))
		return md
	}

	if v, ok := raw["version"]; ok {
		var s string
		var n json.Number
		switch {
		case json.Unmarshal(v, &s) == nil && s != "":
			md.Version = s
		case json.Unmarshal(v, &n) == nil:
			md.Version = n.String()
		default:
			logger.Warn("ignoring malformed metrics key", slog.String("key", "version"))
		}
	}
	md.Accuracy = roundedKey(raw, "r2", DefaultModelAccuracy, logger)
	md.Error = roundedKey(raw, "mae", DefaultModelError, logger)
	return md
}

func roundedKey(raw map[string]json.RawMessage, key string, def float64, logger *slog.Logger) float64 {
	v, ok := raw[key]
	if !ok {
		return def
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		logger.Warn("ignoring malformed metrics key", slog.String("key", key))
		return def
	}
	return scalar.Round(f, 2)
}
