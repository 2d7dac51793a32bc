package encoders

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oncycle.org/delay-api/internal/logging"
)

func stations() []string {
	return []string{
		"Ain Sebaa", "Asilah", "Ben Guerir", "Berrechid", "Casa Port",
		"Casablanca", "El Jadida", "Fes", "Kenitra", "Marrakech",
		"Meknes", "Oujda", "Rabat", "Settat", "Tanger",
	}
}

func TestDecode(t *testing.T) {
	set, err := NewSet(map[string][]string{
		"current_station": stations(),
		"next_station":    stations(),
	}, nil)
	require.NoError(t, err)

	t.Run("decodes codes of a registered column", func(t *testing.T) {
		labels, err := set.Decode([]int{5, 12}, "next_station")
		require.NoError(t, err)
		assert.Equal(t, []string{"Casablanca", "Rabat"}, labels)
	})

	t.Run("fails on codes outside the vocabulary", func(t *testing.T) {
		_, err := set.Decode([]int{99}, "current_station")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnknownCode)
		assert.Contains(t, err.Error(), "current_station")
	})

	t.Run("fails on negative codes", func(t *testing.T) {
		_, err := set.Decode([]int{-1}, "current_station")
		assert.ErrorIs(t, err, ErrUnknownCode)
	})

	t.Run("stringifies codes of an unregistered column and warns", func(t *testing.T) {
		var buf bytes.Buffer
		logged, err := NewSet(map[string][]string{}, logging.NewStructuredLogger(&buf, slog.LevelInfo))
		require.NoError(t, err)

		labels, err := logged.Decode([]int{3, 7}, "route")
		require.NoError(t, err)
		assert.Equal(t, []string{"3", "7"}, labels)
		assert.Contains(t, buf.String(), `"level":"WARN"`)
		assert.Contains(t, buf.String(), `"column":"route"`)
	})
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	set, err := NewSet(map[string][]string{
		"current_station": stations(),
		"train_type":      {"GV", "TL", "TLR", "TNR"},
	}, nil)
	require.NoError(t, err)

	for _, column := range []string{"current_station", "train_type"} {
		t.Run(column, func(t *testing.T) {
			vocabulary := stations()
			if column == "train_type" {
				vocabulary = []string{"GV", "TL", "TLR", "TNR"}
			}
			for _, label := range vocabulary {
				codes, err := set.Encode([]string{label}, column)
				require.NoError(t, err)

				decoded, err := set.Decode(codes, column)
				require.NoError(t, err)
				assert.Equal(t, label, decoded[0])
			}
		})
	}

	t.Run("rejects unseen labels", func(t *testing.T) {
		_, err := set.Encode([]string{"Agadir"}, "current_station")
		assert.ErrorIs(t, err, ErrUnknownLabel)
	})

	t.Run("rejects unregistered columns", func(t *testing.T) {
		_, err := set.Encode([]string{"x"}, "route")
		assert.ErrorIs(t, err, ErrNoEncoder)
	})
}

func TestLoad(t *testing.T) {
	t.Run("loads the artifact fixture", func(t *testing.T) {
		set, err := Load(filepath.Join("..", "..", "testdata", "encoders.json"), nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"current_station", "next_station", "route", "train_type"}, set.Columns())

		labels, err := set.Decode([]int{5, 12}, "current_station")
		require.NoError(t, err)
		assert.Equal(t, []string{"Casablanca", "Rabat"}, labels)
	})

	t.Run("fails when the file is missing", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.json"), nil)
		assert.Error(t, err)
	})

	t.Run("fails on malformed json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "encoders.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"current_station": 3}`), 0o644))

		_, err := Load(path, nil)
		assert.Error(t, err)
	})

	t.Run("fails on duplicate classes", func(t *testing.T) {
		_, err := Parse([]byte(`{"route": ["A", "A"]}`), nil)
		assert.Error(t, err)
	})
}
