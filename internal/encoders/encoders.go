// Package encoders holds the label encoders fitted on the categorical training
// columns (stations, train type, route). The set is loaded once and only read
// afterwards.
package encoders

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"

	"oncycle.org/delay-api/internal/logging"
)

var (
	ErrUnknownCode  = errors.New("code outside encoder vocabulary")
	ErrUnknownLabel = errors.New("label not seen during training")
	ErrNoEncoder    = errors.New("no label encoder for column")
)

// LabelEncoder maps between category labels and their integer codes. The code
// of a label is its position in the class list.
type LabelEncoder struct {
	classes []string
	index   map[string]int
}

// NewLabelEncoder builds an encoder from an ordered class list.
func NewLabelEncoder(classes []string) (*LabelEncoder, error) {
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("duplicate class %q", c)
		}
		index[c] = i
	}
	return &LabelEncoder{classes: classes, index: index}, nil
}

// InverseTransform decodes integer codes to labels.
func (e *LabelEncoder) InverseTransform(codes []int) ([]string, error) {
	out := make([]string, len(codes))
	for i, c := range codes {
		if c < 0 || c >= len(e.classes) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownCode, c)
		}
		out[i] = e.classes[c]
	}
	return out, nil
}

// Transform encodes labels to integer codes.
func (e *LabelEncoder) Transform(labels []string) ([]int, error) {
	out := make([]int, len(labels))
	for i, l := range labels {
		c, ok := e.index[l]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownLabel, l)
		}
		out[i] = c
	}
	return out, nil
}

// Set is the column name to encoder mapping.
type Set struct {
	encoders map[string]*LabelEncoder
	logger   *slog.Logger
}

// Load reads an encoder artifact: a JSON object mapping each categorical
// column to its ordered class list.
func Load(path string, logger *slog.Logger) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading encoders: %w", err)
	}
	set, err := Parse(data, logger)
	if err != nil {
		return nil, fmt.Errorf("parsing encoders from %s: %w", path, err)
	}
	return set, nil
}

func Parse(data []byte, logger *slog.Logger) (*Set, error) {
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return NewSet(raw, logger)
}

// NewSet builds a Set from column class lists.
func NewSet(columns map[string][]string, logger *slog.Logger) (*Set, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	set := &Set{encoders: make(map[string]*LabelEncoder, len(columns)), logger: logger}
	for col, classes := range columns {
		enc, err := NewLabelEncoder(classes)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
		set.encoders[col] = enc
	}
	return set, nil
}

// Decode maps codes back to labels. A column without an encoder degrades to
// the stringified codes.
func (s *Set) Decode(values []int, column string) ([]string, error) {
	enc, ok := s.encoders[column]
	if !ok {
		s.logger.Warn("no label encoder found for column", slog.String("column", column))
		out := make([]string, len(values))
		for i, v := range values {
			out[i] = strconv.Itoa(v)
		}
		return out, nil
	}
	labels, err := enc.InverseTransform(values)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", column, err)
	}
	return labels, nil
}

func (s *Set) Encode(labels []string, column string) ([]int, error) {
	enc, ok := s.encoders[column]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoEncoder, column)
	}
	codes, err := enc.Transform(labels)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", column, err)
	}
	return codes, nil
}

// Columns returns the registered column names in sorted order.
func (s *Set) Columns() []string {
	cols := make([]string, 0, len(s.encoders))
	for c := range s.encoders {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}
