// Package regressor evaluates gradient-boosted tree ensembles saved with
// XGBoost's JSON model format (Booster.save_model("model.json")).
package regressor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

var ErrFeatureCount = errors.New("feature count mismatch")

// identity-link objectives whose margin is the prediction itself
var supportedObjectives = map[string]bool{
	"reg:squarederror":     true,
	"reg:absoluteerror":    true,
	"reg:pseudohubererror": true,
	"reg:quantileerror":    true,
	"reg:linear":           true,
}

// Model is an immutable tree ensemble with an ordered feature schema.
type Model struct {
	featureNames []string
	baseScore    float64
	trees        []tree
}

type tree struct {
	left        []int
	right       []int
	splitIndex  []int
	splitValue  []float32
	defaultLeft []bool
}

// Load reads and validates a model file.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing model %s: %w", path, err)
	}
	return m, nil
}

func Parse(data []byte) (*Model, error) {
	var doc modelDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	l := doc.Learner

	if len(l.FeatureNames) == 0 {
		return nil, errors.New("model carries no feature names")
	}
	if name := l.Objective.Name; name != "" && !supportedObjectives[name] {
		return nil, fmt.Errorf("unsupported objective %q", name)
	}
	if booster := l.GradientBooster.Name; booster != "" && booster != "gbtree" {
		return nil, fmt.Errorf("unsupported booster %q", booster)
	}
	if n := l.LearnerModelParam.NumTarget; n != "" && n != "1" && n != "0" {
		return nil, fmt.Errorf("multi-target models are not supported (num_target=%s)", n)
	}

	baseScore, err := parseBaseScore(l.LearnerModelParam.BaseScore)
	if err != nil {
		return nil, err
	}

	m := &Model{
		featureNames: l.FeatureNames,
		baseScore:    baseScore,
		trees:        make([]tree, 0, len(l.GradientBooster.Model.Trees)),
	}
	for i, jt := range l.GradientBooster.Model.Trees {
		t, err := jt.build(len(l.FeatureNames))
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		m.trees = append(m.trees, t)
	}
	return m, nil
}

// FeatureNames returns the ordered input schema. The slice must not be
// modified.
func (m *Model) FeatureNames() []string { return m.featureNames }

func (m *Model) NumTrees() int { return len(m.trees) }

// Predict scores one row ordered like FeatureNames. NaN marks a missing value
// and follows each split's default direction. Features are compared and
// leaves accumulated in float32, matching XGBoost's own predictor.
func (m *Model) Predict(row []float64) (float64, error) {
	if len(row) != len(m.featureNames) {
		return 0, fmt.Errorf("%w: got %d values, model expects %d", ErrFeatureCount, len(row), len(m.featureNames))
	}
	sum := float32(m.baseScore)
	for i := range m.trees {
		sum += m.trees[i].leaf(row)
	}
	return float64(sum), nil
}

func (t *tree) leaf(row []float64) float32 {
	n := 0
	for t.left[n] != -1 {
		x := row[t.splitIndex[n]]
		v := float32(x)
		switch {
		case math.IsNaN(x):
			if t.defaultLeft[n] {
				n = t.left[n]
			} else {
				n = t.right[n]
			}
		case v < t.splitValue[n]:
			n = t.left[n]
		default:
			n = t.right[n]
		}
	}
	// leaf weights are stored in split_conditions
	return t.splitValue[n]
}

type modelDocument struct {
	Learner struct {
		FeatureNames      []string `json:"feature_names"`
		LearnerModelParam struct {
			BaseScore string `json:"base_score"`
			NumTarget string `json:"num_target"`
		} `json:"learner_model_param"`
		Objective struct {
			Name string `json:"name"`
		} `json:"objective"`
		GradientBooster struct {
			Name  string `json:"name"`
			Model struct {
				Trees []jsonTree `json:"trees"`
			} `json:"model"`
		} `json:"gradient_booster"`
	} `json:"learner"`
}

type jsonTree struct {
	LeftChildren    []int      `json:"left_children"`
	RightChildren   []int      `json:"right_children"`
	SplitIndices    []int      `json:"split_indices"`
	SplitConditions []float32  `json:"split_conditions"`
	DefaultLeft     []flexBool `json:"default_left"`
	SplitType       []int      `json:"split_type"`
}

func (jt jsonTree) build(numFeatures int) (tree, error) {
	n := len(jt.LeftChildren)
	if n == 0 {
		return tree{}, errors.New("empty tree")
	}
	if len(jt.RightChildren) != n || len(jt.SplitIndices) != n || len(jt.SplitConditions) != n || len(jt.DefaultLeft) != n {
		return tree{}, errors.New("inconsistent node arrays")
	}
	t := tree{
		left:        jt.LeftChildren,
		right:       jt.RightChildren,
		splitIndex:  jt.SplitIndices,
		splitValue:  jt.SplitConditions,
		defaultLeft: make([]bool, n),
	}
	for i := 0; i < n; i++ {
		t.defaultLeft[i] = bool(jt.DefaultLeft[i])
		if t.left[i] == -1 {
			continue
		}
		if i < len(jt.SplitType) && jt.SplitType[i] != 0 {
			return tree{}, fmt.Errorf("node %d: categorical splits are not supported", i)
		}
		if t.left[i] <= i || t.left[i] >= n || t.right[i] <= i || t.right[i] >= n {
			return tree{}, fmt.Errorf("node %d: child index out of range", i)
		}
		if t.splitIndex[i] < 0 || t.splitIndex[i] >= numFeatures {
			return tree{}, fmt.Errorf("node %d: split on unknown feature %d", i, t.splitIndex[i])
		}
	}
	return t, nil
}

// parseBaseScore accepts both "5E-1" and the bracketed "[5E-1]" written by
// XGBoost 2.x.
func parseBaseScore(s string) (float64, error) {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if s == "" {
		return 0.5, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid base_score %q: %w", s, err)
	}
	return v, nil
}

// flexBool decodes both true/false and 0/1.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "true", "1":
		*b = true
	case "false", "0":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %s", data)
	}
	return nil
}
