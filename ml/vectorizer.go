package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
)

// TfidfVectorizer reproduces a fitted bag-of-n-grams transformer: term
// counts, optional sublinear scaling, optional idf weighting, then row
// normalization.
type TfidfVectorizer struct {
	vocabulary  map[string]int
	idf         []float64
	minN, maxN  int
	binary      bool
	sublinearTF bool
	norm        string
	width       int
}

type VectorizerConfig struct {
	Vocabulary  map[string]int `json:"vocabulary"`
	IDF         []float64      `json:"idf,omitempty"`
	NGramRange  [2]int         `json:"ngram_range"`
	Binary      bool           `json:"binary"`
	SublinearTF bool           `json:"sublinear_tf"`
	Norm        string         `json:"norm"`
}

func NewTfidfVectorizer(cfg VectorizerConfig) (*TfidfVectorizer, error) {
	if len(cfg.Vocabulary) == 0 {
		return nil, errors.New("vectorizer vocabulary is empty")
	}
	minN, maxN := cfg.NGramRange[0], cfg.NGramRange[1]
	if minN == 0 && maxN == 0 {
		minN, maxN = 1, 1
	}
	if minN < 1 || maxN < minN {
		return nil, fmt.Errorf("invalid ngram_range [%d, %d]", minN, maxN)
	}
	width := 0
	for term, idx := range cfg.Vocabulary {
		if idx < 0 {
			return nil, fmt.Errorf("negative index for term %q", term)
		}
		if idx+1 > width {
			width = idx + 1
		}
	}
	if len(cfg.IDF) > 0 && len(cfg.IDF) != width {
		return nil, fmt.Errorf("idf has %d entries, vocabulary width is %d", len(cfg.IDF), width)
	}
	switch cfg.Norm {
	case "", "l2", "l1", "none":
	default:
		return nil, fmt.Errorf("unsupported norm %q", cfg.Norm)
	}
	norm := cfg.Norm
	if norm == "" {
		norm = "l2"
	}
	return &TfidfVectorizer{
		vocabulary:  cfg.Vocabulary,
		idf:         cfg.IDF,
		minN:        minN,
		maxN:        maxN,
		binary:      cfg.Binary,
		sublinearTF: cfg.SublinearTF,
		norm:        norm,
		width:       width,
	}, nil
}

func LoadVectorizer(r io.Reader) (*TfidfVectorizer, error) {
	var cfg VectorizerConfig
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode vectorizer: %w", err)
	}
	return NewTfidfVectorizer(cfg)
}

func (v *TfidfVectorizer) Width() int { return v.width }

func (v *TfidfVectorizer) Transform(tokens []string) Vector {
	x := make(Vector, v.width)
	for n := v.minN; n <= v.maxN; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			term := tokens[i]
			if n > 1 {
				term = strings.Join(tokens[i:i+n], " ")
			}
			if idx, ok := v.vocabulary[term]; ok {
				x[idx]++
			}
		}
	}

	for i, tf := range x {
		if tf == 0 {
			continue
		}
		switch {
		case v.binary:
			tf = 1
		case v.sublinearTF:
			tf = 1 + math.Log(tf)
		}
		if v.idf != nil {
			tf *= v.idf[i]
		}
		x[i] = tf
	}

	v.normalize(x)
	return x
}

func (v *TfidfVectorizer) normalize(x Vector) {
	var total float64
	switch v.norm {
	case "l2":
		for _, f := range x {
			total += f * f
		}
		total = math.Sqrt(total)
	case "l1":
		for _, f := range x {
			total += math.Abs(f)
		}
	default:
		return
	}
	if total == 0 {
		return
	}
	for i := range x {
		x[i] /= total
	}
}
