package artifact

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/remla25-team6/model-service/ml"
	"github.com/remla25-team6/model-service/preprocess"
)

type PipelineOptions struct {
	ModelName      string
	VectorizerName string
	ModelType      string
	Labels         map[string]string
	Preprocess     preprocess.Options
}

// LoadPipeline resolves and decodes both artifacts. It fails unless both
// load and agree on vector width.
func (l *Loader) LoadPipeline(ctx context.Context, opts PipelineOptions) (*ml.Pipeline, error) {
	vecPath, err := l.Resolve(ctx, LabelVectorizer, opts.VectorizerName)
	if err != nil {
		return nil, err
	}
	modelPath, err := l.Resolve(ctx, LabelModel, opts.ModelName)
	if err != nil {
		return nil, err
	}

	vec, err := decodeVectorizer(vecPath)
	if err != nil {
		return nil, err
	}
	model, err := decodeModel(opts.ModelType, modelPath)
	if err != nil {
		return nil, err
	}

	p, err := ml.NewPipeline(preprocess.New(opts.Preprocess), vec, model, opts.Labels)
	if err != nil {
		return nil, err
	}
	l.logger().Info("pipeline loaded",
		zap.String("version", l.Version),
		zap.String("model_type", opts.ModelType),
		zap.Int("width", vec.Width()),
		zap.Strings("labels", p.Labels()),
	)
	return p, nil
}

// Reload loads a fresh pipeline and installs it in reg. When loading fails
// reg keeps serving its current pipeline and the error is returned.
func (l *Loader) Reload(ctx context.Context, opts PipelineOptions, reg *ml.Registry) error {
	p, err := l.LoadPipeline(ctx, opts)
	if err != nil {
		return err
	}
	reg.Swap(p)
	return nil
}

// LocalFiles lists the cached artifact file names for opts under the loader's version.
func (l *Loader) LocalFiles(opts PipelineOptions) []string {
	return []string{
		FileName(opts.VectorizerName, l.Version),
		FileName(opts.ModelName, l.Version),
	}
}

func decodeVectorizer(path string) (*ml.TfidfVectorizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vec, err := ml.LoadVectorizer(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return vec, nil
}

func decodeModel(modelType, path string) (ml.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	model, err := ml.LoadModel(modelType, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return model, nil
}
