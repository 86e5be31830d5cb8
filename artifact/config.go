package artifact

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/remla25-team6/model-service/config"
	"github.com/remla25-team6/model-service/db"
	"github.com/remla25-team6/model-service/preprocess"
)

// NewLoader builds a Loader from cfg, opening the artifact index when one
// is configured. The returned func closes the index.
func NewLoader(cfg *config.Config, logger *zap.Logger) (*Loader, func(), error) {
	loader := &Loader{
		Dir:     cfg.Artifacts.Dir,
		Version: cfg.Artifacts.Version,
		BaseURL: cfg.Artifacts.BaseURL,
		Client:  &http.Client{Timeout: cfg.Artifacts.DownloadTimeout},
		Logger:  logger,
	}
	if cfg.Artifacts.IndexPath == "" {
		return loader, func() {}, nil
	}
	index, err := db.Open(cfg.Artifacts.IndexPath)
	if err != nil {
		return nil, nil, err
	}
	loader.Index = index
	return loader, func() { index.Close() }, nil
}

func OptionsFromConfig(cfg *config.Config) PipelineOptions {
	return PipelineOptions{
		ModelName:      cfg.Artifacts.ModelName,
		VectorizerName: cfg.Artifacts.VectorizerName,
		ModelType:      cfg.Model.Type,
		Labels:         cfg.Model.Labels,
		Preprocess: preprocess.Options{
			StripAccents:    cfg.Preprocess.StripAccents,
			RemoveStopwords: cfg.Preprocess.RemoveStopwords,
			MinTokenLen:     cfg.Preprocess.MinTokenLen,
		},
	}
}
