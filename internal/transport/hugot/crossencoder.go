package hugot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"go.uber.org/zap"
)

// CrossEncoder scores query/text pairs with a local ONNX sequence
// classification model. Inference runs fully in-process; no network calls.
type CrossEncoder struct {
	session  *hugot.Session
	pipeline *pipelines.TextClassificationPipeline
	logger   *zap.Logger
}

// New loads the model (downloading it into modelDir on first use) and builds
// the scoring pipeline. Callers treat a load failure as "reranking off", so
// errors here must not be fatal upstream.
func New(modelName, modelDir string, logger *zap.Logger) (*CrossEncoder, error) {
	modelPath, err := prepareModel(modelName, modelDir)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("create inference session: %w", err)
	}

	pipeline, err := hugot.NewPipeline(session, hugot.TextClassificationConfig{
		ModelPath: modelPath,
		Name:      "cross-encoder",
		Options: []hugot.TextClassificationOption{
			pipelines.WithSingleLabel(),
		},
	})
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			logger.Warn("Failed to destroy inference session", zap.Error(destroyErr))
		}
		return nil, fmt.Errorf("create scoring pipeline: %w", err)
	}

	logger.Info("Loaded cross-encoder model",
		zap.String("model", modelName), zap.String("path", modelPath))
	return &CrossEncoder{session: session, pipeline: pipeline, logger: logger}, nil
}

// Predict scores each text against the query, returning one score per text
// in input order.
func (e *CrossEncoder) Predict(ctx context.Context, query string, texts []string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = pairInput(query, t)
	}

	result, err := e.pipeline.RunPipeline(inputs)
	if err != nil {
		return nil, fmt.Errorf("run scoring pipeline: %w", err)
	}
	if len(result.ClassificationOutputs) != len(texts) {
		return nil, fmt.Errorf("scoring pipeline returned %d outputs for %d inputs",
			len(result.ClassificationOutputs), len(texts))
	}

	scores := make([]float64, len(texts))
	for i, out := range result.ClassificationOutputs {
		if len(out) == 0 {
			return nil, fmt.Errorf("scoring pipeline returned no labels for input %d", i)
		}
		scores[i] = float64(out[0].Score)
	}
	return scores, nil
}

// Close releases the inference session.
func (e *CrossEncoder) Close() error {
	return e.session.Destroy()
}

// pairInput joins the query and candidate for sequence classification.
func pairInput(query, text string) string {
	return strings.TrimSpace(query) + "\n" + strings.TrimSpace(text)
}

// prepareModel returns the local model path, downloading on first use.
func prepareModel(modelName, modelDir string) (string, error) {
	modelPath := filepath.Join(modelDir, strings.ReplaceAll(modelName, "/", "_"))
	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	}

	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return "", fmt.Errorf("create model directory: %w", err)
	}
	opts := hugot.NewDownloadOptions()
	opts.OnnxFilePath = "onnx/model.onnx"
	downloaded, err := hugot.DownloadModel(modelName, modelDir, opts)
	if err != nil {
		return "", fmt.Errorf("download model %s: %w", modelName, err)
	}
	return downloaded, nil
}
