// Package convert normalizes downloaded media to wave format via ffmpeg.
package convert

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"
)

const maxStderrPreview = 400

type Converter struct {
	log *zap.SugaredLogger
}

func NewConverter(log *zap.SugaredLogger) *Converter {
	return &Converter{log: log}
}

// ToWave converts the input file to a .wav sibling and returns its path. An
// input that already is a wave file is returned unchanged.
func (c *Converter) ToWave(ctx context.Context, inputPath string) (string, error) {
	if filepath.Ext(inputPath) == ".wav" {
		c.log.Debugw("input already in wave format", "path", inputPath)
		return inputPath, nil
	}
	outputPath := wavePath(inputPath)

	cmd := exec.CommandContext(ctx, "ffmpeg", "-loglevel", "error", "-i", inputPath, outputPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		if len(msg) > maxStderrPreview {
			msg = msg[:maxStderrPreview]
		}
		return "", fmt.Errorf("ffmpeg %s: %w (%s)", inputPath, err, msg)
	}
	return outputPath, nil
}

func wavePath(inputPath string) string {
	ext := filepath.Ext(inputPath)
	return inputPath[:len(inputPath)-len(ext)] + ".wav"
}
