package sample

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Config holds extractor configuration.
type Config struct {
	// TmpDir is where downloads and samples are written. Empty means the
	// system temp directory.
	TmpDir string
}

// Extractor downloads a podcast audio file and cuts a random bounded-duration
// sample out of it, normalized to 16 kHz mono WAV.
type Extractor struct {
	httpClient *http.Client
	tmpDir     string
	randSource *rand.Rand
	logger     *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	return &Extractor{
		httpClient: &http.Client{},
		tmpDir:     cfg.TmpDir,
		randSource: nil, // fall back to the global source
		logger:     logger.With("component", "sample"),
	}
}

// Extract downloads audioURL in full, picks a random window of durationSec
// seconds (or the whole clip when shorter) and writes it as a WAV file.
// The full download is removed on every exit path; the caller owns deletion
// of the returned sample file.
func (e *Extractor) Extract(ctx context.Context, audioURL string, durationSec int) (string, error) {
	if strings.TrimSpace(audioURL) == "" {
		return "", fmt.Errorf("audio URL is empty")
	}

	fullPath, err := e.download(ctx, audioURL)
	if err != nil {
		return "", fmt.Errorf("download audio: %w", err)
	}
	defer func() {
		if err := os.Remove(fullPath); err != nil {
			e.logger.Warn("failed to remove downloaded audio", "path", fullPath, "error", err)
		}
	}()

	totalSec, err := probeDuration(fullPath)
	if err != nil {
		return "", fmt.Errorf("probe audio: %w", err)
	}

	start, length := sampleWindow(totalSec, float64(durationSec), e.randFloat)
	if length == totalSec {
		e.logger.Debug("audio shorter than requested sample, using full clip",
			"url", audioURL,
			"total_sec", totalSec,
		)
	}

	samplePath := strings.TrimSuffix(fullPath, ".mp3") + "_sample.wav"
	if err := exportWAV(fullPath, samplePath, start, length); err != nil {
		// Export may have left a partial file behind.
		_ = os.Remove(samplePath)
		return "", fmt.Errorf("export sample: %w", err)
	}

	e.logger.Info("extracted audio sample",
		"url", audioURL,
		"start_sec", start,
		"duration_sec", length,
		"path", samplePath,
	)

	return samplePath, nil
}

func (e *Extractor) download(ctx context.Context, audioURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(e.tmpDir, "episode_*.mp3")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	// Stream to disk; podcast episodes routinely run to hundreds of MB.
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}

	return tmp.Name(), nil
}

func (e *Extractor) randFloat() float64 {
	if e.randSource != nil {
		return e.randSource.Float64()
	}
	return rand.Float64()
}

// sampleWindow returns the start offset and length in seconds for a sample of
// at most wantSec out of totalSec, using randFloat for the uniform offset.
func sampleWindow(totalSec, wantSec float64, randFloat func() float64) (start, length float64) {
	if totalSec <= wantSec {
		return 0, totalSec
	}
	start = randFloat() * (totalSec - wantSec)
	return start, wantSec
}

func probeDuration(path string) (float64, error) {
	out, err := ffmpeg.Probe(path)
	if err != nil {
		return 0, err
	}

	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(out), &probe); err != nil {
		return 0, fmt.Errorf("parse probe output: %w", err)
	}

	dur, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", probe.Format.Duration, err)
	}
	return dur, nil
}

func exportWAV(inPath, outPath string, startSec, durationSec float64) error {
	return ffmpeg.Input(inPath, ffmpeg.KwArgs{"ss": startSec}).
		Output(outPath, ffmpeg.KwArgs{
			"t":      durationSec,
			"acodec": "pcm_s16le",
			"ac":     1,
			"ar":     16000,
			"f":      "wav",
		}).
		OverWriteOutput().
		Run()
}
