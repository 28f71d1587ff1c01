package runtime

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// ProgressFunc receives download progress in the range [0,1].
type ProgressFunc func(fraction float64)

// EnsureWeights makes sure the GGUF file for src exists under
// dataPath/models/<subdir>/ and returns its path. Existing files are reused;
// downloads stream to a temp file and report progress via onProgress.
func EnsureWeights(ctx context.Context, dataPath, subdir string, src WeightSource, token string, onProgress ProgressFunc) (string, error) {
	dir := filepath.Join(dataPath, "models", subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model dir: %w", err)
	}
	dest := filepath.Join(dir, src.FileName)
	if fi, err := os.Stat(dest); err == nil && fi.Size() > 0 {
		if onProgress != nil {
			onProgress(1)
		}
		return dest, nil
	}

	url := fmt.Sprintf("https://huggingface.co/%s/resolve/%s/%s", src.Repo, src.Revision, src.FileName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	log.Info().Str("repo", src.Repo).Str("file", src.FileName).Msg("downloading_model_weights")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(dir, src.FileName+".part-*")
	if err != nil {
		return "", err
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	reader := io.Reader(resp.Body)
	if onProgress != nil && resp.ContentLength > 0 {
		reader = &progressReader{r: resp.Body, total: resp.ContentLength, onProgress: onProgress}
	}
	if _, err := io.Copy(tmp, reader); err != nil {
		return "", fmt.Errorf("download %s: %w", src.FileName, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", err
	}
	if onProgress != nil {
		onProgress(1)
	}
	return dest, nil
}

type progressReader struct {
	r          io.Reader
	total      int64
	read       int64
	lastPct    int64
	onProgress ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	// Throttle callbacks to whole-percent steps.
	if pct := p.read * 100 / p.total; pct > p.lastPct {
		p.lastPct = pct
		p.onProgress(float64(p.read) / float64(p.total))
	}
	return n, err
}
