package modelstore

import (
	"context"
	"os"

	getter "github.com/hashicorp/go-getter"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultBaseURL is the location published snapshots are fetched from when
// no other base URL is given. Empty disables fetching.
var DefaultBaseURL = os.Getenv("AR1_MODEL_BASE_URL")

// Fetch downloads the snapshot for name from baseURL into rootDir, skipping
// the download when the file is already present. baseURL accepts any
// go-getter source (http, s3, git, local paths).
func Fetch(ctx context.Context, name, rootDir, baseURL string) (string, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if baseURL == "" {
		return "", errors.New("no base URL configured for model downloads")
	}
	dst := ModelPath(name, rootDir)
	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	}
	src := baseURL + "/" + name + ".json"
	log.WithFields(log.Fields{"model": name, "url": src}).Info("downloading model weights")

	client := &getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dst,
		Mode: getter.ClientModeFile,
	}
	if err := client.Get(); err != nil {
		return "", errors.Wrapf(err, "downloading model %q", name)
	}
	return dst, nil
}
