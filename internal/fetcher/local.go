package fetcher

import (
	"context"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// IsRemote reports whether src is an http(s) URL rather than a local path.
func IsRemote(src string) bool {
	u, err := url.Parse(src)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Localize returns a local path for src. Remote sources are downloaded into
// dir under the URL's base name; local paths are returned unchanged.
func Localize(ctx context.Context, f Fetcher, src, dir string) (string, error) {
	if !IsRemote(src) {
		return src, nil
	}
	if f == nil {
		return "", eris.Errorf("fetcher: no fetcher configured for %s", src)
	}

	u, _ := url.Parse(src)
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" || strings.ContainsAny(name, `\:`) {
		name = "download"
	}
	dst := filepath.Join(dir, name)

	n, err := f.DownloadToFile(ctx, src, dst)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: localize %s", redact(u))
	}
	zap.L().Info("fetcher: downloaded", zap.String("url", redact(u)), zap.String("path", dst), zap.Int64("bytes", n))
	return dst, nil
}
