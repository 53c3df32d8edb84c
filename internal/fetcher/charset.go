package fetcher

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// DecodeCharset wraps r so it yields UTF-8. An empty or UTF-8 charset
// returns r unchanged.
func DecodeCharset(r io.Reader, charset string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8":
		return r, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: unsupported charset %q", charset)
	}
	return enc.NewDecoder().Reader(r), nil
}
