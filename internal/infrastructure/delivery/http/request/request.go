// Package request holds the decoded shapes of client requests.
package request

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"vidfetch/internal/entity"
	"vidfetch/internal/errs"
	"vidfetch/pkg/urls"
)

// Download is the body of POST /v1/downloads.
type Download struct {
	URL         string `json:"url"`
	FormatID    string `json:"formatId"`
	MergePolicy string `json:"mergePolicy"`
	Dir         string `json:"dir,omitempty"` // subfolder of the downloads root
}

// Validate checks the body and returns the parsed merge policy.
func (d *Download) Validate() (entity.MergePolicy, error) {
	if !urls.IsURLValid(urls.Normalize(d.URL)) {
		return "", errs.New(errs.KindInvalidURL, "url is missing or malformed", nil)
	}

	if strings.TrimSpace(d.FormatID) == "" {
		return "", errs.ErrInvalidFormatID
	}

	policy, err := entity.ParseMergePolicy(d.MergePolicy)
	if err != nil {
		return "", errs.ErrInvalidMergePolicy
	}

	if d.Dir != "" && (filepath.IsAbs(d.Dir) || !filepath.IsLocal(d.Dir)) {
		return "", errs.ErrInvalidDir
	}

	return policy, nil
}

// Formats is the query of GET /v1/formats.
type Formats struct {
	URL              string
	IncludeAudioOnly bool
}

// ParseFormats reads ?url= and the optional ?all= flag.
func ParseFormats(r *http.Request) (Formats, error) {
	q := r.URL.Query()

	f := Formats{URL: q.Get("url")}
	if f.URL == "" {
		return f, errs.New(errs.KindInvalidURL, "url query param is missing", nil)
	}

	if all := q.Get("all"); all != "" {
		v, err := strconv.ParseBool(all)
		if err != nil {
			return f, errs.ErrInvalidRequestBody
		}

		f.IncludeAudioOnly = v
	}

	return f, nil
}
