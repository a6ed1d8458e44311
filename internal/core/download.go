package core

import (
	"context"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JonMunkholm/corpfetch/internal/errs"
	"github.com/cespare/xxhash/v2"
)

// DownloadConfig describes how to reach the FTC open-data document server.
type DownloadConfig struct {
	BaseURL     string
	Referer     string
	UserAgent   string
	Cookie      string
	BearerToken string
	Headers     map[string]string
	Timeout     time.Duration
	MaxBytes    int64
}

// ErrDocumentTooLarge is returned when the body exceeds DownloadConfig.MaxBytes.
var ErrDocumentTooLarge = errors.New("document too large")

type downloader struct {
	cfg  DownloadConfig
	http *http.Client
}

// documentName is the published file name for one city/district.
func documentName(req Request) string {
	return documentNamePrefix + "_" + req.City + "_" + req.District + csvExtension
}

// documentURL appends atchFileUrl and atchFileNm, in that order, to the base
// URL. The file name is form-encoded (spaces become '+').
func (d *downloader) documentURL(req Request) (string, error) {
	u, err := url.Parse(d.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse download URL: %w", err)
	}
	params := "atchFileUrl=dataopen&atchFileNm=" + url.QueryEscape(documentName(req))
	if u.RawQuery != "" {
		u.RawQuery += "&" + params
	} else {
		u.RawQuery = params
	}
	return u.String(), nil
}

// open issues the GET and returns the body of a 200 response.
// Any other status is a *errs.DownloadError; the caller closes the body.
func (d *downloader) open(ctx context.Context, req Request) (io.ReadCloser, error) {
	docURL, err := d.documentURL(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	d.setHeaders(httpReq)

	resp, err := d.http.Do(httpReq)
	if err != nil {
		if errs.IsTimeout(err) {
			return nil, &errs.TimeoutError{Stage: "download", Err: err}
		}
		return nil, fmt.Errorf("download %s: %w", documentName(req), err)
	}

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &errs.DownloadError{StatusCode: resp.StatusCode, URL: docURL}
	}
	return resp.Body, nil
}

func (d *downloader) setHeaders(req *http.Request) {
	for k, v := range d.cfg.Headers {
		req.Header.Set(k, v)
	}
	if d.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", d.cfg.UserAgent)
	}
	if d.cfg.Referer != "" {
		req.Header.Set("Referer", d.cfg.Referer)
	}
	if d.cfg.Cookie != "" {
		req.Header.Set("Cookie", d.cfg.Cookie)
	}
	if token := strings.TrimSpace(d.cfg.BearerToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// bodyReader counts and hashes the raw download as it is consumed, and
// remembers the first read error so transport failures can be told apart
// from decoding failures downstream.
type bodyReader struct {
	reader    io.Reader
	hash      hash.Hash64
	limit     int64
	BytesRead int64
	err       error
}

func newBodyReader(r io.Reader, limit int64) *bodyReader {
	return &bodyReader{reader: r, hash: xxhash.New(), limit: limit}
}

// Read implements io.Reader.
func (r *bodyReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	r.hash.Write(p[:n])

	if r.limit > 0 && r.BytesRead > r.limit {
		r.err = fmt.Errorf("%w: more than %d bytes", ErrDocumentTooLarge, r.limit)
		return n, r.err
	}
	if err != nil && err != io.EOF && r.err == nil {
		r.err = err
	}
	return n, err
}

// Checksum is the hex xxhash64 of the bytes read so far.
func (r *bodyReader) Checksum() string {
	return fmt.Sprintf("%016x", r.hash.Sum64())
}
