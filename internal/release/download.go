package release

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
)

// ProgressFunc is invoked periodically during a download with the
// cumulative bytes read and the total size (0 if unknown).
type ProgressFunc func(downloaded, total int64)

// Download streams asset into dst, invoking onProgress as bytes arrive.
// Transient network failures are retried by the client's retry policy;
// a digest mismatch, when the host supplies one, is fatal and not retried.
// A partial write from an aborted attempt is discarded before each retry
// when dst supports it (see resettableWriter), so a resumed attempt
// never appends to a prior attempt's bytes.
func (c *Client) Download(ctx context.Context, asset *Asset, dst io.Writer, onProgress ProgressFunc) error {
	return withRetry(ctx, c.log, "download:"+asset.Name, c.retry, func() error {
		if err := resetWriter(dst); err != nil {
			return err
		}
		return c.downloadOnce(ctx, asset, dst, onProgress)
	})
}

// resettableWriter is satisfied by *os.File, the destination every real
// call site hands Download: both installer and selfupdate open the
// destination once and pass the same handle through every retry.
type resettableWriter interface {
	io.Writer
	io.Seeker
	Truncate(size int64) error
}

// resetWriter discards whatever a previous, aborted attempt already
// wrote so a retry starts from a clean file rather than appending past
// a partial write. dst that doesn't support truncation (e.g. an
// in-memory buffer in a test with no retries expected) is left alone.
func resetWriter(dst io.Writer) error {
	rw, ok := dst.(resettableWriter)
	if !ok {
		return nil
	}
	if err := rw.Truncate(0); err != nil {
		return err
	}
	_, err := rw.Seek(0, io.SeekStart)
	return err
}

func (c *Client) downloadOnce(ctx context.Context, asset *Asset, dst io.Writer, onProgress ProgressFunc) error {
	if err := c.limiter.wait(ctx); err != nil {
		return err
	}

	url := asset.DownloadURL
	if url == "" {
		url = asset.APIURL
	}

	req, err := c.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return err
	}
	if asset.DownloadURL == "" {
		req.Header.Set("Accept", "application/octet-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Cause: err}
	}
	defer resp.Body.Close()
	c.limiter.observe(resp)

	if resp.StatusCode == http.StatusNotFound {
		return &AssetNotFoundError{Suffix: asset.Name}
	}
	if resp.StatusCode/100 != 2 {
		return &HTTPError{Status: resp.StatusCode, URL: url}
	}

	total := asset.Size
	if total == 0 {
		total = resp.ContentLength
	}

	hasher := sha256.New()
	tee := io.TeeReader(resp.Body, hasher)

	var written int64
	buf := make([]byte, 32*1024)
	for {
		n, readErr := tee.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
			written += int64(n)
			if onProgress != nil {
				onProgress(written, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return &NetworkError{Cause: readErr}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if digest := resp.Header.Get("X-Checksum-Sha256"); digest != "" {
		got := hex.EncodeToString(hasher.Sum(nil))
		if got != digest {
			return &ChecksumMismatchError{Want: digest, Got: got}
		}
	}

	return nil
}
