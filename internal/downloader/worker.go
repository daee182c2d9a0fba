package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// errStopped marks a transfer abandoned because the session stopped.
var errStopped = errors.New("download stopped")

// downloadOne transfers a single PDF into dir. The partial file is removed
// on any outcome other than success.
func (e *Engine) downloadOne(ctx context.Context, s *Session, pdfURL, dir string, obs Observer, log logrus.FieldLogger) result {
	res := result{URL: pdfURL}
	if !s.Control.Proceed(ctx) {
		res.Outcome = OutcomeSkipped
		return res
	}

	dest := s.namer.Resolve(dir, pdfURL)
	log = log.WithFields(logrus.Fields{"url": pdfURL, "path": dest})

	fail := func(err error) result {
		s.namer.Release(dest)
		if errors.Is(err, errStopped) || stopped(ctx, s) {
			log.Debug("download skipped")
			res.Outcome = OutcomeSkipped
			return res
		}
		obs.logf("Error downloading %s: %v", pdfURL, err)
		log.WithError(err).Warn("download failed")
		res.Outcome = OutcomeFailed
		res.Err = err
		return res
	}

	body, length, err := e.Config.Fetcher.FetchStream(ctx, pdfURL)
	if err != nil {
		return fail(err)
	}
	defer body.Close()

	file, err := os.Create(dest)
	if err != nil {
		return fail(fmt.Errorf("failed to create %s: %w", dest, err))
	}

	written, err := e.copyChunks(ctx, s, file, body)
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close %s: %w", dest, closeErr)
	}
	if err != nil {
		if rmErr := os.Remove(dest); rmErr != nil && !os.IsNotExist(rmErr) {
			log.WithError(rmErr).Warn("cannot remove partial file")
		}
		return fail(err)
	}

	log.WithFields(logrus.Fields{"bytes": written, "declared": length}).Debug("download complete")
	res.Path = dest
	res.Outcome = OutcomeSuccess
	return res
}

// copyChunks streams body into file one chunk at a time, honouring pause
// and stop before every write.
func (e *Engine) copyChunks(ctx context.Context, s *Session, file io.Writer, body io.Reader) (int64, error) {
	var written int64
	buf := make([]byte, e.Config.ChunkSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if !s.Control.Proceed(ctx) {
				return written, errStopped
			}
			nw, wErr := file.Write(buf[:n])
			if wErr != nil {
				return written, wErr
			}
			if n != nw {
				return written, io.ErrShortWrite
			}
			written += int64(n)
			s.Stats.AddDownloaded(n)
		}
		if err != nil {
			if err == io.EOF {
				return written, nil
			}
			if stopped(ctx, s) {
				return written, errStopped
			}
			return written, err
		}
	}
}

// stopped also covers a cancelled ctx whose Stop has not run yet.
func stopped(ctx context.Context, s *Session) bool {
	return !s.Control.Running() || ctx.Err() != nil
}
