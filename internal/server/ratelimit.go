package server

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// rateLimitedWriter paces writes through a shared bandwidth limiter. The
// download engine wraps its staging sink with one when a cap is configured.
type rateLimitedWriter struct {
	w       io.Writer
	limiter *rate.Limiter
	ctx     context.Context
}

func (rl *rateLimitedWriter) Write(p []byte) (int, error) {
	if rl.limiter != nil {
		if err := rl.limiter.WaitN(rl.ctx, len(p)); err != nil {
			return 0, err
		}
	}
	return rl.w.Write(p)
}

// newBandwidthLimiter converts a megabit-per-second cap into a byte-rate
// limiter with a 100 ms burst. A non-positive cap disables limiting.
func newBandwidthLimiter(mbps float64) *rate.Limiter {
	if mbps <= 0 {
		return nil
	}
	bytesPerSecond := (mbps * 1_000_000) / 8
	burst := max(int(bytesPerSecond/10), DownloadReadSize)
	return rate.NewLimiter(rate.Limit(bytesPerSecond), burst)
}
