package feed

import (
	"context"
	"log/slog"
)

// Backfill processes the inclusive block range [from, to] in order, writing
// every result to the sink. It reuses the live processing path, so a reorg
// during the walk (possible only near the head) still rewinds correctly.
func (f *Feed) Backfill(ctx context.Context, from, to uint64) error {
	f.logger.Info("backfill started",
		slog.Uint64("from", from),
		slog.Uint64("to", to),
	)

	f.next = from
	f.recent = nil
	for f.next <= to {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f.step(ctx); err != nil {
			return err
		}
	}

	f.logger.Info("backfill complete", slog.Uint64("blocks", to-from+1))
	return nil
}
