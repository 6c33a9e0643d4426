package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polypnl/internal/domain"
	"github.com/alanyoungcy/polypnl/internal/sink"
)

// archivedFill is the JSONL shape of one fill. Big integers are rendered as
// decimal strings so records survive tooling that parses JSON numbers as
// float64.
type archivedFill struct {
	ID          string `json:"id"`
	BlockNumber uint64 `json:"block_number"`
	Timestamp   int64  `json:"timestamp"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint   `json:"log_index"`
	Maker       string `json:"maker"`
	Taker       string `json:"taker"`
	TokenID     string `json:"token_id"`
	Side        string `json:"side"`
	Price       string `json:"price"`
	Amount      string `json:"amount"`
	Fee         string `json:"fee"`
	Exchange    string `json:"exchange"`
	OrderHash   string `json:"order_hash"`
}

// FillArchiver batches decoded fills into newline-delimited JSON and uploads
// one object per batch under fills/{runID}/{first}-{last}.jsonl. It is meant
// for the single-threaded block pipeline and is not safe for concurrent use.
//
// Objects are cut every flushEvery blocks. Call Flush on shutdown to upload
// the partial tail batch.
type FillArchiver struct {
	writer *Writer
	runID  string
	every  uint64
	logger *slog.Logger

	buf        bytes.Buffer
	enc        *json.Encoder
	fills      int
	blocks     uint64
	firstBlock uint64
	lastBlock  uint64
}

// NewFillArchiver creates a FillArchiver. runID namespaces this process run's
// objects; flushEvery of 0 defaults to 100 blocks per object.
func NewFillArchiver(writer *Writer, runID string, flushEvery uint64, logger *slog.Logger) *FillArchiver {
	if flushEvery == 0 {
		flushEvery = 100
	}
	a := &FillArchiver{
		writer: writer,
		runID:  runID,
		every:  flushEvery,
		logger: logger.With(slog.String("component", "fill_archiver")),
	}
	a.enc = json.NewEncoder(&a.buf)
	a.enc.SetEscapeHTML(false)
	return a
}

// WriteBlock implements sink.Sink: it appends the block's fills to the
// current batch and uploads when the batch spans enough blocks. Blocks with
// no fills still advance the batch window.
func (a *FillArchiver) WriteBlock(ctx context.Context, res *domain.BlockResult) error {
	if a.blocks == 0 {
		a.firstBlock = res.BlockNumber
	}
	a.blocks++
	a.lastBlock = res.BlockNumber

	for _, f := range res.Fills {
		rec := archivedFill{
			ID:          f.ID,
			BlockNumber: f.BlockNumber,
			Timestamp:   f.Timestamp,
			TxHash:      f.TxHash,
			LogIndex:    f.LogIndex,
			Maker:       f.Maker,
			Taker:       f.Taker,
			TokenID:     f.TokenID,
			Side:        f.Side,
			Price:       f.Price,
			Amount:      f.Amount.String(),
			Fee:         f.Fee.String(),
			Exchange:    f.Exchange,
			OrderHash:   f.OrderHash,
		}
		if err := a.enc.Encode(rec); err != nil {
			return fmt.Errorf("s3blob: encode fill %s: %w", f.ID, err)
		}
		a.fills++
	}

	if a.blocks >= a.every {
		return a.Flush(ctx)
	}
	return nil
}

// Flush uploads the pending batch, if any, and resets the buffer.
func (a *FillArchiver) Flush(ctx context.Context) error {
	if a.fills == 0 {
		a.reset()
		return nil
	}

	key := fmt.Sprintf("fills/%s/%010d-%010d.jsonl", a.runID, a.firstBlock, a.lastBlock)

	var err error
	if int64(a.buf.Len()) >= minPartSize {
		err = a.writer.PutMultipart(ctx, key, bytes.NewReader(a.buf.Bytes()), minPartSize)
	} else {
		err = a.writer.Put(ctx, key, bytes.NewReader(a.buf.Bytes()), "application/x-ndjson")
	}
	if err != nil {
		return fmt.Errorf("s3blob: flush archive %s: %w", key, err)
	}

	a.logger.Info("archive uploaded",
		slog.String("key", key),
		slog.Int("fills", a.fills),
		slog.Uint64("first_block", a.firstBlock),
		slog.Uint64("last_block", a.lastBlock),
	)
	a.reset()
	return nil
}

func (a *FillArchiver) reset() {
	a.buf.Reset()
	a.fills = 0
	a.blocks = 0
	a.firstBlock = 0
	a.lastBlock = 0
}

var _ sink.Sink = (*FillArchiver)(nil)
