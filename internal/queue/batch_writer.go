package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/smukkama/tourist-safety/internal/models"
	"github.com/smukkama/tourist-safety/internal/protocol"
)

// AnomalyWriter stores a batch of archived anomalies
type AnomalyWriter interface {
	RecordAnomalies(ctx context.Context, records []models.AnomalyRecord) error
}

// BatchWriter consumes anomalies from Kafka and batch-writes them to the
// archive
type BatchWriter struct {
	consumer      MessageReader
	writer        AnomalyWriter
	batchSize     int
	flushInterval time.Duration
	logger        *zap.Logger
	stopCh        chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

// NewBatchWriter creates a new batch writer
func NewBatchWriter(consumer MessageReader, writer AnomalyWriter, batchSize int, flushInterval time.Duration, logger *zap.Logger) *BatchWriter {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &BatchWriter{
		consumer:      consumer,
		writer:        writer,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

// Start begins consuming and writing to the archive
func (bw *BatchWriter) Start(ctx context.Context) {
	bw.wg.Add(1)
	go bw.run(ctx)
}

// Stop flushes what is pending and waits for the writer to exit
func (bw *BatchWriter) Stop() {
	bw.stopOnce.Do(func() { close(bw.stopCh) })
	bw.wg.Wait()
}

func (bw *BatchWriter) run(ctx context.Context) {
	defer bw.wg.Done()

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var batch []kafka.Message
	ticker := time.NewTicker(bw.flushInterval)
	defer ticker.Stop()

	msgChan := make(chan kafka.Message, bw.batchSize)
	go func() {
		defer close(msgChan)
		for {
			msg, err := bw.consumer.Consume(fetchCtx)
			if err != nil {
				if fetchCtx.Err() != nil {
					return
				}
				bw.logger.Warn("consumer error", zap.Error(err))
				continue
			}
			select {
			case msgChan <- msg:
			case <-fetchCtx.Done():
				return
			}
		}
	}()

	// Offsets of the final flush must still be committed after ctx is done
	flushCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-bw.stopCh:
			bw.flush(flushCtx, batch)
			return

		case <-ctx.Done():
			bw.flush(flushCtx, batch)
			return

		case <-ticker.C:
			if len(batch) > 0 {
				bw.logger.Debug("flush interval reached", zap.Int("messages", len(batch)))
				bw.flush(flushCtx, batch)
				batch = nil
			}

		case msg, ok := <-msgChan:
			if !ok {
				bw.flush(flushCtx, batch)
				return
			}
			batch = append(batch, msg)

			if len(batch) >= bw.batchSize {
				bw.logger.Debug("batch full", zap.Int("messages", len(batch)))
				bw.flush(flushCtx, batch)
				batch = nil
			}
		}
	}
}

// flush writes the batch in one call. Messages that cannot be decoded are
// committed and skipped; a failed write leaves the whole batch uncommitted.
func (bw *BatchWriter) flush(ctx context.Context, batch []kafka.Message) {
	if len(batch) == 0 {
		return
	}

	records := make([]models.AnomalyRecord, 0, len(batch))
	for _, msg := range batch {
		rec, err := protocol.DecodeAnomalyRecord(msg.Value)
		if err != nil {
			bw.logger.Error("failed to decode anomaly",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			continue
		}
		records = append(records, *rec)
	}

	if err := bw.writer.RecordAnomalies(ctx, records); err != nil {
		bw.logger.Error("failed to write anomaly batch", zap.Int("records", len(records)), zap.Error(err))
		return
	}

	if err := bw.consumer.Commit(ctx, batch...); err != nil {
		bw.logger.Warn("failed to commit offsets", zap.Error(err))
	}

	bw.logger.Info("flushed anomaly batch",
		zap.Int("messages", len(batch)),
		zap.Int("records", len(records)))
}

// ErrNoHandler is returned by NewNotificationWorker without a dispatcher
var ErrNoHandler = errors.New("notification worker needs a dispatcher")

// NotificationHandler delivers one notification request
type NotificationHandler interface {
	SendEmergencyNotification(ctx context.Context, req protocol.NotificationRequest) (*protocol.DeliveryResult, error)
}

// NotificationWorker consumes queued notification requests and hands them
// to a handler. A failed delivery is not committed, so it is retried after
// a rebalance or restart.
type NotificationWorker struct {
	consumer MessageReader
	handler  NotificationHandler
	logger   *zap.Logger
}

func NewNotificationWorker(consumer MessageReader, handler NotificationHandler, logger *zap.Logger) (*NotificationWorker, error) {
	if handler == nil {
		return nil, ErrNoHandler
	}
	return &NotificationWorker{consumer: consumer, handler: handler, logger: logger}, nil
}

// Run processes messages until ctx is cancelled
func (w *NotificationWorker) Run(ctx context.Context) {
	for {
		msg, err := w.consumer.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("failed to consume message", zap.Error(err))
			continue
		}
		w.handle(ctx, msg)
	}
}

func (w *NotificationWorker) handle(ctx context.Context, msg kafka.Message) {
	req, err := protocol.DecodeNotificationRequest(msg.Value)
	if err != nil {
		w.logger.Error("failed to decode notification", zap.Int64("offset", msg.Offset), zap.Error(err))
		w.commit(ctx, msg)
		return
	}

	res, err := w.handler.SendEmergencyNotification(ctx, *req)
	if err != nil {
		w.logger.Error("failed to send notification",
			zap.String("type", req.Type),
			zap.String("sos_id", req.SOSID),
			zap.Error(err))
		return
	}

	w.logger.Info("notification delivered",
		zap.String("type", res.Channel),
		zap.String("status", res.Status),
		zap.String("sos_id", req.SOSID),
		zap.String("tourist_id", req.TouristID))
	w.commit(ctx, msg)
}

func (w *NotificationWorker) commit(ctx context.Context, msg kafka.Message) {
	if err := w.consumer.Commit(ctx, msg); err != nil {
		w.logger.Warn("failed to commit offset", zap.Error(err))
	}
}
