package worker

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/consumer"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/logger"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/metrics"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/ranking"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/retry"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/writer"

	"go.uber.org/zap"
)

// Job represents a unit of work for a worker. A Skip job carries no entry;
// its offset is committed in order with the rest of its partition.
type Job struct {
	Entry   ranking.Entry
	Message consumer.Message
	Skip    bool
}

// shard keeps every message of one partition on one worker, so offsets are
// committed in order and updates for one user are applied in order.
func (j Job) shard(n int) int {
	if j.Message.Topic != "" {
		return j.Message.Partition % n
	}
	h := fnv.New32a()
	h.Write([]byte(j.Entry.UserID))
	return int(h.Sum32() % uint32(n))
}

// WorkerPool batches leaderboard entries per worker and writes them through
// a RankingWriter. Offsets are committed only after the batch is written.
type WorkerPool struct {
	logger        *logger.Logger
	writer        writer.RankingWriter
	consumer      consumer.Consumer
	numWorkers    int
	batchSize     int
	flushInterval time.Duration
	retryOpts     retry.RetryOptions
	inputs        []chan Job
	wg            sync.WaitGroup
	cancel        context.CancelFunc
	closeOnce     sync.Once
}

func NewWorkerPool(l *logger.Logger, w writer.RankingWriter, c consumer.Consumer, numWorkers, batchSize int, flushInterval time.Duration) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	inputs := make([]chan Job, numWorkers)
	for i := range inputs {
		inputs[i] = make(chan Job, batchSize)
	}
	return &WorkerPool{
		logger:        l.Component("worker-pool"),
		writer:        w,
		consumer:      c,
		numWorkers:    numWorkers,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		retryOpts: retry.RetryOptions{
			MaxAttempts: 3,
			Classifier: retry.Always(retry.Schedule{
				InitialInterval: 200 * time.Millisecond,
				MaxInterval:     2 * time.Second,
				Multiplier:      2,
			}),
		},
		inputs: inputs,
	}
}

// Start initializes the worker goroutines
func (p *WorkerPool) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.runWorker(workerCtx, i)
	}
}

// Submit hands a job to the worker that owns its partition.
func (p *WorkerPool) Submit(ctx context.Context, job Job) error {
	select {
	case p.inputs[job.shard(p.numWorkers)] <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *WorkerPool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()

	p.logger.Debug("worker started", zap.Int("worker_id", id))

	buffer := writer.NewInMemoryBuffer(p.batchSize)
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case job, ok := <-p.inputs[id]:
			if !ok {
				p.flush(context.Background(), buffer)
				return
			}
			metrics.RankerMessagesConsumedTotal.Inc()
			if buffer.Add(writer.Record{Entry: job.Entry, Message: job.Message, Skip: job.Skip}) {
				p.flush(ctx, buffer)
			}

		case <-ticker.C:
			if buffer.ShouldFlush(p.flushInterval) {
				p.flush(ctx, buffer)
			}

		case <-ctx.Done():
			p.flush(context.Background(), buffer) // Final flush on shutdown
			return
		}
	}
}

// flush writes the buffered batch. A batch that still fails after retries is
// put back into the buffer and its offsets stay uncommitted.
func (p *WorkerPool) flush(ctx context.Context, buffer writer.BatchBuffer) {
	records := buffer.Flush()
	if len(records) == 0 {
		return
	}

	entries := writer.Entries(records)
	err := retry.Do(ctx, func() error {
		return p.writer.WriteBatch(ctx, entries)
	}, p.retryOpts)
	if err != nil {
		p.logger.Error("failed to write ranking batch", err, zap.Int("size", len(records)))
		metrics.RankerWriteErrorsTotal.Inc()
		buffer.Restore(records)
		return
	}
	metrics.RankerBatchWritesTotal.Inc()

	if p.consumer == nil {
		return
	}
	if err := p.consumer.Commit(ctx, writer.Messages(records)...); err != nil {
		last := records[len(records)-1].Message
		p.logger.Error("failed to commit offsets", err,
			zap.Int("partition", last.Partition), zap.Int64("offset", last.Offset))
	}
}

// Shutdown stops accepting jobs and waits for the workers to flush.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.closeOnce.Do(func() {
		for _, in := range p.inputs {
			close(in)
		}
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if p.cancel != nil {
			p.cancel()
		}
		return ctx.Err()
	}
}
