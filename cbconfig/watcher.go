package cbconfig

import (
	"context"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const defaultPollInterval = 2500 * time.Millisecond

type WatcherOptions struct {
	Fetcher      *Fetcher
	BucketName   string
	PollInterval time.Duration
	Logger       *zap.Logger
}

// Watcher polls the terse bucket configuration and emits every fetched
// snapshot.  Revision filtering belongs to the consumer; the watcher only
// guarantees a steady supply of fresh configurations.
type Watcher struct {
	fetcher      *Fetcher
	bucketName   string
	pollInterval time.Duration
	logger       *zap.Logger

	ctx       context.Context
	ctxCancel func()
	outputCh  chan *TerseConfigJson
	closedCh  chan struct{}
}

func NewWatcher(opts WatcherOptions) *Watcher {
	pollInterval := opts.PollInterval
	if pollInterval == 0 {
		pollInterval = defaultPollInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	w := &Watcher{
		fetcher:      opts.Fetcher,
		bucketName:   opts.BucketName,
		pollInterval: pollInterval,
		logger:       logger,
		ctx:          ctx,
		ctxCancel:    ctxCancel,
		outputCh:     make(chan *TerseConfigJson, 1),
		closedCh:     make(chan struct{}),
	}

	go w.procThread()
	return w
}

// Configs returns the channel of fetched configurations.  It closes when
// the watcher shuts down.
func (w *Watcher) Configs() <-chan *TerseConfigJson {
	return w.outputCh
}

func (w *Watcher) procThread() {
	b := backoff.NewExponentialBackOff()
	b.Reset()

MainLoop:
	for {
		config, err := w.fetcher.FetchTerseBucketConfig(w.ctx, w.bucketName)
		if err != nil {
			if w.ctx.Err() != nil {
				break MainLoop
			}

			w.logger.Warn("failed to fetch bucket config",
				zap.Error(err),
				zap.String("bucket", w.bucketName))

			select {
			case <-time.After(b.NextBackOff()):
				continue
			case <-w.ctx.Done():
				break MainLoop
			}
		}

		b.Reset()

		select {
		case w.outputCh <- config:
		case <-w.ctx.Done():
			break MainLoop
		}

		select {
		case <-time.After(w.pollInterval):
		case <-w.ctx.Done():
			break MainLoop
		}
	}

	close(w.outputCh)
	close(w.closedCh)
}

// Close stops the poll loop and waits for it to exit.
func (w *Watcher) Close() {
	w.ctxCancel()
	<-w.closedCh
}
