package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snaproll/server/internal/domain/galleries"
)

// Sink persists one analytics event. The postgres implementation appends to
// upload_analytics.
type Sink interface {
	InsertUploadEvent(ctx context.Context, event galleries.AnalyticsEvent) error
}

const (
	queueSize    = 1024
	writeTimeout = 5 * time.Second
)

// Recorder implements galleries.AnalyticsRecorder as a buffered async writer.
// Record never blocks the upload path and never surfaces failures: a full
// queue drops the event, a failed insert is logged and forgotten.
type Recorder struct {
	sink   Sink
	logger zerolog.Logger

	queue chan galleries.AnalyticsEvent
	done  chan struct{}
	once  sync.Once
}

func NewRecorder(sink Sink, logger zerolog.Logger) *Recorder {
	r := &Recorder{
		sink:   sink,
		logger: logger,
		queue:  make(chan galleries.AnalyticsEvent, queueSize),
		done:   make(chan struct{}),
	}
	go r.drain()
	return r
}

func (r *Recorder) Record(event galleries.AnalyticsEvent) {
	select {
	case r.queue <- event:
	default:
		r.logger.Warn().Str("gallery_id", event.GalleryID).Msg("analytics queue full, event dropped")
	}
}

func (r *Recorder) drain() {
	defer close(r.done)
	for event := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := r.sink.InsertUploadEvent(ctx, event); err != nil {
			r.logger.Warn().Err(err).Str("media_id", event.MediaID).Msg("analytics write failed")
		}
		cancel()
	}
}

// Stop closes the queue and waits for buffered events to flush.
func (r *Recorder) Stop() {
	r.once.Do(func() { close(r.queue) })
	<-r.done
}
