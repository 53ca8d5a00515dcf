package archive

import (
	"context"
	"fmt"
	"time"

	"gps-svr/internal/pipeline"
)

// Sink adapta un PositionRepository a pipeline.Sink.
type Sink struct {
	repo PositionRepository
	now  func() time.Time
}

func NewSink(repo PositionRepository) *Sink {
	return &Sink{repo: repo, now: time.Now}
}

func (s *Sink) Name() string { return "mongo" }

func (s *Sink) Publish(ctx context.Context, tr *pipeline.TrackingObject) error {
	if tr == nil {
		return nil
	}
	if err := s.repo.Create(ctx, FromTracking(tr, s.now())); err != nil {
		return fmt.Errorf("archive position device %d seq %d: %w", tr.DeviceID, tr.Seq, err)
	}
	return nil
}
