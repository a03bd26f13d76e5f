package activity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type Kind string

const (
	KindIngested      Kind = "ingested"
	KindQueried       Kind = "queried"
	KindVoiceQueried  Kind = "voice_queried"
	KindQuizGenerated Kind = "quiz_generated"
	KindReset         Kind = "reset"
)

type Event struct {
	SubjectID string
	Kind      Kind
	Time      time.Time
}

// Sink receives discrete study events. Emit must not block or fail callers.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

func New(kind string) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "log":
		return LogSink{}, nil
	case "none":
		return NopSink{}, nil
	default:
		return nil, fmt.Errorf("unsupported activity sink: %s", kind)
	}
}

type LogSink struct{}

func (LogSink) Emit(ctx context.Context, ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	logutil.GetLogger(ctx).Info("study activity",
		zap.String("subject_id", ev.SubjectID),
		zap.String("kind", string(ev.Kind)),
		zap.Time("time", ev.Time),
	)
}

type NopSink struct{}

func (NopSink) Emit(ctx context.Context, ev Event) {}
