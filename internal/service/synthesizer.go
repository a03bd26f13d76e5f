package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/asknotes/internal/ai"
	"github.com/xxxsen/asknotes/internal/model"
	appErr "github.com/xxxsen/asknotes/internal/pkg/errors"
)

const DefaultHistoryTurns = 6

type SystemPromptFunc func(subjectID, context string) string

type SynthesizerConfig struct {
	HistoryTurns int
	Temperature  *float32
	Timeout      time.Duration
}

// Synthesizer turns retrieved chunks into a grounded answer text.
type Synthesizer struct {
	gen    ai.IGenerator
	system SystemPromptFunc
	cfg    SynthesizerConfig
}

func NewSynthesizer(gen ai.IGenerator, system SystemPromptFunc, cfg SynthesizerConfig) *Synthesizer {
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = DefaultHistoryTurns
	}
	return &Synthesizer{gen: gen, system: system, cfg: cfg}
}

func NewAnswerSynthesizer(gen ai.IGenerator, cfg SynthesizerConfig) *Synthesizer {
	return NewSynthesizer(gen, answerSystemPrompt, cfg)
}

func NewVoiceSynthesizer(gen ai.IGenerator, cfg SynthesizerConfig) *Synthesizer {
	return NewSynthesizer(gen, voiceSystemPrompt, cfg)
}

func (s *Synthesizer) buildRequest(query string, chunks []model.RetrievedChunk, history []model.ConversationTurn, subjectID string) *ai.GenerateRequest {
	req := &ai.GenerateRequest{
		System:      s.system(subjectID, buildContext(chunks)),
		Temperature: s.cfg.Temperature,
	}
	if block := historyMessage(lastTurns(history, s.cfg.HistoryTurns)); block != "" {
		req.Messages = append(req.Messages, ai.Message{Role: string(model.RoleUser), Content: block})
	}
	req.Messages = append(req.Messages, ai.Message{Role: string(model.RoleUser), Content: query})
	return req
}

// Synthesize returns the answer text. Confidence and citations are left to the
// caller. With no chunks the refusal is returned without a model call.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, chunks []model.RetrievedChunk, history []model.ConversationTurn, subjectID string) (*model.Answer, error) {
	if len(chunks) == 0 {
		return refusalAnswer(subjectID), nil
	}
	if s.gen == nil {
		return nil, fmt.Errorf("%w: generator not configured", appErr.ErrGeneration)
	}
	req := s.buildRequest(query, chunks, history, subjectID)
	logger := logutil.GetLogger(ctx).With(zap.String("subject_id", subjectID), zap.Int("sources", len(chunks)))

	text, err := s.generate(ctx, req)
	if err != nil && ai.IsTransient(err) && ctx.Err() == nil {
		logger.Warn("generation failed, retrying once", zap.Error(err))
		text, err = s.generate(ctx, req)
	}
	if err != nil {
		logger.Error("generation failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", appErr.ErrGeneration, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty model response", appErr.ErrGeneration)
	}
	if isRefusal(text, subjectID) {
		logger.Info("model declined to answer from sources")
		return refusalAnswer(subjectID), nil
	}
	return &model.Answer{Text: text, SubjectID: subjectID, Grounded: true}, nil
}

func (s *Synthesizer) generate(ctx context.Context, req *ai.GenerateRequest) (string, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	return s.gen.Generate(ctx, req)
}

func refusalAnswer(subjectID string) *model.Answer {
	return &model.Answer{
		Text:       Refusal(subjectID),
		Confidence: model.ConfidenceLow,
		Citations:  []model.Citation{},
		SubjectID:  subjectID,
	}
}
