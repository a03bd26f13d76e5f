package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/asknotes/internal/activity"
	"github.com/xxxsen/asknotes/internal/model"
	appErr "github.com/xxxsen/asknotes/internal/pkg/errors"
	"github.com/xxxsen/asknotes/internal/speech"
)

// QAService answers text and voice questions against one subject.
type QAService struct {
	retriever   *Retriever
	answer      *Synthesizer
	voice       *Synthesizer
	transcriber speech.ITranscriber
	tts         speech.ISynthesizer
	sink        activity.Sink
}

type QAOption func(*QAService)

func WithSpeech(transcriber speech.ITranscriber, tts speech.ISynthesizer) QAOption {
	return func(s *QAService) {
		s.transcriber = transcriber
		s.tts = tts
	}
}

func WithVoiceSynthesizer(voice *Synthesizer) QAOption {
	return func(s *QAService) {
		s.voice = voice
	}
}

func WithActivitySink(sink activity.Sink) QAOption {
	return func(s *QAService) {
		if sink != nil {
			s.sink = sink
		}
	}
}

func NewQAService(retriever *Retriever, answer *Synthesizer, opts ...QAOption) *QAService {
	s := &QAService{
		retriever: retriever,
		answer:    answer,
		voice:     answer,
		sink:      activity.NopSink{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VoiceResult is the spoken answer plus its out of band metadata.
type VoiceResult struct {
	Transcript string
	Answer     *model.Answer
	Audio      *speech.Audio
}

func normalizeQuery(query, subjectID string) (string, string, error) {
	query = strings.TrimSpace(query)
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return "", "", fmt.Errorf("%w: subject_id is required", appErr.ErrInvalid)
	}
	if query == "" {
		return "", "", fmt.Errorf("%w: query is required", appErr.ErrInvalid)
	}
	return query, subjectID, nil
}

func (s *QAService) respond(ctx context.Context, synth *Synthesizer, query, subjectID string, history []model.ConversationTurn) (*model.Answer, error) {
	chunks, err := s.retriever.Retrieve(ctx, query, subjectID)
	if err != nil {
		return nil, err
	}
	answer, err := synth.Synthesize(ctx, query, chunks, history, subjectID)
	if err != nil {
		return nil, err
	}
	if !answer.Grounded {
		return answer, nil
	}
	answer.Confidence = ConfidenceFor(chunks)
	answer.Citations = CitationsFor(chunks)
	return answer, nil
}

// Ask answers a text question.
func (s *QAService) Ask(ctx context.Context, query, subjectID string, history []model.ConversationTurn) (*model.Answer, error) {
	query, subjectID, err := normalizeQuery(query, subjectID)
	if err != nil {
		return nil, err
	}
	answer, err := s.respond(ctx, s.answer, query, subjectID, history)
	if err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("question answered",
		zap.String("subject_id", subjectID),
		zap.String("confidence", string(answer.Confidence)),
		zap.Int("citations", len(answer.Citations)),
	)
	s.sink.Emit(ctx, activity.Event{SubjectID: subjectID, Kind: activity.KindQueried, Time: time.Now()})
	return answer, nil
}

// AskVoice transcribes audio, answers in a spoken style and synthesizes speech.
func (s *QAService) AskVoice(ctx context.Context, audio []byte, mimeType, subjectID string, history []model.ConversationTurn) (*VoiceResult, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, fmt.Errorf("%w: subject_id is required", appErr.ErrInvalid)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: audio is empty", appErr.ErrInvalid)
	}
	if s.transcriber == nil {
		return nil, fmt.Errorf("%w: speech to text is not configured", appErr.ErrTranscription)
	}
	if s.tts == nil {
		return nil, fmt.Errorf("%w: text to speech is not configured", appErr.ErrSynthesis)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("subject_id", subjectID))

	transcript, err := s.transcriber.Transcribe(ctx, audio, mimeType)
	if err != nil {
		logger.Error("transcription failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", appErr.ErrTranscription, err)
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, fmt.Errorf("%w: no speech detected", appErr.ErrTranscription)
	}
	logger.Info("audio transcribed", zap.Int("chars", len(transcript)))

	answer, err := s.respond(ctx, s.voice, transcript, subjectID, history)
	if err != nil {
		return nil, err
	}
	answer.Text = plainText(answer.Text)

	spoken, err := s.tts.Synthesize(ctx, answer.Text)
	if err != nil {
		logger.Error("speech synthesis failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", appErr.ErrSynthesis, err)
	}
	s.sink.Emit(ctx, activity.Event{SubjectID: subjectID, Kind: activity.KindVoiceQueried, Time: time.Now()})
	return &VoiceResult{Transcript: transcript, Answer: answer, Audio: spoken}, nil
}
