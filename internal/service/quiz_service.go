package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/asknotes/internal/activity"
	"github.com/xxxsen/asknotes/internal/ai"
	"github.com/xxxsen/asknotes/internal/index"
	"github.com/xxxsen/asknotes/internal/model"
	appErr "github.com/xxxsen/asknotes/internal/pkg/errors"
)

const (
	DefaultQuizPool   = 100
	DefaultQuizSample = 10
)

type QuizConfig struct {
	Pool        int
	Sample      int
	Temperature *float32
	Timeout     time.Duration
}

// QuizService samples a subject's chunks and asks the model for a quiz.
type QuizService struct {
	index    index.IIndex
	gen      ai.IGenerator
	sink     activity.Sink
	cfg      QuizConfig
	validate *validator.Validate

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuizService(idx index.IIndex, gen ai.IGenerator, sink activity.Sink, cfg QuizConfig) *QuizService {
	if cfg.Pool <= 0 {
		cfg.Pool = DefaultQuizPool
	}
	if cfg.Sample <= 0 {
		cfg.Sample = DefaultQuizSample
	}
	if sink == nil {
		sink = activity.NopSink{}
	}
	return &QuizService{
		index:    idx,
		gen:      gen,
		sink:     sink,
		cfg:      cfg,
		validate: validator.New(),
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetRand replaces the sampling source.
func (s *QuizService) SetRand(r *rand.Rand) {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	s.rnd = r
}

// sample picks n chunks uniformly without replacement, or all of them.
func (s *QuizService) sample(chunks []model.Chunk, n int) []model.Chunk {
	if len(chunks) <= n {
		return chunks
	}
	s.rndMu.Lock()
	perm := s.rnd.Perm(len(chunks))
	s.rndMu.Unlock()
	out := make([]model.Chunk, 0, n)
	for _, i := range perm[:n] {
		out = append(out, chunks[i])
	}
	return out
}

// Generate builds a quiz. Unparseable model output is returned as an
// unparsed result, not as an error.
func (s *QuizService) Generate(ctx context.Context, subjectID string) (*model.QuizResult, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, fmt.Errorf("%w: subject_id is required", appErr.ErrInvalid)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("subject_id", subjectID))
	pool, err := s.index.Scroll(ctx, subjectID, s.cfg.Pool)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("%w: no notes found for subject %s", appErr.ErrInsufficientContent, subjectID)
	}
	if s.gen == nil {
		return nil, fmt.Errorf("%w: generator not configured", appErr.ErrGeneration)
	}
	picked := s.sample(pool, s.cfg.Sample)
	logger.Info("quiz context sampled", zap.Int("pool", len(pool)), zap.Int("sampled", len(picked)))

	req := ai.UserPrompt("", quizPrompt(subjectID, picked))
	req.Temperature = s.cfg.Temperature
	req.JSON = true
	genCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	raw, err := s.gen.Generate(genCtx, req)
	if err != nil {
		logger.Error("quiz generation failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", appErr.ErrGeneration, err)
	}
	result := s.parse(subjectID, raw)
	if !result.Parsed() {
		logger.Warn("quiz output unusable", zap.String("reason", result.Reason))
	}
	s.sink.Emit(ctx, activity.Event{SubjectID: subjectID, Kind: activity.KindQuizGenerated, Time: time.Now()})
	return result, nil
}

func (s *QuizService) parse(subjectID, raw string) *model.QuizResult {
	quiz, err := decodeQuiz(raw)
	if err != nil {
		quiz, err = decodeQuiz(stripFences(raw))
	}
	if err != nil {
		return &model.QuizResult{SubjectID: subjectID, Raw: raw, Reason: "unparseable quiz output: " + err.Error()}
	}
	if err := s.check(quiz); err != nil {
		return &model.QuizResult{SubjectID: subjectID, Raw: raw, Reason: "invalid quiz output: " + err.Error()}
	}
	return &model.QuizResult{SubjectID: subjectID, Quiz: quiz}
}

func (s *QuizService) check(quiz *model.Quiz) error {
	if len(quiz.MCQs) == 0 && len(quiz.ShortAnswers) == 0 {
		return fmt.Errorf("quiz has no questions")
	}
	for i := range quiz.MCQs {
		quiz.MCQs[i].CorrectAnswer = strings.ToUpper(strings.TrimSpace(quiz.MCQs[i].CorrectAnswer))
		if err := s.validate.Struct(quiz.MCQs[i]); err != nil {
			return fmt.Errorf("mcq %d: %w", i+1, err)
		}
	}
	for i := range quiz.ShortAnswers {
		if err := s.validate.Struct(quiz.ShortAnswers[i]); err != nil {
			return fmt.Errorf("short answer %d: %w", i+1, err)
		}
	}
	return nil
}

func decodeQuiz(raw string) (*model.Quiz, error) {
	var quiz model.Quiz
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &quiz); err != nil {
		return nil, err
	}
	return &quiz, nil
}

// stripFences removes markdown code fences and any prose around the outermost
// JSON object.
func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
