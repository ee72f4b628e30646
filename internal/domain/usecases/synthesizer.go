package usecases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/0xcro3dile/incidentrag-go/internal/domain/entities"
	"github.com/0xcro3dile/incidentrag-go/internal/domain/ports"
	"github.com/0xcro3dile/incidentrag-go/internal/metrics"
)

// maxFallbackRounds bounds how many times a missing solution is regenerated.
const maxFallbackRounds = 1

// Request is one synthesis request. At least one of Prompt and Document must carry text.
type Request struct {
	Prompt   string
	Document *entities.Document
}

// ResponseKind tells which variant of Response is populated.
type ResponseKind int

const (
	// KindAnswer carries a free-text answer grounded in retrieved solutions.
	KindAnswer ResponseKind = iota
	// KindNotFound means retrieval found nothing and no model call was made.
	KindNotFound
	// KindReport carries a structured incident report.
	KindReport
)

// Response is the terminal result of a synthesis run.
type Response struct {
	Kind       ResponseKind
	Answer     string
	Report     entities.Report
	IncidentID string
	Fallback   bool // a fallback round replaced the solution
}

// state is a step of the synthesis state machine.
type state int

const (
	stateAwaitingInput state = iota
	stateBuildingContext
	stateSynthesizing
	stateValidating
	stateFallbackRetrieval
	stateComplete
)

func (s state) String() string {
	return [...]string{"awaiting_input", "building_context", "synthesizing", "validating", "fallback_retrieval", "complete"}[s]
}

// phase records what the pending model call is for.
type phase int

const (
	phaseAnswer phase = iota
	phaseReport
	phaseFallback
)

// run is the per-request state carried between transitions.
type run struct {
	state          state
	phase          phase
	prompt         string
	document       *entities.Document
	incidentID     string
	messages       []entities.Message
	raw            string
	report         entities.Report
	fallbackQuery  string
	fallbackRounds int
	response       *Response
}

// Synthesizer combines retrieved context with language model calls to produce
// answers and structured incident reports.
type Synthesizer struct {
	retriever *Retriever
	gateway   ports.Gateway
	store     ports.IncidentStore
	glossary  entities.Glossary
	topK      int
	logger    *zap.Logger
}

// NewSynthesizer wires a Synthesizer. A nil logger disables logging.
func NewSynthesizer(
	retriever *Retriever,
	gateway ports.Gateway,
	store ports.IncidentStore,
	glossary entities.Glossary,
	topK int,
	logger *zap.Logger,
) *Synthesizer {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{
		retriever: retriever,
		gateway:   gateway,
		store:     store,
		glossary:  glossary,
		topK:      topK,
		logger:    logger,
	}
}

// Handle drives one request through the state machine until it completes.
// Gateway and store failures abort the run; a content write that already happened stays.
func (s *Synthesizer) Handle(ctx context.Context, req Request) (*Response, error) {
	r := &run{
		state:    stateAwaitingInput,
		prompt:   strings.TrimSpace(req.Prompt),
		document: req.Document,
	}

	for r.state != stateComplete {
		var err error
		from := r.state
		switch r.state {
		case stateAwaitingInput:
			err = s.awaitInput(r)
		case stateBuildingContext:
			err = s.buildContext(ctx, r)
		case stateSynthesizing:
			err = s.synthesize(ctx, r)
		case stateValidating:
			err = s.validate(ctx, r)
		case stateFallbackRetrieval:
			err = s.fallback(ctx, r)
		default:
			err = fmt.Errorf("unexpected synthesis state %d", r.state)
		}
		if err != nil {
			return nil, err
		}
		s.logger.Debug("synthesis transition",
			zap.Stringer("from", from),
			zap.Stringer("to", r.state),
			zap.String("incident_id", r.incidentID),
		)
	}
	return r.response, nil
}

func (s *Synthesizer) awaitInput(r *run) error {
	if r.document != nil && strings.TrimSpace(r.document.Text) == "" {
		r.document = nil
	}
	if r.prompt == "" && r.document == nil {
		return ErrInvalidRequest
	}
	r.state = stateBuildingContext
	return nil
}

func (s *Synthesizer) buildContext(ctx context.Context, r *run) error {
	if r.document == nil {
		solutions := s.retrieve(ctx, r.prompt)
		if len(solutions) == 0 {
			r.response = &Response{Kind: KindNotFound, Answer: NotFoundMessage}
			r.state = stateComplete
			return nil
		}
		r.messages = []entities.Message{
			entities.SystemMessage(SolutionContext(solutions)),
			entities.UserMessage(r.prompt),
		}
		r.phase = phaseAnswer
		r.state = stateSynthesizing
		return nil
	}

	r.incidentID = DocumentID(*r.document)
	r.messages = []entities.Message{
		entities.SystemMessage(ExtractionPrompt(s.glossary)),
		entities.UserMessage(r.document.Text),
	}
	if r.prompt != "" {
		r.messages = append(r.messages, entities.UserMessage(r.prompt))
	}

	// Write-ahead: the transcript must survive a failed model call.
	if err := s.store.SaveContent(ctx, r.incidentID, r.document.Text); err != nil {
		return fmt.Errorf("saving incident content: %w", err)
	}

	r.phase = phaseReport
	r.state = stateSynthesizing
	return nil
}

func (s *Synthesizer) synthesize(ctx context.Context, r *run) error {
	raw, err := s.gateway.Complete(ctx, r.messages)
	if err != nil {
		return fmt.Errorf("generating response: %w", err)
	}
	r.raw = strings.TrimSpace(raw)

	switch r.phase {
	case phaseAnswer:
		r.response = &Response{Kind: KindAnswer, Answer: r.raw}
		r.state = stateComplete
	case phaseReport:
		r.state = stateValidating
	case phaseFallback:
		update := entities.Report{Solution: entities.Text(r.raw)}
		r.report = entities.MergeReports(r.report, update)
		if err := s.store.MergeReport(ctx, r.incidentID, update); err != nil {
			return fmt.Errorf("saving fallback solution: %w", err)
		}
		metrics.FallbackTotal.WithLabelValues("replaced").Inc()
		r.response = &Response{Kind: KindReport, Report: r.report, IncidentID: r.incidentID, Fallback: true}
		r.state = stateComplete
	}
	return nil
}

func (s *Synthesizer) validate(ctx context.Context, r *run) error {
	decoded := DecodeModelReport(r.raw, s.logger)
	r.report = decoded

	if err := s.store.MergeReport(ctx, r.incidentID, r.report); err != nil {
		return fmt.Errorf("saving incident report: %w", err)
	}

	if needsFallback(r.report) && r.fallbackRounds < maxFallbackRounds {
		r.fallbackQuery = r.report.Get(entities.FieldIncidentSummary)
		if strings.TrimSpace(r.fallbackQuery) == "" {
			r.fallbackQuery = r.document.Text
		}
		r.state = stateFallbackRetrieval
		return nil
	}

	r.response = &Response{Kind: KindReport, Report: r.report, IncidentID: r.incidentID}
	r.state = stateComplete
	return nil
}

func (s *Synthesizer) fallback(ctx context.Context, r *run) error {
	r.fallbackRounds++

	solutions := s.retrieve(ctx, r.fallbackQuery)
	if len(solutions) == 0 {
		metrics.FallbackTotal.WithLabelValues("no_candidates").Inc()
		r.response = &Response{Kind: KindReport, Report: r.report, IncidentID: r.incidentID}
		r.state = stateComplete
		return nil
	}

	r.messages = []entities.Message{
		entities.SystemMessage(FallbackContext(solutions)),
		entities.UserMessage(r.fallbackQuery),
	}
	r.phase = phaseFallback
	r.state = stateSynthesizing
	return nil
}

// retrieve absorbs index failures: an unreachable knowledge base behaves like an empty one.
func (s *Synthesizer) retrieve(ctx context.Context, query string) []string {
	solutions, err := s.retriever.FindSimilarSolutions(ctx, query, s.topK, nil)
	if err != nil {
		s.logger.Warn("retrieval failed, continuing without context", zap.Error(err))
		return nil
	}
	return solutions
}

// DecodeModelReport turns a model response into a report, keeping undecodable
// responses as a summary-only record.
func DecodeModelReport(raw string, logger *zap.Logger) entities.Report {
	result := entities.DecodeReport(raw)
	if result.Err != nil {
		metrics.DecodeFailuresTotal.Inc()
		if logger != nil {
			logger.Debug("model response is not structured, keeping as summary", zap.Error(result.Err))
		}
	}
	return result.Record()
}

// DocumentID derives the incident ID from the uploaded file name without its extension.
// Nameless documents fall back to a content hash.
func DocumentID(doc entities.Document) string {
	name := filepath.Base(strings.ReplaceAll(doc.Name, "\\", "/"))
	if name == "." || name == "/" {
		name = ""
	}
	id := strings.TrimSuffix(name, filepath.Ext(name))
	if id != "" {
		return id
	}
	hash := sha256.Sum256([]byte(doc.Text))
	return hex.EncodeToString(hash[:8])
}
