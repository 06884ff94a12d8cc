// Package analysis runs the LLM-backed assessments of a process
// description: GDPR / EU AI Act compliance grounded in retrieved legal
// excerpts, a business value estimate, and tool recommendations.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/solutionfinder/internal/ai"
	"github.com/seanblong/solutionfinder/internal/search"
	"github.com/seanblong/solutionfinder/pkg/models"
	"golang.org/x/sync/errgroup"
)

// DefaultTopK is the number of legal excerpts given to the compliance check.
const DefaultTopK = 5

// ErrEmptyDescription is returned when a process description is blank.
var ErrEmptyDescription = errors.New("process description is required")

type ValueRequest struct {
	TimeRequired string `json:"time_required"`
	Frequency    string `json:"frequency"`
	Stakeholder  string `json:"stakeholder"`
}

// Choices offered by the intake form; the first of each is the default.
var (
	TimeRequiredChoices = []string{"< 15 min", "15-30 min", "30-60 min", "1-2 h", "> 2 h"}
	FrequencyChoices    = []string{"täglich", "mehrmals pro Woche", "wöchentlich", "monatlich", "seltener"}
	StakeholderChoices  = []string{"mich", "mein Team", "meinen Chef", "Kunden", "andere"}
)

// DefaultValueRequest returns the form's preselected answers.
func DefaultValueRequest() ValueRequest {
	return ValueRequest{
		TimeRequired: TimeRequiredChoices[0],
		Frequency:    FrequencyChoices[0],
		Stakeholder:  StakeholderChoices[0],
	}
}

type ToolRequest struct {
	Description  string `json:"description"`
	Applications string `json:"applications"`
}

// Request carries every input of a full analysis.
type Request struct {
	Description  string `json:"description"`
	Applications string `json:"applications"`
	TimeRequired string `json:"time_required"`
	Frequency    string `json:"frequency"`
	Stakeholder  string `json:"stakeholder"`
}

type Service struct {
	LLM       ai.Completer
	Retriever search.Retriever
	TopK      int
}

// NewService creates an analysis service. topK <= 0 selects DefaultTopK.
func NewService(llm ai.Completer, r search.Retriever, topK int) *Service {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Service{LLM: llm, Retriever: r, TopK: topK}
}

// CheckCompliance retrieves the legal excerpts most relevant to description
// and asks the model to classify it.
func (s *Service) CheckCompliance(ctx context.Context, description string) (*models.ComplianceReport, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, ErrEmptyDescription
	}
	if s.Retriever == nil {
		return nil, errors.New("compliance: no retriever configured")
	}

	excerpts, err := s.Retriever.Retrieve(ctx, description, s.TopK)
	if err != nil {
		return nil, fmt.Errorf("compliance: retrieve excerpts: %w", err)
	}
	system, user := compliancePrompt(description, excerpts)

	var out models.ComplianceReport
	if err := s.complete(ctx, KindCompliance, system, user, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EstimateValue scores the business value of automating a process.
func (s *Service) EstimateValue(ctx context.Context, req ValueRequest) (*models.ValueEstimate, error) {
	var missing []string
	if strings.TrimSpace(req.TimeRequired) == "" {
		missing = append(missing, "time_required")
	}
	if strings.TrimSpace(req.Frequency) == "" {
		missing = append(missing, "frequency")
	}
	if strings.TrimSpace(req.Stakeholder) == "" {
		missing = append(missing, "stakeholder")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("value: missing %s", strings.Join(missing, ", "))
	}

	system, user := valuePrompt(req)
	var out models.ValueEstimate
	if err := s.complete(ctx, KindValue, system, user, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecommendTools suggests up to three tools for a process.
func (s *Service) RecommendTools(ctx context.Context, req ToolRequest) (*models.ToolRecommendations, error) {
	if strings.TrimSpace(req.Description) == "" {
		return nil, ErrEmptyDescription
	}

	system, user := toolsPrompt(req)
	var out models.ToolRecommendations
	if err := s.complete(ctx, KindTools, system, user, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Analyze runs the three assessments concurrently and returns the first
// error if any of them fails.
func (s *Service) Analyze(ctx context.Context, req Request) (*models.Report, error) {
	if strings.TrimSpace(req.Description) == "" {
		return nil, ErrEmptyDescription
	}

	var (
		compliance *models.ComplianceReport
		value      *models.ValueEstimate
		tools      *models.ToolRecommendations
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		compliance, err = s.CheckCompliance(gctx, req.Description)
		return err
	})
	g.Go(func() (err error) {
		value, err = s.EstimateValue(gctx, ValueRequest{
			TimeRequired: req.TimeRequired,
			Frequency:    req.Frequency,
			Stakeholder:  req.Stakeholder,
		})
		return err
	})
	g.Go(func() (err error) {
		tools, err = s.RecommendTools(gctx, ToolRequest{
			Description:  req.Description,
			Applications: req.Applications,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &models.Report{Compliance: *compliance, Value: *value, Tools: *tools}, nil
}

func (s *Service) complete(ctx context.Context, kind, system, user string, out any) error {
	start := time.Now()
	raw, err := s.LLM.Complete(ctx, system, user)
	if err != nil {
		log.Error().Err(err).Str("kind", kind).Msg("completion failed")
		return fmt.Errorf("%s: completion: %w", kind, err)
	}
	raw = strings.TrimSpace(raw)
	if err := parseStrict(kind, raw, out); err != nil {
		log.Warn().Err(err).Str("kind", kind).Msg("rejected model output")
		return err
	}
	log.Debug().Str("kind", kind).Dur("took", time.Since(start)).Msg("analysis complete")
	return nil
}
