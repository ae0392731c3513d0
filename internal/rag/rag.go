// Package rag routes a question to the health or general chain and returns
// the model's answer.
package rag

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"health-rag/internal/models"
	"health-rag/internal/profile"
)

var ErrEmptyQuestion = errors.New("question text is required")

// Service holds everything a request needs. It is built once at startup and
// shared read-only by all requests.
type Service struct {
	classifier *Classifier
	health     *HealthChain
	general    *GeneralChain
	profiles   profile.Loader
}

func NewService(classifier *Classifier, health *HealthChain, general *GeneralChain, profiles profile.Loader) *Service {
	if profiles == nil {
		profiles = profile.FileLoader{}
	}
	return &Service{
		classifier: classifier,
		health:     health,
		general:    general,
		profiles:   profiles,
	}
}

// Answer classifies req.Text and runs the matching chain. The profile is
// only read for health questions; a bad profile fails the request with an
// error wrapping profile.ErrInvalidProfile.
func (s *Service) Answer(ctx context.Context, req models.QueryRequest) (*models.QueryResponse, error) {
	question := strings.TrimSpace(req.Text)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	start := time.Now()
	category := s.classifier.Classify(ctx, question)

	var (
		answer string
		err    error
	)
	switch category {
	case models.CategoryHealth:
		var p *models.UserProfile
		p, err = s.profiles.Load(req.FileLocation)
		if err != nil {
			return nil, err
		}
		answer, err = s.health.Run(ctx, question, p.Render())
	default:
		answer, err = s.general.Run(ctx, question)
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("category", string(category)).
		Bool("profile", req.FileLocation != "").
		Dur("took", time.Since(start)).
		Msg("Answered question")

	return &models.QueryResponse{Original: req.Text, Response: answer}, nil
}
