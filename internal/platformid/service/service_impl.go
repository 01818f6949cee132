package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/atriumhq/atrium/internal/platformid/domain"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	log  *zap.Logger
	repo domain.Repository

	mu     sync.Mutex
	cached string
}

func New(p Params) domain.Service {
	return &Service{
		log:  p.Log.Named("platformid.service"),
		repo: p.Repo,
	}
}

func (s *Service) InstanceID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != "" {
		return s.cached, nil
	}

	row, err := s.repo.Get(ctx)
	if err != nil {
		return "", err
	}
	if row == nil {
		if err := s.repo.EnsureCreated(ctx, uuid.NewString()); err != nil {
			return "", err
		}
		// Re-read: a concurrent creator may have won the insert.
		row, err = s.repo.Get(ctx)
		if err != nil {
			return "", err
		}
		if row == nil {
			return "", errors.New("platform instance id not provisioned")
		}
		s.log.Info("provisioned platform instance id", zap.String("instance_id", row.InstanceID))
	}

	s.cached = row.InstanceID
	return s.cached, nil
}

func (s *Service) AudienceID(ctx context.Context) (string, error) {
	id, err := s.InstanceID(ctx)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(id, domain.AudiencePrefix) {
		return id, nil
	}
	return domain.AudiencePrefix + id, nil
}
