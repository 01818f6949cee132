package service

import (
	"context"
	"errors"
	"strings"

	"github.com/atriumhq/atrium/internal/clock"
	"github.com/atriumhq/atrium/internal/revocation/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var errEmptyValue = errors.New("revocation value is required")

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		log:   p.Log.Named("revocation.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Add(ctx context.Context, revocationType domain.RevocationType, value string) error {
	if _, err := domain.ParseRevocationType(string(revocationType)); err != nil {
		return err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return errEmptyValue
	}

	entry := &domain.LocalRevocation{
		ID:        s.genID.Generate(),
		Type:      revocationType,
		Value:     value,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.repo.Add(ctx, entry); err != nil {
		return err
	}

	s.log.Info("local revocation recorded",
		zap.String("type", string(revocationType)),
		zap.String("value", value),
	)
	return nil
}

func (s *Service) List(ctx context.Context) ([]domain.LocalRevocation, error) {
	return s.repo.List(ctx)
}

func (s *Service) IsRevoked(ctx context.Context, authorID, authorKID, jti string) (bool, error) {
	pairs := [][2]string{
		{string(domain.TypeAuthorID), authorID},
		{string(domain.TypeLicenseJTI), jti},
	}
	if strings.TrimSpace(authorKID) != "" {
		pairs = append(pairs, [2]string{string(domain.TypeAuthorKID), authorKID})
	}
	return s.repo.Exists(ctx, pairs)
}
