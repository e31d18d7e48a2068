package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	dErrors "sebenza/pkg/domain-errors"
)

type JWTServiceSuite struct {
	suite.Suite
	service *JWTService
}

func TestJWTServiceSuite(t *testing.T) {
	suite.Run(t, new(JWTServiceSuite))
}

func (s *JWTServiceSuite) SetupTest() {
	s.service = NewJWTService("test-signing-key", "sebenza", "sebenza-api")
}

func (s *JWTServiceSuite) TestGenerateAndValidate() {
	token, err := s.service.GenerateAccessToken("agent-1", "ONBOARDING_AGENT", time.Hour)
	s.Require().NoError(err)
	s.NotEmpty(token)

	claims, err := s.service.ValidateToken(token)
	s.Require().NoError(err)
	s.Equal("agent-1", claims.Actor)
	s.Equal("ONBOARDING_AGENT", claims.ActorRole)
	s.Equal("sebenza", claims.Issuer)
}

func (s *JWTServiceSuite) TestExpiredToken() {
	token, err := s.service.GenerateAccessToken("agent-1", "ONBOARDING_AGENT", -time.Minute)
	s.Require().NoError(err)

	_, err = s.service.ValidateToken(token)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.Contains(err.Error(), "expired")
}

func (s *JWTServiceSuite) TestWrongSigningKey() {
	other := NewJWTService("another-key", "sebenza", "sebenza-api")
	token, err := other.GenerateAccessToken("agent-1", "ONBOARDING_AGENT", time.Hour)
	s.Require().NoError(err)

	_, err = s.service.ValidateToken(token)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *JWTServiceSuite) TestGarbageToken() {
	_, err := s.service.ValidateToken("not.a.token")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *JWTServiceSuite) TestTokenWithoutActorRejected() {
	token, err := s.service.GenerateAccessToken("", "ONBOARDING_AGENT", time.Hour)
	s.Require().NoError(err)

	_, err = s.service.ValidateToken(token)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.Contains(err.Error(), "actor")
}
