package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"marketplace/internal/model"
	"marketplace/internal/repository"
	"marketplace/internal/utils"
	"marketplace/pkg/log"
	apperrors "marketplace/pkg/utils"
)

// TokenResponse token response
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// AuthService resolves bearer tokens into the actor every core operation
// receives. Credentials are checked by the identity provider that calls
// IssueTokens; this service never sees a password.
type AuthService interface {
	// Issue an access and refresh token pair for an active user
	IssueTokens(ctx context.Context, userID uint64) (*TokenResponse, error)

	// Authenticate an access token
	Authenticate(ctx context.Context, token string) (*model.Actor, error)

	// Refresh an access token
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)

	// Logout revokes a token until it would have expired
	Logout(ctx context.Context, token string) error
}

// authService authentication service implementation
type authService struct {
	userRepo   repository.UserRepository
	vendorRepo repository.VendorRepository
	jwtManager *utils.JWTManager
	redis      redis.Cmdable
}

// NewAuthService creates an authentication service
func NewAuthService(
	userRepo repository.UserRepository,
	vendorRepo repository.VendorRepository,
	jwtManager *utils.JWTManager,
	redis redis.Cmdable,
) AuthService {
	return &authService{
		userRepo:   userRepo,
		vendorRepo: vendorRepo,
		jwtManager: jwtManager,
		redis:      redis,
	}
}

// IssueTokens issues a token pair
func (s *authService) IssueTokens(ctx context.Context, userID uint64) (*TokenResponse, error) {
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// Authenticate validates an access token and resolves its actor
func (s *authService) Authenticate(ctx context.Context, token string) (*model.Actor, error) {
	claims, err := s.validate(ctx, token, utils.TokenTypeAccess)
	if err != nil {
		return nil, err
	}

	user, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}

	actor := &model.Actor{UserID: user.ID, Role: user.Role}
	if user.Role == model.RoleVendor {
		vendor, err := s.vendorRepo.GetByUserID(ctx, user.ID)
		switch {
		case err == nil:
			if vendor.Status == model.VendorStatusApproved {
				actor.VendorID = vendor.ID
			}
		case errors.Is(err, repository.ErrNotFound):
		default:
			return nil, apperrors.Unavailable(err, "failed to load vendor profile")
		}
	}
	return actor, nil
}

// Refresh issues a new pair from a refresh token
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	claims, err := s.validate(ctx, refreshToken, utils.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	user, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}

	// a refresh token is single use
	if err := s.revoke(ctx, claims); err != nil {
		return nil, err
	}
	return s.issue(user)
}

// Logout revokes token
func (s *authService) Logout(ctx context.Context, token string) error {
	claims, err := s.validate(ctx, token, utils.TokenTypeAccess)
	if err != nil {
		return err
	}
	if err := s.revoke(ctx, claims); err != nil {
		return err
	}

	log.WithFields(map[string]interface{}{
		"user_id": claims.UserID,
	}).Info("User logged out")
	return nil
}

// Helper methods

func (s *authService) issue(user *model.User) (*TokenResponse, error) {
	accessToken, err := s.jwtManager.GenerateAccessToken(user.ID, string(user.Role))
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.CodeInternalError, "generate access token failed")
	}
	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.ID)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.CodeInternalError, "generate refresh token failed")
	}

	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtManager.AccessExpire().Seconds()),
		TokenType:    "Bearer",
	}, nil
}

func (s *authService) validate(ctx context.Context, token, tokenType string) (*utils.JWTClaims, error) {
	claims, err := s.jwtManager.ValidateToken(token, tokenType)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.CodeUnauthorized, "invalid token")
	}

	revoked, err := s.redis.Exists(ctx, blacklistKey(claims.ID)).Result()
	if err != nil {
		return nil, apperrors.Unavailable(err, "failed to check token revocation")
	}
	if revoked > 0 {
		return nil, apperrors.NewError(apperrors.CodeUnauthorized, "token revoked")
	}
	return claims, nil
}

func (s *authService) revoke(ctx context.Context, claims *utils.JWTClaims) error {
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, blacklistKey(claims.ID), "1", ttl).Err(); err != nil {
		return apperrors.Unavailable(err, "failed to revoke token")
	}
	return nil
}

func (s *authService) activeUser(ctx context.Context, userID uint64) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewError(apperrors.CodeUnauthorized, "unknown user")
	}
	if err != nil {
		return nil, apperrors.Unavailable(err, "failed to load user")
	}
	if !user.IsActive() {
		return nil, apperrors.NewError(apperrors.CodeForbidden, "account disabled")
	}
	return user, nil
}

func blacklistKey(tokenID string) string {
	return fmt.Sprintf("auth:blacklist:%s", tokenID)
}
