package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/transfer-board-api/internal/models"
	appErrors "github.com/noah-isme/transfer-board-api/pkg/errors"
)

type accessCodeStore interface {
	ListByRole(ctx context.Context, role models.UserRole) ([]models.AccessCode, error)
	Upsert(ctx context.Context, code *models.AccessCode) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
	Audience          []string
}

// AccessCodeSeed is a plaintext access code provisioned from configuration.
type AccessCodeSeed struct {
	Label    string
	Role     models.UserRole
	SectorID *string
	Code     string
}

type sectorLookup interface {
	GetSector(ctx context.Context, id string) (*models.Sector, error)
}

type tokenRevoker interface {
	Revoke(ctx context.Context, id string, expiresAt time.Time) error
	Revoked(ctx context.Context, id string) (bool, error)
}

// AuthService exchanges role access codes for signed session tokens.
type AuthService struct {
	repo        accessCodeStore
	audit       auditWriter
	revocations tokenRevoker
	sectors     sectorLookup
	validator   *validator.Validate
	logger      *zap.Logger
	config      AuthConfig
}

// AuthOption customises an AuthService.
type AuthOption func(*AuthService)

// WithTokenRevocations enables logout. Without it tokens stay valid until expiry.
func WithTokenRevocations(store tokenRevoker) AuthOption {
	return func(s *AuthService) {
		s.revocations = store
	}
}

// WithSectorLookup lets codes without a fixed sector accept a client-chosen
// sector after checking that it exists. Without it the client value is dropped.
func WithSectorLookup(sectors sectorLookup) AuthOption {
	return func(s *AuthService) {
		s.sectors = sectors
	}
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo accessCodeStore, audit auditWriter, validate *validator.Validate, logger *zap.Logger, config AuthConfig, opts ...AuthOption) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = 12 * time.Hour
	}
	svc := &AuthService{repo: repo, audit: audit, validator: validate, logger: logger, config: config}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Login checks the code against the role's registered access codes and issues a session token.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid login payload")
	}

	codes, err := s.repo.ListByRole(ctx, req.Role)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load access codes")
	}

	matched := matchAccessCode(codes, req)
	if matched == nil {
		return nil, appErrors.ErrInvalidCredentials
	}
	if !matched.Active {
		return nil, appErrors.ErrInactiveAccount
	}

	sectorID, err := s.sessionSector(ctx, matched, req.SectorID)
	if err != nil {
		return nil, err
	}
	session := models.Session{
		ActorID:     uuid.NewString(),
		Role:        req.Role,
		SectorID:    sectorID,
		DisplayName: strings.TrimSpace(req.DisplayName),
	}
	if session.DisplayName == "" {
		session.DisplayName = matched.Label
	}

	issuedAt := time.Now().UTC()
	token, err := s.generateAccessToken(session, issuedAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	s.recordAuth(ctx, session, models.AuditActionLogin, matched.ID, req.IP, req.UserAgent)

	return &models.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.config.AccessTokenExpiry.Seconds()),
		Session:     session,
		IssuedAt:    issuedAt,
	}, nil
}

// sessionSector picks the session's sector. A sector bound to the access code
// always wins; otherwise the requested one must exist.
func (s *AuthService) sessionSector(ctx context.Context, matched *models.AccessCode, requested *string) (*string, error) {
	if matched.SectorID != nil {
		return matched.SectorID, nil
	}
	if requested == nil || strings.TrimSpace(*requested) == "" || s.sectors == nil {
		return nil, nil
	}
	sector, err := s.sectors.GetSector(ctx, strings.TrimSpace(*requested))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown sector")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load sector")
	}
	return &sector.ID, nil
}

// ValidateToken parses an access token and rejects it when it was logged out.
// A failing revocation lookup is logged and the token accepted.
func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid || !claims.Role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	if s.revocations != nil && claims.ID != "" {
		revoked, err := s.revocations.Revoked(ctx, claims.ID)
		if err != nil {
			s.logger.Warn("token revocation lookup failed", zap.String("token_id", claims.ID), zap.Error(err))
		}
		if revoked {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "session has ended")
		}
	}

	return claims, nil
}

// Logout ends the session carried by claims.
func (s *AuthService) Logout(ctx context.Context, claims *models.JWTClaims, ip, userAgent string) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	if s.revocations != nil {
		expiresAt := time.Now().Add(s.config.AccessTokenExpiry)
		if claims.ExpiresAt != nil {
			expiresAt = claims.ExpiresAt.Time
		}
		if err := s.revocations.Revoke(ctx, claims.ID, expiresAt); err != nil {
			return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to end session")
		}
	}
	s.recordAuth(ctx, claims.Session(), models.AuditActionLogout, claims.ID, ip, userAgent)
	return nil
}

func (s *AuthService) recordAuth(ctx context.Context, session models.Session, action, resourceID, ip, userAgent string) {
	if s.audit == nil {
		return
	}
	actor := session.ActorID
	entry := &models.AuditLog{
		UserID:    &actor,
		Role:      string(session.Role),
		Action:    action,
		Resource:  "auth",
		NewValues: []byte(`{"status":"success"}`),
		IPAddress: ip,
		UserAgent: userAgent,
	}
	if resourceID != "" {
		entry.ResourceID = &resourceID
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record auth audit log", zap.String("action", action), zap.Error(err))
	}
}

// EnsureAccessCodes hashes and upserts the configured codes, keyed by label.
func (s *AuthService) EnsureAccessCodes(ctx context.Context, seeds []AccessCodeSeed) error {
	for _, seed := range seeds {
		if !seed.Role.Valid() || seed.Code == "" || seed.Label == "" {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid access code seed %q", seed.Label))
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(seed.Code), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash access code %s: %w", seed.Label, err)
		}
		if err := s.repo.Upsert(ctx, &models.AccessCode{
			Role:     seed.Role,
			SectorID: seed.SectorID,
			CodeHash: string(hash),
			Label:    seed.Label,
			Active:   true,
		}); err != nil {
			return err
		}
	}
	s.logger.Info("access codes provisioned", zap.Int("count", len(seeds)))
	return nil
}

// matchAccessCode returns the first code whose hash matches. Sector-scoped
// codes only match when the caller names the same sector or none at all.
func matchAccessCode(codes []models.AccessCode, req models.LoginRequest) *models.AccessCode {
	for i := range codes {
		code := &codes[i]
		if code.SectorID != nil && req.SectorID != nil && *code.SectorID != *req.SectorID {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(code.CodeHash), []byte(req.Code)) == nil {
			return code
		}
	}
	return nil
}

func (s *AuthService) generateAccessToken(session models.Session, issuedAt time.Time) (string, error) {
	expiresAt := issuedAt.Add(s.config.AccessTokenExpiry)
	claims := &models.JWTClaims{
		UserID:      session.ActorID,
		Role:        session.Role,
		SectorID:    session.SectorID,
		DisplayName: session.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			Subject:   session.ActorID,
			Audience:  s.config.Audience,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.AccessTokenSecret))
}
