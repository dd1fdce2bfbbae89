package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/banca/internal/clock"
	"github.com/smallbiznis/banca/internal/config"
	"github.com/smallbiznis/banca/internal/dashboard/domain"
	"github.com/smallbiznis/banca/internal/dashboard/password"
	"github.com/smallbiznis/banca/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	tokenBytes        = 32
	minPasswordLength = 6
	defaultTokenTTL   = 24 * time.Hour
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Cfg   config.Config
	Clock clock.Clock
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	clock    clock.Clock
	tokenTTL time.Duration
}

func New(p Params) domain.Service {
	ttl := p.Cfg.Auth.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("dashboard.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		clock:    p.Clock,
		tokenTTL: ttl,
	}
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	username := normalizeUsername(req.Username)
	if username == "" || req.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindUserByUsername(ctx, s.db, username)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active || !password.Verify(req.Password, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	raw, err := newToken()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	token := &domain.Token{
		ID:        s.genID.Generate().Int64(),
		TokenKey:  hashToken(raw),
		UserID:    user.ID,
		UserAgent: truncate(strings.TrimSpace(req.UserAgent), 255),
		IPAddress: strings.TrimSpace(req.IPAddress),
		Active:    true,
		CreatedAt: now,
		ExpiresAt: now.Add(s.tokenTTL),
	}
	if err := s.repo.CreateToken(ctx, s.db, token); err != nil {
		return nil, err
	}

	if n, err := s.repo.DeleteExpiredTokens(ctx, s.db, now); err != nil {
		s.log.Warn("expired token cleanup failed", zap.Error(err))
	} else if n > 0 {
		s.log.Debug("expired tokens removed", zap.Int64("count", n))
	}

	return &domain.LoginResult{
		Token:     raw,
		ExpiresAt: token.ExpiresAt,
		User:      domain.ToUserResponse(user),
	}, nil
}

func (s *Service) Logout(ctx context.Context, rawToken string) error {
	raw := strings.TrimSpace(rawToken)
	if raw == "" {
		return domain.ErrInvalidToken
	}
	return s.repo.DeactivateToken(ctx, s.db, hashToken(raw))
}

func (s *Service) Authenticate(ctx context.Context, rawToken string) (*domain.User, error) {
	raw := strings.TrimSpace(rawToken)
	if raw == "" {
		return nil, domain.ErrInvalidToken
	}
	token, err := s.repo.FindTokenByKey(ctx, s.db, hashToken(raw))
	if err != nil {
		return nil, err
	}
	if token == nil || !token.Active || !s.clock.Now().Before(token.ExpiresAt) {
		return nil, domain.ErrInvalidToken
	}

	user, err := s.repo.FindUserByID(ctx, s.db, token.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active {
		return nil, domain.ErrInvalidToken
	}
	return user, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.UserResponse, error) {
	users, err := s.repo.ListUsers(ctx, s.db)
	if err != nil {
		return nil, err
	}
	resp := make([]domain.UserResponse, 0, len(users))
	for i := range users {
		resp = append(resp, domain.ToUserResponse(&users[i]))
	}
	return resp, nil
}

func (s *Service) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.UserResponse, error) {
	username := normalizeUsername(req.Username)
	if username == "" {
		return nil, domain.ErrInvalidUsername
	}
	if len(req.Password) < minPasswordLength {
		return nil, domain.ErrInvalidPassword
	}
	routes, err := normalizeRoutes(req.AllowedRoutes)
	if err != nil {
		return nil, err
	}
	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	now := s.clock.Now()
	user := &domain.User{
		ID:            s.genID.Generate().Int64(),
		Username:      username,
		Name:          strings.TrimSpace(req.Name),
		PasswordHash:  hash,
		AllowedRoutes: routes,
		Active:        active,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.CreateUser(ctx, s.db, user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrUserExists
		}
		return nil, err
	}

	resp := domain.ToUserResponse(user)
	return &resp, nil
}

func (s *Service) UpdateUser(ctx context.Context, id string, req domain.UpdateUserRequest) (*domain.UserResponse, error) {
	user, err := s.loadUser(ctx, id)
	if err != nil {
		return nil, err
	}

	revoke := false
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Password != nil {
		if len(*req.Password) < minPasswordLength {
			return nil, domain.ErrInvalidPassword
		}
		hash, err := password.Hash(*req.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
		revoke = true
	}
	if req.AllowedRoutes != nil {
		routes, err := normalizeRoutes(*req.AllowedRoutes)
		if err != nil {
			return nil, err
		}
		user.AllowedRoutes = routes
	}
	if req.Active != nil {
		user.Active = *req.Active
		revoke = revoke || !user.Active
	}
	user.UpdatedAt = s.clock.Now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpdateUser(ctx, tx, user); err != nil {
			return err
		}
		if revoke {
			return s.repo.DeactivateUserTokens(ctx, tx, user.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp := domain.ToUserResponse(user)
	return &resp, nil
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	user, err := s.loadUser(ctx, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.DeactivateUserTokens(ctx, tx, user.ID); err != nil {
			return err
		}
		return s.repo.DeleteUser(ctx, tx, user.ID)
	})
}

func (s *Service) EnsureAdmin(ctx context.Context, username, plain string) (bool, error) {
	count, err := s.repo.CountUsers(ctx, s.db)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	_, err = s.CreateUser(ctx, domain.CreateUserRequest{
		Username:      username,
		Name:          "Administrador",
		Password:      plain,
		AllowedRoutes: domain.KnownRoutes,
	})
	if err != nil {
		return false, err
	}
	s.log.Info("bootstrap admin created", zap.String("username", normalizeUsername(username)))
	return true, nil
}

func (s *Service) loadUser(ctx context.Context, id string) (*domain.User, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed.Int64() <= 0 {
		return nil, domain.ErrInvalidID
	}
	user, err := s.repo.FindUserByID(ctx, s.db, parsed.Int64())
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func normalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func normalizeRoutes(routes []string) (datatypes.JSONSlice[string], error) {
	seen := make(map[string]struct{}, len(routes))
	out := make([]string, 0, len(routes))
	for _, r := range routes {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" {
			continue
		}
		if !domain.IsKnownRoute(r) {
			return nil, domain.ErrInvalidRoute
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Strings(out)
	return datatypes.JSONSlice[string](out), nil
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
