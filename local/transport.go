package local

import (
	"context"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-campus"
	"github.com/goliatone/go-campus/backend"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	codeInvalidGrant      = "invalid_grant"
	codeEmailNotConfirmed = "email_not_confirmed"
	codeUserExists        = "user_already_exists"
	codeEmailExists       = "email_exists"
	codeBadJWT            = "bad_jwt"
	codeWeakPassword      = "weak_password"
	codeValidation        = "validation_failed"
	codeUnexpected        = "unexpected_failure"
	codePermissionDenied  = "42501"
)

// Config configures the local Transport.
type Config struct {
	SigningKey []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// AutoConfirm marks new accounts as confirmed on sign up.
	AutoConfirm bool
}

func (c Config) withDefaults() Config {
	if c.Issuer == "" {
		c.Issuer = "campus-local"
	}
	if c.AccessTTL <= 0 {
		c.AccessTTL = time.Hour
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = 30 * 24 * time.Hour
	}
	return c
}

// AccountInput describes an account created through CreateAccount.
type AccountInput struct {
	Email     string
	Password  string
	Name      string
	Role      campus.Role
	Metadata  map[string]any
	Confirmed bool
}

// Transport implements backend.Transport over a local database. Accounts
// and profiles live in bun tables, passwords are bcrypt hashed and tokens
// are HS256 JWTs. Failures are reported with the same codes the hosted
// service uses so backend.MapError treats both alike.
type Transport struct {
	repos       *Repositories
	tokens      *TokenIssuer
	autoConfirm bool
	now         func() time.Time
	logger      campus.Logger
}

var _ backend.Transport = (*Transport)(nil)

// NewTransport creates a local transport over db. db must be migrated.
func NewTransport(db *bun.DB, cfg Config) *Transport {
	cfg = cfg.withDefaults()
	t := &Transport{
		repos:       NewRepositories(db),
		autoConfirm: cfg.AutoConfirm,
		now:         time.Now,
	}
	t.tokens = &TokenIssuer{
		SigningKey: cfg.SigningKey,
		Issuer:     cfg.Issuer,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		Now:        func() time.Time { return t.now() },
	}
	_, t.logger = campus.ResolveLogger("local.transport", nil, nil)
	return t
}

// WithLogger sets the transport logger.
func (t *Transport) WithLogger(logger campus.Logger) *Transport {
	_, t.logger = campus.ResolveLogger("local.transport", nil, logger)
	return t
}

// WithLoggerProvider resolves the transport logger from provider.
func (t *Transport) WithLoggerProvider(provider campus.LoggerProvider) *Transport {
	_, t.logger = campus.ResolveLogger("local.transport", provider, t.logger)
	return t
}

// WithClock overrides the time source.
func (t *Transport) WithClock(now func() time.Time) *Transport {
	if now != nil {
		t.now = now
	}
	return t
}

// Tokens exposes the token issuer, e.g. to verify access tokens.
func (t *Transport) Tokens() *TokenIssuer {
	return t.tokens
}

func (t *Transport) PasswordGrant(ctx context.Context, email, password string) (*backend.TokenResponse, error) {
	account, err := t.repos.AccountByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, invalidCredentials()
		}
		return nil, dbError(backend.OpPasswordGrant, err)
	}

	if err := ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		t.logger.Debug("password mismatch", "account", account.ID)
		return nil, invalidCredentials()
	}

	if !account.Confirmed() {
		return nil, &backend.APIError{
			Operation: backend.OpPasswordGrant,
			Status:    http.StatusBadRequest,
			Code:      codeEmailNotConfirmed,
			Message:   "Email not confirmed",
		}
	}

	var resp *backend.TokenResponse
	err = t.repos.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		now := t.now()
		account.LastSignInAt = &now
		account.UpdatedAt = now
		if _, err := t.repos.Accounts().UpdateTx(ctx, tx, account, repository.UpdateByID(account.ID.String())); err != nil {
			return err
		}

		var err error
		resp, err = t.startSessionTx(ctx, tx, account)
		return err
	})
	if err != nil {
		return nil, dbError(backend.OpPasswordGrant, err)
	}

	t.logger.Info("password sign in", "account", account.ID)
	return resp, nil
}

func (t *Transport) RefreshGrant(ctx context.Context, refreshToken string) (*backend.TokenResponse, error) {
	claims, err := t.tokens.Validate(refreshToken, TokenKindRefresh)
	if err != nil {
		return nil, invalidRefreshToken(err)
	}

	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return nil, invalidRefreshToken(err)
	}

	session, err := t.repos.Sessions().GetByID(ctx, sessionID.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, invalidRefreshToken(nil)
		}
		return nil, dbError(backend.OpRefreshGrant, err)
	}

	if !session.Active(t.now()) {
		return nil, invalidRefreshToken(nil)
	}

	account, err := t.repos.Accounts().GetByID(ctx, session.AccountID.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, invalidRefreshToken(nil)
		}
		return nil, dbError(backend.OpRefreshGrant, err)
	}

	var resp *backend.TokenResponse
	err = t.repos.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := t.revokeTx(ctx, tx, session); err != nil {
			return err
		}
		var err error
		resp, err = t.startSessionTx(ctx, tx, account)
		return err
	})
	if err != nil {
		return nil, dbError(backend.OpRefreshGrant, err)
	}
	return resp, nil
}

func (t *Transport) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*backend.User, error) {
	account, err := t.CreateAccount(ctx, AccountInput{
		Email:     email,
		Password:  password,
		Name:      metadataName(metadata),
		Role:      campus.RoleStudent,
		Metadata:  metadata,
		Confirmed: t.autoConfirm,
	})
	if err != nil {
		return nil, err
	}
	return t.user(account, campus.RoleStudent), nil
}

// CreateAccount registers an account and its profile. Errors are
// *backend.APIError values using the hosted service codes.
func (t *Transport) CreateAccount(ctx context.Context, input AccountInput) (*Account, error) {
	email := NormalizeEmail(input.Email)
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return nil, &backend.APIError{
			Operation: backend.OpSignUp,
			Status:    http.StatusBadRequest,
			Code:      codeValidation,
			Message:   "Unable to validate email address: invalid format",
		}
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, &backend.APIError{
			Operation: backend.OpSignUp,
			Status:    http.StatusUnprocessableEntity,
			Code:      codeWeakPassword,
			Message:   "Password should not be empty",
			Err:       err,
		}
	}

	if _, err := t.repos.AccountByEmail(ctx, email); err == nil {
		return nil, userExists(backend.OpSignUp, codeUserExists, "User already registered")
	} else if !repository.IsRecordNotFound(err) {
		return nil, dbError(backend.OpSignUp, err)
	}

	id, err := hashid.NewUUID(email)
	if err != nil {
		id = uuid.New()
	}

	role := input.Role
	if !role.IsValid() {
		role = campus.RoleStudent
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	now := t.now()
	account := &Account{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		Metadata:     input.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if input.Confirmed {
		account.EmailConfirmedAt = &now
	}

	err = t.repos.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if _, err := t.repos.Accounts().CreateTx(ctx, tx, account); err != nil {
			return err
		}
		_, err := t.repos.Profiles().CreateTx(ctx, tx, &ProfileRecord{
			ID:        id,
			Name:      name,
			Email:     email,
			Role:      string(role),
			CreatedAt: now,
			UpdatedAt: now,
		})
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, userExists(backend.OpSignUp, codeUserExists, "User already registered")
		}
		return nil, dbError(backend.OpSignUp, err)
	}

	t.logger.Info("account created", "account", id, "role", role, "confirmed", input.Confirmed)
	return account, nil
}

// Confirm marks the account for email as confirmed.
func (t *Transport) Confirm(ctx context.Context, email string) error {
	account, err := t.repos.AccountByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryNotFound, "account not found").
				WithTextCode("ACCOUNT_NOT_FOUND").
				WithMetadata(map[string]any{"email": NormalizeEmail(email)})
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account")
	}
	if account.Confirmed() {
		return nil
	}

	now := t.now()
	account.EmailConfirmedAt = &now
	account.UpdatedAt = now
	if _, err := t.repos.Accounts().Update(ctx, account, repository.UpdateByID(account.ID.String())); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm account")
	}
	t.logger.Info("account confirmed", "account", account.ID)
	return nil
}

func (t *Transport) Logout(ctx context.Context, accessToken string) error {
	claims, apiErr := t.authenticate(backend.OpLogout, accessToken)
	if apiErr != nil {
		return apiErr
	}

	session, err := t.repos.Sessions().GetByID(ctx, claims.SessionID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil
		}
		return dbError(backend.OpLogout, err)
	}
	if session.RevokedAt != nil {
		return nil
	}

	err = t.repos.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return t.revokeTx(ctx, tx, session)
	})
	if err != nil {
		return dbError(backend.OpLogout, err)
	}
	return nil
}

func (t *Transport) UpdateUser(ctx context.Context, accessToken string, attrs backend.UserAttributes) (*backend.User, error) {
	claims, apiErr := t.authenticate(backend.OpUpdateUser, accessToken)
	if apiErr != nil {
		return nil, apiErr
	}

	account, err := t.repos.Accounts().GetByID(ctx, claims.Subject)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, &backend.APIError{
				Operation: backend.OpUpdateUser,
				Status:    http.StatusNotFound,
				Code:      "user_not_found",
				Message:   "User not found",
			}
		}
		return nil, dbError(backend.OpUpdateUser, err)
	}

	if email := NormalizeEmail(attrs.Email); email != "" && email != account.Email {
		if _, err := t.repos.AccountByEmail(ctx, email); err == nil {
			return nil, userExists(backend.OpUpdateUser, codeEmailExists, "A user with this email address has already been registered")
		} else if !repository.IsRecordNotFound(err) {
			return nil, dbError(backend.OpUpdateUser, err)
		}
		account.Email = email
	}

	if attrs.Password != "" {
		hash, err := HashPassword(attrs.Password)
		if err != nil {
			return nil, dbError(backend.OpUpdateUser, err)
		}
		account.PasswordHash = hash
	}

	if len(attrs.Data) > 0 {
		merged := make(map[string]any, len(account.Metadata)+len(attrs.Data))
		for k, v := range account.Metadata {
			merged[k] = v
		}
		for k, v := range attrs.Data {
			merged[k] = v
		}
		account.Metadata = merged
	}

	account.UpdatedAt = t.now()
	if _, err := t.repos.Accounts().Update(ctx, account, repository.UpdateByID(account.ID.String())); err != nil {
		if isUniqueViolation(err) {
			return nil, userExists(backend.OpUpdateUser, codeEmailExists, "A user with this email address has already been registered")
		}
		return nil, dbError(backend.OpUpdateUser, err)
	}

	role, _ := campus.ParseRole(claims.Role)
	return t.user(account, role), nil
}

// FetchProfile returns the row for userID. Like row level security on the
// hosted service, members only see their own row while admins see all.
func (t *Transport) FetchProfile(ctx context.Context, accessToken, userID string) (map[string]any, error) {
	claims, apiErr := t.authenticate(backend.OpFetchProfile, accessToken)
	if apiErr != nil {
		return nil, apiErr
	}
	if !canAccess(claims, userID) {
		return nil, nil
	}

	record, err := t.repos.Profiles().GetByID(ctx, userID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, dbError(backend.OpFetchProfile, err)
	}
	return profileRow(record), nil
}

func (t *Transport) PatchProfile(ctx context.Context, accessToken, userID string, fields map[string]any) error {
	claims, apiErr := t.authenticate(backend.OpPatchProfile, accessToken)
	if apiErr != nil {
		return apiErr
	}
	if !canAccess(claims, userID) {
		return &backend.APIError{
			Operation: backend.OpPatchProfile,
			Status:    http.StatusForbidden,
			Code:      codePermissionDenied,
			Message:   "permission denied for table profiles",
		}
	}

	record, err := t.repos.Profiles().GetByID(ctx, userID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil
		}
		return dbError(backend.OpPatchProfile, err)
	}

	if name, ok := fields["name"].(string); ok {
		record.Name = name
	}
	if email, ok := fields["email"].(string); ok {
		record.Email = NormalizeEmail(email)
	}
	record.UpdatedAt = t.now()

	if _, err := t.repos.Profiles().Update(ctx, record, repository.UpdateByID(record.ID.String())); err != nil {
		return dbError(backend.OpPatchProfile, err)
	}
	return nil
}

func (t *Transport) startSessionTx(ctx context.Context, tx bun.IDB, account *Account) (*backend.TokenResponse, error) {
	role := campus.RoleStudent
	if profile, err := t.profileTx(ctx, tx, account.ID); err == nil {
		if r, ok := campus.ParseRole(profile.Role); ok {
			role = r
		}
	} else if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	now := t.now()
	session := &AuthSession{
		ID:        uuid.New(),
		AccountID: account.ID,
		ExpiresAt: now.Add(t.tokens.RefreshTTL),
		CreatedAt: now,
	}
	if _, err := t.repos.Sessions().CreateTx(ctx, tx, session); err != nil {
		return nil, err
	}

	access, refresh, expiresAt, err := t.tokens.Issue(account, string(role), session.ID.String())
	if err != nil {
		return nil, err
	}

	return &backend.TokenResponse{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    int64(t.tokens.AccessTTL / time.Second),
		ExpiresAt:    expiresAt.Unix(),
		RefreshToken: refresh,
		User:         t.user(account, role),
	}, nil
}

func (t *Transport) profileTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*ProfileRecord, error) {
	record := &ProfileRecord{}
	err := tx.NewSelect().Model(record).Where("?TableAlias.id = ?", id.String()).Limit(1).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (t *Transport) revokeTx(ctx context.Context, tx bun.IDB, session *AuthSession) error {
	now := t.now()
	session.RevokedAt = &now
	_, err := t.repos.Sessions().UpdateTx(ctx, tx, session, repository.UpdateByID(session.ID.String()))
	return err
}

func (t *Transport) authenticate(op, accessToken string) (*Claims, *backend.APIError) {
	claims, err := t.tokens.Validate(accessToken, TokenKindAccess)
	if err != nil {
		return nil, &backend.APIError{
			Operation: op,
			Status:    http.StatusUnauthorized,
			Code:      codeBadJWT,
			Message:   "invalid JWT: " + err.Error(),
		}
	}
	return claims, nil
}

func (t *Transport) user(account *Account, role campus.Role) *backend.User {
	return &backend.User{
		ID:               account.ID.String(),
		Email:            account.Email,
		EmailConfirmedAt: account.EmailConfirmedAt,
		UserMetadata:     account.Metadata,
		AppMetadata: map[string]any{
			"provider": "email",
			"role":     string(role),
		},
	}
}

func canAccess(claims *Claims, userID string) bool {
	if claims.Subject == userID {
		return true
	}
	role, _ := campus.ParseRole(claims.Role)
	return role.IsAtLeast(campus.RoleAdmin)
}

func profileRow(record *ProfileRecord) map[string]any {
	return backend.ProfileRow(&campus.Profile{
		ID:        record.ID.String(),
		Name:      record.Name,
		Email:     record.Email,
		Role:      campus.Role(record.Role),
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	})
}

func metadataName(metadata map[string]any) string {
	for _, key := range []string{"full_name", "name", "nome"} {
		if v, ok := metadata[key].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func invalidCredentials() *backend.APIError {
	return &backend.APIError{
		Operation: backend.OpPasswordGrant,
		Status:    http.StatusBadRequest,
		Code:      codeInvalidGrant,
		Message:   "Invalid login credentials",
	}
}

func invalidRefreshToken(err error) *backend.APIError {
	return &backend.APIError{
		Operation: backend.OpRefreshGrant,
		Status:    http.StatusBadRequest,
		Code:      codeInvalidGrant,
		Message:   "Invalid Refresh Token",
		Err:       err,
	}
}

func userExists(op, code, msg string) *backend.APIError {
	return &backend.APIError{
		Operation: op,
		Status:    http.StatusUnprocessableEntity,
		Code:      code,
		Message:   msg,
	}
}

func dbError(op string, err error) *backend.APIError {
	return &backend.APIError{
		Operation: op,
		Status:    http.StatusInternalServerError,
		Code:      codeUnexpected,
		Message:   "Database error",
		Err:       err,
	}
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
