package auth

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/guichet-civil/guichet/internal/identity"
	"github.com/guichet-civil/guichet/internal/platform/httpx"
	"github.com/guichet-civil/guichet/internal/shared"
	_ "github.com/guichet-civil/guichet/testing"
)

type stubAccountRepo struct {
	byEmail map[string]*Account
	byID    map[string]*Account
}

func newStubAccountRepo() *stubAccountRepo {
	return &stubAccountRepo{byEmail: make(map[string]*Account), byID: make(map[string]*Account)}
}

func (r *stubAccountRepo) addAccount(id, email, password string, active bool) {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	account := &Account{ID: id, Email: strings.ToLower(email), PasswordHash: string(hash), IsActive: active}
	r.byEmail[account.Email] = account
	r.byID[id] = account
}

func (r *stubAccountRepo) FindByEmail(ctx context.Context, email string) (*Account, error) {
	if a, ok := r.byEmail[strings.ToLower(email)]; ok {
		return a, nil
	}
	return nil, httpx.ErrNotFound
}

func (r *stubAccountRepo) FindByID(ctx context.Context, id string) (*Account, error) {
	if a, ok := r.byID[id]; ok {
		return a, nil
	}
	return nil, httpx.ErrNotFound
}

func (r *stubAccountRepo) CreateAccount(ctx context.Context, id, email, passwordHash string) error {
	lower := strings.ToLower(email)
	if _, ok := r.byEmail[lower]; ok {
		return httpx.ErrDuplicate
	}
	account := &Account{ID: id, Email: lower, PasswordHash: passwordHash, IsActive: true}
	r.byEmail[lower] = account
	r.byID[id] = account
	return nil
}

type stubProfiles struct {
	profiles map[string]*identity.Profile
}

func newStubProfiles() *stubProfiles {
	return &stubProfiles{profiles: make(map[string]*identity.Profile)}
}

func (r *stubProfiles) Get(ctx context.Context, id string) (*identity.Profile, error) {
	if p, ok := r.profiles[id]; ok {
		return p, nil
	}
	return nil, httpx.ErrNotFound
}

func (r *stubProfiles) GetOrCreate(ctx context.Context, id, fullName string) (*identity.Profile, error) {
	if p, ok := r.profiles[id]; ok {
		return p, nil
	}
	p := &identity.Profile{ID: id, FullName: fullName, Role: identity.RoleCitizen}
	r.profiles[id] = p
	return p, nil
}

func (r *stubProfiles) Update(ctx context.Context, id string, upd identity.ProfileUpdate) error {
	return nil
}

func (r *stubProfiles) UpdateRole(ctx context.Context, id string, role identity.Role) error {
	return nil
}

func (r *stubProfiles) ListStaff(ctx context.Context) ([]identity.Profile, error) {
	return nil, nil
}

type mailSink struct {
	to      []string
	bodies  []string
	subject []string
}

func (m *mailSink) EnqueueMail(ctx context.Context, to, subject, body string) error {
	m.to = append(m.to, to)
	m.subject = append(m.subject, subject)
	m.bodies = append(m.bodies, body)
	return nil
}

func newTestService(t *testing.T) (*Service, *stubAccountRepo, *mailSink) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	codes := NewCodeStore(redisClient, 15*time.Minute)
	repo := newStubAccountRepo()
	mail := &mailSink{}
	svc := NewService(repo, codes, identity.NewResolver(newStubProfiles()), mail, "https://guichet.example")
	return svc, repo, mail
}

func TestAuthenticate(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.addAccount("user-1", "helene@example.com", "motdepasse", true)

	_, _, err := svc.Authenticate(context.Background(), "helene@example.com", "mauvais")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, _, err = svc.Authenticate(context.Background(), "inconnu@example.com", "motdepasse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	account, profile, err := svc.Authenticate(context.Background(), "helene@example.com", "motdepasse")
	require.NoError(t, err)
	require.Equal(t, "user-1", account.ID)
	require.Equal(t, "user-1", profile.ID)
	require.Equal(t, identity.RoleCitizen, profile.Role)
}

func TestAuthenticateInactiveAccount(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.addAccount("user-1", "helene@example.com", "motdepasse", false)

	_, _, err := svc.Authenticate(context.Background(), "helene@example.com", "motdepasse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestSignUp(t *testing.T) {
	svc, _, _ := newTestService(t)

	account, profile, err := svc.SignUp(context.Background(), "helene@example.com", "motdepasse", "Hélène Faye")
	require.NoError(t, err)
	require.Equal(t, "helene@example.com", account.Email)
	require.Equal(t, "Hélène Faye", profile.FullName)
	require.Equal(t, identity.RoleCitizen, profile.Role)

	_, _, err = svc.SignUp(context.Background(), "helene@example.com", "autremdp1", "Autre")
	require.ErrorIs(t, err, httpx.ErrDuplicate)
}

func TestSignUpFallsBackToEmailLocalPart(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, profile, err := svc.SignUp(context.Background(), "ousmane@example.com", "motdepasse", "")
	require.NoError(t, err)
	require.Equal(t, "ousmane", profile.FullName)
}

func TestMagicLinkUnknownEmailIsSilent(t *testing.T) {
	svc, _, mail := newTestService(t)

	err := svc.StartMagicLink(context.Background(), "inconnu@example.com", "")
	require.NoError(t, err)
	require.Empty(t, mail.to)
}

func TestMagicLinkCodeIsSingleUse(t *testing.T) {
	svc, repo, mail := newTestService(t)
	repo.addAccount("user-1", "helene@example.com", "motdepasse", true)

	require.NoError(t, svc.StartMagicLink(context.Background(), "helene@example.com", "/app/requests/new"))
	require.Len(t, mail.bodies, 1)
	require.Equal(t, "helene@example.com", mail.to[0])

	code := extractCode(t, mail.bodies[0])

	account, profile, err := svc.ExchangeCode(context.Background(), code)
	require.NoError(t, err)
	require.Equal(t, "user-1", account.ID)
	require.Equal(t, "user-1", profile.ID)

	_, _, err = svc.ExchangeCode(context.Background(), code)
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestMagicLinkEscapesRedirect(t *testing.T) {
	svc, repo, mail := newTestService(t)
	repo.addAccount("user-1", "helene@example.com", "motdepasse", true)

	target := "/app/requests/new?tab=docs&focus=1"
	require.NoError(t, svc.StartMagicLink(context.Background(), "helene@example.com", target))
	require.Len(t, mail.bodies, 1)

	// The redirect must survive the link as a single query parameter.
	link := extractLink(t, mail.bodies[0])
	parsed, err := url.Parse(link)
	require.NoError(t, err)
	require.Equal(t, target, parsed.Query().Get("redirect"))
	require.NotEmpty(t, parsed.Query().Get("code"))
}

func extractLink(t *testing.T, body string) string {
	t.Helper()
	idx := strings.Index(body, "http")
	require.GreaterOrEqual(t, idx, 0, "link missing from body: %s", body)
	rest := body[idx:]
	if end := strings.IndexAny(rest, "\n "); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

func extractCode(t *testing.T, body string) string {
	t.Helper()
	const marker = "code="
	idx := strings.Index(body, marker)
	require.GreaterOrEqual(t, idx, 0, "link missing from body: %s", body)
	rest := body[idx+len(marker):]
	if amp := strings.IndexAny(rest, "&\n "); amp >= 0 {
		rest = rest[:amp]
	}
	return rest
}
