package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/guichet-civil/guichet/internal/identity"
	"github.com/guichet-civil/guichet/internal/shared"
)

// MailEnqueuer queues an outbound email. The jobs worker does the sending.
type MailEnqueuer interface {
	EnqueueMail(ctx context.Context, to, subject, body string) error
}

// Service implements the auth contract the portal consumes: password
// sign-in, sign-up, magic-link sign-in, code-for-session exchange, sign-out.
// It is also the identity.AccountCreator used by staff management.
type Service struct {
	repo     Repository
	codes    *CodeStore
	resolver *identity.Resolver
	mail     MailEnqueuer
	siteURL  string
}

// NewService constructs a new Service.
func NewService(repo Repository, codes *CodeStore, resolver *identity.Resolver, mail MailEnqueuer, siteURL string) *Service {
	return &Service{repo: repo, codes: codes, resolver: resolver, mail: mail, siteURL: strings.TrimRight(siteURL, "/")}
}

// Authenticate validates email/password credentials and resolves the
// profile, creating one on first login.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Account, *identity.Profile, error) {
	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, shared.ErrInvalidCredentials
	}
	if !account.IsActive {
		return nil, nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, nil, shared.ErrInvalidCredentials
	}
	profile, err := s.resolver.Resolve(ctx, account.ID, fallbackName(account.Email))
	if err != nil {
		return nil, nil, err
	}
	return account, profile, nil
}

// SignUp creates an account and its citizen profile.
func (s *Service) SignUp(ctx context.Context, email, password, fullName string) (*Account, *identity.Profile, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, err
	}
	id := uuid.NewString()
	if err := s.repo.CreateAccount(ctx, id, email, string(hash)); err != nil {
		return nil, nil, err
	}
	if fullName == "" {
		fullName = fallbackName(email)
	}
	profile, err := s.resolver.Resolve(ctx, id, fullName)
	if err != nil {
		return nil, nil, err
	}
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return account, profile, nil
}

// StartMagicLink issues a one-time sign-in code and mails the link. An
// unknown email is reported as success so addresses cannot be enumerated.
func (s *Service) StartMagicLink(ctx context.Context, email, redirectTo string) error {
	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil
	}
	code := uuid.NewString()
	if err := s.codes.Put(ctx, code, account.ID); err != nil {
		return err
	}
	link := fmt.Sprintf("%s/auth/callback?code=%s", s.siteURL, code)
	if redirectTo != "" {
		link += "&redirect=" + url.QueryEscape(redirectTo)
	}
	body := "Bonjour,\n\nConnectez-vous au guichet des actes d'état civil en ouvrant ce lien :\n" + link +
		"\n\nCe lien est à usage unique et expire prochainement."
	return s.mail.EnqueueMail(ctx, account.Email, "Votre lien de connexion", body)
}

// ExchangeCode exchanges a one-time code for the account and profile, the
// way the OAuth-style callback expects. The code is consumed on success.
func (s *Service) ExchangeCode(ctx context.Context, code string) (*Account, *identity.Profile, error) {
	accountID, err := s.codes.Consume(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	account, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	profile, err := s.resolver.Resolve(ctx, account.ID, fallbackName(account.Email))
	if err != nil {
		return nil, nil, err
	}
	return account, profile, nil
}

// CreateAccount provisions an account for staff management.
// Implements identity.AccountCreator.
func (s *Service) CreateAccount(ctx context.Context, email, password, fullName string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	if err := s.repo.CreateAccount(ctx, id, email, string(hash)); err != nil {
		return "", err
	}
	return id, nil
}

var _ identity.AccountCreator = (*Service)(nil)

func fallbackName(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return "Utilisateur"
}
