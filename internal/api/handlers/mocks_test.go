package handlers_test

import (
	"context"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/oauth2"

	"instasend/mailer/internal/auth"
	"instasend/mailer/internal/compose"
	"instasend/mailer/internal/email"
	"instasend/mailer/internal/models"
	"instasend/mailer/internal/services"
)

// MockTemplateService implements services.ITemplateService
type MockTemplateService struct {
	mock.Mock
}

func (m *MockTemplateService) List(ctx context.Context, id auth.Identity) ([]models.Template, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Template), args.Error(1)
}

func (m *MockTemplateService) Get(ctx context.Context, id auth.Identity, templateID string) (*models.Template, error) {
	args := m.Called(ctx, id, templateID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Template), args.Error(1)
}

func (m *MockTemplateService) Create(ctx context.Context, id auth.Identity, in services.TemplateInput) (*models.Template, error) {
	args := m.Called(ctx, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Template), args.Error(1)
}

func (m *MockTemplateService) Update(ctx context.Context, id auth.Identity, templateID string, in services.TemplateInput) (*models.Template, error) {
	args := m.Called(ctx, id, templateID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Template), args.Error(1)
}

func (m *MockTemplateService) Delete(ctx context.Context, id auth.Identity, templateID string) error {
	return m.Called(ctx, id, templateID).Error(0)
}

// MockComposeService implements compose.IService
type MockComposeService struct {
	mock.Mock
}

func (m *MockComposeService) session(args mock.Arguments) (*compose.Session, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*compose.Session), args.Error(1)
}

func (m *MockComposeService) Get(ctx context.Context, id auth.Identity) (*compose.Session, error) {
	return m.session(m.Called(ctx, id))
}

func (m *MockComposeService) SelectTemplate(ctx context.Context, id auth.Identity, templateID string) (*compose.Session, error) {
	return m.session(m.Called(ctx, id, templateID))
}

func (m *MockComposeService) UpdateDraft(ctx context.Context, id auth.Identity, subject, body *string) (*compose.Session, error) {
	return m.session(m.Called(ctx, id, subject, body))
}

func (m *MockComposeService) SetPlaceholder(ctx context.Context, id auth.Identity, key, value string) (*compose.Session, error) {
	return m.session(m.Called(ctx, id, key, value))
}

func (m *MockComposeService) SetRecipient(ctx context.Context, id auth.Identity, recipient string) (*compose.Session, error) {
	return m.session(m.Called(ctx, id, recipient))
}

func (m *MockComposeService) Attach(ctx context.Context, id auth.Identity, filename, contentType string, data []byte) (*compose.Session, error) {
	return m.session(m.Called(ctx, id, filename, contentType, data))
}

func (m *MockComposeService) RemoveAttachment(ctx context.Context, id auth.Identity) (*compose.Session, error) {
	return m.session(m.Called(ctx, id))
}

func (m *MockComposeService) Preview(ctx context.Context, id auth.Identity) (compose.Rendered, *compose.Session, error) {
	args := m.Called(ctx, id)
	sess, _ := args.Get(1).(*compose.Session)
	return args.Get(0).(compose.Rendered), sess, args.Error(2)
}

func (m *MockComposeService) Back(ctx context.Context, id auth.Identity) (*compose.Session, error) {
	return m.session(m.Called(ctx, id))
}

func (m *MockComposeService) Send(ctx context.Context, id auth.Identity) (*compose.Session, error) {
	return m.session(m.Called(ctx, id))
}

func (m *MockComposeService) Acknowledge(ctx context.Context, id auth.Identity) (*compose.Session, error) {
	return m.session(m.Called(ctx, id))
}

func (m *MockComposeService) Promote(ctx context.Context, id auth.Identity, t *models.Template) (bool, error) {
	args := m.Called(ctx, id, t)
	return args.Bool(0), args.Error(1)
}

func (m *MockComposeService) Discard(ctx context.Context, id auth.Identity) error {
	return m.Called(ctx, id).Error(0)
}

// MockSender implements email.Sender
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, id auth.Identity, msg *email.Message) error {
	return m.Called(ctx, id, msg).Error(0)
}

// MockUserService implements services.IUserService
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) UpsertGoogleUser(ctx context.Context, g *auth.GoogleUser) (*models.User, error) {
	args := m.Called(ctx, g)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) FindByID(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

// MockGoogleOAuth implements auth.IGoogleOAuth
type MockGoogleOAuth struct {
	mock.Mock
}

func (m *MockGoogleOAuth) AuthCodeURL(state string) string {
	return m.Called(state).String(0)
}

func (m *MockGoogleOAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oauth2.Token), args.Error(1)
}

func (m *MockGoogleOAuth) FetchUser(ctx context.Context, tok *oauth2.Token) (*auth.GoogleUser, error) {
	args := m.Called(ctx, tok)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.GoogleUser), args.Error(1)
}

func (m *MockGoogleOAuth) TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return oauth2.StaticTokenSource(tok)
}

// MockTokenStore implements auth.ITokenStore
type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) SaveToken(ctx context.Context, userID string, tok *oauth2.Token) error {
	return m.Called(ctx, userID, tok).Error(0)
}

func (m *MockTokenStore) LoadToken(ctx context.Context, userID string) (*oauth2.Token, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oauth2.Token), args.Error(1)
}

func (m *MockTokenStore) SaveState(ctx context.Context, state string) error {
	return m.Called(ctx, state).Error(0)
}

func (m *MockTokenStore) ConsumeState(ctx context.Context, state string) (bool, error) {
	args := m.Called(ctx, state)
	return args.Bool(0), args.Error(1)
}

// MockMailbox implements handlers.IMockMailbox
type MockMailbox struct {
	mock.Mock
}

func (m *MockMailbox) LastEmail(ctx context.Context, recipient string) (*email.MockEmail, error) {
	args := m.Called(ctx, recipient)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*email.MockEmail), args.Error(1)
}
