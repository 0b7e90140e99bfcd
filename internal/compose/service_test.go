package compose_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"instasend/mailer/internal/apperr"
	"instasend/mailer/internal/auth"
	"instasend/mailer/internal/compose"
	"instasend/mailer/internal/config"
	"instasend/mailer/internal/email"
	"instasend/mailer/internal/models"
)

// --- Mocks ---

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, id auth.Identity, msg *email.Message) error {
	args := m.Called(ctx, id, msg)
	return args.Error(0)
}

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Put(ctx context.Context, userID, filename, contentType string, data []byte) (string, error) {
	args := m.Called(ctx, userID, filename, contentType, data)
	return args.String(0), args.Error(1)
}

func (m *MockStorage) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStorage) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type MockPurger struct {
	mock.Mock
}

func (m *MockPurger) PurgeAttachment(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type stubTemplates map[string]*models.Template

func (s stubTemplates) Get(_ context.Context, _ auth.Identity, templateID string) (*models.Template, error) {
	if t, ok := s[templateID]; ok {
		return t, nil
	}
	return nil, apperr.NotFound("Template not found")
}

// --- Helpers ---

type fixture struct {
	svc      *compose.Service
	store    compose.Store
	sender   *MockSender
	storage  *MockStorage
	purger   *MockPurger
	template *models.Template
	id       auth.Identity
}

func testConfig() *config.Config {
	return &config.Config{
		SendTimeout:            time.Second,
		AttachmentMaxSizeMB:    1,
		AttachmentAllowedTypes: []string{"application/pdf"},
	}
}

func newFixture(t *testing.T, store compose.Store) *fixture {
	t.Helper()
	tpl := roleTemplate()
	f := &fixture{
		store:    store,
		sender:   new(MockSender),
		storage:  new(MockStorage),
		purger:   new(MockPurger),
		template: tpl,
		id:       auth.Identity{UserID: primitive.NewObjectID().Hex(), Email: "ann@example.com"},
	}
	f.svc = compose.NewService(testConfig(), store, stubTemplates{tpl.ID.Hex(): tpl}, f.sender, f.storage, f.purger)
	return f
}

// ready brings the composition to a sendable state.
func (f *fixture) ready(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.SelectTemplate(ctx, f.id, f.template.ID.Hex())
	require.NoError(t, err)
	_, err = f.svc.SetPlaceholder(ctx, f.id, "name", "Ann")
	require.NoError(t, err)
	_, err = f.svc.SetPlaceholder(ctx, f.id, "role", "CTO")
	require.NoError(t, err)
	_, err = f.svc.SetRecipient(ctx, f.id, "bob@example.com")
	require.NoError(t, err)
}

// --- Tests ---

func TestService_SelectUnknownTemplate(t *testing.T) {
	f := newFixture(t, compose.NewMemoryStore())
	_, err := f.svc.SelectTemplate(context.Background(), f.id, primitive.NewObjectID().Hex())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.svc.Get(context.Background(), auth.Identity{})
	assert.True(t, apperr.Is(err, apperr.KindAuth))
}

func TestService_UpdateDraftAndPreview(t *testing.T) {
	f := newFixture(t, compose.NewMemoryStore())
	ctx := context.Background()
	f.ready(t)

	subject := "Welcome {name}"
	sess, err := f.svc.UpdateDraft(ctx, f.id, &subject, nil)
	require.NoError(t, err)
	assert.Equal(t, subject, sess.Subject)
	assert.Equal(t, f.template.Body, sess.Body)

	rendered, sess, err := f.svc.Preview(ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, "Welcome Ann", rendered.Subject)
	assert.Equal(t, "<p>Dear Ann, re CTO</p>", rendered.Body)
	assert.Equal(t, compose.StatePreviewing, sess.State)

	sess, err = f.svc.Back(ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, compose.StateTemplateSelected, sess.State)
}

func TestService_SendSuccessResetsAndPurges(t *testing.T) {
	f := newFixture(t, compose.NewMemoryStore())
	ctx := context.Background()
	f.ready(t)

	f.storage.On("Put", ctx, f.id.UserID, "cv.pdf", "application/pdf", []byte("%PDF")).Return("attachments/k", nil)
	_, err := f.svc.Attach(ctx, f.id, "cv.pdf", "application/pdf", []byte("%PDF"))
	require.NoError(t, err)

	f.storage.On("Get", mock.Anything, "attachments/k").Return([]byte("%PDF"), nil)
	f.sender.On("Send", mock.Anything, f.id, mock.MatchedBy(func(m *email.Message) bool {
		return m.To == "bob@example.com" &&
			m.Subject == "Hi Ann" &&
			m.HTML == "<p>Dear Ann, re CTO</p>" &&
			m.Attachment != nil && m.Attachment.Filename == "cv.pdf" && string(m.Attachment.Data) == "%PDF"
	})).Return(nil)
	f.purger.On("PurgeAttachment", mock.Anything, "attachments/k").Return(nil)

	sess, err := f.svc.Send(ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, compose.StateNoTemplate, sess.State)

	stored, err := f.svc.Get(ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, compose.StateNoTemplate, stored.State)
	assert.Empty(t, stored.Recipient)
	assert.Nil(t, stored.Attachment)
	assert.Empty(t, stored.Placeholders)

	held, err := f.store.SendHeld(ctx, f.id.UserID)
	require.NoError(t, err)
	assert.False(t, held, "send slot is released")

	f.sender.AssertExpectations(t)
	f.purger.AssertExpectations(t)
}

func TestService_SendFailurePreservesThenAcknowledge(t *testing.T) {
	f := newFixture(t, compose.NewMemoryStore())
	ctx := context.Background()
	f.ready(t)

	f.sender.On("Send", mock.Anything, f.id, mock.Anything).
		Return(apperr.Network("Failed to send email", errors.New("provider down"))).Once()

	sess, err := f.svc.Send(ctx, f.id)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNetwork))
	assert.Equal(t, compose.StateSendFailed, sess.State)

	stored, err := f.svc.Get(ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, compose.StateSendFailed, stored.State)
	assert.Equal(t, "bob@example.com", stored.Recipient)
	assert.Equal(t, map[string]string{"name": "Ann", "role": "CTO"}, values(stored))

	stored, err = f.svc.Acknowledge(ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, compose.StateTemplateSelected, stored.State)

	f.sender.On("Send", mock.Anything, f.id, mock.Anything).Return(nil).Once()
	_, err = f.svc.Send(ctx, f.id)
	require.NoError(t, err)
	f.purger.AssertNotCalled(t, "PurgeAttachment", mock.Anything, mock.Anything)
}

func TestService_SendValidationLeavesStateAlone(t *testing.T) {
	f := newFixture(t, compose.NewMemoryStore())
	ctx := context.Background()
	_, err := f.svc.SelectTemplate(ctx, f.id, f.template.ID.Hex())
	require.NoError(t, err)
	_, err = f.svc.SetPlaceholder(ctx, f.id, "name", "Ann")
	require.NoError(t, err)
	_, err = f.svc.SetRecipient(ctx, f.id, "bob@example.com")
	require.NoError(t, err)

	_, err = f.svc.Send(ctx, f.id)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	stored, err := f.svc.Get(ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, compose.StateTemplateSelected, stored.State)
	f.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_SecondSendRejectedWhileInFlight(t *testing.T) {
	f := newFixture(t, compose.NewMemoryStore())
	ctx := context.Background()
	f.ready(t)

	started := make(chan struct{})
	release := make(chan struct{})
	f.sender.On("Send", mock.Anything, f.id, mock.Anything).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return(nil).Once()

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = f.svc.Send(ctx, f.id)
	}()

	<-started
	_, err := f.svc.Send(ctx, f.id)
	assert.ErrorIs(t, err, compose.ErrSendInProgress)

	_, err = f.svc.SetRecipient(ctx, f.id, "eve@example.com")
	assert.ErrorIs(t, err, compose.ErrSendInProgress, "edits wait for the send")

	close(release)
	wg.Wait()
	require.NoError(t, firstErr)
	f.sender.AssertNumberOfCalls(t, "Send", 1)
}

func TestService_SendIgnoresCallerCancellation(t *testing.T) {
	f := newFixture(t, compose.NewMemoryStore())
	f.ready(t)

	ctx, cancel := context.WithCancel(context.Background())
	f.sender.On("Send", mock.Anything, f.id, mock.Anything).Run(func(args mock.Arguments) {
		cancel()
		sendCtx := args.Get(0).(context.Context)
		assert.NoError(t, sendCtx.Err(), "send context outlives the request")
		_, hasDeadline := sendCtx.Deadline()
		assert.True(t, hasDeadline)
	}).Return(nil)

	_, err := f.svc.Send(ctx, f.id)
	require.NoError(t, err)
}

func TestService_AttachValidation(t *testing.T) {
	f := newFixture(t, compose.NewMemoryStore())
	ctx := context.Background()

	_, err := f.svc.Attach(ctx, f.id, "a.exe", "application/x-msdownload", []byte("MZ"))
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.Attach(ctx, f.id, "big.pdf", "application/pdf", make([]byte, 2*1024*1024))
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.Attach(ctx, f.id, "empty.pdf", "application/pdf", nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	f.storage.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_ReplaceAndRemoveAttachmentPurges(t *testing.T) {
	f := newFixture(t, compose.NewMemoryStore())
	ctx := context.Background()

	f.storage.On("Put", ctx, f.id.UserID, "a.pdf", "application/pdf", mock.Anything).Return("k1", nil)
	f.storage.On("Put", ctx, f.id.UserID, "b.pdf", "application/pdf", mock.Anything).Return("k2", nil)
	f.purger.On("PurgeAttachment", ctx, "k1").Return(nil)
	f.purger.On("PurgeAttachment", ctx, "k2").Return(errors.New("queue down"))

	_, err := f.svc.Attach(ctx, f.id, "a.pdf", "application/pdf", []byte("a"))
	require.NoError(t, err)
	sess, err := f.svc.Attach(ctx, f.id, "b.pdf", "application/pdf", []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, "k2", sess.Attachment.Key)

	sess, err = f.svc.RemoveAttachment(ctx, f.id)
	require.NoError(t, err, "purge failures are not surfaced")
	assert.Nil(t, sess.Attachment)

	f.purger.AssertExpectations(t)
}

func TestService_PromoteAndDiscard(t *testing.T) {
	f := newFixture(t, compose.NewMemoryStore())
	ctx := context.Background()
	f.ready(t)

	saved := *f.template
	saved.Subject = "Updated {name}"
	applied, err := f.svc.Promote(ctx, f.id, &saved)
	require.NoError(t, err)
	assert.True(t, applied)

	stored, err := f.svc.Get(ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, "Updated {name}", stored.Subject)
	assert.Equal(t, "Ann", values(stored)["name"])

	unrelated := roleTemplate()
	applied, err = f.svc.Promote(ctx, f.id, unrelated)
	require.NoError(t, err)
	assert.False(t, applied)

	require.NoError(t, f.svc.Discard(ctx, f.id))
	stored, err = f.svc.Get(ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, compose.StateNoTemplate, stored.State)
}

func TestService_RecoversStaleSendingState(t *testing.T) {
	store := compose.NewMemoryStore()
	f := newFixture(t, store)
	ctx := context.Background()
	f.ready(t)

	sess, err := store.Load(ctx, f.id.UserID)
	require.NoError(t, err)
	sess.State = compose.StateSending
	require.NoError(t, store.Save(ctx, f.id.UserID, sess))

	stored, err := f.svc.Get(ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, compose.StateSendFailed, stored.State, "no send holds the slot")
}

func TestService_SendRecoversStaleSendingState(t *testing.T) {
	store := compose.NewMemoryStore()
	f := newFixture(t, store)
	ctx := context.Background()
	f.ready(t)

	sess, err := store.Load(ctx, f.id.UserID)
	require.NoError(t, err)
	sess.State = compose.StateSending
	require.NoError(t, store.Save(ctx, f.id.UserID, sess))

	f.sender.On("Send", mock.Anything, f.id, mock.Anything).Return(nil).Once()

	sent, err := f.svc.Send(ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, compose.StateNoTemplate, sent.State)
	f.sender.AssertNumberOfCalls(t, "Send", 1)

	held, err := store.SendHeld(ctx, f.id.UserID)
	require.NoError(t, err)
	assert.False(t, held)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	store := compose.NewRedisStore(rdb, time.Hour)
	ctx := context.Background()

	sess, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, compose.StateNoTemplate, sess.State)

	require.NoError(t, sess.Select(roleTemplate()))
	require.NoError(t, sess.SetValue("name", "Ann"))
	require.NoError(t, store.Save(ctx, "u1", sess))
	assert.True(t, mr.Exists("compose:u1"))
	assert.Equal(t, time.Hour, mr.TTL("compose:u1"))

	loaded, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, compose.StateTemplateSelected, loaded.State)
	assert.Equal(t, "Ann", values(loaded)["name"])
	assert.Equal(t, sess.Template.ID, loaded.Template.ID)

	ok, err := store.AcquireSend(ctx, "u1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.AcquireSend(ctx, "u1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, mr.Exists("compose:u1:sending"))
	require.NoError(t, store.ReleaseSend(ctx, "u1"))
	held, err := store.SendHeld(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, held)

	require.NoError(t, store.Delete(ctx, "u1"))
	assert.False(t, mr.Exists("compose:u1"))

	f := newFixture(t, store)
	f.ready(t)
	f.sender.On("Send", mock.Anything, f.id, mock.Anything).Return(nil)
	_, err = f.svc.Send(ctx, f.id)
	require.NoError(t, err)
}
