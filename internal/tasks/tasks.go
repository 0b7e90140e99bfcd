package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"instasend/mailer/internal/storage"
)

// TaskType defines the type of a background task.
const (
	TypeAttachmentPurge = "attachment:purge"
)

const purgeMaxRetry = 5

// --- Task Client (Enqueuing tasks) ---

func redisOpt(rdb *redis.Client) asynq.RedisClientOpt {
	opts := rdb.Options()
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
}

func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(redisOpt(rdb))
}

// AttachmentPurgePayload names the staged object to delete.
type AttachmentPurgePayload struct {
	Key string `json:"key"`
}

// NewAttachmentPurgeTask builds the task deleting a staged attachment.
func NewAttachmentPurgeTask(key string) (*asynq.Task, error) {
	payload, err := json.Marshal(AttachmentPurgePayload{Key: key})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attachment purge payload: %w", err)
	}
	return asynq.NewTask(TypeAttachmentPurge, payload, asynq.MaxRetry(purgeMaxRetry)), nil
}

// IAttachmentPurger schedules removal of staged attachments.
type IAttachmentPurger interface {
	PurgeAttachment(ctx context.Context, key string) error
}

// Enqueuer implements IAttachmentPurger on an asynq client.
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer creates an Enqueuer.
func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

// PurgeAttachment enqueues deletion of key.
func (e *Enqueuer) PurgeAttachment(ctx context.Context, key string) error {
	task, err := NewAttachmentPurgeTask(key)
	if err != nil {
		return err
	}
	info, err := e.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to enqueue attachment purge for %s: %w", key, err)
	}
	log.WithFields(log.Fields{"task_id": info.ID, "key": key}).Debug("attachment purge enqueued")
	return nil
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	storage storage.IAttachmentStorage
}

func NewTaskProcessor(storage storage.IAttachmentStorage) *TaskProcessor {
	return &TaskProcessor{storage: storage}
}

// SetupServer configures an Asynq server and the handler mux. The caller
// starts and shuts down the server.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(
		redisOpt(rdb),
		asynq.Config{
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.WithFields(log.Fields{
					"task_type": task.Type(),
					"payload":   string(task.Payload()),
				}).WithError(err).Error("task failed")
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeAttachmentPurge, processor.HandleAttachmentPurgeTask)
	log.Info("registered background task handlers")

	return srv, mux
}

// --- Task Handlers ---

// HandleAttachmentPurgeTask deletes a staged attachment from storage.
func (p *TaskProcessor) HandleAttachmentPurgeTask(ctx context.Context, t *asynq.Task) error {
	var payload AttachmentPurgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal attachment purge payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Key == "" {
		return fmt.Errorf("attachment purge payload has no key: %w", asynq.SkipRetry)
	}

	if err := p.storage.Delete(ctx, payload.Key); err != nil {
		log.WithError(err).WithField("key", payload.Key).Warn("attachment purge failed, will retry")
		return err
	}

	log.WithField("key", payload.Key).Info("attachment purged")
	return nil
}
