package email

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"instasend/mailer/internal/auth"
	"instasend/mailer/internal/config"
)

// FileEmailSender implements the Sender interface by appending each message,
// MIME encoded, to a file.
type FileEmailSender struct {
	filePath string
	cfg      *config.Config
}

// NewFileEmailSender creates a new FileEmailSender.
// It ensures the directory for the log file exists.
func NewFileEmailSender(filePath string, cfg *config.Config) (*FileEmailSender, error) {
	if strings.TrimSpace(filePath) == "" {
		return nil, fmt.Errorf("email log file path cannot be empty")
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for email log file '%s': %w", dir, err)
	}

	return &FileEmailSender{filePath: filePath, cfg: cfg}, nil
}

// Send writes the raw email message to the configured file.
func (s *FileEmailSender) Send(ctx context.Context, id auth.Identity, msg *Message) error {
	raw, err := BuildMessage(relayEnvelope(s.cfg, id), msg)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(s.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open email log file: %w", err)
	}
	defer file.Close()

	timestamp := time.Now().Format(time.RFC3339Nano)
	entry := fmt.Sprintf("--- Email Logged at %s (To: %s, Subject: %s) ---\n", timestamp, msg.To, msg.Subject)
	entry += string(raw)
	entry += "\n--- End Logged Email ---\n\n"

	if _, err := file.WriteString(entry); err != nil {
		return fmt.Errorf("failed to write email to log file: %w", err)
	}

	logrus.WithFields(logrus.Fields{"to": msg.To, "path": s.filePath}).Debug("email logged to file")
	return nil
}
