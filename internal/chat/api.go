package chat

import (
	"context"

	"github.com/whisper-im/whisper/internal/models"
)

// API is the slice of the REST client the synchronization engine needs.
// *httpapi.Client satisfies it.
type API interface {
	Conversations(ctx context.Context) ([]models.Conversation, error)
	Messages(ctx context.Context, conversationID string) ([]models.Message, error)
	Send(ctx context.Context, conversationID, content string) (models.Message, error)
	AcknowledgeRead(ctx context.Context, messageID string) error
	AcknowledgeConversationRead(ctx context.Context, conversationID, userPhone string) error
	StartConversation(ctx context.Context, otherPhone string) (models.Conversation, error)
	SearchUsers(ctx context.Context, phone string) ([]models.User, error)
}
