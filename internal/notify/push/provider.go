package push

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Message is one push notification addressed to a user.
type Message struct {
	UserID snowflake.ID
	Title  string
	Body   string
	Data   map[string]string
}

type Provider interface {
	Send(ctx context.Context, msg Message) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, msg Message) error {
	return nil
}
