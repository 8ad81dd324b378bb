package broadcast

import (
	"context"
	"errors"
	"fmt"

	"github.com/line/line-bot-sdk-go/v7/linebot"
)

// LineClient adapts the LINE Messaging API client to LineSender. All pushes
// go to the single configured response group.
type LineClient struct {
	bot     *linebot.Client
	groupID string
}

func NewLineClient(channelSecret, channelToken, groupID string) (*LineClient, error) {
	if channelSecret == "" || channelToken == "" {
		return nil, errors.New("broadcast: line channel secret and token are required")
	}
	if groupID == "" {
		return nil, errors.New("broadcast: line group id is required")
	}
	bot, err := linebot.New(channelSecret, channelToken)
	if err != nil {
		return nil, fmt.Errorf("broadcast: line client: %w", err)
	}
	return &LineClient{bot: bot, groupID: groupID}, nil
}

func (c *LineClient) Push(ctx context.Context, text string) error {
	_, err := c.bot.PushMessage(c.groupID, linebot.NewTextMessage(text)).WithContext(ctx).Do()
	if err != nil {
		return fmt.Errorf("broadcast: line push: %w", err)
	}
	return nil
}

// Bot exposes the underlying client for webhook signature parsing.
func (c *LineClient) Bot() *linebot.Client {
	return c.bot
}
