package notifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxInflight bounds the commands handled at once. Commands for one account
// still run one at a time behind that account's lock.
const maxInflight = 8

// Message is one operator command received from chat.
type Message struct {
	ChatID string
	UserID int64
	Text   string
}

// CommandHandler handles a command and returns the reply ("" for none).
type CommandHandler func(ctx context.Context, msg Message) string

type telegramUpdate struct {
	UpdateID int `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From struct {
			ID int64 `json:"id"`
		} `json:"from"`
	} `json:"message"`
}

// StartPolling long-polls getUpdates and hands each text message to handler on
// its own goroutine, so a slow command does not hold up the others. Replies go
// back to the chat the command came from. Blocks until ctx ends and the
// running handlers return.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) error {
	offset := 0
	client := &http.Client{Timeout: 35 * time.Second, Transport: t.Client.Transport}

	var g errgroup.Group
	g.SetLimit(maxInflight)
	defer func() { _ = g.Wait() }()

	for {
		select {
		case <-ctx.Done():
			t.Log.Info("telegram polling stopped")
			return nil
		default:
		}

		updates, err := t.getUpdates(ctx, client, offset)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			t.Log.Warn("polling request failed", zap.Error(err))
			sleep(ctx, 5*time.Second)
			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1
			if update.Message == nil || strings.TrimSpace(update.Message.Text) == "" {
				continue
			}
			msg := Message{
				ChatID: strconv.FormatInt(update.Message.Chat.ID, 10),
				UserID: update.Message.From.ID,
				Text:   strings.TrimSpace(update.Message.Text),
			}
			t.Log.Info("received command", zap.String("chat", msg.ChatID), zap.String("text", msg.Text))
			g.Go(func() error {
				t.reply(ctx, msg, handler(ctx, msg))
				return nil
			})
		}
	}
}

// reply sends the handler output even when polling has stopped meanwhile.
func (t *TelegramNotifier) reply(ctx context.Context, msg Message, text string) {
	if text == "" {
		return
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := t.SendTo(sendCtx, msg.ChatID, text); err != nil {
		t.Log.Error("send reply", zap.String("chat", msg.ChatID), zap.Error(err))
	}
}

func (t *TelegramNotifier) getUpdates(ctx context.Context, client *http.Client, offset int) ([]telegramUpdate, error) {
	apiURL := fmt.Sprintf("%s/bot%s/getUpdates?offset=%d&timeout=30", t.APIBase, t.BotToken, offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read polling response: %w", err)
	}
	var result struct {
		OK     bool             `json:"ok"`
		Result []telegramUpdate `json:"result"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode polling response: %w", err)
	}
	if !result.OK {
		return nil, fmt.Errorf("telegram getUpdates not ok: %s", string(body))
	}
	return result.Result, nil
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
