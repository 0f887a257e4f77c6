package bot

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/amirbrooks/taskbot/internal/reminder"
)

// Sender is the part of the Telegram client used to write to chats.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Notifier delivers reminders as Telegram messages with inline buttons.
// Addresses are chat ids.
type Notifier struct {
	api Sender
}

func NewNotifier(api Sender) *Notifier {
	return &Notifier{api: api}
}

func (n *Notifier) Deliver(ctx context.Context, address, text string, actions [][]reminder.Action) (reminder.MessageRef, error) {
	chatID, err := parseChatID(address)
	if err != nil {
		return reminder.MessageRef{}, err
	}
	if err := ctx.Err(); err != nil {
		return reminder.MessageRef{}, err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if len(actions) > 0 {
		msg.ReplyMarkup = keyboard(actions)
	}
	sent, err := n.api.Send(msg)
	if err != nil {
		return reminder.MessageRef{}, fmt.Errorf("send to chat %d: %w", chatID, err)
	}
	return reminder.MessageRef{Address: address, MessageID: sent.MessageID}, nil
}

// DisableActions removes the inline keyboard of a delivered message.
func (n *Notifier) DisableActions(ctx context.Context, ref reminder.MessageRef) error {
	if ref.MessageID == 0 {
		return nil
	}
	chatID, err := parseChatID(ref.Address)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, ref.MessageID, tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
	})
	if _, err := n.api.Request(edit); err != nil {
		return fmt.Errorf("clear keyboard of message %d: %w", ref.MessageID, err)
	}
	return nil
}

func keyboard(actions [][]reminder.Action) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(actions))
	for _, row := range actions {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, a := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(a.Label, reminder.EncodeAction(a.Kind, a.TaskID)))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func parseChatID(address string) (int64, error) {
	id, err := strconv.ParseInt(address, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat address %q: %w", address, err)
	}
	return id, nil
}
