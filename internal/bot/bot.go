package bot

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/amirbrooks/taskbot/internal/domain"
	"github.com/amirbrooks/taskbot/internal/reminder"
	"github.com/amirbrooks/taskbot/internal/service"
	"github.com/amirbrooks/taskbot/internal/store"
	"github.com/amirbrooks/taskbot/internal/workerpool"
)

const listLimit = 10

var (
	ErrClientNil    = errors.New("telegram client is nil")
	ErrTasksNil     = errors.New("task service is nil")
	ErrResponderNil = errors.New("responder is nil")
	ErrPoolNil      = errors.New("worker pool is nil")
)

// Client is the Telegram API surface the bot uses. *tgbotapi.BotAPI
// implements it.
type Client interface {
	Sender
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Tasks interface {
	RegisterUser(ctx context.Context, externalID, displayName, address string) (domain.User, error)
	Submit(ctx context.Context, ownerID, text string) (service.Created, error)
	Recent(ctx context.Context, ownerID string, limit int) ([]domain.Task, error)
	Today(ctx context.Context, ownerID string) ([]domain.Task, error)
	Projects(ctx context.Context, ownerID string) ([]domain.ProjectSummary, error)
	GetTask(ctx context.Context, id string) (domain.Task, error)
}

type Responder interface {
	Handle(ctx context.Context, ev reminder.ActionEvent) (reminder.Result, error)
}

type Options struct {
	// PollTimeout is the long-polling timeout in seconds.
	PollTimeout int
	Location    *time.Location
	Logger      *slog.Logger
}

// Bot routes Telegram updates: commands and free text go to the task
// service, button presses go to the reminder responder.
type Bot struct {
	api       Client
	tasks     Tasks
	responder Responder
	pool      workerpool.Submitter
	timeout   int
	loc       *time.Location
	logger    *slog.Logger
}

func New(api Client, tasks Tasks, responder Responder, pool workerpool.Submitter, opts Options) (*Bot, error) {
	switch {
	case api == nil:
		return nil, ErrClientNil
	case tasks == nil:
		return nil, ErrTasksNil
	case responder == nil:
		return nil, ErrResponderNil
	case pool == nil:
		return nil, ErrPoolNil
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 60
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Bot{
		api:       api,
		tasks:     tasks,
		responder: responder,
		pool:      pool,
		timeout:   opts.PollTimeout,
		loc:       opts.Location,
		logger:    opts.Logger.With("component", "bot"),
	}, nil
}

// Run long-polls for updates until ctx is cancelled. Each update is handled
// on the worker pool.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.timeout
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	b.logger.Info("polling for updates", "timeout", b.timeout)
	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			b.enqueue(upd)
		}
	}
}

func (b *Bot) enqueue(upd tgbotapi.Update) {
	err := b.pool.Submit(func(ctx context.Context) { b.HandleUpdate(ctx, upd) })
	if err == nil {
		return
	}
	b.logger.Warn("update dropped", "update_id", upd.UpdateID, "err", err)
	if !errors.Is(err, workerpool.ErrPoolFull) {
		return
	}
	switch {
	case upd.Message != nil && upd.Message.Chat != nil:
		b.reply(upd.Message.Chat.ID, textBusy)
	case upd.CallbackQuery != nil:
		b.answer(upd.CallbackQuery.ID, textBusy)
	}
}

// HandleUpdate processes one update synchronously.
func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.CallbackQuery != nil:
		b.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil && upd.Message.Chat != nil && upd.Message.From != nil:
		b.handleMessage(ctx, upd.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	chatID := msg.Chat.ID
	log := b.logger.With("chat_id", chatID, "message_id", msg.MessageID)

	user, err := b.tasks.RegisterUser(ctx, strconv.FormatInt(msg.From.ID, 10), displayName(msg.From), strconv.FormatInt(chatID, 10))
	if err != nil {
		log.Error("register user failed", "err", err)
		b.reply(chatID, textSaveFailed)
		return
	}

	if cmd, ok := command(text); ok {
		b.reply(chatID, b.runCommand(ctx, log, user, cmd))
		return
	}

	created, err := b.tasks.Submit(ctx, user.ID, text)
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		b.reply(chatID, textEmptyTask)
	case err != nil:
		log.Error("create task failed", "err", err)
		b.reply(chatID, textSaveFailed)
	default:
		b.reply(chatID, formatCreated(created, b.loc))
	}
}

func (b *Bot) runCommand(ctx context.Context, log *slog.Logger, user domain.User, cmd string) string {
	switch cmd {
	case "list":
		tasks, err := b.tasks.Recent(ctx, user.ID, listLimit)
		if err != nil {
			log.Error("list tasks failed", "err", err)
			return textLoadFailed
		}
		names, err := b.projectNames(ctx, user.ID)
		if err != nil {
			log.Error("list projects failed", "err", err)
			return textLoadFailed
		}
		return formatList(tasks, names)
	case "today":
		tasks, err := b.tasks.Today(ctx, user.ID)
		if err != nil {
			log.Error("list today failed", "err", err)
			return textLoadFailed
		}
		return formatToday(tasks, b.loc)
	case "projects":
		projects, err := b.tasks.Projects(ctx, user.ID)
		if err != nil {
			log.Error("list projects failed", "err", err)
			return textLoadFailed
		}
		return formatProjects(projects)
	default:
		return helpText
	}
}

func (b *Bot) projectNames(ctx context.Context, ownerID string) (map[string]string, error) {
	projects, err := b.tasks.Projects(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(projects))
	for _, p := range projects {
		names[p.ID] = p.Name
	}
	return names, nil
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	kind, taskID, ok := reminder.DecodeAction(cq.Data)
	if !ok {
		b.answer(cq.ID, "")
		return
	}

	if !b.ownsTask(ctx, cq, taskID) {
		return
	}

	ev := reminder.ActionEvent{Kind: kind, TaskID: taskID}
	if cq.Message != nil && cq.Message.Chat != nil {
		ev.Message = reminder.MessageRef{
			Address:   strconv.FormatInt(cq.Message.Chat.ID, 10),
			MessageID: cq.Message.MessageID,
		}
	}

	res, err := b.responder.Handle(ctx, ev)
	if err != nil {
		b.logger.Error("reminder action failed", "kind", kind, "task_id", taskID, "err", err)
		b.answer(cq.ID, textActionFailed)
		return
	}
	b.answer(cq.ID, callbackText(res.Outcome))
}

// ownsTask checks that the user pressing a button owns the task behind it.
// It answers the callback itself when the press is refused.
func (b *Bot) ownsTask(ctx context.Context, cq *tgbotapi.CallbackQuery, taskID string) bool {
	log := b.logger.With("task_id", taskID)
	if cq.From == nil {
		b.answer(cq.ID, "")
		return false
	}
	user, err := b.tasks.RegisterUser(ctx, strconv.FormatInt(cq.From.ID, 10), displayName(cq.From), "")
	if err != nil {
		log.Error("register user failed", "err", err)
		b.answer(cq.ID, textActionFailed)
		return false
	}
	task, err := b.tasks.GetTask(ctx, taskID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		b.answer(cq.ID, textTaskGone)
		return false
	case err != nil:
		log.Error("load task failed", "err", err)
		b.answer(cq.ID, textActionFailed)
		return false
	case task.OwnerID != user.ID:
		log.Warn("reminder action from another user", "user_id", user.ID)
		b.answer(cq.ID, textTaskGone)
		return false
	}
	return true
}

func callbackText(o reminder.Outcome) string {
	switch o {
	case reminder.OutcomeDone:
		return "✅ Задача выполнена!"
	case reminder.OutcomeInProgress:
		return "⏳ В процессе"
	case reminder.OutcomeSnoozed:
		return "⏰ Напомню через час"
	case reminder.OutcomeRejected:
		return "Задача уже закрыта"
	default:
		return ""
	}
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Warn("reply failed", "chat_id", chatID, "err", err)
	}
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.logger.Warn("callback answer failed", "callback_id", callbackID, "err", err)
	}
}

// command extracts the command name from "/name@bot args".
func command(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name := strings.Fields(text[1:])
	if len(name) == 0 {
		return "", true
	}
	cmd, _, _ := strings.Cut(name[0], "@")
	return strings.ToLower(cmd), true
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return name
}
