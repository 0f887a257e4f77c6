package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/amirbrooks/taskbot/internal/domain"
	"github.com/amirbrooks/taskbot/internal/service"
)

const telegramMaxChars = 3800

const helpText = "👋 Привет! Я помогу управлять твоими задачами.\n\n" +
	"📝 Просто напиши задачу:\n" +
	"\"Созвониться с Иваном завтра в 15:00 #работа\"\n" +
	"\"Купить молоко сегодня #дом\"\n\n" +
	"Команды:\n" +
	"/list — все задачи\n" +
	"/today — задачи на сегодня\n" +
	"/projects — мои проекты"

const (
	textNoTasks      = "У тебя пока нет активных задач! 🎉"
	textNoTasksToday = "На сегодня задач нет! 🎉"
	textNoProjects   = "У тебя пока нет проектов. Создай задачу с тегом #проект"
	textEmptyTask    = "Напиши текст задачи, например: \"Купить молоко сегодня #дом\""
	textSaveFailed   = "⚠️ Не получилось сохранить задачу, попробуй ещё раз."
	textLoadFailed   = "⚠️ Не получилось загрузить задачи, попробуй ещё раз."
	textBusy         = "⏳ Я сейчас занят, повтори через минуту."
	textActionFailed = "⚠️ Не получилось, попробуй ещё раз"
	textTaskGone     = "Задача не найдена"
)

func trimTelegramOutput(s string) string {
	s = strings.TrimRight(s, "\n")
	runes := []rune(s)
	if len(runes) <= telegramMaxChars {
		return s
	}
	suffix := "\n… (ещё не поместилось)"
	limit := telegramMaxChars - len([]rune(suffix))
	return string(runes[:limit]) + suffix
}

func cleanTaskTitle(title string) string {
	title = strings.ReplaceAll(title, "\n", " ")
	title = strings.ReplaceAll(title, "\r", " ")
	title = strings.TrimSpace(title)
	if title == "" {
		return "(без названия)"
	}
	return title
}

func statusEmoji(s domain.TaskStatus) string {
	switch s {
	case domain.StatusInProgress:
		return "⏳"
	case domain.StatusDone:
		return "✅"
	case domain.StatusCancelled:
		return "✖️"
	default:
		return "⭕"
	}
}

func formatStamp(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("02.01.2006 15:04")
}

func formatCreated(c service.Created, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Задача создана: \"%s\"", cleanTaskTitle(c.Task.Title))
	if c.Project != nil {
		fmt.Fprintf(&b, "\n📁 Проект: %s", c.Project.Name)
	}
	if c.Task.DueAt != nil {
		fmt.Fprintf(&b, "\n📅 Срок: %s", formatStamp(*c.Task.DueAt, loc))
	}
	if c.Reminder != nil {
		fmt.Fprintf(&b, "\n⏰ Напоминание: %s", formatStamp(c.Reminder.ScheduledAt, loc))
	}
	return b.String()
}

func formatList(tasks []domain.Task, projectNames map[string]string) string {
	if len(tasks) == 0 {
		return textNoTasks
	}
	var b strings.Builder
	b.WriteString("📋 Твои задачи:\n\n")
	for i, t := range tasks {
		fmt.Fprintf(&b, "%d. %s %s", i+1, statusEmoji(t.Status), cleanTaskTitle(t.Title))
		if name := projectNames[t.ProjectID]; name != "" {
			fmt.Fprintf(&b, " [%s]", name)
		}
		b.WriteString("\n")
	}
	return trimTelegramOutput(b.String())
}

func formatToday(tasks []domain.Task, loc *time.Location) string {
	if len(tasks) == 0 {
		return textNoTasksToday
	}
	var b strings.Builder
	b.WriteString("📅 Задачи на сегодня:\n\n")
	for i, t := range tasks {
		fmt.Fprintf(&b, "%d. %s", i+1, cleanTaskTitle(t.Title))
		if t.DueAt != nil {
			fmt.Fprintf(&b, " (%s)", t.DueAt.In(loc).Format("15:04"))
		}
		b.WriteString("\n")
	}
	return trimTelegramOutput(b.String())
}

func formatProjects(projects []domain.ProjectSummary) string {
	if len(projects) == 0 {
		return textNoProjects
	}
	var b strings.Builder
	b.WriteString("📁 Твои проекты:\n\n")
	for _, p := range projects {
		fmt.Fprintf(&b, "• %s (%d)\n", p.Name, p.TaskCount)
	}
	return trimTelegramOutput(b.String())
}
