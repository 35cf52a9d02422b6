package log

import (
	"fmt"
	"log/slog"
	"strings"
)

// TGBotAPIAdapter направляет журнал go-telegram-bot-api/v5 в slog.
// В сообщениях библиотеки встречаются URL с токеном бота, поэтому
// логгер должен быть создан через New или обернут MaskingHandler.
type TGBotAPIAdapter struct {
	Logger *slog.Logger
}

// Println реализует метод интерфейса tgbotapi.BotLogger.
func (a *TGBotAPIAdapter) Println(v ...interface{}) {
	a.log(strings.TrimSpace(fmt.Sprintln(v...)))
}

// Printf реализует метод интерфейса tgbotapi.BotLogger.
func (a *TGBotAPIAdapter) Printf(format string, v ...interface{}) {
	a.log(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Библиотека пишет в журнал в основном ошибки long polling; остальное идет в debug.
func (a *TGBotAPIAdapter) log(msg string) {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "error") || strings.Contains(lower, "failed") {
		a.Logger.Warn(msg, slog.String("source", "tgbotapi"))
		return
	}
	a.Logger.Debug(msg, slog.String("source", "tgbotapi"))
}
