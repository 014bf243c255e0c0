package notifier

import "tradepulse/internal/logger"

// TextNotifier sends one plain or Markdown message.
type TextNotifier interface {
	SendText(text string) error
}

// Log writes messages to the process log. It is the fallback when no chat
// channel is configured.
type Log struct {
	Prefix string
}

func (l Log) SendText(text string) error {
	prefix := l.Prefix
	if prefix == "" {
		prefix = "[notify]"
	}
	logger.Infof("%s %s", prefix, text)
	return nil
}
