package logger

import "log/slog"

// Error returns an empty Attr for a nil error.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

func UserID(id string) slog.Attr {
	return slog.String("user_id", id)
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func Provider(name string) slog.Attr {
	return slog.String("provider", name)
}

func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

func EventID(id string) slog.Attr {
	return slog.String("event_id", id)
}
