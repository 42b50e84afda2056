package chat

import (
	"io"
	"log/slog"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// logDisconnect - ordinary endings are logged at info, failures at warn (decode) or error level.
func logDisconnect(l *slog.Logger, err error, args ...any) {
	reason := classify(err)
	args = append(args, slog.String("reason", reason))
	switch {
	case expected(err):
		l.Info("client disconnected", args...)
	case reason == reasonDecode:
		l.Warn("client disconnected", append(args, slog.Any("err", err))...)
	default:
		l.Error("client disconnected", append(args, slog.Any("err", err))...)
	}
}
