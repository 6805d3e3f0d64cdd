package notify

import "go.uber.org/zap"

// Notifier delivers transient user-facing feedback for a mutating action:
// progress when it starts, then success or error. Fire and forget; ticket
// logic never consumes a return value from it.
type Notifier interface {
	Progress(label string)
	Success(label string)
	Error(label string)
}

// LogNotifier writes notifications to the service log. Used on request
// paths that have no live channel back to the viewer.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier builds a log-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Progress(label string) {
	n.logger.Debug("notify progress", zap.String("label", label))
}

func (n *LogNotifier) Success(label string) {
	n.logger.Debug("notify success", zap.String("label", label))
}

func (n *LogNotifier) Error(label string) {
	n.logger.Warn("notify error", zap.String("label", label))
}
