package conversation

import "go.uber.org/zap"

// NoticeKind classifies a user-facing notification.
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeFailure NoticeKind = "failure"
)

// Notice is one notification produced by a user-initiated action. Passive
// stream-driven updates never produce notices.
type Notice struct {
	Kind NoticeKind `json:"kind"`
	Text string     `json:"text"`
}

// Notifier is the sink for user-facing notifications. Exactly one success
// or one failure notice is reported per user-initiated action.
type Notifier interface {
	Notify(notice Notice)
}

// zapNotifier is the default sink; deployments that push toasts to a client
// substitute their own.
type zapNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns a Notifier that writes notices to the log.
func NewLogNotifier(logger *zap.Logger) Notifier {
	return &zapNotifier{logger: logger}
}

func (n *zapNotifier) Notify(notice Notice) {
	if notice.Kind == NoticeFailure {
		n.logger.Warn("notification", zap.String("kind", string(notice.Kind)), zap.String("text", notice.Text))
		return
	}
	n.logger.Info("notification", zap.String("kind", string(notice.Kind)), zap.String("text", notice.Text))
}
