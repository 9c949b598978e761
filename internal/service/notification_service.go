package service

import (
	"lms_backend/internal/config"
	"lms_backend/internal/model"
	"lms_backend/internal/repository"
	"lms_backend/pkg/logger"

	mail "github.com/go-mail/mail/v2"
	"go.uber.org/zap"
)

// NotificationService 通知子系统的适配层。通知属于外部协作方：
// 这里只负责落库与邮件投递，任何失败只记日志，绝不向调用方传播——
// 审批决定不因邮件失败而回滚。
type NotificationService struct {
	Repo     *repository.NotificationRepository
	UserRepo *repository.UserRepository
	mailCfg  config.MailConfig
}

func NewNotificationService(repo *repository.NotificationRepository, userRepo *repository.UserRepository, cfg *config.Config) *NotificationService {
	return &NotificationService{
		Repo:     repo,
		UserRepo: userRepo,
		mailCfg:  cfg.Mail,
	}
}

type NotifyPayload struct {
	Type     string
	Title    string
	Message  string
	Priority string
}

// Notify 站内通知，fire-and-forget
func (s *NotificationService) Notify(userID uint, p NotifyPayload) {
	if p.Priority == "" {
		p.Priority = "normal"
	}
	n := &model.Notification{
		UserID:   userID,
		Type:     p.Type,
		Title:    p.Title,
		Message:  p.Message,
		Priority: p.Priority,
	}
	if err := s.Repo.Create(n); err != nil {
		logger.Log.Error("failed to persist notification",
			zap.Uint("userId", userID),
			zap.String("type", p.Type),
			zap.Error(err))
	}
}

// SendEmail SMTP 发送，异步执行，失败仅记日志
func (s *NotificationService) SendEmail(to, subject, body string) {
	if !s.mailCfg.Enabled {
		return
	}

	go func() {
		m := mail.NewMessage()
		m.SetHeader("From", s.mailCfg.From)
		m.SetHeader("To", to)
		m.SetHeader("Subject", subject)
		m.SetBody("text/html", body)

		d := mail.NewDialer(s.mailCfg.Host, s.mailCfg.Port, s.mailCfg.Username, s.mailCfg.Password)
		if err := d.DialAndSend(m); err != nil {
			logger.Log.Error("failed to send email",
				zap.String("to", to),
				zap.String("subject", subject),
				zap.Error(err))
		}
	}()
}

// NotifyUser 站内通知 + 邮件（若用户可查到邮箱）
func (s *NotificationService) NotifyUser(userID uint, p NotifyPayload) {
	s.Notify(userID, p)

	user, err := s.UserRepo.FindByID(userID)
	if err != nil {
		logger.Log.Warn("notification email skipped, user not found",
			zap.Uint("userId", userID), zap.Error(err))
		return
	}
	s.SendEmail(user.Email, p.Title, p.Message)
}
