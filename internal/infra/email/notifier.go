package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/fiapx/fiapx-frame-studio/internal/domain/port"
	"go.uber.org/zap"
)

type SMTPNotifier struct {
	host   string
	port   int
	from   string
	logger *zap.Logger
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPNotifier(host string, port int, from string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, from: from, logger: logger, send: smtp.SendMail}
}

func (n *SMTPNotifier) NotifyFailure(_ context.Context, to string, notice port.FailureNotice) error {
	addr := fmt.Sprintf("%s:%d", n.host, n.port)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		n.from, to, subject(notice.JobID), body(notice),
	)

	log := n.logger.With(
		zap.String("to", to),
		zap.String("job_id", notice.JobID),
		zap.String("category", notice.Category),
	)
	if err := n.send(addr, nil, n.from, []string{to}, []byte(msg)); err != nil {
		log.Error("failed to send failure notification email", zap.Error(err))
		return fmt.Errorf("send email: %w", err)
	}

	log.Info("failure notification email sent")
	return nil
}

func subject(jobID string) string {
	return fmt.Sprintf("Frame Studio - Frame extraction failed [Job %s]", jobID)
}

func body(n port.FailureNotice) string {
	var b strings.Builder
	b.WriteString("Hello,\r\n\r\nWe could not extract frames from your video.\r\n\r\n")
	fmt.Fprintf(&b, "Job ID: %s\r\n", n.JobID)
	fmt.Fprintf(&b, "Video: %s\r\n", n.VideoKey)
	fmt.Fprintf(&b, "Error: %s\r\n", n.Error)
	if n.FrameCount > 0 {
		fmt.Fprintf(&b, "Frames captured before the failure: %d\r\n", n.FrameCount)
	}
	b.WriteString("\r\n")
	b.WriteString(hint(n.Category))
	b.WriteString("\r\n\r\n-- Frame Studio")
	return b.String()
}

func hint(category string) string {
	switch category {
	case "unsupported-format":
		return "The file is not a video we can read. Re-encode it as MP4 (H.264) and submit it again."
	case "decode":
		return "The video looks damaged. If it plays elsewhere, re-encode it and submit it again."
	case "network":
		return "The video could not be fetched. Check that the link is public and points to the file itself."
	}
	return "Please try again later. If the problem persists, contact support with the job ID."
}
