// Package mailer 将归档文件逐个作为附件通过 SMTP 发送。
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/config"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/logger"
)

var archiveExts = []string{".zip", ".rar", ".7z", ".tar", ".gz", ".bz2"}

var firstNumber = regexp.MustCompile(`\d+`)

// Sender 负责投递一封已编码的邮件
type Sender interface {
	Send(ctx context.Context, from string, to []string, msg []byte) error
}

// Options 一次发送的参数
type Options struct {
	Dir           string
	Recipient     string
	SubjectPrefix string
	BodyText      string
	FilePattern   string
	SortByNumber  bool
}

// Mailer 归档邮件发送器
type Mailer struct {
	from   string
	sender Sender
	now    func() time.Time
}

// New 创建发送器
func New(from string, sender Sender) *Mailer {
	return &Mailer{from: from, sender: sender, now: time.Now}
}

// NewFromConfig 使用 STARTTLS SMTP 发送
func NewFromConfig(cfg config.MailConfig) *Mailer {
	return New(cfg.Username, &SMTPSender{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
	})
}

// OptionsFromConfig 由配置生成发送参数
func OptionsFromConfig(cfg config.MailConfig, dir string) Options {
	return Options{
		Dir:           dir,
		Recipient:     cfg.Recipient,
		SubjectPrefix: cfg.SubjectPrefix,
		BodyText:      cfg.BodyText,
		FilePattern:   cfg.FilePattern,
		SortByNumber:  cfg.SortByNumber == nil || *cfg.SortByNumber,
	}
}

// SendArchives 每个归档单独发送一封邮件；单个文件失败时记录日志并继续。返回已发送的文件名
func (m *Mailer) SendArchives(ctx context.Context, opts Options) ([]string, error) {
	if info, err := os.Stat(opts.Dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("directory %s does not exist", opts.Dir)
	}
	if opts.Recipient == "" {
		return nil, fmt.Errorf("mail recipient is not configured")
	}

	files, err := SortedArchives(opts.Dir, opts.FilePattern, opts.SortByNumber)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		logger.Log.Warn("目录中没有找到归档文件")
		return nil, nil
	}
	logger.Log.Infof("找到 %d 个待发送文件", len(files))

	var sent []string
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		msg, err := m.compose(opts, name)
		if err == nil {
			err = m.sender.Send(ctx, m.from, []string{opts.Recipient}, msg)
		}
		if err != nil {
			logger.Log.Errorf("发送文件 %s 失败: %v", name, err)
			continue
		}
		logger.Log.Infof("文件 %s 已发送", name)
		sent = append(sent, name)
	}
	return sent, nil
}

// compose 生成带附件的邮件
func (m *Mailer) compose(opts Options, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(opts.Dir, name))
	if err != nil {
		return nil, err
	}

	var h mail.Header
	h.SetDate(m.now())
	h.SetAddressList("From", []*mail.Address{{Address: m.from}})
	h.SetAddressList("To", []*mail.Address{{Address: opts.Recipient}})
	h.SetSubject(opts.SubjectPrefix + name)

	body := opts.BodyText
	if body == "" {
		body = "Вложенный файл: " + name
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, err
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return nil, err
	}
	var th mail.InlineHeader
	th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	pw, err := iw.CreatePart(th)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(pw, body); err != nil {
		return nil, err
	}
	pw.Close()
	iw.Close()

	var ah mail.AttachmentHeader
	ah.SetContentType("application/octet-stream", nil)
	ah.SetFilename(name)
	aw, err := mw.CreateAttachment(ah)
	if err != nil {
		return nil, err
	}
	if _, err := aw.Write(data); err != nil {
		return nil, err
	}
	aw.Close()

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SortedArchives 返回目录中匹配模式的归档文件，按文件名中的第一个数字或按名称排序
func SortedArchives(dir, pattern string, byNumber bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	if pattern == "" {
		pattern = "*"
	}

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !isArchive(e.Name()) {
			continue
		}
		ok, err := filepath.Match(pattern, e.Name())
		if err != nil {
			return nil, fmt.Errorf("invalid file pattern %q: %w", pattern, err)
		}
		if ok {
			files = append(files, e.Name())
		}
	}

	if byNumber {
		sort.SliceStable(files, func(i, j int) bool {
			return fileNumber(files[i]) < fileNumber(files[j])
		})
	} else {
		sort.Strings(files)
	}
	return files, nil
}

func isArchive(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range archiveExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// fileNumber 没有数字的文件排在最前
func fileNumber(name string) int {
	n, err := strconv.Atoi(firstNumber.FindString(name))
	if err != nil {
		return 0
	}
	return n
}

// SMTPSender 通过 STARTTLS 连接 SMTP 服务器发送
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Send implements Sender
func (s *SMTPSender) Send(ctx context.Context, from string, to []string, msg []byte) error {
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.Host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if s.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", s.Username, s.Password, s.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt to %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}
	return c.Quit()
}
