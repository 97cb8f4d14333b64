package mailer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	from string
	to   []string
	msg  []byte
}

type fakeSender struct {
	sent   []captured
	failOn int
	calls  int
}

func (f *fakeSender) Send(_ context.Context, from string, to []string, msg []byte) error {
	f.calls++
	if f.calls == f.failOn {
		return errors.New("550 rejected")
	}
	f.sent = append(f.sent, captured{from: from, to: to, msg: msg})
	return nil
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("payload "+n), 0o644))
	}
}

// TestSortedArchives verifies archive filtering, pattern matching and numeric ordering.
func TestSortedArchives(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "archive_010.zip", "archive_002.zip", "archive_1.ZIP", "report.json", "other.tar", "archive_003.rar")

	files, err := SortedArchives(dir, "archive_*", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"archive_1.ZIP", "archive_002.zip", "archive_003.rar", "archive_010.zip"}, files)

	files, err = SortedArchives(dir, "archive_*.zip", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"archive_002.zip", "archive_010.zip"}, files)

	files, err = SortedArchives(dir, "", false)
	require.NoError(t, err)
	assert.Len(t, files, 5)
}

// TestSendArchives verifies one message per file with subject, body and attachment.
func TestSendArchives(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "archive_002.zip", "archive_001.zip")

	s := &fakeSender{}
	m := New("bot@example.com", s)
	sent, err := m.SendArchives(context.Background(), Options{
		Dir:           dir,
		Recipient:     "team@example.com",
		SubjectPrefix: "Архив ",
		FilePattern:   "archive_*.zip",
		SortByNumber:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"archive_001.zip", "archive_002.zip"}, sent)
	require.Len(t, s.sent, 2)
	assert.Equal(t, "bot@example.com", s.sent[0].from)
	assert.Equal(t, []string{"team@example.com"}, s.sent[0].to)

	mr, err := mail.CreateReader(bytes.NewReader(s.sent[0].msg))
	require.NoError(t, err)
	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Архив archive_001.zip", subject)

	var body, attachment, filename string
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(p.Body)
		require.NoError(t, err)
		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			body = string(data)
		case *mail.AttachmentHeader:
			filename, _ = h.Filename()
			attachment = string(data)
		}
	}
	assert.Equal(t, "Вложенный файл: archive_001.zip", body)
	assert.Equal(t, "archive_001.zip", filename)
	assert.Equal(t, "payload archive_001.zip", attachment)
}

// TestSendArchivesContinuesOnError verifies a failed file does not stop the rest.
func TestSendArchivesContinuesOnError(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "archive_001.zip", "archive_002.zip", "archive_003.zip")

	s := &fakeSender{failOn: 2}
	sent, err := New("bot@example.com", s).SendArchives(context.Background(), Options{
		Dir: dir, Recipient: "team@example.com", BodyText: "Архив: ", SortByNumber: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"archive_001.zip", "archive_003.zip"}, sent)
}

// TestSendArchivesMissingDir verifies a missing directory is an error.
func TestSendArchivesMissingDir(t *testing.T) {
	_, err := New("a@b", &fakeSender{}).SendArchives(context.Background(), Options{
		Dir: filepath.Join(t.TempDir(), "nope"), Recipient: "x@y",
	})
	assert.Error(t, err)
}
