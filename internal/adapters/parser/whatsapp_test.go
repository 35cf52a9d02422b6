package parser

import (
	"strings"
	"testing"
	"whatsapp-chat-parser/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(l ...string) string {
	return strings.Join(l, "\n")
}

func TestWhatsAppParser_Parse(t *testing.T) {
	t.Run("NewWhatsAppParser создает корректный экземпляр", func(t *testing.T) {
		assert.NotNil(t, NewWhatsAppParser())
	})

	t.Run("пустой ввод дает пустой корректный результат", func(t *testing.T) {
		chat, err := NewWhatsAppParser().Parse([]byte(""))
		require.NoError(t, err)
		require.NotNil(t, chat)
		assert.NotNil(t, chat.Messages)
		assert.NotNil(t, chat.Participants)
		assert.Empty(t, chat.Messages)
		assert.Empty(t, chat.Participants)
	})

	t.Run("не-UTF-8 данные возвращают ошибку", func(t *testing.T) {
		chat, err := NewWhatsAppParser().Parse([]byte{0xff, 0xfe, 0xfd})
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Nil(t, chat)
	})
}

func TestParseText_Headers(t *testing.T) {
	t.Run("dash-нотация с точкой во времени", func(t *testing.T) {
		chat := ParseText("12/31/23, 21.05 - Ann: hello")
		require.Len(t, chat.Messages, 1)
		assert.Equal(t, domain.Message{Date: "12/31/23", Time: "21:05", Sender: "Ann", Text: "hello"}, chat.Messages[0])
	})

	t.Run("dash-нотация без запятой и с двоеточием", func(t *testing.T) {
		chat := ParseText("1/2/2024 9:05 - Bob: hi")
		require.Len(t, chat.Messages, 1)
		assert.Equal(t, "1/2/2024", chat.Messages[0].Date)
		assert.Equal(t, "9:05", chat.Messages[0].Time)
		assert.Equal(t, "Bob", chat.Messages[0].Sender)
	})

	t.Run("bracket-нотация с секундами", func(t *testing.T) {
		chat := ParseText("[03/04/24, 10:11:12] Carol Smith: good morning")
		require.Len(t, chat.Messages, 1)
		assert.Equal(t, "03/04/24", chat.Messages[0].Date)
		assert.Equal(t, "10:11:12", chat.Messages[0].Time)
		assert.Equal(t, "Carol Smith", chat.Messages[0].Sender)
		assert.Equal(t, "good morning", chat.Messages[0].Text)
	})

	t.Run("отправитель заканчивается на первом двоеточии", func(t *testing.T) {
		chat := ParseText("1/1/24, 10:00 - +62 812-3456: note: read this")
		require.Len(t, chat.Messages, 1)
		assert.Equal(t, "+62 812-3456", chat.Messages[0].Sender)
		assert.Equal(t, "note: read this", chat.Messages[0].Text)
	})

	t.Run("узкий неразрывный пробел между датой и временем", func(t *testing.T) {
		chat := ParseText("1/1/24,\u202f10:00 - Ann: hi")
		require.Len(t, chat.Messages, 1)
		assert.Equal(t, "10:00", chat.Messages[0].Time)
	})

	t.Run("CRLF и BOM не мешают разбору", func(t *testing.T) {
		chat := ParseText("\uFEFF1/1/24, 10:00 - Ann: hi\r\nsecond\r\n1/1/24, 10:01 - Ann menyematkan pesan\r\n")
		require.Len(t, chat.Messages, 1)
		assert.Equal(t, "hi\nsecond", chat.Messages[0].Text)
		assert.Equal(t, "1/1/24", chat.Messages[0].Pinned)
	})
}

func TestParseText_StateMachine(t *testing.T) {
	t.Run("многострочное сообщение склеивается", func(t *testing.T) {
		chat := ParseText(lines(
			"1/1/24, 10:00 - Ann: first <line>",
			"second",
			"third",
		))
		require.Len(t, chat.Messages, 1)
		assert.Equal(t, "first &lt;line&gt;\nsecond\nthird", chat.Messages[0].Text)
	})

	t.Run("порядок сообщений сохраняется", func(t *testing.T) {
		chat := ParseText(lines(
			"1/1/24, 10:05 - Bob: later time first",
			"1/1/24, 10:00 - Ann: earlier time second",
			"1/1/24, 10:03 - Cid: third",
		))
		require.Len(t, chat.Messages, 3)
		assert.Equal(t, "Bob", chat.Messages[0].Sender)
		assert.Equal(t, "Ann", chat.Messages[1].Sender)
		assert.Equal(t, "Cid", chat.Messages[2].Sender)
	})

	t.Run("закрепление отмечает предыдущее сообщение", func(t *testing.T) {
		chat := ParseText(lines(
			"1/1/24, 10:00 - Ann: pin me",
			"2/1/24, 11.30 - Bob menyematkan pesan",
		))
		require.Len(t, chat.Messages, 1)
		assert.Equal(t, "2/1/24", chat.Messages[0].Pinned)
		assert.Equal(t, "pin me", chat.Messages[0].Text)
	})

	t.Run("закрепление без предыдущего сообщения игнорируется", func(t *testing.T) {
		chat := ParseText(lines(
			"1/1/24, 10:00 - Ann menyematkan pesan",
			"1/1/24, 10:01 - Ann: hi",
		))
		require.Len(t, chat.Messages, 1)
		assert.False(t, chat.Messages[0].IsPinned())
	})

	t.Run("строка после закрепления не продолжает сообщение", func(t *testing.T) {
		chat := ParseText(lines(
			"1/1/24, 10:00 - Ann: hi",
			"1/1/24, 10:01 - Ann menyematkan pesan",
			"orphan line",
		))
		require.Len(t, chat.Messages, 1)
		assert.Equal(t, "hi", chat.Messages[0].Text)
	})

	t.Run("строки до первого заголовка отбрасываются", func(t *testing.T) {
		chat := ParseText(lines(
			"Pesan dan panggilan terenkripsi secara end-to-end.",
			"",
			"1/1/24, 10:00 - Ann: hi",
		))
		require.Len(t, chat.Messages, 1)
		assert.Equal(t, "hi", chat.Messages[0].Text)
	})

	t.Run("сообщение только из пробелов отбрасывается", func(t *testing.T) {
		chat := ParseText(lines(
			"1/1/24, 10:00 - Ann:    ",
			"   ",
			"1/1/24, 10:01 - Bob: yo",
		))
		require.Len(t, chat.Messages, 1)
		assert.Equal(t, "Bob", chat.Messages[0].Sender)
	})

	t.Run("участники уникальны и в порядке появления", func(t *testing.T) {
		chat := ParseText(lines(
			"1/1/24, 10:00 - Ann: hi",
			"1/1/24, 10:01 - Bob: yo",
			"1/1/24, 10:02 - Ann: sup",
		))
		assert.Equal(t, []string{"Ann", "Bob"}, chat.Participants)
		assert.Len(t, chat.Messages, 3)
	})
}

func TestParseText_Finalize(t *testing.T) {
	t.Run("вложение с подписью", func(t *testing.T) {
		chat := ParseText(lines(
			"1/1/24, 10:00 - Ann: IMG-20240101-WA0001.jpg (file terlampir)",
			"look at this",
		))
		require.Len(t, chat.Messages, 1)
		msg := chat.Messages[0]
		require.NotNil(t, msg.Media)
		assert.Equal(t, domain.MediaReference{Type: domain.MediaImage, Name: "IMG-20240101-WA0001.jpg"}, *msg.Media)
		assert.Equal(t, "look at this", msg.Text)
	})

	t.Run("вложение без подписи сохраняется с пустым текстом", func(t *testing.T) {
		chat := ParseText("1/1/24, 10:00 - Ann: PTT-20240101-WA0002.opus (FILE TERLAMPIR)")
		require.Len(t, chat.Messages, 1)
		require.NotNil(t, chat.Messages[0].Media)
		assert.Equal(t, domain.MediaAudio, chat.Messages[0].Media.Type)
		assert.Equal(t, "", chat.Messages[0].Text)
	})

	t.Run("неразрывный пробел перед отметкой вложения", func(t *testing.T) {
		for _, sep := range []string{"\u00a0", "\u202f", " \u00a0"} {
			chat := ParseText("1/1/24, 10:00 - Ann: IMG-1.jpg" + sep + "(file terlampir)")
			require.Len(t, chat.Messages, 1)
			msg := chat.Messages[0]
			require.NotNil(t, msg.Media, "separator %q", sep)
			assert.Equal(t, domain.MediaReference{Type: domain.MediaImage, Name: "IMG-1.jpg"}, *msg.Media)
			assert.Equal(t, "", msg.Text)
		}
	})

	t.Run("неразрывный пробел перед отметкой о правке", func(t *testing.T) {
		chat := ParseText("1/1/24, 10:00 - Ann: hello\u00a0This message was edited")
		require.Len(t, chat.Messages, 1)
		assert.True(t, chat.Messages[0].Edited)
		assert.Equal(t, "hello", chat.Messages[0].Text)
	})

	t.Run("вложение отменяет проверку отметки о правке", func(t *testing.T) {
		chat := ParseText(lines(
			"1/1/24, 10:00 - Ann: report.pdf (file terlampir)",
			"final version This message was edited",
		))
		require.Len(t, chat.Messages, 1)
		msg := chat.Messages[0]
		require.NotNil(t, msg.Media)
		assert.Equal(t, domain.MediaDocument, msg.Media.Type)
		assert.False(t, msg.Edited)
		assert.Equal(t, "final version This message was edited", msg.Text)
	})

	t.Run("отметки о правке снимаются", func(t *testing.T) {
		testCases := []struct {
			name  string
			input string
			want  string
		}{
			{"экранированная отметка", "1/1/24, 10:00 - Ann: hello <Pesan ini diedit>", "hello"},
			{"индонезийская фраза на новой строке", lines("1/1/24, 10:00 - Ann: hello", "Pesan ini telah diedit"), "hello"},
			{"английская фраза в другом регистре", "1/1/24, 10:00 - Ann: hello THIS MESSAGE WAS EDITED", "hello"},
			{"многострочный текст", lines("1/1/24, 10:00 - Ann: a", "b This message was edited"), "a\nb"},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				chat := ParseText(tc.input)
				require.Len(t, chat.Messages, 1)
				assert.True(t, chat.Messages[0].Edited)
				assert.Equal(t, tc.want, chat.Messages[0].Text)
			})
		}
	})

	t.Run("сообщение только с отметкой о правке отбрасывается", func(t *testing.T) {
		chat := ParseText("1/1/24, 10:00 - Ann: This message was edited")
		assert.Empty(t, chat.Messages)
		assert.Equal(t, []string{"Ann"}, chat.Participants)
	})

	t.Run("экранирование не выполняется повторно", func(t *testing.T) {
		chat := ParseText("1/1/24, 10:00 - Ann: &lt;b&gt; and <i>")
		require.Len(t, chat.Messages, 1)
		assert.Equal(t, "&lt;b&gt; and &lt;i&gt;", chat.Messages[0].Text)
		assert.NotContains(t, chat.Messages[0].Text, "&amp;")
	})
}

func TestParseText_EndToEnd(t *testing.T) {
	chat := ParseText(lines(
		"1/1/24, 09.00 - Ann: hello",
		"there",
		"1/1/24, 09.01 - Ann menyematkan pesan",
		"1/1/24, 09.02 - Ann: photo.jpg (file terlampir)",
		"caption text",
	))

	require.Len(t, chat.Messages, 2)

	first := chat.Messages[0]
	assert.Equal(t, "Ann", first.Sender)
	assert.Equal(t, "hello\nthere", first.Text)
	assert.Equal(t, "1/1/24", first.Pinned)
	assert.Nil(t, first.Media)

	second := chat.Messages[1]
	require.NotNil(t, second.Media)
	assert.Equal(t, domain.MediaReference{Type: domain.MediaImage, Name: "photo.jpg"}, *second.Media)
	assert.Equal(t, "caption text", second.Text)
	assert.False(t, second.IsPinned())

	assert.Equal(t, []string{"Ann"}, chat.Participants)
}

func TestClassifyMedia(t *testing.T) {
	testCases := map[string]domain.MediaType{
		"a.png":       domain.MediaImage,
		"a.JPG":       domain.MediaImage,
		"a.jpeg":      domain.MediaImage,
		"s.webp":      domain.MediaSticker,
		"v.mp4":       domain.MediaVideo,
		"v.3gp":       domain.MediaVideo,
		"v.mkv":       domain.MediaVideo,
		"a.opus":      domain.MediaAudio,
		"a.m4a":       domain.MediaAudio,
		"d.pdf":       domain.MediaDocument,
		"d.csv":       domain.MediaDocument,
		"d.pptx":      domain.MediaDocument,
		"x.apk":       domain.MediaFile,
		"noext":       domain.MediaFile,
		"arch.tar.gz": domain.MediaFile,
	}
	for name, want := range testCases {
		assert.Equal(t, want, ClassifyMedia(name), name)
	}
}
