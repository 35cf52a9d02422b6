package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
	"whatsapp-chat-parser/internal/adapters/source"
	"whatsapp-chat-parser/internal/cache"
	"whatsapp-chat-parser/internal/domain"
	"whatsapp-chat-parser/internal/pkg/config"
	"whatsapp-chat-parser/internal/server/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) ProcessChat(ctx context.Context, upload usecase.Upload) (*domain.ChatResult, error) {
	args := m.Called(ctx, upload)
	if res := args.Get(0); res != nil {
		return res.(*domain.ChatResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProcessor) ProcessByHash(ctx context.Context, hash string) (*domain.ChatResult, error) {
	args := m.Called(ctx, hash)
	if res := args.Get(0); res != nil {
		return res.(*domain.ChatResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type bytesAccessor []byte

func (b bytesAccessor) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Server: config.Server{
			Host:            "localhost",
			Port:            8080,
			MaxUploadSizeMB: 1,
			CleanupInterval: time.Minute,
			UploadDir:       t.TempDir(),
		},
		Processing: config.Processing{TaskTTL: time.Minute, TaskTimeout: time.Second},
	}
}

func newTestServer(t *testing.T) (*Server, *mockProcessor) {
	t.Helper()
	proc := new(mockProcessor)
	srv, err := New(testConfig(t), proc, NewTaskStore(nil), cache.NewCacheStore(), nil)
	require.NoError(t, err)
	return srv, proc
}

func sampleResult(messages int) *domain.ChatResult {
	chat := &domain.ParsedChat{Participants: []string{"Ann", "Bob"}}
	for i := 0; i < messages; i++ {
		chat.Messages = append(chat.Messages, domain.Message{Date: "1/1/24", Time: "10:00", Sender: "Ann", Text: fmt.Sprintf("m%d", i)})
	}
	chat.Messages = append(chat.Messages, domain.Message{Sender: "Bob", Media: &domain.MediaReference{Type: domain.MediaImage, Name: "IMG 1.jpg"}})
	return &domain.ChatResult{
		Hash:   "hash-1",
		Source: "chat.txt",
		Chat:   chat,
		Media: domain.ResolvedMediaMap{
			"IMG 1.jpg": {Filename: "media/IMG 1.jpg", Accessor: bytesAccessor("jpeg-bytes")},
		},
		Stats:   domain.ChatStats{TotalMessages: messages + 1, ParticipantCount: 2},
		Gallery: domain.Gallery{Media: []domain.MediaReference{{Type: domain.MediaImage, Name: "IMG 1.jpg"}}},
	}
}

func completedTask(t *testing.T, srv *Server, result *domain.ChatResult) string {
	t.Helper()
	taskID := "task-" + strings.ReplaceAll(t.Name(), "/", "-")
	srv.taskStore.CreateTask(taskID, "", time.Minute)
	require.NoError(t, srv.taskStore.UpdateTaskResult(taskID, result))
	return taskID
}

func do(srv *Server, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	srv.HTTPServer.Handler.ServeHTTP(rr, req)
	return rr
}

func multipartBody(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var b bytes.Buffer
	writer := multipart.NewWriter(&b)
	fw, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())
	return &b, writer.FormDataContentType()
}

func waitStatus(t *testing.T, srv *Server, taskID string, want TaskStatus) Task {
	t.Helper()
	var task Task
	require.Eventually(t, func() bool {
		var err error
		task, err = srv.taskStore.GetTask(taskID)
		return err == nil && task.Status == want
	}, time.Second, 5*time.Millisecond)
	return task
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := do(srv, http.MethodGet, "/health", nil, "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestServer_Process(t *testing.T) {
	t.Run("successful upload", func(t *testing.T) {
		srv, proc := newTestServer(t)
		result := sampleResult(1)
		proc.On("ProcessChat", mock.Anything, mock.MatchedBy(func(u usecase.Upload) bool {
			return u.Name == "export.zip" && u.Transcript == "b.txt" && strings.HasSuffix(u.Path, ".zip")
		})).Return(result, nil).Once()

		body, ct := multipartBody(t, "export.zip", "PK\x03\x04", map[string]string{"transcript": "b.txt"})
		rr := do(srv, http.MethodPost, "/api/v1/process", body, ct)

		require.Equal(t, http.StatusAccepted, rr.Code)
		var resp map[string]string
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		require.NotEmpty(t, resp["task_id"])

		task := waitStatus(t, srv, resp["task_id"], TaskStatusCompleted)
		assert.Same(t, result, task.Result)
		assert.FileExists(t, task.UploadPath)
		proc.AssertExpectations(t)
	})

	t.Run("ambiguous transcript keeps candidates and removes upload", func(t *testing.T) {
		srv, proc := newTestServer(t)
		proc.On("ProcessChat", mock.Anything, mock.Anything).
			Return(nil, &source.AmbiguousTranscriptError{Candidates: []string{"a.txt", "b.txt"}}).Once()

		body, ct := multipartBody(t, "export.zip", "PK", nil)
		rr := do(srv, http.MethodPost, "/api/v1/process", body, ct)
		require.Equal(t, http.StatusAccepted, rr.Code)
		var resp map[string]string
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))

		task := waitStatus(t, srv, resp["task_id"], TaskStatusFailed)
		assert.NoFileExists(t, task.UploadPath)

		status := do(srv, http.MethodGet, "/api/v1/tasks/"+resp["task_id"], nil, "")
		var st TaskStatusResponse
		require.NoError(t, json.NewDecoder(status.Body).Decode(&st))
		assert.Equal(t, TaskStatusFailed, st.Status)
		assert.Equal(t, []string{"a.txt", "b.txt"}, st.Transcripts)
	})

	t.Run("missing file field", func(t *testing.T) {
		srv, _ := newTestServer(t)
		var b bytes.Buffer
		writer := multipart.NewWriter(&b)
		require.NoError(t, writer.WriteField("transcript", "x"))
		require.NoError(t, writer.Close())

		rr := do(srv, http.MethodPost, "/api/v1/process", &b, writer.FormDataContentType())
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("upload too large", func(t *testing.T) {
		srv, _ := newTestServer(t)
		body, ct := multipartBody(t, "chat.txt", strings.Repeat("x", 2<<20), nil)

		rr := do(srv, http.MethodPost, "/api/v1/process", body, ct)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	})
}

func TestServer_ProcessByHash(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		srv, proc := newTestServer(t)
		result := sampleResult(1)
		proc.On("ProcessByHash", mock.Anything, "hash-1").Return(result, nil).Once()

		rr := do(srv, http.MethodPost, "/api/v1/process-by-hash", strings.NewReader(`{"hash":"hash-1"}`), "application/json")
		require.Equal(t, http.StatusAccepted, rr.Code)
		var resp map[string]string
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))

		task := waitStatus(t, srv, resp["task_id"], TaskStatusCompleted)
		assert.Same(t, result, task.Result)
	})

	t.Run("not found", func(t *testing.T) {
		srv, proc := newTestServer(t)
		proc.On("ProcessByHash", mock.Anything, "nope").Return(nil, usecase.ErrNotFound).Once()

		rr := do(srv, http.MethodPost, "/api/v1/process-by-hash", strings.NewReader(`{"hash":"nope"}`), "application/json")
		var resp map[string]string
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))

		task := waitStatus(t, srv, resp["task_id"], TaskStatusFailed)
		assert.Equal(t, usecase.ErrNotFound.Error(), task.ErrorMessage)
	})

	t.Run("bad request", func(t *testing.T) {
		srv, _ := newTestServer(t)
		assert.Equal(t, http.StatusBadRequest, do(srv, http.MethodPost, "/api/v1/process-by-hash", strings.NewReader(`{`), "").Code)
		assert.Equal(t, http.StatusBadRequest, do(srv, http.MethodPost, "/api/v1/process-by-hash", strings.NewReader(`{}`), "").Code)
	})
}

func TestServer_TaskStatus(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.taskStore.CreateTask("pending-task", "", time.Minute)

	rr := do(srv, http.MethodGet, "/api/v1/tasks/pending-task", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var st TaskStatusResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&st))
	assert.Equal(t, "pending-task", st.TaskID)
	assert.Equal(t, TaskStatusPending, st.Status)

	assert.Equal(t, http.StatusNotFound, do(srv, http.MethodGet, "/api/v1/tasks/missing", nil, "").Code)
}

func TestServer_Result(t *testing.T) {
	srv, _ := newTestServer(t)
	taskID := completedTask(t, srv, sampleResult(4)) // 5 сообщений всего

	t.Run("pagination", func(t *testing.T) {
		rr := do(srv, http.MethodGet, "/api/v1/tasks/"+taskID+"/result?page=2&page_size=2", nil, "")
		require.Equal(t, http.StatusOK, rr.Code)

		var resp ResultResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, Pagination{CurrentPage: 2, PageSize: 2, TotalItems: 5, TotalPages: 3}, resp.Pagination)
		require.Len(t, resp.Data, 2)
		assert.Equal(t, "m2", resp.Data[0].Text)
		assert.Equal(t, []string{"Ann", "Bob"}, resp.Participants)
	})

	t.Run("defaults", func(t *testing.T) {
		rr := do(srv, http.MethodGet, "/api/v1/tasks/"+taskID+"/result", nil, "")
		var resp ResultResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, defaultPageSize, resp.Pagination.PageSize)
		assert.Len(t, resp.Data, 5)
	})

	t.Run("page beyond end", func(t *testing.T) {
		rr := do(srv, http.MethodGet, "/api/v1/tasks/"+taskID+"/result?page=10", nil, "")
		var resp ResultResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Empty(t, resp.Data)
	})

	t.Run("page size is capped", func(t *testing.T) {
		rr := do(srv, http.MethodGet, "/api/v1/tasks/"+taskID+"/result?page_size=100000", nil, "")
		var resp ResultResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, maxPageSize, resp.Pagination.PageSize)
	})

	for _, query := range []string{"page=0", "page=abc", "page_size=-1", "page_size=x"} {
		t.Run("invalid "+query, func(t *testing.T) {
			rr := do(srv, http.MethodGet, "/api/v1/tasks/"+taskID+"/result?"+query, nil, "")
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}

	t.Run("not completed", func(t *testing.T) {
		srv.taskStore.CreateTask("running", "", time.Minute)
		rr := do(srv, http.MethodGet, "/api/v1/tasks/running/result", nil, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestServer_ResultViews(t *testing.T) {
	srv, _ := newTestServer(t)
	taskID := completedTask(t, srv, sampleResult(1))
	base := "/api/v1/tasks/" + taskID

	t.Run("participants", func(t *testing.T) {
		rr := do(srv, http.MethodGet, base+"/participants", nil, "")
		assert.JSONEq(t, `{"participants":["Ann","Bob"]}`, rr.Body.String())
	})

	t.Run("stats", func(t *testing.T) {
		rr := do(srv, http.MethodGet, base+"/stats", nil, "")
		var stats domain.ChatStats
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&stats))
		assert.Equal(t, 2, stats.TotalMessages)
	})

	t.Run("gallery", func(t *testing.T) {
		rr := do(srv, http.MethodGet, base+"/gallery", nil, "")
		var resp map[string]any
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, []any{"IMG 1.jpg"}, resp["resolved"])
		assert.Equal(t, []any{}, resp["unresolved"])
		assert.Len(t, resp["media"], 1)
	})

	t.Run("media", func(t *testing.T) {
		rr := do(srv, http.MethodGet, base+"/media/IMG%201.jpg", nil, "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "image/jpeg", rr.Header().Get("Content-Type"))
		assert.Equal(t, "jpeg-bytes", rr.Body.String())
	})

	t.Run("unresolved media", func(t *testing.T) {
		rr := do(srv, http.MethodGet, base+"/media/missing.pdf", nil, "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("media without content", func(t *testing.T) {
		result := sampleResult(1)
		result.Media["IMG 1.jpg"] = domain.CandidateEntry{Filename: "media/IMG 1.jpg"}
		detached := completedTask(t, srv, result)

		rr := do(srv, http.MethodGet, "/api/v1/tasks/"+detached+"/media/IMG%201.jpg", nil, "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("xlsx export", func(t *testing.T) {
		rr := do(srv, http.MethodGet, base+"/export.xlsx", nil, "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, xlsxContentType, rr.Header().Get("Content-Type"))

		f, err := excelize.OpenReader(rr.Body)
		require.NoError(t, err)
		defer f.Close()
		rows, err := f.GetRows("Messages")
		require.NoError(t, err)
		assert.Len(t, rows, 3)
	})
}

func TestServer_TaskTimeout(t *testing.T) {
	srv, proc := newTestServer(t)
	srv.cfg.Processing.TaskTimeout = 20 * time.Millisecond
	proc.On("ProcessByHash", mock.Anything, "slow").Run(func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
	}).Return(nil, context.DeadlineExceeded).Once()

	rr := do(srv, http.MethodPost, "/api/v1/process-by-hash", strings.NewReader(`{"hash":"slow"}`), "")
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))

	task := waitStatus(t, srv, resp["task_id"], TaskStatusFailed)
	assert.True(t, strings.Contains(task.ErrorMessage, "deadline"))
}

func TestSaveUpload(t *testing.T) {
	srv, _ := newTestServer(t)

	p, err := srv.saveUpload("id", "../../etc/passwd", strings.NewReader("x"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(p, "chat_id.upload"))
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))

	p, err = srv.saveUpload("id2", "Export.ZIP", strings.NewReader("x"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(p, "chat_id2.zip"))

	srv.cfg.Server.UploadDir = "/nonexistent/dir"
	_, err = srv.saveUpload("id3", "a.txt", strings.NewReader("x"))
	assert.Error(t, err)
}
