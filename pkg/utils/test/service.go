package testutils

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/ggchat/pkg/chat"
	"github.com/papercomputeco/ggchat/pkg/sse"
)

// FakeService is an in-memory chat service for tests. It implements the
// service's HTTP surface with a fiber app served through httptest, and plays
// back scripted turn streams.
type FakeService struct {
	token  string
	app    *fiber.App
	server *httptest.Server

	mu       sync.Mutex
	nextID   int64
	chats    map[int64]*fakeChat
	order    []int64
	jobs     []chat.ModelDownloadJobOut
	jobsFail int
	scripts  map[int64][]script
	queries  []url.Values
	requests int
}

type fakeChat struct {
	out      chat.ChatOut
	messages []chat.MessageOut
}

type script struct {
	status int
	detail string
	events []sse.Event
	raw    []byte
}

// NewFakeService starts a fake service accepting token as the only valid
// bearer credential. Call Close when done.
func NewFakeService(token string) *FakeService {
	f := &FakeService{
		token:   token,
		nextID:  100,
		chats:   make(map[int64]*fakeChat),
		scripts: make(map[int64][]script),
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          detailErrorHandler,
	})
	app.Use(f.authorize)
	app.Get("/chats", f.handleListChats)
	app.Post("/chats", f.handleCreateChat)
	app.Post("/chats/remove", f.handleRemoveChat)
	app.Get("/chats/:id", f.handleGetChat)
	app.Post("/chats/:id/messages", f.handlePostMessage)
	app.Get("/chats/:id/stream", f.handleStream)
	app.Get("/models/jobs", f.handleListJobs)

	f.app = app
	f.server = httptest.NewServer(adaptor.FiberApp(app))
	return f
}

// URL returns the service root.
func (f *FakeService) URL() string {
	return f.server.URL
}

// Close shuts the server down.
func (f *FakeService) Close() {
	f.server.Close()
	_ = f.app.Shutdown()
}

// AddChat creates a chat and returns it.
func (f *FakeService) AddChat(modelID int64, title string) chat.Chat {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addChatLocked(modelID, title).out.ToChat()
}

// AddMessage appends a confirmed message to a chat.
func (f *FakeService) AddMessage(chatID int64, role chat.Role, content string, tokens *int) chat.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addMessageLocked(chatID, role, content, tokens).ToMessage()
}

// ScriptStream queues the events served by the next stream request for
// chatID. When the script ends with a "done" event, the concatenated tokens
// are stored as an assistant message, as the real service does.
func (f *FakeService) ScriptStream(chatID int64, events ...sse.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[chatID] = append(f.scripts[chatID], script{events: events})
}

// ScriptRawStream queues a verbatim response body for the next stream
// request for chatID.
func (f *FakeService) ScriptRawStream(chatID int64, raw []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[chatID] = append(f.scripts[chatID], script{raw: raw})
}

// ScriptStreamError makes the next stream request for chatID fail with
// status and a JSON detail body.
func (f *FakeService) ScriptStreamError(chatID int64, status int, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[chatID] = append(f.scripts[chatID], script{status: status, detail: detail})
}

// SetJobs replaces the job snapshot.
func (f *FakeService) SetJobs(jobs ...chat.DownloadJob) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.jobs = f.jobs[:0]
	for _, j := range jobs {
		f.jobs = append(f.jobs, chat.FromJob(j))
	}
}

// FailJobs makes the next n job listings fail with a 503.
func (f *FakeService) FailJobs(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobsFail = n
}

// StreamQueries returns the query of every stream request received.
func (f *FakeService) StreamQueries() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.queries...)
}

// Requests returns how many authorized requests were served.
func (f *FakeService) Requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func (f *FakeService) authorize(c *fiber.Ctx) error {
	if c.Get(fiber.HeaderAuthorization) != "Bearer "+f.token {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
	}

	f.mu.Lock()
	f.requests++
	f.mu.Unlock()
	return c.Next()
}

func (f *FakeService) handleListChats(c *fiber.Ctx) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]chat.ChatOut, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.chats[id].out)
	}
	return c.JSON(out)
}

func (f *FakeService) handleCreateChat(c *fiber.Ctx) error {
	var req struct {
		ModelID int64  `json:"model_id"`
		Title   string `json:"title"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "invalid body")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return c.Status(fiber.StatusCreated).JSON(f.addChatLocked(req.ModelID, req.Title).out)
}

func (f *FakeService) handleRemoveChat(c *fiber.Ctx) error {
	var req struct {
		ChatID int64 `json:"chat_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "invalid body")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.chats[req.ChatID]; !ok {
		return fiber.NewError(fiber.StatusNotFound, "chat not found")
	}
	delete(f.chats, req.ChatID)
	for i, id := range f.order {
		if id == req.ChatID {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (f *FakeService) handleGetChat(c *fiber.Ctx) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fc, err := f.lookupLocked(c)
	if err != nil {
		return err
	}
	return c.JSON(chat.ChatDetail{
		Chat:     fc.out,
		Messages: append([]chat.MessageOut{}, fc.messages...),
	})
}

func (f *FakeService) handlePostMessage(c *fiber.Ctx) error {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "content is required")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	fc, err := f.lookupLocked(c)
	if err != nil {
		return err
	}
	msg := f.addMessageLocked(fc.out.ID, chat.RoleUser, req.Content, nil)
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (f *FakeService) handleStream(c *fiber.Ctx) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fc, err := f.lookupLocked(c)
	if err != nil {
		return err
	}

	q, _ := url.ParseQuery(string(c.Request().URI().QueryString()))
	f.queries = append(f.queries, q)

	queue := f.scripts[fc.out.ID]
	if len(queue) == 0 {
		return fiber.NewError(fiber.StatusConflict, "no generation scheduled")
	}
	s := queue[0]
	f.scripts[fc.out.ID] = queue[1:]

	if s.status != 0 {
		return fiber.NewError(s.status, s.detail)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")

	if s.raw != nil {
		return c.Send(s.raw)
	}

	var body bytes.Buffer
	var content strings.Builder
	for _, ev := range s.events {
		body.Write(sse.Encode(ev))

		switch ev.Kind {
		case "token":
			content.WriteString(ev.Data)
		case "done":
			var tokens *int
			if n, err := strconv.Atoi(ev.Data); err == nil {
				tokens = &n
			}
			f.addMessageLocked(fc.out.ID, chat.RoleAssistant, content.String(), tokens)
		}
	}
	return c.Send(body.Bytes())
}

func (f *FakeService) handleListJobs(c *fiber.Ctx) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.jobsFail > 0 {
		f.jobsFail--
		return fiber.NewError(fiber.StatusServiceUnavailable, "jobs unavailable")
	}
	return c.JSON(append([]chat.ModelDownloadJobOut{}, f.jobs...))
}

func (f *FakeService) lookupLocked(c *fiber.Ctx) (*fakeChat, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusUnprocessableEntity, "invalid chat id")
	}
	fc, ok := f.chats[id]
	if !ok {
		return nil, fiber.NewError(fiber.StatusNotFound, "chat not found")
	}
	return fc, nil
}

// detailErrorHandler renders errors the way the service does: a JSON body
// with a "detail" field.
func detailErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		code = ferr.Code
	}
	return c.Status(code).JSON(chat.ErrorResponse{Detail: err.Error()})
}

func (f *FakeService) addChatLocked(modelID int64, title string) *fakeChat {
	f.nextID++
	fc := &fakeChat{out: chat.ChatOut{
		ID:        f.nextID,
		ModelID:   modelID,
		Title:     title,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}}
	f.chats[fc.out.ID] = fc
	f.order = append(f.order, fc.out.ID)
	return fc
}

func (f *FakeService) addMessageLocked(chatID int64, role chat.Role, content string, tokens *int) chat.MessageOut {
	f.nextID++
	msg := chat.MessageOut{
		ID:         f.nextID,
		ChatID:     chatID,
		Role:       string(role),
		Content:    content,
		TokensUsed: tokens,
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	}
	if fc, ok := f.chats[chatID]; ok {
		fc.messages = append(fc.messages, msg)
	}
	return msg
}
