package turn_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ggchat/pkg/chat"
	"github.com/papercomputeco/ggchat/pkg/client"
	"github.com/papercomputeco/ggchat/pkg/transcript"
	"github.com/papercomputeco/ggchat/pkg/turn"
)

// chunkedBody serves chunks one Read at a time, then err (io.EOF when nil).
type chunkedBody struct {
	mu     sync.Mutex
	chunks []string
	err    error
	closed bool
}

func (b *chunkedBody) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.chunks) == 0 {
		if b.err != nil {
			return 0, b.err
		}
		return 0, io.EOF
	}
	n := copy(p, b.chunks[0])
	b.chunks[0] = b.chunks[0][n:]
	if b.chunks[0] == "" {
		b.chunks = b.chunks[1:]
	}
	return n, nil
}

func (b *chunkedBody) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *chunkedBody) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// openerFunc adapts a function to turn.StreamOpener.
type openerFunc func(ctx context.Context, t chat.TurnContext) (io.ReadCloser, error)

func (f openerFunc) OpenStream(ctx context.Context, t chat.TurnContext) (io.ReadCloser, error) {
	return f(ctx, t)
}

func bodyOpener(body io.ReadCloser) openerFunc {
	return func(context.Context, chat.TurnContext) (io.ReadCloser, error) {
		return body, nil
	}
}

func newConsumer(opener turn.StreamOpener, timeout time.Duration) *turn.Consumer {
	c, err := turn.NewConsumer(turn.Config{Opener: opener, TurnTimeout: timeout})
	Expect(err).NotTo(HaveOccurred())
	return c
}

var _ = Describe("Consumer", func() {
	var (
		r   *transcript.Reconciler
		ep  transcript.Epoch
		tc  chat.TurnContext
		ctx context.Context
	)

	BeforeEach(func() {
		r = transcript.New(transcript.Config{})
		ep = r.Switch(1)
		_, err := r.BeginTurn(ep, chat.Message{ID: 10, ChatID: 1, Role: chat.RoleUser, Content: "Hi"})
		Expect(err).NotTo(HaveOccurred())

		tc = chat.TurnContext{ChatID: 1, AfterMessageID: 10, Params: chat.DefaultGenerationParams()}
		ctx = context.Background()
	})

	It("requires an opener", func() {
		_, err := turn.NewConsumer(turn.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("applies tokens split mid-frame across chunks and finalizes", func() {
		body := &chunkedBody{chunks: []string{
			"event: token\ndata: Hel",
			"\n\nevent: token\nda",
			"ta: lo!\n\nevent: do",
			"ne\ndata: 5\n\n",
		}}

		res, err := newConsumer(bodyOpener(body), 0).Consume(ctx, tc, ep, r)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Terminated).To(BeTrue())
		Expect(res.Fragments).To(Equal(2))
		Expect(res.Content).To(Equal("Hello!"))
		Expect(*res.TokensUsed).To(Equal(5))
		Expect(body.isClosed()).To(BeTrue())

		msg := r.Snapshot().Messages[1]
		Expect(msg.Content).To(Equal("Hello!"))
		Expect(*msg.TokensUsed).To(Equal(5))
		Expect(msg.IsPending()).To(BeFalse())
	})

	It("keeps partial output and reports an upstream error", func() {
		body := &chunkedBody{chunks: []string{
			"event: token\ndata: Par\n\n",
			"event: error\ndata: model crashed\n\n",
			"event: token\ndata: never\n\n",
		}}

		res, err := newConsumer(bodyOpener(body), 0).Consume(ctx, tc, ep, r)

		var uerr *turn.UpstreamError
		Expect(errors.As(err, &uerr)).To(BeTrue())
		Expect(uerr.Message).To(Equal("model crashed"))
		Expect(res.Terminated).To(BeTrue())
		Expect(r.Snapshot().Messages[1].Content).To(Equal("Par"))
	})

	It("falls back to a generic message for an empty error payload", func() {
		body := &chunkedBody{chunks: []string{"event: error\ndata: \n\n"}}

		_, err := newConsumer(bodyOpener(body), 0).Consume(ctx, tc, ep, r)
		Expect(err).To(MatchError("generation failed"))
	})

	It("ignores unknown kinds and leaves an unparsable count unset", func() {
		body := &chunkedBody{chunks: []string{
			"event: ping\ndata: {}\n\n",
			"data: untyped\n\n",
			"event: token\ndata: ok\n\n",
			"event: done\ndata: many\n\n",
		}}

		res, err := newConsumer(bodyOpener(body), 0).Consume(ctx, tc, ep, r)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.TokensUsed).To(BeNil())

		msg := r.Snapshot().Messages[1]
		Expect(msg.Content).To(Equal("ok"))
		Expect(msg.TokensUsed).To(BeNil())
	})

	It("treats a stream without a terminal event as a clean completion", func() {
		body := &chunkedBody{chunks: []string{"event: token\ndata: abc\n\n", "event: token\ndata: trailing"}}

		res, err := newConsumer(bodyOpener(body), 0).Consume(ctx, tc, ep, r)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Terminated).To(BeFalse())
		Expect(res.TokensUsed).To(BeNil())
		Expect(r.Snapshot().Messages[1].Content).To(Equal("abc"))
	})

	It("stops reading on done even while the connection stays open", func() {
		pr, pw := io.Pipe()
		go func() {
			defer GinkgoRecover()
			_, _ = pw.Write([]byte("event: token\ndata: x\n\nevent: done\ndata: 1\n\n"))
			// Hold the connection open; only a Close from the consumer ends
			// this write.
			_, err := pw.Write([]byte("event: token\ndata: late\n\n"))
			Expect(err).To(MatchError(io.ErrClosedPipe))
		}()

		done := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			defer close(done)
			_, err := newConsumer(bodyOpener(pr), 0).Consume(ctx, tc, ep, r)
			Expect(err).NotTo(HaveOccurred())
		}()

		Eventually(done).Should(BeClosed())
		Expect(r.Snapshot().Messages[1].Content).To(Equal("x"))
	})

	It("keeps tokens and reports a transport error when the read fails", func() {
		body := &chunkedBody{
			chunks: []string{"event: token\ndata: Pa\n\n", "event: token\ndata: r\n\n"},
			err:    errors.New("connection reset"),
		}

		res, err := newConsumer(bodyOpener(body), 0).Consume(ctx, tc, ep, r)

		var terr *turn.TransportError
		Expect(errors.As(err, &terr)).To(BeTrue())
		Expect(terr.Op).To(Equal("read"))
		Expect(err).To(MatchError(ContainSubstring("connection reset")))
		Expect(res.Fragments).To(Equal(2))
		Expect(r.Snapshot().Messages[1].Content).To(Equal("Par"))
	})

	It("fails with ErrTurnTimeout and closes a stalled stream", func() {
		pr, pw := io.Pipe()
		DeferCleanup(func() { _ = pw.Close() })
		go func() {
			_, _ = pw.Write([]byte("event: token\ndata: slow\n\n"))
		}()

		res, err := newConsumer(bodyOpener(pr), 50*time.Millisecond).Consume(ctx, tc, ep, r)
		Expect(err).To(MatchError(turn.ErrTurnTimeout))
		Expect(res.Content).To(Equal("slow"))
		Expect(r.Snapshot().Messages[1].Content).To(Equal("slow"))
	})

	It("reports a rejected stream as a transport error before decoding", func() {
		opener := openerFunc(func(context.Context, chat.TurnContext) (io.ReadCloser, error) {
			return nil, &client.StatusError{StatusCode: http.StatusUnauthorized, Message: "invalid token"}
		})

		_, err := newConsumer(opener, 0).Consume(ctx, tc, ep, r)

		var terr *turn.TransportError
		Expect(errors.As(err, &terr)).To(BeTrue())
		Expect(terr.Op).To(Equal("open"))
		Expect(terr.StatusCode).To(Equal(http.StatusUnauthorized))
		Expect(errors.Is(err, client.ErrUnauthorized)).To(BeTrue())
		Expect(r.Snapshot().Messages[1].Content).To(BeEmpty())
	})

	It("reports an empty body as a transport error", func() {
		_, err := newConsumer(bodyOpener(http.NoBody), 0).Consume(ctx, tc, ep, r)
		Expect(err).To(MatchError(turn.ErrEmptyBody))

		var terr *turn.TransportError
		Expect(errors.As(err, &terr)).To(BeTrue())
	})

	It("stops at the first stale effect after a chat switch", func() {
		body := &chunkedBody{chunks: []string{
			"event: token\ndata: a\n\n",
			"event: token\ndata: b\n\n",
			"event: done\ndata: 2\n\n",
		}}

		sink := &switchingSink{Reconciler: r, after: 1}
		res, err := newConsumer(bodyOpener(body), 0).Consume(ctx, tc, ep, sink)
		Expect(err).To(MatchError(transcript.ErrStaleEpoch))
		Expect(res.Fragments).To(Equal(1))
		Expect(body.isClosed()).To(BeTrue())
		Expect(r.Snapshot().Chat.ID).To(Equal(int64(2)))
		Expect(r.Snapshot().Messages).To(BeEmpty())
	})

	It("tees raw bytes verbatim", func() {
		raw := "event: token\ndata: hi\n\n: comment\n\nevent: done\ndata: 1\n\n"
		var dump strings.Builder

		c, err := turn.NewConsumer(turn.Config{Opener: bodyOpener(&chunkedBody{chunks: []string{raw}}), Tee: &dump})
		Expect(err).NotTo(HaveOccurred())

		_, err = c.Consume(ctx, tc, ep, r)
		Expect(err).NotTo(HaveOccurred())
		Expect(dump.String()).To(Equal(raw))
	})
})

// switchingSink switches the reconciler to another chat after a number of
// applied tokens, as a user would mid-stream.
type switchingSink struct {
	*transcript.Reconciler
	after   int
	applied int
}

func (s *switchingSink) AppendToken(ep transcript.Epoch, text string) error {
	if s.applied == s.after {
		s.Switch(2)
	}
	s.applied++
	return s.Reconciler.AppendToken(ep, text)
}
