package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ggchat/pkg/logger"
)

// decodeLines parses newline separated JSON records.
func decodeLines(buf *bytes.Buffer) []map[string]any {
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		ExpectWithOffset(1, json.Unmarshal([]byte(line), &rec)).To(Succeed())
		out = append(out, rec)
	}
	return out
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

var _ = Describe("New", func() {
	var buf bytes.Buffer

	BeforeEach(func() {
		buf.Reset()
	})

	It("writes text records at Info by default", func() {
		l := logger.New(logger.WithWriter(&buf))
		l.Info("turn finished", "chat_id", 7)
		l.Debug("frame", "bytes", 12)

		Expect(buf.String()).To(ContainSubstring("turn finished"))
		Expect(buf.String()).To(ContainSubstring("chat_id=7"))
		Expect(buf.String()).NotTo(ContainSubstring("frame"))
	})

	It("lets debug records through with WithDebug", func() {
		l := logger.New(logger.WithWriter(&buf), logger.WithDebug(true))
		l.Debug("poll tick")
		Expect(buf.String()).To(ContainSubstring("poll tick"))
	})

	It("emits JSON records", func() {
		l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true))
		l.Warn("refresh failed", "attempt", 3)

		recs := decodeLines(&buf)
		Expect(recs).To(HaveLen(1))
		Expect(recs[0]).To(HaveKeyWithValue("msg", "refresh failed"))
		Expect(recs[0]).To(HaveKeyWithValue("level", "WARN"))
		Expect(recs[0]["attempt"]).To(BeNumerically("==", 3))
	})

	It("prefers JSON over pretty output", func() {
		l := logger.New(logger.WithWriter(&buf), logger.WithPretty(true), logger.WithJSON(true))
		l.Info("both")
		Expect(decodeLines(&buf)).To(HaveLen(1))
	})

	It("adds the source location with WithSource", func() {
		l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true), logger.WithSource(true))
		l.Info("where")
		Expect(decodeLines(&buf)[0]).To(HaveKey("source"))
	})

	It("renders pretty records", func() {
		l := logger.New(logger.WithWriter(&buf), logger.WithPretty(true))
		l.Info("session reloaded")
		Expect(buf.String()).To(ContainSubstring("session reloaded"))
	})

	It("fans out to every writer given", func() {
		var other bytes.Buffer
		l := logger.New(logger.WithWriter(&buf), logger.WithWriter(&other))
		l.Info("twice")

		Expect(buf.String()).To(ContainSubstring("twice"))
		Expect(other.String()).To(ContainSubstring("twice"))
	})
})

var _ = Describe("Nop", func() {
	It("is disabled at every level", func() {
		h := logger.Nop().Handler()
		for _, lvl := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
			Expect(h.Enabled(context.Background(), lvl)).To(BeFalse())
		}
	})

	It("survives derived loggers", func() {
		Expect(func() {
			logger.Nop().With("k", "v").WithGroup("g").Error("ignored")
		}).NotTo(Panic())
	})
})

var _ = Describe("OrNop", func() {
	It("returns the given logger when set", func() {
		l := logger.New()
		Expect(logger.OrNop(l)).To(BeIdenticalTo(l))
	})

	It("falls back to a discarding logger", func() {
		l := logger.OrNop(nil)
		Expect(l).NotTo(BeNil())
		Expect(l.Handler().Enabled(context.Background(), slog.LevelError)).To(BeFalse())
	})
})

var _ = Describe("Multi", func() {
	var text, js bytes.Buffer

	BeforeEach(func() {
		text.Reset()
		js.Reset()
	})

	It("delivers each record to every logger", func() {
		l := logger.Multi(
			logger.New(logger.WithWriter(&text)),
			logger.New(logger.WithWriter(&js), logger.WithJSON(true)),
		)
		l.Info("chat switched", "chat_id", 4)

		Expect(text.String()).To(ContainSubstring("chat switched"))
		Expect(decodeLines(&js)[0]).To(HaveKeyWithValue("msg", "chat switched"))
	})

	It("honours each logger's own level", func() {
		l := logger.Multi(
			logger.New(logger.WithWriter(&text)),
			logger.New(logger.WithWriter(&js), logger.WithJSON(true), logger.WithDebug(true)),
		)
		l.Debug("frame decoded")

		Expect(text.String()).To(BeEmpty())
		Expect(decodeLines(&js)).To(HaveLen(1))
	})

	It("carries With and WithGroup through", func() {
		l := logger.Multi(logger.New(logger.WithWriter(&js), logger.WithJSON(true)))
		l.With("component", "poller").WithGroup("job").Info("transition", "id", 9)

		rec := decodeLines(&js)[0]
		Expect(rec).To(HaveKeyWithValue("component", "poller"))
		Expect(rec["job"]).To(HaveKeyWithValue("id", BeNumerically("==", 9)))
	})

	It("keeps delivering when one handler fails", func() {
		l := logger.Multi(
			logger.New(logger.WithWriter(failingWriter{}), logger.WithJSON(true)),
			logger.New(logger.WithWriter(&text)),
		)
		l.Info("still here")
		Expect(text.String()).To(ContainSubstring("still here"))
	})

	It("skips nil loggers and degrades to Nop", func() {
		Expect(logger.Multi(nil).Handler().Enabled(context.Background(), slog.LevelError)).To(BeFalse())
	})
})
