package cliui_test

import (
	"bytes"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ggchat/pkg/cliui"
)

var _ = Describe("FormatDuration", func() {
	It("uses milliseconds under a second", func() {
		Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
	})

	It("uses one decimal of seconds above", func() {
		Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
	})
})

var _ = Describe("Truncate", func() {
	It("returns the string unchanged when within the limit", func() {
		Expect(cliui.Truncate("short", 10)).To(Equal("short"))
	})

	It("returns the string unchanged when exactly at the limit", func() {
		Expect(cliui.Truncate("12345", 5)).To(Equal("12345"))
	})

	It("truncates with an ellipsis when over the limit", func() {
		Expect(cliui.Truncate("this is a long string", 10)).To(Equal("this is a…"))
	})

	It("measures wide runes by cell width", func() {
		out := cliui.Truncate("日本語のテキスト", 6)
		Expect(ansi.StringWidth(out)).To(BeNumerically("<=", 6))
		Expect(out).To(HaveSuffix("…"))
	})
})

var _ = Describe("Step", func() {
	It("reports success with the message", func() {
		var buf bytes.Buffer
		err := cliui.Step(&buf, "Loading chats", func() error { return nil })
		Expect(err).NotTo(HaveOccurred())

		out := ansi.Strip(buf.String())
		last := out[strings.LastIndex(out, "\r")+1:]
		Expect(last).To(ContainSubstring("✓ Loading chats"))
		Expect(last).To(HaveSuffix("\n"))
	})

	It("returns the function's error with a failure mark", func() {
		var buf bytes.Buffer
		boom := errors.New("boom")
		err := cliui.Step(&buf, "Loading chats", func() error { return boom })
		Expect(err).To(MatchError(boom))
		Expect(ansi.Strip(buf.String())).To(ContainSubstring("✗ Loading chats"))
	})
})

var _ = Describe("RenderMarkdown", func() {
	It("renders text content", func() {
		out, err := cliui.RenderMarkdown("**hello** world", 40)
		Expect(err).NotTo(HaveOccurred())
		Expect(ansi.Strip(out)).To(ContainSubstring("hello"))
		Expect(ansi.Strip(out)).To(ContainSubstring("world"))
	})
})
