package ggchatcmder_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	ggchatcmder "github.com/papercomputeco/ggchat/cmd/ggchat"
)

var _ = Describe("NewGGChatCmd", func() {
	It("registers every subcommand", func() {
		cmd := ggchatcmder.NewGGChatCmd()
		names := make([]string, 0, len(cmd.Commands()))
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("auth", "chat", "chats", "config", "jobs", "version"))
	})

	It("has global flags", func() {
		cmd := ggchatcmder.NewGGChatCmd()
		Expect(cmd.PersistentFlags().Lookup("debug").Shorthand).To(Equal("d"))
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("no-color")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("log-file")).NotTo(BeNil())
	})

	It("prints the version", func() {
		cmd := ggchatcmder.NewGGChatCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"version"})

		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(Equal("ggchat dev (HEAD, built dev)\n"))
	})
})
