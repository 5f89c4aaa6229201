package chatscmder_test

import (
	"bytes"
	"os"
	"strconv"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	chatscmder "github.com/papercomputeco/ggchat/cmd/ggchat/chats"
	"github.com/papercomputeco/ggchat/pkg/chat"
	"github.com/papercomputeco/ggchat/pkg/session"
	testutils "github.com/papercomputeco/ggchat/pkg/utils/test"
)

var _ = Describe("Chats command", func() {
	var (
		tmpDir string
		out    *bytes.Buffer
		svc    *testutils.FakeService
	)

	execute := func(args ...string) error {
		root := &cobra.Command{Use: "ggchat", SilenceUsage: true, SilenceErrors: true}
		root.PersistentFlags().String("config-dir", "", "")
		root.PersistentFlags().Bool("debug", false, "")
		root.AddCommand(chatscmder.NewChatsCmd())
		root.SetOut(out)
		root.SetErr(&bytes.Buffer{})
		root.SetArgs(append([]string{"chats", "--config-dir", tmpDir, "--server", svc.URL()}, args...))
		return root.Execute()
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "ggchat-chats-test-*")
		Expect(err).NotTo(HaveOccurred())
		out = &bytes.Buffer{}

		svc = testutils.NewFakeService("tok")
		store, err := session.NewStore(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Save(&session.Stored{Token: "tok"})).To(Succeed())
	})

	AfterEach(func() {
		svc.Close()
		os.RemoveAll(tmpDir)
	})

	It("lists chats newest first", func() {
		svc.AddChat(3, "first")
		svc.AddChat(4, "second")

		Expect(execute()).To(Succeed())

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		Expect(lines).To(HaveLen(3))
		Expect(lines[0]).To(HavePrefix("ID"))
		Expect(lines[1]).To(ContainSubstring("second"))
		Expect(lines[2]).To(ContainSubstring("first"))
	})

	It("says so when there are no chats", func() {
		Expect(execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("No chats yet"))
	})

	It("creates a chat", func() {
		Expect(execute("--new", "7", "--title", "notes")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Created chat"))

		out.Reset()
		Expect(execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("notes"))
	})

	It("removes a chat", func() {
		c := svc.AddChat(3, "doomed")

		Expect(execute("--remove", itoa(c.ID))).To(Succeed())

		out.Reset()
		Expect(execute()).To(Succeed())
		Expect(out.String()).NotTo(ContainSubstring("doomed"))
	})

	It("surfaces the service detail for an unknown chat", func() {
		err := execute("--remove", "999")
		Expect(err).To(MatchError(ContainSubstring("chat not found")))
	})

	It("refuses conflicting flags", func() {
		Expect(execute("--new", "1", "--remove", "2")).To(MatchError(ContainSubstring("cannot be combined")))
	})
})

var _ = Describe("SortRecent", func() {
	It("orders by creation time then id", func() {
		now := time.Now()
		chats := []chat.Chat{
			{ID: 1, CreatedAt: now.Add(-time.Hour)},
			{ID: 2, CreatedAt: now},
			{ID: 3, CreatedAt: now},
		}
		chatscmder.SortRecent(chats)
		Expect([]int64{chats[0].ID, chats[1].ID, chats[2].ID}).To(Equal([]int64{3, 2, 1}))
	})
})

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
