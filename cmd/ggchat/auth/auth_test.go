package authcmder_test

import (
	"bytes"
	"os"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/ggchat/cmd/ggchat/auth"
	"github.com/papercomputeco/ggchat/pkg/session"
	testutils "github.com/papercomputeco/ggchat/pkg/utils/test"
)

var _ = Describe("Auth command", func() {
	var (
		tmpDir string
		out    *bytes.Buffer
	)

	execute := func(stdin string, args ...string) error {
		root := &cobra.Command{Use: "ggchat", SilenceUsage: true, SilenceErrors: true}
		root.PersistentFlags().String("config-dir", "", "")
		root.AddCommand(authcmder.NewAuthCmd())
		root.SetOut(out)
		root.SetIn(strings.NewReader(stdin))
		root.SetArgs(append([]string{"auth", "--config-dir", tmpDir}, args...))
		return root.Execute()
	}

	stored := func() *session.Stored {
		store, err := session.NewStore(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		s, err := store.Load()
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "ggchat-auth-test-*")
		Expect(err).NotTo(HaveOccurred())
		out = &bytes.Buffer{}
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("stores a piped token with the server it was issued for", func() {
		Expect(execute("  secret-token \n", "--server", "http://gpu-box:8000")).To(Succeed())

		s := stored()
		Expect(s.Token).To(Equal("secret-token"))
		Expect(s.Server).To(Equal("http://gpu-box:8000"))
		Expect(out.String()).To(ContainSubstring("Stored token"))
	})

	It("rejects an empty token", func() {
		Expect(execute("\n")).To(MatchError("token cannot be empty"))
		Expect(stored().Token).To(BeEmpty())
	})

	It("fails without input", func() {
		Expect(execute("")).To(MatchError(ContainSubstring("no input")))
	})

	It("reports status", func() {
		Expect(execute("", "--status")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Not logged in"))

		Expect(execute("abcdefghijkl\n")).To(Succeed())
		out.Reset()
		Expect(execute("", "--status")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Logged in"))
		Expect(out.String()).NotTo(ContainSubstring("abcdefghijkl"))
	})

	It("removes the token on logout", func() {
		Expect(execute("tok\n")).To(Succeed())
		Expect(execute("", "--logout")).To(Succeed())
		Expect(stored().Token).To(BeEmpty())
	})

	Describe("--verify", func() {
		var svc *testutils.FakeService

		BeforeEach(func() {
			svc = testutils.NewFakeService("good")
		})

		AfterEach(func() {
			svc.Close()
		})

		It("stores a token the server accepts", func() {
			Expect(execute("good\n", "--verify", "--server", svc.URL())).To(Succeed())
			Expect(stored().Token).To(Equal("good"))
		})

		It("refuses a token the server rejects", func() {
			err := execute("bad\n", "--verify", "--server", svc.URL())
			Expect(err).To(MatchError(ContainSubstring("token rejected")))
			Expect(stored().Token).To(BeEmpty())
		})
	})
})
