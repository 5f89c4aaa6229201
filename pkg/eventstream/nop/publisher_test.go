package nop_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ggchat/pkg/eventstream"
	"github.com/papercomputeco/ggchat/pkg/eventstream/nop"
)

var _ = Describe("Publisher", func() {
	var p *nop.Publisher

	BeforeEach(func() {
		p = nop.NewPublisher()
	})

	It("creates a non-nil publisher", func() {
		Expect(p).NotTo(BeNil())
	})

	It("returns ErrNilEvent for nil events", func() {
		Expect(p.PublishTurn(context.Background(), nil)).To(MatchError(eventstream.ErrNilEvent))
		Expect(p.PublishJob(context.Background(), nil)).To(MatchError(eventstream.ErrNilEvent))
	})

	It("succeeds for non-nil events", func() {
		Expect(p.PublishTurn(context.Background(), &eventstream.TurnCompletedEvent{})).To(Succeed())
		Expect(p.PublishJob(context.Background(), &eventstream.JobTransitionEvent{})).To(Succeed())
	})

	It("closes successfully", func() {
		Expect(p.Close()).To(Succeed())
	})
})
