package main

import (
	"context"
	"fmt"
	"io"

	"github.com/vango-go/resilios/pkg/core/types"
	resilios "github.com/vango-go/resilios/sdk"
)

// toggleLive connects on first use and then forwards the toggle. The
// gateway decides whether the toggle starts, stops or upsells.
func (s *session) toggleLive(ctx context.Context) error {
	s.liveMu.Lock()
	defer s.liveMu.Unlock()

	if s.live == nil {
		ls, err := s.client.Live.Connect(ctx, &resilios.LiveConnectRequest{UserID: s.userID, MicDenied: true})
		if err != nil {
			return err
		}
		ready := ls.Ready()
		plan := "free"
		if ready.User.IsPremium {
			plan = "premium"
		}
		fmt.Fprintf(s.out, "live session %s (%s)\n", ready.SessionID, plan)

		s.live = ls
		s.liveDone = make(chan struct{})
		go s.printLiveEvents(ls, s.liveDone)
	}
	return s.live.Toggle()
}

func (s *session) closeLive() {
	s.liveMu.Lock()
	ls, done := s.live, s.liveDone
	s.live, s.liveDone = nil, nil
	s.liveMu.Unlock()

	if ls == nil {
		return
	}
	_ = ls.Close()
	<-done
}

func (s *session) printLiveEvents(ls *resilios.LiveSession, done chan struct{}) {
	defer close(done)
	for ev := range ls.Events() {
		s.renderLiveEvent(ev)
	}
	if err := ls.Err(); err != nil {
		fmt.Fprintf(s.errOut, "live ended: %s\n", describeError(err))
	}

	s.liveMu.Lock()
	if s.live == ls {
		s.live, s.liveDone = nil, nil
	}
	s.liveMu.Unlock()
}

func (s *session) renderLiveEvent(ev resilios.LiveEvent) {
	renderLiveEvent(s.out, ev)
	if tr, ok := ev.(resilios.LiveTranscriptEvent); ok {
		s.composer.AddTranscription(types.RoleModel, tr.Text)
	}
}

// renderLiveEvent prints the events a terminal can show. Visualizer frames
// are skipped.
func renderLiveEvent(out io.Writer, ev resilios.LiveEvent) {
	switch e := ev.(type) {
	case resilios.LiveStateEvent:
		fmt.Fprintf(out, "[live] %s -> %s\n", e.State.From, e.State.To)
	case resilios.LiveTranscriptEvent:
		fmt.Fprintf(out, "[live] %s\n", e.Text)
	case resilios.LiveStickerEvent:
		if e.Sticker.Sticker != nil {
			fmt.Fprintf(out, "[live] sticker %s\n", e.Sticker.Sticker.Name)
		}
	case resilios.LiveUpsellEvent:
		fmt.Fprintf(out, "[live] %s\n", e.Upsell.Message)
		if e.Upsell.CheckoutURL != "" {
			fmt.Fprintf(out, "[live] subscribe: %s\n", e.Upsell.CheckoutURL)
		}
	case resilios.LiveWarningEvent:
		fmt.Fprintf(out, "[live] warning: %s\n", e.Warning.Message)
	case resilios.LiveErrorEvent:
		fmt.Fprintf(out, "[live] error: %s (%s)\n", e.Error.Message, e.Error.Code)
	}
}
