package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/vango-go/resilios/pkg/core"
	"github.com/vango-go/resilios/pkg/core/chat"
	"github.com/vango-go/resilios/pkg/core/types"
	resilios "github.com/vango-go/resilios/sdk"
)

const helpText = `commands:
  /attach <path>        stage an image or video for the next message
  /clear                drop the staged attachment
  /search               toggle web search grounding
  /think                toggle deep thinking
  /location <lat,lon>   share a location (again to stop sharing)
  /history              reload the conversation from the gateway
  /premium              show premium status
  /subscribe            open a checkout session
  /live                 start or stop the live avatar
  /exit                 quit`

// syncWriter serializes writes from the prompt loop and the live event loop.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

type session struct {
	client   *resilios.Client
	cfg      chatConfig
	userID   string
	composer *chat.Composer
	out      io.Writer
	errOut   io.Writer

	liveMu   sync.Mutex
	live     *resilios.LiveSession
	liveDone chan struct{}
}

func newSession(client *resilios.Client, cfg chatConfig, userID string, out, errOut io.Writer) *session {
	out = &syncWriter{w: out}
	errOut = &syncWriter{w: errOut}
	return &session{
		client: client,
		cfg:    cfg,
		userID: userID,
		composer: chat.NewComposer(chat.ComposerOptions{
			Transport: client.Chat,
		}),
		out:    out,
		errOut: errOut,
	}
}

func (s *session) send(ctx context.Context, text string) {
	before := len(s.composer.Messages())
	sent, err := s.composer.Send(ctx, text)
	if err != nil {
		fmt.Fprintf(s.errOut, "send error: %s\n", describeError(err))
		return
	}
	if !sent {
		return
	}
	msgs := s.composer.Messages()
	for _, m := range msgs[before:] {
		if m.Role == types.RoleModel {
			printReply(s.out, m)
		}
	}
}

func printReply(out io.Writer, m types.Message) {
	if m.Sticker != "" {
		fmt.Fprintf(out, "[sticker] %s\n", m.Sticker)
	}
	fmt.Fprintln(out, m.Text)
	for _, g := range m.GroundingChunks {
		switch {
		case g.Web != nil:
			fmt.Fprintf(out, "  [web] %s %s\n", g.Web.Title, g.Web.URI)
		case g.Maps != nil:
			fmt.Fprintf(out, "  [maps] %s %s\n", g.Maps.Title, g.Maps.URI)
		}
	}
}

// describeError surfaces the gateway's message for API errors.
func describeError(err error) string {
	var apiErr *core.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code != "" {
			return fmt.Sprintf("%s (%s)", apiErr.Message, apiErr.Code)
		}
		return apiErr.Message
	}
	return err.Error()
}

func splitCommand(line string) (cmd, arg string) {
	cmd, arg, _ = strings.Cut(strings.TrimSpace(line), " ")
	return cmd, strings.TrimSpace(arg)
}

func parseLocation(arg string) (types.Location, error) {
	latRaw, lonRaw, ok := strings.Cut(arg, ",")
	if !ok {
		return types.Location{}, errors.New("location must be lat,lon")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latRaw), 64)
	if err != nil || lat < -90 || lat > 90 {
		return types.Location{}, fmt.Errorf("invalid latitude %q", strings.TrimSpace(latRaw))
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonRaw), 64)
	if err != nil || lon < -180 || lon > 180 {
		return types.Location{}, fmt.Errorf("invalid longitude %q", strings.TrimSpace(lonRaw))
	}
	return types.Location{Latitude: lat, Longitude: lon}, nil
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func (s *session) handleSlashCommand(ctx context.Context, line string) (handled bool, err error) {
	if !strings.HasPrefix(line, "/") {
		return false, nil
	}
	cmd, arg := splitCommand(line)

	switch cmd {
	case "/help":
		fmt.Fprintln(s.out, helpText)
	case "/attach":
		s.attach(arg)
	case "/clear":
		s.composer.ClearAttachment()
		fmt.Fprintln(s.out, "attachment cleared")
	case "/search":
		fmt.Fprintf(s.out, "web search %s\n", onOff(s.composer.ToggleSearch()))
	case "/think":
		fmt.Fprintf(s.out, "deep thinking %s\n", onOff(s.composer.ToggleDeepThinking()))
	case "/location":
		s.toggleLocation(ctx, arg)
	case "/history":
		if err := s.loadHistory(ctx); err != nil {
			fmt.Fprintf(s.errOut, "history error: %s\n", describeError(err))
		}
	case "/premium":
		ent, err := s.client.Account.Premium(ctx, s.userID)
		if err != nil {
			fmt.Fprintf(s.errOut, "premium error: %s\n", describeError(err))
			break
		}
		if ent.IsPremium {
			fmt.Fprintf(s.out, "premium via %s\n", ent.Provider)
		} else {
			fmt.Fprintln(s.out, "free plan")
		}
	case "/subscribe":
		checkoutURL, err := s.client.Payments.CreateCheckout(ctx, s.userID)
		if err != nil {
			fmt.Fprintf(s.errOut, "checkout error: %s\n", describeError(err))
			break
		}
		fmt.Fprintf(s.out, "open to subscribe: %s\n", checkoutURL)
	case "/live":
		if err := s.toggleLive(ctx); err != nil {
			fmt.Fprintf(s.errOut, "live error: %s\n", describeError(err))
		}
	default:
		fmt.Fprintf(s.errOut, "unknown command %s (try /help)\n", cmd)
	}
	return true, nil
}

func (s *session) attach(path string) {
	if path == "" {
		fmt.Fprintln(s.errOut, "usage: /attach <path>")
		return
	}
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(s.errOut, "attach error: %v\n", err)
		return
	}
	defer f.Close()

	staged, err := s.composer.StageFile(chat.MediaTypeForPath(path), f)
	switch {
	case err != nil:
		fmt.Fprintf(s.errOut, "attach error: %v\n", err)
	case !staged:
		fmt.Fprintln(s.errOut, "only images and videos can be attached")
	default:
		fmt.Fprintf(s.out, "attached %s\n", path)
	}
}

func (s *session) toggleLocation(ctx context.Context, arg string) {
	locator := chat.LocatorFunc(func(context.Context) (types.Location, error) {
		return parseLocation(arg)
	})
	sharing, err := s.composer.ToggleLocation(ctx, locator)
	if err != nil {
		fmt.Fprintf(s.errOut, "location error: %v\n", err)
		return
	}
	if sharing {
		_, _, loc := s.composer.Options()
		fmt.Fprintf(s.out, "sharing location %.4f,%.4f\n", loc.Latitude, loc.Longitude)
		return
	}
	fmt.Fprintln(s.out, "location sharing off")
}

func (s *session) loadHistory(ctx context.Context) error {
	msgs, err := s.client.Chat.History(ctx, s.userID, s.cfg.HistoryLimit)
	if err != nil {
		return err
	}
	s.composer.Load(msgs)
	for _, m := range msgs {
		fmt.Fprintf(s.out, "%s: %s\n", m.Role, m.Text)
	}
	fmt.Fprintf(s.out, "loaded %d messages\n", len(msgs))
	return nil
}
