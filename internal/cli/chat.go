// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/client"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/stream"
)

// maxAttachmentSize keeps an attachment well inside the endpoint's
// default request body limit.
const maxAttachmentSize = 5 << 20

const chatHelp = `Commands:
  /attach <path>         attach a file to the next message
  /regen                 regenerate the last reply
  /model <id> [provider] switch model (providers: openai, openrouter, ollama)
  /models                list models offered by the endpoint
  /new                   start a new session
  /quit                  exit`

type chatFlags struct {
	session     string
	model       string
	provider    string
	endpoint    string
	search      bool
	keepPartial bool
}

func newChatCmd(a *app) *cobra.Command {
	var f chatFlags
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a model through the endpoint",
		Long: `Start an interactive chat. Replies stream as they are generated;
reasoning inside <think> spans is shown dimmed. Press Ctrl-C to stop a
reply, Ctrl-D or /quit to exit.

` + chatHelp,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVarP(&f.session, "session", "s", "", "Resume a session by id")
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "Model id (overrides client.model)")
	cmd.Flags().StringVarP(&f.provider, "provider", "p", "", "Provider (overrides client.provider)")
	cmd.Flags().StringVar(&f.endpoint, "endpoint", "", "Endpoint URL (overrides client.endpoint)")
	cmd.Flags().BoolVar(&f.search, "search", false, "Ask the backend to use web search")
	cmd.Flags().BoolVar(&f.keepPartial, "keep-partial", false, "Save partial replies when a stream fails")
	return cmd
}

// chatSession is one interactive chat loop.
type chatSession struct {
	a       *app
	client  *client.Client
	store   client.Store
	conv    *client.Conversation
	opts    client.Options
	models  []model.ModelInfo
	printer *streamPrinter

	// pending holds attachments for the next message.
	pending []model.MessagePart
}

func (a *app) runChat(ctx context.Context, f chatFlags) error {
	ccfg := a.cfg.Client
	if f.endpoint != "" {
		ccfg.Endpoint = f.endpoint
	}
	if f.model != "" {
		ccfg.Model = f.model
	}
	if f.provider != "" {
		ccfg.Provider = f.provider
	}
	p, err := model.ParseProvider(ccfg.Provider)
	if err != nil {
		return err
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	cs := &chatSession{
		a:      a,
		client: client.New(ccfg, a.logger.Named("client")),
		store:  store,
	}
	cs.opts = client.Options{
		Model:         ccfg.Model,
		Provider:      p,
		Search:        ccfg.Search || f.search,
		HistoryWindow: ccfg.HistoryWindow,
		KeepPartial:   ccfg.KeepPartial || f.keepPartial,
		Logger:        a.logger.Named("conversation"),
		OnUpdate: func(m *model.Message) {
			cs.printer.Update(m.Text())
		},
	}

	if f.session != "" {
		sess, err := store.GetSession(ctx, f.session)
		if err != nil {
			return fmt.Errorf("failed to open session %s: %w", f.session, err)
		}
		cs.conv, err = client.Resume(ctx, cs.client, store, sess, cs.opts)
		if err != nil {
			return err
		}
		for i := range cs.conv.History() {
			fmt.Fprint(a.streams.Out, RenderMessage(&cs.conv.History()[i]))
		}
	} else {
		cs.conv = client.NewConversation(cs.client, store, cs.opts)
	}

	cs.checkHealth(ctx)
	cs.models = cs.loadModels(ctx)
	return cs.loop(ctx)
}

// checkHealth warns when the endpoint is down or lacks the chosen backend.
// The chat still starts so stored history stays readable.
func (cs *chatSession) checkHealth(ctx context.Context) {
	out := cs.a.streams.Out
	h, err := cs.client.Health(ctx)
	if err != nil {
		cs.a.logger.Debug("HEALTH_CHECK_FAILED", zap.Error(err))
		fmt.Fprintln(out, WarningStyle.Render("Endpoint "+cs.client.Endpoint()+" is unreachable."))
		return
	}
	cs.a.logger.Debug("HEALTH_OK",
		zap.String("version", h.Version),
		zap.Int64("active_streams", h.ActiveStreams))
	if len(h.Providers) > 0 && !slices.Contains(h.Providers, cs.opts.Provider) {
		fmt.Fprintln(out, WarningStyle.Render("Endpoint has no "+string(cs.opts.Provider)+" backend configured."))
	}
}

// loadModels fetches the catalog once, falling back to the static list.
func (cs *chatSession) loadModels(ctx context.Context) []model.ModelInfo {
	models, err := cs.client.Models(ctx)
	if err != nil || len(models) == 0 {
		cs.a.logger.Debug("MODELS_FALLBACK", zap.Error(err))
		return model.DefaultModels()
	}
	return models
}

func (cs *chatSession) loop(ctx context.Context) error {
	out := cs.a.streams.Out
	fmt.Fprintf(out, "%s %s %s\n",
		TitleStyle.Render("rigchat"),
		DimStyle.Render(cs.opts.Model+" via "+string(cs.opts.Provider)),
		DimStyle.Render("(/help for commands)"))

	scanner := bufio.NewScanner(cs.a.streams.In)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, UserStyle.Render("> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := cs.command(ctx, line)
			if err != nil {
				fmt.Fprintln(out, ErrorStyle.Render(err.Error()))
			}
			if quit {
				return nil
			}
			continue
		}

		extra := cs.pending
		cs.pending = nil
		cs.turn(ctx, func(ctx context.Context) (*model.Message, error) {
			return cs.conv.Send(ctx, line, extra...)
		})
	}
}

// command runs a slash command. quit reports whether the loop should end.
func (cs *chatSession) command(ctx context.Context, line string) (quit bool, err error) {
	out := cs.a.streams.Out
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit", "/q":
		return true, nil
	case "/help", "/?":
		fmt.Fprintln(out, chatHelp)
	case "/new":
		cs.conv = client.NewConversation(cs.client, cs.store, cs.opts)
		fmt.Fprintln(out, DimStyle.Render("New session."))
	case "/regen", "/regenerate":
		cs.turn(ctx, cs.conv.Regenerate)
	case "/attach":
		path := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
		if path == "" {
			return false, errors.New("usage: /attach <path>")
		}
		part, err := loadAttachment(path)
		if err != nil {
			return false, err
		}
		if part.IsImage() && !cs.currentModel().Accepts(model.InputImage) {
			return false, fmt.Errorf("%s does not accept images", cs.opts.Model)
		}
		cs.pending = append(cs.pending, part)
		fmt.Fprintln(out, DimStyle.Render("Attached "+part.Filename+" to the next message."))
	case "/models":
		for _, m := range cs.models {
			fmt.Fprintf(out, "  %s %s\n", providerStyle.Render(string(m.Provider)), m.ID)
		}
	case "/model":
		if len(fields) < 2 {
			return false, errors.New("usage: /model <id> [provider]")
		}
		p := cs.opts.Provider
		if len(fields) > 2 {
			if p, err = model.ParseProvider(fields[2]); err != nil {
				return false, err
			}
		} else if known, ok := findModel(cs.models, fields[1]); ok {
			p = known.Provider
		}
		cs.opts.Model, cs.opts.Provider = fields[1], p
		cs.conv.SetModel(fields[1], p)
		fmt.Fprintln(out, DimStyle.Render("Using "+fields[1]+" via "+string(p)+"."))
		if !cs.currentModel().Accepts(model.InputImage) {
			cs.dropPendingImages()
		}
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", fields[0])
	}
	return false, nil
}

// currentModel returns catalog metadata for the selected model, inferring
// it from the id when the catalog does not list it.
func (cs *chatSession) currentModel() model.ModelInfo {
	if info, ok := findModel(cs.models, cs.opts.Model); ok {
		return info
	}
	return model.NewModelInfo(cs.opts.Model, cs.opts.Provider)
}

func (cs *chatSession) dropPendingImages() {
	kept := cs.pending[:0]
	dropped := 0
	for _, p := range cs.pending {
		if p.IsImage() {
			dropped++
			continue
		}
		kept = append(kept, p)
	}
	cs.pending = kept
	if dropped > 0 {
		fmt.Fprintln(cs.a.streams.Out, WarningStyle.Render(fmt.Sprintf("Dropped %d image attachment(s): %s does not accept images.", dropped, cs.opts.Model)))
	}
}

// loadAttachment reads a file into a data URL part.
func loadAttachment(path string) (model.MessagePart, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.MessagePart{}, fmt.Errorf("failed to read attachment: %w", err)
	}
	if len(data) > maxAttachmentSize {
		return model.MessagePart{}, fmt.Errorf("attachment %s exceeds %d bytes", filepath.Base(path), maxAttachmentSize)
	}
	mediaType, _, _ := strings.Cut(http.DetectContentType(data), ";")
	url := "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
	return model.FilePart(mediaType, filepath.Base(path), url), nil
}

func findModel(models []model.ModelInfo, id string) (model.ModelInfo, bool) {
	for _, m := range models {
		if m.ID == id {
			return m, true
		}
	}
	return model.ModelInfo{}, false
}

// turn streams one reply. Ctrl-C cancels the reply, not the program. A
// rejected password is prompted for once and the turn is re-sent.
func (cs *chatSession) turn(ctx context.Context, run func(context.Context) (*model.Message, error)) {
	out := cs.a.streams.Out
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	cs.printer = newStreamPrinter(out)
	fmt.Fprintln(out, roleHeader(model.RoleAssistant))
	_, err := run(turnCtx)

	if client.IsUnauthorized(err) {
		pw, perr := PromptPassword(cs.a.streams.In, out, "Password: ")
		if perr != nil {
			fmt.Fprintln(out, ErrorStyle.Render("Unauthorized: set client.password or APP_PASSWORD."))
			return
		}
		cs.client.SetPassword(pw)
		cs.printer = newStreamPrinter(out)
		_, err = cs.conv.Regenerate(turnCtx)
	}
	cs.printer.Done()

	var upstream *stream.UpstreamError
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(out, DimStyle.Render("(stopped)"))
	case client.IsUnauthorized(err):
		fmt.Fprintln(out, ErrorStyle.Render("Unauthorized."))
	case errors.As(err, &upstream):
		fmt.Fprintln(out, ErrorStyle.Render("Upstream error: "+upstream.Message), DimStyle.Render("(/regen to retry)"))
	default:
		fmt.Fprintln(out, ErrorStyle.Render(err.Error()), DimStyle.Render("(/regen to retry)"))
	}
}
