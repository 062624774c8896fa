// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/provider"
	"github.com/jeranaias/rigchat/internal/stream"
)

// ============================================================================
// ENDPOINT FRAMES
// ============================================================================

type contentFrame struct {
	Content string `json:"content"`
}

type doneFrame struct {
	Done         bool                `json:"done"`
	FinishReason stream.FinishReason `json:"finishReason"`
	Usage        model.Usage         `json:"usage"`
}

type errorFrame struct {
	Error string `json:"error"`
}

// sseWriter writes endpoint frames and flushes after each one.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (sw *sseWriter) send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", data); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

// ============================================================================
// CHAT HANDLER
// ============================================================================

// handleChat handles POST /api/chat.
//
// The first upstream event is read before any header is written so that a
// failure to start (bad credentials, unreachable upstream) surfaces as an
// HTTP status. An error reported by the upstream itself is always an error
// frame, even when it arrives before any delta.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)

	var req model.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body exceeds maximum size of %d bytes", s.maxBody))
			return
		}
		if errors.Is(err, model.ErrUnknownProvider) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Debug("INVALID_REQUEST", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Messages) > MaxMessageCount {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("too many messages (max %d)", MaxMessageCount))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	ctx := r.Context()
	st, err := s.dispatcher.Dispatch(ctx, &req)
	if err != nil {
		s.writeDispatchError(w, &req, err)
		return
	}
	defer st.Close()

	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	first, err := st.Recv()
	if err != nil && !errors.Is(err, io.EOF) {
		if ctx.Err() != nil {
			return
		}
		s.writeDispatchError(w, &req, err)
		return
	}
	if errors.Is(err, io.EOF) {
		first = stream.Finish(stream.FinishUnknown, model.Usage{})
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sw := &sseWriter{w: w, flusher: flusher}
	s.pump(ctx, sw, st, first, &req)
}

// pump forwards events until exactly one terminal frame has been written
// or the client goes away.
func (s *Server) pump(ctx context.Context, sw *sseWriter, st stream.Stream, ev stream.Event, req *model.ChatRequest) {
	deltas := 0
	for {
		var err error
		switch ev.Type {
		case stream.EventTextDelta:
			deltas++
			err = sw.send(contentFrame{Content: ev.TextDelta})
		case stream.EventFinish:
			s.logger.Debug("STREAM_DONE",
				zap.String("model", req.Model),
				zap.String("finish_reason", string(ev.FinishReason)),
				zap.Int("deltas", deltas),
				zap.Int("total_tokens", ev.Usage.TotalTokens))
			_ = sw.send(doneFrame{Done: true, FinishReason: ev.FinishReason, Usage: ev.Usage})
			return
		case stream.EventError:
			s.logger.Warn("STREAM_ERROR",
				zap.String("model", req.Model),
				zap.Int("deltas", deltas),
				zap.String("error", ev.Message()))
			_ = sw.send(errorFrame{Error: ev.Message()})
			return
		}
		if err != nil {
			s.logger.Debug("CLIENT_GONE", zap.Error(err))
			return
		}

		ev, err = st.Recv()
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			ev = stream.Finish(stream.FinishUnknown, model.Usage{})
		case ctx.Err() != nil:
			s.logger.Debug("STREAM_CANCELLED", zap.String("model", req.Model), zap.Int("deltas", deltas))
			return
		default:
			ev = stream.ErrorEvent(err.Error())
		}
	}
}

// writeDispatchError maps a failure to start a stream to an HTTP status.
func (s *Server) writeDispatchError(w http.ResponseWriter, req *model.ChatRequest, err error) {
	status := http.StatusBadGateway
	switch {
	case stream.IsAuth(err):
		status = http.StatusUnauthorized
	case errors.Is(err, model.ErrNoMessages),
		errors.Is(err, model.ErrNoModel),
		errors.Is(err, provider.ErrNoAdapter):
		status = http.StatusBadRequest
	}

	s.logger.Warn("DISPATCH_FAILED",
		zap.String("provider", string(req.Provider)),
		zap.String("model", req.Model),
		zap.Int("status", status),
		zap.Error(err))
	writeError(w, status, err.Error())
}
