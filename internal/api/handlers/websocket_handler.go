package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/attendbot/backend/internal/chat"
	"github.com/attendbot/backend/internal/feedback"
	"github.com/attendbot/backend/pkg/logger"
)

type WebSocketHandler struct {
	chatService     *chat.Service
	feedbackService *feedback.Service
}

func NewWebSocketHandler(chatService *chat.Service, feedbackService *feedback.Service) *WebSocketHandler {
	return &WebSocketHandler{
		chatService:     chatService,
		feedbackService: feedbackService,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type      string `json:"type"`
			Content   string `json:"content"`
			SessionID string `json:"session_id"`
			UserID    string `json:"user_id"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Error("Failed to read WebSocket message", zap.Error(err))
			break
		}

		if msg.Type != "chat" {
			continue
		}

		err = h.streamResponse(c, msg.Content, msg.SessionID, msg.UserID)
		if err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			h.sendError(c, "Failed to process message")
		}
	}
}

func (h *WebSocketHandler) streamResponse(c *websocket.Conn, message, sessionID, userID string) error {
	ctx := context.Background()

	h.sendChunk(c, "status", "Thinking...")

	response, err := h.chatService.Ask(ctx, message, sessionID, userID, c.RemoteAddr().String())
	if err != nil {
		return err
	}

	words := splitIntoWords(response.Answer)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 {
			chunk += " "
		}

		if err := c.WriteJSON(map[string]interface{}{"type": "chunk", "content": chunk}); err != nil {
			return err
		}
	}

	complete := map[string]interface{}{
		"type":             "complete",
		"interaction_id":   response.InteractionID,
		"category":         response.Category,
		"confidence":       response.Confidence,
		"response_time_ms": response.ResponseTimeMS,
	}

	decision, err := h.feedbackService.ShouldRequestFeedback(ctx, userID, sessionID)
	if err == nil && decision.Request {
		complete["feedback_request"] = map[string]interface{}{
			"prompt_id":   decision.Prompt.ID,
			"prompt_text": decision.Prompt.Text,
			"prompt_type": decision.Prompt.Type,
		}
	}

	return c.WriteJSON(complete)
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}

func splitIntoWords(text string) []string {
	words := []string{}
	currentWord := ""

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if currentWord != "" {
				words = append(words, currentWord)
				currentWord = ""
			}
			if char == '\n' {
				words = append(words, "\n")
			}
		} else {
			currentWord += string(char)
		}
	}

	if currentWord != "" {
		words = append(words, currentWord)
	}

	return words
}
