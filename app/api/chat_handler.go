package api

import (
	"bufio"
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"

	"ragchat/app/agent"
	"ragchat/config"
	"ragchat/model"
	"ragchat/types"
)

type ChatHandler struct {
	agent   *agent.Agent
	relay   *model.Relay
	chatCfg config.ChatConfig
}

func NewChatHandler(ag *agent.Agent, relay *model.Relay, chatCfg config.ChatConfig) *ChatHandler {
	return &ChatHandler{
		agent:   ag,
		relay:   relay,
		chatCfg: chatCfg,
	}
}

// HandleChat retrieves context for the message, assembles the prompt and
// relays the model's token stream back as text/plain fragments.
func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	var params types.ChatParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	modelID := c.Query("model", h.chatCfg.DefaultModel)
	modelCfg, ok := h.chatCfg.Models[modelID]
	if !ok {
		return ErrUnknownModel(modelID)
	}

	contextText, err := h.agent.RetrieveContext(c.Context(), params.Message)
	if err != nil {
		return err
	}

	messages := agent.BuildMessages(contextText, params.History, params.Message)
	if count, err := agent.CountTokens(messages); err == nil {
		log.Debug().Int("prompt_tokens", count).Str("model", modelID).Msg("assembled prompt")
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		// The relay's own timeout bounds this exchange; a failed flush means
		// the caller is gone and aborts the upstream read.
		err := h.relay.StreamChat(context.Background(), messages, modelID, modelCfg.MaxTokens, func(frag string) error {
			if _, err := w.WriteString(frag); err != nil {
				return err
			}
			return w.Flush()
		})
		if err != nil {
			log.Error().Err(err).Str("model", modelID).Msg("chat stream failed")
			if msg, merr := json.Marshal(fiber.Map{"error": err.Error()}); merr == nil {
				w.Write(msg)
				w.Flush()
			}
		}
	}))
	return nil
}
