package api

import (
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"ragchat/app/agent"
	"ragchat/config"
	"ragchat/loader"
	"ragchat/types"
)

type IngestHandler struct {
	agent     *agent.Agent
	sourceDir string
	ragCfg    config.RAGConfig
}

func NewIngestHandler(ag *agent.Agent, sourceDir string, ragCfg config.RAGConfig) *IngestHandler {
	return &IngestHandler{
		agent:     ag,
		sourceDir: sourceDir,
		ragCfg:    ragCfg,
	}
}

// HandleIngest chunks and embeds raw text into the index.
func (h *IngestHandler) HandleIngest(c *fiber.Ctx) error {
	var params types.IngestParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	count, err := h.agent.Ingest(c.Context(), uuid.New(), params.Text)
	if err != nil {
		return err
	}

	log.Info().Int("chunks", count).Msg("text ingested")
	return c.JSON(fiber.Map{"chunks_ingested": count})
}

// HandleIngestFile accepts a multipart upload, extracts its text and runs it
// through the same ingestion pipeline.
func (h *IngestHandler) HandleIngestFile(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return ErrBadRequest()
	}

	if err := os.MkdirAll(h.sourceDir, 0755); err != nil {
		return err
	}
	path := filepath.Join(h.sourceDir, filepath.Base(file.Filename))
	if err := c.SaveFile(file, path); err != nil {
		return err
	}

	extractPath := path
	if filepath.Ext(path) == ".pdf" && (h.ragCfg.PDFCropTop > 0 || h.ragCfg.PDFCropBottom > 0) {
		cropped := path + ".cropped.pdf"
		if err := loader.CropMargins(path, cropped, h.ragCfg.PDFCropTop, h.ragCfg.PDFCropBottom); err != nil {
			return err
		}
		defer os.Remove(cropped)
		extractPath = cropped
	}

	text, err := loader.ExtractText(extractPath)
	if err != nil {
		return NewError(fiber.StatusUnprocessableEntity, err.Error())
	}

	count, err := h.agent.Ingest(c.Context(), uuid.New(), text)
	if err != nil {
		return err
	}

	log.Info().Int("chunks", count).Str("file", file.Filename).Msg("file ingested")
	return c.JSON(fiber.Map{"chunks_ingested": count})
}
