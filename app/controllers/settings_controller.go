package controllers

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/VeloBillHQ/VeloBill/app/models"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/database"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/s3storage"
)

const maxLogoSize = 2 << 20 // 2 MB

var allowedLogoExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".svg":  true,
	".webp": true,
}

var storageClient *s3storage.Client

// SetStorageClient injects the object-storage client at startup. Logo
// upload stays disabled when storage is not configured.
func SetStorageClient(client *s3storage.Client) {
	storageClient = client
}

// requestUserID resolves the acting user. Authentication happens at the
// edge; the gateway forwards the verified identity in this header.
func requestUserID(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Get("X-User-ID"))
}

type settingsRequest struct {
	BusinessName  string `json:"business_name" validate:"max=255"`
	EmailFromName string `json:"email_from_name" validate:"max=255"`
}

// HandleGetSettings returns the business profile of the acting user
func HandleGetSettings(c *fiber.Ctx) error {
	userID := requestUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_user"})
	}

	settings, err := models.LoadBusinessSettings(database.GetDB(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "settings_lookup_failed"})
	}
	return c.JSON(settings)
}

// HandleUpdateSettings updates business-profile fields
func HandleUpdateSettings(c *fiber.Ctx) error {
	userID := requestUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_user"})
	}

	var req settingsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}

	db := database.GetDB()
	if err := models.SaveBusinessSetting(db, userID, "business_name", req.BusinessName); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "settings_save_failed"})
	}
	if err := models.SaveBusinessSetting(db, userID, "email_from_name", req.EmailFromName); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "settings_save_failed"})
	}

	return c.JSON(fiber.Map{"saved": true})
}

// HandleLogoUpload stores the business logo in object storage and
// records its key in the user's settings.
func HandleLogoUpload(c *fiber.Ctx) error {
	userID := requestUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_user"})
	}
	if storageClient == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "storage_disabled"})
	}

	fileHeader, err := c.FormFile("logo")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_file"})
	}
	if fileHeader.Size > maxLogoSize {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "file_too_large"})
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !allowedLogoExtensions[ext] {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unsupported_file_type"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unreadable_file"})
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxLogoSize+1))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unreadable_file"})
	}
	if len(data) > maxLogoSize {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "file_too_large"})
	}

	objectKey, err := storageClient.UploadLogo(c.Context(), userID, ext, data)
	if err != nil {
		log.Errorf("[Settings] Logo upload failed for user %s: %v", userID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upload_failed"})
	}

	if err := models.SaveBusinessSetting(database.GetDB(), userID, "logo_object_key", objectKey); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "settings_save_failed"})
	}

	return c.JSON(fiber.Map{"object_key": objectKey})
}
