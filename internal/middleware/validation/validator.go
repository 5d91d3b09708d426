package validation

import (
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Config struct {
	MaxCompanyNameLength int
	MaxFilePaths         int
	AllowedRoot          string
	Logger               *zap.Logger
}

// Middleware validates review submissions before they reach the handler:
// bounded company names, a bounded file list, and document paths confined to
// the configured root so the API cannot be used to read arbitrary files.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxCompanyNameLength == 0 {
		cfg.MaxCompanyNameLength = 200
	}
	if cfg.MaxFilePaths == 0 {
		cfg.MaxFilePaths = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost || !strings.Contains(c.Path(), "/api/v1/review") {
			return c.Next()
		}

		contentType := c.Get("Content-Type")
		if contentType != "" && !strings.Contains(contentType, "application/json") {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		var req struct {
			CompanyName string   `json:"company_name"`
			FilePaths   []string `json:"file_paths"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON format",
			})
		}

		if len(req.CompanyName) > cfg.MaxCompanyNameLength {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "company_name exceeds maximum length",
			})
		}
		if strings.ContainsRune(req.CompanyName, '\x00') {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "company_name contains invalid characters",
			})
		}

		if len(req.FilePaths) > cfg.MaxFilePaths {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "too many file paths",
			})
		}

		for _, path := range req.FilePaths {
			if !isAllowedPath(path, cfg.AllowedRoot) {
				cfg.Logger.Warn("Rejected document path",
					zap.String("ip", c.IP()),
					zap.String("path", path),
				)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "file path outside allowed document root",
				})
			}
		}

		return c.Next()
	}
}

// isAllowedPath rejects traversal segments and, when a root is configured,
// anything that resolves outside it.
func isAllowedPath(path, root string) bool {
	if path == "" || strings.ContainsRune(path, '\x00') {
		return false
	}

	cleaned := filepath.Clean(path)
	for _, segment := range strings.Split(filepath.ToSlash(cleaned), "/") {
		if segment == ".." {
			return false
		}
	}

	if root == "" {
		return true
	}

	rootClean := filepath.Clean(root)
	if !filepath.IsAbs(cleaned) {
		cleaned = filepath.Join(rootClean, cleaned)
	}
	rel, err := filepath.Rel(rootClean, cleaned)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
