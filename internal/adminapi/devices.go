package adminapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/coolnoor19/wadesk/internal/domain"
	"github.com/coolnoor19/wadesk/internal/identity"
	"github.com/coolnoor19/wadesk/internal/webserver"
)

func registerDeviceRoutes() {
	webserver.ApiGET("/chat/devices", listDevices)
	webserver.ApiPOST("/chat/devices", createDevice)
	webserver.ApiDELETE("/chat/devices/:id", removeDevice)
}

// listDevices returns persisted device registry rows.
func listDevices(c echo.Context) error {
	page, pageSize := parsePagination(c)

	base := GetDB(c).Model(&domain.ChatDevice{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query devices", err.Error())
	}

	var devices []domain.ChatDevice
	if err := base.Order("id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&devices).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query devices", err.Error())
	}
	return paged(c, devices, total, page, pageSize)
}

// createDevice registers a device record ahead of pairing.
func createDevice(c echo.Context) error {
	var payload struct {
		Phone string `json:"phone"`
		Name  string `json:"name"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if strings.TrimSpace(payload.Phone) == "" || strings.TrimSpace(payload.Name) == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "phone and name are required", nil)
	}
	if !identity.ValidPhone(payload.Phone) {
		return fail(c, http.StatusBadRequest, "INVALID_PHONE", "Phone must be a bare number", nil)
	}

	phone := identity.Normalize(payload.Phone)
	var dup domain.ChatDevice
	if err := GetDB(c).Where("phone = ?", phone).First(&dup).Error; err == nil {
		return fail(c, http.StatusConflict, "DUPLICATE_DEVICE", "Device with this phone already exists", nil)
	}

	dev := &domain.ChatDevice{
		Phone:     phone,
		Name:      payload.Name,
		Status:    "created",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := GetDB(c).Create(dev).Error; err != nil {
		zap.L().Warn("adminapi: create device failed", zap.Error(err))
		return fail(c, http.StatusInternalServerError, "CREATE_FAILED", "Failed to create device", err.Error())
	}
	return ok(c, map[string]interface{}{"id": dev.ID})
}

// removeDevice deletes a device row and tears down any live session for it.
func removeDevice(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil || id == 0 {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid device id", nil)
	}

	var dev domain.ChatDevice
	if err := GetDB(c).Where("id = ?", id).First(&dev).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "DEVICE_NOT_FOUND", "Device not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query device", err.Error())
	}

	machine.Delete(c.Request().Context(), dev.Phone)

	if err := GetDB(c).Delete(&domain.ChatDevice{}, id).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "REMOVE_FAILED", "Failed to remove device", err.Error())
	}
	zap.L().Info("adminapi: device removed", zap.Int64("id", id), zap.String("phone", dev.Phone))
	return ok(c, map[string]interface{}{"removed": true})
}
