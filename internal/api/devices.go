package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/api/models"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/devices"
)

// GetDevicesData lists the V4L2 capture devices with translated
// capability names. Shared with the devices subcommand.
func GetDevicesData() (models.DeviceData, error) {
	found, err := devices.List()
	if err != nil {
		return models.DeviceData{}, err
	}

	list := make([]models.DeviceInfo, len(found))
	for i, d := range found {
		list[i] = models.DeviceInfo{
			DevicePath:   d.DevicePath,
			DeviceName:   d.DeviceName,
			Driver:       d.Driver,
			DeviceID:     d.DeviceID,
			Caps:         d.Caps,
			Capabilities: d.Capabilities,
		}
	}

	return models.DeviceData{
		Devices: list,
		Count:   len(list),
	}, nil
}

// registerDeviceRoutes exposes device enumeration.
func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "Devices",
		Description: "List all V4L2 capture devices on the node",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, input *struct{}) (*models.DeviceResponse, error) {
		data, err := GetDevicesData()
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to list devices", err)
		}
		return &models.DeviceResponse{Body: data}, nil
	})
}
