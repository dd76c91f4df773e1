package rest

import (
	"net/http"

	"github.com/KevinKickass/et7000d/internal/interfaces"
	"github.com/gin-gonic/gin"
)

type deviceHealth struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Online   bool   `json:"online"`
	Failures int    `json:"failures"`
}

type systemStatusResponse struct {
	interfaces.SystemStatus
	WSClients int            `json:"ws_clients"`
	Devices   []deviceHealth `json:"devices"`
}

// GET /api/v1/system/status
func (s *Server) getSystemStatus(c *gin.Context) {
	list := s.lm.DeviceManager().ListDevices()

	response := systemStatusResponse{
		SystemStatus: s.lm.GetCurrentStatus(),
		Devices:      make([]deviceHealth, 0, len(list)),
	}
	if s.wsHub != nil {
		response.WSClients = s.wsHub.GetClientCount()
	}
	for _, d := range list {
		response.Devices = append(response.Devices, deviceHealth{
			Name:     d.Config.Name,
			Type:     d.Session.TypeName(),
			Online:   d.Session.Online(),
			Failures: d.Session.Failures(),
		})
	}
	c.JSON(http.StatusOK, response)
}
