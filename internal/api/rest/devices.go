package rest

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/KevinKickass/et7000d/internal/device"
	"github.com/KevinKickass/et7000d/internal/devices"
	"github.com/KevinKickass/et7000d/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type channelInfo struct {
	Channel   int     `json:"channel"`
	RangeCode string  `json:"range_code,omitempty"`
	Units     string  `json:"units,omitempty"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Enabled   bool    `json:"enabled"`
	Regime    string  `json:"regime,omitempty"`
}

type writeChannelRequest struct {
	Value *float64 `json:"value" binding:"required"`
}

type writeGroupRequest struct {
	Values []float64 `json:"values" binding:"required"`
}

type modbusReadRequest struct {
	Address *int `json:"address" binding:"required"`
	Count   int  `json:"count"`
}

type modbusWriteRequest struct {
	Address *int     `json:"address" binding:"required"`
	Values  []uint16 `json:"values" binding:"required"`
}

func deviceSummary(d *devices.Device) gin.H {
	s := d.Session
	return gin.H{
		"id":      d.ID(),
		"name":    d.Config.Name,
		"address": d.Config.Endpoint(),
		"type":    s.TypeName(),
		"online":  s.Online(),
		"counts": gin.H{
			"ai": s.Count(device.AI),
			"ao": s.Count(device.AO),
			"di": s.Count(device.DI),
			"do": s.Count(device.DO),
		},
	}
}

// GET /api/v1/devices
func (s *Server) listDevices(c *gin.Context) {
	list := s.lm.DeviceManager().ListDevices()

	response := make([]gin.H, 0, len(list))
	for _, d := range list {
		response = append(response, deviceSummary(d))
	}

	c.JSON(http.StatusOK, gin.H{
		"devices": response,
		"count":   len(response),
	})
}

// GET /api/v1/devices/:id
func (s *Server) getDevice(c *gin.Context) {
	d, ok := s.lookupDevice(c)
	if !ok {
		return
	}

	topo := d.Session.Snapshot()
	groups := gin.H{}
	for _, g := range device.Groups {
		channels := make([]channelInfo, 0, topo.Count(g))
		for k, ch := range topo.Channels(g) {
			if !ch.Enabled && !d.Config.ShowDisabledChannels {
				continue
			}
			info := channelInfo{
				Channel: k,
				Min:     ch.Range.Min,
				Max:     ch.Range.Max,
				Enabled: ch.Enabled,
			}
			if g.Analog() {
				info.RangeCode = fmt.Sprintf("0x%02X", ch.RangeCode)
				info.Units = ch.Range.Units
				info.Regime = ch.Conv.Kind.String()
			}
			channels = append(channels, info)
		}
		groups[g.String()] = gin.H{
			"count":    topo.Count(g),
			"channels": channels,
		}
	}

	response := deviceSummary(d)
	response["groups"] = groups
	if snap, ok := d.LastSnapshot(); ok {
		response["last_poll"] = snap.Timestamp
	}
	c.JSON(http.StatusOK, response)
}

// GET /api/v1/devices/:id/:group
func (s *Server) readGroup(c *gin.Context) {
	d, g, ok := s.lookupGroup(c)
	if !ok {
		return
	}

	values := d.Session.ReadAll(c.Request.Context(), g)
	c.JSON(http.StatusOK, gin.H{
		"device": d.Config.Name,
		"group":  g.String(),
		"values": devices.Values(values),
	})
}

// PUT /api/v1/devices/:id/:group
func (s *Server) writeGroup(c *gin.Context) {
	d, g, ok := s.lookupGroup(c)
	if !ok {
		return
	}
	if !g.Writable() {
		c.JSON(http.StatusConflict, types.NewErrorResponse(types.CodeReadOnly, "group is not writable", g.String()))
		return
	}

	var req writeGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "Invalid request body", err.Error()))
		return
	}
	if n := d.Session.Count(g); len(req.Values) != n {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest,
			fmt.Sprintf("expected %d values", n), len(req.Values)))
		return
	}

	if !d.Session.WriteAll(c.Request.Context(), g, req.Values) {
		c.JSON(http.StatusBadGateway, types.NewErrorResponse(types.CodeDeviceFailed, "write failed", d.Config.Name))
		return
	}
	c.JSON(http.StatusOK, gin.H{"written": len(req.Values)})
}

// GET /api/v1/devices/:id/:group/:channel
func (s *Server) readChannel(c *gin.Context) {
	d, g, k, ok := s.lookupChannel(c)
	if !ok {
		return
	}

	r, found := d.Session.ReadChannel(c.Request.Context(), g, k)
	if !found {
		channelGone(c, k)
		return
	}
	response := gin.H{
		"device":  d.Config.Name,
		"group":   g.String(),
		"channel": k,
		"value":   devices.Value(r.Value),
		"raw":     r.Raw,
		"enabled": r.Enabled,
		"ok":      r.OK,
	}
	if g.Analog() {
		response["units"] = r.Units
	}
	c.JSON(http.StatusOK, response)
}

// PUT /api/v1/devices/:id/:group/:channel
func (s *Server) writeChannel(c *gin.Context) {
	d, g, k, ok := s.lookupChannel(c)
	if !ok {
		return
	}
	if !g.Writable() {
		c.JSON(http.StatusConflict, types.NewErrorResponse(types.CodeReadOnly, "channel is not writable", g.String()))
		return
	}

	var req writeChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "Invalid request body", err.Error()))
		return
	}

	written, found := d.Session.WriteChannel(c.Request.Context(), g, k, *req.Value)
	if !found {
		channelGone(c, k)
		return
	}
	if !written {
		c.JSON(http.StatusBadGateway, types.NewErrorResponse(types.CodeDeviceFailed, "write failed", d.Config.Name))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"channel": k,
		"value":   *req.Value,
	})
}

// POST /api/v1/devices/:id/reconnect
func (s *Server) reconnectDevice(c *gin.Context) {
	d, ok := s.lookupDevice(c)
	if !ok {
		return
	}

	if err := d.Session.Reconnect(c.Request.Context()); err != nil {
		s.logger.Warn("Reconnect failed", zap.String("device", d.Config.Name), zap.Error(err))
		c.JSON(http.StatusBadGateway, types.NewErrorResponse(types.CodeDeviceFailed, "reconnect failed", err.Error()))
		return
	}

	s.logger.Info("Device reconnected", zap.String("device", d.Config.Name))
	c.JSON(http.StatusOK, deviceSummary(d))
}

// POST /api/v1/devices/:id/modbus/read
func (s *Server) readModbus(c *gin.Context) {
	d, ok := s.lookupDevice(c)
	if !ok {
		return
	}

	var req modbusReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "Invalid request body", err.Error()))
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}

	values, err := d.Session.ReadAddress(c.Request.Context(), *req.Address, req.Count)
	if err != nil {
		s.modbusError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address": *req.Address,
		"values":  values,
	})
}

// POST /api/v1/devices/:id/modbus/write
func (s *Server) writeModbus(c *gin.Context) {
	d, ok := s.lookupDevice(c)
	if !ok {
		return
	}

	var req modbusWriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "Invalid request body", err.Error()))
		return
	}

	if err := d.Session.WriteAddress(c.Request.Context(), *req.Address, req.Values); err != nil {
		s.modbusError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address": *req.Address,
		"written": len(req.Values),
	})
}

func (s *Server) modbusError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, device.ErrReadOnly):
		c.JSON(http.StatusConflict, types.NewErrorResponse(types.CodeReadOnly, "register class is read-only", err.Error()))
	case errors.Is(err, device.ErrAddress):
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "invalid address", err.Error()))
	default:
		c.JSON(http.StatusBadGateway, types.NewErrorResponse(types.CodeDeviceFailed, "modbus request failed", err.Error()))
	}
}

func (s *Server) lookupDevice(c *gin.Context) (*devices.Device, bool) {
	key := c.Param("id")
	d, ok := s.lm.DeviceManager().Lookup(key)
	if !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.CodeNotFound, "device not found", key))
		return nil, false
	}
	return d, true
}

func (s *Server) lookupGroup(c *gin.Context) (*devices.Device, device.Group, bool) {
	d, ok := s.lookupDevice(c)
	if !ok {
		return nil, 0, false
	}
	g, err := device.ParseGroup(c.Param("group"))
	if err != nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.CodeChannel, "unknown group", err.Error()))
		return nil, 0, false
	}
	return d, g, true
}

func (s *Server) lookupChannel(c *gin.Context) (*devices.Device, device.Group, int, bool) {
	d, g, ok := s.lookupGroup(c)
	if !ok {
		return nil, 0, 0, false
	}
	k, err := strconv.Atoi(c.Param("channel"))
	if err != nil || k < 0 || k >= d.Session.Count(g) {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.CodeChannel, "channel not found", c.Param("channel")))
		return nil, 0, 0, false
	}
	return d, g, k, true
}

// channelGone answers a request whose channel disappeared between lookup and
// I/O, e.g. because the device went offline.
func channelGone(c *gin.Context, k int) {
	c.JSON(http.StatusNotFound, types.NewErrorResponse(types.CodeChannel, "channel not found", k))
}
