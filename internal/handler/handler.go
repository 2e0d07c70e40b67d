package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angeloszaimis/instance-balancer/internal/forwarder"
	"github.com/angeloszaimis/instance-balancer/internal/instance"
	"github.com/angeloszaimis/instance-balancer/internal/loadbalancer"
	"github.com/angeloszaimis/instance-balancer/internal/metrics"
	"github.com/angeloszaimis/instance-balancer/internal/middleware"
	"github.com/angeloszaimis/instance-balancer/internal/pool"
)

const (
	forwardPrefix = "/forward"

	reasonNoInstances = "no healthy instances available"
	reasonUnreachable = "instance unreachable"
)

type LoadBalancerHandler struct {
	logger           *slog.Logger
	balancer         *loadbalancer.LoadBalancer
	pool             *pool.Pool
	forwarder        *forwarder.Forwarder
	metricsCollector *metrics.Collector
}

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type addInstanceRequest struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// Forward dispatches any method on /forward/{path...} to the same path on the
// selected instance. The path is passed on still escaped.
func (h *LoadBalancerHandler) Forward(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.EscapedPath(), forwardPrefix)
	if path == "" {
		path = "/"
	}
	h.dispatch(w, r, path)
}

// Process is the shortcut for the instances' work endpoint.
func (h *LoadBalancerHandler) Process(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, "/process")
}

func (h *LoadBalancerHandler) dispatch(w http.ResponseWriter, r *http.Request, path string) {
	clientIP := middleware.ClientIP(r)

	selected, err := h.balancer.Select()
	if err != nil {
		h.logger.Warn("No healthy instances available",
			slog.String("client", clientIP),
			slog.String("path", path))
		h.metricsCollector.Emit(metrics.MetricEvent{Type: metrics.EventPoolEmpty})
		writeError(w, http.StatusServiceUnavailable, reasonNoInstances)
		return
	}

	h.metricsCollector.Emit(metrics.MetricEvent{
		Type:     metrics.EventInstanceSelected,
		Instance: selected.HostPort(),
	})

	h.logger.Info("Forwarding to instance",
		slog.String("client", clientIP),
		slog.String("instance", selected.HostPort()),
		slog.String("method", r.Method),
		slog.String("path", path))

	var body io.Reader
	if r.ContentLength != 0 {
		body = r.Body
	}

	start := time.Now()
	res, err := h.forwarder.Forward(r.Context(), selected, forwarder.Request{
		Method:        r.Method,
		Path:          path,
		RawQuery:      r.URL.RawQuery,
		Header:        r.Header,
		Body:          body,
		ContentLength: r.ContentLength,
		RemoteAddr:    r.RemoteAddr,
	})
	duration := time.Since(start)

	// a cancelled client context is not an instance failure
	if err != nil && r.Context().Err() != nil {
		h.logger.Debug("Client went away during forwarding",
			slog.String("client", clientIP),
			slog.String("instance", selected.HostPort()),
			slog.Any("err", r.Context().Err()))
		return
	}

	if errors.Is(err, forwarder.ErrInstanceUnreachable) {
		h.logger.Warn("Instance unreachable",
			slog.String("instance", selected.HostPort()),
			slog.Any("err", err))
		h.metricsCollector.Emit(metrics.MetricEvent{
			Type:     metrics.EventForwardFailed,
			Instance: selected.HostPort(),
			Duration: duration,
		})
		writeError(w, http.StatusServiceUnavailable, reasonUnreachable)
		return
	}
	if err != nil {
		h.logger.Error("Failed to forward request",
			slog.String("instance", selected.HostPort()),
			slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "failed to forward request")
		return
	}

	h.metricsCollector.Emit(metrics.MetricEvent{
		Type:       metrics.EventForwardCompleted,
		Instance:   selected.HostPort(),
		Duration:   duration,
		StatusCode: res.StatusCode,
	})

	for key, values := range res.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.Header().Set("X-Backend-Server", selected.HostPort())
	w.WriteHeader(res.StatusCode)
	_, _ = w.Write(res.Body)
}

// PoolStatus lists every instance with its health flag, in pool order.
func (h *LoadBalancerHandler) PoolStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pool.Snapshot())
}

// AddInstance appends an instance given as JSON or as form fields.
func (h *LoadBalancerHandler) AddInstance(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAddInstance(r)
	if err == nil {
		if verr := instance.Validate(req.Address, req.Port); verr != nil {
			err = &InvalidAdminInput{Field: "instance", Err: verr}
		}
	}
	if err != nil {
		h.logger.Warn("Rejected instance", slog.Any("err", err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.pool.Add(req.Address, req.Port)

	h.logger.Info("Instance added",
		slog.String("address", req.Address),
		slog.Int("port", req.Port))

	writeJSON(w, http.StatusCreated, statusResponse{Status: "added"})
}

// RemoveInstance drops the instance at {index}, or at the "index" form field
// when the route carries none. An index outside the pool is not an error;
// the pool is simply left as it was.
func (h *LoadBalancerHandler) RemoveInstance(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("index")
	if raw == "" {
		raw = r.FormValue("index")
	}

	index, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		err = &InvalidAdminInput{Field: "index", Err: err}
		h.logger.Warn("Rejected removal", slog.Any("err", err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.pool.Remove(index) {
		h.logger.Debug("Removal index out of range", slog.Int("index", index))
		writeJSON(w, http.StatusOK, statusResponse{Status: "unchanged"})
		return
	}

	h.logger.Info("Instance removed", slog.Int("index", index))
	writeJSON(w, http.StatusOK, statusResponse{Status: "removed"})
}

func decodeAddInstance(r *http.Request) (addInstanceRequest, error) {
	var req addInstanceRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseForm(); err != nil {
			return req, &InvalidAdminInput{Field: "body", Err: err}
		}

		req.Address = r.FormValue("address")
		if req.Address == "" {
			req.Address = r.FormValue("ip")
		}

		port, err := strconv.Atoi(r.FormValue("port"))
		if err != nil {
			return req, &InvalidAdminInput{Field: "port", Err: err}
		}
		req.Port = port

	default:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, &InvalidAdminInput{Field: "body", Err: err}
		}
	}

	req.Address = strings.TrimSpace(req.Address)
	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, errorResponse{Error: reason})
}

func NewLoadBalancerHandler(logger *slog.Logger, lb *loadbalancer.LoadBalancer, fwd *forwarder.Forwarder, collector *metrics.Collector) *LoadBalancerHandler {
	return &LoadBalancerHandler{
		logger:           logger,
		balancer:         lb,
		pool:             lb.Pool(),
		forwarder:        fwd,
		metricsCollector: collector,
	}
}
