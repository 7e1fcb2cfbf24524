// Package server exposes the manager, registry and scheduler over HTTP.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/procorg/procorg/internal/auth"
	"github.com/procorg/procorg/internal/manager"
	"github.com/procorg/procorg/internal/metrics"
	"github.com/procorg/procorg/internal/registry"
	"github.com/procorg/procorg/internal/scheduler"
)

// Router provides embeddable HTTP handlers for the tool's API.
// Endpoints (under basePath, default ""):
//
//	GET    /api/processes                 list all statuses
//	POST   /api/processes                 register (Definition JSON)
//	GET    /api/processes/:name           single status
//	PATCH  /api/processes/:name           partial definition update
//	DELETE /api/processes/:name           unregister
//	POST   /api/processes/:name/run       run now (optional {"args": [...]})
//	POST   /api/processes/:name/stop      stop the running execution
//	GET    /api/processes/:name/logs/:stream   ?lines=N&execution_id=...
//	GET    /api/scheduler                 scheduler state and entries
//	POST   /api/scheduler/start
//	POST   /api/scheduler/stop
//	GET    /metrics                       Prometheus scrape
//	GET    /healthz
type Router struct {
	reg      *registry.Registry
	mgr      *manager.Manager
	sched    *scheduler.Scheduler
	basePath string
}

func NewRouter(reg *registry.Registry, mgr *manager.Manager, sched *scheduler.Scheduler, basePath string) *Router {
	return &Router{reg: reg, mgr: mgr, sched: sched, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server or mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/api/processes", r.handleList)
	group.POST("/api/processes", r.handleRegister)
	group.GET("/api/processes/:name", r.handleStatus)
	group.PATCH("/api/processes/:name", r.handleUpdate)
	group.DELETE("/api/processes/:name", r.handleUnregister)
	group.POST("/api/processes/:name/run", r.handleRun)
	group.POST("/api/processes/:name/stop", r.handleStop)
	group.GET("/api/processes/:name/logs/:stream", r.handleLogs)
	group.GET("/api/scheduler", r.handleSchedulerInfo)
	group.POST("/api/scheduler/start", r.handleSchedulerStart)
	group.POST("/api/scheduler/stop", r.handleSchedulerStop)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	group.GET("/healthz", func(c *gin.Context) { writeJSON(c, http.StatusOK, okResp{OK: true}) })
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, r *Router) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "addr", addr, "error", err)
		}
	}()
	return server
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleList(c *gin.Context) {
	sts, err := r.mgr.AllStatuses()
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, sts)
}

func (r *Router) handleRegister(c *gin.Context) {
	var def registry.Definition
	if err := c.ShouldBindJSON(&def); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if !isSafeName(def.Name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid name: allowed [A-Za-z0-9._-] and no '..' or path separators"})
		return
	}
	if !filepath.IsAbs(def.ScriptPath) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "script_path must be absolute"})
		return
	}
	if def.Owner == "" {
		id, err := auth.Current()
		if err != nil {
			writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
			return
		}
		def.Owner = id.Username
		def.OwnerUID = id.UID
	} else {
		id, err := auth.Lookup(def.Owner)
		if err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "unknown owner: " + def.Owner})
			return
		}
		def.OwnerUID = id.UID
	}
	if err := r.reg.Register(def); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusCreated, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	name := c.Param("name")
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid name"})
		return
	}
	st, err := r.mgr.Status(name)
	if err != nil {
		if errors.Is(err, manager.ErrNotRegistered) {
			writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleUpdate(c *gin.Context) {
	name := c.Param("name")
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid name"})
		return
	}
	var fields map[string]any
	if err := c.ShouldBindJSON(&fields); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	ok, err := r.reg.Update(name, fields)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "process not registered: " + name})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleUnregister(c *gin.Context) {
	name := c.Param("name")
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid name"})
		return
	}
	ok, err := r.reg.Unregister(name)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "process not registered: " + name})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

type runRequest struct {
	Args []string `json:"args"`
}

func (r *Router) handleRun(c *gin.Context) {
	name := c.Param("name")
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid name"})
		return
	}
	var req runRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
			return
		}
	}
	e, err := r.mgr.Run(name, req.Args...)
	if err != nil {
		switch {
		case errors.Is(err, manager.ErrNotRegistered):
			writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
		case errors.Is(err, manager.ErrDisabled):
			writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
		default:
			writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		}
		return
	}
	writeJSON(c, http.StatusAccepted, e.Record())
}

func (r *Router) handleStop(c *gin.Context) {
	name := c.Param("name")
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid name"})
		return
	}
	if !r.mgr.Stop(name) {
		writeJSON(c, http.StatusConflict, errorResp{Error: "no running execution for " + name})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

type logsResp struct {
	Name        string `json:"name"`
	ExecutionID string `json:"execution_id"`
	Stream      string `json:"stream"`
	Content     string `json:"content"`
}

func (r *Router) handleLogs(c *gin.Context) {
	name := c.Param("name")
	stream := c.Param("stream")
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid name"})
		return
	}
	lines := 0
	if s := c.Query("lines"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "lines must be a non-negative integer"})
			return
		}
		lines = n
	}

	id := c.Query("execution_id")
	var content string
	var err error
	if id != "" {
		if !isSafeName(id) {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid execution_id"})
			return
		}
		content, err = r.mgr.ExecutionLogs(name, id, stream, lines)
	} else {
		id = r.mgr.LatestExecutionID(name)
		content, err = r.mgr.LatestLogs(name, stream, lines)
	}
	if err != nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, logsResp{Name: name, ExecutionID: id, Stream: stream, Content: content})
}

type schedulerResp struct {
	Running bool              `json:"running"`
	Entries []scheduler.Entry `json:"entries"`
}

func (r *Router) handleSchedulerInfo(c *gin.Context) {
	entries, err := r.sched.Info()
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, schedulerResp{Running: r.sched.Running(), Entries: entries})
}

func (r *Router) handleSchedulerStart(c *gin.Context) {
	if err := r.sched.Start(); err != nil {
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleSchedulerStop(c *gin.Context) {
	r.sched.Stop()
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
