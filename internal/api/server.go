// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package api exposes the registry over local HTTP. Callers identify
// themselves with the X-Caller-UID and X-Caller-Name headers; the
// listener is expected to be bound to localhost or a unix socket behind
// an authenticating proxy.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/airwall/internal/errors"
	"grimm.is/airwall/internal/logging"
	"grimm.is/airwall/internal/manager"
	"grimm.is/airwall/internal/permission"
	"grimm.is/airwall/internal/profile"
)

// Server serves the registry API.
type Server struct {
	runner     *manager.Runner
	dir        permission.Directory
	router     *mux.Router
	httpServer *http.Server
	logger     *logging.Logger
}

// NewServer creates the API server over the registry runner.
func NewServer(runner *manager.Runner, dir permission.Directory) *Server {
	s := &Server{
		runner: runner,
		dir:    dir,
		router: mux.NewRouter(),
		logger: logging.WithComponent("api"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/profiles", s.handleListProfiles).Methods("GET")
	api.HandleFunc("/profiles", s.handleAddOrUpdate).Methods("POST")
	api.HandleFunc("/profiles/hidden", s.handleHiddenProfiles).Methods("GET")
	api.HandleFunc("/profiles/{id}", s.handleGetProfile).Methods("GET")
	api.HandleFunc("/profiles/{id}", s.handleRemoveProfile).Methods("DELETE")
	api.HandleFunc("/profiles/{id}/linked", s.handleLinkedProfiles).Methods("GET")

	api.HandleFunc("/profiles/{id}/enable", s.handleEnable).Methods("POST")
	api.HandleFunc("/profiles/{id}/disable", s.handleDisable).Methods("POST")
	api.HandleFunc("/profiles/{id}/autojoin", s.handleAutojoin).Methods("POST")
	api.HandleFunc("/profiles/{id}/failure", s.handleFailure).Methods("POST")
	api.HandleFunc("/profiles/{id}/choice", s.handleConnectChoice).Methods("POST")

	api.HandleFunc("/profiles/{id}/connected", s.handleConnected).Methods("POST")
	api.HandleFunc("/profiles/{id}/disconnected", s.handleDisconnected).Methods("POST")
	api.HandleFunc("/profiles/{id}/gateway", s.handleGateway).Methods("POST")
	api.HandleFunc("/profiles/{id}/mac/refresh", s.handleRefreshMAC).Methods("POST")
	api.HandleFunc("/profiles/{id}/scan", s.handleScan).Methods("POST")

	api.HandleFunc("/users/switch", s.handleSwitchUser).Methods("POST")
	api.HandleFunc("/flush", s.handleFlush).Methods("POST")

	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves on addr until Stop is called.
func (s *Server) Start(addr string) {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	go func() {
		s.logger.Info("api server listening", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("api server error", "error", err)
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() {
	if s.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.httpServer.Shutdown(ctx)
}

// caller extracts the requesting identity from the trusted headers.
func (s *Server) caller(r *http.Request) permission.Caller {
	uid, _ := strconv.Atoi(r.Header.Get("X-Caller-UID"))
	return permission.Caller{
		UID:  uid,
		Name: r.Header.Get("X-Caller-Name"),
	}
}

// privileged reports whether the caller may see credential material.
func (s *Server) privileged(c permission.Caller) bool {
	return s.dir.IsSettings(c) || s.dir.IsNetworkService(c)
}

func profileID(r *http.Request) (profile.ID, error) {
	raw := mux.Vars(r)["id"]
	n, err := strconv.Atoi(raw)
	if err != nil {
		return profile.InvalidID, errors.Errorf(errors.KindValidation, "bad profile id %q", raw)
	}
	return profile.ID(n), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetKind(err) {
	case errors.KindValidation:
		status = http.StatusBadRequest
	case errors.KindNotFound:
		status = http.StatusNotFound
	case errors.KindPermission:
		status = http.StatusForbidden
	case errors.KindConflict:
		status = http.StatusConflict
	case errors.KindUnavailable:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
