// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"encoding/json"
	"net/http"

	"grimm.is/airwall/internal/errors"
	"grimm.is/airwall/internal/manager"
	"grimm.is/airwall/internal/merge"
	"grimm.is/airwall/internal/profile"
	"grimm.is/airwall/internal/store"
)

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	c := s.caller(r)
	priv := s.privileged(c)
	var out []*profile.Profile
	err := s.runner.Do(r.Context(), func(m *manager.Manager) {
		out = m.Profiles(priv)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": out})
}

func (s *Server) handleHiddenProfiles(w http.ResponseWriter, r *http.Request) {
	var out []*profile.Profile
	if err := s.runner.Do(r.Context(), func(m *manager.Manager) {
		out = m.HiddenProfiles()
	}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": out})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id, err := profileID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	c := s.caller(r)
	priv := s.privileged(c)
	var p *profile.Profile
	doErr := s.runner.Do(r.Context(), func(m *manager.Manager) {
		p, err = m.Profile(id, priv)
	})
	if doErr != nil {
		err = doErr
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleAddOrUpdate(w http.ResponseWriter, r *http.Request) {
	// An absent id must mean "no profile", not profile zero.
	external := profile.Profile{ID: profile.InvalidID}
	if err := json.NewDecoder(r.Body).Decode(&external); err != nil {
		writeError(w, errors.Wrap(err, errors.KindValidation, "decode profile"))
		return
	}
	c := s.caller(r)
	var res merge.Result
	if err := s.runner.Do(r.Context(), func(m *manager.Manager) {
		res = m.AddOrUpdate(c, &external)
	}); err != nil {
		writeError(w, err)
		return
	}
	switch res.Status {
	case merge.StatusSuccess:
		status := http.StatusOK
		if res.IsNew {
			status = http.StatusCreated
		}
		writeJSON(w, status, map[string]any{
			"id":      res.ID,
			"new":     res.IsNew,
			"evicted": res.Evicted,
		})
	case merge.StatusNoPermission:
		writeError(w, errors.Errorf(errors.KindPermission, "caller %q may not save this profile", c.Name))
	default:
		writeError(w, errors.Errorf(errors.KindValidation, "profile rejected: %s", res.Status))
	}
}

func (s *Server) handleRemoveProfile(w http.ResponseWriter, r *http.Request) {
	id, err := profileID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	c := s.caller(r)
	doErr := s.runner.Do(r.Context(), func(m *manager.Manager) {
		err = m.Remove(c, id)
	})
	if doErr != nil {
		err = doErr
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleLinkedProfiles(w http.ResponseWriter, r *http.Request) {
	id, err := profileID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var linked []*profile.Profile
	doErr := s.runner.Do(r.Context(), func(m *manager.Manager) {
		linked, err = m.LinkedProfiles(id)
	})
	if doErr != nil {
		err = doErr
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"linked": linked})
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	id, err := profileID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	c := s.caller(r)
	doErr := s.runner.Do(r.Context(), func(m *manager.Manager) {
		err = m.Enable(c, id)
	})
	if doErr != nil {
		err = doErr
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "enabled"})
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	id, err := profileID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		ByService bool `json:"by_service"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, errors.Wrap(err, errors.KindValidation, "decode disable request"))
			return
		}
	}
	c := s.caller(r)
	doErr := s.runner.Do(r.Context(), func(m *manager.Manager) {
		err = m.Disable(c, id, body.ByService)
	})
	if doErr != nil {
		err = doErr
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
}

func (s *Server) handleAutojoin(w http.ResponseWriter, r *http.Request) {
	id, err := profileID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Allowed bool `json:"allowed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.Wrap(err, errors.KindValidation, "decode autojoin request"))
		return
	}
	c := s.caller(r)
	doErr := s.runner.Do(r.Context(), func(m *manager.Manager) {
		err = m.SetAutojoin(c, id, body.Allowed)
	})
	if doErr != nil {
		err = doErr
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFailure(w http.ResponseWriter, r *http.Request) {
	id, err := profileID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.Wrap(err, errors.KindValidation, "decode failure report"))
		return
	}
	reason, ok := profile.ParseDisableReason(body.Reason)
	if !ok || reason == profile.DisableReasonNone {
		writeError(w, errors.Errorf(errors.KindValidation, "unknown failure reason %q", body.Reason))
		return
	}
	doErr := s.runner.Do(r.Context(), func(m *manager.Manager) {
		err = m.ReportFailure(id, reason)
	})
	if doErr != nil {
		err = doErr
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *Server) handleConnectChoice(w http.ResponseWriter, r *http.Request) {
	id, err := profileID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		RSSI int `json:"rssi"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, errors.Wrap(err, errors.KindValidation, "decode connect choice"))
			return
		}
	}
	doErr := s.runner.Do(r.Context(), func(m *manager.Manager) {
		err = m.SetConnectChoice(id, body.RSSI)
	})
	if doErr != nil {
		err = doErr
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleConnected(w http.ResponseWriter, r *http.Request) {
	id, err := profileID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		CaptivePortal bool `json:"captive_portal"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, errors.Wrap(err, errors.KindValidation, "decode connect report"))
			return
		}
	}
	doErr := s.runner.Do(r.Context(), func(m *manager.Manager) {
		err = m.UpdateAfterConnect(id, body.CaptivePortal)
	})
	if doErr != nil {
		err = doErr
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDisconnected(w http.ResponseWriter, r *http.Request) {
	id, err := profileID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	doErr := s.runner.Do(r.Context(), func(m *manager.Manager) {
		err = m.UpdateAfterDisconnect(id)
	})
	if doErr != nil {
		err = doErr
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGateway(w http.ResponseWriter, r *http.Request) {
	id, err := profileID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		MAC string `json:"mac"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.Wrap(err, errors.KindValidation, "decode gateway report"))
		return
	}
	doErr := s.runner.Do(r.Context(), func(m *manager.Manager) {
		err = m.SetDefaultGatewayMAC(id, body.MAC)
	})
	if doErr != nil {
		err = doErr
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRefreshMAC(w http.ResponseWriter, r *http.Request) {
	id, err := profileID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var mac string
	doErr := s.runner.Do(r.Context(), func(m *manager.Manager) {
		mac, err = m.RefreshMAC(id)
	})
	if doErr != nil {
		err = doErr
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mac": mac})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	id, err := profileID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		BSSID     string `json:"bssid"`
		RSSI      int    `json:"rssi"`
		Frequency int    `json:"frequency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.Wrap(err, errors.KindValidation, "decode scan observation"))
		return
	}
	obs := store.Observation{BSSID: body.BSSID, RSSI: body.RSSI, Frequency: body.Frequency}
	doErr := s.runner.Do(r.Context(), func(m *manager.Manager) {
		err = m.RecordScan(id, obs)
	})
	if doErr != nil {
		err = doErr
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSwitchUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		User int `json:"user"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.Wrap(err, errors.KindValidation, "decode user switch"))
		return
	}
	var err error
	doErr := s.runner.Do(r.Context(), func(m *manager.Manager) {
		err = m.SwitchUser(r.Context(), body.User)
	})
	if doErr != nil {
		err = doErr
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": body.User})
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	var err error
	doErr := s.runner.Do(r.Context(), func(m *manager.Manager) {
		err = m.SaveToStore(r.Context())
	})
	if doErr != nil {
		err = doErr
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}
