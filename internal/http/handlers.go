package http

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"qacc/internal/core"
	applog "qacc/internal/log"
	"qacc/internal/round"
	"qacc/internal/uploads"
)

type (
	recentRoundResponse struct {
		Round *round.View `json:"round"`
	}

	capResponse struct {
		core.CapResult
		Round *round.View `json:"round"`
	}
)

func (s *Server) handleRecentEndedRound(w http.ResponseWriter, r *http.Request) {
	rd, err := s.deps.Rounds.MostRecentEnded(r.Context())
	if err != nil {
		writeError(w, r, err, applog.OpSelectRound)
		return
	}
	resp := recentRoundResponse{}
	if rd != nil {
		v := round.NewView(rd)
		resp.Round = &v
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleProjectCap answers with the remaining cap of a project. Without
// roundType and roundNumber the most recently ended round is used; when no
// round has ended the cap is zero and round is null.
func (s *Server) handleProjectCap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID, err := projectIDParam(r)
	if err != nil {
		writeError(w, r, err, applog.OpCalculateCap)
		return
	}
	includeCumulative, err := boolQuery(r, "includeCumulative", false)
	if err != nil {
		writeError(w, r, err, applog.OpCalculateCap)
		return
	}
	kind, number, explicit, err := roundQuery(r)
	if err != nil {
		writeError(w, r, err, applog.OpCalculateCap)
		return
	}

	var active core.Round
	if explicit {
		active, err = s.deps.Rounds.FindRound(ctx, kind, number)
	} else {
		active, err = s.deps.Rounds.MostRecentEnded(ctx)
	}
	if err != nil {
		writeError(w, r, err, applog.OpCalculateCap)
		return
	}

	resp := capResponse{}
	if active != nil {
		res, err := s.deps.Rounds.CalculateCap(ctx, active, projectID, includeCumulative)
		if err != nil {
			writeError(w, r, err, applog.OpCalculateCap)
			return
		}
		v := round.NewView(active)
		resp.CapResult, resp.Round = res, &v
	} else if projectID <= 0 {
		writeError(w, r, core.ErrInvalidProjectID, applog.OpCalculateCap)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleDonationCap(w http.ResponseWriter, r *http.Request) {
	projectID, err := projectIDParam(r)
	if err == nil && projectID <= 0 {
		err = core.ErrInvalidProjectID
	}
	if err != nil {
		writeError(w, r, err, applog.OpCalculateCap)
		return
	}
	c, err := s.deps.DonationCaps.ProjectUserDonationCap(r.Context(), projectID)
	if err != nil {
		writeError(w, r, err, applog.OpCalculateCap)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

func (s *Server) handleUserDonations(w http.ResponseWriter, r *http.Request) {
	q, err := donationsQuery(r)
	if err != nil {
		writeError(w, r, err, applog.OpListDonation)
		return
	}
	page, err := s.deps.Donations.UserDonations(r.Context(), q)
	if err != nil {
		writeError(w, r, err, applog.OpListDonation)
		return
	}
	writeJSON(w, r, http.StatusOK, page)
}

func (s *Server) handlePassportStatus(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Passport.Status(r.Context(), param(r, "address"))
	if err != nil {
		writeError(w, r, err, applog.OpCheckScore)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) handlePassportCheck(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Passport.CheckScore(r.Context(), param(r, "address"))
	if err != nil {
		writeError(w, r, err, applog.OpCheckScore)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handleUpload accepts one image in the multipart field "file". When the
// first pin attempt fails the upload is answered with 202 and retried in
// the background.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctype, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || ctype != "multipart/form-data" {
		writeError(w, r, fmt.Errorf("%w: expected multipart/form-data", errBadRequest), applog.OpUpload)
		return
	}

	// Leave room for the multipart envelope around the file.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+64<<10)
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %w", errBadRequest, err), applog.OpUpload)
		return
	}

	for {
		part, err := mr.NextPart()
		if err != nil {
			writeError(w, r, uploadReadError(err), applog.OpUpload)
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}

		up, err := s.deps.Uploads.Upload(r.Context(), part.FileName(), part.Header.Get("Content-Type"), part)
		_ = part.Close()
		switch {
		case err == nil:
			writeJSON(w, r, http.StatusCreated, up)
		case errors.Is(err, uploads.ErrPinQueued):
			s.logger.WarnContext(r.Context(), "Upload stored, pin queued", applog.FieldUploadID, up.ID, "error", err)
			writeJSON(w, r, http.StatusAccepted, up)
		default:
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				err = uploads.ErrTooLarge
			}
			writeError(w, r, err, applog.OpUpload)
		}
		return
	}
}

func uploadReadError(err error) error {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return uploads.ErrTooLarge
	case errors.Is(err, io.EOF):
		return fmt.Errorf("%w: missing file field", errBadRequest)
	default:
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
}

func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	up, err := s.deps.Uploads.Get(r.Context(), param(r, "id"))
	if err != nil {
		writeError(w, r, err, applog.OpUpload)
		return
	}
	writeJSON(w, r, http.StatusOK, up)
}

func (s *Server) handleDeleteUpload(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Uploads.Delete(r.Context(), param(r, "id")); err != nil {
		writeError(w, r, err, applog.OpUpload)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
