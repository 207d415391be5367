package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"

	"qacc/internal/donations"
	"qacc/internal/round"
)

func param(r *http.Request, name string) string {
	return strings.TrimSpace(httprouter.ParamsFromContext(r.Context()).ByName(name))
}

// projectIDParam reads the :projectID path segment. Non-positive ids are
// left for the services to reject.
func projectIDParam(r *http.Request) (int, error) {
	raw := param(r, "projectID")
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: project id %q is not a number", errBadRequest, raw)
	}
	return id, nil
}

func boolQuery(r *http.Request, name string, def bool) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be true or false", errBadRequest, name)
	}
	return v, nil
}

func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, name)
	}
	return v, nil
}

func floatQuery(r *http.Request, name string) (float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative number", errBadRequest, name)
	}
	return v, nil
}

// roundQuery reads roundType and roundNumber. ok is false when neither is
// given, meaning the most recently ended round applies.
func roundQuery(r *http.Request) (kind round.Kind, number int, ok bool, err error) {
	q := r.URL.Query()
	rawKind := strings.TrimSpace(q.Get("roundType"))
	rawNumber := strings.TrimSpace(q.Get("roundNumber"))
	if rawKind == "" && rawNumber == "" {
		return "", 0, false, nil
	}
	if rawKind == "" || rawNumber == "" {
		return "", 0, false, fmt.Errorf("%w: roundType and roundNumber go together", errBadRequest)
	}
	kind, err = round.ParseKind(rawKind)
	if err != nil {
		return "", 0, false, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	number, err = strconv.Atoi(rawNumber)
	if err != nil || number < 0 {
		return "", 0, false, fmt.Errorf("%w: roundNumber must be a non-negative integer", errBadRequest)
	}
	return kind, number, true, nil
}

func donationsQuery(r *http.Request) (donations.Query, error) {
	projectID, err := projectIDParam(r)
	if err != nil {
		return donations.Query{}, err
	}
	userID := param(r, "userID")
	if userID == "" {
		return donations.Query{}, fmt.Errorf("%w: user id is required", errBadRequest)
	}
	page, err := intQuery(r, "page", 0)
	if err != nil {
		return donations.Query{}, err
	}
	total, err := floatQuery(r, "totalContributions")
	if err != nil {
		return donations.Query{}, err
	}
	q := r.URL.Query()
	order, err := donations.ParseOrder(q.Get("orderBy"), q.Get("direction"))
	if err != nil {
		return donations.Query{}, err
	}
	return donations.Query{
		ProjectID:          projectID,
		UserID:             userID,
		Page:               page,
		Order:              order,
		TokenTicker:        strings.TrimSpace(q.Get("tokenTicker")),
		TotalContributions: total,
	}, nil
}
