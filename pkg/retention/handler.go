package retention

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/apperror"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/httpx"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/reading"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/timerange"
)

// Handler serves the retention settings and the purge task trigger.
type Handler struct {
	purger *Purger
}

// NewHandler creates a retention handler
func NewHandler(purger *Purger) *Handler {
	return &Handler{purger: purger}
}

// PolicyRequest is the body of POST /v1/retention. Hours may be an
// integer or a duration string such as "168h" or "7d".
type PolicyRequest struct {
	DataClass string          `json:"data_class"`
	Hours     json.RawMessage `json:"hours"`
}

// PoliciesResponse lists every class policy
type PoliciesResponse struct {
	Policies []reading.RetentionPolicy `json:"policies"`
}

// HandlePolicies serves GET /v1/retention
func (h *Handler) HandlePolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.purger.Policies(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, PoliciesResponse{Policies: policies})
}

// HandleUpdatePolicy serves POST /v1/retention
func (h *Handler) HandleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var req PolicyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		httpx.RespondErrorString(w, apperror.KindInvalidRequest, "invalid JSON body")
		return
	}

	class, err := reading.ParseDataClass(req.DataClass)
	if err != nil {
		httpx.RespondErrorString(w, apperror.KindInvalidRetentionPolicy, "data_class must be sensor or diagnostic")
		return
	}

	hours, err := parseHours(req.Hours)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	if err := h.purger.UpdatePolicy(r.Context(), class, hours); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, reading.RetentionPolicy{DataClass: class, Hours: hours})
}

func parseHours(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, apperror.New(apperror.KindInvalidRetentionPolicy, "hours is required")
	}

	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		hours, err := timerange.ParseHours(s)
		if err != nil {
			return 0, apperror.Wrap(apperror.KindInvalidRetentionPolicy,
				fmt.Sprintf("hours %q is not a valid duration", s), err)
		}
		return hours, nil
	}

	return 0, apperror.New(apperror.KindInvalidRetentionPolicy, "hours must be an integer")
}

// HandlePurge serves the purge task trigger. Every class is purged; the
// response is 200 only if all succeeded, 409 if the only failures were
// purges already in progress, 500 otherwise.
func (h *Handler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	summary := h.purger.PurgeAll(r.Context())

	status := http.StatusOK
	if !summary.Success {
		status = http.StatusConflict
		for _, res := range summary.Results {
			if res.Err() != nil && apperror.KindOf(res.Err()) != apperror.KindPurgeInProgress {
				status = http.StatusInternalServerError
				break
			}
		}
	}
	httpx.RespondJSON(w, status, summary)
}
