package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"patscan/internal/clock"
)

// Outcome is the closed set of validation classifications.
type Outcome int

const (
	OutcomeValid Outcome = iota
	OutcomeInvalid
	OutcomeRateLimited
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValid:
		return "valid"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeRateLimited:
		return "rate_limited"
	default:
		return "error"
	}
}

// Validation is the classified result of checking one candidate against the
// authority endpoint. Login is set for valid tokens; Cause for errors.
type Validation struct {
	Outcome Outcome
	Login   string
	Cause   string
}

// Validator checks candidate tokens against the GitHub "who am I" endpoint.
type Validator struct {
	http    *http.Client
	clock   clock.Clock
	baseURL string
}

func NewValidator(hc *http.Client, clk clock.Clock, baseURL string) *Validator {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &Validator{http: hc, clock: clk, baseURL: strings.TrimRight(baseURL, "/")}
}

// Validate classifies one candidate. Failures never escalate past the
// candidate: anything unexpected degrades to OutcomeError and is logged by
// the caller.
func (v *Validator) Validate(ctx context.Context, token string) Validation {
	// Randomized pre-call delay so validation traffic does not form a
	// detectable burst pattern.
	v.clock.Sleep(time.Duration(500+rand.Intn(1000)) * time.Millisecond)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/user", nil)
	if err != nil {
		return Validation{Outcome: OutcomeError, Cause: err.Error()}
	}
	req.Header.Set("Authorization", "token "+token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := v.http.Do(req)
	if err != nil {
		return Validation{Outcome: OutcomeError, Cause: fmt.Sprintf("network: %v", err)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var user struct {
			Login string `json:"login"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
			slog.WarnContext(ctx, "valid token but unparseable user payload", "error", err)
		}
		return Validation{Outcome: OutcomeValid, Login: user.Login}
	case http.StatusUnauthorized, http.StatusForbidden:
		return Validation{Outcome: OutcomeInvalid}
	case http.StatusTooManyRequests:
		return Validation{Outcome: OutcomeRateLimited}
	default:
		return Validation{Outcome: OutcomeError, Cause: fmt.Sprintf("status_%d", resp.StatusCode)}
	}
}
