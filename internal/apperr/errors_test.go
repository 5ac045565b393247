package apperr

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindMalformed, http.StatusBadRequest},
		{KindSecurity, http.StatusBadRequest},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindRateLimit, http.StatusTooManyRequests},
		{KindPrediction, http.StatusInternalServerError},
		{KindInternal, http.StatusInternalServerError},
		{Kind("Unmapped"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			if got := New(tc.kind, "x").HTTPStatusCode(); got != tc.want {
				t.Errorf("status = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestHTTPStatusCode_ExplicitOverride(t *testing.T) {
	err := New("MethodNotAllowed", "nope").WithStatusCode(http.StatusMethodNotAllowed)
	if got := err.HTTPStatusCode(); got != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", got)
	}
}

func TestError_String(t *testing.T) {
	plain := Validation("Missing required field: disease")
	if got := plain.Error(); got != "ValidationError: Missing required field: disease" {
		t.Errorf("Error() = %q", got)
	}

	withField := Validation("Missing required field: disease").WithField("disease")
	if got := withField.Error(); got != "ValidationError (field disease): Missing required field: disease" {
		t.Errorf("Error() = %q", got)
	}
}

func TestError_JSONShape(t *testing.T) {
	data, err := json.Marshal(Security("Potential XSS attack detected in disease").WithField("disease"))
	if err != nil {
		t.Fatal(err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got["error"] != "SecurityViolation" {
		t.Errorf("error = %v", got["error"])
	}
	if got["field"] != "disease" {
		t.Errorf("field = %v", got["field"])
	}
	if _, leaked := got["RetryAfter"]; leaked {
		t.Error("RetryAfter must not appear in the wire shape")
	}

	// Field is omitted when unset.
	data, _ = json.Marshal(Internal("boom"))
	var bare map[string]any
	json.Unmarshal(data, &bare)
	if _, present := bare["field"]; present {
		t.Error("empty field must be omitted")
	}
}

func TestRateLimit(t *testing.T) {
	err := RateLimit(7)
	if err.Kind != KindRateLimit {
		t.Errorf("kind = %s", err.Kind)
	}
	if err.RetryAfter != 7 {
		t.Errorf("retryAfter = %d, want 7", err.RetryAfter)
	}
	if err.Message != "Rate limit exceeded. Try again in 7 seconds." {
		t.Errorf("message = %q", err.Message)
	}
}

func TestNotFound(t *testing.T) {
	if got := NotFound("Disease", "unicorn_flu").Message; got != "Disease not found: unicorn_flu" {
		t.Errorf("message = %q", got)
	}
	if got := NotFound("Resource", "").Message; got != "Resource not found" {
		t.Errorf("message = %q", got)
	}
}

func TestCauseAndDetail(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Prediction("Unable to generate recommendations. Please try again later.").WithCause(cause)

	if !errors.Is(err, cause) {
		t.Error("cause must unwrap")
	}
	if got := err.Detail(); got != "Unable to generate recommendations. Please try again later.: dial tcp: connection refused" {
		t.Errorf("Detail() = %q", got)
	}
	// The client-visible message never mentions the cause.
	if got := err.Message; got != "Unable to generate recommendations. Please try again later." {
		t.Errorf("Message = %q", got)
	}

	bare := Internal("boom")
	if got := bare.Detail(); got != "boom" {
		t.Errorf("Detail() without cause = %q", got)
	}
}
