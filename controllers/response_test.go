package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bancomunay/services"
)

func TestRespondWithErrorStatus(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{services.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
		{&services.ValidationError{Messages: []string{"поле email обязательно"}}, http.StatusBadRequest, "validation_error"},
		{services.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{services.ErrForbidden, http.StatusForbidden, "forbidden"},
		{services.ErrDestinationNotFound, http.StatusNotFound, "destination_not_found"},
		{services.ErrOriginAccountMissing, http.StatusNotFound, "origin_account_missing"},
		{services.ErrDuplicateEmail, http.StatusConflict, "duplicate_email"},
		{services.ErrInsufficientFunds, http.StatusUnprocessableEntity, "insufficient_funds"},
		{services.ErrSelfTransfer, http.StatusUnprocessableEntity, "self_transfer"},
		{fmt.Errorf("%w: transfer", services.ErrOperationFailed), http.StatusInternalServerError, "operation_failed"},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, "operation_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			rr := httptest.NewRecorder()
			respondWithError(rr, tt.err)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			var body ErrorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
			if tt.wantStatus == http.StatusInternalServerError && strings.Contains(body.Error, "pq:") {
				t.Errorf("infrastructure details leaked: %q", body.Error)
			}
		})
	}
}

func TestDecodeJSONIsStrict(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"account_number":"0123456789"}`, false},
		{"unknown field", `{"account_number":"0123456789","admin":true}`, true},
		{"trailing data", `{"account_number":"0123456789"}{}`, true},
		{"wrong type", `{"account_number":123}`, true},
		{"empty", ``, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/friends", strings.NewReader(tt.body))
			var dst services.FriendRequest

			err := decodeJSON(httptest.NewRecorder(), req, &dst)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, services.ErrValidation) {
				t.Errorf("error %v is not a validation error", err)
			}
		})
	}
}
