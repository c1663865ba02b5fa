/*
Copyright 2026 The FactoryOps Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/factoryops/factoryops/pkg/storage/postgres"
)

func (s *Server) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("api.response_encode_failed", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondStoreError maps repository sentinels onto HTTP statuses.
func (s *Server) respondStoreError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, postgres.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, postgres.ErrNotDeletable):
		s.respondError(w, http.StatusBadRequest, "only pending or failed entries can be deleted")
	default:
		s.logger.Error("api."+action+"_failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeValid decodes and validates a request body.
func (s *Server) decodeValid(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.New("malformed request body")
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return errors.New("invalid field " + f.Field() + ": failed " + f.Tag())
		}
		return err
	}
	return nil
}
